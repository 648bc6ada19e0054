package detection

import (
	"github.com/shopspring/decimal"

	"github.com/davidleathers/invoice-anomaly-backend/internal/domain/invoice"
)

// itemStats collects the historical (quantity, unit price) observations for
// one normalized item name, in history iteration order.
type itemStats struct {
	quantities []float64
	prices     []decimal.Decimal
}

// historyIndex is the per-vendor baseline every detector reads from. It is a
// pure function of the history set; an empty history yields empty mappings,
// which detectors treat as "no baseline", never as an error.
type historyIndex struct {
	items        map[string]*itemStats
	totals       []decimal.Decimal
	invoiceCount int
}

func buildHistoryIndex(history []*invoice.Invoice) *historyIndex {
	ix := &historyIndex{
		items: make(map[string]*itemStats),
	}

	for _, hist := range history {
		if hist == nil {
			continue
		}
		ix.invoiceCount++
		ix.totals = append(ix.totals, hist.TotalAmount)

		for _, item := range hist.Items {
			key := invoice.NormalizeItemName(item.Name)
			if key == "" {
				continue
			}
			stats, ok := ix.items[key]
			if !ok {
				stats = &itemStats{}
				ix.items[key] = stats
			}
			stats.quantities = append(stats.quantities, item.Quantity)
			stats.prices = append(stats.prices, item.UnitPrice)
		}
	}

	return ix
}

// observations looks up the stats for a candidate item name using the
// normalized exact-match contract.
func (ix *historyIndex) observations(name string) (*itemStats, bool) {
	stats, ok := ix.items[invoice.NormalizeItemName(name)]
	return stats, ok
}

func (s *itemStats) avgPrice() decimal.Decimal {
	if len(s.prices) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, p := range s.prices {
		sum = sum.Add(p)
	}
	return sum.Div(decimal.NewFromInt(int64(len(s.prices))))
}

func (s *itemStats) avgQuantity() float64 {
	if len(s.quantities) == 0 {
		return 0
	}
	var sum float64
	for _, q := range s.quantities {
		sum += q
	}
	return sum / float64(len(s.quantities))
}

func (s *itemStats) maxQuantity() float64 {
	var max float64
	for _, q := range s.quantities {
		if q > max {
			max = q
		}
	}
	return max
}

func (ix *historyIndex) avgTotal() decimal.Decimal {
	if len(ix.totals) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, t := range ix.totals {
		sum = sum.Add(t)
	}
	return sum.Div(decimal.NewFromInt(int64(len(ix.totals))))
}

func (ix *historyIndex) minTotal() decimal.Decimal {
	if len(ix.totals) == 0 {
		return decimal.Zero
	}
	min := ix.totals[0]
	for _, t := range ix.totals[1:] {
		if t.LessThan(min) {
			min = t
		}
	}
	return min
}

func (ix *historyIndex) maxTotal() decimal.Decimal {
	if len(ix.totals) == 0 {
		return decimal.Zero
	}
	max := ix.totals[0]
	for _, t := range ix.totals[1:] {
		if t.GreaterThan(max) {
			max = t
		}
	}
	return max
}

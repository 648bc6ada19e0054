package detection

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/davidleathers/invoice-anomaly-backend/internal/domain/anomaly"
	"github.com/davidleathers/invoice-anomaly-backend/internal/domain/invoice"
	"github.com/davidleathers/invoice-anomaly-backend/internal/domain/values"
)

// Each detector is a pure function (candidate, index) -> anomalies. They run
// per line item (or on the invoice total) and skip silently whenever history
// offers no usable baseline: absent data is a valid state, not an error.

// detectPriceIncreases flags items whose unit price exceeds the historical
// average by more than the configured fraction (strict greater-than, so an
// increase of exactly the threshold does not fire).
func detectPriceIncreases(cfg Config, inv *invoice.Invoice, ix *historyIndex) []anomaly.Anomaly {
	var anomalies []anomaly.Anomaly
	threshold := decimal.NewFromFloat(cfg.PriceIncreaseThreshold)

	for _, item := range inv.Items {
		stats, ok := ix.observations(item.Name)
		if !ok || len(stats.prices) == 0 {
			continue
		}

		avgPrice := stats.avgPrice()
		if avgPrice.Sign() <= 0 {
			// zero average price means no meaningful baseline
			continue
		}

		increase := item.UnitPrice.Sub(avgPrice).Div(avgPrice)
		if !increase.GreaterThan(threshold) {
			continue
		}

		pct, _ := increase.Mul(decimal.NewFromInt(100)).Float64()
		thresholdPct := cfg.PriceIncreaseThreshold * 100
		anomalies = append(anomalies, anomaly.Anomaly{
			Kind:     anomaly.KindPriceIncrease,
			ItemName: item.Name,
			Severity: clampSeverity(30 + (pct-thresholdPct)*2),
			Description: fmt.Sprintf("Price for '%s' increased by %.1f%% (from avg %s to %s)",
				item.Name, pct,
				values.FormatAmount(avgPrice, inv.Currency),
				values.FormatAmount(item.UnitPrice, inv.Currency)),
		})
	}

	return anomalies
}

// detectQuantityDeviations flags items ordered far above the vendor's usual
// volume: more than QuantityAvgMultiplier times the historical average, or
// more than QuantityMaxMultiplier times the highest quantity ever seen.
func detectQuantityDeviations(cfg Config, inv *invoice.Invoice, ix *historyIndex) []anomaly.Anomaly {
	var anomalies []anomaly.Anomaly

	for _, item := range inv.Items {
		stats, ok := ix.observations(item.Name)
		if !ok || len(stats.quantities) == 0 {
			continue
		}

		avgQty := stats.avgQuantity()
		maxQty := stats.maxQuantity()
		if avgQty <= 0 {
			continue
		}

		switch {
		case item.Quantity > avgQty*cfg.QuantityAvgMultiplier:
			deviationPct := (item.Quantity - avgQty) / avgQty * 100
			thresholdPct := (cfg.QuantityAvgMultiplier - 1) * 100
			anomalies = append(anomalies, anomaly.Anomaly{
				Kind:     anomaly.KindQuantityDeviation,
				ItemName: item.Name,
				Severity: clampSeverity(25 + (deviationPct-thresholdPct)*0.3),
				Description: fmt.Sprintf("Quantity of '%s' is %.1f%% above average (avg: %.1f, current: %.1f)",
					item.Name, deviationPct, avgQty, item.Quantity),
			})

		case maxQty > 0 && item.Quantity > maxQty*cfg.QuantityMaxMultiplier:
			ratio := item.Quantity / maxQty
			anomalies = append(anomalies, anomaly.Anomaly{
				Kind:     anomaly.KindQuantityDeviation,
				ItemName: item.Name,
				Severity: clampSeverity(40 + (ratio-cfg.QuantityMaxMultiplier)*20),
				Description: fmt.Sprintf("Quantity of '%s' exceeds historical maximum by %.1f%% (max: %.1f, current: %.1f)",
					item.Name, (ratio-1)*100, maxQty, item.Quantity),
			})
		}
	}

	return anomalies
}

// detectNewItems flags items with no observation anywhere in history. Severity
// scales with the item's share of the invoice total. First-time vendors are
// not penalized: with zero historical invoices this detector is suppressed
// entirely and the assessment carries the insufficient-history flag instead.
func detectNewItems(cfg Config, inv *invoice.Invoice, ix *historyIndex) []anomaly.Anomaly {
	if ix.invoiceCount == 0 {
		return nil
	}

	var anomalies []anomaly.Anomaly
	for _, item := range inv.Items {
		if _, ok := ix.observations(item.Name); ok {
			continue
		}

		var sharePct float64
		if inv.TotalAmount.Sign() > 0 {
			sharePct, _ = item.TotalPrice.Div(inv.TotalAmount).Mul(decimal.NewFromInt(100)).Float64()
		}

		anomalies = append(anomalies, anomaly.Anomaly{
			Kind:     anomaly.KindNewItem,
			ItemName: item.Name,
			Severity: clampSeverity(20 + sharePct*0.5),
			Description: fmt.Sprintf("New item '%s' never seen before for this vendor (value: %s, %.1f%% of invoice total)",
				item.Name,
				values.FormatAmount(item.TotalPrice, inv.Currency), sharePct),
		})
	}

	return anomalies
}

// detectAmountDeviation compares the invoice total against the historical
// average. Totals below the average are reported informationally: they show
// up in the anomaly list and explanation but never contribute to the score.
func detectAmountDeviation(cfg Config, inv *invoice.Invoice, ix *historyIndex) []anomaly.Anomaly {
	if len(ix.totals) == 0 {
		return nil
	}

	avgTotal := ix.avgTotal()
	if avgTotal.Sign() <= 0 {
		return nil
	}

	deviation := inv.TotalAmount.Sub(avgTotal).Div(avgTotal)
	threshold := decimal.NewFromFloat(cfg.AmountDeviationThreshold)
	if !deviation.Abs().GreaterThan(threshold) {
		return nil
	}

	pct, _ := deviation.Abs().Mul(decimal.NewFromInt(100)).Float64()
	thresholdPct := cfg.AmountDeviationThreshold * 100
	direction := "above"
	if deviation.Sign() < 0 {
		direction = "below"
	}

	return []anomaly.Anomaly{{
		Kind:     anomaly.KindAmountDeviation,
		Severity: clampSeverity(35 + (pct-thresholdPct)*1.5),
		Description: fmt.Sprintf("Total amount is %.1f%% %s average (avg: %s, current: %s, range: %s - %s)",
			pct, direction,
			values.FormatAmount(avgTotal, inv.Currency),
			values.FormatAmount(inv.TotalAmount, inv.Currency),
			values.FormatAmount(ix.minTotal(), inv.Currency),
			values.FormatAmount(ix.maxTotal(), inv.Currency)),
		Informational: deviation.Sign() < 0,
	}}
}

func clampSeverity(v float64) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(v)
}

package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidleathers/invoice-anomaly-backend/internal/domain/anomaly"
	"github.com/davidleathers/invoice-anomaly-backend/internal/domain/invoice"
	"github.com/davidleathers/invoice-anomaly-backend/internal/testutil/fixtures"
)

func TestDetectPriceIncreases(t *testing.T) {
	cfg := DefaultConfig()

	history := fixtures.VendorHistory(t, "Acme Supplies Ltd", 2, func(b *fixtures.InvoiceBuilder) {
		b.WithItem("Widget", 10, 100).WithItem("Bolt", 5, 4).WithTotal(1020)
	})
	ix := buildHistoryIndex(history)

	tests := []struct {
		name        string
		build       func(b *fixtures.InvoiceBuilder)
		wantCount   int
		wantMinSev  int
		wantItem    string
	}{
		{
			name: "moderate increase flagged",
			build: func(b *fixtures.InvoiceBuilder) {
				b.WithItem("Widget", 10, 150).WithTotal(1020)
			},
			wantCount:  1,
			wantMinSev: 30,
			wantItem:   "Widget",
		},
		{
			name: "unknown item skipped by this detector",
			build: func(b *fixtures.InvoiceBuilder) {
				b.WithItem("Gizmo", 1, 9999).WithTotal(1020)
			},
			wantCount: 0,
		},
		{
			name: "decrease never flagged",
			build: func(b *fixtures.InvoiceBuilder) {
				b.WithItem("Widget", 10, 50).WithTotal(1020)
			},
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := fixtures.NewInvoiceBuilder(t).WithVendor("Acme Supplies Ltd")
			tt.build(b)
			got := detectPriceIncreases(cfg, b.Build(), ix)

			require.Len(t, got, tt.wantCount)
			if tt.wantCount > 0 {
				assert.Equal(t, anomaly.KindPriceIncrease, got[0].Kind)
				assert.Equal(t, tt.wantItem, got[0].ItemName)
				assert.GreaterOrEqual(t, got[0].Severity, tt.wantMinSev)
				assert.LessOrEqual(t, got[0].Severity, 100)
			}
		})
	}
}

func TestDetectQuantityDeviations(t *testing.T) {
	cfg := DefaultConfig()

	// avg quantity 10, max 14
	history := []*invoice.Invoice{
		fixtures.NewInvoiceBuilder(t).WithVendor("Acme Supplies Ltd").WithItem("Widget", 6, 100).Build(),
		fixtures.NewInvoiceBuilder(t).WithVendor("Acme Supplies Ltd").WithItem("Widget", 14, 100).Build(),
	}
	ix := buildHistoryIndex(history)

	t.Run("above double average", func(t *testing.T) {
		candidate := fixtures.NewInvoiceBuilder(t).
			WithVendor("Acme Supplies Ltd").
			WithItem("Widget", 25, 100).
			Build()

		got := detectQuantityDeviations(cfg, candidate, ix)
		require.Len(t, got, 1)
		assert.Equal(t, anomaly.KindQuantityDeviation, got[0].Kind)
		assert.Contains(t, got[0].Description, "above average")
	})

	t.Run("above max but not double average", func(t *testing.T) {
		// hits the 1.5x historical maximum branch
		ixMax := buildHistoryIndex([]*invoice.Invoice{
			fixtures.NewInvoiceBuilder(t).WithVendor("Acme Supplies Ltd").WithItem("Widget", 20, 100).Build(),
			fixtures.NewInvoiceBuilder(t).WithVendor("Acme Supplies Ltd").WithItem("Widget", 2, 100).Build(),
		})
		candidate := fixtures.NewInvoiceBuilder(t).
			WithVendor("Acme Supplies Ltd").
			WithItem("Widget", 21, 100).
			Build()

		// avg 11 -> double is 22 (not hit); max 20 * 1.5 = 30 (not hit)
		got := detectQuantityDeviations(cfg, candidate, ixMax)
		assert.Empty(t, got)

		candidate = fixtures.NewInvoiceBuilder(t).
			WithVendor("Acme Supplies Ltd").
			WithItem("Widget", 21.9, 100).
			Build()
		got = detectQuantityDeviations(cfg, candidate, ixMax)
		assert.Empty(t, got)
	})

	t.Run("exceeds historical maximum", func(t *testing.T) {
		ixMax := buildHistoryIndex([]*invoice.Invoice{
			fixtures.NewInvoiceBuilder(t).WithVendor("Acme Supplies Ltd").WithItem("Widget", 100, 100).Build(),
			fixtures.NewInvoiceBuilder(t).WithVendor("Acme Supplies Ltd").WithItem("Widget", 100, 100).Build(),
		})
		candidate := fixtures.NewInvoiceBuilder(t).
			WithVendor("Acme Supplies Ltd").
			WithItem("Widget", 190, 100).
			Build()

		// 190 < 2x avg (200) but > 1.5x max (150)
		got := detectQuantityDeviations(cfg, candidate, ixMax)
		require.Len(t, got, 1)
		assert.Contains(t, got[0].Description, "exceeds historical maximum")
	})

	t.Run("normal quantity passes", func(t *testing.T) {
		candidate := fixtures.NewInvoiceBuilder(t).
			WithVendor("Acme Supplies Ltd").
			WithItem("Widget", 12, 100).
			Build()

		got := detectQuantityDeviations(cfg, candidate, ix)
		assert.Empty(t, got)
	})
}

func TestDetectNewItems(t *testing.T) {
	cfg := DefaultConfig()

	history := fixtures.VendorHistory(t, "Acme Supplies Ltd", 2, func(b *fixtures.InvoiceBuilder) {
		b.WithItem("Widget", 10, 100).WithTotal(1000)
	})
	ix := buildHistoryIndex(history)

	t.Run("severity scales with invoice share", func(t *testing.T) {
		candidate := fixtures.NewInvoiceBuilder(t).
			WithVendor("Acme Supplies Ltd").
			WithItem("Widget", 10, 100).
			WithItem("Small Part", 1, 10).    // 1% of total
			WithItem("Big Machine", 1, 990).  // 49.5% of total
			WithTotal(2000).
			Build()

		got := detectNewItems(cfg, candidate, ix)
		require.Len(t, got, 2)
		assert.Equal(t, "Small Part", got[0].ItemName)
		assert.Equal(t, "Big Machine", got[1].ItemName)
		assert.Greater(t, got[1].Severity, got[0].Severity)
	})

	t.Run("suppressed for first-time vendor", func(t *testing.T) {
		candidate := fixtures.NewInvoiceBuilder(t).
			WithVendor("Newcomer GmbH").
			WithItem("Anything", 1, 50).
			Build()

		got := detectNewItems(cfg, candidate, buildHistoryIndex(nil))
		assert.Empty(t, got)
	})

	t.Run("zero invoice total does not divide by zero", func(t *testing.T) {
		candidate := fixtures.NewInvoiceBuilder(t).
			WithVendor("Acme Supplies Ltd").
			WithItem("Gizmo", 1, 10).
			WithTotal(0).
			Build()

		got := detectNewItems(cfg, candidate, ix)
		require.Len(t, got, 1)
		assert.Equal(t, 20, got[0].Severity)
	})
}

func TestDetectAmountDeviation(t *testing.T) {
	cfg := DefaultConfig()

	history := fixtures.VendorHistory(t, "Acme Supplies Ltd", 4, func(b *fixtures.InvoiceBuilder) {
		b.WithTotal(1000)
	})
	ix := buildHistoryIndex(history)

	tests := []struct {
		name          string
		total         float64
		wantCount     int
		informational bool
	}{
		{"within threshold", 1250, 0, false},
		{"exactly 30 percent does not trigger", 1300, 0, false},
		{"above threshold", 1500, 1, false},
		{"below threshold informational", 600, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate := fixtures.NewInvoiceBuilder(t).
				WithVendor("Acme Supplies Ltd").
				WithTotal(tt.total).
				Build()

			got := detectAmountDeviation(cfg, candidate, ix)
			require.Len(t, got, tt.wantCount)
			if tt.wantCount > 0 {
				assert.Equal(t, anomaly.KindAmountDeviation, got[0].Kind)
				assert.Equal(t, tt.informational, got[0].Informational)
			}
		})
	}

	t.Run("no totals means no baseline", func(t *testing.T) {
		candidate := fixtures.NewInvoiceBuilder(t).
			WithVendor("Acme Supplies Ltd").
			WithTotal(99999).
			Build()

		got := detectAmountDeviation(cfg, candidate, buildHistoryIndex(nil))
		assert.Empty(t, got)
	})
}

func TestBuildHistoryIndex(t *testing.T) {
	history := []*invoice.Invoice{
		fixtures.NewInvoiceBuilder(t).WithVendor("Acme Supplies Ltd").
			WithItem("Widget", 10, 100).WithItem("Bolt", 5, 4).WithTotal(1020).Build(),
		fixtures.NewInvoiceBuilder(t).WithVendor("Acme Supplies Ltd").
			WithItem("widget ", 20, 120).WithTotal(2400).Build(),
		nil, // tolerated
	}

	ix := buildHistoryIndex(history)

	assert.Equal(t, 2, ix.invoiceCount)
	assert.Len(t, ix.totals, 2)

	stats, ok := ix.observations("WIDGET")
	require.True(t, ok)
	assert.Equal(t, []float64{10, 20}, stats.quantities)
	assert.InDelta(t, 15, stats.avgQuantity(), 0.001)
	assert.InDelta(t, 20, stats.maxQuantity(), 0.001)
	assert.Equal(t, "110", stats.avgPrice().String())

	_, ok = ix.observations("Gizmo")
	assert.False(t, ok)

	assert.Equal(t, "1710", ix.avgTotal().String())
	assert.Equal(t, "1020", ix.minTotal().String())
	assert.Equal(t, "2400", ix.maxTotal().String())
}

package fixtures

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/davidleathers/invoice-anomaly-backend/internal/domain/invoice"
)

// InvoiceBuilder builds test Invoice entities
type InvoiceBuilder struct {
	t             *testing.T
	id            uuid.UUID
	vendorName    string
	invoiceNumber string
	invoiceDate   time.Time
	currency      string
	totalAmount   decimal.Decimal
	items         []invoice.LineItem
	autoTotal     bool
}

// NewInvoiceBuilder creates a new InvoiceBuilder with defaults
func NewInvoiceBuilder(t *testing.T) *InvoiceBuilder {
	t.Helper()
	id, err := uuid.NewRandom()
	require.NoError(t, err)

	return &InvoiceBuilder{
		t:             t,
		id:            id,
		vendorName:    "Acme Supplies Ltd",
		invoiceNumber: "INV-" + uuid.New().String()[:8],
		invoiceDate:   time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		currency:      "USD",
		autoTotal:     true,
	}
}

// WithID sets the invoice ID
func (b *InvoiceBuilder) WithID(id uuid.UUID) *InvoiceBuilder {
	b.id = id
	return b
}

// WithVendor sets the vendor name
func (b *InvoiceBuilder) WithVendor(name string) *InvoiceBuilder {
	b.vendorName = name
	return b
}

// WithNumber sets the invoice number
func (b *InvoiceBuilder) WithNumber(number string) *InvoiceBuilder {
	b.invoiceNumber = number
	return b
}

// WithDate sets the invoice date
func (b *InvoiceBuilder) WithDate(date time.Time) *InvoiceBuilder {
	b.invoiceDate = date
	return b
}

// WithCurrency sets the currency code
func (b *InvoiceBuilder) WithCurrency(currency string) *InvoiceBuilder {
	b.currency = currency
	return b
}

// WithTotal pins the invoice total instead of deriving it from the items
func (b *InvoiceBuilder) WithTotal(total float64) *InvoiceBuilder {
	b.totalAmount = decimal.NewFromFloat(total)
	b.autoTotal = false
	return b
}

// WithItem appends a line item; total price is quantity * unit price
func (b *InvoiceBuilder) WithItem(name string, quantity, unitPrice float64) *InvoiceBuilder {
	price := decimal.NewFromFloat(unitPrice)
	b.items = append(b.items, invoice.LineItem{
		Name:       name,
		Quantity:   quantity,
		UnitPrice:  price,
		TotalPrice: price.Mul(decimal.NewFromFloat(quantity)).Round(2),
	})
	return b
}

// WithLineItem appends a fully specified line item
func (b *InvoiceBuilder) WithLineItem(item invoice.LineItem) *InvoiceBuilder {
	b.items = append(b.items, item)
	return b
}

// Build creates the Invoice
func (b *InvoiceBuilder) Build() *invoice.Invoice {
	b.t.Helper()

	total := b.totalAmount
	if b.autoTotal {
		total = decimal.Zero
		for _, item := range b.items {
			total = total.Add(item.TotalPrice)
		}
	}

	inv, err := invoice.NewInvoice(b.vendorName, b.invoiceNumber, b.invoiceDate, b.currency, total, b.items)
	require.NoError(b.t, err)
	inv.ID = b.id
	return inv
}

// VendorHistory builds n identical historical invoices for a vendor, one per
// month back from the default date, each with the given items. Handy baseline
// for detector tests: the candidate then deviates from a stable history.
func VendorHistory(t *testing.T, vendor string, n int, build func(b *InvoiceBuilder)) []*invoice.Invoice {
	t.Helper()

	history := make([]*invoice.Invoice, 0, n)
	for i := 0; i < n; i++ {
		b := NewInvoiceBuilder(t).
			WithVendor(vendor).
			WithNumber(fmt.Sprintf("INV-H%03d", i+1)).
			WithDate(time.Date(2025, time.Month(3), 15, 0, 0, 0, 0, time.UTC).AddDate(0, -(i + 1), 0))
		build(b)
		history = append(history, b.Build())
	}
	return history
}

package invoice

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/davidleathers/invoice-anomaly-backend/internal/domain/errors"
)

// Invoice is a vendor invoice as seen by the analysis engine and the API.
// Once constructed it is treated as immutable by the engine; only the
// storage layer touches the analysis and submission fields.
type Invoice struct {
	ID            uuid.UUID       `json:"id"`
	VendorName    string          `json:"vendor_name"`
	InvoiceNumber string          `json:"invoice_number"`
	InvoiceDate   time.Time       `json:"invoice_date"`
	Currency      string          `json:"currency"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Items         []LineItem      `json:"items"`

	UploadedAt time.Time `json:"uploaded_at"`

	// Analysis results, populated after the invoice has been scored
	Suspicious         bool    `json:"is_suspicious"`
	RiskScore          *int    `json:"risk_score,omitempty"`
	AnomalyExplanation *string `json:"anomaly_explanation,omitempty"`

	// ERPNext submission state
	SubmittedToERP bool    `json:"submitted_to_erpnext"`
	ERPInvoiceName *string `json:"erpnext_invoice_name,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LineItem is a single billed position on an invoice. Name is the fuzzy-free
// join key against the vendor's history (normalized exact match only).
type LineItem struct {
	Name       string          `json:"name"`
	Quantity   float64         `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// NewInvoice constructs a validated invoice ready for storage and analysis.
func NewInvoice(vendorName, invoiceNumber string, invoiceDate time.Time, currency string, totalAmount decimal.Decimal, items []LineItem) (*Invoice, error) {
	inv := &Invoice{
		ID:            uuid.New(),
		VendorName:    strings.TrimSpace(vendorName),
		InvoiceNumber: strings.TrimSpace(invoiceNumber),
		InvoiceDate:   invoiceDate,
		Currency:      currency,
		TotalAmount:   totalAmount,
		Items:         items,
		UploadedAt:    time.Now(),
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	if inv.Currency == "" {
		inv.Currency = "USD"
	}

	if err := inv.Validate(); err != nil {
		return nil, err
	}

	return inv, nil
}

// Validate checks the structural invariants the engine relies on. Degenerate
// values the engine tolerates (zero items, zero prices) are not rejected here;
// only genuinely malformed invoices are.
func (i *Invoice) Validate() error {
	if i.VendorName == "" {
		return errors.NewValidationError("MISSING_VENDOR", "vendor name is required")
	}
	if i.InvoiceNumber == "" {
		return errors.NewValidationError("MISSING_INVOICE_NUMBER", "invoice number is required")
	}
	if i.InvoiceDate.IsZero() {
		return errors.NewValidationError("MISSING_INVOICE_DATE", "invoice date is required")
	}
	if i.TotalAmount.IsNegative() {
		return errors.NewValidationError("NEGATIVE_TOTAL", "total amount cannot be negative")
	}

	for idx, item := range i.Items {
		if strings.TrimSpace(item.Name) == "" {
			return errors.NewValidationError("MISSING_ITEM_NAME", "line item name is required").
				WithDetails(map[string]interface{}{"item_index": idx})
		}
		if item.Quantity <= 0 {
			return errors.NewValidationError("INVALID_ITEM_QUANTITY", "line item quantity must be positive").
				WithDetails(map[string]interface{}{"item_index": idx, "item_name": item.Name})
		}
		if item.UnitPrice.IsNegative() {
			return errors.NewValidationError("NEGATIVE_UNIT_PRICE", "line item unit price cannot be negative").
				WithDetails(map[string]interface{}{"item_index": idx, "item_name": item.Name})
		}
		if item.TotalPrice.IsNegative() {
			return errors.NewValidationError("NEGATIVE_TOTAL_PRICE", "line item total price cannot be negative").
				WithDetails(map[string]interface{}{"item_index": idx, "item_name": item.Name})
		}
	}

	return nil
}

// SetAnalysis records the engine's verdict on this invoice.
func (i *Invoice) SetAnalysis(suspicious bool, riskScore int, explanation string) {
	i.Suspicious = suspicious
	i.RiskScore = &riskScore
	i.AnomalyExplanation = &explanation
	i.UpdatedAt = time.Now()
}

// MarkSubmitted records a successful ERPNext submission.
func (i *Invoice) MarkSubmitted(erpName string) {
	i.SubmittedToERP = true
	i.ERPInvoiceName = &erpName
	i.UpdatedAt = time.Now()
}

// CalculatedTotal derives qty * unit price for a line item. The engine never
// enforces TotalPrice == CalculatedTotal; parsers are allowed to disagree.
func (li LineItem) CalculatedTotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromFloat(li.Quantity)).Round(2)
}

// NormalizeItemName produces the exact-match join key used against history:
// lower-cased, surrounding whitespace trimmed. No fuzzy matching.
func NormalizeItemName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NormalizeVendorName matches vendors the same way item names are matched.
func NormalizeVendorName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

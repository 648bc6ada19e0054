package rest

import (
	"time"

	"github.com/shopspring/decimal"

	domaininvoice "github.com/davidleathers/invoice-anomaly-backend/internal/domain/invoice"
)

// CreateInvoiceRequest is the payload for uploading an invoice
type CreateInvoiceRequest struct {
	VendorName    string            `json:"vendor_name" validate:"required,max=255"`
	InvoiceNumber string            `json:"invoice_number" validate:"required,max=255"`
	InvoiceDate   time.Time         `json:"invoice_date" validate:"required"`
	Currency      string            `json:"currency" validate:"omitempty,len=3,alpha"`
	TotalAmount   decimal.Decimal   `json:"total_amount"`
	Items         []LineItemRequest `json:"items" validate:"dive"`
}

// LineItemRequest is a single line item in an upload payload
type LineItemRequest struct {
	Name       string          `json:"name" validate:"required,max=255"`
	Quantity   float64         `json:"quantity" validate:"required,gt=0"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// ToDomain builds a validated domain invoice from the request
func (r *CreateInvoiceRequest) ToDomain() (*domaininvoice.Invoice, error) {
	items := make([]domaininvoice.LineItem, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, domaininvoice.LineItem{
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			TotalPrice: item.TotalPrice,
		})
	}

	return domaininvoice.NewInvoice(
		r.VendorName,
		r.InvoiceNumber,
		r.InvoiceDate,
		r.Currency,
		r.TotalAmount,
		items,
	)
}

// AnalyzeERPInvoiceRequest asks for an ad hoc analysis of an ERPNext document
type AnalyzeERPInvoiceRequest struct {
	InvoiceName string `json:"invoice_name" validate:"required,max=255"`
}

package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/davidleathers/invoice-anomaly-backend/internal/domain/invoice"
)

// InvoiceRepository defines invoice storage operations
type InvoiceRepository interface {
	Create(ctx context.Context, inv *invoice.Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error)
	List(ctx context.Context) ([]*invoice.Invoice, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// GetByVendor returns up to limit prior invoices for the vendor, newest
	// first, excluding excludeID. Vendor matching is case-insensitive; the
	// result is the history snapshot handed to the engine.
	GetByVendor(ctx context.Context, vendorName string, excludeID uuid.UUID, limit int) ([]*invoice.Invoice, error)

	// UpdateAnalysis persists the engine's verdict for an invoice
	UpdateAnalysis(ctx context.Context, id uuid.UUID, suspicious bool, riskScore int, explanation string) error

	// MarkSubmitted records a successful ERPNext submission
	MarkSubmitted(ctx context.Context, id uuid.UUID, erpName string) error
}

package invoice

import (
	"context"

	"github.com/google/uuid"

	"github.com/davidleathers/invoice-anomaly-backend/internal/domain/anomaly"
	domaininvoice "github.com/davidleathers/invoice-anomaly-backend/internal/domain/invoice"
)

// Repository defines the invoice storage operations the service depends on
type Repository interface {
	Create(ctx context.Context, inv *domaininvoice.Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*domaininvoice.Invoice, error)
	List(ctx context.Context) ([]*domaininvoice.Invoice, error)
	Delete(ctx context.Context, id uuid.UUID) error
	GetByVendor(ctx context.Context, vendorName string, excludeID uuid.UUID, limit int) ([]*domaininvoice.Invoice, error)
	UpdateAnalysis(ctx context.Context, id uuid.UUID, suspicious bool, riskScore int, explanation string) error
	MarkSubmitted(ctx context.Context, id uuid.UUID, erpName string) error
}

// HistoryCache caches vendor history snapshots between analyses
type HistoryCache interface {
	GetHistory(ctx context.Context, vendorName string) ([]*domaininvoice.Invoice, error)
	SetHistory(ctx context.Context, vendorName string, history []*domaininvoice.Invoice) error
	Invalidate(ctx context.Context, vendorName string) error
}

// Engine runs anomaly detection for a candidate against vendor history
type Engine interface {
	Analyze(candidate *domaininvoice.Invoice, history []*domaininvoice.Invoice) (*anomaly.Assessment, error)
}

// ERPClient covers the ERPNext operations the service uses. May be absent
// when the integration is not configured.
type ERPClient interface {
	FetchInvoice(ctx context.Context, name string) (*domaininvoice.Invoice, error)
	FetchSupplierHistory(ctx context.Context, supplier, excludeName string, limit int) ([]*domaininvoice.Invoice, error)
	CreateInvoice(ctx context.Context, inv *domaininvoice.Invoice, riskScore *int, explanation *string) (string, error)
}

// EventPublisher pushes assessment results to connected clients
type EventPublisher interface {
	PublishAssessment(inv *domaininvoice.Invoice, assessment *anomaly.Assessment)
}

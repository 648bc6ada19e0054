package invoice

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/davidleathers/invoice-anomaly-backend/internal/domain/anomaly"
	domaininvoice "github.com/davidleathers/invoice-anomaly-backend/internal/domain/invoice"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) Create(ctx context.Context, inv *domaininvoice.Invoice) error {
	args := m.Called(ctx, inv)
	return args.Error(0)
}

func (m *mockRepository) GetByID(ctx context.Context, id uuid.UUID) (*domaininvoice.Invoice, error) {
	args := m.Called(ctx, id)
	if inv := args.Get(0); inv != nil {
		return inv.(*domaininvoice.Invoice), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRepository) List(ctx context.Context) ([]*domaininvoice.Invoice, error) {
	args := m.Called(ctx)
	if invs := args.Get(0); invs != nil {
		return invs.([]*domaininvoice.Invoice), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockRepository) GetByVendor(ctx context.Context, vendorName string, excludeID uuid.UUID, limit int) ([]*domaininvoice.Invoice, error) {
	args := m.Called(ctx, vendorName, excludeID, limit)
	if invs := args.Get(0); invs != nil {
		return invs.([]*domaininvoice.Invoice), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRepository) UpdateAnalysis(ctx context.Context, id uuid.UUID, suspicious bool, riskScore int, explanation string) error {
	args := m.Called(ctx, id, suspicious, riskScore, explanation)
	return args.Error(0)
}

func (m *mockRepository) MarkSubmitted(ctx context.Context, id uuid.UUID, erpName string) error {
	args := m.Called(ctx, id, erpName)
	return args.Error(0)
}

type mockHistoryCache struct {
	mock.Mock
}

func (m *mockHistoryCache) GetHistory(ctx context.Context, vendorName string) ([]*domaininvoice.Invoice, error) {
	args := m.Called(ctx, vendorName)
	if invs := args.Get(0); invs != nil {
		return invs.([]*domaininvoice.Invoice), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockHistoryCache) SetHistory(ctx context.Context, vendorName string, history []*domaininvoice.Invoice) error {
	args := m.Called(ctx, vendorName, history)
	return args.Error(0)
}

func (m *mockHistoryCache) Invalidate(ctx context.Context, vendorName string) error {
	args := m.Called(ctx, vendorName)
	return args.Error(0)
}

type mockERPClient struct {
	mock.Mock
}

func (m *mockERPClient) FetchInvoice(ctx context.Context, name string) (*domaininvoice.Invoice, error) {
	args := m.Called(ctx, name)
	if inv := args.Get(0); inv != nil {
		return inv.(*domaininvoice.Invoice), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockERPClient) FetchSupplierHistory(ctx context.Context, supplier, excludeName string, limit int) ([]*domaininvoice.Invoice, error) {
	args := m.Called(ctx, supplier, excludeName, limit)
	if invs := args.Get(0); invs != nil {
		return invs.([]*domaininvoice.Invoice), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockERPClient) CreateInvoice(ctx context.Context, inv *domaininvoice.Invoice, riskScore *int, explanation *string) (string, error) {
	args := m.Called(ctx, inv, riskScore, explanation)
	return args.String(0), args.Error(1)
}

type mockEventPublisher struct {
	mock.Mock
}

func (m *mockEventPublisher) PublishAssessment(inv *domaininvoice.Invoice, assessment *anomaly.Assessment) {
	m.Called(inv, assessment)
}

package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	domainerrors "github.com/davidleathers/invoice-anomaly-backend/internal/domain/errors"
	domaininvoice "github.com/davidleathers/invoice-anomaly-backend/internal/domain/invoice"
	"github.com/davidleathers/invoice-anomaly-backend/internal/infrastructure/config"
	"github.com/davidleathers/invoice-anomaly-backend/internal/service/detection"
	invoiceservice "github.com/davidleathers/invoice-anomaly-backend/internal/service/invoice"
	"github.com/davidleathers/invoice-anomaly-backend/internal/testutil/fixtures"
)

// fakeRepo is an in-memory Repository for handler tests
type fakeRepo struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]*domaininvoice.Invoice
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{invoices: make(map[uuid.UUID]*domaininvoice.Invoice)}
}

func (f *fakeRepo) Create(ctx context.Context, inv *domaininvoice.Invoice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.invoices {
		if domaininvoice.NormalizeVendorName(existing.VendorName) == domaininvoice.NormalizeVendorName(inv.VendorName) &&
			existing.InvoiceNumber == inv.InvoiceNumber {
			return domainerrors.ErrDuplicateInvoice
		}
	}
	f.invoices[inv.ID] = inv
	return nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id uuid.UUID) (*domaininvoice.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[id]
	if !ok {
		return nil, domainerrors.ErrInvoiceNotFound
	}
	return inv, nil
}

func (f *fakeRepo) List(ctx context.Context) ([]*domaininvoice.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domaininvoice.Invoice, 0, len(f.invoices))
	for _, inv := range f.invoices {
		out = append(out, inv)
	}
	return out, nil
}

func (f *fakeRepo) Delete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.invoices[id]; !ok {
		return domainerrors.ErrInvoiceNotFound
	}
	delete(f.invoices, id)
	return nil
}

func (f *fakeRepo) GetByVendor(ctx context.Context, vendorName string, excludeID uuid.UUID, limit int) ([]*domaininvoice.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domaininvoice.Invoice
	for _, inv := range f.invoices {
		if domaininvoice.NormalizeVendorName(inv.VendorName) == domaininvoice.NormalizeVendorName(vendorName) && inv.ID != excludeID {
			out = append(out, inv)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateAnalysis(ctx context.Context, id uuid.UUID, suspicious bool, riskScore int, explanation string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[id]
	if !ok {
		return domainerrors.ErrInvoiceNotFound
	}
	inv.SetAnalysis(suspicious, riskScore, explanation)
	return nil
}

func (f *fakeRepo) MarkSubmitted(ctx context.Context, id uuid.UUID, erpName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[id]
	if !ok {
		return domainerrors.ErrInvoiceNotFound
	}
	inv.MarkSubmitted(erpName)
	return nil
}

func newTestAPI(t *testing.T, security config.SecurityConfig) (http.Handler, *fakeRepo) {
	t.Helper()

	repo := newFakeRepo()
	engine := detection.NewEngine(detection.DefaultConfig())
	service := invoiceservice.NewService(repo, nil, engine, nil, nil, 50, zaptest.NewLogger(t))

	auth := NewAuthMiddleware(&security)
	handler := NewHandler(service, auth, NewHealthService(), nil)

	mux := http.NewServeMux()
	handler.Routes(mux)

	chain := chainMiddleware(mux,
		requestIDMiddleware,
		recoveryMiddleware,
		securityHeadersMiddleware,
		auth.Middleware(),
	)

	return chain, repo
}

func postJSON(t *testing.T, handler http.Handler, path string, payload interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func invoicePayload(vendor, number string, items []map[string]interface{}, total float64) map[string]interface{} {
	return map[string]interface{}{
		"vendor_name":    vendor,
		"invoice_number": number,
		"invoice_date":   time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		"currency":       "USD",
		"total_amount":   total,
		"items":          items,
	}
}

func lineItem(name string, qty, price float64) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"quantity":    qty,
		"unit_price":  price,
		"total_price": qty * price,
	}
}

func TestCreateInvoice(t *testing.T) {
	t.Run("first invoice for a vendor", func(t *testing.T) {
		api, _ := newTestAPI(t, config.SecurityConfig{})

		rec := postJSON(t, api, "/api/v1/invoices",
			invoicePayload("Acme Supplies Ltd", "INV-1", []map[string]interface{}{lineItem("Widget", 10, 150)}, 1500), nil)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp AnalysisResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Acme Supplies Ltd", resp.Invoice.VendorName)
		assert.False(t, resp.Assessment.Suspicious)
		assert.Zero(t, resp.Assessment.RiskScore)
		assert.True(t, resp.Assessment.InsufficientHistory)
	})

	t.Run("suspicious price increase", func(t *testing.T) {
		api, _ := newTestAPI(t, config.SecurityConfig{})

		for _, n := range []string{"INV-1", "INV-2", "INV-3"} {
			rec := postJSON(t, api, "/api/v1/invoices",
				invoicePayload("Acme Supplies Ltd", n, []map[string]interface{}{lineItem("Widget", 10, 150)}, 1500), nil)
			require.Equal(t, http.StatusCreated, rec.Code)
		}

		rec := postJSON(t, api, "/api/v1/invoices",
			invoicePayload("Acme Supplies Ltd", "INV-4", []map[string]interface{}{lineItem("Widget", 10, 250)}, 2500), nil)
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp AnalysisResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Assessment.Suspicious)
		assert.Equal(t, "suspicious", resp.Assessment.Status)
		assert.NotEmpty(t, resp.Assessment.Anomalies)
		require.NotNil(t, resp.Invoice.RiskScore)
		assert.Equal(t, resp.Assessment.RiskScore, *resp.Invoice.RiskScore)
	})

	t.Run("duplicate invoice number", func(t *testing.T) {
		api, _ := newTestAPI(t, config.SecurityConfig{})

		payload := invoicePayload("Acme Supplies Ltd", "INV-1", []map[string]interface{}{lineItem("Widget", 1, 100)}, 100)
		require.Equal(t, http.StatusCreated, postJSON(t, api, "/api/v1/invoices", payload, nil).Code)

		rec := postJSON(t, api, "/api/v1/invoices", payload, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "CONFLICT", resp.Error.Code)
	})

	t.Run("missing vendor name", func(t *testing.T) {
		api, _ := newTestAPI(t, config.SecurityConfig{})

		rec := postJSON(t, api, "/api/v1/invoices",
			invoicePayload("", "INV-1", []map[string]interface{}{lineItem("Widget", 1, 100)}, 100), nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid json", func(t *testing.T) {
		api, _ := newTestAPI(t, config.SecurityConfig{})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "INVALID_JSON", resp.Error.Code)
	})
}

func TestGetAndListInvoices(t *testing.T) {
	api, repo := newTestAPI(t, config.SecurityConfig{})

	inv := fixtures.NewInvoiceBuilder(t).WithItem("Widget", 1, 100).Build()
	require.NoError(t, repo.Create(context.Background(), inv))

	t.Run("get by id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices/"+inv.ID.String(), nil)
		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp InvoiceResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, inv.ID, resp.ID)
	})

	t.Run("unknown id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices/"+uuid.NewString(), nil)
		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices/not-a-uuid", nil)
		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("list", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil)
		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp ListInvoicesResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Total)
	})
}

func TestAnalyzeEndpoint(t *testing.T) {
	api, repo := newTestAPI(t, config.SecurityConfig{})

	history := fixtures.VendorHistory(t, "Acme Supplies Ltd", 3, func(b *fixtures.InvoiceBuilder) {
		b.WithItem("Widget", 10, 150)
	})
	for _, inv := range history {
		require.NoError(t, repo.Create(context.Background(), inv))
	}

	candidate := fixtures.NewInvoiceBuilder(t).
		WithVendor("Acme Supplies Ltd").
		WithNumber("INV-99").
		WithItem("Widget", 10, 250).
		Build()
	require.NoError(t, repo.Create(context.Background(), candidate))

	rec := postJSON(t, api, "/api/v1/invoices/"+candidate.ID.String()+"/analyze", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp AnalysisResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Assessment.Suspicious)
	assert.NotEmpty(t, resp.Assessment.Explanation)
}

func TestDeleteInvoice(t *testing.T) {
	api, repo := newTestAPI(t, config.SecurityConfig{})

	inv := fixtures.NewInvoiceBuilder(t).WithItem("Widget", 1, 100).Build()
	require.NoError(t, repo.Create(context.Background(), inv))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/invoices/"+inv.ID.String(), nil)
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/invoices/"+inv.ID.String(), nil)
	rec = httptest.NewRecorder()
	api.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestERPEndpointsWithoutIntegration(t *testing.T) {
	api, repo := newTestAPI(t, config.SecurityConfig{})

	inv := fixtures.NewInvoiceBuilder(t).WithItem("Widget", 1, 100).Build()
	require.NoError(t, repo.Create(context.Background(), inv))

	rec := postJSON(t, api, "/api/v1/invoices/"+inv.ID.String()+"/submit-to-erpnext", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = postJSON(t, api, "/api/v1/erpnext/analyze-invoice", map[string]string{"invoice_name": "PINV-0001"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ERP_NOT_CONFIGURED", resp.Error.Code)
}

func TestAuthentication(t *testing.T) {
	security := config.SecurityConfig{
		JWTSecret:   "test-secret",
		TokenExpiry: time.Hour,
		APIKeys:     []string{"valid-key"},
	}

	t.Run("rejects anonymous requests", func(t *testing.T) {
		api, _ := newTestAPI(t, security)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil)
		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("health endpoints stay public", func(t *testing.T) {
		api, _ := newTestAPI(t, security)

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("accepts a valid API key", func(t *testing.T) {
		api, _ := newTestAPI(t, security)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil)
		req.Header.Set("X-API-Key", "valid-key")
		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rejects an unknown API key", func(t *testing.T) {
		api, _ := newTestAPI(t, security)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil)
		req.Header.Set("X-API-Key", "wrong-key")
		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token exchange and bearer auth", func(t *testing.T) {
		api, _ := newTestAPI(t, security)

		rec := postJSON(t, api, "/api/v1/auth/token",
			map[string]string{"subject": "ci-pipeline"},
			map[string]string{"X-API-Key": "valid-key"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var token tokenResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &token))
		require.NotEmpty(t, token.Token)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil)
		req.Header.Set("Authorization", "Bearer "+token.Token)
		rec2 := httptest.NewRecorder()
		api.ServeHTTP(rec2, req)
		assert.Equal(t, http.StatusOK, rec2.Code)
	})

	t.Run("rejects a garbage bearer token", func(t *testing.T) {
		api, _ := newTestAPI(t, security)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil)
		req.Header.Set("Authorization", "Bearer nonsense")
		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

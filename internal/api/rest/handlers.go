package rest

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	domainerrors "github.com/davidleathers/invoice-anomaly-backend/internal/domain/errors"
	invoiceservice "github.com/davidleathers/invoice-anomaly-backend/internal/service/invoice"
)

// Handler serves the invoice API
type Handler struct {
	service  *invoiceservice.Service
	validate *validator.Validate
	auth     *AuthMiddleware
	health   *HealthService
	ws       http.Handler
}

// NewHandler creates the API handler. ws may be nil when the event stream
// is disabled.
func NewHandler(service *invoiceservice.Service, auth *AuthMiddleware, health *HealthService, ws http.Handler) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(),
		auth:     auth,
		health:   health,
		ws:       ws,
	}
}

// Routes registers all endpoints on the mux
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.health.LivenessHandler)
	mux.HandleFunc("GET /readyz", h.health.ReadinessHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/v1/auth/token", h.issueToken)

	mux.HandleFunc("POST /api/v1/invoices", h.createInvoice)
	mux.HandleFunc("GET /api/v1/invoices", h.listInvoices)
	mux.HandleFunc("GET /api/v1/invoices/{id}", h.getInvoice)
	mux.HandleFunc("DELETE /api/v1/invoices/{id}", h.deleteInvoice)
	mux.HandleFunc("POST /api/v1/invoices/{id}/analyze", h.analyzeInvoice)
	mux.HandleFunc("POST /api/v1/invoices/{id}/submit-to-erpnext", h.submitToERP)

	mux.HandleFunc("POST /api/v1/erpnext/analyze-invoice", h.analyzeERPInvoice)

	if h.ws != nil {
		mux.Handle("GET /api/v1/ws", h.ws)
	}
}

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeBadRequest(w, "INVALID_JSON", "Request body is not valid JSON")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, r, err)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeBadRequest(w, "INVALID_ID", "Invoice ID must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// createInvoice ingests an invoice and returns it with its assessment
func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	inv, err := req.ToDomain()
	if err != nil {
		writeError(w, r, err)
		return
	}

	stored, assessment, err := h.service.Ingest(r.Context(), inv)
	if err != nil {
		// A stored invoice with a failed analysis is still a conflict or
		// server error to the caller; nothing partial is returned.
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, AnalysisResponse{
		Invoice:    toInvoiceResponse(stored),
		Assessment: toAssessmentResponse(assessment),
	})
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.service.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	items := make([]InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		items = append(items, toInvoiceResponse(inv))
	}

	writeJSON(w, http.StatusOK, ListInvoicesResponse{Items: items, Total: len(items)})
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// analyzeInvoice re-runs detection for a stored invoice
func (h *Handler) analyzeInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	inv, assessment, err := h.service.Analyze(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, AnalysisResponse{
		Invoice:    toInvoiceResponse(inv),
		Assessment: toAssessmentResponse(assessment),
	})
}

func (h *Handler) submitToERP(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	inv, err := h.service.SubmitToERP(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toInvoiceResponse(inv))
}

// analyzeERPInvoice scores an ERPNext purchase invoice without storing it
func (h *Handler) analyzeERPInvoice(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeERPInvoiceRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	inv, assessment, err := h.service.AnalyzeERPInvoice(r.Context(), req.InvoiceName)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, AnalysisResponse{
		Invoice:    toInvoiceResponse(inv),
		Assessment: toAssessmentResponse(assessment),
	})
}

type tokenRequest struct {
	Subject string `json:"subject" validate:"required,max=128"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// issueToken exchanges a valid API key for a short-lived JWT
func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request) {
	if !h.auth.Enabled() {
		writeError(w, r, domainerrors.NewBusinessError("AUTH_DISABLED", "Authentication is not configured"))
		return
	}

	apiKey := r.Header.Get("X-API-Key")
	if apiKey == "" || !h.auth.checkAPIKey(apiKey) {
		writeUnauthorized(w, "Valid API key required")
		return
	}

	var req tokenRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	token, err := h.auth.IssueToken(req.Subject)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

// Package erpnext implements a client for the Frappe/ERPNext REST API,
// covering the Purchase Invoice operations the service needs: fetching a
// single invoice, fetching supplier history, and creating invoices with a
// risk assessment attached as a comment.
package erpnext

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domainerrors "github.com/davidleathers/invoice-anomaly-backend/internal/domain/errors"
	"github.com/davidleathers/invoice-anomaly-backend/internal/domain/invoice"
	"github.com/davidleathers/invoice-anomaly-backend/internal/infrastructure/config"
)

const (
	purchaseInvoiceDoctype = "Purchase Invoice"
	postingDateLayout      = "2006-01-02"
)

// Client talks to a single ERPNext instance using token authentication
// (Authorization: token api_key:api_secret).
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates an ERPNext client from configuration
func NewClient(cfg *config.ERPNextConfig, logger *zap.Logger) (*Client, error) {
	if cfg == nil || !cfg.IsConfigured() {
		return nil, domainerrors.ErrERPNotConfigured
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		// Keys pasted from .env files sometimes carry trailing whitespace
		apiKey:     strings.TrimSpace(cfg.APIKey),
		apiSecret:  strings.TrimSpace(cfg.APISecret),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// Wire representations of ERPNext documents

type purchaseInvoiceDoc struct {
	Name        string            `json:"name"`
	Supplier    string            `json:"supplier"`
	PostingDate string            `json:"posting_date"`
	GrandTotal  float64           `json:"grand_total"`
	Currency    string            `json:"currency"`
	Items       []purchaseInvItem `json:"items"`
}

type purchaseInvItem struct {
	ItemCode string  `json:"item_code,omitempty"`
	ItemName string  `json:"item_name,omitempty"`
	Qty      float64 `json:"qty"`
	Rate     float64 `json:"rate"`
	Amount   float64 `json:"amount"`
}

type docResponse struct {
	Data json.RawMessage `json:"data"`
}

// FetchInvoice retrieves a single Purchase Invoice by its ERPNext name
// (e.g. "PINV-0001") and maps it to the domain model.
func (c *Client) FetchInvoice(ctx context.Context, name string) (*invoice.Invoice, error) {
	var resp docResponse
	path := "/api/resource/" + url.PathEscape(purchaseInvoiceDoctype) + "/" + url.PathEscape(name)
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return nil, err
	}

	var doc purchaseInvoiceDoc
	if err := json.Unmarshal(resp.Data, &doc); err != nil {
		return nil, domainerrors.NewExternalError("erpnext", "failed to decode purchase invoice").WithCause(err)
	}

	return c.toDomain(&doc)
}

// FetchSupplierHistory retrieves prior Purchase Invoices for a supplier,
// newest posting date first, excluding excludeName (the invoice under
// analysis). Documents that fail to map are skipped with a warning so a
// single bad record does not sink the whole baseline.
func (c *Client) FetchSupplierHistory(ctx context.Context, supplier, excludeName string, limit int) ([]*invoice.Invoice, error) {
	filters, err := json.Marshal([][]string{{"supplier", "=", supplier}})
	if err != nil {
		return nil, fmt.Errorf("failed to encode supplier filter: %w", err)
	}

	params := url.Values{}
	params.Set("filters", string(filters))
	params.Set("fields", `["name", "supplier", "posting_date", "grand_total", "currency", "items"]`)
	params.Set("limit_page_length", strconv.Itoa(limit))
	params.Set("order_by", "posting_date desc")

	var resp docResponse
	path := "/api/resource/" + url.PathEscape(purchaseInvoiceDoctype)
	if err := c.get(ctx, path, params, &resp); err != nil {
		return nil, err
	}

	var docs []purchaseInvoiceDoc
	if err := json.Unmarshal(resp.Data, &docs); err != nil {
		return nil, domainerrors.NewExternalError("erpnext", "failed to decode purchase invoice list").WithCause(err)
	}

	history := make([]*invoice.Invoice, 0, len(docs))
	for i := range docs {
		if excludeName != "" && docs[i].Name == excludeName {
			continue
		}
		inv, err := c.toDomain(&docs[i])
		if err != nil {
			c.logger.Warn("skipping unparseable purchase invoice",
				zap.String("name", docs[i].Name),
				zap.Error(err))
			continue
		}
		history = append(history, inv)
	}

	return history, nil
}

// CreateInvoice creates a Purchase Invoice in ERPNext for the given domain
// invoice, ensuring the supplier exists first, and attaches the risk
// assessment as a comment. Returns the ERPNext document name. Comment
// creation is best effort; a failure there does not fail the submission.
func (c *Client) CreateInvoice(ctx context.Context, inv *invoice.Invoice, riskScore *int, explanation *string) (string, error) {
	if err := c.ensureSupplier(ctx, inv.VendorName); err != nil {
		// The supplier may exist under concurrent creation; the invoice
		// POST below surfaces the real failure if it does not.
		c.logger.Warn("supplier check failed, attempting invoice creation anyway",
			zap.String("supplier", inv.VendorName),
			zap.Error(err))
	}

	doc := map[string]interface{}{
		"doctype":      purchaseInvoiceDoctype,
		"supplier":     inv.VendorName,
		"posting_date": inv.InvoiceDate.Format(postingDateLayout),
		"due_date":     inv.InvoiceDate.Format(postingDateLayout),
		"bill_no":      inv.InvoiceNumber,
		"bill_date":    inv.InvoiceDate.Format(postingDateLayout),
		"currency":     inv.Currency,
		"items":        toWireItems(inv.Items),
	}

	var resp docResponse
	if err := c.post(ctx, "/api/resource/"+url.PathEscape(purchaseInvoiceDoctype), doc, &resp); err != nil {
		return "", err
	}

	var created struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(resp.Data, &created); err != nil || created.Name == "" {
		return "", domainerrors.NewExternalError("erpnext", "created invoice response missing document name")
	}

	if riskScore != nil {
		c.attachRiskComment(ctx, created.Name, *riskScore, explanation)
	}

	return created.Name, nil
}

func (c *Client) ensureSupplier(ctx context.Context, supplier string) error {
	path := "/api/resource/Supplier/" + url.PathEscape(supplier)
	err := c.get(ctx, path, nil, &docResponse{})
	if err == nil {
		return nil
	}
	if !domainerrors.IsType(err, domainerrors.ErrorTypeNotFound) {
		return err
	}

	body := map[string]string{
		"supplier_name":  supplier,
		"supplier_type":  "Company",
		"supplier_group": "All Supplier Groups",
	}
	return c.post(ctx, "/api/resource/Supplier", body, &docResponse{})
}

func (c *Client) attachRiskComment(ctx context.Context, invoiceName string, score int, explanation *string) {
	content := fmt.Sprintf("Risk Score: %d/100", score)
	if explanation != nil && *explanation != "" {
		content += "\n\n" + *explanation
	}

	body := map[string]string{
		"doctype":           "Comment",
		"reference_doctype": purchaseInvoiceDoctype,
		"reference_name":    invoiceName,
		"content":           content,
		"comment_type":      "Comment",
	}
	if err := c.post(ctx, "/api/resource/Comment", body, &docResponse{}); err != nil {
		c.logger.Warn("failed to attach risk comment",
			zap.String("invoice", invoiceName),
			zap.Error(err))
	}
}

func toWireItems(items []invoice.LineItem) []purchaseInvItem {
	wire := make([]purchaseInvItem, 0, len(items))
	for _, item := range items {
		qty, _ := decimal.NewFromFloat(item.Quantity).Float64()
		rate, _ := item.UnitPrice.Float64()
		amount, _ := item.TotalPrice.Float64()
		wire = append(wire, purchaseInvItem{
			ItemCode: item.Name,
			ItemName: item.Name,
			Qty:      qty,
			Rate:     rate,
			Amount:   amount,
		})
	}
	return wire
}

// toDomain maps an ERPNext document to the domain invoice. Item names fall
// back from item_name to item_code; a missing posting date maps to the zero
// time rather than "now" so cached history stays deterministic.
func (c *Client) toDomain(doc *purchaseInvoiceDoc) (*invoice.Invoice, error) {
	if doc.Supplier == "" {
		return nil, fmt.Errorf("purchase invoice %q has no supplier", doc.Name)
	}

	var invoiceDate time.Time
	if doc.PostingDate != "" {
		parsed, err := time.Parse(postingDateLayout, doc.PostingDate)
		if err != nil {
			return nil, fmt.Errorf("purchase invoice %q has invalid posting date %q", doc.Name, doc.PostingDate)
		}
		invoiceDate = parsed
	}

	currency := doc.Currency
	if currency == "" {
		currency = "USD"
	}

	items := make([]invoice.LineItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		name := item.ItemName
		if name == "" {
			name = item.ItemCode
		}
		items = append(items, invoice.LineItem{
			Name:       name,
			Quantity:   item.Qty,
			UnitPrice:  decimal.NewFromFloat(item.Rate),
			TotalPrice: decimal.NewFromFloat(item.Amount),
		})
	}

	now := time.Now().UTC()
	return &invoice.Invoice{
		ID:            uuid.New(),
		VendorName:    doc.Supplier,
		InvoiceNumber: doc.Name,
		InvoiceDate:   invoiceDate,
		Currency:      currency,
		TotalAmount:   decimal.NewFromFloat(doc.GrandTotal),
		Items:         items,
		UploadedAt:    now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// HTTP plumbing

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "token "+c.apiKey+":"+c.apiSecret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domainerrors.NewExternalError("erpnext", "failed to reach ERPNext").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.errorFromResponse(req, resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return domainerrors.NewExternalError("erpnext", "failed to decode response").WithCause(err)
		}
	}

	return nil
}

func (c *Client) errorFromResponse(req *http.Request, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domainerrors.NewExternalError("erpnext",
			"API key or secret rejected; regenerate keys under User > Settings > API Access")
	case http.StatusNotFound:
		return domainerrors.NewNotFoundError("ERPNext document")
	}

	// Frappe error payloads carry one of several message fields
	var frappeErr struct {
		Message   string `json:"message"`
		Exception string `json:"exception"`
		ExcType   string `json:"exc_type"`
	}
	detail := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &frappeErr); err == nil {
		for _, m := range []string{frappeErr.Message, frappeErr.Exception, frappeErr.ExcType} {
			if m != "" {
				detail = m
				break
			}
		}
	}

	c.logger.Error("erpnext request failed",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.String("detail", detail))

	return domainerrors.NewExternalError("erpnext",
		fmt.Sprintf("request failed with status %d: %s", resp.StatusCode, detail))
}

package rest

import (
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/invoice-anomaly-backend/internal/domain/anomaly"
	domaininvoice "github.com/davidleathers/invoice-anomaly-backend/internal/domain/invoice"
)

// ErrorResponse is the envelope for all error payloads
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine-readable error information
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// LineItemResponse represents a line item in API responses
type LineItemResponse struct {
	Name       string  `json:"name"`
	Quantity   float64 `json:"quantity"`
	UnitPrice  string  `json:"unit_price"`
	TotalPrice string  `json:"total_price"`
}

// InvoiceResponse represents an invoice in API responses
type InvoiceResponse struct {
	ID                 uuid.UUID          `json:"id"`
	VendorName         string             `json:"vendor_name"`
	InvoiceNumber      string             `json:"invoice_number"`
	InvoiceDate        time.Time          `json:"invoice_date"`
	Currency           string             `json:"currency"`
	TotalAmount        string             `json:"total_amount"`
	Items              []LineItemResponse `json:"items"`
	UploadedAt         time.Time          `json:"uploaded_at"`
	Suspicious         bool               `json:"is_suspicious"`
	RiskScore          *int               `json:"risk_score,omitempty"`
	AnomalyExplanation *string            `json:"anomaly_explanation,omitempty"`
	SubmittedToERP     bool               `json:"submitted_to_erpnext"`
	ERPInvoiceName     *string            `json:"erpnext_invoice_name,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// AnomalyResponse represents a single detected anomaly
type AnomalyResponse struct {
	Kind          string `json:"kind"`
	ItemName      string `json:"item_name,omitempty"`
	Severity      int    `json:"severity"`
	Description   string `json:"description"`
	Informational bool   `json:"informational,omitempty"`
}

// AssessmentResponse represents the result of an anomaly analysis
type AssessmentResponse struct {
	RiskScore           int               `json:"risk_score"`
	Suspicious          bool              `json:"is_suspicious"`
	Status              string            `json:"status"`
	Anomalies           []AnomalyResponse `json:"anomalies"`
	Explanation         []string          `json:"explanation"`
	InsufficientHistory bool              `json:"insufficient_history,omitempty"`
}

// AnalysisResponse pairs an invoice with its assessment
type AnalysisResponse struct {
	Invoice    InvoiceResponse    `json:"invoice"`
	Assessment AssessmentResponse `json:"assessment"`
}

// ListInvoicesResponse wraps the invoice collection
type ListInvoicesResponse struct {
	Items []InvoiceResponse `json:"items"`
	Total int               `json:"total"`
}

func toInvoiceResponse(inv *domaininvoice.Invoice) InvoiceResponse {
	items := make([]LineItemResponse, 0, len(inv.Items))
	for _, item := range inv.Items {
		items = append(items, LineItemResponse{
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice.StringFixed(2),
			TotalPrice: item.TotalPrice.StringFixed(2),
		})
	}

	return InvoiceResponse{
		ID:                 inv.ID,
		VendorName:         inv.VendorName,
		InvoiceNumber:      inv.InvoiceNumber,
		InvoiceDate:        inv.InvoiceDate,
		Currency:           inv.Currency,
		TotalAmount:        inv.TotalAmount.StringFixed(2),
		Items:              items,
		UploadedAt:         inv.UploadedAt,
		Suspicious:         inv.Suspicious,
		RiskScore:          inv.RiskScore,
		AnomalyExplanation: inv.AnomalyExplanation,
		SubmittedToERP:     inv.SubmittedToERP,
		ERPInvoiceName:     inv.ERPInvoiceName,
		CreatedAt:          inv.CreatedAt,
		UpdatedAt:          inv.UpdatedAt,
	}
}

func toAssessmentResponse(a *anomaly.Assessment) AssessmentResponse {
	anomalies := make([]AnomalyResponse, 0, len(a.Anomalies))
	for _, an := range a.Anomalies {
		anomalies = append(anomalies, AnomalyResponse{
			Kind:          string(an.Kind),
			ItemName:      an.ItemName,
			Severity:      an.Severity,
			Description:   an.Description,
			Informational: an.Informational,
		})
	}

	return AssessmentResponse{
		RiskScore:           a.RiskScore,
		Suspicious:          a.Suspicious,
		Status:              a.Status(),
		Anomalies:           anomalies,
		Explanation:         a.Explanation,
		InsufficientHistory: a.InsufficientHistory,
	}
}

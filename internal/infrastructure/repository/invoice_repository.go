package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domainerrors "github.com/davidleathers/invoice-anomaly-backend/internal/domain/errors"
	"github.com/davidleathers/invoice-anomaly-backend/internal/domain/invoice"
)

// invoiceRepository implements InvoiceRepository using PostgreSQL
type invoiceRepository struct {
	db interface {
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	}
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *sql.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

// NewInvoiceRepositoryWithTx creates a new invoice repository with a transaction
func NewInvoiceRepositoryWithTx(tx *sql.Tx) InvoiceRepository {
	return &invoiceRepository{db: tx}
}

const invoiceColumns = `
	id, vendor_name, invoice_number, invoice_date, currency, total_amount,
	items, uploaded_at, is_suspicious, risk_score, anomaly_explanation,
	submitted_to_erpnext, erpnext_invoice_name, created_at, updated_at
`

// Create inserts a new invoice
func (r *invoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	if err := inv.Validate(); err != nil {
		return err
	}

	itemsJSON, err := json.Marshal(inv.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal line items: %w", err)
	}

	query := `
		INSERT INTO invoices (
			id, vendor_name, invoice_number, invoice_date, currency,
			total_amount, items, uploaded_at, is_suspicious, risk_score,
			anomaly_explanation, submitted_to_erpnext, erpnext_invoice_name,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15
		)
	`

	_, err = r.db.ExecContext(ctx, query,
		inv.ID, inv.VendorName, inv.InvoiceNumber, inv.InvoiceDate, inv.Currency,
		inv.TotalAmount, itemsJSON, inv.UploadedAt, inv.Suspicious, inv.RiskScore,
		inv.AnomalyExplanation, inv.SubmittedToERP, inv.ERPInvoiceName,
		inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "invoices_vendor_number_key") {
			return domainerrors.ErrDuplicateInvoice
		}
		return fmt.Errorf("failed to insert invoice: %w", err)
	}

	return nil
}

// GetByID retrieves an invoice by its ID
func (r *invoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`

	inv, err := scanInvoice(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	return inv, nil
}

// List returns all invoices, newest upload first
func (r *invoiceRepository) List(ctx context.Context) ([]*invoice.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices ORDER BY uploaded_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	return collectInvoices(rows)
}

// Delete removes an invoice by ID
func (r *invoiceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete invoice: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return domainerrors.ErrInvoiceNotFound
	}

	return nil
}

// GetByVendor returns the history snapshot for a vendor: up to limit prior
// invoices, newest first, candidate excluded, case-insensitive vendor match.
func (r *invoiceRepository) GetByVendor(ctx context.Context, vendorName string, excludeID uuid.UUID, limit int) ([]*invoice.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE LOWER(TRIM(vendor_name)) = $1 AND id != $2
		ORDER BY invoice_date DESC, id
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, invoice.NormalizeVendorName(vendorName), excludeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get vendor history: %w", err)
	}
	defer rows.Close()

	return collectInvoices(rows)
}

// UpdateAnalysis persists the engine's verdict for an invoice
func (r *invoiceRepository) UpdateAnalysis(ctx context.Context, id uuid.UUID, suspicious bool, riskScore int, explanation string) error {
	query := `
		UPDATE invoices
		SET is_suspicious = $2, risk_score = $3, anomaly_explanation = $4, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, suspicious, riskScore, explanation)
	if err != nil {
		return fmt.Errorf("failed to update analysis: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return domainerrors.ErrInvoiceNotFound
	}

	return nil
}

// MarkSubmitted records a successful ERPNext submission
func (r *invoiceRepository) MarkSubmitted(ctx context.Context, id uuid.UUID, erpName string) error {
	query := `
		UPDATE invoices
		SET submitted_to_erpnext = TRUE, erpnext_invoice_name = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, erpName)
	if err != nil {
		return fmt.Errorf("failed to mark invoice submitted: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return domainerrors.ErrInvoiceNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInvoice(row rowScanner) (*invoice.Invoice, error) {
	var (
		inv       invoice.Invoice
		total     decimal.Decimal
		itemsJSON []byte
	)

	err := row.Scan(
		&inv.ID, &inv.VendorName, &inv.InvoiceNumber, &inv.InvoiceDate, &inv.Currency,
		&total, &itemsJSON, &inv.UploadedAt, &inv.Suspicious, &inv.RiskScore,
		&inv.AnomalyExplanation, &inv.SubmittedToERP, &inv.ERPInvoiceName,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	inv.TotalAmount = total
	if len(itemsJSON) > 0 {
		if err := json.Unmarshal(itemsJSON, &inv.Items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal line items: %w", err)
		}
	}

	return &inv, nil
}

func collectInvoices(rows *sql.Rows) ([]*invoice.Invoice, error) {
	var invoices []*invoice.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invoices: %w", err)
	}
	return invoices, nil
}

// Package invoice orchestrates the invoice lifecycle: ingestion, anomaly
// analysis against vendor history, and ERPNext submission. The detection
// engine itself stays pure; this package owns all I/O around it.
package invoice

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/invoice-anomaly-backend/internal/domain/anomaly"
	domainerrors "github.com/davidleathers/invoice-anomaly-backend/internal/domain/errors"
	domaininvoice "github.com/davidleathers/invoice-anomaly-backend/internal/domain/invoice"
)

// Service implements the invoice lifecycle operations
type Service struct {
	repo          Repository
	cache         HistoryCache
	engine        Engine
	erp           ERPClient
	events        EventPublisher
	historyWindow int
	logger        *zap.Logger
}

// NewService wires the invoice service. cache, erp and events may be nil;
// the service then skips caching, rejects ERP operations and drops events.
func NewService(repo Repository, cache HistoryCache, engine Engine, erp ERPClient, events EventPublisher, historyWindow int, logger *zap.Logger) *Service {
	if historyWindow <= 0 {
		historyWindow = 50
	}
	return &Service{
		repo:          repo,
		cache:         cache,
		engine:        engine,
		erp:           erp,
		events:        events,
		historyWindow: historyWindow,
		logger:        logger,
	}
}

// Ingest stores a new invoice, analyzes it against the vendor's existing
// history and persists the verdict. The stored history snapshot excludes the
// new invoice itself, so ingestion order does not skew the baseline.
func (s *Service) Ingest(ctx context.Context, inv *domaininvoice.Invoice) (*domaininvoice.Invoice, *anomaly.Assessment, error) {
	if inv == nil {
		return nil, nil, domainerrors.ErrMalformedInvoice
	}

	if err := s.repo.Create(ctx, inv); err != nil {
		return nil, nil, err
	}
	invoicesIngested.Inc()

	// The vendor's cached snapshot predates this invoice
	s.invalidateHistory(ctx, inv.VendorName)

	assessment, err := s.analyzeAndPersist(ctx, inv)
	if err != nil {
		// The invoice is stored; surface the analysis failure without
		// losing the upload.
		s.logger.Error("analysis failed after ingest",
			zap.String("invoice_id", inv.ID.String()),
			zap.Error(err))
		return inv, nil, err
	}

	return inv, assessment, nil
}

// Analyze re-runs anomaly detection for a stored invoice and persists the
// refreshed verdict.
func (s *Service) Analyze(ctx context.Context, id uuid.UUID) (*domaininvoice.Invoice, *anomaly.Assessment, error) {
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	assessment, err := s.analyzeAndPersist(ctx, inv)
	if err != nil {
		return nil, nil, err
	}

	return inv, assessment, nil
}

func (s *Service) analyzeAndPersist(ctx context.Context, inv *domaininvoice.Invoice) (*anomaly.Assessment, error) {
	start := time.Now()

	history, err := s.vendorHistory(ctx, inv.VendorName, inv.ID)
	if err != nil {
		return nil, err
	}

	assessment, err := s.engine.Analyze(inv, history)
	if err != nil {
		return nil, err
	}
	analysisDuration.Observe(time.Since(start).Seconds())
	analysesTotal.WithLabelValues(assessment.Status()).Inc()

	explanation := assessment.ExplanationText()
	if err := s.repo.UpdateAnalysis(ctx, inv.ID, assessment.Suspicious, assessment.RiskScore, explanation); err != nil {
		return nil, err
	}
	inv.SetAnalysis(assessment.Suspicious, assessment.RiskScore, explanation)

	s.logger.Info("invoice analyzed",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("vendor", inv.VendorName),
		zap.Int("risk_score", assessment.RiskScore),
		zap.Bool("suspicious", assessment.Suspicious),
		zap.Int("anomalies", len(assessment.Anomalies)),
		zap.Int("history_size", len(history)))

	if s.events != nil {
		s.events.PublishAssessment(inv, assessment)
	}

	return assessment, nil
}

// vendorHistory returns the vendor's baseline snapshot, serving from cache
// when possible.
func (s *Service) vendorHistory(ctx context.Context, vendorName string, excludeID uuid.UUID) ([]*domaininvoice.Invoice, error) {
	if s.cache != nil {
		history, err := s.cache.GetHistory(ctx, vendorName)
		if err == nil {
			historyCacheLookups.WithLabelValues("hit").Inc()
			return filterInvoice(history, excludeID), nil
		}
		historyCacheLookups.WithLabelValues("miss").Inc()
	}

	// uuid.Nil never matches a stored row, so the cacheable snapshot is
	// the vendor's full history; exclusion happens in memory per caller.
	history, err := s.repo.GetByVendor(ctx, vendorName, uuid.Nil, s.historyWindow)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetHistory(ctx, vendorName, history); err != nil {
			s.logger.Warn("failed to cache vendor history",
				zap.String("vendor", vendorName),
				zap.Error(err))
		}
	}

	return filterInvoice(history, excludeID), nil
}

func filterInvoice(history []*domaininvoice.Invoice, excludeID uuid.UUID) []*domaininvoice.Invoice {
	if excludeID == uuid.Nil {
		return history
	}
	filtered := make([]*domaininvoice.Invoice, 0, len(history))
	for _, inv := range history {
		if inv.ID != excludeID {
			filtered = append(filtered, inv)
		}
	}
	return filtered
}

func (s *Service) invalidateHistory(ctx context.Context, vendorName string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, vendorName); err != nil {
		s.logger.Warn("failed to invalidate vendor history cache",
			zap.String("vendor", vendorName),
			zap.Error(err))
	}
}

// Get returns a stored invoice by ID
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domaininvoice.Invoice, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns all stored invoices, newest upload first
func (s *Service) List(ctx context.Context) ([]*domaininvoice.Invoice, error) {
	return s.repo.List(ctx)
}

// Delete removes a stored invoice and drops the vendor's cached history
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.invalidateHistory(ctx, inv.VendorName)
	return nil
}

// SubmitToERP creates the invoice in ERPNext, carrying the risk assessment
// along, and records the submission locally.
func (s *Service) SubmitToERP(ctx context.Context, id uuid.UUID) (*domaininvoice.Invoice, error) {
	if s.erp == nil {
		return nil, domainerrors.ErrERPNotConfigured
	}

	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.SubmittedToERP {
		return nil, domainerrors.ErrAlreadySubmitted
	}

	erpName, err := s.erp.CreateInvoice(ctx, inv, inv.RiskScore, inv.AnomalyExplanation)
	if err != nil {
		erpSubmissions.WithLabelValues("failed").Inc()
		return nil, err
	}

	if err := s.repo.MarkSubmitted(ctx, id, erpName); err != nil {
		// The ERP document exists but the local flag is stale; the next
		// submit attempt returns ErrAlreadySubmitted only after a
		// successful MarkSubmitted, so log loudly.
		s.logger.Error("invoice created in ERPNext but local submission flag not persisted",
			zap.String("invoice_id", id.String()),
			zap.String("erpnext_name", erpName),
			zap.Error(err))
		return nil, err
	}
	erpSubmissions.WithLabelValues("created").Inc()
	inv.MarkSubmitted(erpName)

	s.logger.Info("invoice submitted to erpnext",
		zap.String("invoice_id", id.String()),
		zap.String("erpnext_name", erpName))

	return inv, nil
}

// AnalyzeERPInvoice fetches a Purchase Invoice and its supplier history from
// ERPNext and scores it without storing anything locally.
func (s *Service) AnalyzeERPInvoice(ctx context.Context, erpInvoiceName string) (*domaininvoice.Invoice, *anomaly.Assessment, error) {
	if s.erp == nil {
		return nil, nil, domainerrors.ErrERPNotConfigured
	}

	inv, err := s.erp.FetchInvoice(ctx, erpInvoiceName)
	if err != nil {
		return nil, nil, err
	}

	history, err := s.erp.FetchSupplierHistory(ctx, inv.VendorName, erpInvoiceName, s.historyWindow)
	if err != nil {
		return nil, nil, err
	}

	assessment, err := s.engine.Analyze(inv, history)
	if err != nil {
		return nil, nil, err
	}
	analysesTotal.WithLabelValues(assessment.Status()).Inc()

	inv.SetAnalysis(assessment.Suspicious, assessment.RiskScore, assessment.ExplanationText())

	s.logger.Info("erpnext invoice analyzed",
		zap.String("erpnext_name", erpInvoiceName),
		zap.String("supplier", inv.VendorName),
		zap.Int("risk_score", assessment.RiskScore),
		zap.Bool("suspicious", assessment.Suspicious))

	return inv, assessment, nil
}

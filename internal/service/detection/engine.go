// Package detection implements the invoice anomaly engine: the comparison of
// a candidate invoice against the vendor's historical invoices through four
// independent rules, aggregated into a bounded risk score with human-readable
// justification.
//
// The engine is synchronous, stateless and pure: no I/O, no clock reads, no
// shared mutable state. Concurrent callers need no coordination. Assembling a
// consistent history snapshot (same vendor, candidate excluded, windowed) is
// the caller's job.
package detection

import (
	"github.com/davidleathers/invoice-anomaly-backend/internal/domain/anomaly"
	"github.com/davidleathers/invoice-anomaly-backend/internal/domain/errors"
	"github.com/davidleathers/invoice-anomaly-backend/internal/domain/invoice"
)

// Engine runs the four detection rules with a fixed configuration.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine with the given thresholds.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Config returns the thresholds the engine was built with.
func (e *Engine) Config() Config {
	return e.cfg
}

// Analyze scores a candidate invoice against its vendor history. History must
// already exclude the candidate itself. Empty history is valid: every rule is
// suppressed and the assessment is flagged as insufficient-history rather than
// safe. The only rejected input is a structurally malformed candidate.
func (e *Engine) Analyze(candidate *invoice.Invoice, history []*invoice.Invoice) (*anomaly.Assessment, error) {
	if candidate == nil {
		return nil, errors.ErrMalformedInvoice
	}
	if err := candidate.Validate(); err != nil {
		return nil, err
	}

	ix := buildHistoryIndex(history)

	// Detection order is fixed so identical inputs yield identical output.
	var anomalies []anomaly.Anomaly
	anomalies = append(anomalies, detectPriceIncreases(e.cfg, candidate, ix)...)
	anomalies = append(anomalies, detectQuantityDeviations(e.cfg, candidate, ix)...)
	anomalies = append(anomalies, detectNewItems(e.cfg, candidate, ix)...)
	anomalies = append(anomalies, detectAmountDeviation(e.cfg, candidate, ix)...)

	score, suspicious := aggregate(e.cfg, anomalies)
	insufficientHistory := ix.invoiceCount == 0

	return &anomaly.Assessment{
		Anomalies:           anomalies,
		RiskScore:           score,
		Suspicious:          suspicious,
		Explanation:         renderExplanation(anomalies, score, insufficientHistory),
		InsufficientHistory: insufficientHistory,
	}, nil
}

package anomaly

import "strings"

// Kind identifies which detection rule produced an anomaly
type Kind string

const (
	KindPriceIncrease     Kind = "price_increase"
	KindQuantityDeviation Kind = "quantity_deviation"
	KindNewItem           Kind = "new_item"
	KindAmountDeviation   Kind = "amount_deviation"
)

// Anomaly is one detection record. Severity is 0-100, monotonic with how
// extreme the deviation is. Informational anomalies are reported to the
// caller but excluded from risk scoring (e.g. a total amount below the
// historical average).
type Anomaly struct {
	Kind          Kind   `json:"kind"`
	ItemName      string `json:"item_name,omitempty"`
	Severity      int    `json:"severity"`
	Description   string `json:"description"`
	Informational bool   `json:"informational,omitempty"`
}

// Assessment is the engine's sole output: a pure function of
// (candidate, history). Anomalies keep detection order; Explanation is
// display-ready plain text, one line per entry.
type Assessment struct {
	Anomalies           []Anomaly `json:"anomalies"`
	RiskScore           int       `json:"risk_score"`
	Suspicious          bool      `json:"is_suspicious"`
	Explanation         []string  `json:"explanation"`
	InsufficientHistory bool      `json:"insufficient_history"`
}

// Status reports the verdict the way downstream bookkeeping systems expect it.
func (a *Assessment) Status() string {
	if a.Suspicious {
		return "suspicious"
	}
	return "normal"
}

// ExplanationText joins the explanation lines for single-field persistence.
func (a *Assessment) ExplanationText() string {
	return strings.Join(a.Explanation, "\n")
}

// Scorable reports whether an anomaly participates in risk scoring.
func (an Anomaly) Scorable() bool {
	return !an.Informational
}

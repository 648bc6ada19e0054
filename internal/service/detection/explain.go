package detection

import (
	"fmt"
	"sort"

	"github.com/davidleathers/invoice-anomaly-backend/internal/domain/anomaly"
)

// insufficientHistoryLine distinguishes "unverifiable" from "verified safe";
// callers must never read an empty-history assessment as a clean bill of health.
const insufficientHistoryLine = "No historical invoices for this vendor. Baseline could not be established; review manually."

const noAnomaliesLine = "No anomalies detected. Invoice appears normal."

// renderExplanation produces the display-ready lines: risk level header,
// anomaly count, then one numbered line per anomaly, highest severity first.
// Output is plain text; web UI, CLI and third-party comments consume it verbatim.
func renderExplanation(anomalies []anomaly.Anomaly, score int, insufficientHistory bool) []string {
	if insufficientHistory {
		return []string{insufficientHistoryLine}
	}

	if len(anomalies) == 0 {
		return []string{noAnomaliesLine}
	}

	lines := []string{
		fmt.Sprintf("%s (Score: %d/100)", riskLevel(score), score),
		fmt.Sprintf("Detected %d anomaly/ies:", len(anomalies)),
	}

	// Stable sort keeps detection order among equal severities, so identical
	// inputs always render identical output.
	ordered := make([]anomaly.Anomaly, len(anomalies))
	copy(ordered, anomalies)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Severity > ordered[j].Severity
	})

	for i, an := range ordered {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, an.Description))
	}

	return lines
}

func riskLevel(score int) string {
	switch {
	case score >= 70:
		return "HIGH RISK"
	case score >= 50:
		return "MODERATE RISK"
	default:
		return "LOW RISK"
	}
}

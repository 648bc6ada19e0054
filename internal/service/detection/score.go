package detection

import (
	"github.com/davidleathers/invoice-anomaly-backend/internal/domain/anomaly"
)

// aggregate folds the detector outputs into a single 0-100 risk score. The
// single worst signal dominates; each additional distinct anomaly kind adds a
// fixed bonus, since independent corroborating deviations are far more
// indicative of fraud than one borderline signal. Informational anomalies are
// excluded. The result is monotonic both in the worst severity and in the
// number of distinct kinds.
func aggregate(cfg Config, anomalies []anomaly.Anomaly) (score int, suspicious bool) {
	maxSeverity := 0
	kinds := make(map[anomaly.Kind]struct{})

	for _, an := range anomalies {
		if !an.Scorable() {
			continue
		}
		if an.Severity > maxSeverity {
			maxSeverity = an.Severity
		}
		kinds[an.Kind] = struct{}{}
	}

	if len(kinds) == 0 {
		return 0, false
	}

	score = maxSeverity + cfg.DistinctKindBonus*(len(kinds)-1)
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	return score, score >= cfg.SuspiciousScore
}

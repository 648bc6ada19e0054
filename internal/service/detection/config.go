package detection

// Config holds the detection thresholds. Callers pass it explicitly into the
// engine so boundary values can be probed precisely in tests; the values here
// are fractions (0.20 = 20%) except where noted.
type Config struct {
	// PriceIncreaseThreshold is the fraction above the historical average
	// unit price at which a price increase is flagged (strict greater-than).
	PriceIncreaseThreshold float64 `koanf:"price_increase_threshold"`

	// QuantityAvgMultiplier flags quantities above this multiple of the
	// historical average for the item.
	QuantityAvgMultiplier float64 `koanf:"quantity_avg_multiplier"`

	// QuantityMaxMultiplier flags quantities above this multiple of the
	// historical maximum for the item.
	QuantityMaxMultiplier float64 `koanf:"quantity_max_multiplier"`

	// AmountDeviationThreshold is the absolute fraction the invoice total may
	// deviate from the historical average before being flagged.
	AmountDeviationThreshold float64 `koanf:"amount_deviation_threshold"`

	// SuspiciousScore is the aggregate risk score (0-100) at which an
	// invoice is marked suspicious.
	SuspiciousScore int `koanf:"suspicious_score"`

	// DistinctKindBonus is added to the base score for every distinct
	// anomaly kind beyond the first, rewarding corroborating signals.
	DistinctKindBonus int `koanf:"distinct_kind_bonus"`
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		PriceIncreaseThreshold:   0.20,
		QuantityAvgMultiplier:    2.0,
		QuantityMaxMultiplier:    1.5,
		AmountDeviationThreshold: 0.30,
		SuspiciousScore:          50,
		DistinctKindBonus:        10,
	}
}

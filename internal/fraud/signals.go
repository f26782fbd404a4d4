package fraud

// SignalConfig defines one weighted fraud signal. The expression is a
// CEL predicate over the request facts; when it holds, the signal's
// weight is added to the fraud score.
type SignalConfig struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Expression  string  `json:"expression"`
	Weight      float64 `json:"weight"`
	Reason      string  `json:"reason"`
	Enabled     bool    `json:"enabled"`
}

// BuiltinSignals returns the standard signal set. The weights are
// independent and additive; the scorer caps the total at 1.0.
func BuiltinSignals() []*SignalConfig {
	return []*SignalConfig{
		{
			ID:          "high-value",
			Description: "High-value item",
			Expression:  "price > 500.0",
			Weight:      0.10,
			Reason:      "High-value item",
			Enabled:     true,
		},
		{
			ID:          "very-high-value",
			Description: "Very high-value item, layered on top of high-value",
			Expression:  "price > 1000.0",
			Weight:      0.05,
			Reason:      "Very high-value item",
			Enabled:     true,
		},
		{
			ID:          "rapid-return",
			Description: "Return submitted within a day of purchase",
			Expression:  "hours_since_purchase < 24.0",
			Weight:      0.20,
			Reason:      "Return submitted less than 24 hours after purchase",
			Enabled:     true,
		},
		{
			ID:          "high-value-remorse",
			Description: "Buyer's remorse on an expensive item",
			Expression:  `reason == "changed_mind" && price > 200.0`,
			Weight:      0.15,
			Reason:      "Changed-mind return on an item over $200",
			Enabled:     true,
		},
		{
			ID:          "serial-returner",
			Description: "Repeated returns in the same category",
			Expression:  "recent_returns >= 3",
			Weight:      0.20,
			Reason:      "3 or more returns in this category in the lookback window",
			Enabled:     true,
		},
	}
}

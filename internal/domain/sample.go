package domain

// SpreadSample is one monitor tick archived for post-trade analysis.
// Corresponds to the spread_samples table in ClickHouse.
type SpreadSample struct {
	ExecutionID string  // owning execution
	ObservedAt  int64   // Unix timestamp in milliseconds
	BuyPrice    float64 // ask on the buy venue
	SellPrice   float64 // bid on the sell venue
	SpreadPct   float64 // (sell - buy) / buy * 100
}

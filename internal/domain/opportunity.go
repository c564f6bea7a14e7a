package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Opportunity is an immutable snapshot of a cross-venue price discrepancy
// at detection time. Corresponds to the opportunities table in PostgreSQL.
type Opportunity struct {
	OpportunityID string          // PRIMARY KEY, deterministic hash
	TokenSymbol   string          // base asset, e.g. "ETH"
	Pair          string          // venue pair symbol, e.g. "ETHUSDT"
	BuyVenue      string          // venue with the lower ask
	SellVenue     string          // venue with the higher bid
	BuyPrice      decimal.Decimal // ask on the buy venue at detection
	SellPrice     decimal.Decimal // bid on the sell venue at detection
	SpreadPct     decimal.Decimal // (sell - buy) / buy * 100
	Confidence    float64         // detector score in [0,1]
	Capital       decimal.Decimal // recommended capital in quote currency
	DetectedAt    int64           // Unix timestamp in milliseconds
}

// HasValidPrices reports whether both legs carry a positive price.
// A zero price is a data fault, not a tradeable state.
func (o Opportunity) HasValidPrices() bool {
	return o.BuyPrice.IsPositive() && o.SellPrice.IsPositive()
}

// QuoteAsset derives the quote currency from the pair symbol by stripping
// the base token prefix, e.g. ETHUSDT with token ETH yields USDT. Falls
// back to USDT when the pair does not follow the concatenated convention.
func (o Opportunity) QuoteAsset() string {
	if o.TokenSymbol != "" && strings.HasPrefix(o.Pair, o.TokenSymbol) {
		if quote := o.Pair[len(o.TokenSymbol):]; quote != "" {
			return quote
		}
	}
	return "USDT"
}

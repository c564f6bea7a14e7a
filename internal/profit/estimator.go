package profit

import (
	"context"
	"log"

	"github.com/shopspring/decimal"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
	"github.com/biodigitss-hash/CEXMasterP/internal/venue"
)

var hundred = decimal.NewFromInt(100)

// Estimator prices the fee legs of a candidate trade. Trading fees come
// from the venue's live taker rate, withdrawal and gas from configured
// defaults. Any live query failure falls back to the defaults, never to
// zero.
type Estimator struct {
	venues   *venue.Registry
	defaults domain.FeeDefaults
	logger   *log.Logger
}

// NewEstimator creates a fee estimator over the venue registry.
func NewEstimator(venues *venue.Registry, defaults domain.FeeDefaults, logger *log.Logger) *Estimator {
	if logger == nil {
		logger = log.Default()
	}
	return &Estimator{venues: venues, defaults: defaults, logger: logger}
}

// Quote prices all four fee components for trading the opportunity at the
// given capital.
func (e *Estimator) Quote(ctx context.Context, opp *domain.Opportunity, capital decimal.Decimal) domain.FeeQuote {
	return domain.FeeQuote{
		TradingFeeBuy:  e.legFee(ctx, opp.BuyVenue, opp.Pair, capital),
		TradingFeeSell: e.legFee(ctx, opp.SellVenue, opp.Pair, capital),
		WithdrawalFee:  e.defaults.WithdrawalFee,
		NetworkGas:     e.defaults.NetworkGas,
	}
}

func (e *Estimator) legFee(ctx context.Context, venueName, pair string, capital decimal.Decimal) decimal.Decimal {
	fallback := capital.Mul(e.defaults.TradingFeePct).Div(hundred)

	client, err := e.venues.Get(venueName)
	if err != nil {
		e.logger.Printf("fee quote: %v, using default taker rate", err)
		return fallback
	}

	rate, err := client.TakerFeeRate(ctx, pair)
	if err != nil {
		e.logger.Printf("fee quote: %s taker rate unavailable (%v), using default", venueName, err)
		return fallback
	}
	if !rate.IsPositive() {
		e.logger.Printf("fee quote: %s reported taker rate %s, using default", venueName, rate)
		return fallback
	}
	return capital.Mul(rate)
}

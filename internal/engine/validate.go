package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
	"github.com/biodigitss-hash/CEXMasterP/internal/profit"
	"github.com/biodigitss-hash/CEXMasterP/internal/venue"
)

// LiveQuotes is the pair of tickers an execution was admitted on.
type LiveQuotes struct {
	Buy  *venue.Ticker
	Sell *venue.Ticker
}

// checkPrices re-prices both legs and enforces the slippage tolerance
// against the detection snapshot. A market that moved past the tolerance
// is no longer the opportunity that was detected.
func checkPrices(ctx context.Context, buy, sell venue.Client, opp *domain.Opportunity, tolerancePct decimal.Decimal) (*LiveQuotes, error) {
	if !opp.HasValidPrices() {
		return nil, fmt.Errorf("%w: opportunity %s has prices buy=%s sell=%s",
			ErrValidation, opp.OpportunityID, opp.BuyPrice, opp.SellPrice)
	}
	buyTick, err := buy.Ticker(ctx, opp.Pair)
	if err != nil {
		return nil, fmt.Errorf("buy ticker on %s: %w", buy.Name(), err)
	}
	sellTick, err := sell.Ticker(ctx, opp.Pair)
	if err != nil {
		return nil, fmt.Errorf("sell ticker on %s: %w", sell.Name(), err)
	}
	if !buyTick.Ask.IsPositive() || !sellTick.Bid.IsPositive() {
		return nil, fmt.Errorf("%w: live quotes ask=%s on %s, bid=%s on %s",
			ErrValidation, buyTick.Ask, buy.Name(), sellTick.Bid, sell.Name())
	}
	if drift := driftPct(opp.BuyPrice, buyTick.Ask); drift.GreaterThan(tolerancePct) {
		return nil, fmt.Errorf("%w: buy price moved %s%% since detection (%s -> %s), tolerance %s%%",
			ErrValidation, drift.Round(4), opp.BuyPrice, buyTick.Ask, tolerancePct)
	}
	if drift := driftPct(opp.SellPrice, sellTick.Bid); drift.GreaterThan(tolerancePct) {
		return nil, fmt.Errorf("%w: sell price moved %s%% since detection (%s -> %s), tolerance %s%%",
			ErrValidation, drift.Round(4), opp.SellPrice, sellTick.Bid, tolerancePct)
	}
	return &LiveQuotes{Buy: buyTick, Sell: sellTick}, nil
}

// driftPct is the absolute percent move of live from the reference price.
func driftPct(ref, live decimal.Decimal) decimal.Decimal {
	return live.Sub(ref).Div(ref).Mul(hundred).Abs()
}

// validateOpportunity runs the full admission check: live prices within
// the slippage tolerance, then a positive net after estimated fees.
func validateOpportunity(ctx context.Context, gate *profit.Gate, buy, sell venue.Client, opp *domain.Opportunity, capital, tolerancePct decimal.Decimal) (*profit.Evaluation, *LiveQuotes, error) {
	quotes, err := checkPrices(ctx, buy, sell, opp, tolerancePct)
	if err != nil {
		return nil, nil, err
	}
	eval := gate.Check(ctx, opp, capital)
	if !eval.Profitable {
		return eval, quotes, fmt.Errorf("%w: %s", ErrNotProfitable, eval.Reason)
	}
	return eval, quotes, nil
}

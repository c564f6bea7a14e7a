package profit

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
)

// Evaluation is the priced outcome of a profitability check.
type Evaluation struct {
	Capital    decimal.Decimal
	Gross      decimal.Decimal // capital * spread%
	Fees       domain.FeeQuote
	Net        decimal.Decimal // gross minus all fees
	Profitable bool
	Reason     string // set when not profitable
}

// Details renders the evaluation for an audit step.
func (ev *Evaluation) Details() map[string]any {
	d := map[string]any{
		"capital":        ev.Capital.String(),
		"gross_profit":   ev.Gross.String(),
		"fee_buy":        ev.Fees.TradingFeeBuy.String(),
		"fee_sell":       ev.Fees.TradingFeeSell.String(),
		"withdrawal_fee": ev.Fees.WithdrawalFee.String(),
		"network_gas":    ev.Fees.NetworkGas.String(),
		"net_profit":     ev.Net.String(),
		"profitable":     ev.Profitable,
	}
	if ev.Reason != "" {
		d["reason"] = ev.Reason
	}
	return d
}

// Evaluate applies the net-profit rule: the trade is worth executing only
// when the gross spread at this capital clears every fee with something
// left over, and both legs priced at detection.
func Evaluate(opp *domain.Opportunity, capital decimal.Decimal, fees domain.FeeQuote) *Evaluation {
	ev := &Evaluation{Capital: capital, Fees: fees}

	if !opp.HasValidPrices() {
		ev.Reason = fmt.Sprintf("invalid prices: buy=%s sell=%s", opp.BuyPrice, opp.SellPrice)
		return ev
	}

	ev.Gross = capital.Mul(opp.SpreadPct).Div(hundred)
	ev.Net = ev.Gross.Sub(fees.Total())

	if !ev.Net.IsPositive() {
		ev.Reason = fmt.Sprintf("net %s USDT after %s USDT fees on %s USDT gross", ev.Net, fees.Total(), ev.Gross)
		return ev
	}

	ev.Profitable = true
	return ev
}

// Gate combines fee estimation and the net-profit rule.
type Gate struct {
	estimator *Estimator
}

// NewGate creates a profitability gate over the estimator.
func NewGate(estimator *Estimator) *Gate {
	return &Gate{estimator: estimator}
}

// Check quotes fees for the opportunity and evaluates profitability at the
// given capital.
func (g *Gate) Check(ctx context.Context, opp *domain.Opportunity, capital decimal.Decimal) *Evaluation {
	fees := g.estimator.Quote(ctx, opp, capital)
	return Evaluate(opp, capital, fees)
}

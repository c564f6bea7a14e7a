package domain

import "github.com/shopspring/decimal"

// FeeQuote is the expected cost breakdown for one candidate trade, all
// amounts in the quote currency.
type FeeQuote struct {
	TradingFeeBuy  decimal.Decimal // taker fee on the buy leg
	TradingFeeSell decimal.Decimal // taker fee on the sell leg
	WithdrawalFee  decimal.Decimal // venue withdrawal charge for the asset
	NetworkGas     decimal.Decimal // chain cost of the transfer legs
}

// Total is the sum of all fee components.
func (q FeeQuote) Total() decimal.Decimal {
	return q.TradingFeeBuy.Add(q.TradingFeeSell).Add(q.WithdrawalFee).Add(q.NetworkGas)
}

// FeeDefaults are the fallback rates used when a live venue fee query
// fails. All fields must stay non-zero, a zero fallback hides real costs
// from the profitability gate.
type FeeDefaults struct {
	TradingFeePct decimal.Decimal // per leg, % of capital
	WithdrawalFee decimal.Decimal // flat, quote currency
	NetworkGas    decimal.Decimal // flat, quote currency
}

// DefaultFeeDefaults returns conservative fallback rates (0.1% taker per
// leg, flat withdrawal and gas estimates).
func DefaultFeeDefaults() FeeDefaults {
	return FeeDefaults{
		TradingFeePct: decimal.NewFromFloat(0.1),
		WithdrawalFee: decimal.NewFromInt(5),
		NetworkGas:    decimal.NewFromFloat(1.5),
	}
}

package venue

import (
	"context"

	"github.com/shopspring/decimal"
)

// Client defines the exchange operations the execution engine depends on.
// binance implements it against the real REST API; stub is deterministic
// for simulated mode and tests.
type Client interface {
	// Name returns the venue identifier, e.g. "binance".
	Name() string

	// Ticker retrieves the current best bid/ask for a pair.
	Ticker(ctx context.Context, pair string) (*Ticker, error)

	// PlaceMarketOrder submits a market order and returns the fill.
	PlaceMarketOrder(ctx context.Context, order MarketOrder) (*FillResult, error)

	// OrderStatus retrieves the current fill state of an order.
	OrderStatus(ctx context.Context, pair, orderID string) (*FillResult, error)

	// Balance retrieves the free/locked balance for one asset.
	Balance(ctx context.Context, asset string) (*Balance, error)

	// TakerFeeRate retrieves the account taker fee as a fraction of notional.
	TakerFeeRate(ctx context.Context, pair string) (decimal.Decimal, error)

	// Withdraw requests an on-chain withdrawal and returns the venue's
	// withdrawal id.
	Withdraw(ctx context.Context, req WithdrawRequest) (string, error)

	// WithdrawalByID retrieves the state of a previously requested withdrawal.
	WithdrawalByID(ctx context.Context, asset, withdrawalID string) (*WithdrawalRecord, error)

	// FindDeposit looks for an inbound deposit crediting the given
	// transaction. Returns ErrDepositNotSeen while the venue has no record.
	FindDeposit(ctx context.Context, asset, txID string) (*DepositRecord, error)

	// DepositAddress retrieves the venue's deposit address for an asset.
	DepositAddress(ctx context.Context, asset string) (string, error)
}

// Ticker is a best bid/ask snapshot.
type Ticker struct {
	Pair string
	Bid  decimal.Decimal
	Ask  decimal.Decimal
	At   int64 // Unix timestamp in milliseconds
}

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// MarketOrder is a market order request. Exactly one of QuoteAmount (buy
// side: quote currency to spend) or BaseAmount (sell side: base asset to
// sell) must be positive.
type MarketOrder struct {
	Pair        string
	Side        OrderSide
	QuoteAmount decimal.Decimal
	BaseAmount  decimal.Decimal
}

// OrderStatus values reported in FillResult.
const (
	OrderStatusNew             = "new"
	OrderStatusPartiallyFilled = "partially_filled"
	OrderStatusFilled          = "filled"
	OrderStatusCanceled        = "canceled"
	OrderStatusRejected        = "rejected"
)

// FillResult is the venue's report of an order execution. Quantities are
// gross: the amount actually credited is the filled quantity minus
// Commission when CommissionAsset matches that side's receiving asset.
type FillResult struct {
	OrderID         string
	Pair            string
	Side            OrderSide
	Status          string
	BaseFilled      decimal.Decimal // base asset quantity filled
	QuoteAmount     decimal.Decimal // cumulative quote turned over
	AvgPrice        decimal.Decimal // QuoteAmount / BaseFilled, zero until filled
	Commission      decimal.Decimal
	CommissionAsset string
}

// Filled reports whether the order is completely executed.
func (f *FillResult) Filled() bool {
	return f.Status == OrderStatusFilled
}

// Details renders the fill for the execution step log.
func (f *FillResult) Details() map[string]any {
	return map[string]any{
		"order_id":         f.OrderID,
		"pair":             f.Pair,
		"side":             string(f.Side),
		"status":           f.Status,
		"base_filled":      f.BaseFilled.String(),
		"quote_amount":     f.QuoteAmount.String(),
		"avg_price":        f.AvgPrice.String(),
		"commission":       f.Commission.String(),
		"commission_asset": f.CommissionAsset,
	}
}

// Balance is one asset's balance on a venue.
type Balance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// WithdrawRequest asks a venue to send funds on-chain.
type WithdrawRequest struct {
	Asset   string
	Address string
	Amount  decimal.Decimal
	Network string // chain network code, venue default when empty
}

// Withdrawal states reported in WithdrawalRecord.
const (
	WithdrawalStatusPending   = "pending"
	WithdrawalStatusCompleted = "completed"
	WithdrawalStatusFailed    = "failed"
)

// WithdrawalRecord is the venue's view of an outbound transfer.
type WithdrawalRecord struct {
	ID      string
	Asset   string
	Amount  decimal.Decimal
	Fee     decimal.Decimal
	Address string
	TxID    string // empty until the venue broadcasts
	Status  string
}

// Deposit states reported in DepositRecord.
const (
	DepositStatusPending  = "pending"
	DepositStatusCredited = "credited"
)

// DepositRecord is the venue's view of an inbound transfer.
type DepositRecord struct {
	Asset      string
	Amount     decimal.Decimal
	TxID       string
	Status     string
	CreditedAt int64 // Unix timestamp in milliseconds, zero until credited
}

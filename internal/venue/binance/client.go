package binance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"

	"github.com/biodigitss-hash/CEXMasterP/internal/venue"
)

// Client implements venue.Client against the Binance spot REST API.
type Client struct {
	name    string
	network string
	api     *binance.Client
}

// Options configures the Binance client.
type Options struct {
	Name       string // venue name, defaults to "binance"
	APIKey     string
	APISecret  string
	Network    string // default withdrawal network, e.g. "ETH"
	UseTestnet bool
}

// NewClient creates a Binance spot client.
func NewClient(opts Options) *Client {
	if opts.Name == "" {
		opts.Name = "binance"
	}
	if opts.UseTestnet {
		binance.UseTestnet = true
	}
	return &Client{
		name:    opts.Name,
		network: opts.Network,
		api:     binance.NewClient(opts.APIKey, opts.APISecret),
	}
}

// Verify interface compliance at compile time.
var _ venue.Client = (*Client)(nil)

// Name returns the venue identifier.
func (c *Client) Name() string {
	return c.name
}

// Ticker retrieves the current best bid/ask for a pair.
func (c *Client) Ticker(ctx context.Context, pair string) (*venue.Ticker, error) {
	books, err := c.api.NewListBookTickersService().Symbol(pair).Do(ctx)
	if err != nil {
		return nil, c.wrap("ticker", err)
	}
	if len(books) == 0 {
		return nil, c.wrap("ticker", fmt.Errorf("no book ticker for %s", pair))
	}

	book := books[0]
	return &venue.Ticker{
		Pair: pair,
		Bid:  dec(book.BidPrice),
		Ask:  dec(book.AskPrice),
		At:   time.Now().UnixMilli(),
	}, nil
}

// PlaceMarketOrder submits a market order. Buys spend QuoteAmount of the
// quote currency; sells liquidate BaseAmount of the base asset.
func (c *Client) PlaceMarketOrder(ctx context.Context, order venue.MarketOrder) (*venue.FillResult, error) {
	svc := c.api.NewCreateOrderService().
		Symbol(order.Pair).
		Type(binance.OrderTypeMarket)

	switch order.Side {
	case venue.SideBuy:
		svc = svc.Side(binance.SideTypeBuy).QuoteOrderQty(order.QuoteAmount.String())
	case venue.SideSell:
		svc = svc.Side(binance.SideTypeSell).Quantity(order.BaseAmount.String())
	default:
		return nil, c.wrap("place order", fmt.Errorf("unknown side %q", order.Side))
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return nil, c.wrap("place order", err)
	}

	fill := &venue.FillResult{
		OrderID:     strconv.FormatInt(res.OrderID, 10),
		Pair:        order.Pair,
		Side:        order.Side,
		Status:      orderStatus(res.Status),
		BaseFilled:  dec(res.ExecutedQuantity),
		QuoteAmount: dec(res.CummulativeQuoteQuantity),
	}
	for _, f := range res.Fills {
		fill.Commission = fill.Commission.Add(dec(f.Commission))
		fill.CommissionAsset = f.CommissionAsset
	}
	if fill.BaseFilled.IsPositive() {
		fill.AvgPrice = fill.QuoteAmount.Div(fill.BaseFilled)
	}
	return fill, nil
}

// OrderStatus retrieves the current fill state of an order.
func (c *Client) OrderStatus(ctx context.Context, pair, orderID string) (*venue.FillResult, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return nil, c.wrap("order status", fmt.Errorf("malformed order id %q: %w", orderID, err))
	}

	order, err := c.api.NewGetOrderService().Symbol(pair).OrderID(id).Do(ctx)
	if err != nil {
		return nil, c.wrap("order status", err)
	}

	side := venue.SideBuy
	if order.Side == binance.SideTypeSell {
		side = venue.SideSell
	}
	fill := &venue.FillResult{
		OrderID:     orderID,
		Pair:        pair,
		Side:        side,
		Status:      orderStatus(order.Status),
		BaseFilled:  dec(order.ExecutedQuantity),
		QuoteAmount: dec(order.CummulativeQuoteQuantity),
	}
	if fill.BaseFilled.IsPositive() {
		fill.AvgPrice = fill.QuoteAmount.Div(fill.BaseFilled)
	}
	return fill, nil
}

// Balance retrieves the free/locked balance for one asset.
func (c *Client) Balance(ctx context.Context, asset string) (*venue.Balance, error) {
	account, err := c.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, c.wrap("balance", err)
	}

	for _, b := range account.Balances {
		if b.Asset == asset {
			return &venue.Balance{
				Asset:  asset,
				Free:   dec(b.Free),
				Locked: dec(b.Locked),
			}, nil
		}
	}
	return &venue.Balance{Asset: asset}, nil
}

// TakerFeeRate retrieves the account taker commission as a fraction.
// Binance reports commissions in basis points of 10000.
func (c *Client) TakerFeeRate(ctx context.Context, _ string) (decimal.Decimal, error) {
	account, err := c.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return decimal.Zero, c.wrap("taker fee", err)
	}
	return decimal.NewFromInt(account.TakerCommission).Div(decimal.NewFromInt(10000)), nil
}

// Withdraw requests an on-chain withdrawal.
func (c *Client) Withdraw(ctx context.Context, req venue.WithdrawRequest) (string, error) {
	network := req.Network
	if network == "" {
		network = c.network
	}

	svc := c.api.NewCreateWithdrawService().
		Coin(req.Asset).
		Address(req.Address).
		Amount(req.Amount.String())
	if network != "" {
		svc = svc.Network(network)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return "", c.wrap("withdraw", err)
	}
	return res.ID, nil
}

// WithdrawalByID retrieves the state of a previously requested withdrawal.
func (c *Client) WithdrawalByID(ctx context.Context, asset, withdrawalID string) (*venue.WithdrawalRecord, error) {
	withdraws, err := c.api.NewListWithdrawsService().Coin(asset).Do(ctx)
	if err != nil {
		return nil, c.wrap("withdrawal status", err)
	}

	for _, w := range withdraws {
		if w.ID != withdrawalID {
			continue
		}
		return &venue.WithdrawalRecord{
			ID:      w.ID,
			Asset:   w.Coin,
			Amount:  dec(w.Amount),
			Fee:     dec(w.TransactionFee),
			Address: w.Address,
			TxID:    w.TxID,
			Status:  withdrawalStatus(w.Status),
		}, nil
	}
	return nil, c.wrap("withdrawal status", fmt.Errorf("withdrawal %s not found", withdrawalID))
}

// FindDeposit looks for an inbound deposit with the given transaction id.
func (c *Client) FindDeposit(ctx context.Context, asset, txID string) (*venue.DepositRecord, error) {
	deposits, err := c.api.NewListDepositsService().Coin(asset).Do(ctx)
	if err != nil {
		return nil, c.wrap("find deposit", err)
	}

	for _, d := range deposits {
		if d.TxID != txID {
			continue
		}
		record := &venue.DepositRecord{
			Asset:  d.Coin,
			Amount: dec(d.Amount),
			TxID:   d.TxID,
			Status: venue.DepositStatusPending,
		}
		// 1 = success; 0 and 6 are still pending or locked.
		if d.Status == 1 {
			record.Status = venue.DepositStatusCredited
			record.CreditedAt = d.InsertTime
		}
		return record, nil
	}
	return nil, venue.ErrDepositNotSeen
}

// DepositAddress retrieves the venue's deposit address for an asset.
func (c *Client) DepositAddress(ctx context.Context, asset string) (string, error) {
	svc := c.api.NewGetDepositAddressService().Coin(asset)
	if c.network != "" {
		svc = svc.Network(c.network)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return "", c.wrap("deposit address", err)
	}
	return res.Address, nil
}

// wrap converts an API failure into a venue.Error carrying the Binance
// error code when one is present.
func (c *Client) wrap(op string, err error) error {
	ve := &venue.Error{Venue: c.name, Op: op, Err: err}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		ve.Code = apiErr.Code
	}
	return ve
}

// dec parses a Binance numeric string. Malformed values decode as zero,
// which the zero-price guards upstream reject.
func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func orderStatus(s binance.OrderStatusType) string {
	switch s {
	case binance.OrderStatusTypeNew:
		return venue.OrderStatusNew
	case binance.OrderStatusTypePartiallyFilled:
		return venue.OrderStatusPartiallyFilled
	case binance.OrderStatusTypeFilled:
		return venue.OrderStatusFilled
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeExpired:
		return venue.OrderStatusCanceled
	case binance.OrderStatusTypeRejected:
		return venue.OrderStatusRejected
	default:
		return string(s)
	}
}

// Binance withdrawal status codes: 6 completed, 5 failure, 1 cancelled,
// 3 rejected, everything else still in flight.
func withdrawalStatus(code int) string {
	switch code {
	case 6:
		return venue.WithdrawalStatusCompleted
	case 1, 3, 5:
		return venue.WithdrawalStatusFailed
	default:
		return venue.WithdrawalStatusPending
	}
}

package stub

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/biodigitss-hash/CEXMasterP/internal/venue"
)

// Client implements venue.Client deterministically for simulated mode and
// tests. Prices come from a scripted queue, orders fill instantly at the
// current book, withdrawals settle after a configurable number of polls and
// can feed deposits on a linked destination client.
type Client struct {
	mu   sync.Mutex
	name string

	// CommissionRate is the taker fee fraction applied to fills.
	CommissionRate decimal.Decimal
	// WithdrawalFee is debited on top of every withdrawal amount.
	WithdrawalFee decimal.Decimal
	// BroadcastAfter is how many status polls a withdrawal stays without a
	// TxID before it broadcasts and completes.
	BroadcastAfter int
	// CreditAfter is how many FindDeposit polls a known deposit stays
	// pending before it credits.
	CreditAfter int
	// FillAfter is how many OrderStatus polls a placed order reports
	// partially_filled before it reports filled. Zero fills in the
	// placement response. Balances settle at placement either way.
	FillAfter int

	pairs       map[string]pairInfo
	tickers     map[string][]*venue.Ticker
	balances    map[string]decimal.Decimal
	orders      map[string]*scriptedOrder
	withdrawals map[string]*scriptedWithdrawal
	deposits    map[string]*scriptedDeposit
	errs        map[string][]error

	sink   *Client // deposits from settled withdrawals land here
	nextID int
}

type pairInfo struct {
	base  string
	quote string
}

type scriptedWithdrawal struct {
	record *venue.WithdrawalRecord
	polls  int
}

type scriptedOrder struct {
	record *venue.FillResult
	polls  int
}

type scriptedDeposit struct {
	record *venue.DepositRecord
	polls  int
}

// NewClient creates a stub venue with the given name.
func NewClient(name string) *Client {
	return &Client{
		name:           name,
		CommissionRate: decimal.NewFromFloat(0.001),
		WithdrawalFee:  decimal.Zero,
		pairs:          make(map[string]pairInfo),
		tickers:        make(map[string][]*venue.Ticker),
		balances:       make(map[string]decimal.Decimal),
		orders:         make(map[string]*scriptedOrder),
		withdrawals:    make(map[string]*scriptedWithdrawal),
		deposits:       make(map[string]*scriptedDeposit),
		errs:           make(map[string][]error),
	}
}

// Verify interface compliance at compile time.
var _ venue.Client = (*Client)(nil)

// AddPair registers a tradeable pair and its base/quote split.
func (c *Client) AddPair(pair, base, quote string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairs[pair] = pairInfo{base: base, quote: quote}
}

// PushTicker appends a bid/ask snapshot to the pair's script. The last
// snapshot repeats once the script is exhausted.
func (c *Client) PushTicker(pair string, bid, ask decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tickers[pair] = append(c.tickers[pair], &venue.Ticker{Pair: pair, Bid: bid, Ask: ask})
}

// SetBalance sets the free balance for an asset.
func (c *Client) SetBalance(asset string, amount decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[asset] = amount
}

// FreeBalance reads the current free balance for an asset.
func (c *Client) FreeBalance(asset string) decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balances[asset]
}

// LinkDeposits makes settled withdrawals from this client appear as
// deposits on dest, keyed by the withdrawal TxID.
func (c *Client) LinkDeposits(dest *Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = dest
}

// FailNext queues an error for the next call of the given op. Ops use the
// method names in snake case: ticker, place_order, order_status, balance,
// taker_fee, withdraw, withdrawal_status, find_deposit, deposit_address.
func (c *Client) FailNext(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[op] = append(c.errs[op], err)
}

// AddDeposit registers an inbound deposit directly, for scripting arrivals
// that did not originate from a linked withdrawal.
func (c *Client) AddDeposit(asset string, amount decimal.Decimal, txID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addDepositLocked(asset, amount, txID)
}

func (c *Client) addDepositLocked(asset string, amount decimal.Decimal, txID string) {
	c.deposits[txID] = &scriptedDeposit{
		record: &venue.DepositRecord{
			Asset:  asset,
			Amount: amount,
			TxID:   txID,
			Status: venue.DepositStatusPending,
		},
	}
}

// Name returns the venue identifier.
func (c *Client) Name() string {
	return c.name
}

// Ticker pops the next scripted snapshot for the pair.
func (c *Client) Ticker(_ context.Context, pair string) (*venue.Ticker, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.popErr("ticker"); err != nil {
		return nil, err
	}

	script := c.tickers[pair]
	if len(script) == 0 {
		return nil, &venue.Error{Venue: c.name, Op: "ticker", Err: fmt.Errorf("no ticker scripted for %s", pair)}
	}

	tick := script[0]
	if len(script) > 1 {
		c.tickers[pair] = script[1:]
	}
	out := *tick
	out.At = time.Now().UnixMilli()
	return &out, nil
}

// PlaceMarketOrder fills instantly at the current scripted book: buys at
// the ask, sells at the bid, commission taken from the received asset.
func (c *Client) PlaceMarketOrder(ctx context.Context, order venue.MarketOrder) (*venue.FillResult, error) {
	c.mu.Lock()
	if err := c.popErr("place_order"); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	info, ok := c.pairs[order.Pair]
	c.mu.Unlock()
	if !ok {
		return nil, &venue.Error{Venue: c.name, Op: "place_order", Err: fmt.Errorf("unknown pair %s", order.Pair)}
	}

	tick, err := c.Ticker(ctx, order.Pair)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	fill := &venue.FillResult{
		OrderID: fmt.Sprintf("%s-order-%d", c.name, c.nextID),
		Pair:    order.Pair,
		Side:    order.Side,
		Status:  venue.OrderStatusFilled,
	}

	switch order.Side {
	case venue.SideBuy:
		if !order.QuoteAmount.IsPositive() {
			return nil, &venue.Error{Venue: c.name, Op: "place_order", Err: fmt.Errorf("buy needs positive quote amount")}
		}
		if c.balances[info.quote].LessThan(order.QuoteAmount) {
			return nil, &venue.Error{Venue: c.name, Op: "place_order", Err: fmt.Errorf("insufficient %s balance", info.quote)}
		}
		base := order.QuoteAmount.Div(tick.Ask)
		commission := base.Mul(c.CommissionRate)
		c.balances[info.quote] = c.balances[info.quote].Sub(order.QuoteAmount)
		c.balances[info.base] = c.balances[info.base].Add(base.Sub(commission))
		// Gross quantities in the fill, commission reported separately.
		fill.BaseFilled = base
		fill.QuoteAmount = order.QuoteAmount
		fill.AvgPrice = tick.Ask
		fill.Commission = commission
		fill.CommissionAsset = info.base

	case venue.SideSell:
		if !order.BaseAmount.IsPositive() {
			return nil, &venue.Error{Venue: c.name, Op: "place_order", Err: fmt.Errorf("sell needs positive base amount")}
		}
		if c.balances[info.base].LessThan(order.BaseAmount) {
			return nil, &venue.Error{Venue: c.name, Op: "place_order", Err: fmt.Errorf("insufficient %s balance", info.base)}
		}
		quote := order.BaseAmount.Mul(tick.Bid)
		commission := quote.Mul(c.CommissionRate)
		c.balances[info.base] = c.balances[info.base].Sub(order.BaseAmount)
		c.balances[info.quote] = c.balances[info.quote].Add(quote.Sub(commission))
		fill.BaseFilled = order.BaseAmount
		fill.QuoteAmount = quote
		fill.AvgPrice = tick.Bid
		fill.Commission = commission
		fill.CommissionAsset = info.quote

	default:
		return nil, &venue.Error{Venue: c.name, Op: "place_order", Err: fmt.Errorf("unknown side %q", order.Side)}
	}

	if c.FillAfter > 0 {
		fill.Status = venue.OrderStatusPartiallyFilled
	}
	stored := *fill
	c.orders[fill.OrderID] = &scriptedOrder{record: &stored}
	return fill, nil
}

// OrderStatus advances the scripted order one poll. Once past FillAfter
// an open order reports filled.
func (c *Client) OrderStatus(_ context.Context, _, orderID string) (*venue.FillResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.popErr("order_status"); err != nil {
		return nil, err
	}

	o, ok := c.orders[orderID]
	if !ok {
		return nil, &venue.Error{Venue: c.name, Op: "order_status", Err: fmt.Errorf("unknown order %s", orderID)}
	}

	if o.record.Status == venue.OrderStatusPartiallyFilled {
		o.polls++
		if o.polls >= c.FillAfter {
			o.record.Status = venue.OrderStatusFilled
		}
	}

	out := *o.record
	return &out, nil
}

// Balance returns the scripted balance for an asset.
func (c *Client) Balance(_ context.Context, asset string) (*venue.Balance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.popErr("balance"); err != nil {
		return nil, err
	}

	return &venue.Balance{Asset: asset, Free: c.balances[asset]}, nil
}

// TakerFeeRate returns the configured commission rate.
func (c *Client) TakerFeeRate(_ context.Context, _ string) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.popErr("taker_fee"); err != nil {
		return decimal.Zero, err
	}

	return c.CommissionRate, nil
}

// Withdraw debits the balance and opens a scripted withdrawal.
func (c *Client) Withdraw(_ context.Context, req venue.WithdrawRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.popErr("withdraw"); err != nil {
		return "", err
	}

	total := req.Amount.Add(c.WithdrawalFee)
	if c.balances[req.Asset].LessThan(total) {
		return "", &venue.Error{Venue: c.name, Op: "withdraw", Err: fmt.Errorf("insufficient %s balance", req.Asset)}
	}
	c.balances[req.Asset] = c.balances[req.Asset].Sub(total)

	c.nextID++
	id := fmt.Sprintf("%s-wd-%d", c.name, c.nextID)
	c.withdrawals[id] = &scriptedWithdrawal{
		record: &venue.WithdrawalRecord{
			ID:      id,
			Asset:   req.Asset,
			Amount:  req.Amount,
			Fee:     c.WithdrawalFee,
			Address: req.Address,
			Status:  venue.WithdrawalStatusPending,
		},
	}
	return id, nil
}

// WithdrawalByID advances the scripted withdrawal one poll. Once past
// BroadcastAfter it broadcasts, completes and registers a deposit on the
// linked destination.
func (c *Client) WithdrawalByID(_ context.Context, _, withdrawalID string) (*venue.WithdrawalRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.popErr("withdrawal_status"); err != nil {
		return nil, err
	}

	w, ok := c.withdrawals[withdrawalID]
	if !ok {
		return nil, &venue.Error{Venue: c.name, Op: "withdrawal_status", Err: fmt.Errorf("unknown withdrawal %s", withdrawalID)}
	}

	if w.record.Status == venue.WithdrawalStatusPending {
		w.polls++
		if w.polls > c.BroadcastAfter {
			w.record.TxID = fmt.Sprintf("%s-tx-%s", c.name, withdrawalID)
			w.record.Status = venue.WithdrawalStatusCompleted
			if c.sink != nil {
				c.sink.mu.Lock()
				c.sink.addDepositLocked(w.record.Asset, w.record.Amount, w.record.TxID)
				c.sink.mu.Unlock()
			}
		}
	}

	out := *w.record
	return &out, nil
}

// FindDeposit advances the scripted deposit one poll. Once past CreditAfter
// it credits the balance.
func (c *Client) FindDeposit(_ context.Context, _, txID string) (*venue.DepositRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.popErr("find_deposit"); err != nil {
		return nil, err
	}

	d, ok := c.deposits[txID]
	if !ok {
		return nil, venue.ErrDepositNotSeen
	}

	if d.record.Status == venue.DepositStatusPending {
		d.polls++
		if d.polls > c.CreditAfter {
			d.record.Status = venue.DepositStatusCredited
			d.record.CreditedAt = time.Now().UnixMilli()
			c.balances[d.record.Asset] = c.balances[d.record.Asset].Add(d.record.Amount)
		}
	}

	out := *d.record
	return &out, nil
}

// DepositAddress returns a deterministic per-asset address.
func (c *Client) DepositAddress(_ context.Context, asset string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.popErr("deposit_address"); err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-deposit-%s", c.name, strings.ToLower(asset)), nil
}

// popErr consumes one queued error for the op. Callers hold the lock.
func (c *Client) popErr(op string) error {
	queue := c.errs[op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	c.errs[op] = queue[1:]
	return err
}

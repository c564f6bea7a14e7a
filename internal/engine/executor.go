package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"

	"github.com/biodigitss-hash/CEXMasterP/internal/observability"
	"github.com/biodigitss-hash/CEXMasterP/internal/venue"
)

// OrderExecutor places market orders with a fresh price check before every
// submission and exponential backoff on venue throttling. Non-throttling
// venue errors are terminal on the first hit.
type OrderExecutor struct {
	attempts  int
	baseDelay time.Duration
	logger    *log.Logger
}

func NewOrderExecutor(attempts int, baseDelay time.Duration, logger *log.Logger) *OrderExecutor {
	if attempts <= 0 {
		attempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &OrderExecutor{attempts: attempts, baseDelay: baseDelay, logger: logger}
}

// Buy spends quoteAmount of quote currency at the venue's current ask.
func (x *OrderExecutor) Buy(ctx context.Context, client venue.Client, pair string, quoteAmount decimal.Decimal) (*venue.FillResult, error) {
	if !quoteAmount.IsPositive() {
		return nil, fmt.Errorf("%w: buy amount %s", ErrValidation, quoteAmount)
	}
	if err := x.priceCheck(ctx, client, pair, venue.SideBuy); err != nil {
		return nil, err
	}
	order := venue.MarketOrder{Pair: pair, Side: venue.SideBuy, QuoteAmount: quoteAmount}
	return x.place(ctx, client, order, 0)
}

// Sell liquidates baseAmount of the base asset at the venue's current bid.
// A venue-rejected sell is retried once before failing; on a second
// rejection the tokens stay on the venue for manual handling.
func (x *OrderExecutor) Sell(ctx context.Context, client venue.Client, pair string, baseAmount decimal.Decimal) (*venue.FillResult, error) {
	if !baseAmount.IsPositive() {
		return nil, fmt.Errorf("%w: sell amount %s", ErrValidation, baseAmount)
	}
	if err := x.priceCheck(ctx, client, pair, venue.SideSell); err != nil {
		return nil, err
	}
	order := venue.MarketOrder{Pair: pair, Side: venue.SideSell, BaseAmount: baseAmount}
	return x.place(ctx, client, order, 1)
}

// priceCheck refuses to submit against an empty or broken book.
func (x *OrderExecutor) priceCheck(ctx context.Context, client venue.Client, pair string, side venue.OrderSide) error {
	tick, err := client.Ticker(ctx, pair)
	if err != nil {
		return fmt.Errorf("pre-%s ticker on %s: %w", side, client.Name(), err)
	}
	price := tick.Ask
	if side == venue.SideSell {
		price = tick.Bid
	}
	if !price.IsPositive() {
		return fmt.Errorf("%w: %s quotes %s at %s on %s", ErrValidation, client.Name(), side, price, pair)
	}
	return nil
}

func (x *OrderExecutor) place(ctx context.Context, client venue.Client, order venue.MarketOrder, rejectRetries int) (*venue.FillResult, error) {
	b := &backoff.Backoff{Min: x.baseDelay, Max: 8 * x.baseDelay, Factor: 2}
	attempt := 0
	for {
		attempt++
		fill, err := client.PlaceMarketOrder(ctx, order)
		if err == nil {
			if fill.Status == venue.OrderStatusRejected {
				if rejectRetries > 0 {
					rejectRetries--
					x.logger.Printf("%s rejected %s order on %s, retrying once", client.Name(), order.Side, order.Pair)
					if err := x.wait(ctx, x.baseDelay); err != nil {
						return nil, err
					}
					continue
				}
				return nil, fmt.Errorf("%s rejected %s order on %s", client.Name(), order.Side, order.Pair)
			}
			if !fill.Filled() {
				fill, err = x.reconcile(ctx, client, fill)
				if err != nil {
					return nil, err
				}
			}
			observability.RecordOrderPlaced(client.Name(), string(order.Side))
			return fill, nil
		}
		if venue.IsRateLimited(err) && attempt < x.attempts {
			delay := b.Duration()
			observability.RecordOrderRetry()
			x.logger.Printf("%s throttled %s order on %s, retry %d/%d in %s",
				client.Name(), order.Side, order.Pair, attempt, x.attempts-1, delay)
			if err := x.wait(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}
		return nil, fmt.Errorf("place %s order on %s: %w", order.Side, client.Name(), err)
	}
}

// statusPolls bounds how long reconcile chases an order the venue
// accepted but has not yet reported as filled.
const statusPolls = 10

// reconcile polls the venue until an accepted order reaches a terminal
// status. Market orders normally fill in the placement response; some
// venues report them new or partially_filled and settle shortly after.
func (x *OrderExecutor) reconcile(ctx context.Context, client venue.Client, fill *venue.FillResult) (*venue.FillResult, error) {
	last := fill
	for poll := 0; poll < statusPolls; poll++ {
		if err := x.wait(ctx, x.baseDelay); err != nil {
			return nil, err
		}
		current, err := client.OrderStatus(ctx, fill.Pair, fill.OrderID)
		if err != nil {
			x.logger.Printf("order %s status on %s: %v", fill.OrderID, client.Name(), err)
			continue
		}
		last = current
		switch current.Status {
		case venue.OrderStatusFilled:
			return current, nil
		case venue.OrderStatusCanceled, venue.OrderStatusRejected:
			return nil, fmt.Errorf("order %s on %s ended %s with %s base filled",
				fill.OrderID, client.Name(), current.Status, current.BaseFilled)
		}
	}
	return nil, fmt.Errorf("order %s on %s still %s after %d status checks",
		fill.OrderID, client.Name(), last.Status, statusPolls)
}

// wait sleeps for the backoff delay, aborting early on cancellation.
func (x *OrderExecutor) wait(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("order retry wait: %w: %w", ErrCancelled, ctx.Err())
	}
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
	"github.com/biodigitss-hash/CEXMasterP/internal/notify"
	"github.com/biodigitss-hash/CEXMasterP/internal/observability"
	"github.com/biodigitss-hash/CEXMasterP/internal/profit"
	"github.com/biodigitss-hash/CEXMasterP/internal/storage"
	"github.com/biodigitss-hash/CEXMasterP/internal/venue"
	"github.com/biodigitss-hash/CEXMasterP/internal/wallet"
)

// persistTimeout bounds terminal-state writes, which run on their own
// context because the run context may already be cancelled.
const persistTimeout = 10 * time.Second

// ControllerOptions wires one execution run.
type ControllerOptions struct {
	Opportunity *domain.Opportunity
	Execution   *domain.FailsafeExecution
	Config      domain.FailsafeConfig

	BuyClient  venue.Client
	SellClient venue.Client
	Wallet     wallet.Client // nil leaves proceeds on the sell venue

	Executions storage.ExecutionStore
	Steps      storage.ExecutionStepStore
	Samples    storage.SpreadSampleStore

	Gate     *profit.Gate
	Notifier notify.Notifier
	Events   EventSink
	Logger   *log.Logger

	// Evaluation and Quotes carry the admission check into the run so the
	// audit trail records the prices the execution was admitted on. Nil on
	// recovery, which re-validates before re-entering the pipeline.
	Evaluation *profit.Evaluation
	Quotes     *LiveQuotes

	// Resumed suppresses start notifications for recovered executions.
	Resumed bool

	// Halted reports whether a cancellation came from engine shutdown
	// rather than an operator. A halted execution keeps its state for the
	// next boot's recovery instead of failing as cancelled.
	Halted func() bool
}

// Controller drives one execution through its state machine. Each phase
// method does the work for one state and advances to the successor; the
// run loop dispatches on the persisted state, so a recovered execution
// re-enters mid-pipeline. Phases that submit orders or withdrawals check
// the step log first and adopt work that already ran before a restart:
// recovery re-validates, it never re-executes.
type Controller struct {
	opp  *domain.Opportunity
	exec *domain.FailsafeExecution
	cfg  domain.FailsafeConfig

	buy    venue.Client
	sell   venue.Client
	wallet wallet.Client

	executions storage.ExecutionStore
	stepStore  storage.ExecutionStepStore
	steps      *stepWriter

	executor  *OrderExecutor
	transfers *TransferCoordinator
	monitor   *SpreadMonitor
	gate      *profit.Gate
	notifier  notify.Notifier
	events    EventSink
	logger    *log.Logger

	eval    *profit.Evaluation
	quotes  *LiveQuotes
	resumed bool
	halted  func() bool

	// lastStepName names the failed audit entry when a phase errors out.
	lastStepName string
}

func NewController(opts ControllerOptions) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	events := opts.Events
	if events == nil {
		events = NopEvents{}
	}
	steps := &stepWriter{
		steps:       opts.Steps,
		executionID: opts.Execution.ExecutionID,
		live:        opts.Execution.Live,
		logger:      logger,
	}
	return &Controller{
		opp:        opts.Opportunity,
		exec:       opts.Execution,
		cfg:        opts.Config,
		buy:        opts.BuyClient,
		sell:       opts.SellClient,
		wallet:     opts.Wallet,
		executions: opts.Executions,
		stepStore:  opts.Steps,
		steps:      steps,
		executor:   NewOrderExecutor(opts.Config.OrderRetryAttempts, opts.Config.OrderRetryBaseDelay, logger),
		transfers:  NewTransferCoordinator(opts.Wallet, opts.Config, steps, logger),
		monitor:    NewSpreadMonitor(opts.BuyClient, opts.SellClient, opts.Executions, opts.Samples, steps, events, opts.Config, logger),
		gate:       opts.Gate,
		notifier:   notifier,
		events:     events,
		logger:     logger,
		eval:       opts.Evaluation,
		quotes:     opts.Quotes,
		resumed:    opts.Resumed,
		halted:     opts.Halted,
	}
}

// Run executes the pipeline until a terminal state. Any phase error moves
// the execution to failed with a reason code; Run itself never returns
// one.
func (c *Controller) Run(ctx context.Context) {
	if c.resumed {
		observability.RecordExecutionResumed()
		c.logger.Printf("execution %s: resuming in state %s", c.exec.ExecutionID, c.exec.State)
	} else {
		observability.RecordExecutionStarted()
		c.events.ExecutionStarted(c.exec)
		c.notifier.ExecutionStarted(c.opp, c.exec)
	}
	for !c.exec.State.Terminal() {
		var err error
		switch c.exec.State {
		case domain.StatePending:
			err = c.runPending(ctx)
		case domain.StateFundingSource:
			err = c.runFundingSource(ctx)
		case domain.StateBought:
			err = c.runBought(ctx)
		case domain.StateWithdrawn:
			err = c.runWithdrawn(ctx)
		case domain.StateFundingDestination:
			// Funds are on the sell venue; monitoring starts immediately.
			err = c.advance(ctx, domain.StateMonitoring)
		case domain.StateMonitoring:
			err = c.runMonitoring(ctx)
		case domain.StateSelling:
			err = c.runSelling(ctx)
		case domain.StateSold:
			err = c.runSold(ctx)
		default:
			err = fmt.Errorf("unknown state %q", c.exec.State)
		}
		if err != nil {
			c.fail(err)
			return
		}
	}
	c.complete()
}

// runPending re-records the admission checks in the audit trail. On
// recovery the checks run again: a market that moved while the engine was
// down must not be traded on stale admission.
func (c *Controller) runPending(ctx context.Context) error {
	if err := c.begin(ctx, domain.StepPriceCheck, nil); err != nil {
		return err
	}
	quotes := c.quotes
	if quotes == nil {
		var err error
		quotes, err = checkPrices(ctx, c.buy, c.sell, c.opp, c.cfg.SlippageTolerancePct)
		if err != nil {
			return err
		}
	}
	if err := c.finish(ctx, domain.StepPriceCheck, map[string]any{
		"buy_ask":       quotes.Buy.Ask.String(),
		"sell_bid":      quotes.Sell.Bid.String(),
		"detected_buy":  c.opp.BuyPrice.String(),
		"detected_sell": c.opp.SellPrice.String(),
	}); err != nil {
		return err
	}

	if err := c.begin(ctx, domain.StepProfitabilityCheck, nil); err != nil {
		return err
	}
	eval := c.eval
	if eval == nil {
		eval = c.gate.Check(ctx, c.opp, c.exec.Capital)
		if !eval.Profitable {
			return fmt.Errorf("%w: %s", ErrNotProfitable, eval.Reason)
		}
	}
	if err := c.finish(ctx, domain.StepProfitabilityCheck, eval.Details()); err != nil {
		return err
	}
	return c.advance(ctx, domain.StateFundingSource)
}

// runFundingSource ensures quote capital on the buy venue, topping up from
// the treasury wallet if short, then places the market buy.
func (c *Controller) runFundingSource(ctx context.Context) error {
	// A restart after the buy filled but before the transition persisted
	// must not buy twice.
	if details, ok := c.prior(ctx, domain.StepPlaceBuyOrder, domain.OutcomeCompleted); ok {
		return c.adoptBuy(ctx, details)
	}
	quote := c.opp.QuoteAsset()
	if err := c.begin(ctx, domain.StepValidateBalance, map[string]any{
		"asset":    quote,
		"required": c.exec.Capital.String(),
	}); err != nil {
		return err
	}
	if details, ok := c.prior(ctx, domain.StepValidateBalance, domain.OutcomeSubmitted); ok {
		// A top-up was in flight when the engine stopped; wait for it
		// before re-reading the balance.
		handle := handleFromStep(details)
		c.logger.Printf("execution %s: adopting in-flight top-up %s", c.exec.ExecutionID, handle.TxID)
		if err := c.transfers.AwaitArrival(ctx, c.buy, handle, domain.StepValidateBalance); err != nil {
			return err
		}
	}
	if err := c.ensureQuoteBalance(ctx, quote); err != nil {
		return err
	}

	if err := c.begin(ctx, domain.StepPlaceBuyOrder, map[string]any{
		"pair":         c.opp.Pair,
		"quote_amount": c.exec.Capital.String(),
	}); err != nil {
		return err
	}
	fill, err := c.executor.Buy(ctx, c.buy, c.opp.Pair, c.exec.Capital)
	if err != nil {
		return err
	}
	if err := c.finish(ctx, domain.StepPlaceBuyOrder, fill.Details()); err != nil {
		return err
	}
	c.exec.BaseAmount = baseHeld(fill, c.opp.TokenSymbol)
	return c.advance(ctx, domain.StateBought)
}

// ensureQuoteBalance verifies the buy venue can cover the capital, moving
// the shortfall from the treasury wallet when configured.
func (c *Controller) ensureQuoteBalance(ctx context.Context, quote string) error {
	bal, err := c.buy.Balance(ctx, quote)
	if err != nil {
		return fmt.Errorf("balance of %s on %s: %w", quote, c.buy.Name(), err)
	}
	details := map[string]any{
		"asset":     quote,
		"available": bal.Free.String(),
		"required":  c.exec.Capital.String(),
	}
	if bal.Free.GreaterThanOrEqual(c.exec.Capital) {
		return c.finish(ctx, domain.StepValidateBalance, details)
	}

	shortfall := c.exec.Capital.Sub(bal.Free)
	if c.wallet == nil {
		return fmt.Errorf("%w: %s %s on %s, need %s and no treasury wallet configured",
			ErrInsufficientBalance, bal.Free, quote, c.buy.Name(), c.exec.Capital)
	}
	walletBal, err := c.wallet.Balance(ctx, quote)
	if err != nil {
		return fmt.Errorf("wallet balance of %s: %w", quote, err)
	}
	if walletBal.LessThan(shortfall) {
		return fmt.Errorf("%w: %s %s on %s plus %s in the wallet cannot cover %s",
			ErrInsufficientBalance, bal.Free, quote, c.buy.Name(), walletBal, c.exec.Capital)
	}

	c.logger.Printf("execution %s: topping up %s %s on %s from the wallet",
		c.exec.ExecutionID, shortfall, quote, c.buy.Name())
	handle, err := c.transfers.SendFromWallet(ctx, c.buy, quote, shortfall)
	if err != nil {
		return err
	}
	if err := c.steps.write(ctx, domain.StepValidateBalance, domain.OutcomeSubmitted, handle.Details()); err != nil {
		return err
	}
	if err := c.transfers.AwaitArrival(ctx, c.buy, handle, domain.StepValidateBalance); err != nil {
		return err
	}
	details["topped_up"] = shortfall.String()
	return c.finish(ctx, domain.StepValidateBalance, details)
}

// adoptBuy replays a buy that filled before a restart. The venue's own
// order record is authoritative when it still serves it.
func (c *Controller) adoptBuy(ctx context.Context, details map[string]any) error {
	fill, err := c.confirmOrder(ctx, c.buy, details)
	if err != nil {
		return err
	}
	var base decimal.Decimal
	if fill != nil {
		base = baseHeld(fill, c.opp.TokenSymbol)
	} else {
		base, err = decimal.NewFromString(stepString(details, "base_filled"))
		if err != nil || !base.IsPositive() {
			return fmt.Errorf("recovered buy fill has no base quantity: %v", details["base_filled"])
		}
		if strings.EqualFold(stepString(details, "commission_asset"), c.opp.TokenSymbol) {
			if commission, err := decimal.NewFromString(stepString(details, "commission")); err == nil {
				base = base.Sub(commission)
			}
		}
	}
	if !base.IsPositive() {
		return fmt.Errorf("recovered buy order %s holds no base quantity", stepString(details, "order_id"))
	}
	c.exec.BaseAmount = base
	c.logger.Printf("execution %s: adopting filled buy order %s", c.exec.ExecutionID, stepString(details, "order_id"))
	return c.advance(ctx, domain.StateBought)
}

// runBought withdraws the base asset from the buy venue to the sell
// venue's deposit address.
func (c *Controller) runBought(ctx context.Context) error {
	if details, ok := c.prior(ctx, domain.StepWithdrawToDest, domain.OutcomeSubmitted, domain.OutcomeBroadcast); ok {
		c.logger.Printf("execution %s: adopting in-flight withdrawal %s",
			c.exec.ExecutionID, stepString(details, "withdrawal_id"))
		return c.advance(ctx, domain.StateWithdrawn)
	}
	if !c.exec.BaseAmount.IsPositive() {
		return fmt.Errorf("state %s with no base position recorded", c.exec.State)
	}
	asset := c.opp.TokenSymbol
	addr, err := c.sell.DepositAddress(ctx, asset)
	if err != nil {
		return fmt.Errorf("deposit address for %s on %s: %w", asset, c.sell.Name(), err)
	}
	if err := c.begin(ctx, domain.StepWithdrawToDest, map[string]any{
		"asset":   asset,
		"amount":  c.exec.BaseAmount.String(),
		"address": addr,
	}); err != nil {
		return err
	}
	handle, err := c.transfers.Submit(ctx, c.buy, venue.WithdrawRequest{
		Asset:   asset,
		Address: addr,
		Amount:  c.exec.BaseAmount,
	})
	if err != nil {
		return err
	}
	if err := c.steps.write(ctx, domain.StepWithdrawToDest, domain.OutcomeSubmitted, handle.Details()); err != nil {
		return err
	}
	return c.advance(ctx, domain.StateWithdrawn)
}

// runWithdrawn waits for the transfer to broadcast and then arrive: chain
// depth plus the sell venue's deposit credit.
func (c *Controller) runWithdrawn(ctx context.Context) error {
	details, ok := c.prior(ctx, domain.StepWithdrawToDest, domain.OutcomeBroadcast, domain.OutcomeSubmitted)
	if !ok {
		return fmt.Errorf("state %s with no recorded withdrawal", c.exec.State)
	}
	handle := handleFromStep(details)
	c.lastStepName = domain.StepWithdrawToDest
	if err := c.transfers.AwaitBroadcast(ctx, c.buy, handle, domain.StepWithdrawToDest); err != nil {
		return err
	}
	if err := c.begin(ctx, domain.StepConfirmDeposit, map[string]any{
		"tx_id":                  handle.TxID,
		"required_confirmations": c.cfg.ConfirmationCount,
	}); err != nil {
		return err
	}
	if err := c.transfers.AwaitArrival(ctx, c.sell, handle, domain.StepConfirmDeposit); err != nil {
		return err
	}
	if err := c.finish(ctx, domain.StepConfirmDeposit, map[string]any{"tx_id": handle.TxID}); err != nil {
		return err
	}
	return c.advance(ctx, domain.StateFundingDestination)
}

// runMonitoring holds the position until the sell trigger or the
// fail-safe deadline. Both exits proceed to the sell. The wait window
// opens when the execution first enters monitoring, so a restart
// resumes whatever remains of it.
func (c *Controller) runMonitoring(ctx context.Context) error {
	if err := c.begin(ctx, domain.StepMonitorSpread, map[string]any{
		"target_pct": c.exec.TargetSpread.String(),
		"interval_s": c.cfg.SpreadCheckInterval.Seconds(),
		"max_wait_s": c.cfg.MaxWaitTime.Seconds(),
	}); err != nil {
		return err
	}
	exit, last, err := c.monitor.Watch(ctx, c.exec, c.opp.Pair, c.monitoringStartedAt(ctx))
	if err != nil {
		return err
	}
	if err := c.finish(ctx, domain.StepMonitorSpread, map[string]any{
		"exit":       exit,
		"spread_pct": last.String(),
	}); err != nil {
		return err
	}
	return c.advance(ctx, domain.StateSelling)
}

// runSelling liquidates the position on the sell venue and freezes the
// realized profit.
func (c *Controller) runSelling(ctx context.Context) error {
	quote := c.opp.QuoteAsset()
	if details, ok := c.prior(ctx, domain.StepPlaceSellOrder, domain.OutcomeCompleted); ok {
		return c.adoptSell(ctx, details, quote)
	}
	if !c.exec.BaseAmount.IsPositive() {
		return fmt.Errorf("state %s with no base position recorded", c.exec.State)
	}
	if err := c.begin(ctx, domain.StepPlaceSellOrder, map[string]any{
		"pair":        c.opp.Pair,
		"base_amount": c.exec.BaseAmount.String(),
	}); err != nil {
		return err
	}
	fill, err := c.executor.Sell(ctx, c.sell, c.opp.Pair, c.exec.BaseAmount)
	if err != nil {
		return err
	}
	if err := c.finish(ctx, domain.StepPlaceSellOrder, fill.Details()); err != nil {
		return err
	}
	return c.recordProceeds(ctx, quoteProceeds(fill, quote))
}

// adoptSell replays a sell that filled before a restart, preferring the
// venue's own order record over the audit entry.
func (c *Controller) adoptSell(ctx context.Context, details map[string]any, quote string) error {
	fill, err := c.confirmOrder(ctx, c.sell, details)
	if err != nil {
		return err
	}
	var proceeds decimal.Decimal
	if fill != nil {
		proceeds = quoteProceeds(fill, quote)
	} else {
		proceeds, err = decimal.NewFromString(stepString(details, "quote_amount"))
		if err != nil || !proceeds.IsPositive() {
			return fmt.Errorf("recovered sell fill has no proceeds: %v", details["quote_amount"])
		}
		if strings.EqualFold(stepString(details, "commission_asset"), quote) {
			if commission, err := decimal.NewFromString(stepString(details, "commission")); err == nil {
				proceeds = proceeds.Sub(commission)
			}
		}
	}
	if !proceeds.IsPositive() {
		return fmt.Errorf("recovered sell order %s yielded no proceeds", stepString(details, "order_id"))
	}
	c.logger.Printf("execution %s: adopting filled sell order %s", c.exec.ExecutionID, stepString(details, "order_id"))
	return c.recordProceeds(ctx, proceeds)
}

// confirmOrder re-queries the venue for an adopted order. A filled
// answer supersedes the audit entry; canceled or rejected fails the
// adoption; an unreachable or still-open order falls back to the entry.
func (c *Controller) confirmOrder(ctx context.Context, client venue.Client, details map[string]any) (*venue.FillResult, error) {
	orderID := stepString(details, "order_id")
	if orderID == "" {
		return nil, nil
	}
	fill, err := client.OrderStatus(ctx, c.opp.Pair, orderID)
	if err != nil {
		c.logger.Printf("execution %s: confirm order %s on %s: %v",
			c.exec.ExecutionID, orderID, client.Name(), err)
		return nil, nil
	}
	switch fill.Status {
	case venue.OrderStatusFilled:
		return fill, nil
	case venue.OrderStatusCanceled, venue.OrderStatusRejected:
		return nil, fmt.Errorf("recovered order %s on %s is %s", orderID, client.Name(), fill.Status)
	default:
		c.logger.Printf("execution %s: order %s on %s reports %s, keeping recorded fill",
			c.exec.ExecutionID, orderID, client.Name(), fill.Status)
		return nil, nil
	}
}

// recordProceeds freezes realized profit before the treasury sweep.
func (c *Controller) recordProceeds(ctx context.Context, proceeds decimal.Decimal) error {
	c.exec.Profit = decimal.NewNullDecimal(proceeds.Sub(c.exec.Capital))
	return c.advance(ctx, domain.StateSold)
}

// runSold sweeps the proceeds to the treasury wallet. Arrival is chain
// depth only: the wallet has no deposit ledger to consult.
func (c *Controller) runSold(ctx context.Context) error {
	quote := c.opp.QuoteAsset()
	proceeds := c.exec.Capital
	if c.exec.Profit.Valid {
		proceeds = proceeds.Add(c.exec.Profit.Decimal)
	}
	handle, err := c.profitsHandle(ctx, quote, proceeds)
	if err != nil {
		return err
	}
	if handle == nil {
		return c.advance(ctx, domain.StateCompleted)
	}
	if err := c.transfers.AwaitBroadcast(ctx, c.sell, handle, domain.StepWithdrawProfits); err != nil {
		return err
	}
	if err := c.transfers.AwaitArrival(ctx, nil, handle, domain.StepWithdrawProfits); err != nil {
		return err
	}
	if err := c.finish(ctx, domain.StepWithdrawProfits, map[string]any{
		"tx_id":  handle.TxID,
		"amount": handle.Amount.String(),
	}); err != nil {
		return err
	}
	return c.advance(ctx, domain.StateCompleted)
}

// profitsHandle submits the treasury withdrawal, rebuilds the handle of
// one already in flight, or returns nil when no wallet is configured and
// the proceeds stay on the sell venue.
func (c *Controller) profitsHandle(ctx context.Context, quote string, proceeds decimal.Decimal) (*TransferHandle, error) {
	if details, ok := c.prior(ctx, domain.StepWithdrawProfits, domain.OutcomeBroadcast, domain.OutcomeSubmitted); ok {
		c.lastStepName = domain.StepWithdrawProfits
		return handleFromStep(details), nil
	}
	if c.wallet == nil {
		c.logger.Printf("execution %s: no treasury wallet, leaving %s %s on %s",
			c.exec.ExecutionID, proceeds, quote, c.sell.Name())
		return nil, nil
	}
	if err := c.begin(ctx, domain.StepWithdrawProfits, map[string]any{
		"asset":   quote,
		"amount":  proceeds.String(),
		"address": c.wallet.Address(),
	}); err != nil {
		return nil, err
	}
	handle, err := c.transfers.Submit(ctx, c.sell, venue.WithdrawRequest{
		Asset:   quote,
		Address: c.wallet.Address(),
		Amount:  proceeds,
	})
	if err != nil {
		return nil, err
	}
	if err := c.steps.write(ctx, domain.StepWithdrawProfits, domain.OutcomeSubmitted, handle.Details()); err != nil {
		return nil, err
	}
	return handle, nil
}

// advance persists the transition to the next state and publishes it.
func (c *Controller) advance(ctx context.Context, to domain.ExecutionState) error {
	from := c.exec.State
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	c.exec.State = to
	c.exec.UpdatedAt = time.Now().UnixMilli()
	if err := c.executions.Update(ctx, c.exec); err != nil {
		c.exec.State = from
		return fmt.Errorf("persist transition %s -> %s: %w", from, to, err)
	}
	c.logger.Printf("execution %s: %s -> %s", c.exec.ExecutionID, from, to)
	c.events.StateChanged(c.exec, from)
	return nil
}

// fail moves the execution to failed with a reason code. Terminal
// persistence runs on a fresh context so a cancelled run still records
// its end state. Shutdown is the exception: a halted execution keeps its
// current state and the next boot resumes it.
func (c *Controller) fail(cause error) {
	if c.halted != nil && c.halted() && errors.Is(cause, context.Canceled) {
		c.logger.Printf("execution %s: halted in state %s, recovery will resume it",
			c.exec.ExecutionID, c.exec.State)
		observability.RecordExecutionHalted()
		return
	}
	reason := failureReason(cause)
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	step := c.lastStepName
	if step == "" {
		step = domain.StepPriceCheck
	}
	c.steps.note(ctx, step, domain.OutcomeFailed, map[string]any{
		"error":  cause.Error(),
		"reason": reason,
	})

	c.exec.State = domain.StateFailed
	c.exec.FailureReason = reason
	c.exec.UpdatedAt = time.Now().UnixMilli()
	if err := c.executions.Update(ctx, c.exec); err != nil {
		c.logger.Printf("execution %s: persist failed state: %v", c.exec.ExecutionID, err)
	}
	c.logger.Printf("execution %s: failed in %s: %v", c.exec.ExecutionID, step, cause)
	observability.RecordExecutionFailed(reason, c.elapsedSeconds())
	c.events.ExecutionFailed(c.exec)
	c.notifier.ExecutionFailed(c.opp, c.exec)
}

func (c *Controller) complete() {
	realized := decimal.Zero
	if c.exec.Profit.Valid {
		realized = c.exec.Profit.Decimal
	}
	c.logger.Printf("execution %s: completed, profit %s", c.exec.ExecutionID, realized)
	observability.RecordExecutionCompleted(realized.InexactFloat64(), c.elapsedSeconds())
	c.events.ExecutionCompleted(c.exec)
	c.notifier.ExecutionCompleted(c.opp, c.exec)
}

func (c *Controller) elapsedSeconds() float64 {
	return time.Since(time.UnixMilli(c.exec.StartedAt)).Seconds()
}

// begin writes the started entry for a step and remembers the step name
// for failure attribution.
func (c *Controller) begin(ctx context.Context, step string, details map[string]any) error {
	c.lastStepName = step
	return c.steps.write(ctx, step, domain.OutcomeStarted, details)
}

func (c *Controller) finish(ctx context.Context, step string, details map[string]any) error {
	return c.steps.write(ctx, step, domain.OutcomeCompleted, details)
}

// monitoringStartedAt returns when the execution first entered
// monitoring, read from the earliest monitor_spread started entry. The
// step log persists it, so the fail-safe deadline survives restarts
// with only the remaining window left.
func (c *Controller) monitoringStartedAt(ctx context.Context) time.Time {
	entries, err := c.stepStore.ListByExecution(ctx, c.exec.ExecutionID)
	if err != nil {
		c.logger.Printf("execution %s: step history: %v", c.exec.ExecutionID, err)
		return time.Now()
	}
	for _, e := range entries {
		if e.Step == domain.StepMonitorSpread && e.Outcome == domain.OutcomeStarted {
			return time.UnixMilli(e.CreatedAt)
		}
	}
	return time.Now()
}

// prior searches the step log for the latest entry matching step and
// outcomes. Phases use it to adopt work from before a restart.
func (c *Controller) prior(ctx context.Context, step string, outcomes ...domain.StepOutcome) (map[string]any, bool) {
	entries, err := c.stepStore.ListByExecution(ctx, c.exec.ExecutionID)
	if err != nil {
		c.logger.Printf("execution %s: step history: %v", c.exec.ExecutionID, err)
		return nil, false
	}
	return lastStep(entries, step, outcomes...)
}

// baseHeld is the base quantity actually credited after the venue takes
// its commission.
func baseHeld(fill *venue.FillResult, baseAsset string) decimal.Decimal {
	held := fill.BaseFilled
	if strings.EqualFold(fill.CommissionAsset, baseAsset) {
		held = held.Sub(fill.Commission)
	}
	return held
}

// quoteProceeds is the quote amount actually credited by a sell.
func quoteProceeds(fill *venue.FillResult, quoteAsset string) decimal.Decimal {
	out := fill.QuoteAmount
	if strings.EqualFold(fill.CommissionAsset, quoteAsset) {
		out = out.Sub(fill.Commission)
	}
	return out
}

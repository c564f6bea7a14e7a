// Package simulation runs one complete failsafe execution offline:
// scripted stub venues and a stub wallet drive the identical state
// machine the live service runs, with every step recorded as simulated.
package simulation

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
	"github.com/biodigitss-hash/CEXMasterP/internal/engine"
	"github.com/biodigitss-hash/CEXMasterP/internal/storage/memory"
	"github.com/biodigitss-hash/CEXMasterP/internal/venue"
	venuestub "github.com/biodigitss-hash/CEXMasterP/internal/venue/stub"
	walletstub "github.com/biodigitss-hash/CEXMasterP/internal/wallet/stub"
)

// Options contains configuration for creating a Runner. Zero values take
// the defaults documented on each field.
type Options struct {
	// Capital in quote currency. Default 1000.
	Capital decimal.Decimal

	// BuyPrice is the ask on the buy venue. Default 2000.
	BuyPrice decimal.Decimal

	// SellPrice is the bid on the sell venue at detection. Default 2020
	// (a 1% spread).
	SellPrice decimal.Decimal

	// TargetSpreadPct is the sell trigger. Default 1.4: above the opening
	// spread, so the monitor has to watch the market move.
	TargetSpreadPct decimal.Decimal

	// TicksUntilTarget is how many monitor ticks pass before the sell
	// venue's bid walks up through the target. Default 3.
	TicksUntilTarget int

	// MaxWaitTicks bounds the monitoring phase in poll intervals. Default
	// TicksUntilTarget+20; set it below TicksUntilTarget to watch the
	// fail-safe sell fire instead of the target.
	MaxWaitTicks int

	// Interval is the scaled poll interval for both the monitor and the
	// transfer coordinator. Default 10ms: the state machine is identical,
	// only the clock is compressed.
	Interval time.Duration

	Logger *log.Logger
}

// Result is the outcome of one simulated run.
type Result struct {
	Opportunity *domain.Opportunity
	Execution   *domain.FailsafeExecution
	Steps       []*domain.ExecutionStep
	MonitorExit string // target_reached or timeout_failsafe
}

// Runner assembles an in-memory rig and executes one opportunity end to
// end through the real engine.
type Runner struct {
	opts Options
}

// NewRunner creates a simulation runner.
func NewRunner(opts Options) *Runner {
	if opts.Capital.IsZero() {
		opts.Capital = decimal.NewFromInt(1000)
	}
	if opts.BuyPrice.IsZero() {
		opts.BuyPrice = decimal.NewFromInt(2000)
	}
	if opts.SellPrice.IsZero() {
		opts.SellPrice = decimal.NewFromInt(2020)
	}
	if opts.TargetSpreadPct.IsZero() {
		opts.TargetSpreadPct = decimal.NewFromFloat(1.4)
	}
	if opts.TicksUntilTarget <= 0 {
		opts.TicksUntilTarget = 3
	}
	if opts.MaxWaitTicks <= 0 {
		opts.MaxWaitTicks = opts.TicksUntilTarget + 20
	}
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stdout, "[simulate] ", log.LstdFlags)
	}
	return &Runner{opts: opts}
}

// Run executes one simulated opportunity. Steps:
//  1. Build memory stores and two linked stub venues plus a stub wallet.
//  2. Script the buy venue flat at BuyPrice and the sell venue's bid
//     rising from SellPrice through the target after TicksUntilTarget.
//  3. Seed the opportunity and fund the buy venue with the capital.
//  4. Run engine.Execute and wait for a terminal state.
//  5. Return the execution, its step log and the monitor's exit reason.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	o := r.opts

	buy := venuestub.NewClient("alpha")
	sell := venuestub.NewClient("beta")
	for _, v := range []*venuestub.Client{buy, sell} {
		v.AddPair("ETHUSDT", "ETH", "USDT")
	}
	buy.LinkDeposits(sell)
	treasury := walletstub.NewClient("treasury")
	treasury.AutoTrack = true

	// Flat book on the buy side; the sell bid climbs to the target price
	// over TicksUntilTarget monitor ticks, then holds.
	buy.PushTicker("ETHUSDT", o.BuyPrice.Sub(decimal.NewFromInt(1)), o.BuyPrice)
	targetBid := o.BuyPrice.Mul(decimal.NewFromInt(100).Add(o.TargetSpreadPct)).Div(decimal.NewFromInt(100))
	step := targetBid.Sub(o.SellPrice).Div(decimal.NewFromInt(int64(o.TicksUntilTarget)))
	bid := o.SellPrice
	// One admission-time snapshot first, then the monitor's view.
	sell.PushTicker("ETHUSDT", bid, bid.Add(decimal.NewFromInt(1)))
	for i := 0; i < o.TicksUntilTarget; i++ {
		bid = bid.Add(step)
		sell.PushTicker("ETHUSDT", bid, bid.Add(decimal.NewFromInt(1)))
	}

	buy.SetBalance("USDT", o.Capital)

	opps := memory.NewOpportunityStore()
	execs := memory.NewExecutionStore()
	steps := memory.NewExecutionStepStore()
	settings := memory.NewSettingsStore()

	spread := o.SellPrice.Sub(o.BuyPrice).Div(o.BuyPrice).Mul(decimal.NewFromInt(100))
	opp := &domain.Opportunity{
		OpportunityID: "sim-opportunity",
		TokenSymbol:   "ETH",
		Pair:          "ETHUSDT",
		BuyVenue:      "alpha",
		SellVenue:     "beta",
		BuyPrice:      o.BuyPrice,
		SellPrice:     o.SellPrice,
		SpreadPct:     spread,
		Confidence:    1,
		Capital:       o.Capital,
		DetectedAt:    time.Now().UnixMilli(),
	}
	if err := opps.Insert(ctx, opp); err != nil {
		return nil, fmt.Errorf("seed opportunity: %w", err)
	}

	s := domain.DefaultSettings()
	s.TargetSellSpreadPct = o.TargetSpreadPct
	s.MaxTradeAmount = o.Capital
	s.SpreadCheckIntervalS = 0 // keep the compressed intervals below
	s.MaxWaitTimeS = 0
	if err := settings.Put(ctx, &s); err != nil {
		return nil, fmt.Errorf("seed settings: %w", err)
	}

	cfg := domain.DefaultFailsafeConfig()
	cfg.TargetSellSpreadPct = o.TargetSpreadPct
	cfg.SpreadCheckInterval = o.Interval
	cfg.MaxWaitTime = time.Duration(o.MaxWaitTicks) * o.Interval
	cfg.TransferPollInterval = o.Interval
	cfg.TransferTimeout = 100 * o.Interval
	cfg.OrderRetryBaseDelay = o.Interval

	eng := engine.New(engine.Options{
		Opportunities: opps,
		Executions:    execs,
		Steps:         steps,
		Settings:      settings,
		Samples:       memory.NewSpreadSampleStore(),
		Venues:        venue.NewRegistry(buy, sell),
		Wallet:        treasury,
		Config:        cfg,
		Logger:        o.Logger,
	})
	defer eng.Stop()

	execID, err := eng.Execute(ctx, opp.OpportunityID, o.Capital, false)
	if err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}

	exec, err := awaitTerminal(ctx, execs, execID, 30*time.Second)
	if err != nil {
		return nil, err
	}
	stepLog, err := steps.ListByExecution(ctx, execID)
	if err != nil {
		return nil, fmt.Errorf("load step log: %w", err)
	}

	return &Result{
		Opportunity: opp,
		Execution:   exec,
		Steps:       stepLog,
		MonitorExit: monitorExit(stepLog),
	}, nil
}

// awaitTerminal polls the store until the execution reaches a terminal
// state or the deadline passes.
func awaitTerminal(ctx context.Context, execs *memory.ExecutionStore, id string, within time.Duration) (*domain.FailsafeExecution, error) {
	deadline := time.Now().Add(within)
	for {
		exec, err := execs.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load execution %s: %w", id, err)
		}
		if exec.State.Terminal() {
			return exec, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("execution %s still in state %s after %s", id, exec.State, within)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// monitorExit pulls the monitor's exit reason out of the step log.
func monitorExit(steps []*domain.ExecutionStep) string {
	for _, st := range steps {
		if st.Step == domain.StepMonitorSpread && st.Outcome == domain.OutcomeCompleted {
			if exit, ok := st.Details["exit"].(string); ok {
				return exit
			}
		}
	}
	return ""
}

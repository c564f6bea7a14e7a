package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
	"github.com/biodigitss-hash/CEXMasterP/internal/observability"
	"github.com/biodigitss-hash/CEXMasterP/internal/storage"
	"github.com/biodigitss-hash/CEXMasterP/internal/venue"
)

var hundred = decimal.NewFromInt(100)

// Monitor exit reasons.
const (
	ExitTargetReached   = "target_reached"
	ExitTimeoutFailsafe = "timeout_failsafe"
)

// SpreadMonitor polls the live spread between the buy venue's ask and the
// sell venue's bid until the sell trigger fires or the fail-safe deadline
// passes. The deadline is absolute from the moment monitoring first began,
// so funding and transfer time never consume the wait budget, and a
// restart resumes the remaining window instead of granting a fresh one.
// Telemetry writes are best-effort: a failed spread update or sample
// insert is logged and never delays the exit to sell.
type SpreadMonitor struct {
	buy        venue.Client
	sell       venue.Client
	executions storage.ExecutionStore
	samples    storage.SpreadSampleStore
	steps      *stepWriter
	events     EventSink
	cfg        domain.FailsafeConfig
	logger     *log.Logger
}

func NewSpreadMonitor(buy, sell venue.Client, executions storage.ExecutionStore, samples storage.SpreadSampleStore, steps *stepWriter, events EventSink, cfg domain.FailsafeConfig, logger *log.Logger) *SpreadMonitor {
	if events == nil {
		events = NopEvents{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &SpreadMonitor{
		buy:        buy,
		sell:       sell,
		executions: executions,
		samples:    samples,
		steps:      steps,
		events:     events,
		cfg:        cfg,
		logger:     logger,
	}
}

// Watch blocks until an exit condition and returns the exit reason with
// the last observed spread. startedAt is when monitoring first began,
// which anchors the fail-safe deadline across restarts. Both exits lead
// to the sell; only cancellation returns an error. The spread is checked
// before the deadline, so even an expired window observes the market
// once rather than force-selling blind.
func (m *SpreadMonitor) Watch(ctx context.Context, exec *domain.FailsafeExecution, pair string, startedAt time.Time) (string, decimal.Decimal, error) {
	deadline := startedAt.Add(m.cfg.MaxWaitTime)
	ticker := time.NewTicker(m.cfg.SpreadCheckInterval)
	defer ticker.Stop()
	last := exec.CurrentSpread
	for {
		if spread, ok := m.observe(ctx, exec, pair); ok {
			last = spread
			if spread.GreaterThanOrEqual(exec.TargetSpread) {
				return ExitTargetReached, last, nil
			}
		}
		if !time.Now().Before(deadline) {
			m.logger.Printf("execution %s: max wait %s reached, fail-safe sell at spread %s%%",
				exec.ExecutionID, m.cfg.MaxWaitTime, last)
			return ExitTimeoutFailsafe, last, nil
		}
		select {
		case <-ctx.Done():
			return "", last, fmt.Errorf("spread monitor: %w: %w", ErrCancelled, ctx.Err())
		case <-ticker.C:
		}
	}
}

// observe samples both books once. A failed ticker or an empty buy book
// skips the tick; the fail-safe deadline still bounds the wait.
func (m *SpreadMonitor) observe(ctx context.Context, exec *domain.FailsafeExecution, pair string) (decimal.Decimal, bool) {
	buyTick, err := m.buy.Ticker(ctx, pair)
	if err != nil {
		m.logger.Printf("execution %s: buy ticker on %s: %v", exec.ExecutionID, m.buy.Name(), err)
		return decimal.Zero, false
	}
	sellTick, err := m.sell.Ticker(ctx, pair)
	if err != nil {
		m.logger.Printf("execution %s: sell ticker on %s: %v", exec.ExecutionID, m.sell.Name(), err)
		return decimal.Zero, false
	}
	if !buyTick.Ask.IsPositive() {
		m.logger.Printf("execution %s: %s quotes empty ask on %s", exec.ExecutionID, m.buy.Name(), pair)
		return decimal.Zero, false
	}

	now := time.Now().UnixMilli()
	spread := sellTick.Bid.Sub(buyTick.Ask).Div(buyTick.Ask).Mul(hundred)
	exec.CurrentSpread = spread
	exec.UpdatedAt = now
	if err := m.executions.UpdateSpread(ctx, exec.ExecutionID, spread, now); err != nil {
		m.logger.Printf("execution %s: spread update: %v", exec.ExecutionID, err)
	}

	sample := &domain.SpreadSample{
		ExecutionID: exec.ExecutionID,
		ObservedAt:  now,
		BuyPrice:    buyTick.Ask.InexactFloat64(),
		SellPrice:   sellTick.Bid.InexactFloat64(),
		SpreadPct:   spread.InexactFloat64(),
	}
	if m.samples != nil {
		if err := m.samples.Insert(ctx, sample); err != nil {
			m.logger.Printf("execution %s: sample insert: %v", exec.ExecutionID, err)
		}
	}
	m.steps.note(ctx, domain.StepMonitorSpread, domain.OutcomeChecking, map[string]any{
		"spread_pct": spread.String(),
		"target_pct": exec.TargetSpread.String(),
		"buy_price":  buyTick.Ask.String(),
		"sell_price": sellTick.Bid.String(),
	})
	m.events.SpreadTick(sample)
	observability.RecordSpreadCheck(spread.InexactFloat64())
	return spread, true
}

package simulation

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
)

func TestRunReachesTargetAndCompletes(t *testing.T) {
	r := NewRunner(Options{Logger: log.New(io.Discard, "", 0)})

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Execution.State != domain.StateCompleted {
		t.Fatalf("state = %s (reason %q), want completed",
			res.Execution.State, res.Execution.FailureReason)
	}
	if res.MonitorExit != "target_reached" {
		t.Errorf("monitor exit = %q, want target_reached", res.MonitorExit)
	}
	if !res.Execution.Profit.Valid || !res.Execution.Profit.Decimal.IsPositive() {
		t.Errorf("profit = %v, want positive", res.Execution.Profit)
	}
	if res.Execution.Live {
		t.Error("simulated execution flagged live")
	}
	for _, st := range res.Steps {
		if st.Live {
			t.Fatalf("step %s flagged live in a simulated run", st.Step)
		}
	}
}

func TestRunFailsafeSellsOnTimeout(t *testing.T) {
	// The bid needs 1000 ticks to reach the target but monitoring is
	// bounded at 5, so the fail-safe path liquidates at the market.
	r := NewRunner(Options{
		TargetSpreadPct:  decimal.NewFromInt(5),
		TicksUntilTarget: 1000,
		MaxWaitTicks:     5,
		Interval:         2 * time.Millisecond,
		Logger:           log.New(io.Discard, "", 0),
	})

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Execution.State != domain.StateCompleted {
		t.Fatalf("state = %s (reason %q), want completed via fail-safe sell",
			res.Execution.State, res.Execution.FailureReason)
	}
	if res.MonitorExit != "timeout_failsafe" {
		t.Errorf("monitor exit = %q, want timeout_failsafe", res.MonitorExit)
	}
}

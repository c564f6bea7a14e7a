package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
)

// Recover resumes every non-terminal execution found in the store. Call
// it once at boot, before serving requests. Each resumed run re-enters
// the pipeline at its persisted state and re-validates prior work through
// the step log instead of re-executing it. An execution whose opportunity
// or venues can no longer be resolved is failed so it releases its slot.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	execs, err := e.executions.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active executions: %w", err)
	}
	resumed := 0
	for _, exec := range execs {
		if err := e.resume(ctx, exec); err != nil {
			e.logger.Printf("execution %s: not resumable: %v", exec.ExecutionID, err)
			e.quarantine(ctx, exec)
			continue
		}
		resumed++
	}
	if resumed > 0 {
		e.logger.Printf("recovery: resumed %d execution(s)", resumed)
	}
	return resumed, nil
}

func (e *Engine) resume(ctx context.Context, exec *domain.FailsafeExecution) error {
	opp, err := e.opportunities.GetByID(ctx, exec.OpportunityID)
	if err != nil {
		return fmt.Errorf("load opportunity %s: %w", exec.OpportunityID, err)
	}
	buy, err := e.venues.Get(opp.BuyVenue)
	if err != nil {
		return err
	}
	sell, err := e.venues.Get(opp.SellVenue)
	if err != nil {
		return err
	}

	// Current settings drive tuning, but the run keeps the mode and sell
	// trigger it was admitted with.
	cfg, _ := e.snapshot(ctx)
	cfg.LiveMode = exec.Live
	if exec.TargetSpread.IsPositive() {
		cfg.TargetSellSpreadPct = exec.TargetSpread
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{opportunityID: exec.OpportunityID, cancel: cancel}
	e.mu.Lock()
	if _, ok := e.byOpp[exec.OpportunityID]; ok {
		e.mu.Unlock()
		cancel()
		return fmt.Errorf("opportunity %s already has a running execution", exec.OpportunityID)
	}
	e.byOpp[exec.OpportunityID] = exec.ExecutionID
	e.active[exec.ExecutionID] = r
	e.mu.Unlock()

	ctrl := NewController(ControllerOptions{
		Opportunity: opp,
		Execution:   exec,
		Config:      cfg,
		BuyClient:   buy,
		SellClient:  sell,
		Wallet:      e.wallet,
		Executions:  e.executions,
		Steps:       e.steps,
		Samples:     e.samples,
		Gate:        e.gate,
		Notifier:    e.notifier,
		Events:      e.events,
		Logger:      e.logger,
		Resumed:     true,
		Halted:      r.halt.Load,
	})
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.finish(exec.ExecutionID, exec.OpportunityID)
		ctrl.Run(runCtx)
	}()
	return nil
}

// quarantine fails an unresumable execution so it stops occupying the
// opportunity's active slot.
func (e *Engine) quarantine(ctx context.Context, exec *domain.FailsafeExecution) {
	exec.State = domain.StateFailed
	exec.FailureReason = domain.FailureReasonValidation
	exec.UpdatedAt = time.Now().UnixMilli()
	if err := e.executions.Update(ctx, exec); err != nil {
		e.logger.Printf("execution %s: quarantine: %v", exec.ExecutionID, err)
	}
}

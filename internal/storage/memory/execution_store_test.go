package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
	"github.com/biodigitss-hash/CEXMasterP/internal/storage"
)

func testExecution(id, oppID string, state domain.ExecutionState, startedAt int64) *domain.FailsafeExecution {
	return &domain.FailsafeExecution{
		ExecutionID:   id,
		OpportunityID: oppID,
		State:         state,
		Capital:       decimal.NewFromInt(1000),
		TargetSpread:  decimal.NewFromFloat(1.0),
		StartedAt:     startedAt,
		UpdatedAt:     startedAt,
	}
}

func TestExecutionStore_InsertAndGet(t *testing.T) {
	store := NewExecutionStore()
	ctx := context.Background()

	exec := testExecution("exec1", "opp1", domain.StatePending, 1000)
	if err := store.Insert(ctx, exec); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "exec1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	if got.State != domain.StatePending {
		t.Errorf("State mismatch: got %s, want %s", got.State, domain.StatePending)
	}
	if !got.Capital.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Capital mismatch: got %s", got.Capital)
	}
}

func TestExecutionStore_DuplicateKey(t *testing.T) {
	store := NewExecutionStore()
	ctx := context.Background()

	exec := testExecution("exec1", "opp1", domain.StatePending, 1000)
	if err := store.Insert(ctx, exec); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, exec)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestExecutionStore_UpdateState(t *testing.T) {
	store := NewExecutionStore()
	ctx := context.Background()

	exec := testExecution("exec1", "opp1", domain.StatePending, 1000)
	if err := store.Insert(ctx, exec); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	exec.State = domain.StateMonitoring
	exec.BaseAmount = decimal.NewFromFloat(0.5)
	exec.UpdatedAt = 2000
	if err := store.Update(ctx, exec); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, _ := store.GetByID(ctx, "exec1")
	if got.State != domain.StateMonitoring {
		t.Errorf("State mismatch after update: got %s", got.State)
	}
	if got.UpdatedAt != 2000 {
		t.Errorf("UpdatedAt mismatch: got %d", got.UpdatedAt)
	}
}

func TestExecutionStore_UpdateMissing(t *testing.T) {
	store := NewExecutionStore()
	ctx := context.Background()

	err := store.Update(ctx, testExecution("ghost", "opp1", domain.StatePending, 1000))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestExecutionStore_UpdateSpread(t *testing.T) {
	store := NewExecutionStore()
	ctx := context.Background()

	exec := testExecution("exec1", "opp1", domain.StateMonitoring, 1000)
	if err := store.Insert(ctx, exec); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	spread := decimal.NewFromFloat(1.27)
	if err := store.UpdateSpread(ctx, "exec1", spread, 5000); err != nil {
		t.Fatalf("UpdateSpread failed: %v", err)
	}

	got, _ := store.GetByID(ctx, "exec1")
	if !got.CurrentSpread.Equal(spread) {
		t.Errorf("CurrentSpread mismatch: got %s, want %s", got.CurrentSpread, spread)
	}
	if got.UpdatedAt != 5000 {
		t.Errorf("UpdatedAt mismatch: got %d", got.UpdatedAt)
	}
}

func TestExecutionStore_ListActive(t *testing.T) {
	store := NewExecutionStore()
	ctx := context.Background()

	execs := []*domain.FailsafeExecution{
		testExecution("e1", "opp1", domain.StateMonitoring, 1000),
		testExecution("e2", "opp2", domain.StateCompleted, 2000),
		testExecution("e3", "opp3", domain.StateWithdrawn, 3000),
		testExecution("e4", "opp4", domain.StateFailed, 4000),
	}
	for _, e := range execs {
		if err := store.Insert(ctx, e); err != nil {
			t.Fatalf("Insert %s failed: %v", e.ExecutionID, err)
		}
	}

	active, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}

	if len(active) != 2 {
		t.Fatalf("Expected 2 active executions, got %d", len(active))
	}
	// Ordered by started_at ASC
	if active[0].ExecutionID != "e1" || active[1].ExecutionID != "e3" {
		t.Errorf("Unexpected active order: %s, %s", active[0].ExecutionID, active[1].ExecutionID)
	}
}

func TestExecutionStore_ActiveForOpportunity(t *testing.T) {
	store := NewExecutionStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testExecution("e1", "opp1", domain.StateFailed, 1000)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, testExecution("e2", "opp1", domain.StateMonitoring, 2000)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.ActiveForOpportunity(ctx, "opp1")
	if err != nil {
		t.Fatalf("ActiveForOpportunity failed: %v", err)
	}
	if got.ExecutionID != "e2" {
		t.Errorf("Expected e2, got %s", got.ExecutionID)
	}

	_, err = store.ActiveForOpportunity(ctx, "opp2")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for idle opportunity, got %v", err)
	}
}

func TestExecutionStore_Stats(t *testing.T) {
	store := NewExecutionStore()
	ctx := context.Background()

	done := testExecution("e1", "opp1", domain.StateCompleted, 1000)
	done.Profit = decimal.NewNullDecimal(decimal.NewFromFloat(7.60))
	if err := store.Insert(ctx, done); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, testExecution("e2", "opp2", domain.StateFailed, 2000)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, testExecution("e3", "opp3", domain.StateSelling, 3000)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}

	if stats.TotalExecutions != 3 || stats.Completed != 1 || stats.Failed != 1 || stats.Active != 1 {
		t.Errorf("Unexpected counts: %+v", stats)
	}
	if stats.SuccessRate != 0.5 {
		t.Errorf("SuccessRate mismatch: got %f, want 0.5", stats.SuccessRate)
	}
	if !stats.TotalProfit.Equal(decimal.NewFromFloat(7.60)) {
		t.Errorf("TotalProfit mismatch: got %s", stats.TotalProfit)
	}
}

func TestExecutionStore_InvalidInput(t *testing.T) {
	store := NewExecutionStore()
	ctx := context.Background()

	if err := store.Insert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil, got %v", err)
	}
	if err := store.Insert(ctx, &domain.FailsafeExecution{ExecutionID: ""}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty ID, got %v", err)
	}
}

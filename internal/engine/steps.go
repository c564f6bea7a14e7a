package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
	"github.com/biodigitss-hash/CEXMasterP/internal/storage"
)

// stepWriter appends audit entries for one execution. Phase boundary
// entries go through write and propagate storage errors; intermediate
// poll entries go through note, which only logs, so a flaky audit insert
// cannot stall a transfer or monitor loop mid-trade.
type stepWriter struct {
	steps       storage.ExecutionStepStore
	executionID string
	live        bool
	logger      *log.Logger
}

func (w *stepWriter) write(ctx context.Context, step string, outcome domain.StepOutcome, details map[string]any) error {
	entry := &domain.ExecutionStep{
		ExecutionID: w.executionID,
		Step:        step,
		Outcome:     outcome,
		Details:     details,
		Live:        w.live,
		CreatedAt:   time.Now().UnixMilli(),
	}
	if err := w.steps.Append(ctx, entry); err != nil {
		return fmt.Errorf("append step %s/%s: %w", step, outcome, err)
	}
	return nil
}

func (w *stepWriter) note(ctx context.Context, step string, outcome domain.StepOutcome, details map[string]any) {
	if err := w.write(ctx, step, outcome, details); err != nil {
		w.logger.Printf("execution %s: %v", w.executionID, err)
	}
}

// lastStep returns the details of the most recent entry matching step and
// one of the outcomes. Phases use it on re-entry to adopt work that
// already ran before a restart instead of running it again.
func lastStep(entries []*domain.ExecutionStep, step string, outcomes ...domain.StepOutcome) (map[string]any, bool) {
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Step != step {
			continue
		}
		for _, o := range outcomes {
			if e.Outcome == o {
				return e.Details, true
			}
		}
	}
	return nil, false
}

// stepString reads a string detail from a recovered step entry.
func stepString(details map[string]any, key string) string {
	if details == nil {
		return ""
	}
	s, _ := details[key].(string)
	return s
}

// stepInt reads an integer detail from a recovered step entry. JSON
// round-trips store numbers as float64.
func stepInt(details map[string]any, key string) int64 {
	if details == nil {
		return 0
	}
	switch v := details[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

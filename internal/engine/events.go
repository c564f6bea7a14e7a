package engine

import "github.com/biodigitss-hash/CEXMasterP/internal/domain"

// EventSink receives execution lifecycle events for live dashboard push.
// Implementations must not block: the engine calls these inline from the
// execution goroutine.
type EventSink interface {
	ExecutionStarted(exec *domain.FailsafeExecution)
	StateChanged(exec *domain.FailsafeExecution, from domain.ExecutionState)
	SpreadTick(sample *domain.SpreadSample)
	ExecutionCompleted(exec *domain.FailsafeExecution)
	ExecutionFailed(exec *domain.FailsafeExecution)
}

// NopEvents discards all events.
type NopEvents struct{}

var _ EventSink = NopEvents{}

func (NopEvents) ExecutionStarted(*domain.FailsafeExecution)                    {}
func (NopEvents) StateChanged(*domain.FailsafeExecution, domain.ExecutionState) {}
func (NopEvents) SpreadTick(*domain.SpreadSample)                               {}
func (NopEvents) ExecutionCompleted(*domain.FailsafeExecution)                  {}
func (NopEvents) ExecutionFailed(*domain.FailsafeExecution)                     {}

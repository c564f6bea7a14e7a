// Package notify announces execution lifecycle events to an operator
// channel. Sends are fire-and-forget: a delivery failure is logged and
// never aborts the trade that triggered it.
package notify

import (
	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
)

// Notifier receives execution lifecycle events.
type Notifier interface {
	ExecutionStarted(opp *domain.Opportunity, exec *domain.FailsafeExecution)
	ExecutionCompleted(opp *domain.Opportunity, exec *domain.FailsafeExecution)
	ExecutionFailed(opp *domain.Opportunity, exec *domain.FailsafeExecution)
}

// Nop is the notifier used when no channel is configured.
type Nop struct{}

// Verify interface compliance at compile time.
var _ Notifier = Nop{}

func (Nop) ExecutionStarted(*domain.Opportunity, *domain.FailsafeExecution)   {}
func (Nop) ExecutionCompleted(*domain.Opportunity, *domain.FailsafeExecution) {}
func (Nop) ExecutionFailed(*domain.Opportunity, *domain.FailsafeExecution)    {}

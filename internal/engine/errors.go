package engine

import (
	"context"
	"errors"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
)

// Sentinel errors returned by Execute and the execution phases. Callers
// classify them with errors.Is; the API layer maps them to status codes.
var (
	// ErrValidation covers malformed requests: zero or negative prices,
	// price drift beyond the slippage tolerance, non-positive capital and
	// a live execution submitted without confirmation.
	ErrValidation = errors.New("validation failed")

	// ErrNotProfitable is returned when estimated fees consume the gross
	// spread. The opportunity stays in the book; nothing is executed.
	ErrNotProfitable = errors.New("not profitable after fees")

	// ErrAlreadyExecuting is returned when the opportunity already has a
	// non-terminal execution. Duplicates are rejected, never queued.
	ErrAlreadyExecuting = errors.New("opportunity already has an active execution")

	// ErrInsufficientBalance is returned when neither the venue balance
	// nor a wallet top-up can cover the required capital.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrTransferTimeout marks a transfer that missed its arrival window.
	// The funds are not lost: the withdrawal handle in the step log
	// locates them for manual recovery.
	ErrTransferTimeout = errors.New("transfer timed out")

	// ErrCancelled marks an execution stopped by cancellation mid-phase.
	// Waits wrap it together with the context error, so shutdown handling
	// keyed on context.Canceled still sees through it.
	ErrCancelled = errors.New("execution cancelled")
)

// failureReason maps a phase error to the reason code recorded on the
// failed execution row.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled):
		return domain.FailureReasonCancelled
	case errors.Is(err, ErrTransferTimeout):
		return domain.FailureReasonTransferTimeout
	case errors.Is(err, ErrInsufficientBalance):
		return domain.FailureReasonInsufficient
	case errors.Is(err, ErrValidation) || errors.Is(err, ErrNotProfitable):
		return domain.FailureReasonValidation
	default:
		return domain.FailureReasonVenueError
	}
}

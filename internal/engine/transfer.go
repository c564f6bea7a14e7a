package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
	"github.com/biodigitss-hash/CEXMasterP/internal/observability"
	"github.com/biodigitss-hash/CEXMasterP/internal/venue"
	"github.com/biodigitss-hash/CEXMasterP/internal/wallet"
)

// TransferHandle identifies one in-flight transfer. Every field is
// persisted in the step log at submission, so a restart or timeout never
// loses track of where the funds are.
type TransferHandle struct {
	Source       string // venue name, or "wallet" for treasury-originated sends
	WithdrawalID string // venue withdrawal id, empty for wallet sends
	Asset        string
	Amount       decimal.Decimal
	TxID         string // chain transaction id, empty until broadcast
	SubmittedAt  int64  // Unix timestamp in milliseconds
}

// Details renders the handle for the step log.
func (h *TransferHandle) Details() map[string]any {
	return map[string]any{
		"source":        h.Source,
		"withdrawal_id": h.WithdrawalID,
		"asset":         h.Asset,
		"amount":        h.Amount.String(),
		"tx_id":         h.TxID,
		"submitted_at":  h.SubmittedAt,
	}
}

// handleFromStep rebuilds a handle from a recovered step entry.
func handleFromStep(details map[string]any) *TransferHandle {
	amount, _ := decimal.NewFromString(stepString(details, "amount"))
	return &TransferHandle{
		Source:       stepString(details, "source"),
		WithdrawalID: stepString(details, "withdrawal_id"),
		Asset:        stepString(details, "asset"),
		Amount:       amount,
		TxID:         stepString(details, "tx_id"),
		SubmittedAt:  stepInt(details, "submitted_at"),
	}
}

// TransferCoordinator moves funds between venues and the treasury wallet.
// Arrival conditions differ by destination: a venue deposit requires both
// chain depth and the venue's credit record; a wallet deposit requires
// chain depth only. One absolute deadline from submission time bounds
// broadcast and arrival together, so a restart resumes the original
// window rather than granting a fresh one.
type TransferCoordinator struct {
	wallet wallet.Client
	cfg    domain.FailsafeConfig
	steps  *stepWriter
	logger *log.Logger
}

func NewTransferCoordinator(w wallet.Client, cfg domain.FailsafeConfig, steps *stepWriter, logger *log.Logger) *TransferCoordinator {
	if logger == nil {
		logger = log.Default()
	}
	return &TransferCoordinator{wallet: w, cfg: cfg, steps: steps, logger: logger}
}

// Submit requests a venue withdrawal and returns its handle. The caller
// persists the handle in the step log before polling begins.
func (t *TransferCoordinator) Submit(ctx context.Context, source venue.Client, req venue.WithdrawRequest) (*TransferHandle, error) {
	id, err := source.Withdraw(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("withdraw %s %s from %s: %w", req.Amount, req.Asset, source.Name(), err)
	}
	observability.RecordTransferSubmitted()
	return &TransferHandle{
		Source:       source.Name(),
		WithdrawalID: id,
		Asset:        req.Asset,
		Amount:       req.Amount,
		SubmittedAt:  time.Now().UnixMilli(),
	}, nil
}

// SendFromWallet signs a treasury wallet transfer to the venue's deposit
// address. The wallet client serializes signing internally, so concurrent
// executions cannot race the account nonce.
func (t *TransferCoordinator) SendFromWallet(ctx context.Context, dest venue.Client, asset string, amount decimal.Decimal) (*TransferHandle, error) {
	if t.wallet == nil {
		return nil, fmt.Errorf("%w: no treasury wallet configured", ErrInsufficientBalance)
	}
	addr, err := dest.DepositAddress(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("deposit address for %s on %s: %w", asset, dest.Name(), err)
	}
	txID, err := t.wallet.Transfer(ctx, wallet.TransferRequest{Asset: asset, To: addr, Amount: amount})
	if err != nil {
		return nil, fmt.Errorf("wallet transfer %s %s to %s: %w", amount, asset, dest.Name(), err)
	}
	observability.RecordTransferSubmitted()
	return &TransferHandle{
		Source:      "wallet",
		Asset:       asset,
		Amount:      amount,
		TxID:        txID,
		SubmittedAt: time.Now().UnixMilli(),
	}, nil
}

// AwaitBroadcast polls the source venue until the withdrawal carries a
// chain transaction id, filling handle.TxID. step names the audit entries.
func (t *TransferCoordinator) AwaitBroadcast(ctx context.Context, source venue.Client, handle *TransferHandle, step string) error {
	if handle.TxID != "" {
		return nil
	}
	deadline := t.deadline(handle)
	ticker := time.NewTicker(t.cfg.TransferPollInterval)
	defer ticker.Stop()
	for {
		if time.Now().After(deadline) {
			return t.timeout(handle, "broadcast")
		}
		rec, err := source.WithdrawalByID(ctx, handle.Asset, handle.WithdrawalID)
		switch {
		case err != nil:
			t.logger.Printf("withdrawal %s on %s: poll failed: %v", handle.WithdrawalID, source.Name(), err)
		case rec.Status == venue.WithdrawalStatusFailed:
			return fmt.Errorf("%s reports withdrawal %s failed", source.Name(), handle.WithdrawalID)
		case rec.TxID != "":
			handle.TxID = rec.TxID
			t.steps.note(ctx, step, domain.OutcomeBroadcast, handle.Details())
			return nil
		default:
			t.steps.note(ctx, step, domain.OutcomeChecking, map[string]any{
				"withdrawal_id": handle.WithdrawalID,
				"status":        rec.Status,
			})
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("awaiting broadcast of %s: %w: %w", handle.WithdrawalID, ErrCancelled, ctx.Err())
		case <-ticker.C:
		}
	}
}

// AwaitArrival polls until the transfer has the configured chain depth
// and, when dest is a venue, until the venue credits the deposit. Pass a
// nil dest for wallet-bound transfers, which settle on chain depth alone.
func (t *TransferCoordinator) AwaitArrival(ctx context.Context, dest venue.Client, handle *TransferHandle, step string) error {
	if handle.TxID == "" {
		return fmt.Errorf("transfer %s has no chain transaction to await", handle.WithdrawalID)
	}
	deadline := t.deadline(handle)
	ticker := time.NewTicker(t.cfg.TransferPollInterval)
	defer ticker.Stop()
	for {
		if time.Now().After(deadline) {
			return t.timeout(handle, "arrival")
		}
		confs := t.confirmations(ctx, handle.TxID)
		credited := dest == nil
		if dest != nil {
			var err error
			credited, err = t.credited(ctx, dest, handle)
			if err != nil {
				return err
			}
		}
		t.steps.note(ctx, step, domain.OutcomeConfirming, map[string]any{
			"tx_id":          handle.TxID,
			"confirmations":  confs,
			"required":       t.cfg.ConfirmationCount,
			"venue_credited": credited,
		})
		if confs >= int64(t.cfg.ConfirmationCount) && credited {
			elapsed := time.Since(time.UnixMilli(handle.SubmittedAt))
			observability.RecordTransferArrived(elapsed.Seconds())
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("awaiting arrival of %s: %w: %w", handle.TxID, ErrCancelled, ctx.Err())
		case <-ticker.C:
		}
	}
}

// confirmations reads the chain depth of a transaction. A node miss or an
// unindexed transaction counts as zero depth and the poll continues.
func (t *TransferCoordinator) confirmations(ctx context.Context, txID string) int64 {
	if t.wallet == nil {
		// Without a chain client the venue credit is the only signal.
		return int64(t.cfg.ConfirmationCount)
	}
	confs, err := t.wallet.Confirmations(ctx, txID)
	if err != nil {
		if !errors.Is(err, wallet.ErrTxNotFound) {
			t.logger.Printf("confirmations for %s: %v", txID, err)
		}
		return 0
	}
	return confs
}

func (t *TransferCoordinator) credited(ctx context.Context, dest venue.Client, handle *TransferHandle) (bool, error) {
	dep, err := dest.FindDeposit(ctx, handle.Asset, handle.TxID)
	if err != nil {
		if errors.Is(err, venue.ErrDepositNotSeen) {
			return false, nil
		}
		t.logger.Printf("deposit lookup for %s on %s: %v", handle.TxID, dest.Name(), err)
		return false, nil
	}
	return dep.Status == venue.DepositStatusCredited, nil
}

func (t *TransferCoordinator) deadline(handle *TransferHandle) time.Time {
	return time.UnixMilli(handle.SubmittedAt).Add(t.cfg.TransferTimeout)
}

func (t *TransferCoordinator) timeout(handle *TransferHandle, stage string) error {
	observability.RecordTransferTimeout()
	return fmt.Errorf("%w: %s of %s %s from %s (withdrawal %s, tx %q) exceeded %s, funds recoverable at the recorded handle",
		ErrTransferTimeout, stage, handle.Amount, handle.Asset, handle.Source, handle.WithdrawalID, handle.TxID, t.cfg.TransferTimeout)
}

package wallet

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrTxNotFound is returned by Confirmations while the transaction has not
// been mined yet.
var ErrTxNotFound = errors.New("transaction not found")

// Client is a self-custody wallet on one chain. Implementations must
// serialize signing internally so concurrent transfers cannot reuse a nonce.
type Client interface {
	// Address returns the wallet's receive address.
	Address() string

	// Balance reads the spendable balance for an asset.
	Balance(ctx context.Context, asset string) (decimal.Decimal, error)

	// Transfer signs and broadcasts a transfer, returning the tx hash.
	Transfer(ctx context.Context, req TransferRequest) (string, error)

	// Confirmations counts how many blocks have sealed the transaction.
	// Returns 0 with ErrTxNotFound while the tx is still in the mempool.
	Confirmations(ctx context.Context, txHash string) (int64, error)
}

// TransferRequest describes an outbound transfer.
type TransferRequest struct {
	Asset  string
	To     string
	Amount decimal.Decimal
}

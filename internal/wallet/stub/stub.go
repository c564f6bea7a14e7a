package stub

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/biodigitss-hash/CEXMasterP/internal/wallet"
)

// Client implements wallet.Client deterministically for simulated mode and
// tests. Transfers debit the balance and return a synthetic tx hash whose
// confirmation count grows by one per Confirmations poll.
type Client struct {
	mu      sync.Mutex
	address string

	// ConfirmDelay is how many Confirmations polls a tx stays unmined
	// before the count starts growing.
	ConfirmDelay int

	// AutoTrack makes Confirmations adopt unknown tx hashes instead of
	// reporting wallet.ErrTxNotFound, so tests need not predict the hashes
	// venues mint for their withdrawals.
	AutoTrack bool

	balances map[string]decimal.Decimal
	txPolls  map[string]int
	errs     map[string][]error
	nextID   int
}

// NewClient creates a stub wallet with the given receive address.
func NewClient(address string) *Client {
	return &Client{
		address:  address,
		balances: make(map[string]decimal.Decimal),
		txPolls:  make(map[string]int),
		errs:     make(map[string][]error),
	}
}

// Verify interface compliance at compile time.
var _ wallet.Client = (*Client)(nil)

// SetBalance sets the spendable balance for an asset.
func (c *Client) SetBalance(asset string, amount decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[asset] = amount
}

// Credit adds to the balance, for scripting inbound deposits.
func (c *Client) Credit(asset string, amount decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[asset] = c.balances[asset].Add(amount)
}

// MustBalance reads the current balance for an asset without the error
// path, for test assertions.
func (c *Client) MustBalance(asset string) decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balances[asset]
}

// AddTx registers an externally created tx hash so Confirmations can track
// it, for arrivals that did not originate from this wallet.
func (c *Client) AddTx(txHash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.txPolls[txHash]; !ok {
		c.txPolls[txHash] = 0
	}
}

// FailNext queues an error for the next call of the given op: balance,
// transfer, confirmations.
func (c *Client) FailNext(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[op] = append(c.errs[op], err)
}

// Address returns the wallet's receive address.
func (c *Client) Address() string {
	return c.address
}

// Balance returns the scripted balance for an asset.
func (c *Client) Balance(_ context.Context, asset string) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.popErr("balance"); err != nil {
		return decimal.Zero, err
	}
	return c.balances[asset], nil
}

// Transfer debits the balance and returns a synthetic tx hash.
func (c *Client) Transfer(_ context.Context, req wallet.TransferRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.popErr("transfer"); err != nil {
		return "", err
	}
	if !req.Amount.IsPositive() {
		return "", fmt.Errorf("transfer amount must be positive, got %s", req.Amount)
	}
	if c.balances[req.Asset].LessThan(req.Amount) {
		return "", fmt.Errorf("insufficient %s balance", req.Asset)
	}

	c.balances[req.Asset] = c.balances[req.Asset].Sub(req.Amount)
	c.nextID++
	hash := fmt.Sprintf("%s-tx-%d", c.address, c.nextID)
	c.txPolls[hash] = 0
	return hash, nil
}

// Confirmations advances the scripted tx one poll. Unknown hashes report
// wallet.ErrTxNotFound.
func (c *Client) Confirmations(_ context.Context, txHash string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.popErr("confirmations"); err != nil {
		return 0, err
	}

	polls, ok := c.txPolls[txHash]
	if !ok {
		if !c.AutoTrack {
			return 0, wallet.ErrTxNotFound
		}
		c.txPolls[txHash] = 0
	}

	c.txPolls[txHash] = polls + 1
	confs := polls + 1 - c.ConfirmDelay
	if confs < 0 {
		confs = 0
	}
	return int64(confs), nil
}

// popErr consumes one queued error for the op. Callers hold the lock.
func (c *Client) popErr(op string) error {
	queue := c.errs[op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	c.errs[op] = queue[1:]
	return err
}

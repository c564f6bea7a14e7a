package stub

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/biodigitss-hash/CEXMasterP/internal/wallet"
)

func TestTransferDebitsAndTracksTx(t *testing.T) {
	c := NewClient("0xwallet")
	c.SetBalance("ETH", decimal.NewFromInt(2))

	ctx := context.Background()
	hash, err := c.Transfer(ctx, wallet.TransferRequest{
		Asset:  "ETH",
		To:     "binance-deposit-eth",
		Amount: decimal.NewFromFloat(0.5),
	})
	if err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	if hash == "" {
		t.Fatal("Transfer() returned empty hash")
	}

	bal, err := c.Balance(ctx, "ETH")
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	if !bal.Equal(decimal.NewFromFloat(1.5)) {
		t.Errorf("balance = %s, want 1.5", bal)
	}

	confs, err := c.Confirmations(ctx, hash)
	if err != nil {
		t.Fatalf("Confirmations() error = %v", err)
	}
	if confs != 1 {
		t.Errorf("first poll confirmations = %d, want 1", confs)
	}
}

func TestTransferInsufficientBalance(t *testing.T) {
	c := NewClient("0xwallet")
	c.SetBalance("ETH", decimal.NewFromFloat(0.1))

	_, err := c.Transfer(context.Background(), wallet.TransferRequest{
		Asset:  "ETH",
		To:     "somewhere",
		Amount: decimal.NewFromInt(1),
	})
	if err == nil {
		t.Fatal("Transfer() should fail on insufficient balance")
	}
}

func TestConfirmationsDelay(t *testing.T) {
	c := NewClient("0xwallet")
	c.ConfirmDelay = 2
	c.AddTx("ext-tx-1")

	ctx := context.Background()
	want := []int64{0, 0, 1, 2}
	for i, w := range want {
		confs, err := c.Confirmations(ctx, "ext-tx-1")
		if err != nil {
			t.Fatalf("poll %d: Confirmations() error = %v", i+1, err)
		}
		if confs != w {
			t.Errorf("poll %d: confirmations = %d, want %d", i+1, confs, w)
		}
	}
}

func TestConfirmationsUnknownTx(t *testing.T) {
	c := NewClient("0xwallet")
	_, err := c.Confirmations(context.Background(), "missing")
	if !errors.Is(err, wallet.ErrTxNotFound) {
		t.Fatalf("Confirmations() error = %v, want ErrTxNotFound", err)
	}
}

func TestFailNextConsumesQueuedError(t *testing.T) {
	c := NewClient("0xwallet")
	c.SetBalance("ETH", decimal.NewFromInt(1))
	c.FailNext("transfer", errors.New("rpc down"))

	req := wallet.TransferRequest{Asset: "ETH", To: "dest", Amount: decimal.NewFromFloat(0.1)}
	if _, err := c.Transfer(context.Background(), req); err == nil {
		t.Fatal("first Transfer() should fail")
	}
	if _, err := c.Transfer(context.Background(), req); err != nil {
		t.Fatalf("second Transfer() error = %v, want success", err)
	}
}

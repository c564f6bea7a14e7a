package stub

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/biodigitss-hash/CEXMasterP/internal/venue"
)

func TestTickerScriptAdvancesAndRepeats(t *testing.T) {
	c := NewClient("alpha")
	c.PushTicker("ETHUSDT", decimal.NewFromInt(3000), decimal.NewFromInt(3001))
	c.PushTicker("ETHUSDT", decimal.NewFromInt(3010), decimal.NewFromInt(3011))

	ctx := context.Background()
	first, err := c.Ticker(ctx, "ETHUSDT")
	if err != nil {
		t.Fatalf("Ticker() error = %v", err)
	}
	if !first.Bid.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("first bid = %s, want 3000", first.Bid)
	}

	second, err := c.Ticker(ctx, "ETHUSDT")
	if err != nil {
		t.Fatalf("Ticker() error = %v", err)
	}
	if !second.Bid.Equal(decimal.NewFromInt(3010)) {
		t.Errorf("second bid = %s, want 3010", second.Bid)
	}

	// Script is exhausted, the last snapshot repeats.
	third, err := c.Ticker(ctx, "ETHUSDT")
	if err != nil {
		t.Fatalf("Ticker() error = %v", err)
	}
	if !third.Bid.Equal(decimal.NewFromInt(3010)) {
		t.Errorf("third bid = %s, want 3010", third.Bid)
	}
}

func TestTickerUnscriptedPair(t *testing.T) {
	c := NewClient("alpha")
	if _, err := c.Ticker(context.Background(), "BTCUSDT"); err == nil {
		t.Fatal("Ticker() on unscripted pair should fail")
	}
}

func TestPlaceMarketOrderBuyMovesBalances(t *testing.T) {
	c := NewClient("alpha")
	c.CommissionRate = decimal.NewFromFloat(0.001)
	c.AddPair("ETHUSDT", "ETH", "USDT")
	c.PushTicker("ETHUSDT", decimal.NewFromInt(1999), decimal.NewFromInt(2000))
	c.SetBalance("USDT", decimal.NewFromInt(1000))

	fill, err := c.PlaceMarketOrder(context.Background(), venue.MarketOrder{
		Pair:        "ETHUSDT",
		Side:        venue.SideBuy,
		QuoteAmount: decimal.NewFromInt(1000),
	})
	if err != nil {
		t.Fatalf("PlaceMarketOrder() error = %v", err)
	}

	// 1000 / 2000 = 0.5 ETH gross, 0.0005 ETH commission. The fill
	// reports gross, the balance is credited net.
	if !fill.BaseFilled.Equal(decimal.NewFromFloat(0.5)) {
		t.Errorf("BaseFilled = %s, want 0.5", fill.BaseFilled)
	}
	if !fill.Commission.Equal(decimal.NewFromFloat(0.0005)) {
		t.Errorf("Commission = %s, want 0.0005", fill.Commission)
	}
	if !fill.AvgPrice.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("AvgPrice = %s, want 2000", fill.AvgPrice)
	}
	if fill.CommissionAsset != "ETH" {
		t.Errorf("CommissionAsset = %s, want ETH", fill.CommissionAsset)
	}
	if !c.FreeBalance("USDT").IsZero() {
		t.Errorf("USDT balance = %s, want 0", c.FreeBalance("USDT"))
	}
	wantHeld := decimal.NewFromFloat(0.4995)
	if !c.FreeBalance("ETH").Equal(wantHeld) {
		t.Errorf("ETH balance = %s, want %s", c.FreeBalance("ETH"), wantHeld)
	}
}

func TestPlaceMarketOrderSellMovesBalances(t *testing.T) {
	c := NewClient("alpha")
	c.CommissionRate = decimal.NewFromFloat(0.001)
	c.AddPair("ETHUSDT", "ETH", "USDT")
	c.PushTicker("ETHUSDT", decimal.NewFromInt(2000), decimal.NewFromInt(2001))
	c.SetBalance("ETH", decimal.NewFromFloat(0.5))

	fill, err := c.PlaceMarketOrder(context.Background(), venue.MarketOrder{
		Pair:       "ETHUSDT",
		Side:       venue.SideSell,
		BaseAmount: decimal.NewFromFloat(0.5),
	})
	if err != nil {
		t.Fatalf("PlaceMarketOrder() error = %v", err)
	}

	// 0.5 * 2000 = 1000 USDT gross, 1 USDT commission, 999 credited.
	if !fill.QuoteAmount.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("QuoteAmount = %s, want 1000", fill.QuoteAmount)
	}
	if !fill.Commission.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Commission = %s, want 1", fill.Commission)
	}
	if !c.FreeBalance("ETH").IsZero() {
		t.Errorf("ETH balance = %s, want 0", c.FreeBalance("ETH"))
	}
	wantCredited := decimal.NewFromInt(999)
	if !c.FreeBalance("USDT").Equal(wantCredited) {
		t.Errorf("USDT balance = %s, want %s", c.FreeBalance("USDT"), wantCredited)
	}
}

func TestFillAfterDefersOrderSettlementStatus(t *testing.T) {
	c := NewClient("alpha")
	c.AddPair("ETHUSDT", "ETH", "USDT")
	c.PushTicker("ETHUSDT", decimal.NewFromInt(1999), decimal.NewFromInt(2000))
	c.SetBalance("USDT", decimal.NewFromInt(1000))
	c.FillAfter = 2

	ctx := context.Background()
	fill, err := c.PlaceMarketOrder(ctx, venue.MarketOrder{
		Pair:        "ETHUSDT",
		Side:        venue.SideBuy,
		QuoteAmount: decimal.NewFromInt(1000),
	})
	if err != nil {
		t.Fatalf("PlaceMarketOrder() error = %v", err)
	}
	if fill.Status != venue.OrderStatusPartiallyFilled {
		t.Fatalf("placement status = %s, want partially_filled", fill.Status)
	}
	// Balances still settle at placement.
	if !c.FreeBalance("ETH").Equal(decimal.NewFromFloat(0.4995)) {
		t.Errorf("ETH balance = %s, want 0.4995", c.FreeBalance("ETH"))
	}

	first, err := c.OrderStatus(ctx, "ETHUSDT", fill.OrderID)
	if err != nil {
		t.Fatalf("OrderStatus() error = %v", err)
	}
	if first.Status != venue.OrderStatusPartiallyFilled {
		t.Fatalf("first poll status = %s, want partially_filled", first.Status)
	}

	second, err := c.OrderStatus(ctx, "ETHUSDT", fill.OrderID)
	if err != nil {
		t.Fatalf("OrderStatus() error = %v", err)
	}
	if second.Status != venue.OrderStatusFilled {
		t.Fatalf("second poll status = %s, want filled", second.Status)
	}
	if !second.BaseFilled.Equal(fill.BaseFilled) {
		t.Errorf("BaseFilled = %s, want %s", second.BaseFilled, fill.BaseFilled)
	}
}

func TestPlaceMarketOrderInsufficientBalance(t *testing.T) {
	c := NewClient("alpha")
	c.AddPair("ETHUSDT", "ETH", "USDT")
	c.PushTicker("ETHUSDT", decimal.NewFromInt(1999), decimal.NewFromInt(2000))
	c.SetBalance("USDT", decimal.NewFromInt(10))

	_, err := c.PlaceMarketOrder(context.Background(), venue.MarketOrder{
		Pair:        "ETHUSDT",
		Side:        venue.SideBuy,
		QuoteAmount: decimal.NewFromInt(1000),
	})
	if err == nil {
		t.Fatal("PlaceMarketOrder() should fail on insufficient balance")
	}
}

func TestWithdrawSettlesIntoLinkedDeposit(t *testing.T) {
	source := NewClient("alpha")
	dest := NewClient("beta")
	source.LinkDeposits(dest)
	source.BroadcastAfter = 1
	source.WithdrawalFee = decimal.NewFromFloat(0.01)
	source.SetBalance("ETH", decimal.NewFromInt(1))

	ctx := context.Background()
	id, err := source.Withdraw(ctx, venue.WithdrawRequest{
		Asset:   "ETH",
		Address: "beta-deposit-eth",
		Amount:  decimal.NewFromFloat(0.5),
	})
	if err != nil {
		t.Fatalf("Withdraw() error = %v", err)
	}
	if !source.FreeBalance("ETH").Equal(decimal.NewFromFloat(0.49)) {
		t.Errorf("source ETH balance = %s, want 0.49", source.FreeBalance("ETH"))
	}

	// First poll stays pending without a TxID.
	w, err := source.WithdrawalByID(ctx, "ETH", id)
	if err != nil {
		t.Fatalf("WithdrawalByID() error = %v", err)
	}
	if w.Status != venue.WithdrawalStatusPending || w.TxID != "" {
		t.Fatalf("first poll: status = %s, txID = %q, want pending with no txID", w.Status, w.TxID)
	}

	w, err = source.WithdrawalByID(ctx, "ETH", id)
	if err != nil {
		t.Fatalf("WithdrawalByID() error = %v", err)
	}
	if w.Status != venue.WithdrawalStatusCompleted {
		t.Fatalf("second poll: status = %s, want completed", w.Status)
	}
	if w.TxID == "" {
		t.Fatal("second poll: expected a TxID")
	}

	// Deposit becomes visible on the destination and credits on first poll.
	d, err := dest.FindDeposit(ctx, "ETH", w.TxID)
	if err != nil {
		t.Fatalf("FindDeposit() error = %v", err)
	}
	if d.Status != venue.DepositStatusCredited {
		t.Fatalf("deposit status = %s, want credited", d.Status)
	}
	if !dest.FreeBalance("ETH").Equal(decimal.NewFromFloat(0.5)) {
		t.Errorf("dest ETH balance = %s, want 0.5", dest.FreeBalance("ETH"))
	}
}

func TestFindDepositUnknownTx(t *testing.T) {
	c := NewClient("alpha")
	_, err := c.FindDeposit(context.Background(), "ETH", "missing-tx")
	if !errors.Is(err, venue.ErrDepositNotSeen) {
		t.Fatalf("FindDeposit() error = %v, want ErrDepositNotSeen", err)
	}
}

func TestFailNextConsumesQueuedError(t *testing.T) {
	c := NewClient("alpha")
	c.PushTicker("ETHUSDT", decimal.NewFromInt(3000), decimal.NewFromInt(3001))

	c.FailNext("ticker", venue.NewRateLimited("alpha", "ticker"))

	_, err := c.Ticker(context.Background(), "ETHUSDT")
	if !venue.IsRateLimited(err) {
		t.Fatalf("first Ticker() error = %v, want rate limited", err)
	}

	if _, err := c.Ticker(context.Background(), "ETHUSDT"); err != nil {
		t.Fatalf("second Ticker() error = %v, want success", err)
	}
}

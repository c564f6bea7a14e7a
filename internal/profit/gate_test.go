package profit

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
)

func testOpportunity(spreadPct string) *domain.Opportunity {
	return &domain.Opportunity{
		OpportunityID: "opp-1",
		TokenSymbol:   "ETH",
		Pair:          "ETHUSDT",
		BuyVenue:      "binance",
		SellVenue:     "kraken",
		BuyPrice:      decimal.RequireFromString("3000.25"),
		SellPrice:     decimal.RequireFromString("3043.15"),
		SpreadPct:     decimal.RequireFromString(spreadPct),
	}
}

func TestEvaluate_RejectsWhenFeesExceedGross(t *testing.T) {
	// 0.6% on 1000 USDT grosses 6.00, fees total 7.50.
	opp := testOpportunity("0.6")
	fees := domain.FeeQuote{
		TradingFeeBuy:  decimal.NewFromInt(1),
		TradingFeeSell: decimal.NewFromInt(1),
		WithdrawalFee:  decimal.NewFromInt(4),
		NetworkGas:     decimal.RequireFromString("1.5"),
	}

	ev := Evaluate(opp, decimal.NewFromInt(1000), fees)

	if ev.Profitable {
		t.Fatal("expected rejection, trade came out profitable")
	}
	if !ev.Gross.Equal(decimal.NewFromInt(6)) {
		t.Errorf("Gross = %s, want 6", ev.Gross)
	}
	if !ev.Net.Equal(decimal.RequireFromString("-1.5")) {
		t.Errorf("Net = %s, want -1.5", ev.Net)
	}
	if ev.Reason == "" {
		t.Error("expected a rejection reason")
	}
}

func TestEvaluate_AcceptsWhenNetPositive(t *testing.T) {
	// 1.43% on 1000 USDT grosses 14.30, fees total 6.70, net 7.60.
	opp := testOpportunity("1.43")
	fees := domain.FeeQuote{
		TradingFeeBuy:  decimal.NewFromInt(1),
		TradingFeeSell: decimal.NewFromInt(1),
		WithdrawalFee:  decimal.RequireFromString("3.2"),
		NetworkGas:     decimal.RequireFromString("1.5"),
	}

	ev := Evaluate(opp, decimal.NewFromInt(1000), fees)

	if !ev.Profitable {
		t.Fatalf("expected acceptance, rejected with: %s", ev.Reason)
	}
	if !ev.Gross.Equal(decimal.RequireFromString("14.3")) {
		t.Errorf("Gross = %s, want 14.3", ev.Gross)
	}
	if !ev.Net.Equal(decimal.RequireFromString("7.6")) {
		t.Errorf("Net = %s, want 7.6", ev.Net)
	}
	if ev.Reason != "" {
		t.Errorf("Reason = %q, want empty on acceptance", ev.Reason)
	}
}

func TestEvaluate_RejectsBreakEven(t *testing.T) {
	// Net exactly zero is not worth the execution risk.
	opp := testOpportunity("1.0")
	fees := domain.FeeQuote{
		TradingFeeBuy:  decimal.NewFromInt(5),
		TradingFeeSell: decimal.NewFromInt(5),
	}

	ev := Evaluate(opp, decimal.NewFromInt(1000), fees)

	if ev.Profitable {
		t.Fatal("break-even trade should be rejected")
	}
	if !ev.Net.IsZero() {
		t.Errorf("Net = %s, want 0", ev.Net)
	}
}

func TestEvaluate_RejectsZeroPrice(t *testing.T) {
	opp := testOpportunity("1.43")
	opp.SellPrice = decimal.Zero

	ev := Evaluate(opp, decimal.NewFromInt(1000), domain.FeeQuote{})

	if ev.Profitable {
		t.Fatal("zero sell price should be rejected regardless of spread")
	}
	if !strings.Contains(ev.Reason, "invalid prices") {
		t.Errorf("Reason = %q, want invalid prices", ev.Reason)
	}
}

func TestEvaluationDetails(t *testing.T) {
	opp := testOpportunity("1.43")
	fees := domain.FeeQuote{
		TradingFeeBuy:  decimal.NewFromInt(1),
		TradingFeeSell: decimal.NewFromInt(1),
		WithdrawalFee:  decimal.RequireFromString("3.2"),
		NetworkGas:     decimal.RequireFromString("1.5"),
	}

	d := Evaluate(opp, decimal.NewFromInt(1000), fees).Details()

	if d["net_profit"] != "7.6" {
		t.Errorf("net_profit = %v, want 7.6", d["net_profit"])
	}
	if d["profitable"] != true {
		t.Errorf("profitable = %v, want true", d["profitable"])
	}
	if _, ok := d["reason"]; ok {
		t.Error("accepted evaluation should not carry a reason")
	}
}

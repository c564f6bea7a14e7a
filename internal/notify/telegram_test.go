package notify

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
)

func testOpportunity() *domain.Opportunity {
	return &domain.Opportunity{
		OpportunityID: "opp-1",
		TokenSymbol:   "ETH",
		Pair:          "ETHUSDT",
		BuyVenue:      "binance",
		SellVenue:     "kraken",
		SpreadPct:     decimal.RequireFromString("1.43"),
	}
}

func TestFormatStarted(t *testing.T) {
	exec := &domain.FailsafeExecution{
		ExecutionID: "exec-1",
		Capital:     decimal.NewFromInt(1000),
		Live:        true,
	}

	msg := FormatStarted(testOpportunity(), exec)

	for _, want := range []string{"🔴 LIVE", "ETH", "$1000.00", "binance", "kraken", "1.4300%"} {
		if !strings.Contains(msg, want) {
			t.Errorf("FormatStarted missing %q in:\n%s", want, msg)
		}
	}
}

func TestFormatStartedTestMode(t *testing.T) {
	exec := &domain.FailsafeExecution{Capital: decimal.NewFromInt(500)}

	msg := FormatStarted(testOpportunity(), exec)

	if !strings.Contains(msg, "🟡 TEST") {
		t.Errorf("FormatStarted should mark simulated runs, got:\n%s", msg)
	}
}

func TestFormatCompletedProfit(t *testing.T) {
	exec := &domain.FailsafeExecution{
		Capital:    decimal.NewFromInt(1000),
		BaseAmount: decimal.RequireFromString("0.4995"),
		Profit:     decimal.NewNullDecimal(decimal.RequireFromString("7.6")),
	}

	msg := FormatCompleted(testOpportunity(), exec)

	for _, want := range []string{"✅", "📈", "$7.6000", "0.7600%"} {
		if !strings.Contains(msg, want) {
			t.Errorf("FormatCompleted missing %q in:\n%s", want, msg)
		}
	}
}

func TestFormatCompletedLoss(t *testing.T) {
	exec := &domain.FailsafeExecution{
		Capital: decimal.NewFromInt(1000),
		Profit:  decimal.NewNullDecimal(decimal.RequireFromString("-2.5")),
	}

	msg := FormatCompleted(testOpportunity(), exec)

	for _, want := range []string{"❌", "📉", "$-2.5000"} {
		if !strings.Contains(msg, want) {
			t.Errorf("FormatCompleted missing %q in:\n%s", want, msg)
		}
	}
}

func TestFormatFailed(t *testing.T) {
	exec := &domain.FailsafeExecution{
		Capital:       decimal.NewFromInt(1000),
		FailureReason: domain.FailureReasonTransferTimeout,
	}

	msg := FormatFailed(testOpportunity(), exec)

	for _, want := range []string{"🚨", "transfer_timeout", "binance → kraken"} {
		if !strings.Contains(msg, want) {
			t.Errorf("FormatFailed missing %q in:\n%s", want, msg)
		}
	}
}

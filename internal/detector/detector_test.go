package detector

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/biodigitss-hash/CEXMasterP/internal/storage/memory"
	"github.com/biodigitss-hash/CEXMasterP/internal/venue"
	venuestub "github.com/biodigitss-hash/CEXMasterP/internal/venue/stub"
)

// newTestScanner wires a scanner over two stub venues and memory stores.
func newTestScanner(t *testing.T) (*Scanner, *venuestub.Client, *venuestub.Client, *memory.OpportunityStore) {
	t.Helper()
	alpha := venuestub.NewClient("alpha")
	beta := venuestub.NewClient("beta")
	for _, v := range []*venuestub.Client{alpha, beta} {
		v.AddPair("ETHUSDT", "ETH", "USDT")
	}
	opps := memory.NewOpportunityStore()
	settings := memory.NewSettingsStore()
	s := New(Options{
		Venues:        venue.NewRegistry(alpha, beta),
		Opportunities: opps,
		Settings:      settings,
		Pairs:         []Pair{{Token: "ETH", Symbol: "ETHUSDT"}},
		ScanInterval:  time.Minute,
		Logger:        log.New(io.Discard, "", 0),
	})
	return s, alpha, beta, opps
}

func TestScanOnceDetectsSpread(t *testing.T) {
	s, alpha, beta, opps := newTestScanner(t)
	// Ask 2000 on alpha, bid 2030 on beta: 1.5% route, above the 0.5%
	// default threshold. The reverse route is deeply negative.
	alpha.PushTicker("ETHUSDT", decimal.NewFromInt(1999), decimal.NewFromInt(2000))
	beta.PushTicker("ETHUSDT", decimal.NewFromInt(2030), decimal.NewFromInt(2031))

	found, err := s.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("ScanOnce() error = %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("found %d opportunities, want 1", len(found))
	}
	opp := found[0]
	if opp.BuyVenue != "alpha" || opp.SellVenue != "beta" {
		t.Errorf("route = %s -> %s, want alpha -> beta", opp.BuyVenue, opp.SellVenue)
	}
	if !opp.BuyPrice.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("buy price = %s, want 2000 (the ask, not the bid)", opp.BuyPrice)
	}
	if !opp.SellPrice.Equal(decimal.NewFromInt(2030)) {
		t.Errorf("sell price = %s, want 2030", opp.SellPrice)
	}
	if !opp.SpreadPct.Equal(decimal.NewFromFloat(1.5)) {
		t.Errorf("spread = %s, want 1.5", opp.SpreadPct)
	}
	if opp.Confidence <= 0 || opp.Confidence > 1 {
		t.Errorf("confidence = %v, want in (0,1]", opp.Confidence)
	}

	stored, err := opps.GetByID(context.Background(), opp.OpportunityID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.Pair != "ETHUSDT" || stored.TokenSymbol != "ETH" {
		t.Errorf("stored pair = %s/%s, want ETHUSDT/ETH", stored.Pair, stored.TokenSymbol)
	}
}

func TestScanOnceBelowThreshold(t *testing.T) {
	s, alpha, beta, _ := newTestScanner(t)
	// 0.25% route stays under the 0.5% default threshold.
	alpha.PushTicker("ETHUSDT", decimal.NewFromInt(1999), decimal.NewFromInt(2000))
	beta.PushTicker("ETHUSDT", decimal.NewFromInt(2005), decimal.NewFromInt(2006))

	found, err := s.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("ScanOnce() error = %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("found %d opportunities, want none", len(found))
	}
}

func TestScanOnceDeduplicatesWithinBucket(t *testing.T) {
	s, alpha, beta, opps := newTestScanner(t)
	for i := 0; i < 2; i++ {
		alpha.PushTicker("ETHUSDT", decimal.NewFromInt(1999), decimal.NewFromInt(2000))
		beta.PushTicker("ETHUSDT", decimal.NewFromInt(2030), decimal.NewFromInt(2031))
	}

	first, err := s.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("first ScanOnce() error = %v", err)
	}
	second, err := s.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("second ScanOnce() error = %v", err)
	}
	if len(first) != 1 || len(second) != 0 {
		t.Fatalf("found %d then %d opportunities, want 1 then 0", len(first), len(second))
	}
	all, err := opps.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("stored %d opportunities, want 1", len(all))
	}
}

func TestScanOnceSkipsFailingVenue(t *testing.T) {
	s, alpha, beta, _ := newTestScanner(t)
	alpha.PushTicker("ETHUSDT", decimal.NewFromInt(1999), decimal.NewFromInt(2000))
	beta.PushTicker("ETHUSDT", decimal.NewFromInt(2030), decimal.NewFromInt(2031))
	beta.FailNext("ticker", venue.NewRateLimited("beta", "ticker"))

	// With beta unquotable only one venue remains, so no route forms; the
	// scan itself still succeeds.
	found, err := s.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("ScanOnce() error = %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("found %d opportunities, want none", len(found))
	}
}

func TestScanOnceSkipsZeroPriceBook(t *testing.T) {
	s, alpha, beta, _ := newTestScanner(t)
	alpha.PushTicker("ETHUSDT", decimal.NewFromInt(1999), decimal.NewFromInt(2000))
	beta.PushTicker("ETHUSDT", decimal.NewFromInt(2030), decimal.Zero)

	found, err := s.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("ScanOnce() error = %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("found %d opportunities from a half-empty book, want none", len(found))
	}
}

func TestConfidenceSaturates(t *testing.T) {
	threshold := decimal.NewFromFloat(0.5)
	cases := []struct {
		spread decimal.Decimal
		want   float64
	}{
		{decimal.NewFromFloat(0.5), 0.5},
		{decimal.NewFromFloat(1.0), 1.0},
		{decimal.NewFromFloat(5.0), 1.0},
	}
	for _, tc := range cases {
		if got := confidence(tc.spread, threshold); got != tc.want {
			t.Errorf("confidence(%s) = %v, want %v", tc.spread, got, tc.want)
		}
	}
}

package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
	"github.com/biodigitss-hash/CEXMasterP/internal/storage"
)

func testOpportunity(id string, detectedAt int64) *domain.Opportunity {
	return &domain.Opportunity{
		OpportunityID: id,
		TokenSymbol:   "ETH",
		Pair:          "ETHUSDT",
		BuyVenue:      "binance",
		SellVenue:     "sim",
		BuyPrice:      decimal.NewFromInt(2000),
		SellPrice:     decimal.NewFromFloat(2028.6),
		SpreadPct:     decimal.NewFromFloat(1.43),
		Confidence:    0.8,
		Capital:       decimal.NewFromInt(1000),
		DetectedAt:    detectedAt,
	}
}

func TestOpportunityStore_InsertAndGet(t *testing.T) {
	store := NewOpportunityStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testOpportunity("opp1", 1000)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "opp1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.BuyVenue != "binance" || got.SellVenue != "sim" {
		t.Errorf("Venue mismatch: %s -> %s", got.BuyVenue, got.SellVenue)
	}
	if !got.SpreadPct.Equal(decimal.NewFromFloat(1.43)) {
		t.Errorf("SpreadPct mismatch: got %s", got.SpreadPct)
	}
}

func TestOpportunityStore_DuplicateKey(t *testing.T) {
	store := NewOpportunityStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testOpportunity("opp1", 1000)); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	err := store.Insert(ctx, testOpportunity("opp1", 2000))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestOpportunityStore_ListRecentOrderAndLimit(t *testing.T) {
	store := NewOpportunityStore()
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		if err := store.Insert(ctx, testOpportunity(id, int64(1000*(i+1)))); err != nil {
			t.Fatalf("Insert %s failed: %v", id, err)
		}
	}

	recent, err := store.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Expected 2 opportunities, got %d", len(recent))
	}
	if recent[0].OpportunityID != "c" || recent[1].OpportunityID != "b" {
		t.Errorf("Unexpected order: %s, %s", recent[0].OpportunityID, recent[1].OpportunityID)
	}
}

func TestOpportunityStore_NotFound(t *testing.T) {
	store := NewOpportunityStore()
	ctx := context.Background()

	_, err := store.GetByID(ctx, "nonexistent")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSettingsStore_RoundTrip(t *testing.T) {
	store := NewSettingsStore()
	ctx := context.Background()

	_, err := store.Get(ctx)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound before first Put, got %v", err)
	}

	settings := domain.DefaultSettings()
	settings.LiveMode = true
	settings.TelegramChatID = "12345"
	settings.UpdatedAt = 9000
	if err := store.Put(ctx, &settings); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.LiveMode || got.TelegramChatID != "12345" {
		t.Errorf("Settings mismatch: %+v", got)
	}
}

func TestSpreadSampleStore_OrderedByTime(t *testing.T) {
	store := NewSpreadSampleStore()
	ctx := context.Background()

	samples := []*domain.SpreadSample{
		{ExecutionID: "exec1", ObservedAt: 3000, SpreadPct: 1.1},
		{ExecutionID: "exec1", ObservedAt: 1000, SpreadPct: 0.7},
		{ExecutionID: "exec1", ObservedAt: 2000, SpreadPct: 0.9},
	}
	for _, sample := range samples {
		if err := store.Insert(ctx, sample); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := store.GetByExecution(ctx, "exec1")
	if err != nil {
		t.Fatalf("GetByExecution failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 samples, got %d", len(got))
	}
	if got[0].ObservedAt != 1000 || got[2].ObservedAt != 3000 {
		t.Errorf("Samples not ordered: %d, %d, %d", got[0].ObservedAt, got[1].ObservedAt, got[2].ObservedAt)
	}
}

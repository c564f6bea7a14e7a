package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
	"github.com/biodigitss-hash/CEXMasterP/internal/storage"
)

func TestSpreadSampleStore_InsertAndGetByExecution(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSpreadSampleStore(conn)
	ctx := context.Background()

	samples := []*domain.SpreadSample{
		{ExecutionID: "exec-001", ObservedAt: 1700000030000, BuyPrice: 3000.5, SellPrice: 3025.0, SpreadPct: 0.81},
		{ExecutionID: "exec-001", ObservedAt: 1700000000000, BuyPrice: 3000.0, SellPrice: 3020.0, SpreadPct: 0.66},
		{ExecutionID: "exec-002", ObservedAt: 1700000010000, BuyPrice: 99.5, SellPrice: 101.0, SpreadPct: 1.50},
	}
	for _, s := range samples {
		require.NoError(t, store.Insert(ctx, s))
	}

	got, err := store.GetByExecution(ctx, "exec-001")
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Ordered by observation time regardless of insert order.
	assert.Equal(t, int64(1700000000000), got[0].ObservedAt)
	assert.Equal(t, int64(1700000030000), got[1].ObservedAt)
	assert.InDelta(t, 0.66, got[0].SpreadPct, 1e-9)
	assert.InDelta(t, 3025.0, got[1].SellPrice, 1e-9)
}

func TestSpreadSampleStore_GetByExecutionEmpty(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSpreadSampleStore(conn)
	ctx := context.Background()

	got, err := store.GetByExecution(ctx, "exec-none")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSpreadSampleStore_InsertInvalid(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSpreadSampleStore(conn)
	ctx := context.Background()

	err := store.Insert(ctx, &domain.SpreadSample{ExecutionID: ""})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	err = store.Insert(ctx, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

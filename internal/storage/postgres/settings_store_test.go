package postgres

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
	"github.com/biodigitss-hash/CEXMasterP/internal/storage"
)

func TestSettingsStore_GetUnwritten(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSettingsStore(pool)
	ctx := context.Background()

	_, err := store.Get(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSettingsStore_PutAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSettingsStore(pool)
	ctx := context.Background()

	settings := domain.DefaultSettings()
	settings.LiveMode = true
	settings.TargetSellSpreadPct = decimal.NewFromFloat(1.5)
	settings.TelegramEnabled = true
	settings.TelegramChatID = "-1001234"
	settings.UpdatedAt = 1700000000000

	require.NoError(t, store.Put(ctx, &settings))

	retrieved, err := store.Get(ctx)
	require.NoError(t, err)

	assert.True(t, retrieved.LiveMode)
	assert.True(t, retrieved.TargetSellSpreadPct.Equal(decimal.NewFromFloat(1.5)), "target spread = %s", retrieved.TargetSellSpreadPct)
	assert.Equal(t, 30, retrieved.SpreadCheckIntervalS)
	assert.Equal(t, "-1001234", retrieved.TelegramChatID)
	assert.Equal(t, int64(1700000000000), retrieved.UpdatedAt)

	// Second Put overwrites the single row.
	settings.LiveMode = false
	settings.MaxTradeAmount = decimal.NewFromInt(250)
	settings.UpdatedAt = 1700000001000
	require.NoError(t, store.Put(ctx, &settings))

	retrieved, err = store.Get(ctx)
	require.NoError(t, err)

	assert.False(t, retrieved.LiveMode)
	assert.True(t, retrieved.MaxTradeAmount.Equal(decimal.NewFromInt(250)), "max trade = %s", retrieved.MaxTradeAmount)
	assert.Equal(t, int64(1700000001000), retrieved.UpdatedAt)
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
	"github.com/biodigitss-hash/CEXMasterP/internal/storage"
)

// SettingsStore implements storage.SettingsStore using PostgreSQL.
// Settings live in a single row with a fixed id.
type SettingsStore struct {
	pool *Pool
}

// NewSettingsStore creates a new SettingsStore.
func NewSettingsStore(pool *Pool) *SettingsStore {
	return &SettingsStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SettingsStore = (*SettingsStore)(nil)

// Get retrieves the persisted settings. Returns ErrNotFound when the row
// has never been written.
func (s *SettingsStore) Get(ctx context.Context) (*domain.Settings, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT
			live_mode, target_sell_spread_pct, spread_check_interval_s, max_wait_time_s,
			slippage_tolerance_pct, min_spread_threshold_pct, max_trade_amount,
			telegram_enabled, telegram_chat_id, updated_at
		FROM settings
		WHERE id = 1
	`)

	var settings domain.Settings
	err := row.Scan(
		&settings.LiveMode, &settings.TargetSellSpreadPct, &settings.SpreadCheckIntervalS, &settings.MaxWaitTimeS,
		&settings.SlippageTolerancePct, &settings.MinSpreadThresholdPct, &settings.MaxTradeAmount,
		&settings.TelegramEnabled, &settings.TelegramChatID, &settings.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}

	return &settings, nil
}

// Put upserts the settings row.
func (s *SettingsStore) Put(ctx context.Context, settings *domain.Settings) error {
	if settings == nil {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO settings (
			id, live_mode, target_sell_spread_pct, spread_check_interval_s, max_wait_time_s,
			slippage_tolerance_pct, min_spread_threshold_pct, max_trade_amount,
			telegram_enabled, telegram_chat_id, updated_at
		) VALUES (
			1, $1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10
		)
		ON CONFLICT (id) DO UPDATE
		SET live_mode = EXCLUDED.live_mode,
		    target_sell_spread_pct = EXCLUDED.target_sell_spread_pct,
		    spread_check_interval_s = EXCLUDED.spread_check_interval_s,
		    max_wait_time_s = EXCLUDED.max_wait_time_s,
		    slippage_tolerance_pct = EXCLUDED.slippage_tolerance_pct,
		    min_spread_threshold_pct = EXCLUDED.min_spread_threshold_pct,
		    max_trade_amount = EXCLUDED.max_trade_amount,
		    telegram_enabled = EXCLUDED.telegram_enabled,
		    telegram_chat_id = EXCLUDED.telegram_chat_id,
		    updated_at = EXCLUDED.updated_at
	`,
		settings.LiveMode, settings.TargetSellSpreadPct, settings.SpreadCheckIntervalS, settings.MaxWaitTimeS,
		settings.SlippageTolerancePct, settings.MinSpreadThresholdPct, settings.MaxTradeAmount,
		settings.TelegramEnabled, settings.TelegramChatID, settings.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}

	return nil
}

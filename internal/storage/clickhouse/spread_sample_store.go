package clickhouse

import (
	"context"
	"fmt"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
	"github.com/biodigitss-hash/CEXMasterP/internal/storage"
)

// SpreadSampleStore implements storage.SpreadSampleStore using ClickHouse.
// Samples are append-only monitor ticks; MergeTree ordering by
// (execution_id, observed_at) makes per-execution reads cheap.
type SpreadSampleStore struct {
	conn *Conn
}

// NewSpreadSampleStore creates a new SpreadSampleStore.
func NewSpreadSampleStore(conn *Conn) *SpreadSampleStore {
	return &SpreadSampleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SpreadSampleStore = (*SpreadSampleStore)(nil)

// Insert adds one monitor tick sample.
func (s *SpreadSampleStore) Insert(ctx context.Context, sample *domain.SpreadSample) error {
	if sample == nil || sample.ExecutionID == "" {
		return storage.ErrInvalidInput
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO spread_samples (
			execution_id, observed_at, buy_price, sell_price, spread_pct
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		sample.ExecutionID, uint64(sample.ObservedAt),
		sample.BuyPrice, sample.SellPrice, sample.SpreadPct,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByExecution retrieves all samples for an execution, ordered by
// observation time ASC.
func (s *SpreadSampleStore) GetByExecution(ctx context.Context, executionID string) ([]*domain.SpreadSample, error) {
	query := `
		SELECT execution_id, observed_at, buy_price, sell_price, spread_pct
		FROM spread_samples
		WHERE execution_id = ?
		ORDER BY observed_at ASC
	`

	rows, err := s.conn.Query(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("query by execution id: %w", err)
	}
	defer rows.Close()

	return scanSpreadSamples(rows)
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanSpreadSamples scans multiple rows.
func scanSpreadSamples(rows chRows) ([]*domain.SpreadSample, error) {
	var samples []*domain.SpreadSample

	for rows.Next() {
		var s domain.SpreadSample
		var observedAt uint64

		err := rows.Scan(
			&s.ExecutionID, &observedAt,
			&s.BuyPrice, &s.SellPrice, &s.SpreadPct,
		)
		if err != nil {
			return nil, fmt.Errorf("scan spread sample row: %w", err)
		}

		s.ObservedAt = int64(observedAt)
		samples = append(samples, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spread sample rows: %w", err)
	}

	return samples, nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
	"github.com/biodigitss-hash/CEXMasterP/internal/storage"
)

// OpportunityStore implements storage.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *Pool
}

// NewOpportunityStore creates a new OpportunityStore.
func NewOpportunityStore(pool *Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OpportunityStore = (*OpportunityStore)(nil)

// Insert adds a new opportunity. Returns ErrDuplicateKey if opportunity_id exists.
func (s *OpportunityStore) Insert(ctx context.Context, o *domain.Opportunity) error {
	if o == nil || o.OpportunityID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO opportunities (
			opportunity_id, token_symbol, pair, buy_venue, sell_venue,
			buy_price, sell_price, spread_pct, confidence, capital, detected_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11
		)
	`

	_, err := s.pool.Exec(ctx, query,
		o.OpportunityID, o.TokenSymbol, o.Pair, o.BuyVenue, o.SellVenue,
		o.BuyPrice, o.SellPrice, o.SpreadPct, o.Confidence, o.Capital, o.DetectedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert opportunity: %w", err)
	}
	return nil
}

// GetByID retrieves an opportunity by its ID. Returns ErrNotFound if not exists.
func (s *OpportunityStore) GetByID(ctx context.Context, opportunityID string) (*domain.Opportunity, error) {
	query := `
		SELECT
			opportunity_id, token_symbol, pair, buy_venue, sell_venue,
			buy_price, sell_price, spread_pct, confidence, capital, detected_at
		FROM opportunities
		WHERE opportunity_id = $1
	`

	row := s.pool.QueryRow(ctx, query, opportunityID)
	o, err := scanOpportunity(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get opportunity by id: %w", err)
	}
	return o, nil
}

// ListRecent retrieves up to limit opportunities, newest first.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]*domain.Opportunity, error) {
	query := `
		SELECT
			opportunity_id, token_symbol, pair, buy_venue, sell_venue,
			buy_price, sell_price, spread_pct, confidence, capital, detected_at
		FROM opportunities
		ORDER BY detected_at DESC, opportunity_id ASC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent opportunities: %w", err)
	}
	defer rows.Close()

	return scanOpportunities(rows)
}

// scanOpportunity scans a single row into an Opportunity.
func scanOpportunity(row pgx.Row) (*domain.Opportunity, error) {
	var o domain.Opportunity

	err := row.Scan(
		&o.OpportunityID, &o.TokenSymbol, &o.Pair, &o.BuyVenue, &o.SellVenue,
		&o.BuyPrice, &o.SellPrice, &o.SpreadPct, &o.Confidence, &o.Capital, &o.DetectedAt,
	)
	if err != nil {
		return nil, err
	}

	return &o, nil
}

// scanOpportunities scans multiple rows into a slice of Opportunity.
func scanOpportunities(rows pgx.Rows) ([]*domain.Opportunity, error) {
	var opps []*domain.Opportunity

	for rows.Next() {
		var o domain.Opportunity

		err := rows.Scan(
			&o.OpportunityID, &o.TokenSymbol, &o.Pair, &o.BuyVenue, &o.SellVenue,
			&o.BuyPrice, &o.SellPrice, &o.SpreadPct, &o.Confidence, &o.Capital, &o.DetectedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan opportunity row: %w", err)
		}

		opps = append(opps, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate opportunity rows: %w", err)
	}

	return opps, nil
}

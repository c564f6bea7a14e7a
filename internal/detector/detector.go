// Package detector scans registered venues for cross-venue price
// discrepancies and records them as opportunities for the execution
// engine to act on.
package detector

import (
	"context"
	"errors"
	"log"
	"os"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
	"github.com/biodigitss-hash/CEXMasterP/internal/idhash"
	"github.com/biodigitss-hash/CEXMasterP/internal/observability"
	"github.com/biodigitss-hash/CEXMasterP/internal/storage"
	"github.com/biodigitss-hash/CEXMasterP/internal/venue"
)

var hundred = decimal.NewFromInt(100)

// Pair is one market the scanner watches across all venues.
type Pair struct {
	Token  string // base asset, e.g. "ETH"
	Symbol string // venue pair symbol, e.g. "ETHUSDT"
}

// Options contains configuration for creating a Scanner.
type Options struct {
	Venues        *venue.Registry
	Opportunities storage.OpportunityStore
	Settings      storage.SettingsStore
	Pairs         []Pair

	// ScanInterval is the delay between scan cycles. Default 30s.
	ScanInterval time.Duration

	// BucketWindow groups re-detections of one route into a single
	// deterministic opportunity id. Defaults to ScanInterval.
	BucketWindow time.Duration

	Logger *log.Logger
}

// Scanner detects arbitrage opportunities by comparing live tickers
// pairwise across venues. Deterministic ids bucket re-detections of the
// same route within one window, so the store's duplicate-key rejection
// drops them without a separate seen-cache.
type Scanner struct {
	venues        *venue.Registry
	opportunities storage.OpportunityStore
	settings      storage.SettingsStore
	pairs         []Pair
	interval      time.Duration
	bucketMs      int64
	logger        *log.Logger
}

// New creates a scanner. Venues, Opportunities and Settings are required.
func New(opts Options) *Scanner {
	interval := opts.ScanInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	bucket := opts.BucketWindow
	if bucket <= 0 {
		bucket = interval
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[detector] ", log.LstdFlags)
	}
	return &Scanner{
		venues:        opts.Venues,
		opportunities: opts.Opportunities,
		settings:      opts.Settings,
		pairs:         opts.Pairs,
		interval:      interval,
		bucketMs:      bucket.Milliseconds(),
		logger:        logger,
	}
}

// Run scans immediately and then on every interval tick until the context
// is cancelled.
func (s *Scanner) Run(ctx context.Context) error {
	s.logger.Printf("scanning %d pair(s) across %d venue(s) every %v",
		len(s.pairs), len(s.venues.Names()), s.interval)
	if _, err := s.ScanOnce(ctx); err != nil {
		s.logger.Printf("scan: %v", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.ScanOnce(ctx); err != nil {
				s.logger.Printf("scan: %v", err)
			}
		}
	}
}

// quote is one venue's ticker for the scanned pair.
type quote struct {
	venue string
	tick  *venue.Ticker
}

// ScanOnce runs one scan cycle over every configured pair and returns the
// opportunities it recorded. A venue that fails to quote is skipped for
// this cycle, not fatal: the remaining venues can still form a route.
func (s *Scanner) ScanOnce(ctx context.Context) ([]*domain.Opportunity, error) {
	settings := s.currentSettings(ctx)
	now := time.Now().UnixMilli()

	var found []*domain.Opportunity
	for _, pair := range s.pairs {
		quotes := s.collectQuotes(ctx, pair.Symbol)
		if len(quotes) < 2 {
			continue
		}
		for _, opp := range routes(pair, quotes, settings, now, s.bucketMs) {
			if err := s.opportunities.Insert(ctx, opp); err != nil {
				if errors.Is(err, storage.ErrDuplicateKey) {
					continue // same route already recorded in this window
				}
				return found, err
			}
			observability.RecordOpportunityDetected()
			s.logger.Printf("%s: buy %s at %s, sell %s at %s, spread %s%%",
				pair.Symbol, opp.BuyVenue, opp.BuyPrice, opp.SellVenue, opp.SellPrice, opp.SpreadPct.Round(4))
			found = append(found, opp)
		}
	}
	observability.RecordScanSuccess(float64(time.Now().Unix()))
	return found, nil
}

// collectQuotes prices one pair on every registered venue, ordered by
// venue name so route enumeration is deterministic.
func (s *Scanner) collectQuotes(ctx context.Context, symbol string) []quote {
	names := s.venues.Names()
	sort.Strings(names)
	quotes := make([]quote, 0, len(names))
	for _, name := range names {
		client, err := s.venues.Get(name)
		if err != nil {
			continue
		}
		tick, err := client.Ticker(ctx, symbol)
		if err != nil {
			observability.RecordScanError(name)
			s.logger.Printf("%s on %s: %v", symbol, name, err)
			continue
		}
		if !tick.Bid.IsPositive() || !tick.Ask.IsPositive() {
			// A half-empty book is a data fault; it must not seed an
			// opportunity the gate would only reject on prices.
			continue
		}
		quotes = append(quotes, quote{venue: name, tick: tick})
	}
	return quotes
}

// routes enumerates every ordered venue pair and keeps those whose spread
// clears the configured threshold.
func routes(pair Pair, quotes []quote, settings domain.Settings, now, bucketMs int64) []*domain.Opportunity {
	var opps []*domain.Opportunity
	for _, buy := range quotes {
		for _, sell := range quotes {
			if buy.venue == sell.venue {
				continue
			}
			spread := spreadPct(buy.tick.Ask, sell.tick.Bid)
			if spread.LessThan(settings.MinSpreadThresholdPct) {
				continue
			}
			opps = append(opps, &domain.Opportunity{
				OpportunityID: idhash.ComputeOpportunityID(pair.Token, buy.venue, sell.venue,
					idhash.BucketMillis(now, bucketMs)),
				TokenSymbol: pair.Token,
				Pair:        pair.Symbol,
				BuyVenue:    buy.venue,
				SellVenue:   sell.venue,
				BuyPrice:    buy.tick.Ask,
				SellPrice:   sell.tick.Bid,
				SpreadPct:   spread,
				Confidence:  confidence(spread, settings.MinSpreadThresholdPct),
				Capital:     settings.MaxTradeAmount,
				DetectedAt:  now,
			})
		}
	}
	return opps
}

// spreadPct is the percent gain from buying at ask and selling at bid.
func spreadPct(ask, bid decimal.Decimal) decimal.Decimal {
	return bid.Sub(ask).Div(ask).Mul(hundred)
}

// confidence scores a route in (0,1]: 0.5 at the detection threshold,
// saturating at 1.0 once the spread reaches twice the threshold.
func confidence(spread, threshold decimal.Decimal) float64 {
	if !threshold.IsPositive() {
		return 1
	}
	score := spread.Div(threshold.Mul(decimal.NewFromInt(2))).InexactFloat64()
	if score > 1 {
		return 1
	}
	return score
}

// currentSettings reads the operator settings, falling back to defaults
// when the row has never been written.
func (s *Scanner) currentSettings(ctx context.Context) domain.Settings {
	stored, err := s.settings.Get(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Printf("settings read: %v, using defaults", err)
		}
		return domain.DefaultSettings()
	}
	return *stored
}

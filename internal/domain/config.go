package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FailsafeConfig is the per-execution snapshot of engine tunables. It is
// assembled from the persisted Settings plus engine defaults when an
// execution starts and is immutable for that execution's duration, so a
// concurrent settings change never alters in-flight timeout math.
type FailsafeConfig struct {
	TargetSellSpreadPct  decimal.Decimal // sell trigger spread %
	SpreadCheckInterval  time.Duration   // monitor poll interval
	MaxWaitTime          time.Duration   // fail-safe monitoring bound
	SlippageTolerancePct decimal.Decimal // allowed drift from detection prices
	LiveMode             bool            // live venue calls vs simulated

	ConfirmationCount    int           // on-chain depth required for arrival
	TransferPollInterval time.Duration // transfer arrival poll, independent of the monitor
	TransferTimeout      time.Duration // bound on awaiting one transfer

	OrderRetryAttempts  int           // rate-limit retry budget per order
	OrderRetryBaseDelay time.Duration // first backoff delay, doubled per attempt

	FeeDefaults FeeDefaults // fallbacks when live fee queries fail
}

// DefaultFailsafeConfig returns the engine defaults used when the settings
// store is empty or a field is unset.
func DefaultFailsafeConfig() FailsafeConfig {
	return FailsafeConfig{
		TargetSellSpreadPct:  decimal.NewFromFloat(1.0),
		SpreadCheckInterval:  30 * time.Second,
		MaxWaitTime:          time.Hour,
		SlippageTolerancePct: decimal.NewFromFloat(0.5),
		LiveMode:             false,
		ConfirmationCount:    1,
		TransferPollInterval: 10 * time.Second,
		TransferTimeout:      30 * time.Minute,
		OrderRetryAttempts:   3,
		OrderRetryBaseDelay:  time.Second,
		FeeDefaults:          DefaultFeeDefaults(),
	}
}

// Settings is the operator-editable configuration persisted in the settings
// store, read once at each execution start. Corresponds to the settings
// table (single row).
type Settings struct {
	LiveMode              bool
	TargetSellSpreadPct   decimal.Decimal
	SpreadCheckIntervalS  int // seconds
	MaxWaitTimeS          int // seconds
	SlippageTolerancePct  decimal.Decimal
	MinSpreadThresholdPct decimal.Decimal // detector gate
	MaxTradeAmount        decimal.Decimal // capital cap per execution
	TelegramEnabled       bool
	TelegramChatID        string
	UpdatedAt             int64 // Unix timestamp in milliseconds
}

// DefaultSettings returns the values served until an operator saves changes.
func DefaultSettings() Settings {
	return Settings{
		LiveMode:              false,
		TargetSellSpreadPct:   decimal.NewFromFloat(1.0),
		SpreadCheckIntervalS:  30,
		MaxWaitTimeS:          3600,
		SlippageTolerancePct:  decimal.NewFromFloat(0.5),
		MinSpreadThresholdPct: decimal.NewFromFloat(0.5),
		MaxTradeAmount:        decimal.NewFromInt(1000),
		TelegramEnabled:       false,
	}
}

// Apply overlays the persisted settings onto a base config, leaving
// engine-internal fields (confirmations, transfer and retry tuning)
// untouched. Zero or negative persisted values keep the base value.
func (s Settings) Apply(base FailsafeConfig) FailsafeConfig {
	cfg := base
	cfg.LiveMode = s.LiveMode
	if s.TargetSellSpreadPct.IsPositive() {
		cfg.TargetSellSpreadPct = s.TargetSellSpreadPct
	}
	if s.SpreadCheckIntervalS > 0 {
		cfg.SpreadCheckInterval = time.Duration(s.SpreadCheckIntervalS) * time.Second
	}
	if s.MaxWaitTimeS > 0 {
		cfg.MaxWaitTime = time.Duration(s.MaxWaitTimeS) * time.Second
	}
	if s.SlippageTolerancePct.IsPositive() {
		cfg.SlippageTolerancePct = s.SlippageTolerancePct
	}
	return cfg
}

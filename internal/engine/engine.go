package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
	"github.com/biodigitss-hash/CEXMasterP/internal/notify"
	"github.com/biodigitss-hash/CEXMasterP/internal/profit"
	"github.com/biodigitss-hash/CEXMasterP/internal/storage"
	"github.com/biodigitss-hash/CEXMasterP/internal/venue"
	"github.com/biodigitss-hash/CEXMasterP/internal/wallet"
)

// Options wires the engine's collaborators. Stores, Venues and Config are
// required; the rest default to no-ops.
type Options struct {
	Opportunities storage.OpportunityStore
	Executions    storage.ExecutionStore
	Steps         storage.ExecutionStepStore
	Settings      storage.SettingsStore
	Samples       storage.SpreadSampleStore

	Venues *venue.Registry
	Wallet wallet.Client // nil disables top-ups and the treasury sweep

	Notifier notify.Notifier
	Events   EventSink
	Config   domain.FailsafeConfig
	Logger   *log.Logger
}

// Engine admits and runs failsafe executions, one goroutine each. At most
// one non-terminal execution exists per opportunity: the in-memory
// registry rejects duplicates first and the store's uniqueness constraint
// backstops races across processes.
type Engine struct {
	opportunities storage.OpportunityStore
	executions    storage.ExecutionStore
	steps         storage.ExecutionStepStore
	settings      storage.SettingsStore
	samples       storage.SpreadSampleStore

	venues   *venue.Registry
	wallet   wallet.Client
	gate     *profit.Gate
	notifier notify.Notifier
	events   EventSink
	base     domain.FailsafeConfig
	logger   *log.Logger

	mu     sync.Mutex
	active map[string]*run   // by execution id
	byOpp  map[string]string // opportunity id -> execution id, "" while admitting
	wg     sync.WaitGroup
}

// run tracks one live execution goroutine.
type run struct {
	opportunityID string
	cancel        context.CancelFunc
	halt          atomic.Bool
}

func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[engine] ", log.LstdFlags)
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	events := opts.Events
	if events == nil {
		events = NopEvents{}
	}
	cfg := opts.Config
	if cfg.SpreadCheckInterval == 0 {
		cfg = domain.DefaultFailsafeConfig()
	}
	return &Engine{
		opportunities: opts.Opportunities,
		executions:    opts.Executions,
		steps:         opts.Steps,
		settings:      opts.Settings,
		samples:       opts.Samples,
		venues:        opts.Venues,
		wallet:        opts.Wallet,
		gate:          profit.NewGate(profit.NewEstimator(opts.Venues, cfg.FeeDefaults, logger)),
		notifier:      notifier,
		events:        events,
		base:          cfg,
		logger:        logger,
		active:        make(map[string]*run),
		byOpp:         make(map[string]string),
	}
}

// Execute admits one execution of an opportunity and runs it on its own
// goroutine. Validation is synchronous: the call returns the execution id
// only after the pending row is persisted, and a rejection leaves no
// execution record at all. Zero capital uses the opportunity's
// recommended size; confirmed must be true in live mode.
func (e *Engine) Execute(ctx context.Context, opportunityID string, capital decimal.Decimal, confirmed bool) (string, error) {
	opp, err := e.opportunities.GetByID(ctx, opportunityID)
	if err != nil {
		return "", fmt.Errorf("load opportunity %s: %w", opportunityID, err)
	}
	cfg, settings := e.snapshot(ctx)
	if cfg.LiveMode && !confirmed {
		return "", fmt.Errorf("%w: live mode execution requires explicit confirmation", ErrValidation)
	}

	if capital.IsZero() {
		capital = opp.Capital
	}
	if !capital.IsPositive() {
		return "", fmt.Errorf("%w: capital %s", ErrValidation, capital)
	}
	if settings.MaxTradeAmount.IsPositive() && capital.GreaterThan(settings.MaxTradeAmount) {
		e.logger.Printf("opportunity %s: capital %s capped to max trade amount %s",
			opportunityID, capital, settings.MaxTradeAmount)
		capital = settings.MaxTradeAmount
	}

	buy, err := e.venues.Get(opp.BuyVenue)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}
	sell, err := e.venues.Get(opp.SellVenue)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if err := e.reserve(opportunityID); err != nil {
		return "", err
	}
	admitted := false
	defer func() {
		if !admitted {
			e.releaseReservation(opportunityID)
		}
	}()

	if existing, err := e.executions.ActiveForOpportunity(ctx, opportunityID); err == nil {
		return "", fmt.Errorf("%w: execution %s", ErrAlreadyExecuting, existing.ExecutionID)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("check active executions: %w", err)
	}

	eval, quotes, err := validateOpportunity(ctx, e.gate, buy, sell, opp, capital, cfg.SlippageTolerancePct)
	if err != nil {
		e.logger.Printf("opportunity %s rejected: %v", opportunityID, err)
		return "", err
	}

	now := time.Now().UnixMilli()
	exec := &domain.FailsafeExecution{
		ExecutionID:   uuid.NewString(),
		OpportunityID: opportunityID,
		State:         domain.StatePending,
		Capital:       capital,
		CurrentSpread: opp.SpreadPct,
		TargetSpread:  cfg.TargetSellSpreadPct,
		Live:          cfg.LiveMode,
		StartedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.executions.Insert(ctx, exec); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return "", fmt.Errorf("%w: opportunity %s", ErrAlreadyExecuting, opportunityID)
		}
		return "", fmt.Errorf("persist execution: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{opportunityID: opportunityID, cancel: cancel}
	e.register(exec, r)
	admitted = true

	ctrl := NewController(ControllerOptions{
		Opportunity: opp,
		Execution:   exec,
		Config:      cfg,
		BuyClient:   buy,
		SellClient:  sell,
		Wallet:      e.wallet,
		Executions:  e.executions,
		Steps:       e.steps,
		Samples:     e.samples,
		Gate:        e.gate,
		Notifier:    e.notifier,
		Events:      e.events,
		Logger:      e.logger,
		Evaluation:  eval,
		Quotes:      quotes,
		Halted:      r.halt.Load,
	})
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.finish(exec.ExecutionID, opportunityID)
		ctrl.Run(runCtx)
	}()

	e.logger.Printf("opportunity %s: execution %s admitted with %s capital (live=%t)",
		opportunityID, exec.ExecutionID, capital, cfg.LiveMode)
	return exec.ExecutionID, nil
}

// Cancel requests cooperative cancellation of an active execution. The
// run notices at its next poll tick or retry gate and fails with reason
// cancelled; funds stay wherever the pipeline put them.
func (e *Engine) Cancel(executionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.active[executionID]
	if !ok {
		return fmt.Errorf("no active execution %s", executionID)
	}
	r.cancel()
	return nil
}

// Execution returns an execution with its full step history.
func (e *Engine) Execution(ctx context.Context, executionID string) (*domain.FailsafeExecution, []*domain.ExecutionStep, error) {
	exec, err := e.executions.GetByID(ctx, executionID)
	if err != nil {
		return nil, nil, err
	}
	steps, err := e.steps.ListByExecution(ctx, executionID)
	if err != nil {
		return nil, nil, fmt.Errorf("load steps for %s: %w", executionID, err)
	}
	return exec, steps, nil
}

// Active returns the ids of executions running in this process, sorted.
func (e *Engine) Active() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.active))
	for id := range e.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stop parks every active execution and waits for their goroutines. The
// executions stay non-terminal in the store; Recover resumes them on the
// next boot.
func (e *Engine) Stop() {
	e.mu.Lock()
	for _, r := range e.active {
		r.halt.Store(true)
		r.cancel()
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// snapshot reads the operator settings once and overlays them on the base
// config. The result is frozen for the execution's whole lifetime.
func (e *Engine) snapshot(ctx context.Context) (domain.FailsafeConfig, domain.Settings) {
	s, err := e.settings.Get(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			e.logger.Printf("settings read: %v, using defaults", err)
		}
		def := domain.DefaultSettings()
		return def.Apply(e.base), def
	}
	return s.Apply(e.base), *s
}

func (e *Engine) reserve(opportunityID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if execID, ok := e.byOpp[opportunityID]; ok {
		if execID == "" {
			return fmt.Errorf("%w: admission in progress", ErrAlreadyExecuting)
		}
		return fmt.Errorf("%w: execution %s", ErrAlreadyExecuting, execID)
	}
	e.byOpp[opportunityID] = ""
	return nil
}

func (e *Engine) releaseReservation(opportunityID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.byOpp[opportunityID] == "" {
		delete(e.byOpp, opportunityID)
	}
}

func (e *Engine) register(exec *domain.FailsafeExecution, r *run) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byOpp[exec.OpportunityID] = exec.ExecutionID
	e.active[exec.ExecutionID] = r
}

// finish releases the registry slot when an execution goroutine exits.
func (e *Engine) finish(executionID, opportunityID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.active[executionID]; ok {
		r.cancel()
		delete(e.active, executionID)
	}
	if e.byOpp[opportunityID] == executionID {
		delete(e.byOpp, opportunityID)
	}
}

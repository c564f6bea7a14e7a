// Package main runs the arbitrage service: the failsafe execution engine,
// the opportunity scanner, the dashboard API with its websocket hub, and
// Prometheus metrics, over PostgreSQL/ClickHouse or in-memory storage.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/biodigitss-hash/CEXMasterP/internal/api"
	"github.com/biodigitss-hash/CEXMasterP/internal/detector"
	"github.com/biodigitss-hash/CEXMasterP/internal/engine"
	"github.com/biodigitss-hash/CEXMasterP/internal/notify"
	"github.com/biodigitss-hash/CEXMasterP/internal/storage"
	chstore "github.com/biodigitss-hash/CEXMasterP/internal/storage/clickhouse"
	"github.com/biodigitss-hash/CEXMasterP/internal/storage/memory"
	"github.com/biodigitss-hash/CEXMasterP/internal/storage/migrations"
	pgstore "github.com/biodigitss-hash/CEXMasterP/internal/storage/postgres"
	"github.com/biodigitss-hash/CEXMasterP/internal/venue"
	"github.com/biodigitss-hash/CEXMasterP/internal/venue/binance"
	venuestub "github.com/biodigitss-hash/CEXMasterP/internal/venue/stub"
	"github.com/biodigitss-hash/CEXMasterP/internal/wallet"
	"github.com/biodigitss-hash/CEXMasterP/internal/wallet/ethereum"
)

// allStores holds the storage implementations the service runs on.
type allStores struct {
	opportunities storage.OpportunityStore
	executions    storage.ExecutionStore
	steps         storage.ExecutionStepStore
	settings      storage.SettingsStore
	samples       storage.SpreadSampleStore
}

func main() {
	// Load .env if present; real env vars win.
	godotenv.Load()

	listenAddr := flag.String("listen-addr", envOr("LISTEN_ADDR", ":8080"), "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for the spread-sample archive (optional)")
	useMemory := flag.Bool("use-memory", envOr("USE_MEMORY", "") != "", "Use in-memory storage instead of PostgreSQL")
	venueNames := flag.String("venues", envOr("VENUES", "alpha:stub,beta:stub"), "Comma-separated venue names; each needs <NAME>_API_KEY and <NAME>_API_SECRET in the environment, or a :stub/:testnet suffix")
	pairsFlag := flag.String("pairs", envOr("PAIRS", "ETH:ETHUSDT"), "Comma-separated TOKEN:PAIR markets to scan")
	scanInterval := flag.Duration("scan-interval", 30*time.Second, "Opportunity scan interval")
	ethRPC := flag.String("eth-rpc", os.Getenv("ETH_RPC_URL"), "Ethereum JSON-RPC endpoint for the treasury wallet (optional)")
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}
	pairs, err := parsePairs(*pairsFlag)
	if err != nil {
		logger.Fatalf("invalid --pairs: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	registry, err := createVenues(*venueNames, pairs)
	if err != nil {
		logger.Fatalf("Failed to create venues: %v", err)
	}
	logger.Printf("Venues: %v", registry.Names())

	var treasury wallet.Client
	if *ethRPC != "" {
		ethWallet, err := ethereum.NewClient(ctx, ethereum.Options{
			RPCURL:     *ethRPC,
			PrivateKey: os.Getenv("ETH_PRIVATE_KEY"),
		})
		if err != nil {
			logger.Fatalf("Failed to create wallet: %v", err)
		}
		defer ethWallet.Close()
		treasury = ethWallet
		logger.Printf("Treasury wallet: %s", ethWallet.Address())
	} else {
		logger.Println("No treasury wallet configured, top-ups and sweeps disabled")
	}

	var notifier notify.Notifier = notify.Nop{}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		tg, err := notify.NewTelegram(token, stores.settings, log.New(os.Stdout, "[notify] ", log.LstdFlags))
		if err != nil {
			logger.Printf("Telegram disabled: %v", err)
		} else {
			notifier = tg
		}
	}

	hub := api.NewHub(log.New(os.Stdout, "[hub] ", log.LstdFlags))

	eng := engine.New(engine.Options{
		Opportunities: stores.opportunities,
		Executions:    stores.executions,
		Steps:         stores.steps,
		Settings:      stores.settings,
		Samples:       stores.samples,
		Venues:        registry,
		Wallet:        treasury,
		Notifier:      notifier,
		Events:        hub,
		Logger:        log.New(os.Stdout, "[engine] ", log.LstdFlags),
	})

	// Resume executions interrupted by the previous shutdown before
	// accepting new work.
	if resumed, err := eng.Recover(ctx); err != nil {
		logger.Fatalf("Recovery failed: %v", err)
	} else if resumed > 0 {
		logger.Printf("Resumed %d interrupted execution(s)", resumed)
	}

	scanner := detector.New(detector.Options{
		Venues:        registry,
		Opportunities: stores.opportunities,
		Settings:      stores.settings,
		Pairs:         pairs,
		ScanInterval:  *scanInterval,
		Logger:        log.New(os.Stdout, "[detector] ", log.LstdFlags),
	})
	go func() {
		if err := scanner.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("Scanner stopped: %v", err)
		}
	}()

	server := api.NewServer(api.Options{
		Engine:        eng,
		Scanner:       scanner,
		Opportunities: stores.opportunities,
		Executions:    stores.executions,
		Steps:         stores.steps,
		Settings:      stores.settings,
		Hub:           hub,
		Logger:        log.New(os.Stdout, "[api] ", log.LstdFlags),
	})
	httpServer := &http.Server{Addr: *listenAddr, Handler: server.Handler()}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("Listening on %s", *listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-errCh:
		logger.Printf("HTTP server error: %v", err)
	}

	// Second signal forces an immediate exit.
	go func() {
		sig := <-sigCh
		logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
		os.Exit(1)
	}()

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP shutdown: %v", err)
	}
	// Park in-flight executions; recovery resumes them on the next boot.
	eng.Stop()
	logger.Println("Shutdown complete")
}

// createStores builds the storage tier and runs migrations. The ClickHouse
// spread-sample archive is optional; without a DSN samples stay in memory.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*allStores, func(), error) {
	if useMemory {
		stores := &allStores{
			opportunities: memory.NewOpportunityStore(),
			executions:    memory.NewExecutionStore(),
			steps:         memory.NewExecutionStepStore(),
			settings:      memory.NewSettingsStore(),
			samples:       memory.NewSpreadSampleStore(),
		}
		return stores, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	stores := &allStores{
		opportunities: pgstore.NewOpportunityStore(pool),
		executions:    pgstore.NewExecutionStore(pool),
		steps:         pgstore.NewExecutionStepStore(pool),
		settings:      pgstore.NewSettingsStore(pool),
		samples:       memory.NewSpreadSampleStore(),
	}
	cleanup := func() { pool.Close() }

	if clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		stores.samples = chstore.NewSpreadSampleStore(conn)
		cleanup = func() {
			conn.Close()
			pool.Close()
		}
	}
	return stores, cleanup, nil
}

// createVenues builds one client per configured venue name. Plain names
// get a Binance-API client with credentials from <NAME>_API_KEY /
// <NAME>_API_SECRET; ":testnet" targets the spot testnet; ":stub" gets a
// deterministic in-process venue seeded with a flat book per pair, for
// running the service without exchange accounts.
func createVenues(list string, pairs []detector.Pair) (*venue.Registry, error) {
	var (
		clients []venue.Client
		stubs   []*venuestub.Client
	)
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if name, ok := strings.CutSuffix(entry, ":stub"); ok {
			stub := venuestub.NewClient(name)
			// Offset stub books per venue so scans see a spread.
			price := decimal.NewFromInt(2000).Mul(
				decimal.NewFromInt(100 + int64(len(stubs))*2).Div(decimal.NewFromInt(100)))
			for _, p := range pairs {
				stub.AddPair(p.Symbol, p.Token, strings.TrimPrefix(p.Symbol, p.Token))
				stub.PushTicker(p.Symbol, price.Sub(decimal.NewFromInt(1)), price)
				stub.SetBalance(strings.TrimPrefix(p.Symbol, p.Token), decimal.NewFromInt(100000))
			}
			for _, prev := range stubs {
				prev.LinkDeposits(stub)
				stub.LinkDeposits(prev)
			}
			stubs = append(stubs, stub)
			clients = append(clients, stub)
			continue
		}
		name, testnet := strings.CutSuffix(entry, ":testnet")
		envName := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		key := os.Getenv(envName + "_API_KEY")
		secret := os.Getenv(envName + "_API_SECRET")
		if key == "" || secret == "" {
			return nil, fmt.Errorf("venue %s: %s_API_KEY and %s_API_SECRET must be set", name, envName, envName)
		}
		clients = append(clients, binance.NewClient(binance.Options{
			Name:       name,
			APIKey:     key,
			APISecret:  secret,
			Network:    envOr("WITHDRAWAL_NETWORK", "ETH"),
			UseTestnet: testnet,
		}))
	}
	if len(clients) < 2 {
		return nil, fmt.Errorf("at least two venues are required, got %d", len(clients))
	}
	return venue.NewRegistry(clients...), nil
}

// parsePairs parses the TOKEN:PAIR scan list.
func parsePairs(list string) ([]detector.Pair, error) {
	var pairs []detector.Pair
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		token, symbol, ok := strings.Cut(entry, ":")
		if !ok || token == "" || symbol == "" {
			return nil, fmt.Errorf("entry %q is not TOKEN:PAIR", entry)
		}
		pairs = append(pairs, detector.Pair{Token: token, Symbol: symbol})
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("no pairs configured")
	}
	return pairs, nil
}

// envOr returns the environment value or a fallback.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"fusiond/config"
	"fusiond/core/events"
	"fusiond/journal"
	"fusiond/native/escrow"
	"fusiond/native/pool"
	"fusiond/native/solver"
	"fusiond/native/swap"
	"fusiond/native/token"
	"fusiond/observability"
	"fusiond/observability/logging"
	"fusiond/observability/otel"
	"fusiond/oracle"
	"fusiond/server"
	"fusiond/state"
	"fusiond/storage"
)

func main() {
	configPath := flag.String("config", "", "path to fusiond.yaml (defaults apply when empty)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fusiond: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	logger := logging.Setup("fusiond", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Endpoint != "" {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: "fusiond",
			Environment: cfg.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				logger.Warn("telemetry shutdown", "error", err)
			}
		}()
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open state db: %w", err)
	}
	defer db.Close()
	store := state.NewStore(db)

	journalPath := cfg.JournalPath
	if !filepath.IsAbs(journalPath) {
		journalPath = filepath.Join(cfg.DataDir, journalPath)
	}
	ledgerJournal, err := journal.Open(journalPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer ledgerJournal.Close()

	emitter := observability.NewMetricsEmitter(events.SlogEmitter{Logger: logger})

	// The in-process ledger settles transfers synchronously. Deployments that
	// bridge to external ledgers swap in their own token.Transferer.
	ledger := token.NewLedger()

	escrowEngine := escrow.NewEngine(store, ledger, cfg.Vault, cfg.Treasury)
	escrowEngine.SetEmitter(emitter)
	if err := escrowEngine.SetFeeRate(cfg.Escrow.FeeRateBps); err != nil {
		return fmt.Errorf("configure escrow fee: %w", err)
	}
	if err := escrowEngine.SetTimelockBounds(int64(cfg.Escrow.MinTimelock.Duration.Seconds()), int64(cfg.Escrow.MaxTimelock.Duration.Seconds())); err != nil {
		return fmt.Errorf("configure escrow timelocks: %w", err)
	}
	for _, symbol := range cfg.Escrow.Tokens {
		if err := escrowEngine.AllowToken(symbol); err != nil {
			return fmt.Errorf("allow token %q: %w", symbol, err)
		}
	}

	tracker := swap.NewTracker(store)
	tracker.SetEmitter(emitter)
	for _, operator := range cfg.Swap.Operators {
		tracker.AddOperator(operator)
	}

	poolEngine := pool.NewEngine(store, ledger, cfg.Vault)
	poolEngine.SetEmitter(emitter)
	poolEngine.SetJournal(ledgerJournal)

	prices := oracle.NewStatic(cfg.Oracle.SpreadBps)
	for _, rate := range cfg.Oracle.Rates {
		prices.SetRate(rate.From, rate.To, big.NewInt(rate.Rate))
	}

	solverEngine := solver.NewEngine(store, poolEngine, prices)
	solverEngine.SetEmitter(emitter)
	solverEngine.SetJournal(ledgerJournal)
	solverEngine.SetMinStake(big.NewInt(cfg.Solver.MinStake))

	srv := server.New(escrowEngine, tracker, poolEngine, solverEngine, logger)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fusiond listening", "address", cfg.ListenAddress, "env", cfg.Environment)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", "grace", cfg.Shutdown.Duration.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Duration)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Package main is the entry point of the stop guard bot.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/your-org/stop-guard-bot/internal/alert"
	"github.com/your-org/stop-guard-bot/internal/algorithm"
	"github.com/your-org/stop-guard-bot/internal/audit"
	"github.com/your-org/stop-guard-bot/internal/config"
	"github.com/your-org/stop-guard-bot/internal/exchange/binance"
	"github.com/your-org/stop-guard-bot/internal/http/handler"
	"github.com/your-org/stop-guard-bot/internal/metrics"
	"github.com/your-org/stop-guard-bot/internal/monitor"
	"github.com/your-org/stop-guard-bot/internal/placement"
	"github.com/your-org/stop-guard-bot/internal/position"
	"github.com/your-org/stop-guard-bot/internal/report"
	"github.com/your-org/stop-guard-bot/internal/store"
	"github.com/your-org/stop-guard-bot/internal/trailing"
	"github.com/your-org/stop-guard-bot/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.SetGlobalLogLevel(cfg.LogLevel)
	logger.Info("Stop guard bot starting...")
	logger.Infof("Loaded configuration from: %s", *configPath)
	logger.Infof("Guarded symbols: %v", cfg.Symbols)

	// --- Database ---
	var pool *pgxpool.Pool
	var repo store.Repository
	if cfg.DBHost != "" {
		if err := store.RunMigrations(cfg.DSN()); err != nil {
			logger.Fatalf("Failed to run database migrations: %v", err)
		}
		pool, err = pgxpool.New(ctx, cfg.DSN())
		if err != nil {
			logger.Fatalf("Unable to connect to database: %v", err)
		}
		defer pool.Close()
		repo = store.NewPostgresRepository(pool)
		logger.Info("Connected to PostgreSQL.")
	} else {
		logger.Warn("DB_HOST not set, running with in-memory storage.")
		repo = store.NewInMemRepository()
	}

	// --- Audit writer ---
	var zapLogger *zap.Logger
	var zapErr error
	if cfg.LogLevel == "debug" {
		zapLogger, zapErr = zap.NewDevelopment()
	} else {
		zapLogger, zapErr = zap.NewProduction()
	}
	if zapErr != nil {
		logger.Fatalf("Failed to initialize Zap logger for audit writer: %v", zapErr)
	}
	defer func() {
		if err := zapLogger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to sync zap logger: %v\n", err)
		}
	}()

	var auditPool audit.Pool
	if pool != nil {
		auditPool = pool
	}
	recorder := audit.NewWriter(auditPool, cfg.Audit, zapLogger)
	defer recorder.Close()

	// --- Alerting ---
	var notifier alert.Notifier
	if cfg.Discord.BotToken != "" {
		notifier, err = alert.NewDiscordNotifier(cfg.Discord, zapLogger)
		if err != nil {
			logger.Fatalf("Failed to initialize Discord notifier: %v", err)
		}
		logger.Info("Discord alerting enabled.")
	} else {
		notifier = alert.NewNoOpNotifier()
	}
	defer notifier.Close()

	// --- Exchange and guard services ---
	exch := binance.NewClient(cfg.APIKey, cfg.APISecret)
	placer := placement.NewGateway(exch, repo, recorder, cfg.Placement)
	coordinator := trailing.NewCoordinator(repo, exch, placer, recorder, cfg.Guard)
	sweeper := monitor.NewMonitor(repo, exch, placer, recorder, notifier, cfg.Guard)
	algoCfg := algorithm.FromConfig(cfg.Algorithm)

	// --- HTTP server ---
	router := chi.NewRouter()
	router.Get("/healthz", handler.HealthCheckHandler)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())
	if pool != nil {
		handler.NewReportHandler(report.NewGenerator(pool)).RegisterRoutes(router)
	}
	go func() {
		logger.Info("HTTP server starting on :8080")
		if err := http.ListenAndServe(":8080", router); err != nil {
			logger.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// --- Price stream feeding the watermark book ---
	book := position.NewBook()
	if err := loadTrackers(ctx, repo, book); err != nil {
		logger.Fatalf("Failed to load open positions: %v", err)
	}
	stream := binance.NewStreamClient(cfg.Symbols, func(symbol string, price float64) {
		book.ObserveAll(symbol, price)
	})
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		logger.Info("Connecting to exchange price stream...")
		if err := stream.Connect(ctx); err != nil {
			logger.Errorf("Price stream exited with error: %v", err)
			sigs <- syscall.SIGTERM
		}
	}()

	// --- Guard loop ---
	if cfg.Guard.Enabled {
		go runGuardLoop(ctx, cfg, repo, book, coordinator, sweeper, algoCfg)
	} else {
		logger.Warn("Guard is disabled in configuration; only serving HTTP.")
	}

	sig := <-sigs
	logger.Infof("Received signal: %s, initiating shutdown...", sig)

	cancel()
	time.Sleep(1 * time.Second)
	logger.Info("Stop guard bot shut down gracefully.")
}

// loadTrackers seeds a watermark tracker for every open position so trailing
// algorithms see highs and lows from startup onward.
func loadTrackers(ctx context.Context, repo store.Repository, book *position.Book) error {
	positions, err := repo.OpenPositions(ctx)
	if err != nil {
		return err
	}
	for _, p := range positions {
		book.Track(p.ID, p.Symbol, position.NewTracker(p.EntryPrice, p.Side, p.OpenedAt))
	}
	logger.Infof("Tracking %d open positions", len(positions))
	return nil
}

// runGuardLoop alternates the safety sweep and the trailing evaluation on
// the configured interval.
func runGuardLoop(ctx context.Context, cfg *config.Config, repo store.Repository, book *position.Book,
	coordinator *trailing.Coordinator, sweeper *monitor.Monitor, algoCfg algorithm.Config) {

	interval := time.Duration(cfg.Guard.ScanIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Infof("Guard loop started, scanning every %v", interval)
	for {
		select {
		case <-ctx.Done():
			logger.Info("Guard loop shutting down.")
			return
		case <-ticker.C:
			sweepReport := sweeper.ScanAndProtect(ctx)
			metrics.ObserveSweep(sweepReport)
			evaluateTrailing(ctx, repo, book, coordinator, algoCfg)
		}
	}
}

// evaluateTrailing recomputes the stop for every tracked position from its
// price watermarks and asks the coordinator to move it. The coordinator
// refuses anything that would loosen the protection.
func evaluateTrailing(ctx context.Context, repo store.Repository, book *position.Book,
	coordinator *trailing.Coordinator, algoCfg algorithm.Config) {

	positions, err := repo.OpenPositions(ctx)
	if err != nil {
		logger.Errorf("Trailing evaluation could not list positions: %v", err)
		return
	}

	for _, p := range positions {
		tracker := book.Get(p.ID, p.Symbol)
		if tracker == nil {
			tracker = position.NewTracker(p.EntryPrice, p.Side, p.OpenedAt)
			book.Track(p.ID, p.Symbol, tracker)
		}
		snap := tracker.Snapshot()
		if snap.LastPrice <= 0 {
			continue // no market data seen yet
		}

		stop := algorithm.Calculate(algoCfg, algorithm.Input{
			Side:        p.Side,
			EntryPrice:  p.EntryPrice,
			MarketPrice: snap.LastPrice,
			HighWater:   snap.HighWater,
			LowWater:    snap.LowWater,
			OpenedAt:    p.OpenedAt,
			Now:         time.Now(),
		})
		if stop <= 0 {
			continue
		}

		res, err := coordinator.SafeUpdate(ctx, trailing.UpdateRequest{
			PositionID:  p.ID,
			NewStop:     stop,
			MarketPrice: snap.LastPrice,
		})
		if err != nil {
			logger.Errorf("Trailing update failed for position %d: %v", p.ID, err)
			continue
		}
		if res.Success {
			metrics.ObserveTrailingUpdate("success")
		} else {
			metrics.ObserveTrailingUpdate(res.Reason)
		}
	}
}

// Package main runs the periodic protection report generator.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/stop-guard-bot/internal/config"
	"github.com/your-org/stop-guard-bot/internal/report"
	"github.com/your-org/stop-guard-bot/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	intervalMinutes := flag.Int("interval", 60, "Minutes between report runs")
	once := flag.Bool("once", false, "Generate a single report and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger.SetGlobalLogLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbpool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		logger.Fatalf("Unable to connect to database: %v", err)
	}
	defer dbpool.Close()

	generator := report.NewGenerator(dbpool)

	run := func() {
		rep, err := generator.Generate(ctx, time.Now().Add(-24*time.Hour))
		if err != nil {
			logger.Errorf("Failed to generate protection report: %v", err)
			return
		}
		logger.Info(formatReport(rep))
	}

	run()
	if *once {
		return
	}

	interval := time.Duration(*intervalMinutes) * time.Minute
	if interval <= 0 {
		logger.Warnf("Invalid interval %d, defaulting to 60 minutes.", *intervalMinutes)
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Infof("Report generator started. Will run every %v.", interval)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			run()
		case sig := <-sigs:
			logger.Infof("Received signal: %s, shutting down report generator.", sig)
			return
		}
	}
}

// formatReport renders the report as a single log line an operator can scan.
func formatReport(r report.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Protection report: open=%d protected=%d unprotected=%d pending=%d rate=%.1f%%",
		r.OpenPositions, r.ProtectedPositions, r.UnprotectedPositions, r.PendingPlacements, r.ProtectionRate)
	fmt.Fprintf(&b, " retries=%d maxRetry=%d", r.TotalRetries, r.MaxRetryCount)
	fmt.Fprintf(&b, " closures=%d notional=%s", r.ForceClosures, r.ClosedNotional.StringFixed(2))

	if len(r.ClosuresByReason) > 0 {
		reasons := make([]string, 0, len(r.ClosuresByReason))
		for reason, count := range r.ClosuresByReason {
			reasons = append(reasons, fmt.Sprintf("%s=%d", reason, count))
		}
		sort.Strings(reasons)
		fmt.Fprintf(&b, " byReason[%s]", strings.Join(reasons, " "))
	}
	return b.String()
}

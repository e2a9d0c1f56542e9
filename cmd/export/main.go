package main

import (
	"context"
	"encoding/csv"
	"flag"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/your-org/stop-guard-bot/internal/config"
	"github.com/your-org/stop-guard-bot/pkg/logger"
)

func main() {
	// --- Argument Parsing ---
	startTimeStr := flag.String("start", "", "Start time for the export window (YYYY-MM-DD HH:MM:SS)")
	endTimeStr := flag.String("end", "", "End time for the export window (YYYY-MM-DD HH:MM:SS)")
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	flag.Parse()

	if *startTimeStr == "" || *endTimeStr == "" {
		logger.Fatal("Both --start and --end flags are required.")
	}

	// --- Config and Logger Setup ---
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load configuration to get DB settings: %v", err)
	}
	logger.SetGlobalLogLevel("info")

	// --- Database Connection ---
	ctx := context.Background()
	dbpool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		logger.Fatalf("Unable to connect to database: %v", err)
	}
	defer dbpool.Close()

	logger.Infof("Successfully connected to the database. Exporting audit events from %s to %s...", *startTimeStr, *endTimeStr)

	// --- CSV Writer Setup ---
	writer := csv.NewWriter(os.Stdout)
	defer writer.Flush()

	header := []string{"id", "time", "user_id", "symbol", "event_type", "detail"}
	if err := writer.Write(header); err != nil {
		logger.Fatalf("Failed to write CSV header: %v", err)
	}

	// --- Query and Write Data ---
	query := `
        SELECT id, time, user_id, symbol, event_type, detail
        FROM audit_events
        WHERE time >= $1 AND time < $2
        ORDER BY time ASC;
    `
	rows, err := dbpool.Query(ctx, query, *startTimeStr, *endTimeStr)
	if err != nil {
		logger.Fatalf("Failed to query audit events: %v", err)
	}
	defer rows.Close()

	var rowCount int
	for rows.Next() {
		var id string
		var t time.Time
		var userID, symbol, eventType, detail string

		if err := rows.Scan(&id, &t, &userID, &symbol, &eventType, &detail); err != nil {
			logger.Fatalf("Failed to scan row: %v", err)
		}

		record := []string{
			id,
			t.Format("2006-01-02 15:04:05.999999-07"),
			userID,
			symbol,
			eventType,
			detail,
		}

		if err := writer.Write(record); err != nil {
			logger.Fatalf("Failed to write CSV record: %v", err)
		}
		rowCount++
	}

	if err := rows.Err(); err != nil {
		logger.Fatalf("Error iterating over rows: %v", err)
	}

	logger.Infof("Successfully exported %d rows.", rowCount)
}

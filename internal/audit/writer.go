package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/your-org/stop-guard-bot/internal/config"
)

// Pool is an interface that abstracts the pgxpool.Pool for testability.
type Pool interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Close()
}

// Writer batches audit events and flushes them to the database on an
// interval or when the buffer fills.
type Writer struct {
	pool         Pool
	logger       *zap.Logger
	config       config.AuditConfig
	buffer       []Event
	bufferMutex  sync.Mutex
	flushTicker  *time.Ticker
	shutdownChan chan struct{}
}

var _ Recorder = (*Writer)(nil)

// NewWriter creates a Writer on the given pool. A nil pool yields a dummy
// writer that discards all events.
func NewWriter(pool Pool, writerConfig config.AuditConfig, logger *zap.Logger) *Writer {
	if pool == nil {
		logger.Info("pgxpool.Pool is nil, creating dummy audit writer.")
		return &Writer{
			pool:         nil,
			logger:       logger,
			shutdownChan: make(chan struct{}),
		}
	}

	if writerConfig.WriteIntervalSeconds <= 0 {
		logger.Warn("WriteIntervalSeconds is zero or negative, defaulting to 1s.", zap.Int("originalValue", writerConfig.WriteIntervalSeconds))
		writerConfig.WriteIntervalSeconds = 1
	}
	if writerConfig.BatchSize <= 0 {
		logger.Warn("BatchSize is zero or negative, defaulting to 50.", zap.Int("originalValue", writerConfig.BatchSize))
		writerConfig.BatchSize = 50
	}

	writer := &Writer{
		pool:         pool,
		logger:       logger,
		config:       writerConfig,
		buffer:       make([]Event, 0, writerConfig.BatchSize),
		shutdownChan: make(chan struct{}),
	}

	writer.flushTicker = time.NewTicker(time.Duration(writerConfig.WriteIntervalSeconds) * time.Second)
	go writer.run()
	logger.Info("Started audit batch writer")

	return writer
}

// Close stops the background flusher, flushes the remaining buffer and
// closes the pool.
func (w *Writer) Close() {
	if w.pool == nil {
		w.logger.Info("Closing dummy audit writer.")
		return
	}

	w.logger.Info("Closing audit writer...")
	close(w.shutdownChan)
	w.flushTicker.Stop()

	w.flush()

	w.pool.Close()
	w.logger.Info("Audit writer connection pool closed")
}

func (w *Writer) run() {
	for {
		select {
		case <-w.flushTicker.C:
			w.flush()
		case <-w.shutdownChan:
			return
		}
	}
}

// Record adds an event to the buffer. Missing ids and timestamps are filled
// in.
func (w *Writer) Record(event Event) {
	if w.pool == nil {
		return
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	w.bufferMutex.Lock()
	w.buffer = append(w.buffer, event)
	shouldFlush := len(w.buffer) >= w.config.BatchSize
	w.bufferMutex.Unlock()

	if shouldFlush {
		w.flush()
	}
}

func (w *Writer) flush() {
	if w.pool == nil {
		return
	}
	w.bufferMutex.Lock()
	defer w.bufferMutex.Unlock()

	if len(w.buffer) == 0 {
		return
	}
	w.logger.Debug("Flushing audit events", zap.Int("count", len(w.buffer)))

	_, err := w.pool.CopyFrom(
		context.Background(),
		pgx.Identifier{"audit_events"},
		[]string{"id", "time", "user_id", "symbol", "event_type", "detail"},
		pgx.CopyFromRows(toEventInterfaces(w.buffer)),
	)
	if err != nil {
		w.logger.Error("Failed to batch insert audit events", zap.Error(err))
	}
	w.buffer = w.buffer[:0]
}

func toEventInterfaces(events []Event) [][]interface{} {
	rows := make([][]interface{}, len(events))
	for i, e := range events {
		rows[i] = []interface{}{e.ID, e.Time, e.UserID, e.Symbol, e.Type, e.Detail}
	}
	return rows
}

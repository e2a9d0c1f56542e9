package audit

import (
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/stop-guard-bot/internal/config"
	"go.uber.org/zap"
)

func TestWriter_ImplementsRecorder(t *testing.T) {
	assert.Implements(t, (*Recorder)(nil), new(Writer))
}

func TestWriter_RecordFlushesFullBatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	writerConfig := config.AuditConfig{
		BatchSize:            1, // flush on every event
		WriteIntervalSeconds: 1,
	}

	writer := NewWriter(mock, writerConfig, zap.NewNop())

	mock.ExpectCopyFrom(
		pgx.Identifier{"audit_events"},
		[]string{"id", "time", "user_id", "symbol", "event_type", "detail"},
	)

	writer.Record(NewEvent("user-1", "BTCUSDT", EventStopOrderCreated, "stop=47500"))

	require.NoError(t, mock.ExpectationsWereMet(), "there were unfulfilled expectations")
}

func TestWriter_DummyModeDiscardsEvents(t *testing.T) {
	writer := NewWriter(nil, config.AuditConfig{}, zap.NewNop())
	writer.Record(NewEvent("user-1", "BTCUSDT", EventStopOrderCreated, ""))
	writer.Close()
}

func TestInMemRecorder_FiltersByType(t *testing.T) {
	rec := NewInMemRecorder()
	rec.Record(NewEvent("user-1", "BTCUSDT", EventStopOrderCreated, ""))
	rec.Record(NewEvent("user-1", "BTCUSDT", EventPositionForceClosed, "reason=max_age_exceeded"))

	assert.Len(t, rec.Events(), 2)
	got := rec.EventsOfType(EventPositionForceClosed)
	require.Len(t, got, 1)
	assert.Equal(t, "reason=max_age_exceeded", got[0].Detail)
}

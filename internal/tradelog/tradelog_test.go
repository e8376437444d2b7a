package tradelog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLogger(t *testing.T) (*Logger, string) {
	t.Helper()
	dir := t.TempDir()
	l, err := New(dir, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, dir
}

func TestRecordAndReadDay(t *testing.T) {
	l, _ := newTestLogger(t)
	day := time.Date(2025, 6, 2, 10, 30, 0, 0, time.UTC)

	require.NoError(t, l.Record(Event{
		Timestamp: day,
		Type:      EventSignalGenerated,
		VersionID: "v1",
		Symbol:    "AAPL",
		Payload:   map[string]any{"confidence": 85},
	}))
	require.NoError(t, l.Record(Event{
		Timestamp: day.Add(time.Minute),
		Type:      EventSignalExecuted,
		VersionID: "v1",
		Symbol:    "AAPL",
		Payload:   map[string]any{"order_id": "42"},
	}))

	events, err := l.ReadDay(day)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, EventSignalGenerated, events[0].Type)
	assert.Equal(t, "AAPL", events[0].Symbol)
	assert.Equal(t, "v1", events[0].VersionID)
	assert.Equal(t, EventSignalExecuted, events[1].Type)
	assert.Equal(t, "42", events[1].Payload["order_id"])
}

func TestEventsLandInDailySegments(t *testing.T) {
	l, dir := newTestLogger(t)
	monday := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	tuesday := monday.Add(24 * time.Hour)

	require.NoError(t, l.Record(Event{Timestamp: monday, Type: EventSignalGenerated, Symbol: "AAPL"}))
	require.NoError(t, l.Record(Event{Timestamp: tuesday, Type: EventDailySummary}))

	assert.FileExists(t, filepath.Join(dir, "trades_2025-06-02.jsonl"))
	assert.FileExists(t, filepath.Join(dir, "trades_2025-06-03.jsonl"))

	mondayEvents, err := l.ReadDay(monday)
	require.NoError(t, err)
	assert.Len(t, mondayEvents, 1)

	tuesdayEvents, err := l.ReadDay(tuesday)
	require.NoError(t, err)
	assert.Len(t, tuesdayEvents, 1)
	assert.Equal(t, EventDailySummary, tuesdayEvents[0].Type)
}

func TestReadDayMissingSegmentIsEmpty(t *testing.T) {
	l, _ := newTestLogger(t)
	events, err := l.ReadDay(time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestReadDaySkipsCorruptLines(t *testing.T) {
	l, dir := newTestLogger(t)
	day := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, l.Record(Event{Timestamp: day, Type: EventSignalGenerated, Symbol: "AAPL"}))
	require.NoError(t, l.Close())

	path := filepath.Join(dir, "trades_2025-06-02.jsonl")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	events, err := l.ReadDay(day)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestRecordStampsMissingTimestamp(t *testing.T) {
	l, _ := newTestLogger(t)
	require.NoError(t, l.Record(Event{Type: EventOrderUpdate, Symbol: "TSLA"}))

	events, err := l.ReadDay(time.Now())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Timestamp.IsZero())
}

package tradelog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event types recorded by the trade log.
const (
	EventSignalGenerated = "signal_generated"
	EventSignalExecuted  = "signal_executed"
	EventSignalRejected  = "signal_rejected"
	EventOrderUpdate     = "order_update"
	EventDailySummary    = "daily_summary"
)

// Event is one trade-log entry. Payload carries the event-specific fields.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"event_type"`
	VersionID string         `json:"version_id,omitempty"`
	Symbol    string         `json:"symbol,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Logger appends trade events to daily segment files, one JSON object per
// line. Segments are named trades_YYYY-MM-DD.jsonl and rotate at midnight
// local time; the file handle is reopened lazily when the date changes.
type Logger struct {
	dir    string
	logger *zap.SugaredLogger

	mu          sync.Mutex
	currentDate string
	file        *os.File
}

// New creates the log directory if needed and returns a trade logger.
func New(dir string, logger *zap.SugaredLogger) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating trade log directory %s: %w", dir, err)
	}
	return &Logger{dir: dir, logger: logger}, nil
}

// Record appends one event to today's segment. The timestamp is stamped here
// when the caller leaves it zero.
func (l *Logger) Record(event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding trade event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureSegment(event.Timestamp); err != nil {
		return err
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing trade event: %w", err)
	}
	return nil
}

// ReadDay returns every event recorded on the given date, in file order. A
// missing segment yields an empty slice, not an error.
func (l *Logger) ReadDay(date time.Time) ([]Event, error) {
	path := l.segmentPath(date)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening trade log segment %s: %w", path, err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			l.logger.Warnf("Skipping undecodable trade log line in %s: %v", path, err)
			continue
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading trade log segment %s: %w", path, err)
	}
	return events, nil
}

// Close flushes and closes the open segment, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.currentDate = ""
	return err
}

func (l *Logger) ensureSegment(ts time.Time) error {
	date := ts.Format("2006-01-02")
	if l.file != nil && date == l.currentDate {
		return nil
	}
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	path := l.segmentPath(ts)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening trade log segment %s: %w", path, err)
	}
	l.file = f
	l.currentDate = date
	l.logger.Debugf("Trade log segment opened: %s", path)
	return nil
}

func (l *Logger) segmentPath(date time.Time) string {
	return filepath.Join(l.dir, "trades_"+date.Format("2006-01-02")+".jsonl")
}

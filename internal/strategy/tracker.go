package strategy

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Tracker accumulates trade outcomes into per-version performance records.
// Updates are O(1) per trade: derived statistics are recomputed from the
// running counters, never from replayed history.
type Tracker struct {
	store  *Store
	logger *zap.SugaredLogger

	mu      sync.Mutex
	records map[string]*PerformanceRecord
}

// NewTracker builds a tracker seeded with the performance snapshots already
// persisted on the store's versions.
func NewTracker(store *Store, logger *zap.SugaredLogger) *Tracker {
	t := &Tracker{
		store:   store,
		logger:  logger,
		records: make(map[string]*PerformanceRecord),
	}
	for _, v := range store.ListAll() {
		if v.Performance != nil {
			record := *v.Performance
			record.updateDerived()
			t.records[v.VersionID] = &record
		}
	}
	return t
}

// RecordTrade appends one realized profit-or-loss outcome to the named
// version's record and persists the updated snapshot. A version must be
// registered in the store before trades can be attributed to it; attributing
// to an unknown version is an error, not a silent record creation.
func (t *Tracker) RecordTrade(versionID string, pnl float64) error {
	if !t.store.Has(versionID) {
		return fmt.Errorf("recording trade: %w: %s", ErrVersionNotFound, versionID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	record, ok := t.records[versionID]
	if !ok {
		record = &PerformanceRecord{VersionID: versionID}
		t.records[versionID] = record
	}
	record.AddTrade(pnl)

	if err := t.store.UpdatePerformance(versionID, *record); err != nil {
		return err
	}

	t.logger.Debugf("Recorded trade P/L %.2f for version %s (%d trades, win rate %.2f)",
		pnl, versionID, record.TradesExecuted, record.WinRate)
	return nil
}

// Get returns the current snapshot for a registered version. The snapshot is
// zero-valued when no trades have been recorded yet.
func (t *Tracker) Get(versionID string) (PerformanceRecord, error) {
	if !t.store.Has(versionID) {
		return PerformanceRecord{}, fmt.Errorf("%w: %s", ErrVersionNotFound, versionID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if record, ok := t.records[versionID]; ok {
		return *record, nil
	}
	return PerformanceRecord{VersionID: versionID}, nil
}

// Snapshot returns a copy of every record currently tracked.
func (t *Tracker) Snapshot() map[string]PerformanceRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]PerformanceRecord, len(t.records))
	for id, record := range t.records {
		out[id] = *record
	}
	return out
}

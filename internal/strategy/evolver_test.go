package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordTrades(t *testing.T, tracker *Tracker, id string, wins int, winSize float64, losses int, lossSize float64) {
	t.Helper()
	for i := 0; i < wins; i++ {
		require.NoError(t, tracker.RecordTrade(id, winSize))
	}
	for i := 0; i < losses; i++ {
		require.NoError(t, tracker.RecordTrade(id, -lossSize))
	}
}

func TestEvaluateSkipsBelowMinimumTrades(t *testing.T) {
	store, id := newTestStoreWithVersion(t)
	tracker := NewTracker(store, testLogger())
	evolver := NewEvolver(store, tracker, DefaultEvolverConfig(), testLogger())

	recordTrades(t, tracker, id, 1, 10, 8, 10) // 9 trades, terrible stats

	outcome, err := evolver.Evaluate()
	require.NoError(t, err)
	assert.False(t, outcome.Evolved)
	assert.Equal(t, id, store.CurrentID())
}

func TestEvaluateKeepsAcceptablePerformance(t *testing.T) {
	store, id := newTestStoreWithVersion(t)
	tracker := NewTracker(store, testLogger())
	evolver := NewEvolver(store, tracker, DefaultEvolverConfig(), testLogger())

	recordTrades(t, tracker, id, 6, 100, 4, 50) // win rate 0.60, profit factor 3.0

	outcome, err := evolver.Evaluate()
	require.NoError(t, err)
	assert.False(t, outcome.Evolved)
	assert.Equal(t, id, store.CurrentID())
}

func TestEvaluateEvolvesOnLowWinRate(t *testing.T) {
	store, id := newTestStoreWithVersion(t)
	tracker := NewTracker(store, testLogger())
	evolver := NewEvolver(store, tracker, DefaultEvolverConfig(), testLogger())

	// 3/12 wins = 0.25 win rate, profit factor 150/90 = 1.67.
	recordTrades(t, tracker, id, 3, 50, 9, 10)

	outcome, err := evolver.Evaluate()
	require.NoError(t, err)
	require.True(t, outcome.Evolved)
	assert.NotEqual(t, id, outcome.NewVersionID)
	assert.Equal(t, outcome.NewVersionID, store.CurrentID())
	assert.Contains(t, outcome.Reason, "win rate")

	child, err := store.Get(outcome.NewVersionID)
	require.NoError(t, err)
	assert.Equal(t, id, child.ParentVersion)
	// Win rate below 0.4 raises the confidence floor by 10%.
	assert.InDelta(t, 77, child.Params.MinConfidence, 1e-9)
	// Profit factor 1.67 is above 1.2, so risk stays put.
	assert.InDelta(t, 0.02, child.Params.RiskPerTrade, 1e-9)
}

func TestEvaluateEvolvesOnLowProfitFactor(t *testing.T) {
	store, id := newTestStoreWithVersion(t)
	tracker := NewTracker(store, testLogger())
	evolver := NewEvolver(store, tracker, DefaultEvolverConfig(), testLogger())

	// 5/10 wins = 0.50 win rate, profit factor 100/100 = 1.0.
	recordTrades(t, tracker, id, 5, 20, 5, 20)

	outcome, err := evolver.Evaluate()
	require.NoError(t, err)
	require.True(t, outcome.Evolved)
	assert.Contains(t, outcome.Reason, "profit factor")

	child, err := store.Get(outcome.NewVersionID)
	require.NoError(t, err)
	// Profit factor below 1.2 trims risk by 5%: 0.02 -> 0.019.
	assert.InDelta(t, 0.019, child.Params.RiskPerTrade, 1e-9)
	// Win rate 0.50 is above 0.4, so confidence is untouched.
	assert.InDelta(t, 70, child.Params.MinConfidence, 1e-9)
}

func TestEvaluateNoChangeWhenAdjustmentsClampBack(t *testing.T) {
	repo := newMemoryRepository()
	store, err := NewStore(repo, testLogger())
	require.NoError(t, err)

	// Params already pinned at the bounds the directives would push against.
	pinned := Params{RiskPerTrade: 0.01, MinConfidence: 95, MomentumThreshold: 75}
	id, err := store.CreateVersion("aggressive_day_trader", pinned, "", "")
	require.NoError(t, err)

	tracker := NewTracker(store, testLogger())
	evolver := NewEvolver(store, tracker, DefaultEvolverConfig(), testLogger())

	recordTrades(t, tracker, id, 3, 10, 9, 10) // triggers both directives

	outcome, err := evolver.Evaluate()
	require.NoError(t, err)
	assert.False(t, outcome.Evolved)
	assert.Equal(t, id, store.CurrentID())
	assert.Len(t, store.ListAll(), 1)
}

func TestEvaluateUsesBaselineFromBestVersion(t *testing.T) {
	store, id := newTestStoreWithVersion(t)
	tracker := NewTracker(store, testLogger())
	evolver := NewEvolver(store, tracker, DefaultEvolverConfig(), testLogger())

	// A retired sibling with a strong record sets the baseline.
	params := DefaultParams()
	params.MomentumThreshold = 80
	sibling, err := store.CreateVersion("aggressive_day_trader", params, "", "")
	require.NoError(t, err)
	recordTrades(t, tracker, sibling, 8, 50, 2, 20) // win rate 0.80

	// Current trails the baseline badly but clears the absolute floor and
	// the profit factor minimum on its own.
	recordTrades(t, tracker, id, 5, 100, 5, 40) // win rate 0.50, profit factor 2.5

	outcome, err := evolver.Evaluate()
	require.NoError(t, err)
	require.True(t, outcome.Evolved)
	assert.Contains(t, outcome.Reason, "baseline")

	child, err := store.Get(outcome.NewVersionID)
	require.NoError(t, err)
	// Trailing the baseline by more than 10 points raises confidence by 15%.
	assert.InDelta(t, 80.5, child.Params.MinConfidence, 1e-9)
}

func TestForceEvolutionSwitchesCurrent(t *testing.T) {
	store, id := newTestStoreWithVersion(t)
	tracker := NewTracker(store, testLogger())
	evolver := NewEvolver(store, tracker, DefaultEvolverConfig(), testLogger())

	params := DefaultParams()
	params.RiskPerTrade = 0.05
	newID, err := evolver.ForceEvolution("momentum_scalper", &params, "manual test")
	require.NoError(t, err)

	assert.NotEqual(t, id, newID)
	assert.Equal(t, newID, store.CurrentID())

	v, err := store.Get(newID)
	require.NoError(t, err)
	assert.Equal(t, "momentum_scalper", v.PromptTemplate)
	assert.Equal(t, id, v.ParentVersion)
	assert.Equal(t, "manual test", v.ChangeReason)
}

package strategy

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// EvolverConfig holds the thresholds governing when evolution triggers.
type EvolverConfig struct {
	// MinEvaluationTrades is the minimum trade count before a version has a
	// statistical basis for evaluation.
	MinEvaluationTrades int

	// LowWinRateFloor triggers evolution whenever the absolute win rate falls
	// below it.
	LowWinRateFloor float64

	// ImprovementThreshold is the relative margin by which the current win
	// rate may trail the baseline before evolution triggers.
	ImprovementThreshold float64

	// MinProfitFactor triggers evolution when the profit factor falls below
	// it.
	MinProfitFactor float64
}

// DefaultEvolverConfig returns the stock evolution thresholds.
func DefaultEvolverConfig() EvolverConfig {
	return EvolverConfig{
		MinEvaluationTrades:  10,
		LowWinRateFloor:      0.30,
		ImprovementThreshold: 0.05,
		MinProfitFactor:      1.1,
	}
}

// Outcome describes the result of one evolution evaluation.
type Outcome struct {
	Evolved      bool
	NewVersionID string
	Reason       string
}

// Evolver decides, from accumulated performance statistics, whether and how
// to derive a new strategy version from the current one. Evaluation is an
// explicit operation, never run silently mid-cycle, and the evolver is the
// single writer of the current-version pointer.
type Evolver struct {
	store   *Store
	tracker *Tracker
	cfg     EvolverConfig
	logger  *zap.SugaredLogger

	mu sync.Mutex // one evaluation at a time
}

// NewEvolver wires an evolution policy over the given store and tracker.
func NewEvolver(store *Store, tracker *Tracker, cfg EvolverConfig, logger *zap.SugaredLogger) *Evolver {
	return &Evolver{store: store, tracker: tracker, cfg: cfg, logger: logger}
}

// Evaluate runs one pass of the evolution state machine: stable ->
// evaluating -> stable or evolved. With fewer trades than the evaluation
// minimum the call is a no-op. When the decision triggers, a child version
// with adjusted parameters is created and the current pointer switches to it.
func (e *Evolver) Evaluate() (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	current, err := e.store.Get("")
	if err != nil {
		return Outcome{}, fmt.Errorf("evolution evaluation: %w", err)
	}
	perf, err := e.tracker.Get(current.VersionID)
	if err != nil {
		return Outcome{}, fmt.Errorf("evolution evaluation: %w", err)
	}

	if perf.TradesExecuted < e.cfg.MinEvaluationTrades {
		e.logger.Infof("Insufficient trades (%d) for evaluation, need at least %d",
			perf.TradesExecuted, e.cfg.MinEvaluationTrades)
		return Outcome{}, nil
	}

	baseline := e.baseline()

	if !e.shouldEvolve(perf, baseline) {
		e.logger.Info("Current strategy performance is acceptable, no evolution needed")
		return Outcome{}, nil
	}

	adjustments := e.analyzeGaps(perf, baseline)
	newParams, err := current.Params.Apply(adjustments)
	if err != nil {
		return Outcome{}, fmt.Errorf("applying parameter adjustments: %w", err)
	}

	// Adjustments that all clamp back to the current values produce an
	// identical version; evaluation ran but nothing changes.
	if newParams == current.Params {
		e.logger.Info("Evolution triggered but adjustments produced no parameter change")
		return Outcome{}, nil
	}

	reason := e.changeReason(perf, baseline)
	newID, err := e.store.CreateVersion(current.PromptTemplate, newParams, current.VersionID, reason)
	if err != nil {
		return Outcome{}, fmt.Errorf("creating evolved version: %w", err)
	}
	if err := e.store.SetCurrent(newID); err != nil {
		return Outcome{}, fmt.Errorf("switching to evolved version %s: %w", newID, err)
	}

	e.logger.Infof("Evolved strategy to version %s: %s", newID, reason)
	return Outcome{Evolved: true, NewVersionID: newID, Reason: reason}, nil
}

// baseline returns the best win rate among versions with enough trades to be
// eligible, or nil when none qualifies. The current version competing against
// itself is degenerate but harmless.
func (e *Evolver) baseline() *PerformanceRecord {
	var best *PerformanceRecord
	for _, record := range e.tracker.Snapshot() {
		if record.TradesExecuted < e.cfg.MinEvaluationTrades {
			continue
		}
		r := record
		if best == nil || r.WinRate > best.WinRate {
			best = &r
		}
	}
	return best
}

// shouldEvolve checks the trigger conditions; any single one is sufficient.
func (e *Evolver) shouldEvolve(perf PerformanceRecord, baseline *PerformanceRecord) bool {
	if perf.WinRate < e.cfg.LowWinRateFloor {
		return true
	}
	if baseline != nil && perf.WinRate < baseline.WinRate*(1-e.cfg.ImprovementThreshold) {
		return true
	}
	if perf.ProfitFactor < e.cfg.MinProfitFactor {
		return true
	}
	return false
}

// analyzeGaps derives adjustment directives from the nature of the
// shortfall.
func (e *Evolver) analyzeGaps(perf PerformanceRecord, baseline *PerformanceRecord) []Adjustment {
	var adjustments []Adjustment

	if perf.WinRate < 0.4 {
		// Too many losers: demand more conviction before acting.
		adjustments = append(adjustments, Adjustment{Field: "min_confidence", ChangeFraction: 0.10})
	}
	if perf.ProfitFactor < 1.2 {
		// Losses outweigh gains: commit less per trade.
		adjustments = append(adjustments, Adjustment{Field: "risk_per_trade", ChangeFraction: -0.05})
	}
	if baseline != nil && perf.WinRate-baseline.WinRate < -0.1 {
		// Far behind the baseline: raise the bar more aggressively.
		adjustments = append(adjustments, Adjustment{Field: "min_confidence", ChangeFraction: 0.15})
	}

	return adjustments
}

// changeReason summarizes which thresholds were breached.
func (e *Evolver) changeReason(perf PerformanceRecord, baseline *PerformanceRecord) string {
	var reasons []string

	if perf.WinRate < e.cfg.LowWinRateFloor {
		reasons = append(reasons, fmt.Sprintf("win rate %.2f below floor %.2f", perf.WinRate, e.cfg.LowWinRateFloor))
	}
	if perf.ProfitFactor < e.cfg.MinProfitFactor {
		reasons = append(reasons, fmt.Sprintf("profit factor %.2f below minimum %.2f", perf.ProfitFactor, e.cfg.MinProfitFactor))
	}
	if baseline != nil && perf.WinRate < baseline.WinRate {
		gap := (baseline.WinRate - perf.WinRate) * 100
		reasons = append(reasons, fmt.Sprintf("%.1f%% worse win rate than baseline %s", gap, baseline.VersionID))
	}

	if len(reasons) == 0 {
		return "performance optimization"
	}
	return strings.Join(reasons, "; ")
}

// ForceEvolution creates a new version from the given template and params
// (falling back to the current version's values when empty) and switches to
// it. Used for manual overrides.
func (e *Evolver) ForceEvolution(templateRef string, params *Params, reason string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	current, err := e.store.Get("")
	if err != nil {
		return "", fmt.Errorf("force evolution: %w", err)
	}

	if templateRef == "" {
		templateRef = current.PromptTemplate
	}
	newParams := current.Params
	if params != nil {
		newParams = *params
	}
	if reason == "" {
		reason = "manual override"
	}

	newID, err := e.store.CreateVersion(templateRef, newParams, current.VersionID, reason)
	if err != nil {
		return "", err
	}
	if err := e.store.SetCurrent(newID); err != nil {
		return "", err
	}
	return newID, nil
}

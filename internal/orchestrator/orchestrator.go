package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"llm-trading-bot-go/internal/ai"
	"llm-trading-bot-go/internal/broker"
	"llm-trading-bot-go/internal/datafetcher"
	"llm-trading-bot-go/internal/models"
	"llm-trading-bot-go/internal/notifier"
	"llm-trading-bot-go/internal/pipeline"
	"llm-trading-bot-go/internal/strategy"
	"llm-trading-bot-go/internal/tradelog"
)

// ModelClient is the slice of the chat client the orchestrator needs.
type ModelClient interface {
	ChatCompletion(ctx context.Context, messages []ai.Message) (string, error)
	IsRateLimited() bool
	TimeUntilNextCall() time.Duration
}

// Config holds the orchestration schedule and trading window.
type Config struct {
	Symbols       []string
	BatchSize     int
	CycleInterval time.Duration

	Location    *time.Location
	MarketOpen  string // "09:30"
	MarketClose string // "16:00"
	Weekdays    map[time.Weekday]bool
}

// Orchestrator runs trading cycles: gate on the market calendar and cycle
// spacing, probe collaborators, then analyze and trade symbol batches. It is
// the single writer of the cycle timestamp; concurrent trigger fires collapse
// into one running cycle.
type Orchestrator struct {
	cfg      Config
	store    *strategy.Store
	evolver  *strategy.Evolver
	fetcher  datafetcher.Fetcher
	model    ModelClient
	prompts  *ai.PromptBuilder
	pipe     *pipeline.Pipeline
	broker   broker.Broker
	notify   notifier.Notifier
	tradeLog *tradelog.Logger
	logger   *zap.SugaredLogger

	openMinute  int
	closeMinute int

	mu         sync.Mutex
	running    bool
	lastCycle  time.Time
	lastHealth []models.HealthStatus
	cycleSeq   int
}

// New wires an orchestrator. The market open/close strings must parse as
// HH:MM clock times.
func New(
	cfg Config,
	store *strategy.Store,
	evolver *strategy.Evolver,
	fetcher datafetcher.Fetcher,
	model ModelClient,
	prompts *ai.PromptBuilder,
	pipe *pipeline.Pipeline,
	b broker.Broker,
	notify notifier.Notifier,
	tradeLog *tradelog.Logger,
	logger *zap.SugaredLogger,
) (*Orchestrator, error) {
	openMinute, err := parseClock(cfg.MarketOpen)
	if err != nil {
		return nil, fmt.Errorf("invalid market open time: %w", err)
	}
	closeMinute, err := parseClock(cfg.MarketClose)
	if err != nil {
		return nil, fmt.Errorf("invalid market close time: %w", err)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if notify == nil {
		notify = notifier.Nop{}
	}

	return &Orchestrator{
		cfg:         cfg,
		store:       store,
		evolver:     evolver,
		fetcher:     fetcher,
		model:       model,
		prompts:     prompts,
		pipe:        pipe,
		broker:      b,
		notify:      notify,
		tradeLog:    tradeLog,
		logger:      logger,
		openMinute:  openMinute,
		closeMinute: closeMinute,
	}, nil
}

// RunCycle executes one trading cycle if the gates allow it. Gate skips
// return nil; only collaborator failures that abort a started cycle surface
// as errors. The cycle timestamp advances only when a cycle runs to
// completion, so a skipped or aborted cycle never delays the next one.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		o.logger.Warn("Cycle trigger fired while a cycle is still running, skipping")
		return nil
	}
	now := time.Now().In(o.cfg.Location)
	if !withinMarketHours(now, o.cfg.Weekdays, o.openMinute, o.closeMinute) {
		o.mu.Unlock()
		o.logger.Infof("Market closed at %s, skipping cycle", now.Format("Mon 15:04"))
		return nil
	}
	if tooSoon(now, o.lastCycle, o.cfg.CycleInterval) {
		elapsed := now.Sub(o.lastCycle)
		o.mu.Unlock()
		o.logger.Infof("Only %s since last cycle (interval %s), skipping", elapsed.Round(time.Second), o.cfg.CycleInterval)
		return nil
	}
	o.running = true
	o.cycleSeq++
	seq := o.cycleSeq
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	o.logger.Infof("=== Trading cycle %d starting ===", seq)
	start := time.Now()

	for _, status := range o.HealthChecks(ctx) {
		if !status.Healthy {
			o.logger.Warnf("Health check %s failed: %s", status.Name, status.Detail)
		}
	}

	current, err := o.store.Get("")
	if err != nil {
		err = fmt.Errorf("cycle %d: loading current strategy version: %w", seq, err)
		o.notify.Notify(err.Error())
		return err
	}
	account, err := o.broker.GetAccount(ctx)
	if err != nil {
		err = fmt.Errorf("cycle %d: fetching account snapshot: %w", seq, err)
		o.notify.Notify(err.Error())
		return err
	}

	var totalSignals, totalExecutions, failedBatches int
	for i, batch := range Batches(o.cfg.Symbols, o.cfg.BatchSize) {
		signals, executions, err := o.runBatch(ctx, current, account, batch)
		if err != nil {
			failedBatches++
			o.logger.Errorf("Cycle %d batch %d (%s) failed: %v", seq, i+1, strings.Join(batch, ","), err)
			o.notify.Notify(fmt.Sprintf("Cycle %d batch %d failed: %v", seq, i+1, err))
			continue
		}
		totalSignals += signals
		totalExecutions += executions
	}

	o.mu.Lock()
	o.lastCycle = time.Now().In(o.cfg.Location)
	o.mu.Unlock()

	elapsed := time.Since(start).Round(time.Millisecond)
	summary := fmt.Sprintf("Cycle %d done in %s: %d signals, %d executed, %d/%d batches failed (version %s)",
		seq, elapsed, totalSignals, totalExecutions, failedBatches, len(Batches(o.cfg.Symbols, o.cfg.BatchSize)), current.VersionID)
	o.logger.Info(summary)
	o.notify.Notify(summary)
	return nil
}

// runBatch analyzes one symbol batch end to end and returns the signal and
// execution counts.
func (o *Orchestrator) runBatch(ctx context.Context, current *strategy.Version, account models.AccountState, symbols []string) (int, int, error) {
	data, err := o.fetcher.FetchRecent(ctx, symbols, "5m", 20)
	if err != nil {
		return 0, 0, fmt.Errorf("fetching market data: %w", err)
	}
	if len(data) == 0 {
		o.logger.Warnf("No market data for batch %s", strings.Join(symbols, ","))
		return 0, 0, nil
	}

	extra := fmt.Sprintf("Strategy parameters: risk per trade %.2f%%, minimum confidence %.0f%%, momentum threshold %.0f%%.",
		current.Params.RiskPerTrade*100, current.Params.MinConfidence, current.Params.MomentumThreshold)
	messages, err := o.prompts.BuildMessages(current.PromptTemplate, data, extra)
	if err != nil {
		return 0, 0, fmt.Errorf("building prompt: %w", err)
	}

	response, err := o.model.ChatCompletion(ctx, messages)
	if err != nil {
		return 0, 0, fmt.Errorf("model analysis: %w", err)
	}

	signals := o.pipe.Parse(response)
	executions := o.pipe.Execute(ctx, current.VersionID, signals, account, current.Params)
	return len(signals), len(executions), nil
}

// RunEvolution performs one explicit evolution evaluation and announces the
// outcome.
func (o *Orchestrator) RunEvolution() error {
	outcome, err := o.evolver.Evaluate()
	if err != nil {
		return err
	}
	if outcome.Evolved {
		o.notify.Notify(fmt.Sprintf("Strategy evolved to version %s: %s", outcome.NewVersionID, outcome.Reason))
	}
	o.dailySummary()
	return nil
}

// dailySummary tallies today's trade log and records a summary event. The
// evolution job runs once after the close, so this fires at most once per
// trading day.
func (o *Orchestrator) dailySummary() {
	if o.tradeLog == nil {
		return
	}
	now := time.Now().In(o.cfg.Location)
	events, err := o.tradeLog.ReadDay(now)
	if err != nil {
		o.logger.Warnf("Failed to read today's trade log: %v", err)
		return
	}

	counts := make(map[string]int)
	for _, event := range events {
		counts[event.Type]++
	}
	if len(events) == 0 {
		return
	}

	summary := fmt.Sprintf("Daily summary %s: %d signals, %d executed, %d rejected (version %s)",
		now.Format("2006-01-02"),
		counts[tradelog.EventSignalGenerated]+counts[tradelog.EventSignalRejected],
		counts[tradelog.EventSignalExecuted],
		counts[tradelog.EventSignalRejected],
		o.store.CurrentID())

	if err := o.tradeLog.Record(tradelog.Event{
		Type:      tradelog.EventDailySummary,
		VersionID: o.store.CurrentID(),
		Payload: map[string]any{
			"signals_generated": counts[tradelog.EventSignalGenerated],
			"signals_executed":  counts[tradelog.EventSignalExecuted],
			"signals_rejected":  counts[tradelog.EventSignalRejected],
			"order_updates":     counts[tradelog.EventOrderUpdate],
		},
	}); err != nil {
		o.logger.Warnf("Failed to record daily summary: %v", err)
	}
	o.logger.Info(summary)
	o.notify.Notify(summary)
}

// HealthChecks probes each collaborator, keeps the results as the rolling
// health snapshot, and pushes a notification for every probe that newly
// degraded. Probes never block a cycle: results are reported, not enforced.
func (o *Orchestrator) HealthChecks(ctx context.Context) []models.HealthStatus {
	now := time.Now()
	checks := []models.HealthStatus{
		{Name: "broker", Healthy: true, CheckedAt: now},
		{Name: "model", Healthy: true, CheckedAt: now},
		{Name: "data_feed", Healthy: true, CheckedAt: now},
		{Name: "notifier", Healthy: true, CheckedAt: now},
		{Name: "strategy_store", Healthy: true, CheckedAt: now},
	}

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := o.broker.GetAccount(probeCtx); err != nil {
		checks[0].Healthy = false
		checks[0].Detail = err.Error()
	}

	if o.model.IsRateLimited() {
		checks[1].Healthy = false
		checks[1].Detail = fmt.Sprintf("rate limited for another %s", o.model.TimeUntilNextCall().Round(time.Second))
	}

	if len(o.cfg.Symbols) > 0 {
		if _, err := o.fetcher.FetchRecent(probeCtx, o.cfg.Symbols[:1], "5m", 1); err != nil {
			checks[2].Healthy = false
			checks[2].Detail = err.Error()
		}
	}

	if pinger, ok := o.notify.(interface{ Ping() error }); ok {
		if err := pinger.Ping(); err != nil {
			checks[3].Healthy = false
			checks[3].Detail = err.Error()
		}
	}

	if o.store.CurrentID() == "" {
		checks[4].Healthy = false
		checks[4].Detail = "no current strategy version"
	}

	// Swap in the new snapshot, remembering which probes were healthy before
	// so only transitions to degraded raise an alert.
	o.mu.Lock()
	wasHealthy := make(map[string]bool, len(o.lastHealth))
	for _, prev := range o.lastHealth {
		wasHealthy[prev.Name] = prev.Healthy
	}
	seen := o.lastHealth != nil
	o.lastHealth = checks
	o.mu.Unlock()

	for _, check := range checks {
		if check.Healthy {
			continue
		}
		if !seen || wasHealthy[check.Name] {
			o.notify.Notify(fmt.Sprintf("Health check %s degraded: %s", check.Name, check.Detail))
		}
	}

	return checks
}

// Health returns the most recent health probe results, or nil before the
// first probe.
func (o *Orchestrator) Health() []models.HealthStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]models.HealthStatus, len(o.lastHealth))
	copy(out, o.lastHealth)
	return out
}

// LastCycle returns when the last completed cycle finished.
func (o *Orchestrator) LastCycle() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastCycle
}

// withinMarketHours reports whether now falls inside the trading window:
// an allowed weekday, at or after the open minute and strictly before the
// close minute.
func withinMarketHours(now time.Time, weekdays map[time.Weekday]bool, openMinute, closeMinute int) bool {
	if !weekdays[now.Weekday()] {
		return false
	}
	minute := now.Hour()*60 + now.Minute()
	return minute >= openMinute && minute < closeMinute
}

// tooSoon reports whether the spacing gate should skip this trigger. The
// first cycle after startup always passes.
func tooSoon(now, last time.Time, interval time.Duration) bool {
	if last.IsZero() {
		return false
	}
	return now.Sub(last) < interval
}

// Batches splits symbols into fixed-size groups, preserving order so the
// grouping is deterministic across cycles.
func Batches(symbols []string, size int) [][]string {
	if size <= 0 {
		size = len(symbols)
	}
	var out [][]string
	for start := 0; start < len(symbols); start += size {
		end := start + size
		if end > len(symbols) {
			end = len(symbols)
		}
		out = append(out, symbols[start:end])
	}
	return out
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("clock time %q is not HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("clock time %q has invalid hour", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("clock time %q has invalid minute", s)
	}
	return hour*60 + minute, nil
}

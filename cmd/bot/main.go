package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"llm-trading-bot-go/internal/ai"
	"llm-trading-bot-go/internal/broker"
	"llm-trading-bot-go/internal/config"
	"llm-trading-bot-go/internal/datafetcher"
	"llm-trading-bot-go/internal/logger"
	"llm-trading-bot-go/internal/models"
	"llm-trading-bot-go/internal/notifier"
	"llm-trading-bot-go/internal/orchestrator"
	"llm-trading-bot-go/internal/persistence"
	"llm-trading-bot-go/internal/pipeline"
	"llm-trading-bot-go/internal/reporter"
	"llm-trading-bot-go/internal/scheduler"
	"llm-trading-bot-go/internal/strategy"
	"llm-trading-bot-go/internal/tradelog"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the config file")
	runOnce := flag.Bool("once", false, "run a single trading cycle and exit")
	flag.Parse()

	bootstrapLog := logger.New(logger.DefaultConfig()).Sugar()

	if err := godotenv.Load(); err != nil {
		bootstrapLog.Info("No .env file found, reading from system environment")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		bootstrapLog.Fatalf("Failed to load config: %v", err)
	}

	log := logger.New(cfg.LogConfig).Sugar()
	defer log.Sync()

	if err := run(cfg, log, *runOnce); err != nil {
		log.Fatalf("Bot exited with error: %v", err)
	}
}

func run(cfg *models.Config, log *zap.SugaredLogger, runOnce bool) error {
	startedAt := time.Now()

	repo, err := persistence.NewBadgerRepository(cfg.DBPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	store, err := strategy.NewStore(repo, log)
	if err != nil {
		return err
	}

	// Bootstrap the root version on first run.
	if store.CurrentID() == "" {
		id, err := store.CreateVersion(cfg.DefaultTemplate, strategy.DefaultParams(), "", "initial version")
		if err != nil {
			return err
		}
		log.Infof("Bootstrapped root strategy version %s", id)
	}

	tracker := strategy.NewTracker(store, log)
	evolver := strategy.NewEvolver(store, tracker, strategy.DefaultEvolverConfig(), log)

	model, err := ai.NewClient(ai.ClientConfig{
		BaseURL:       cfg.AIBaseURL,
		APIKey:        os.Getenv("OPENROUTER_API_KEY"),
		Model:         cfg.AIModel,
		MaxTokens:     cfg.AIMaxTokens,
		Temperature:   *cfg.AITemperature,
		RetryAttempts: cfg.AIRetryAttempts,
		Cooldown:      time.Duration(cfg.AICooldownSeconds) * time.Second,
	}, log)
	if err != nil {
		return err
	}

	prompts, err := ai.NewPromptBuilder(cfg.DefaultTemplate)
	if err != nil {
		return err
	}

	tradeLog, err := tradelog.New(cfg.TradeLogDir, log)
	if err != nil {
		return err
	}
	defer tradeLog.Close()

	venue := broker.NewBinanceBroker(os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_SECRET_KEY"), log)
	fetcher := datafetcher.NewBinanceFetcher(log)
	pipe := pipeline.New(venue, tracker, tradeLog, log)

	var notify notifier.Notifier = notifier.Nop{}
	if token, chatID := os.Getenv("TELEGRAM_BOT_TOKEN"), os.Getenv("TELEGRAM_CHAT_ID"); token != "" && chatID != "" {
		notify = notifier.NewTelegram(token, chatID, log)
		log.Info("Telegram notifications enabled")
	}

	location, err := time.LoadLocation(cfg.MarketTimezone)
	if err != nil {
		return err
	}
	weekdays := make(map[time.Weekday]bool, len(cfg.MarketWeekdays))
	for _, day := range cfg.MarketWeekdays {
		weekdays[time.Weekday(day)] = true
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Symbols:       cfg.Symbols,
		BatchSize:     cfg.BatchSize,
		CycleInterval: time.Duration(cfg.CycleIntervalMinutes) * time.Minute,
		Location:      location,
		MarketOpen:    cfg.MarketOpen,
		MarketClose:   cfg.MarketClose,
		Weekdays:      weekdays,
	}, store, evolver, fetcher, model, prompts, pipe, venue, notify, tradeLog, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if runOnce {
		err := orch.RunCycle(ctx)
		reporter.SessionReport(os.Stdout, store, tracker, startedAt)
		return err
	}

	sched := scheduler.New(location, log)
	if err := sched.AddJob(cfg.CycleCronSpec, orchestrator.CycleJob{Orchestrator: orch, Ctx: ctx}); err != nil {
		return err
	}
	if err := sched.AddJob(cfg.EvolutionCronSpec, orchestrator.EvolutionJob{Orchestrator: orch}); err != nil {
		return err
	}
	sched.Start()
	log.Infof("Bot started: %d symbols, cycle %q, evolution %q", len(cfg.Symbols), cfg.CycleCronSpec, cfg.EvolutionCronSpec)
	notify.Notify("Trading bot started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("Shutdown signal received, stopping")
	cancel()
	sched.Stop()
	notify.Notify("Trading bot stopped")

	reporter.SessionReport(os.Stdout, store, tracker, startedAt)
	return nil
}

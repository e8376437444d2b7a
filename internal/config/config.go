package config

import (
	"encoding/json"
	"fmt"
	"os"

	"llm-trading-bot-go/internal/models"
)

// LoadConfig loads the JSON config file at path into a Config struct and
// applies defaults for optional fields.
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg := &models.Config{}
	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *models.Config) {
	if cfg.DBPath == "" {
		cfg.DBPath = "data/strategy_db"
	}
	if cfg.CycleIntervalMinutes == 0 {
		cfg.CycleIntervalMinutes = 120
	}
	if cfg.CycleCronSpec == "" {
		// On the hour during market hours, weekdays. The spacing gate keeps
		// the effective cadence at CycleIntervalMinutes.
		cfg.CycleCronSpec = "0 10-15 * * MON-FRI"
	}
	if cfg.EvolutionCronSpec == "" {
		// After the close, once the day's outcomes are all recorded.
		cfg.EvolutionCronSpec = "30 16 * * MON-FRI"
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 10
	}
	if cfg.MarketTimezone == "" {
		cfg.MarketTimezone = "America/New_York"
	}
	if cfg.MarketOpen == "" {
		cfg.MarketOpen = "09:30"
	}
	if cfg.MarketClose == "" {
		cfg.MarketClose = "16:00"
	}
	if len(cfg.MarketWeekdays) == 0 {
		cfg.MarketWeekdays = []int{1, 2, 3, 4, 5} // Monday-Friday
	}
	if cfg.AIBaseURL == "" {
		cfg.AIBaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.AIModel == "" {
		cfg.AIModel = "openai/gpt-3.5-turbo"
	}
	if cfg.AIMaxTokens == 0 {
		cfg.AIMaxTokens = 1000
	}
	if cfg.AITemperature == nil {
		// Zero is a meaningful temperature, so absence is a nil pointer
		// rather than a zero value.
		temperature := 0.7
		cfg.AITemperature = &temperature
	}
	if cfg.AIRetryAttempts == 0 {
		cfg.AIRetryAttempts = 3
	}
	if cfg.AICooldownSeconds == 0 {
		cfg.AICooldownSeconds = 900
	}
	if cfg.DefaultTemplate == "" {
		cfg.DefaultTemplate = "aggressive_day_trader"
	}
	if cfg.TradeLogDir == "" {
		cfg.TradeLogDir = "logs"
	}
}

func validate(cfg *models.Config) error {
	if len(cfg.Symbols) == 0 {
		return fmt.Errorf("config: at least one trading symbol is required")
	}
	for _, d := range cfg.MarketWeekdays {
		if d < 0 || d > 6 {
			return fmt.Errorf("config: invalid weekday %d in market_weekdays", d)
		}
	}
	return nil
}

package models

import (
	"fmt"
	"time"
)

// Config defines all configuration parameters of the trading bot.
type Config struct {
	DBPath  string   `json:"db_path"`
	Symbols []string `json:"symbols"`

	// Cycle orchestration
	CycleIntervalMinutes int    `json:"cycle_interval_minutes"`
	CycleCronSpec        string `json:"cycle_cron_spec"`
	EvolutionCronSpec    string `json:"evolution_cron_spec"`
	BatchSize            int    `json:"batch_size"`

	// Trading window (exchange calendar)
	MarketTimezone string `json:"market_timezone"`
	MarketOpen     string `json:"market_open"`  // "09:30"
	MarketClose    string `json:"market_close"` // "16:00"
	MarketWeekdays []int  `json:"market_weekdays"`

	// Model client. Temperature is a pointer so an explicit zero is
	// distinguishable from an omitted field.
	AIBaseURL         string   `json:"ai_base_url"`
	AIModel           string   `json:"ai_model"`
	AIMaxTokens       int      `json:"ai_max_tokens"`
	AITemperature     *float64 `json:"ai_temperature"`
	AIRetryAttempts   int      `json:"ai_retry_attempts"`
	AICooldownSeconds int      `json:"ai_cooldown_seconds"`

	// Strategy bootstrap
	DefaultTemplate string `json:"default_template"`

	TradeLogDir string    `json:"trade_log_dir"`
	LogConfig   LogConfig `json:"log"`
}

// LogConfig defines logging-related configuration.
type LogConfig struct {
	Level      string `json:"level"`       // "debug", "info", "warn", "error"
	Output     string `json:"output"`      // "console", "file", "both"
	File       string `json:"file"`        // log file path
	MaxSize    int    `json:"max_size"`    // max size of a single log file (MB)
	MaxBackups int    `json:"max_backups"` // max number of rotated files to keep
	MaxAge     int    `json:"max_age"`     // max age of rotated files (days)
	Compress   bool   `json:"compress"`    // compress rotated files
}

// SignalAction is the direction of a trade signal.
type SignalAction string

const (
	ActionBuy  SignalAction = "buy"
	ActionSell SignalAction = "sell"
	ActionHold SignalAction = "hold"
)

// TradeSignal is one parsed model recommendation. Signals are ephemeral:
// they are executed or rejected within the cycle that produced them and only
// survive in the trade log.
type TradeSignal struct {
	Symbol      string       `json:"symbol"`
	Action      SignalAction `json:"action"`
	TargetPrice float64      `json:"target_price"`
	Confidence  int          `json:"confidence"` // 0-100
	Reason      string       `json:"reason"`
	StopLoss    float64      `json:"stop_loss,omitempty"`
}

func (s TradeSignal) String() string {
	return fmt.Sprintf("%s %s @ %.2f (confidence %d%%)", s.Action, s.Symbol, s.TargetPrice, s.Confidence)
}

// AccountState is a snapshot of the broker account used by the signal filter.
type AccountState struct {
	Status      string             `json:"status"`
	Equity      float64            `json:"equity"`
	Cash        float64            `json:"cash"`
	BuyingPower float64            `json:"buying_power"`
	Positions   map[string]float64 `json:"positions"` // symbol -> quantity
}

// Bar is a single OHLCV candle.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// MarketData maps symbols to their recent bars, oldest first.
type MarketData map[string][]Bar

// OrderType is the broker order type.
type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
	OrderStop   OrderType = "stop"
)

// OrderRequest is the wire contract sent to the broker collaborator.
type OrderRequest struct {
	Symbol      string       `json:"symbol"`
	Quantity    float64      `json:"quantity"`
	Side        SignalAction `json:"side"`
	Type        OrderType    `json:"order_type"`
	TimeInForce string       `json:"time_in_force"`
	LimitPrice  float64      `json:"limit_price,omitempty"`
	StopPrice   float64      `json:"stop_price,omitempty"`
}

// OrderResult is what the broker returns for a successfully placed order.
type OrderResult struct {
	OrderID   string  `json:"order_id"`
	FillPrice float64 `json:"fill_price,omitempty"`
	FillQty   float64 `json:"fill_qty,omitempty"`
	Status    string  `json:"status"`
}

// HealthStatus is the outcome of one collaborator probe.
type HealthStatus struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Detail    string    `json:"detail,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

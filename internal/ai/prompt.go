package ai

import (
	"fmt"
	"sort"
	"strings"

	"llm-trading-bot-go/internal/models"
)

const marketDataPlaceholder = "{market_data}"

// maxBarsPerSymbol bounds how many recent candles go into one prompt.
const maxBarsPerSymbol = 20

var builtinTemplates = map[string]string{
	"aggressive_day_trader": `You are an expert aggressive day trader specializing in high-frequency momentum plays.
Your goal is to identify short-term trading opportunities that can be captured within minutes to hours.

TRADING PHILOSOPHY:
- Focus on high-volatility moves with clear momentum
- Use technical analysis to identify entry/exit points
- Risk management: Maximum 2% per trade, stop losses mandatory
- Target 3:1 reward-to-risk ratio minimum
- Time frame: 5-15 minute charts, hold 3-60 minutes maximum

MARKET ANALYSIS:
{market_data}

TRADING RULES:
1. Look for strong volume surges with price momentum
2. Identify support/resistance levels and breakout patterns
3. Use RSI, MACD, and volume indicators for confirmation
4. Enter on pullbacks during strong trends
5. Exit quickly on profit targets or early warning signs

Please analyze the current market data and provide:
1. SHORT-TERM TRADING SIGNALS (next 5-30 minutes)
2. SPECIFIC ENTRY/EXIT PRICES for each symbol
3. RISK MANAGEMENT recommendations
4. CONFIDENCE LEVEL (0-100) for each signal

Format your response as:
SYMBOL: [SIGNAL] at $[PRICE] - Confidence: X% - Reason: [brief explanation] - Stop Loss: $[PRICE]`,

	"conservative_swing": `You are a conservative swing trader focusing on higher-probability setups.
Your approach emphasizes risk management and longer-term price swings.

TRADING PHILOSOPHY:
- Identify clear trend continuation patterns
- Wait for optimal risk-reward setups
- Hold positions 1-5 days during strong trends
- Risk management: Maximum 1% per trade
- Target 2:1 reward-to-risk ratio minimum

MARKET ANALYSIS:
{market_data}

Please analyze and provide swing trading opportunities.

Format your response as:
SYMBOL: [SIGNAL] at $[PRICE] - Confidence: X% - Reason: [brief explanation] - Stop Loss: $[PRICE]`,

	"momentum_scalper": `You are a momentum scalper seeking quick intraday moves.
Focus on rapid price movements with high volume confirmation.

MARKET ANALYSIS:
{market_data}

TRADING RULES:
- Enter on momentum bursts
- Exit within 5-15 minutes
- Risk 0.5% per trade maximum

Please provide scalping signals.

Format your response as:
SYMBOL: [SIGNAL] at $[PRICE] - Confidence: X% - Reason: [brief explanation] - Stop Loss: $[PRICE]`,
}

// PromptBuilder renders strategy templates into chat transcripts. Each
// template carries a {market_data} placeholder that is filled with a
// plain-text rendering of recent candles.
type PromptBuilder struct {
	defaultTemplate string
	templates       map[string]string
}

// NewPromptBuilder returns a builder seeded with the built-in strategy
// templates.
func NewPromptBuilder(defaultTemplate string) (*PromptBuilder, error) {
	if defaultTemplate == "" {
		defaultTemplate = "aggressive_day_trader"
	}
	templates := make(map[string]string, len(builtinTemplates))
	for name, tmpl := range builtinTemplates {
		templates[name] = tmpl
	}
	if _, ok := templates[defaultTemplate]; !ok {
		return nil, fmt.Errorf("ai: unknown default template %q", defaultTemplate)
	}
	return &PromptBuilder{defaultTemplate: defaultTemplate, templates: templates}, nil
}

// AddTemplate registers a custom template. The {market_data} placeholder is
// mandatory.
func (b *PromptBuilder) AddTemplate(name, tmpl string) error {
	if !strings.Contains(tmpl, marketDataPlaceholder) {
		return fmt.Errorf("ai: template %q has no %s placeholder", name, marketDataPlaceholder)
	}
	b.templates[name] = tmpl
	return nil
}

// Templates returns the registered template names, sorted.
func (b *PromptBuilder) Templates() []string {
	names := make([]string, 0, len(b.templates))
	for name := range b.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildMessages renders the named template (the default when empty) and the
// market data into a system+user transcript ready for the model client.
func (b *PromptBuilder) BuildMessages(templateRef string, data models.MarketData, extraContext string) ([]Message, error) {
	if templateRef == "" {
		templateRef = b.defaultTemplate
	}
	tmpl, ok := b.templates[templateRef]
	if !ok {
		return nil, fmt.Errorf("ai: unknown template %q (available: %s)", templateRef, strings.Join(b.Templates(), ", "))
	}

	formatted := FormatMarketData(data, maxBarsPerSymbol)
	system := strings.ReplaceAll(tmpl, marketDataPlaceholder, formatted)

	user := "Current market conditions:\n\n" + formatted
	if extraContext != "" {
		user += "\n\nAdditional context:\n" + extraContext
	}

	return []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, nil
}

// FormatMarketData renders recent candles as plain text, one section per
// symbol in sorted order so the output is deterministic.
func FormatMarketData(data models.MarketData, maxBars int) string {
	if len(data) == 0 {
		return "NO MARKET DATA AVAILABLE"
	}

	symbols := make([]string, 0, len(data))
	for symbol := range data {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	var sections []string
	for _, symbol := range symbols {
		bars := data[symbol]
		if len(bars) == 0 {
			continue
		}
		if len(bars) > maxBars {
			bars = bars[len(bars)-maxBars:]
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "SYMBOL: %s\n", symbol)
		sb.WriteString(currentPriceLine(bars))
		fmt.Fprintf(&sb, "\n\nRecent %d data points:\n", len(bars))
		sb.WriteString("Time      Open      High      Low       Close     Volume\n")
		for _, bar := range bars {
			fmt.Fprintf(&sb, "%s  %-8.2f  %-8.2f  %-8.2f  %-8.2f  %.0f\n",
				bar.Time.Format("15:04:05"), bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
		}
		sections = append(sections, strings.TrimRight(sb.String(), "\n"))
	}

	if len(sections) == 0 {
		return "NO MARKET DATA AVAILABLE"
	}
	return strings.Join(sections, "\n\n")
}

func currentPriceLine(bars []models.Bar) string {
	latest := bars[len(bars)-1].Close
	prev := latest
	if len(bars) > 1 {
		prev = bars[len(bars)-2].Close
	}
	if prev == 0 {
		return fmt.Sprintf("Current: $%.2f", latest)
	}
	changePct := (latest - prev) / prev * 100
	return fmt.Sprintf("Current: $%.2f (%+.2f%%)", latest, changePct)
}

package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"llm-trading-bot-go/internal/broker"
	"llm-trading-bot-go/internal/models"
	"llm-trading-bot-go/internal/strategy"
	"llm-trading-bot-go/internal/tradelog"
)

// signalLine matches one model recommendation of the form
// "SYMBOL: ACTION at $PRICE - Confidence: N% - Reason: text", with an
// optional trailing "- Stop Loss: $PRICE" segment.
var signalLine = regexp.MustCompile(
	`(?i)^\s*([A-Z0-9._\-]+)\s*:\s*\[?(BUY|SELL|HOLD)\]?\s+at\s+\$?([0-9]+(?:\.[0-9]+)?)\s*-\s*Confidence:\s*([0-9]+)\s*%\s*-\s*Reason:\s*(.+?)(?:\s*-\s*Stop Loss:\s*\$?([0-9]+(?:\.[0-9]+)?))?\s*$`)

// Rejection explains why a parsed signal was not executed.
type Rejection struct {
	Signal models.TradeSignal
	Reason string
}

// Execution is one signal that made it to the venue.
type Execution struct {
	Signal models.TradeSignal
	Order  models.OrderResult
}

// Pipeline turns raw model output into orders: parse, filter against the
// account snapshot and strategy parameters, execute survivors, and feed
// realized outcomes back to the performance tracker.
type Pipeline struct {
	broker   broker.Broker
	tracker  *strategy.Tracker
	tradeLog *tradelog.Logger
	logger   *zap.SugaredLogger
}

func New(b broker.Broker, tracker *strategy.Tracker, tradeLog *tradelog.Logger, logger *zap.SugaredLogger) *Pipeline {
	return &Pipeline{broker: b, tracker: tracker, tradeLog: tradeLog, logger: logger}
}

// Parse extracts trade signals from raw model output. Lines that do not match
// the signal grammar are skipped with a warning; a fully unparseable response
// yields an empty slice, not an error.
func (p *Pipeline) Parse(raw string) []models.TradeSignal {
	var signals []models.TradeSignal
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := signalLine.FindStringSubmatch(line)
		if m == nil {
			if looksLikeSignal(line) {
				p.logger.Warnf("Skipping malformed signal line: %q", line)
			}
			continue
		}

		price, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			p.logger.Warnf("Skipping signal with invalid price: %q", line)
			continue
		}
		confidence, err := strconv.Atoi(m[4])
		if err != nil || confidence < 0 || confidence > 100 {
			p.logger.Warnf("Skipping signal with invalid confidence: %q", line)
			continue
		}

		var stopLoss float64
		if m[6] != "" {
			stopLoss, err = strconv.ParseFloat(m[6], 64)
			if err != nil {
				p.logger.Warnf("Skipping signal with invalid stop loss: %q", line)
				continue
			}
		}

		signals = append(signals, models.TradeSignal{
			Symbol:      strings.ToUpper(m[1]),
			Action:      models.SignalAction(strings.ToLower(m[2])),
			TargetPrice: price,
			Confidence:  confidence,
			Reason:      m[5],
			StopLoss:    stopLoss,
		})
	}
	return signals
}

// looksLikeSignal guesses whether a non-matching line was an attempt at the
// signal format, so prose lines do not spam the log.
func looksLikeSignal(line string) bool {
	return strings.Contains(line, "Confidence:")
}

// Filter is a pure function: it splits signals into accepted and rejected
// against the account snapshot and the current strategy parameters, touching
// no external state.
func Filter(signals []models.TradeSignal, account models.AccountState, params strategy.Params) (accepted []models.TradeSignal, rejected []Rejection) {
	for _, sig := range signals {
		switch {
		case sig.Action == models.ActionHold:
			rejected = append(rejected, Rejection{sig, "hold signals are not executed"})

		case float64(sig.Confidence) < params.MinConfidence:
			rejected = append(rejected, Rejection{sig, fmt.Sprintf(
				"confidence %d%% below minimum %.0f%%", sig.Confidence, params.MinConfidence)})

		case sig.TargetPrice <= 0:
			rejected = append(rejected, Rejection{sig, "non-positive target price"})

		case sig.Action == models.ActionSell && account.Positions[sig.Symbol] <= 0:
			rejected = append(rejected, Rejection{sig, "no position to sell"})

		case sig.Action == models.ActionBuy && account.Equity*params.RiskPerTrade > account.Cash:
			rejected = append(rejected, Rejection{sig, fmt.Sprintf(
				"insufficient cash %.2f for risk allocation %.2f",
				account.Cash, account.Equity*params.RiskPerTrade)})

		default:
			accepted = append(accepted, sig)
		}
	}
	return accepted, rejected
}

// positionSize converts the risk allocation into an order quantity.
func positionSize(sig models.TradeSignal, account models.AccountState, params strategy.Params) float64 {
	if sig.Action == models.ActionSell {
		return account.Positions[sig.Symbol]
	}
	return account.Equity * params.RiskPerTrade / sig.TargetPrice
}

// Execute runs the filtered signals against the broker. Each signal is
// isolated: a failed order is logged and recorded, then execution moves on to
// the next signal.
func (p *Pipeline) Execute(ctx context.Context, versionID string, signals []models.TradeSignal, account models.AccountState, params strategy.Params) []Execution {
	accepted, rejected := Filter(signals, account, params)

	for _, r := range rejected {
		p.logger.Infof("Rejected signal %s: %s", r.Signal, r.Reason)
		p.recordEvent(tradelog.EventSignalRejected, versionID, r.Signal, map[string]any{
			"reason":    r.Reason,
			"stop_loss": r.Signal.StopLoss,
		})
	}

	var executions []Execution
	for _, sig := range accepted {
		p.recordEvent(tradelog.EventSignalGenerated, versionID, sig, map[string]any{
			"target_price": sig.TargetPrice,
			"confidence":   sig.Confidence,
			"reason":       sig.Reason,
			"stop_loss":    sig.StopLoss,
		})

		order, err := p.broker.PlaceOrder(ctx, models.OrderRequest{
			Symbol:   sig.Symbol,
			Quantity: positionSize(sig, account, params),
			Side:     sig.Action,
			Type:     models.OrderMarket,
		})
		if err != nil {
			p.logger.Errorf("Order failed for signal %s: %v", sig, err)
			p.recordEvent(tradelog.EventSignalRejected, versionID, sig, map[string]any{
				"reason":    fmt.Sprintf("order failed: %v", err),
				"stop_loss": sig.StopLoss,
			})
			continue
		}

		p.logger.Infof("Executed signal %s: order %s (%s)", sig, order.OrderID, order.Status)
		p.recordEvent(tradelog.EventSignalExecuted, versionID, sig, map[string]any{
			"order_id":   order.OrderID,
			"fill_price": order.FillPrice,
			"fill_qty":   order.FillQty,
			"status":     order.Status,
			"stop_loss":  sig.StopLoss,
		})
		executions = append(executions, Execution{Signal: sig, Order: order})
	}
	return executions
}

// ReportOutcome attributes one realized profit-or-loss result to the version
// whose signal produced it.
func (p *Pipeline) ReportOutcome(versionID, symbol string, pnl float64) error {
	if err := p.tracker.RecordTrade(versionID, pnl); err != nil {
		return err
	}
	p.recordEvent(tradelog.EventOrderUpdate, versionID, models.TradeSignal{Symbol: symbol}, map[string]any{
		"pnl": pnl,
	})
	return nil
}

func (p *Pipeline) recordEvent(eventType, versionID string, sig models.TradeSignal, payload map[string]any) {
	if p.tradeLog == nil {
		return
	}
	payload["action"] = string(sig.Action)
	if err := p.tradeLog.Record(tradelog.Event{
		Type:      eventType,
		VersionID: versionID,
		Symbol:    sig.Symbol,
		Payload:   payload,
	}); err != nil {
		p.logger.Warnf("Failed to record trade event %s: %v", eventType, err)
	}
}

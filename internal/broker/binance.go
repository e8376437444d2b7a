package broker

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2"
	"go.uber.org/zap"

	"llm-trading-bot-go/internal/models"
)

// quoteAsset is the asset all balances and equity are denominated in.
const quoteAsset = "USDT"

// BinanceBroker executes orders on the Binance spot market.
type BinanceBroker struct {
	client *binance.Client
	logger *zap.SugaredLogger
}

// NewBinanceBroker builds a spot broker. Keys may be empty for read-only use
// of public endpoints.
func NewBinanceBroker(apiKey, secretKey string, logger *zap.SugaredLogger) *BinanceBroker {
	return &BinanceBroker{
		client: binance.NewClient(apiKey, secretKey),
		logger: logger,
	}
}

// GetAccount returns a snapshot of the spot account. Equity counts only the
// quote asset balance; non-quote holdings appear as positions.
func (b *BinanceBroker) GetAccount(ctx context.Context) (models.AccountState, error) {
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return models.AccountState{}, fmt.Errorf("%w: fetching account: %v", ErrUnavailable, err)
	}

	state := models.AccountState{
		Status:    "ACTIVE",
		Positions: make(map[string]float64),
	}
	if !account.CanTrade {
		state.Status = "RESTRICTED"
	}

	for _, balance := range account.Balances {
		free, _ := strconv.ParseFloat(balance.Free, 64)
		locked, _ := strconv.ParseFloat(balance.Locked, 64)
		total := free + locked
		if total == 0 {
			continue
		}
		if balance.Asset == quoteAsset {
			state.Cash = free
			state.Equity += total
			state.BuyingPower = free
			continue
		}
		state.Positions[balance.Asset+quoteAsset] = total
	}

	return state, nil
}

// GetPositions returns non-quote holdings keyed by trading pair symbol.
func (b *BinanceBroker) GetPositions(ctx context.Context) (map[string]float64, error) {
	state, err := b.GetAccount(ctx)
	if err != nil {
		return nil, err
	}
	return state.Positions, nil
}

// PlaceOrder submits one order to the spot market.
func (b *BinanceBroker) PlaceOrder(ctx context.Context, req models.OrderRequest) (models.OrderResult, error) {
	side, err := orderSide(req.Side)
	if err != nil {
		return models.OrderResult{}, err
	}

	svc := b.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(side).
		Quantity(formatQty(req.Quantity))

	switch req.Type {
	case models.OrderMarket:
		svc.Type(binance.OrderTypeMarket)
	case models.OrderLimit:
		svc.Type(binance.OrderTypeLimit).
			TimeInForce(timeInForce(req.TimeInForce)).
			Price(formatQty(req.LimitPrice))
	case models.OrderStop:
		svc.Type(binance.OrderTypeStopLossLimit).
			TimeInForce(timeInForce(req.TimeInForce)).
			StopPrice(formatQty(req.StopPrice)).
			Price(formatQty(req.LimitPrice))
	default:
		return models.OrderResult{}, fmt.Errorf("%w: unsupported order type %q", ErrOrderRejected, req.Type)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		if isRejection(err) {
			return models.OrderResult{}, fmt.Errorf("%w: %v", ErrOrderRejected, err)
		}
		return models.OrderResult{}, fmt.Errorf("%w: placing order: %v", ErrUnavailable, err)
	}

	result := models.OrderResult{
		OrderID: strconv.FormatInt(resp.OrderID, 10),
		Status:  string(resp.Status),
	}
	if qty, err := strconv.ParseFloat(resp.ExecutedQuantity, 64); err == nil {
		result.FillQty = qty
	}
	result.FillPrice = averageFillPrice(resp.Fills)

	b.logger.Infof("Placed %s %s order for %s: id=%s status=%s",
		req.Side, req.Type, req.Symbol, result.OrderID, result.Status)
	return result, nil
}

// CancelOrder cancels an open order by its venue-assigned id.
func (b *BinanceBroker) CancelOrder(ctx context.Context, symbol, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("broker: invalid order id %q: %w", orderID, err)
	}
	if _, err := b.client.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx); err != nil {
		return fmt.Errorf("%w: cancelling order %s: %v", ErrUnavailable, orderID, err)
	}
	return nil
}

func orderSide(side models.SignalAction) (binance.SideType, error) {
	switch side {
	case models.ActionBuy:
		return binance.SideTypeBuy, nil
	case models.ActionSell:
		return binance.SideTypeSell, nil
	default:
		return "", fmt.Errorf("%w: side %q is not tradable", ErrOrderRejected, side)
	}
}

func timeInForce(tif string) binance.TimeInForceType {
	switch strings.ToUpper(tif) {
	case "IOC":
		return binance.TimeInForceTypeIOC
	case "FOK":
		return binance.TimeInForceTypeFOK
	default:
		return binance.TimeInForceTypeGTC
	}
}

func averageFillPrice(fills []*binance.Fill) float64 {
	var qty, notional float64
	for _, fill := range fills {
		p, _ := strconv.ParseFloat(fill.Price, 64)
		q, _ := strconv.ParseFloat(fill.Quantity, 64)
		qty += q
		notional += p * q
	}
	if qty == 0 {
		return 0
	}
	return notional / qty
}

func isRejection(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "insufficient") ||
		strings.Contains(msg, "MIN_NOTIONAL") ||
		strings.Contains(msg, "LOT_SIZE")
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

package broker

import (
	"context"
	"errors"

	"llm-trading-bot-go/internal/models"
)

var (
	// ErrOrderRejected marks an order the venue refused outright.
	ErrOrderRejected = errors.New("broker: order rejected")

	// ErrUnavailable marks a broker that cannot be reached right now.
	ErrUnavailable = errors.New("broker: unavailable")
)

// Broker is the execution venue collaborator. The pipeline filters signals
// against the account snapshot and places the surviving ones as orders.
type Broker interface {
	GetAccount(ctx context.Context) (models.AccountState, error)
	GetPositions(ctx context.Context) (map[string]float64, error)
	PlaceOrder(ctx context.Context, req models.OrderRequest) (models.OrderResult, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
}

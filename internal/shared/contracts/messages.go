package contracts

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Broker names shared by the API and the worker.
const (
	OrdersExchange   = "orders.exchange"
	OrdersRoutingKey = "orders.created"
	OrdersQueue      = "orders.queue"
	DeadLetterExch   = "orders.dlx"
	DeadLetterQueue  = "orders.dlq"
)

// Header and property names carried on order messages.
const (
	HeaderRetry         = "x-retry"
	HeaderCorrelationID = "X-Correlation-Id"
	ContentTypeJSON     = "application/json"
)

// OrderCreatedMessage is published to "orders.exchange" by the order API.
type OrderCreatedMessage struct {
	MessageID uuid.UUID   `json:"messageId"`
	OrderID   uuid.UUID   `json:"orderId"`
	Amount    json.Number `json:"amount"` // bare JSON number, not a quoted string
	CreatedAt time.Time   `json:"createdAt"`
}

// NewOrderCreatedMessage stamps a fresh message id and a UTC creation time.
func NewOrderCreatedMessage(orderID uuid.UUID, amount decimal.Decimal, now time.Time) OrderCreatedMessage {
	return OrderCreatedMessage{
		MessageID: uuid.New(),
		OrderID:   orderID,
		Amount:    json.Number(amount.String()),
		CreatedAt: now.UTC(),
	}
}

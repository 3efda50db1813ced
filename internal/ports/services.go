package ports

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends a message to an exchange under a routing key.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error
}

// Metrics receives pipeline counters; the exporter lives outside the core.
type Metrics interface {
	IncProcessed()
	IncFailed()
	IncRetried()
	IncMalformed()
	IncDuplicate()
}

// OrderIntake handles POST /orders: validate → build event → publish.
type OrderIntake interface {
	Submit(ctx context.Context, cmd SubmitOrderCommand) (OrderQueued, error)
}

type SubmitOrderCommand struct {
	OrderID string
	Amount  string // decimal literal as received
}

type OrderQueued struct {
	MessageID string
	OrderID   string
}

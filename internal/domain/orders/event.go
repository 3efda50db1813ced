package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderEvent is the decoded "order created" event. It is immutable once decoded.
type OrderEvent struct {
	MessageID     string // may be empty for legacy producers
	OrderID       uuid.UUID
	Amount        decimal.Decimal
	CreatedAt     time.Time // zero when the producer did not send it
	CorrelationID string    // may be empty
}

// IdempotencyKey returns the message id when present, otherwise the order id.
func (e OrderEvent) IdempotencyKey() string {
	if e.MessageID != "" {
		return e.MessageID
	}
	return e.OrderID.String()
}

// ProcessedOrder is the record left behind by a successful business effect.
type ProcessedOrder struct {
	MessageID     string
	OrderID       uuid.UUID
	Amount        decimal.Decimal
	CorrelationID string
	CreatedAt     *time.Time
	ProcessedAt   time.Time
}

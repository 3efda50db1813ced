package ports

import (
	"context"
	"errors"

	"git.platform.alem.school/amibragim/order-events/internal/domain/orders"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// OrderStore persists the outcome of the worker's business effect.
type OrderStore interface {
	// RecordProcessed stores the order; a second call for the same message is a no-op.
	RecordProcessed(ctx context.Context, order orders.ProcessedOrder) error
	GetByOrderID(ctx context.Context, orderID string) (*orders.ProcessedOrder, error)
}

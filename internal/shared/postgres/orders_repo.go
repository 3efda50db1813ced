package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"git.platform.alem.school/amibragim/order-events/internal/domain/orders"
	"git.platform.alem.school/amibragim/order-events/internal/ports"
)

// OrdersRepo stores processed orders in the processed_orders table.
type OrdersRepo struct {
	db DB
}

// NewOrdersRepo constructs a new OrdersRepo.
func NewOrdersRepo(db DB) *OrdersRepo {
	return &OrdersRepo{db: db}
}

var _ ports.OrderStore = (*OrdersRepo)(nil)

// RecordProcessed inserts the order once per message id; a repeat is a no-op.
func (r *OrdersRepo) RecordProcessed(ctx context.Context, order orders.ProcessedOrder) error {
	const query = `
		INSERT INTO processed_orders (message_id, order_id, amount, correlation_id, created_at, processed_at)
		VALUES ($1, $2::uuid, $3::numeric, $4, $5, $6)
		ON CONFLICT (message_id) DO NOTHING
	`

	_, err := r.db.Exec(ctx, query,
		order.MessageID,
		order.OrderID.String(),
		order.Amount.String(),
		nullIfEmptyText(order.CorrelationID),
		order.CreatedAt, // NULL when the producer did not send it
		order.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert processed order: %w", err)
	}
	return nil
}

// GetByOrderID returns the latest processed record for an order.
func (r *OrdersRepo) GetByOrderID(ctx context.Context, orderID string) (*orders.ProcessedOrder, error) {
	id, err := uuid.Parse(orderID)
	if err != nil {
		return nil, ports.ErrNotFound
	}

	const query = `
		SELECT message_id, order_id::text, amount::text, correlation_id, created_at, processed_at
		FROM processed_orders
		WHERE order_id = $1::uuid
		ORDER BY processed_at DESC
		LIMIT 1
	`

	var (
		out           orders.ProcessedOrder
		rawOrderID    string
		rawAmount     string
		correlationID *string
		createdAt     *time.Time
	)
	err = r.db.QueryRow(ctx, query, id.String()).Scan(
		&out.MessageID, &rawOrderID, &rawAmount, &correlationID, &createdAt, &out.ProcessedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select processed order: %w", err)
	}

	if out.OrderID, err = uuid.Parse(rawOrderID); err != nil {
		return nil, fmt.Errorf("scan order_id: %w", err)
	}
	if out.Amount, err = decimal.NewFromString(rawAmount); err != nil {
		return nil, fmt.Errorf("scan amount: %w", err)
	}
	if correlationID != nil {
		out.CorrelationID = *correlationID
	}
	out.CreatedAt = createdAt

	return &out, nil
}

func nullIfEmptyText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package orderapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"git.platform.alem.school/amibragim/order-events/internal/domain/orders"
	"git.platform.alem.school/amibragim/order-events/internal/ports"
	"git.platform.alem.school/amibragim/order-events/internal/shared/contracts"
	"git.platform.alem.school/amibragim/order-events/internal/shared/logger"
)

var (
	// ErrInvalidPayload is returned for a missing or unusable orderId or amount.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrQueueUnavailable is returned when the event could not be handed to the broker.
	ErrQueueUnavailable = errors.New("queue unavailable")
)

// Service implements ports.OrderIntake.
type Service struct {
	pub    ports.Publisher
	now    func() time.Time
	logger *logger.Logger
}

// Ensure Service implements the interface at compile time.
var _ ports.OrderIntake = (*Service)(nil)

// NewService creates an intake service publishing through pub.
func NewService(pub ports.Publisher, logger *logger.Logger) *Service {
	return &Service{pub: pub, now: time.Now, logger: logger}
}

// Submit validates the command, builds an order-created event and publishes it.
func (service *Service) Submit(ctx context.Context, cmd ports.SubmitOrderCommand) (ports.OrderQueued, error) {
	orderID, err := uuid.Parse(strings.TrimSpace(cmd.OrderID))
	if err != nil || orderID == uuid.Nil {
		return ports.OrderQueued{}, fmt.Errorf("%w: orderId must be a non-empty GUID", ErrInvalidPayload)
	}

	amount, err := orders.ParseAmount(strings.TrimSpace(cmd.Amount))
	if err != nil {
		return ports.OrderQueued{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	msg := contracts.NewOrderCreatedMessage(orderID, amount, service.now())
	body, err := json.Marshal(msg)
	if err != nil {
		return ports.OrderQueued{}, fmt.Errorf("encode order event: %w", err)
	}

	correlationID := logger.CorrelationIDFrom(ctx)
	publishing := amqp.Publishing{
		ContentType:   contracts.ContentTypeJSON,
		DeliveryMode:  amqp.Persistent,
		MessageId:     msg.MessageID.String(),
		CorrelationId: correlationID,
		Timestamp:     msg.CreatedAt,
		Body:          body,
	}
	if correlationID != "" {
		publishing.Headers = amqp.Table{contracts.HeaderCorrelationID: correlationID}
	}

	if err := service.pub.Publish(ctx, contracts.OrdersExchange, contracts.OrdersRoutingKey, publishing); err != nil {
		return ports.OrderQueued{}, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	service.logger.Info(ctx, "order_published", "Order event published", map[string]any{
		"order_id":   orderID.String(),
		"message_id": msg.MessageID.String(),
		"amount":     amount.String(),
	})

	return ports.OrderQueued{MessageID: msg.MessageID.String(), OrderID: orderID.String()}, nil
}

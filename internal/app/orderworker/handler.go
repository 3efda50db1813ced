package orderworker

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"

	"git.platform.alem.school/amibragim/order-events/internal/domain/orders"
	"git.platform.alem.school/amibragim/order-events/internal/ports"
	"git.platform.alem.school/amibragim/order-events/internal/shared/logger"
)

// Effect is the business work done once per distinct order event.
type Effect interface {
	Process(ctx context.Context, ev orders.OrderEvent) error
}

// Handler settles one delivery: decode, dedupe, apply the effect, then ack or escalate.
type Handler struct {
	guard     *IdempotencyGuard
	escalator *RetryEscalator
	effect    Effect
	metrics   ports.Metrics
	logger    *logger.Logger
}

// NewHandler creates a Handler.
func NewHandler(guard *IdempotencyGuard, escalator *RetryEscalator, effect Effect, metrics ports.Metrics, log *logger.Logger) *Handler {
	return &Handler{
		guard:     guard,
		escalator: escalator,
		effect:    effect,
		metrics:   metrics,
		logger:    log,
	}
}

// Handle settles d exactly once. pub shares d's channel and is used for retry copies.
func (h *Handler) Handle(ctx context.Context, d amqp.Delivery, pub ports.Publisher) {
	md := MetadataFromDelivery(d)

	ev, err := Decode(d.Body, md)
	if Classify(err) == OutcomeDrop {
		ctx = logger.WithCorrelationID(ctx, CorrelationIDFromMetadata(md))
		h.logger.Warn(ctx, "message_malformed", "Dropping undecodable message", map[string]any{
			"delivery_tag": d.DeliveryTag,
			"message_id":   d.MessageId,
			"error":        err.Error(),
		})
		h.ack(ctx, d)
		h.metrics.IncMalformed()
		return
	}
	ctx = logger.WithCorrelationID(ctx, ev.CorrelationID)

	key := ev.IdempotencyKey()
	if !h.guard.TryMark(key) {
		h.logger.Debug(ctx, "message_duplicate", "Duplicate message; acknowledging without processing", map[string]any{
			"idempotency_key": key,
		})
		h.ack(ctx, d)
		h.metrics.IncDuplicate()
		return
	}

	if err := h.effect.Process(ctx, ev); err != nil {
		// release the key so the re-published copy is processed
		h.guard.Forget(key)
		h.escalator.Escalate(ctx, d, pub, err)
		return
	}

	h.ack(ctx, d)
	h.metrics.IncProcessed()
}

func (h *Handler) ack(ctx context.Context, d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		h.logger.Error(ctx, "ack_failed", "Failed to acknowledge delivery", err)
	}
}

package orderworker

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"git.platform.alem.school/amibragim/order-events/internal/ports"
	"git.platform.alem.school/amibragim/order-events/internal/shared/contracts"
	"git.platform.alem.school/amibragim/order-events/internal/shared/logger"
)

// DefaultMaxRetries is how many times a failing message is re-published before it is dead-lettered.
const DefaultMaxRetries = 3

// DecodeRetryCount reads an x-retry header value. Any integer width, a decimal string
// or byte string, and a float (truncated) are understood; anything else, including a
// negative value, counts as 0.
func DecodeRetryCount(v any) int {
	var n int64
	switch t := v.(type) {
	case nil:
		return 0
	case int:
		n = int64(t)
	case int8:
		n = int64(t)
	case int16:
		n = int64(t)
	case int32:
		n = int64(t)
	case int64:
		n = t
	case uint:
		n = clampUint(uint64(t))
	case uint8:
		n = int64(t)
	case uint16:
		n = int64(t)
	case uint32:
		n = int64(t)
	case uint64:
		n = clampUint(t)
	case float32:
		n = truncate(float64(t))
	case float64:
		n = truncate(t)
	case string:
		n = parseCount(t)
	case []byte:
		n = parseCount(string(t))
	default:
		return 0
	}

	if n < 0 {
		return 0
	}
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(n)
}

func clampUint(u uint64) int64 {
	if u > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(u)
}

func truncate(f float64) int64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int64(f)
}

func parseCount(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// RetryCount returns the decoded x-retry header of a delivery.
func RetryCount(headers amqp.Table) int {
	return DecodeRetryCount(headers[contracts.HeaderRetry])
}

// Escalation is what the escalator did with a failed delivery.
type Escalation int

const (
	EscalationRetried      Escalation = iota // copy re-published, original acked
	EscalationDeadLettered                   // rejected to the dead-letter exchange
	EscalationRequeued                       // re-publish failed, original nacked back to the queue
)

// RetryEscalator decides between another attempt and the dead-letter queue.
type RetryEscalator struct {
	maxRetries int
	metrics    ports.Metrics
	logger     *logger.Logger
}

// NewRetryEscalator builds an escalator. A negative maxRetries falls back to the default.
func NewRetryEscalator(maxRetries int, metrics ports.Metrics, log *logger.Logger) *RetryEscalator {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	return &RetryEscalator{maxRetries: maxRetries, metrics: metrics, logger: log}
}

// Escalate settles a delivery whose business effect failed with cause.
// A delivery whose x-retry already equals maxRetries is rejected without requeue.
// Otherwise a copy with the counter bumped is published and the original acked.
// With maxRetries = 3 a message that always fails is re-published with x-retry
// 1, 2 and 3 and then dead-lettered: four business attempts in total, and a
// maxRetries of 0 dead-letters on the first failure.
func (r *RetryEscalator) Escalate(ctx context.Context, d amqp.Delivery, pub ports.Publisher, cause error) Escalation {
	current := RetryCount(d.Headers)

	if current >= r.maxRetries {
		r.logger.Error(ctx, "message_dead_lettered", "Retries exhausted; rejecting to dead-letter exchange",
			fmt.Errorf("%w after %d retries: %v", ErrRetryExhausted, current, cause))
		if err := d.Reject(false); err != nil {
			r.logger.Error(ctx, "reject_failed", "Failed to reject delivery", err)
		}
		r.metrics.IncFailed()
		return EscalationDeadLettered
	}

	next := current + 1
	msg := retryCopy(d, next)

	if err := pub.Publish(ctx, contracts.OrdersExchange, contracts.OrdersRoutingKey, msg); err != nil {
		r.logger.Error(ctx, "retry_publish_failed", "Failed to re-publish for retry; requeuing original", err)
		if err := d.Nack(false, true); err != nil {
			r.logger.Error(ctx, "nack_failed", "Failed to nack delivery", err)
		}
		return EscalationRequeued
	}

	if err := d.Ack(false); err != nil {
		r.logger.Error(ctx, "ack_failed", "Failed to ack original after retry publish", err)
	}
	r.metrics.IncRetried()

	r.logger.Warn(ctx, "message_retried", "Processing failed; re-published for another attempt", map[string]any{
		"retry":       next,
		"max_retries": r.maxRetries,
		"error":       cause.Error(),
	})
	return EscalationRetried
}

// retryCopy keeps the body, ids and headers of d and sets x-retry to next.
func retryCopy(d amqp.Delivery, next int) amqp.Publishing {
	headers := make(amqp.Table, len(d.Headers)+1)
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[contracts.HeaderRetry] = int32(next)

	contentType := d.ContentType
	if contentType == "" {
		contentType = contracts.ContentTypeJSON
	}

	return amqp.Publishing{
		Headers:       headers,
		ContentType:   contentType,
		DeliveryMode:  amqp.Persistent,
		MessageId:     d.MessageId,
		CorrelationId: d.CorrelationId,
		Timestamp:     time.Now().UTC(),
		Body:          d.Body,
	}
}

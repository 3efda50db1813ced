package orderworker

import (
	"context"
	"time"

	"git.platform.alem.school/amibragim/order-events/internal/domain/orders"
	"git.platform.alem.school/amibragim/order-events/internal/ports"
	"git.platform.alem.school/amibragim/order-events/internal/shared/logger"
)

// Sleeper simulates work; tests replace it with a no-op.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep waits for d or until ctx is done.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Processor is the business effect applied to each new order event.
type Processor struct {
	work   time.Duration
	sleep  Sleeper
	store  ports.OrderStore // optional
	now    func() time.Time
	logger *logger.Logger
}

// NewProcessor creates a Processor. store may be nil when no database is configured.
func NewProcessor(work time.Duration, store ports.OrderStore, log *logger.Logger) *Processor {
	return &Processor{
		work:   work,
		sleep:  ContextSleep,
		store:  store,
		now:    time.Now,
		logger: log,
	}
}

// WithSleeper replaces the work simulation.
func (p *Processor) WithSleeper(s Sleeper) *Processor {
	p.sleep = s
	return p
}

// Process simulates the work and records the order when a store is configured.
func (p *Processor) Process(ctx context.Context, ev orders.OrderEvent) error {
	if err := p.sleep(ctx, p.work); err != nil {
		return err
	}

	if p.store != nil {
		rec := orders.ProcessedOrder{
			MessageID:     ev.IdempotencyKey(),
			OrderID:       ev.OrderID,
			Amount:        ev.Amount,
			CorrelationID: ev.CorrelationID,
			ProcessedAt:   p.now().UTC(),
		}
		if !ev.CreatedAt.IsZero() {
			createdAt := ev.CreatedAt
			rec.CreatedAt = &createdAt
		}
		if err := p.store.RecordProcessed(ctx, rec); err != nil {
			return err
		}
	}

	p.logger.Info(ctx, "order_processed", "Order processed", map[string]any{
		"order_id": ev.OrderID.String(),
		"amount":   ev.Amount.String(),
	})
	return nil
}

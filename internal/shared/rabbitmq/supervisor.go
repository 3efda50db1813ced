package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"git.platform.alem.school/amibragim/order-events/internal/ports"
	"git.platform.alem.school/amibragim/order-events/internal/shared/contracts"
	"git.platform.alem.school/amibragim/order-events/internal/shared/logger"
)

// State is the supervisor's position in its connect/consume cycle.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateTopologyReady
	StateConsuming
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateTopologyReady:
		return "topology_ready"
	case StateConsuming:
		return "consuming"
	default:
		return "disconnected"
	}
}

// ErrBrokerConnection wraps every failure that ends a supervisor session.
var ErrBrokerConnection = errors.New("broker connection failure")

// HandlerFunc handles one delivery. The delivery's Acknowledger and pub share the
// session's serialized channel; the handler must settle the delivery exactly once.
type HandlerFunc func(ctx context.Context, d amqp.Delivery, pub ports.Publisher)

// SupervisorConfig configures a Supervisor.
type SupervisorConfig struct {
	URL            string
	Prefetch       int
	ReconnectDelay time.Duration
	ConsumerTag    string
	Dial           Dialer
}

// Supervisor owns the worker's connection and channel: connect, declare topology,
// consume, and after any failure wait a fixed delay and start over.
type Supervisor struct {
	cfg    SupervisorConfig
	handle HandlerFunc
	logger *logger.Logger
	state  atomic.Int32
}

// NewSupervisor builds a Supervisor; zero config values fall back to the defaults.
func NewSupervisor(cfg SupervisorConfig, handle HandlerFunc, log *logger.Logger) *Supervisor {
	if cfg.Dial == nil {
		cfg.Dial = DialAMQP
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 10
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	return &Supervisor{cfg: cfg, handle: handle, logger: log}
}

// State reports the current state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
}

// Run loops until ctx is cancelled. There is no cap on reconnect attempts.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		err := s.session(ctx)
		s.setState(StateDisconnected)

		if ctx.Err() != nil {
			s.logger.Info(ctx, "supervisor_stopped", "Consumer supervisor stopped", nil)
			return
		}

		s.logger.Error(ctx, "rabbitmq_session_failed",
			fmt.Sprintf("Broker session ended; reconnecting in %s", s.cfg.ReconnectDelay), err)

		if !sleepWithContext(ctx, s.cfg.ReconnectDelay) {
			return
		}
	}
}

// session runs one connection lifetime and returns why it ended.
func (s *Supervisor) session(ctx context.Context) error {
	s.setState(StateConnecting)

	conn, err := s.cfg.Dial(s.cfg.URL)
	if err != nil {
		return fmt.Errorf("%w: dial: %v", ErrBrokerConnection, err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("%w: open channel: %v", ErrBrokerConnection, err)
	}
	defer ch.Close()

	if err := DeclareTopology(ch, s.cfg.Prefetch); err != nil {
		return fmt.Errorf("%w: %v", ErrBrokerConnection, err)
	}
	s.setState(StateTopologyReady)

	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	deliveries, err := ch.Consume(contracts.OrdersQueue, s.cfg.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%w: consume: %v", ErrBrokerConnection, err)
	}
	s.setState(StateConsuming)

	s.logger.Info(ctx, "consumer_started", "Consuming order events", map[string]any{
		"queue":    contracts.OrdersQueue,
		"prefetch": s.cfg.Prefetch,
	})

	serial := NewSerializedChannel(ch)

	// handlers finish their current delivery even when shutdown cancels ctx
	handlerCtx := context.WithoutCancel(ctx)
	sem := make(chan struct{}, s.cfg.Prefetch)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-connClosed:
			return fmt.Errorf("%w: %v", ErrBrokerConnection, closeReason("connection", amqpErr))
		case amqpErr := <-chClosed:
			return fmt.Errorf("%w: %v", ErrBrokerConnection, closeReason("channel", amqpErr))
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("%w: deliveries channel closed", ErrBrokerConnection)
			}

			// acquire
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				// unacked; the broker requeues it when the channel closes
				return ctx.Err()
			}

			d.Acknowledger = serial
			wg.Add(1)
			go func(d amqp.Delivery) {
				defer wg.Done()
				defer func() { <-sem }() // release
				s.dispatch(handlerCtx, d, serial)
			}(d)
		}
	}
}

// dispatch runs the handler and dead-letters the delivery if it panics before
// settling it. A delivery already settled is left alone; a second settle on the
// same tag would close the channel.
func (s *Supervisor) dispatch(ctx context.Context, d amqp.Delivery, pub ports.Publisher) {
	tracker := &settlementTracker{Acknowledger: d.Acknowledger}
	d.Acknowledger = tracker

	defer func() {
		if r := recover(); r != nil {
			if tracker.Settled() {
				s.logger.Error(ctx, "handler_panicked", "Delivery handler panicked after settling", fmt.Errorf("%v", r))
				return
			}
			s.logger.Error(ctx, "handler_panicked", "Delivery handler panicked; rejecting", fmt.Errorf("%v", r))
			_ = tracker.Reject(d.DeliveryTag, false)
		}
	}()
	s.handle(ctx, d, pub)
}

// settlementTracker remembers whether ack, nack or reject was issued for a delivery.
type settlementTracker struct {
	amqp.Acknowledger
	settled atomic.Bool
}

func (t *settlementTracker) Ack(tag uint64, multiple bool) error {
	t.settled.Store(true)
	return t.Acknowledger.Ack(tag, multiple)
}

func (t *settlementTracker) Nack(tag uint64, multiple, requeue bool) error {
	t.settled.Store(true)
	return t.Acknowledger.Nack(tag, multiple, requeue)
}

func (t *settlementTracker) Reject(tag uint64, requeue bool) error {
	t.settled.Store(true)
	return t.Acknowledger.Reject(tag, requeue)
}

// Settled reports whether the delivery was acked, nacked or rejected.
func (t *settlementTracker) Settled() bool {
	return t.settled.Load()
}

// sleepWithContext sleeps for the given duration or returns false early if ctx is done.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

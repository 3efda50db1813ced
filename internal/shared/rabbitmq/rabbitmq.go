package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"git.platform.alem.school/amibragim/order-events/internal/shared/logger"
)

// ErrNotConnected is returned by Publish while the client is between connections.
var ErrNotConnected = errors.New("rabbitmq: connection is not open")

// Client is a resilient publishing connector with auto-reconnect and exchange setup.
// The order API uses it; the worker owns its connection through Supervisor instead.
type Client struct {
	url    string
	dial   Dialer
	logger *logger.Logger
	logCtx context.Context // survives the caller's cancellation across reconnects

	mu      sync.RWMutex
	conn    Connection
	pubChan *SerializedChannel
	rawChan Channel

	closed    chan struct{}
	closeOnce sync.Once
	reconnect chan struct{}

	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// Connect establishes a connection and starts a background watcher that reconnects on failures.
func Connect(ctx context.Context, url string, dial Dialer, log *logger.Logger) (*Client, error) {
	if dial == nil {
		dial = DialAMQP
	}

	client := &Client{
		url:         url,
		dial:        dial,
		logger:      log,
		logCtx:      context.WithoutCancel(ctx),
		closed:      make(chan struct{}),
		reconnect:   make(chan struct{}, 1),
		baseBackoff: time.Second,
		maxBackoff:  30 * time.Second,
	}

	// initial connect (single attempt; further retries happen in the watcher)
	if err := client.connectOnce(ctx); err != nil {
		return nil, err
	}

	go client.watch()

	return client, nil
}

// Publish sends a persistent message to the given exchange and routing key.
func (client *Client) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	client.mu.RLock()
	conn := client.conn
	raw := client.rawChan
	ch := client.pubChan
	client.mu.RUnlock()

	// quick fail if no channel
	if conn == nil || conn.IsClosed() || raw == nil || raw.IsClosed() {
		return ErrNotConnected
	}

	if msg.DeliveryMode == 0 {
		msg.DeliveryMode = amqp.Persistent
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return ch.Publish(pubCtx, exchange, routingKey, msg)
}

// Close stops the watcher and closes AMQP resources.
func (client *Client) Close() {
	client.closeOnce.Do(func() { close(client.closed) })

	client.mu.Lock()
	if client.rawChan != nil {
		_ = client.rawChan.Close()
		client.rawChan = nil
		client.pubChan = nil
	}
	if client.conn != nil {
		_ = client.conn.Close()
		client.conn = nil
	}
	client.mu.Unlock()
}

// --- internals ---

// connectOnce tries to connect and declare the orders exchange once.
func (client *Client) connectOnce(ctx context.Context) error {
	start := time.Now().UTC()

	conn, err := client.dial(client.url)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}

	if err := DeclareOrdersExchange(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	client.mu.Lock()
	if client.rawChan != nil {
		_ = client.rawChan.Close()
	}
	if client.conn != nil {
		_ = client.conn.Close()
	}
	client.conn = conn
	client.rawChan = ch
	client.pubChan = NewSerializedChannel(ch)
	client.mu.Unlock()

	// either the connection or the publisher channel closing triggers a reconnect
	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		select {
		case <-client.closed:
			return
		case <-connClosed:
		case <-chClosed:
		}

		select {
		case client.reconnect <- struct{}{}:
		default:
			// already enqueued
		}
	}()

	client.logger.Info(ctx, "rabbitmq_connected", "Connected to RabbitMQ", map[string]any{
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return nil
}

// watch runs in background and reconnects with exponential backoff.
func (client *Client) watch() {
	backoff := client.baseBackoff
	for {
		select {
		case <-client.closed:
			return
		case <-client.reconnect:
		}

		for {
			select {
			case <-client.closed:
				return
			default:
			}

			ctx, cancel := context.WithTimeout(client.logCtx, 30*time.Second)
			err := client.connectOnce(ctx)
			cancel()

			if err == nil {
				backoff = client.baseBackoff
				client.logger.Info(client.logCtx, "rabbitmq_reconnected", "Reconnected to RabbitMQ", nil)
				break
			}

			client.logger.Error(client.logCtx, "rabbitmq_reconnect_failed", "RabbitMQ reconnect failed", err)

			timer := time.NewTimer(backoff)
			select {
			case <-client.closed:
				timer.Stop()
				return
			case <-timer.C:
			}
			backoff = nextBackoff(backoff, client.maxBackoff)
		}
	}
}

// nextBackoff doubles curr, capped at max.
func nextBackoff(curr, max time.Duration) time.Duration {
	n := curr * 2
	if n > max {
		return max
	}
	return n
}

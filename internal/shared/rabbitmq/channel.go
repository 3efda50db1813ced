package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// TopologyChannel is the subset of *amqp.Channel used to declare exchanges, queues and QoS.
type TopologyChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
}

// Channel is the subset of *amqp.Channel the client and supervisor depend on.
type Channel interface {
	TopologyChannel
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Ack(tag uint64, multiple bool) error
	Nack(tag uint64, multiple, requeue bool) error
	Reject(tag uint64, requeue bool) error
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	IsClosed() bool
	Close() error
}

// Connection is the subset of *amqp.Connection the client and supervisor depend on.
type Connection interface {
	Channel() (Channel, error)
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	IsClosed() bool
	Close() error
}

// Dialer opens a broker connection.
type Dialer func(url string) (Connection, error)

// amqpConnection adapts *amqp.Connection to Connection.
type amqpConnection struct {
	*amqp.Connection
}

func (c amqpConnection) Channel() (Channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// DialAMQP is the production Dialer: heartbeat and TCP dial timeout set explicitly.
func DialAMQP(url string) (Connection, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(10 * time.Second),
	})
	if err != nil {
		return nil, err
	}
	return amqpConnection{Connection: conn}, nil
}

// SerializedChannel funnels ack, reject, nack and publish through one mutex so that
// concurrent delivery handlers never interleave frames on the same channel.
// It satisfies both amqp.Acknowledger and ports.Publisher.
type SerializedChannel struct {
	mu sync.Mutex
	ch Channel
}

func NewSerializedChannel(ch Channel) *SerializedChannel {
	return &SerializedChannel{ch: ch}
}

func (s *SerializedChannel) Ack(tag uint64, multiple bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch.Ack(tag, multiple)
}

func (s *SerializedChannel) Nack(tag uint64, multiple, requeue bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch.Nack(tag, multiple, requeue)
}

func (s *SerializedChannel) Reject(tag uint64, requeue bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch.Reject(tag, requeue)
}

// Publish sends msg without the mandatory/immediate flags.
func (s *SerializedChannel) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg)
}

// closeReason turns a NotifyClose value into an error; a nil value means a graceful close.
func closeReason(what string, amqpErr *amqp.Error) error {
	if amqpErr == nil {
		return errors.New(what + " closed")
	}
	return errors.New(what + " closed: " + amqpErr.Error())
}

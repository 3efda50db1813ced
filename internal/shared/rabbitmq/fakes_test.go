package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// fakeBroker keeps declared topology across channels so redeclaration can be checked.
type fakeBroker struct {
	mu        sync.Mutex
	exchanges map[string]string
	queues    map[string]*fakeQueue
	bindings  map[string]bool
}

type fakeQueue struct {
	args     amqp.Table
	messages int
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		exchanges: map[string]string{},
		queues:    map[string]*fakeQueue{},
		bindings:  map[string]bool{},
	}
}

type publishedMsg struct {
	Exchange   string
	RoutingKey string
	Msg        amqp.Publishing
}

type fakeChannel struct {
	broker *fakeBroker

	mu         sync.Mutex
	calls      []string
	acks       []uint64
	nacks      []uint64
	rejects    []uint64
	published  []publishedMsg
	notify     []chan *amqp.Error
	closed     bool
	failOn     string
	deliveries chan amqp.Delivery
	consumeTag string
}

func newFakeChannel(broker *fakeBroker) *fakeChannel {
	return &fakeChannel{broker: broker, deliveries: make(chan amqp.Delivery, 16)}
}

func (c *fakeChannel) record(call string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	if c.failOn != "" && c.failOn == call {
		return fmt.Errorf("fake failure on %s", call)
	}
	return nil
}

func (c *fakeChannel) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	if err := c.record(fmt.Sprintf("exchange:%s:%s:durable=%t", name, kind, durable)); err != nil {
		return err
	}
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	if existing, ok := c.broker.exchanges[name]; ok && existing != kind {
		return errors.New("PRECONDITION_FAILED - inequivalent arg 'type'")
	}
	c.broker.exchanges[name] = kind
	return nil
}

func (c *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	if err := c.record(fmt.Sprintf("queue:%s:durable=%t", name, durable)); err != nil {
		return amqp.Queue{}, err
	}
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	if q, ok := c.broker.queues[name]; ok {
		if !reflect.DeepEqual(q.args, args) {
			return amqp.Queue{}, errors.New("PRECONDITION_FAILED - inequivalent arg")
		}
		return amqp.Queue{Name: name, Messages: q.messages}, nil
	}
	c.broker.queues[name] = &fakeQueue{args: args}
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	call := fmt.Sprintf("bind:%s:%s:%s", name, exchange, key)
	if err := c.record(call); err != nil {
		return err
	}
	c.broker.mu.Lock()
	c.broker.bindings[call] = true
	c.broker.mu.Unlock()
	return nil
}

func (c *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	return c.record(fmt.Sprintf("qos:%d", prefetchCount))
}

func (c *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	if err := c.record("consume:" + queue); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.consumeTag = consumer
	c.mu.Unlock()
	return c.deliveries, nil
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if err := c.record("publish:" + exchange + ":" + key); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, publishedMsg{Exchange: exchange, RoutingKey: key, Msg: msg})
	return nil
}

func (c *fakeChannel) Published() []publishedMsg {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]publishedMsg(nil), c.published...)
}

func (c *fakeChannel) Ack(tag uint64, multiple bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acks = append(c.acks, tag)
	return nil
}

func (c *fakeChannel) Acks() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint64(nil), c.acks...)
}

func (c *fakeChannel) Nack(tag uint64, multiple, requeue bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nacks = append(c.nacks, tag)
	return nil
}

func (c *fakeChannel) Reject(tag uint64, requeue bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejects = append(c.rejects, tag)
	return nil
}

func (c *fakeChannel) Rejects() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint64(nil), c.rejects...)
}

func (c *fakeChannel) NotifyClose(ch chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = append(c.notify, ch)
	return ch
}

func (c *fakeChannel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, n := range c.notify {
		close(n)
	}
	c.notify = nil
	return nil
}

// breakWith simulates a server-side channel close.
func (c *fakeChannel) breakWith(err *amqp.Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.notify {
		n <- err
		close(n)
	}
	c.notify = nil
	c.closed = true
}

type fakeConnection struct {
	ch         *fakeChannel
	channelErr error

	mu     sync.Mutex
	notify []chan *amqp.Error
	closed bool
}

func (c *fakeConnection) Channel() (Channel, error) {
	if c.channelErr != nil {
		return nil, c.channelErr
	}
	return c.ch, nil
}

func (c *fakeConnection) NotifyClose(ch chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = append(c.notify, ch)
	return ch
}

func (c *fakeConnection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, n := range c.notify {
		close(n)
	}
	c.notify = nil
	return nil
}

// drop simulates a lost TCP connection.
func (c *fakeConnection) drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.notify {
		n <- &amqp.Error{Code: amqp.ConnectionForced, Reason: "connection reset"}
		close(n)
	}
	c.notify = nil
	c.closed = true
}

// scriptedDialer hands out connections in order; a nil entry means "fail this dial".
type scriptedDialer struct {
	broker *fakeBroker

	mu    sync.Mutex
	fails int
	conns []*fakeConnection
	dials int
}

func (d *scriptedDialer) Dial(url string) (Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.fails > 0 {
		d.fails--
		return nil, errors.New("dial tcp: connection refused")
	}
	conn := &fakeConnection{ch: newFakeChannel(d.broker)}
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *scriptedDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *scriptedDialer) Last() *fakeConnection {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

package orderworker

import (
	"context"
	"errors"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// settlement records what happened to one delivery.
type settlement struct {
	acks    int
	nacks   int
	rejects int
	requeue bool
}

func (s settlement) total() int { return s.acks + s.nacks + s.rejects }

type fakeAcknowledger struct {
	mu  sync.Mutex
	got map[uint64]*settlement
}

func newFakeAcknowledger() *fakeAcknowledger {
	return &fakeAcknowledger{got: map[uint64]*settlement{}}
}

func (a *fakeAcknowledger) entry(tag uint64) *settlement {
	s, ok := a.got[tag]
	if !ok {
		s = &settlement{}
		a.got[tag] = s
	}
	return s
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entry(tag).acks++
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.entry(tag)
	s.nacks++
	s.requeue = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.entry(tag)
	s.rejects++
	s.requeue = requeue
	return nil
}

func (a *fakeAcknowledger) Of(tag uint64) settlement {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.got[tag]; ok {
		return *s
	}
	return settlement{}
}

type published struct {
	Exchange   string
	RoutingKey string
	Msg        amqp.Publishing
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *fakePublisher) Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{Exchange: exchange, RoutingKey: key, Msg: msg})
	return nil
}

func (p *fakePublisher) Sent() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.sent...)
}

type counts struct {
	processed, failed, retried, malformed, duplicates int
}

type fakeMetrics struct {
	mu sync.Mutex
	c  counts
}

func (m *fakeMetrics) IncProcessed() { m.mu.Lock(); m.c.processed++; m.mu.Unlock() }
func (m *fakeMetrics) IncFailed()    { m.mu.Lock(); m.c.failed++; m.mu.Unlock() }
func (m *fakeMetrics) IncRetried()   { m.mu.Lock(); m.c.retried++; m.mu.Unlock() }
func (m *fakeMetrics) IncMalformed() { m.mu.Lock(); m.c.malformed++; m.mu.Unlock() }
func (m *fakeMetrics) IncDuplicate() { m.mu.Lock(); m.c.duplicates++; m.mu.Unlock() }

func (m *fakeMetrics) snapshot() counts {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c
}

var errTransient = errors.New("downstream unavailable")

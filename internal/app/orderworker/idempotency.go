package orderworker

import (
	"container/list"
	"sync"
	"time"
)

const (
	DefaultIdempotencyTTL      = 10 * time.Minute
	DefaultIdempotencyCapacity = 10000
)

type markEntry struct {
	key    string
	expiry time.Time
}

// IdempotencyGuard remembers recently handled keys in memory. Entries live for ttl,
// and once capacity is reached the oldest entry is evicted to make room.
type IdempotencyGuard struct {
	ttl      time.Duration
	capacity int
	now      func() time.Time

	mu    sync.Mutex
	order *list.List // front is oldest
	index map[string]*list.Element
}

// NewIdempotencyGuard builds a guard; non-positive values fall back to the defaults.
func NewIdempotencyGuard(ttl time.Duration, capacity int) *IdempotencyGuard {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	if capacity <= 0 {
		capacity = DefaultIdempotencyCapacity
	}
	return &IdempotencyGuard{
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
		order:    list.New(),
		index:    make(map[string]*list.Element, capacity),
	}
}

// WithClock replaces the time source.
func (g *IdempotencyGuard) WithClock(now func() time.Time) *IdempotencyGuard {
	g.now = now
	return g
}

// TryMark records key and reports true if it was not already live.
// Of several concurrent calls with the same key exactly one returns true.
func (g *IdempotencyGuard) TryMark(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.expire(now)

	if el, ok := g.index[key]; ok {
		if now.Before(el.Value.(*markEntry).expiry) {
			return false
		}
		g.remove(el)
	}

	for g.order.Len() >= g.capacity {
		g.remove(g.order.Front())
	}

	g.index[key] = g.order.PushBack(&markEntry{key: key, expiry: now.Add(g.ttl)})
	return true
}

// Forget removes key so a later attempt is not treated as a duplicate.
func (g *IdempotencyGuard) Forget(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if el, ok := g.index[key]; ok {
		g.remove(el)
	}
}

// Len returns the number of tracked keys, expired ones included until they are swept.
func (g *IdempotencyGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.order.Len()
}

// expire drops the expired prefix; entries are in insertion order and share one ttl.
func (g *IdempotencyGuard) expire(now time.Time) {
	for el := g.order.Front(); el != nil; el = g.order.Front() {
		if now.Before(el.Value.(*markEntry).expiry) {
			return
		}
		g.remove(el)
	}
}

func (g *IdempotencyGuard) remove(el *list.Element) {
	entry := g.order.Remove(el).(*markEntry)
	delete(g.index, entry.key)
}

package orderworker

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestGuard(ttl time.Duration, capacity int) (*IdempotencyGuard, *manualClock) {
	clock := &manualClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewIdempotencyGuard(ttl, capacity).WithClock(clock.Now), clock
}

func TestIdempotencyGuard_SecondMarkIsDuplicate(t *testing.T) {
	g, _ := newTestGuard(time.Minute, 10)

	assert.True(t, g.TryMark("a"))
	assert.False(t, g.TryMark("a"))
	assert.True(t, g.TryMark("b"))
}

func TestIdempotencyGuard_ExpiresAfterTTL(t *testing.T) {
	g, clock := newTestGuard(time.Minute, 10)

	assert.True(t, g.TryMark("a"))
	clock.Advance(59 * time.Second)
	assert.False(t, g.TryMark("a"))

	clock.Advance(time.Second)
	assert.True(t, g.TryMark("a"))
}

func TestIdempotencyGuard_ExpiredPrefixIsSwept(t *testing.T) {
	g, clock := newTestGuard(time.Minute, 10)

	g.TryMark("a")
	g.TryMark("b")
	clock.Advance(2 * time.Minute)
	g.TryMark("c")

	assert.Equal(t, 1, g.Len())
}

func TestIdempotencyGuard_EvictsOldestAtCapacity(t *testing.T) {
	g, clock := newTestGuard(time.Hour, 3)

	for _, k := range []string{"a", "b", "c"} {
		assert.True(t, g.TryMark(k))
		clock.Advance(time.Second)
	}
	assert.True(t, g.TryMark("d"))

	assert.Equal(t, 3, g.Len())
	// "a" was evicted and is accepted again, which in turn evicts "b"
	assert.True(t, g.TryMark("a"))
	assert.False(t, g.TryMark("c"))
	assert.False(t, g.TryMark("d"))
}

func TestIdempotencyGuard_Forget(t *testing.T) {
	g, _ := newTestGuard(time.Minute, 10)

	g.TryMark("a")
	g.Forget("a")
	g.Forget("never-marked")

	assert.True(t, g.TryMark("a"))
}

func TestIdempotencyGuard_Defaults(t *testing.T) {
	g := NewIdempotencyGuard(0, 0)

	assert.Equal(t, DefaultIdempotencyTTL, g.ttl)
	assert.Equal(t, DefaultIdempotencyCapacity, g.capacity)
}

func TestIdempotencyGuard_ConcurrentMarkSingleWinner(t *testing.T) {
	g := NewIdempotencyGuard(time.Minute, 100)

	for round := 0; round < 20; round++ {
		key := fmt.Sprintf("key-%d", round)
		var winners atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if g.TryMark(key) {
					winners.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), winners.Load(), key)
	}
}

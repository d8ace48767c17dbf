// Package mailbox provides a single-slot, overwrite-on-publish mailbox with
// blocking consume.
//
// The producer (the engine's streaming thread) never blocks: Publish replaces
// any unconsumed value and counts it as a drop. The consumer blocks in Next
// until a value is available or the mailbox is closed, so it always sees the
// most recent frame rather than a backlog.
package mailbox

import (
	"sync"
	"time"
)

// Stats is a snapshot of mailbox counters
type Stats struct {
	Published        uint64
	Consumed         uint64
	TotalDrops       uint64
	ConsecutiveDrops uint64
	LastConsumedAt   time.Time
	Closed           bool
}

// Mailbox holds at most one unconsumed value.
//
// Publish is safe for concurrent producers. Next must be called from a
// single consumer goroutine.
type Mailbox[T any] struct {
	mu    sync.Mutex
	cond  *sync.Cond
	value T
	full  bool

	published        uint64
	consumed         uint64
	consecutiveDrops uint64
	totalDrops       uint64
	lastConsumedAt   time.Time

	closed bool
}

// New creates an empty mailbox
func New[T any]() *Mailbox[T] {
	m := &Mailbox[T]{lastConsumedAt: time.Now()}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Publish stores v, overwriting an unconsumed value. Returns false if the
// mailbox is closed.
func (m *Mailbox[T]) Publish(v T) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	if m.full {
		m.consecutiveDrops++
		m.totalDrops++
	}
	m.value = v
	m.full = true
	m.published++
	m.cond.Signal()
	return true
}

// Next blocks until a value is available or the mailbox is closed.
// ok is false once closed; a value published before Close is discarded.
func (m *Mailbox[T]) Next() (v T, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for !m.full && !m.closed {
		m.cond.Wait()
	}
	if m.closed {
		return v, false
	}

	v = m.value
	var zero T
	m.value = zero
	m.full = false
	m.consumed++
	m.consecutiveDrops = 0
	m.lastConsumedAt = time.Now()
	return v, true
}

// TryNext returns the pending value without blocking.
func (m *Mailbox[T]) TryNext() (v T, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.full || m.closed {
		return v, false
	}
	v = m.value
	var zero T
	m.value = zero
	m.full = false
	m.consumed++
	m.consecutiveDrops = 0
	m.lastConsumedAt = time.Now()
	return v, true
}

// Close wakes a blocked consumer and makes further Publish calls no-ops.
// Idempotent.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	var zero T
	m.value = zero
	m.full = false
	m.cond.Broadcast()
}

// Stats returns current counters
func (m *Mailbox[T]) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Published:        m.published,
		Consumed:         m.consumed,
		TotalDrops:       m.totalDrops,
		ConsecutiveDrops: m.consecutiveDrops,
		LastConsumedAt:   m.lastConsumedAt,
		Closed:           m.closed,
	}
}

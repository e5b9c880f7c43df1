// Package events carries completion notifications from the job tracker to
// any interested consumer, the sync coordinator first among them. The bus
// replaces ad-hoc cross-component callbacks with one explicit channel
// both sides hold a reference to.
package events

import (
	"sync"
	"time"
)

// CompletionEvent is published after a tracked job reached Complete and
// its results were merged and persisted locally.
type CompletionEvent struct {
	JobID string
	Login string
	Score float64

	// Partial marks a run that evaluated fewer repositories than
	// requested. Missing counts how many were requested but not evaluated.
	Partial bool
	Missing int

	At time.Time
}

// Bus is a small publish/subscribe fan-out. Publishing never blocks: a
// subscriber whose buffer is full misses that event rather than stalling
// the publisher.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan CompletionEvent
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan CompletionEvent)}
}

// Subscribe registers a new subscriber with the given channel buffer and
// returns its channel plus an unsubscribe function. Unsubscribing closes
// the channel; it is safe to call more than once.
func (b *Bus) Subscribe(buffer int) (<-chan CompletionEvent, func()) {
	if buffer < 1 {
		buffer = 1
	}

	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan CompletionEvent, buffer)
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
	return ch, unsubscribe
}

// Publish delivers evt to every subscriber that has buffer room and
// reports how many received it.
func (b *Bus) Publish(evt CompletionEvent) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for _, ch := range b.subs {
		if trySend(ch, evt) {
			delivered++
		}
	}
	return delivered
}

func trySend(ch chan<- CompletionEvent, evt CompletionEvent) bool {
	select {
	case ch <- evt:
		return true
	default:
		return false
	}
}

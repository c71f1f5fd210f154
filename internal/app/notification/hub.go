// Package notification provides the subscription hub used to publish state snapshots.
package notification

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Listener receives published values.
// Listeners run on the publisher's goroutine and must not block.
type Listener[T any] func(T)

// subscription represents a subscriber's subscription.
type subscription[T any] struct {
	id       string
	listener Listener[T]
	lastSeq  atomic.Uint64
}

// Hub manages subscriptions and delivers values in sequence order.
// A subscriber never sees a value older than one it already received.
type Hub[T any] struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription[T]
	order         []string
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
}

// NewHub creates a new hub.
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{
		subscriptions: make(map[string]*subscription[T]),
	}
}

// Subscribe adds a listener and returns the subscription ID.
func (h *Hub[T]) Subscribe(listener Listener[T]) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := uuid.New().String()
	h.subscriptions[id] = &subscription[T]{
		id:       id,
		listener: listener,
	}
	h.order = append(h.order, id)
	return id
}

// Unsubscribe removes a subscription. Unknown IDs are ignored.
func (h *Hub[T]) Unsubscribe(subscriptionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subscriptions[subscriptionID]; !ok {
		return
	}
	delete(h.subscriptions, subscriptionID)
	for i, id := range h.order {
		if id == subscriptionID {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// NextSequenceNo returns the next sequence number and increments the counter.
// Publishers call it while holding their own state lock so that the number
// reflects the order in which snapshots were taken.
func (h *Hub[T]) NextSequenceNo() uint64 {
	h.sequenceNoMu.Lock()
	defer h.sequenceNoMu.Unlock()
	h.sequenceNo++
	return h.sequenceNo
}

// Publish delivers value to every subscriber, in subscription order.
// Subscribers that already received a higher sequence number skip it.
func (h *Hub[T]) Publish(seq uint64, value T) {
	h.mu.RLock()
	subs := make([]*subscription[T], 0, len(h.order))
	for _, id := range h.order {
		subs = append(subs, h.subscriptions[id])
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if !sub.advance(seq) {
			continue
		}
		sub.listener(value)
	}
}

// Broadcast assigns the next sequence number and publishes value.
func (h *Hub[T]) Broadcast(value T) {
	h.Publish(h.NextSequenceNo(), value)
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub[T]) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions)
}

// Close removes all subscriptions.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscriptions = make(map[string]*subscription[T])
	h.order = nil
}

func (s *subscription[T]) advance(seq uint64) bool {
	for {
		last := s.lastSeq.Load()
		if seq <= last {
			return false
		}
		if s.lastSeq.CompareAndSwap(last, seq) {
			return true
		}
	}
}

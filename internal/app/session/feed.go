package session

import (
	"context"
	"sync"

	zlog "github.com/rs/zerolog/log"
)

// Feed message types.
const (
	FeedStatus = "status"
	FeedEvent  = "event"
)

// FeedSource is the subscription surface a Feed reads from.
type FeedSource interface {
	SubscribeStatus(listener func(Status)) string
	SubscribeEvents(listener func(HostEvent)) string
	Unsubscribe(subscriptionID string)
}

// FeedMessage is either a status or a host event.
type FeedMessage struct {
	Type   string
	Status *Status
	Event  *HostEvent
}

// Payload returns the message body as a JSON-like map.
func (m FeedMessage) Payload() map[string]any {
	switch {
	case m.Status != nil:
		return m.Status.Map()
	case m.Event != nil:
		return m.Event.Map()
	default:
		return map[string]any{}
	}
}

// Feed adapts status and event listeners to a pull loop for one remote
// subscriber. Statuses coalesce to the latest; events queue up to a bound
// and are dropped when the subscriber falls behind.
type Feed struct {
	src       FeedSource
	statusSub string
	eventSub  string

	mu     sync.Mutex
	latest *Status
	wake   chan struct{}
	events chan HostEvent
}

// NewFeed subscribes to src. Close must be called to release the subscriptions.
func NewFeed(src FeedSource, eventBuffer int) *Feed {
	f := &Feed{
		src:    src,
		wake:   make(chan struct{}, 1),
		events: make(chan HostEvent, eventBuffer),
	}
	f.statusSub = src.SubscribeStatus(f.onStatus)
	f.eventSub = src.SubscribeEvents(f.onEvent)
	return f
}

func (f *Feed) onStatus(s Status) {
	f.mu.Lock()
	f.latest = &s
	f.mu.Unlock()
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *Feed) onEvent(ev HostEvent) {
	select {
	case f.events <- ev:
	default:
		zlog.Warn().Msgf("subscriber too slow, host event dropped: type=%s", ev.TypeName)
	}
}

// Next blocks until a message is available or ctx is done.
func (f *Feed) Next(ctx context.Context) (FeedMessage, error) {
	for {
		select {
		case <-ctx.Done():
			return FeedMessage{}, ctx.Err()
		case ev := <-f.events:
			return FeedMessage{Type: FeedEvent, Event: &ev}, nil
		case <-f.wake:
			f.mu.Lock()
			s := f.latest
			f.latest = nil
			f.mu.Unlock()
			if s != nil {
				return FeedMessage{Type: FeedStatus, Status: s}, nil
			}
		}
	}
}

// Close releases the subscriptions.
func (f *Feed) Close() {
	f.src.Unsubscribe(f.statusSub)
	f.src.Unsubscribe(f.eventSub)
}

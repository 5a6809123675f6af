// Package event carries the engine's output events to the presentation
// layer. Events are plain data with no transport framing; subscribers
// decide how to broadcast or expose them. A slow subscriber drops events
// rather than blocking the core.
package event

import (
	"sync"
	"time"
)

// Type classifies an event.
type Type string

// Event types.
const (
	TypeOwnershipChanged Type = "ownership_changed"
	TypeRaidFeed         Type = "raid_feed"
	TypeTransaction      Type = "transaction"
)

// Event is one engine output event. Payload is one of the model types:
// OwnershipChange, a raid feed entry paired with its raid id, or a
// completed transaction.
type Event struct {
	Type    Type
	At      time.Time
	Payload any
}

// OwnershipChange is the payload for TypeOwnershipChanged.
type OwnershipChange struct {
	ZoneID        string
	PreviousOwner string
	NewOwner      string
}

// RaidFeed is the payload for TypeRaidFeed.
type RaidFeed struct {
	RaidID    string
	ZoneID    string
	EventType string
	Message   string
}

// Feed fans events out to subscribers over buffered channels.
type Feed struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber with the given channel buffer and
// returns the channel plus a cancel function. Events published while the
// buffer is full are dropped for that subscriber.
func (f *Feed) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = ch
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking.
// A nil feed is a no-op, so components can be wired without one in tests.
func (f *Feed) Publish(e Event) {
	if f == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, ch := range f.subs {
		select {
		case ch <- e:
		default:
			// subscriber buffer full, drop
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (f *Feed) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Package events carries activity on Reckos (posts, verifications,
// reactions, comments) to in-process subscribers such as the live feed, and
// optionally to Google Cloud Pub/Sub.
package events

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the referral service.
const (
	TypeReckoPosted     = "recko.posted"
	TypeReckoVerified   = "recko.verified"
	TypeReckoDeleted    = "recko.deleted"
	TypeReactionToggled = "reaction.toggled"
	TypeCommentAdded    = "comment.added"
)

// Source is the CloudEvents source of everything this service emits.
const Source = "/arecko/api"

// Emitter publishes CloudEvents. Both Bus and PubSubBus satisfy it.
type Emitter interface {
	Emit(eventType, subject string, data map[string]interface{})
}

// CloudEvent is the CloudEvents 1.0 envelope.
type CloudEvent struct {
	SpecVersion string                 `json:"specversion"`
	Type        string                 `json:"type"`
	Source      string                 `json:"source"`
	ID          string                 `json:"id"`
	Time        time.Time              `json:"time"`
	Subject     string                 `json:"subject,omitempty"`
	Data        map[string]interface{} `json:"data"`
}

// NewCloudEvent creates an event with a fresh ID.
func NewCloudEvent(eventType, subject string, data map[string]interface{}) *CloudEvent {
	return &CloudEvent{
		SpecVersion: "1.0",
		Type:        eventType,
		Source:      Source,
		ID:          uuid.NewString(),
		Time:        time.Now().UTC(),
		Subject:     subject,
		Data:        data,
	}
}

// JSON serializes the event
func (ce *CloudEvent) JSON() ([]byte, error) {
	return json.Marshal(ce)
}

// Bus is an in-process pub/sub bus. Slow subscribers miss events rather
// than block publishers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan *CloudEvent // eventType -> channels
	allSubs     []chan *CloudEvent
	logger      *log.Logger
	bufferSize  int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string][]chan *CloudEvent),
		logger:      log.New(log.Writer(), "[EVENTS] ", log.LstdFlags),
		bufferSize:  100,
	}
}

// Subscribe returns a channel receiving the given event types, or every
// event when none are given.
func (b *Bus) Subscribe(eventTypes ...string) chan *CloudEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *CloudEvent, b.bufferSize)
	if len(eventTypes) == 0 {
		b.allSubs = append(b.allSubs, ch)
		return ch
	}
	for _, et := range eventTypes {
		b.subscribers[et] = append(b.subscribers[et], ch)
	}
	return ch
}

func without(subs []chan *CloudEvent, ch chan *CloudEvent) []chan *CloudEvent {
	out := subs[:0]
	for _, s := range subs {
		if s != ch {
			out = append(out, s)
		}
	}
	return out
}

// Unsubscribe removes and closes ch.
func (b *Bus) Unsubscribe(ch chan *CloudEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for et, subs := range b.subscribers {
		b.subscribers[et] = without(subs, ch)
	}
	b.allSubs = without(b.allSubs, ch)
	close(ch)
}

// Publish delivers event to every matching subscriber.
func (b *Bus) Publish(event *CloudEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	dropped := 0
	deliver := func(ch chan *CloudEvent) {
		select {
		case ch <- event:
		default:
			dropped++
		}
	}
	for _, ch := range b.subscribers[event.Type] {
		deliver(ch)
	}
	for _, ch := range b.allSubs {
		deliver(ch)
	}
	if dropped > 0 {
		b.logger.Printf("⚠️  %s dropped for %d slow subscriber(s)", event.Type, dropped)
	}
}

// Emit creates and publishes an event.
func (b *Bus) Emit(eventType, subject string, data map[string]interface{}) {
	b.Publish(NewCloudEvent(eventType, subject, data))
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := len(b.allSubs)
	for _, subs := range b.subscribers {
		count += len(subs)
	}
	return count
}

var _ Emitter = (*Bus)(nil)

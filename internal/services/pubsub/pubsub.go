// Package pubsub provides the event bus connecting the persistence surface
// to the core: mapping changes trigger engine reloads, and merged DMX output
// feeds the live monitor.
package pubsub

import (
	"strconv"
	"sync"
)

// Topic represents a subscription topic.
type Topic string

const (
	TopicMappingCreated Topic = "MAPPING_CREATED"
	TopicMappingUpdated Topic = "MAPPING_UPDATED"
	TopicMappingDeleted Topic = "MAPPING_DELETED"
	TopicDMXOutput      Topic = "DMX_OUTPUT"
)

// Subscriber represents a subscription channel. Call Unsubscribe when done;
// it removes the handler and closes the channel.
type Subscriber struct {
	ID      string
	Topic   Topic
	Channel chan interface{}

	bus *Bus
}

// Unsubscribe removes this subscription from the bus.
func (s *Subscriber) Unsubscribe() {
	s.bus.unsubscribe(s)
}

// Bus manages subscriptions and message distribution.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Topic][]*Subscriber
	nextID      int
}

// New creates a new Bus instance.
func New() *Bus {
	return &Bus{
		subscribers: make(map[Topic][]*Subscriber),
	}
}

// Subscribe creates a new subscription for a topic.
func (b *Bus) Subscribe(topic Topic, bufferSize int) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscriber{
		ID:      strconv.Itoa(b.nextID),
		Topic:   topic,
		Channel: make(chan interface{}, bufferSize),
		bus:     b,
	}

	// Copy-on-write so Publish can iterate without holding the lock.
	existing := b.subscribers[topic]
	subs := make([]*Subscriber, len(existing), len(existing)+1)
	copy(subs, existing)
	b.subscribers[topic] = append(subs, sub)
	return sub
}

func (b *Bus) unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing := b.subscribers[sub.Topic]
	for i, s := range existing {
		if s.ID == sub.ID {
			close(s.Channel)
			subs := make([]*Subscriber, 0, len(existing)-1)
			subs = append(subs, existing[:i]...)
			subs = append(subs, existing[i+1:]...)
			b.subscribers[sub.Topic] = subs
			return
		}
	}
}

// Publish sends a message to all subscribers of a topic. Slow subscribers
// whose channel is full are skipped (non-blocking).
func (b *Bus) Publish(topic Topic, message interface{}) {
	b.mu.RLock()
	subs := b.subscribers[topic]
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.Channel <- message:
			// Message sent
		default:
			// Channel full, skip
		}
	}
}

// SubscriberCount returns the number of subscribers for a topic.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}

package events

import (
	"sync"
	"sync/atomic"
)

// Message is one published event as seen by a subscriber.
type Message struct {
	Topic   string
	Payload any
}

// Subscriber holds one subscription's delivery channel and topic filter.
type subscriber struct {
	ch     chan Message
	topics map[string]bool // empty means all topics
}

// Bus is an in-process Publisher with buffered subscribers. When a
// subscriber's buffer is full the oldest message is dropped so the
// publishing run is never blocked.
type Bus struct {
	mu           sync.RWMutex
	subscribers  []*subscriber
	bufferSize   int
	droppedCount atomic.Int64
	closed       bool
}

// NewBus creates a bus with the given per-subscriber buffer size.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{bufferSize: bufferSize}
}

// Subscribe registers interest in the given topics. No topics means all.
func (b *Bus) Subscribe(topics ...string) <-chan Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{
		ch:     make(chan Message, b.bufferSize),
		topics: make(map[string]bool),
	}
	for _, t := range topics {
		sub.topics[t] = true
	}
	b.subscribers = append(b.subscribers, sub)
	return sub.ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(ch <-chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := make([]*subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		if sub.ch != ch {
			kept = append(kept, sub)
		} else {
			close(sub.ch)
		}
	}
	b.subscribers = kept
}

// Publish implements Publisher. Delivery is best-effort ring-buffer
// behavior: a full subscriber loses its oldest message.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	msg := Message{Topic: topic, Payload: payload}
	for _, sub := range b.subscribers {
		if len(sub.topics) > 0 && !sub.topics[topic] {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			select {
			case <-sub.ch: // drop oldest
				b.droppedCount.Add(1)
			default:
			}
			select {
			case sub.ch <- msg:
			default:
				b.droppedCount.Add(1)
			}
		}
	}
}

// DroppedCount returns the total number of dropped messages.
func (b *Bus) DroppedCount() int64 {
	return b.droppedCount.Load()
}

// Close closes the bus and all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subscribers {
		close(sub.ch)
	}
	b.subscribers = nil
}

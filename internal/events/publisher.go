package events

import (
	"sync"
)

// AllTypes is the special subscription key receiving every event.
const AllTypes = "*"

// Publisher defines the interface for event publishing.
type Publisher interface {
	// Publish sends an event to subscribers of its type and to global
	// subscribers.
	Publish(event Event)
	// Subscribe returns a channel receiving events of the given type.
	// Use AllTypes ("*") to receive everything.
	Subscribe(eventType string) <-chan Event
	// Unsubscribe removes a subscription channel.
	Unsubscribe(eventType string, ch <-chan Event)
	// Close shuts down the publisher and all subscriptions.
	Close()
}

// MemoryPublisher is an in-memory implementation of Publisher.
type MemoryPublisher struct {
	subscribers map[string][]chan Event
	mu          sync.RWMutex
	bufferSize  int
	closed      bool
}

// PublisherOption configures a MemoryPublisher.
type PublisherOption func(*MemoryPublisher)

// WithBufferSize sets the channel buffer size for subscribers.
func WithBufferSize(size int) PublisherOption {
	return func(p *MemoryPublisher) {
		p.bufferSize = size
	}
}

// NewMemoryPublisher creates a new in-memory publisher.
func NewMemoryPublisher(opts ...PublisherOption) *MemoryPublisher {
	p := &MemoryPublisher{
		subscribers: make(map[string][]chan Event),
		bufferSize:  100,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish sends an event to type-specific and global subscribers.
// Non-blocking: subscribers with full buffers are skipped.
func (p *MemoryPublisher) Publish(event Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return
	}

	for _, ch := range p.subscribers[string(event.Type)] {
		select {
		case ch <- event:
		default:
		}
	}
	for _, ch := range p.subscribers[AllTypes] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns a channel that receives events of the given type.
func (p *MemoryPublisher) Subscribe(eventType string) <-chan Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, p.bufferSize)
	p.subscribers[eventType] = append(p.subscribers[eventType], ch)
	return ch
}

// Unsubscribe removes a subscription channel.
func (p *MemoryPublisher) Unsubscribe(eventType string, ch <-chan Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	subs := p.subscribers[eventType]
	for i, sub := range subs {
		if sub == ch {
			p.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
	if len(p.subscribers[eventType]) == 0 {
		delete(p.subscribers, eventType)
	}
}

// Close shuts down the publisher and closes all subscription channels.
func (p *MemoryPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	for key, subs := range p.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(p.subscribers, key)
	}
}

// NopPublisher is a no-op publisher for when events are disabled.
type NopPublisher struct{}

// NewNopPublisher creates a no-op publisher.
func NewNopPublisher() *NopPublisher {
	return &NopPublisher{}
}

// Publish does nothing.
func (p *NopPublisher) Publish(event Event) {}

// Subscribe returns a closed channel.
func (p *NopPublisher) Subscribe(eventType string) <-chan Event {
	ch := make(chan Event)
	close(ch)
	return ch
}

// Unsubscribe does nothing.
func (p *NopPublisher) Unsubscribe(eventType string, ch <-chan Event) {}

// Close does nothing.
func (p *NopPublisher) Close() {}

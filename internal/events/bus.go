package events

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the subscriber channel size used when none is given.
const DefaultBuffer = 256

// allTopics keys the subscribers that receive every event.
const allTopics = "*"

// EventBus fans published events out to buffered subscriber channels. A
// subscriber that falls behind loses events rather than stalling the
// scheduler.
type EventBus struct {
	mu      sync.RWMutex
	subs    map[string][]chan Event
	closed  bool
	dropped atomic.Uint64
}

// NewEventBus creates an open bus with no subscribers.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[string][]chan Event)}
}

// Subscribe returns a channel receiving the events published to topic.
func (b *EventBus) Subscribe(topic string, bufSize int) <-chan Event {
	return b.subscribe(topic, bufSize)
}

// SubscribeAll returns a channel receiving every published event.
func (b *EventBus) SubscribeAll(bufSize int) <-chan Event {
	return b.subscribe(allTopics, bufSize)
}

// subscribe registers a channel under key. On a closed bus the channel is
// returned already closed.
func (b *EventBus) subscribe(key string, bufSize int) <-chan Event {
	if bufSize <= 0 {
		bufSize = DefaultBuffer
	}
	ch := make(chan Event, bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
	} else {
		b.subs[key] = append(b.subs[key], ch)
	}
	return ch
}

// Publish delivers event to the subscribers of topic and to the all-topic
// subscribers. It never blocks.
func (b *EventBus) Publish(topic string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	deliver := func(chs []chan Event) {
		for _, ch := range chs {
			select {
			case ch <- event:
			default:
				b.dropped.Add(1)
			}
		}
	}
	if topic != allTopics {
		deliver(b.subs[topic])
	}
	deliver(b.subs[allTopics])
}

// Dropped reports how many deliveries were lost to full buffers.
func (b *EventBus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes every subscriber channel. Later calls do nothing.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, chs := range b.subs {
		for _, ch := range chs {
			close(ch)
		}
	}
	b.subs = nil
}

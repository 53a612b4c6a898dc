// Package bus decouples producers of notifications and events (monitor, job
// registry, poller) from their consumers (Telegram notifier, websocket taps).
// Publishing never blocks: the notification queue drops oldest under
// pressure, event taps drop per-subscriber.
package bus

import (
	"context"
	"sync"
)

// Subscriber is a named tap on the event stream. Multiple subscribers
// independently receive copies of every published event (fan-out).
type Subscriber struct {
	Name string
	ch   chan Event
}

type Bus struct {
	notifications chan Notification

	mu        sync.RWMutex
	eventSubs []*Subscriber
	closed    bool
	closeOnce sync.Once
}

func New() *Bus {
	return &Bus{
		notifications: make(chan Notification, 100),
	}
}

// PublishNotification enqueues an admin notification. When the queue is full
// the oldest entry is dropped so a dead notifier cannot back-pressure the
// monitor loop. The read lock is held across the send; Close takes the write
// lock, so the channel cannot be closed mid-publish.
func (b *Bus) PublishNotification(n Notification) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	select {
	case b.notifications <- n:
	default:
		select {
		case <-b.notifications:
		default:
		}
		select {
		case b.notifications <- n:
		default:
		}
	}
}

// ConsumeNotification blocks for the next notification or context cancel.
func (b *Bus) ConsumeNotification(ctx context.Context) (Notification, bool) {
	select {
	case n, ok := <-b.notifications:
		return n, ok
	case <-ctx.Done():
		return Notification{}, false
	}
}

// SubscribeEvents creates a named subscriber receiving copies of all events.
// The channel is buffered; slow consumers drop.
func (b *Bus) SubscribeEvents(name string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &Subscriber{Name: name, ch: make(chan Event, 64)}
	b.eventSubs = append(b.eventSubs, sub)
	return sub.ch
}

// PublishEvent fans an event out to all subscribers, non-blocking.
func (b *Bus) PublishEvent(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.eventSubs {
		select {
		case sub.ch <- e:
		default: // drop if subscriber is slow
		}
	}
}

func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		for _, sub := range b.eventSubs {
			close(sub.ch)
		}
		close(b.notifications)
		b.mu.Unlock()
	})
}

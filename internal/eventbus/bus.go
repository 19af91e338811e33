package eventbus

import (
	"sync"
	"time"
)

// Event types published by the engine.
const (
	EventScanCompleted  = "scan.completed"
	EventReminderSent   = "reminder.sent"
	EventReminderFailed = "reminder.failed"
	EventReminderDedup  = "reminder.deduped"
	EventConfigApplied  = "config.applied"
)

// Event is an in-memory signal used to decouple the engine from observers.
//
// Publish never blocks; a subscriber whose buffer is full loses the event.
// Data should stay small.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It runs no goroutines of its own.
func New() Bus {
	return &fanout{subs: map[int]chan Event{}}
}

type fanout struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
}

func (b *fanout) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	targets := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		// A concurrent unsubscribe may have closed the channel; the recover
		// absorbs the send panic in that window.
		deliver(ch, e)
	}
}

func deliver(ch chan Event, e Event) {
	defer func() { _ = recover() }()
	select {
	case ch <- e:
	default:
	}
}

func (b *fanout) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

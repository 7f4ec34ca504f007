package pipeline

import (
	"sync"
	"time"
)

// EventKind identifies the type of pipeline event.
type EventKind string

const (
	EventRunStart   EventKind = "run_start"
	EventStageStart EventKind = "stage_start"
	EventStageEnd   EventKind = "stage_end"
	EventStageError EventKind = "stage_error"
	EventRunEnd     EventKind = "run_end"
)

// Event is an immutable notification of pipeline activity. Stage is the
// zero-based stage index, or -1 for run-level events.
type Event struct {
	Kind      EventKind
	RunID     string
	Stage     int
	Agent     string
	Timestamp time.Time
	Output    *StageOutput // Set on EventStageEnd.
	Err       error        // Set on EventStageError.
}

// Subscription receives events from an EventBus.
type Subscription struct {
	C  <-chan Event
	ch chan Event
}

// EventBus fans out events to all active subscribers. It is safe for
// concurrent use.
type EventBus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// NewEventBus creates an EventBus ready for use.
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[*Subscription]struct{}),
	}
}

// Subscribe creates a new subscription with the given channel buffer size.
// The caller should read from sub.C and eventually call Unsubscribe.
func (b *EventBus) Subscribe(bufSize int) *Subscription {
	ch := make(chan Event, bufSize)
	sub := &Subscription{C: ch, ch: ch}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes the subscription and closes its channel.
func (b *EventBus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// Publish sends an event to all subscribers. A subscriber with a full buffer
// misses the event; a slow progress view never stalls a run.
func (b *EventBus) Publish(e Event) {
	if b == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
		}
	}
}

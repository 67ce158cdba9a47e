// Package events provides the run event bus. Executors publish every tool
// and run transition; the API and CLI subscribe for progress.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	Timestamp() time.Time
	RunID() string
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	Type     string    `json:"type"`
	Time     time.Time `json:"timestamp"`
	Run      string    `json:"run_id"`
	Workflow string    `json:"workflow"`
}

func (e BaseEvent) EventType() string    { return e.Type }
func (e BaseEvent) Timestamp() time.Time { return e.Time }
func (e BaseEvent) RunID() string        { return e.Run }

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType, runID, workflow string) BaseEvent {
	return BaseEvent{
		Type:     eventType,
		Time:     time.Now(),
		Run:      runID,
		Workflow: workflow,
	}
}

// Subscriber represents an event subscription.
type Subscriber struct {
	ch       chan Event
	types    map[string]bool // empty means all types
	runID    string          // empty means all runs
	priority bool
}

func (s *Subscriber) matches(e Event) bool {
	if s.runID != "" && s.runID != e.RunID() {
		return false
	}
	return len(s.types) == 0 || s.types[e.EventType()]
}

// EventBus is a pub/sub bus with ring-buffer backpressure. Publishing never
// blocks on regular subscribers: when a buffer is full the oldest event is
// dropped.
type EventBus struct {
	mu           sync.RWMutex
	subscribers  []*Subscriber
	prioritySubs []*Subscriber
	bufferSize   int
	droppedCount int64
	closed       bool
}

// New creates a new EventBus with the specified buffer size.
func New(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &EventBus{bufferSize: bufferSize}
}

// Subscribe creates a subscription for specific event types across all
// runs. If no types are specified, every event is delivered.
func (eb *EventBus) Subscribe(types ...string) <-chan Event {
	return eb.subscribe("", false, types)
}

// SubscribeRun creates a subscription limited to one run.
func (eb *EventBus) SubscribeRun(runID string, types ...string) <-chan Event {
	return eb.subscribe(runID, false, types)
}

// SubscribePriority creates a subscription that receives events published
// with PublishPriority without ever dropping them. An empty runID matches
// every run.
func (eb *EventBus) SubscribePriority(runID string) <-chan Event {
	return eb.subscribe(runID, true, nil)
}

func (eb *EventBus) subscribe(runID string, priority bool, types []string) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	sub := &Subscriber{
		ch:       make(chan Event, eb.bufferSize),
		types:    make(map[string]bool, len(types)),
		runID:    runID,
		priority: priority,
	}
	for _, t := range types {
		sub.types[t] = true
	}
	if eb.closed {
		close(sub.ch)
		return sub.ch
	}
	if priority {
		eb.prioritySubs = append(eb.prioritySubs, sub)
	} else {
		eb.subscribers = append(eb.subscribers, sub)
	}
	return sub.ch
}

// Unsubscribe removes a subscription and closes its channel.
func (eb *EventBus) Unsubscribe(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers = removeSubscriber(eb.subscribers, ch)
	eb.prioritySubs = removeSubscriber(eb.prioritySubs, ch)
}

func removeSubscriber(subs []*Subscriber, ch <-chan Event) []*Subscriber {
	result := make([]*Subscriber, 0, len(subs))
	for _, sub := range subs {
		if sub.ch != ch {
			result = append(result, sub)
		} else {
			close(sub.ch)
		}
	}
	return result
}

// Publish sends an event to all matching regular subscribers.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}
	eb.publish(event)
}

// PublishPriority sends an event to regular subscribers and blocks until
// every priority subscriber has received it. Use it for terminal run
// events only.
func (eb *EventBus) PublishPriority(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}
	eb.publish(event)
	for _, sub := range eb.prioritySubs {
		if sub.matches(event) {
			sub.ch <- event
		}
	}
}

func (eb *EventBus) publish(event Event) {
	for _, sub := range eb.subscribers {
		if !sub.matches(event) {
			continue
		}
		select {
		case sub.ch <- event:
			continue
		default:
		}
		// Buffer full: drop the oldest event and retry once.
		select {
		case <-sub.ch:
			atomic.AddInt64(&eb.droppedCount, 1)
		default:
		}
		select {
		case sub.ch <- event:
		default:
			atomic.AddInt64(&eb.droppedCount, 1)
		}
	}
}

// DroppedCount returns the total number of dropped events.
func (eb *EventBus) DroppedCount() int64 {
	return atomic.LoadInt64(&eb.droppedCount)
}

// SubscriberCount returns the number of active subscriptions.
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers) + len(eb.prioritySubs)
}

// Close closes the event bus and all subscriber channels.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true

	for _, sub := range eb.subscribers {
		close(sub.ch)
	}
	for _, sub := range eb.prioritySubs {
		close(sub.ch)
	}
	eb.subscribers = nil
	eb.prioritySubs = nil
}

package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventPlanStarted        EventType = "plan.started"
	EventPlanCompleted      EventType = "plan.completed"
	EventPlanFailed         EventType = "plan.failed"
	EventProcedureStarted   EventType = "procedure.started"
	EventProcedureCompleted EventType = "procedure.completed"
	EventProcedureFailed    EventType = "procedure.failed"
	EventBootstrapStep      EventType = "bootstrap.step"
	EventBootstrapWait      EventType = "bootstrap.wait"
)

// Event is one progress notification
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker fans events out to subscribers. A nil *Broker accepts and drops
// every event, so components can publish unconditionally.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
	doneCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop delivers what is already queued, closes every subscriber and
// waits for the distribution loop to exit. It is safe to call twice.
func (b *Broker) Stop() {
	if b == nil {
		return
	}
	b.stopOnce.Do(func() {
		close(b.stopCh)
		<-b.doneCh
	})
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[sub] {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish queues an event for all subscribers
func (b *Broker) Publish(event *Event) {
	if b == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

// Emit is shorthand for publishing an event built from its parts
func (b *Broker) Emit(typ EventType, msg string, kv ...string) {
	if b == nil {
		return
	}
	var meta map[string]string
	if len(kv) > 1 {
		meta = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			meta[kv[i]] = kv[i+1]
		}
	}
	b.Publish(&Event{Type: typ, Message: msg, Metadata: meta})
}

func (b *Broker) run() {
	defer close(b.doneCh)
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			b.drain()
			return
		}
	}
}

func (b *Broker) drain() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		default:
			b.mu.Lock()
			for sub := range b.subscribers {
				delete(b.subscribers, sub)
				close(sub)
			}
			b.mu.Unlock()
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

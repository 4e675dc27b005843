// Package events distributes session lifecycle events to multiple consumers.
package events

import (
	"context"
	"sync"
	"time"

	"agent-trader/internal/models"
)

// NotifierConfig holds configuration for the event notifier.
type NotifierConfig struct {
	// BufferSize is the size of the internal event channel buffer.
	BufferSize int
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
}

// DefaultNotifierConfig returns the default notifier configuration.
func DefaultNotifierConfig() NotifierConfig {
	return NotifierConfig{
		BufferSize:           1000,
		SubscriberBufferSize: 100,
	}
}

// Notifier fans session events out to subscribers. Publishing never blocks
// the caller: a full internal buffer drops the event, and a full subscriber
// buffer skips that subscriber. All delivery happens on a single broadcast
// goroutine, so each subscriber observes an agent's events in emission order.
type Notifier struct {
	config      NotifierConfig
	mu          sync.RWMutex
	subscribers map[string][]*Subscriber
	eventChan   chan models.Event
	done        chan struct{}
	started     bool

	metricsMu      sync.RWMutex
	eventsReceived uint64
	eventsSent     uint64
	eventsDropped  uint64
}

// Subscriber represents a channel subscriber with metadata.
type Subscriber struct {
	ID           string
	Channel      chan models.Event
	DroppedCount int
	CreatedAt    time.Time
}

// allAgents is the subscription key for consumers that want every event.
const allAgents = "*"

// NewNotifier creates an event notifier with default configuration.
func NewNotifier() *Notifier {
	return NewNotifierWithConfig(DefaultNotifierConfig())
}

// NewNotifierWithConfig creates an event notifier with custom configuration.
func NewNotifierWithConfig(config NotifierConfig) *Notifier {
	return &Notifier{
		config:      config,
		subscribers: make(map[string][]*Subscriber),
		eventChan:   make(chan models.Event, config.BufferSize),
		done:        make(chan struct{}),
	}
}

// Start begins the broadcast loop. Calling Start twice is a no-op.
func (n *Notifier) Start(ctx context.Context) {
	n.mu.Lock()
	if n.started {
		n.mu.Unlock()
		return
	}
	n.started = true
	n.mu.Unlock()

	go n.broadcastLoop(ctx)
}

func (n *Notifier) broadcastLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.done:
			return
		case event := <-n.eventChan:
			n.metricsMu.Lock()
			n.eventsReceived++
			n.metricsMu.Unlock()

			n.broadcast(event)
		}
	}
}

// Stop stops the notifier and closes all subscriber channels.
func (n *Notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.started {
		return
	}

	close(n.done)
	n.started = false

	for key, subs := range n.subscribers {
		for _, sub := range subs {
			close(sub.Channel)
		}
		delete(n.subscribers, key)
	}
}

// Subscribe returns a channel receiving events for one agent.
func (n *Notifier) Subscribe(agentID string) <-chan models.Event {
	return n.SubscribeWithID(agentID, "")
}

// SubscribeAll returns a channel receiving events for every agent.
func (n *Notifier) SubscribeAll() <-chan models.Event {
	return n.SubscribeWithID(allAgents, "")
}

// SubscribeWithID adds a subscriber with a specific ID for an agent.
func (n *Notifier) SubscribeWithID(agentID, id string) <-chan models.Event {
	ch := make(chan models.Event, n.config.SubscriberBufferSize)
	sub := &Subscriber{
		ID:        id,
		Channel:   ch,
		CreatedAt: time.Now(),
	}

	n.mu.Lock()
	n.subscribers[agentID] = append(n.subscribers[agentID], sub)
	n.mu.Unlock()

	return ch
}

// Unsubscribe removes a subscriber channel.
func (n *Notifier) Unsubscribe(agentID string, ch <-chan models.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()

	subs := n.subscribers[agentID]
	for i, sub := range subs {
		if sub.Channel == ch {
			close(sub.Channel)
			n.subscribers[agentID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(n.subscribers[agentID]) == 0 {
		delete(n.subscribers, agentID)
	}
}

// UnsubscribeAll removes a wildcard subscriber created by SubscribeAll.
func (n *Notifier) UnsubscribeAll(ch <-chan models.Event) {
	n.Unsubscribe(allAgents, ch)
}

// Publish enqueues an event for distribution. Non-blocking: the event is
// dropped when the internal buffer is full.
func (n *Notifier) Publish(event models.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case n.eventChan <- event:
	default:
		n.metricsMu.Lock()
		n.eventsDropped++
		n.metricsMu.Unlock()
	}
}

// broadcast sends an event to the agent's subscribers and wildcard
// subscribers. Non-blocking sends keep slow consumers from stalling others.
func (n *Notifier) broadcast(event models.Event) {
	n.mu.RLock()
	subs := make([]*Subscriber, 0, len(n.subscribers[event.AgentID])+len(n.subscribers[allAgents]))
	subs = append(subs, n.subscribers[event.AgentID]...)
	subs = append(subs, n.subscribers[allAgents]...)
	n.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.Channel <- event:
			n.metricsMu.Lock()
			n.eventsSent++
			n.metricsMu.Unlock()
		default:
			sub.DroppedCount++
			n.metricsMu.Lock()
			n.eventsDropped++
			n.metricsMu.Unlock()
		}
	}
}

// SubscriberCount returns the number of subscribers for an agent.
func (n *Notifier) SubscriberCount(agentID string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subscribers[agentID])
}

// TotalSubscriberCount returns the total number of subscribers.
func (n *Notifier) TotalSubscriberCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	count := 0
	for _, subs := range n.subscribers {
		count += len(subs)
	}
	return count
}

// Metrics returns notifier counters.
func (n *Notifier) Metrics() NotifierMetrics {
	n.metricsMu.RLock()
	defer n.metricsMu.RUnlock()

	return NotifierMetrics{
		EventsReceived: n.eventsReceived,
		EventsSent:     n.eventsSent,
		EventsDropped:  n.eventsDropped,
		Subscribers:    n.TotalSubscriberCount(),
	}
}

// NotifierMetrics contains notifier performance counters.
type NotifierMetrics struct {
	EventsReceived uint64
	EventsSent     uint64
	EventsDropped  uint64
	Subscribers    int
}

// IsStarted returns whether the broadcast loop is running.
func (n *Notifier) IsStarted() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.started
}

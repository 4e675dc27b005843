package events

import (
	"context"
	"fmt"
	"testing"
	"time"

	"agent-trader/internal/models"
)

func newStartedNotifier(t *testing.T, cfg NotifierConfig) *Notifier {
	t.Helper()
	n := NewNotifierWithConfig(cfg)
	n.Start(context.Background())
	t.Cleanup(n.Stop)
	return n
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	n := newStartedNotifier(t, DefaultNotifierConfig())
	ch := n.Subscribe("agent-1")

	n.Publish(models.Event{Type: models.EventExecutionStarted, AgentID: "agent-1", SessionID: "s1"})

	select {
	case event := <-ch:
		if event.SessionID != "s1" {
			t.Errorf("session id = %s, want s1", event.SessionID)
		}
		if event.Timestamp.IsZero() {
			t.Errorf("timestamp was not stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("event never arrived")
	}
}

func TestPublishFiltersByAgent(t *testing.T) {
	n := newStartedNotifier(t, DefaultNotifierConfig())
	ch := n.Subscribe("agent-1")

	n.Publish(models.Event{Type: models.EventExecutionStarted, AgentID: "agent-2", SessionID: "other"})
	n.Publish(models.Event{Type: models.EventExecutionStarted, AgentID: "agent-1", SessionID: "mine"})

	select {
	case event := <-ch:
		if event.SessionID != "mine" {
			t.Errorf("received event for wrong agent: %s", event.SessionID)
		}
	case <-time.After(time.Second):
		t.Fatal("event never arrived")
	}
}

func TestWildcardSubscriberSeesAllAgents(t *testing.T) {
	n := newStartedNotifier(t, DefaultNotifierConfig())
	ch := n.SubscribeAll()

	n.Publish(models.Event{Type: models.EventExecutionStarted, AgentID: "agent-1"})
	n.Publish(models.Event{Type: models.EventExecutionStarted, AgentID: "agent-2"})

	for i := 0; i < 2; i++ {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("event %d never arrived", i)
		}
	}
}

func TestPerAgentEmissionOrderPreserved(t *testing.T) {
	n := newStartedNotifier(t, DefaultNotifierConfig())
	ch := n.Subscribe("agent-1")

	const count = 50
	for i := 0; i < count; i++ {
		n.Publish(models.Event{
			Type:      models.EventExecutionStarted,
			AgentID:   "agent-1",
			SessionID: fmt.Sprintf("s%d", i),
		})
	}

	for i := 0; i < count; i++ {
		select {
		case event := <-ch:
			if want := fmt.Sprintf("s%d", i); event.SessionID != want {
				t.Fatalf("event %d out of order: got %s, want %s", i, event.SessionID, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("event %d never arrived", i)
		}
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	// A tiny buffer and no running broadcast loop: publishes past the
	// buffer must return immediately and count as dropped.
	n := NewNotifierWithConfig(NotifierConfig{BufferSize: 1, SubscriberBufferSize: 1})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			n.Publish(models.Event{Type: models.EventExecutionStarted, AgentID: "agent-1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked")
	}

	if m := n.Metrics(); m.EventsDropped == 0 {
		t.Errorf("expected dropped events, metrics: %+v", m)
	}
}

func TestSlowSubscriberDoesNotStallOthers(t *testing.T) {
	n := newStartedNotifier(t, NotifierConfig{BufferSize: 100, SubscriberBufferSize: 1})

	slow := n.Subscribe("agent-1")
	fast := n.Subscribe("agent-1")
	_ = slow // never read

	const count = 10
	for i := 0; i < count; i++ {
		n.Publish(models.Event{
			Type:      models.EventExecutionStarted,
			AgentID:   "agent-1",
			SessionID: fmt.Sprintf("s%d", i),
		})
		// Drain the fast subscriber so its buffer never fills.
		select {
		case <-fast:
		case <-time.After(time.Second):
			t.Fatalf("fast subscriber starved at event %d", i)
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	n := newStartedNotifier(t, DefaultNotifierConfig())
	ch := n.Subscribe("agent-1")
	n.Unsubscribe("agent-1", ch)

	if _, ok := <-ch; ok {
		t.Errorf("channel should be closed after unsubscribe")
	}
	if n.SubscriberCount("agent-1") != 0 {
		t.Errorf("subscriber count = %d, want 0", n.SubscriberCount("agent-1"))
	}
}

func TestStopClosesAllSubscribers(t *testing.T) {
	n := NewNotifierWithConfig(DefaultNotifierConfig())
	n.Start(context.Background())

	ch1 := n.Subscribe("agent-1")
	ch2 := n.SubscribeAll()
	n.Stop()

	if _, ok := <-ch1; ok {
		t.Errorf("agent channel should be closed after Stop")
	}
	if _, ok := <-ch2; ok {
		t.Errorf("wildcard channel should be closed after Stop")
	}
	if n.IsStarted() {
		t.Errorf("notifier still reports started")
	}
}

package pubsub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/guilhermegouw/storyloom/internal/events"
)

func turn(sessionID string, n int) events.RunEvent {
	return events.NewRunTurnEvent(sessionID, "task-"+sessionID, "story", "Nova", n, 4, n*10)
}

func TestBrokerSubscribePublish(t *testing.T) {
	t.Run("every subscriber receives the turn", func(t *testing.T) {
		broker := NewBroker[events.RunEvent]("run")
		defer broker.Shutdown()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		cli := broker.Subscribe(ctx)
		recorder := broker.Subscribe(ctx)

		broker.Publish(EventProgress, turn("s1", 2))

		for name, sub := range map[string]<-chan Event[events.RunEvent]{"cli": cli, "recorder": recorder} {
			select {
			case event := <-sub:
				if event.Type != EventProgress || event.Payload.Turn != 2 || event.Payload.Words != 20 {
					t.Errorf("%s: unexpected event %+v", name, event)
				}
			case <-time.After(100 * time.Millisecond):
				t.Errorf("%s: timeout waiting for event", name)
			}
		}
	})

	t.Run("cancelled context unsubscribes", func(t *testing.T) {
		broker := NewBroker[events.SessionEvent]("session")
		defer broker.Shutdown()

		ctx, cancel := context.WithCancel(context.Background())
		ch := broker.Subscribe(ctx)
		if broker.SubscriberCount() != 1 {
			t.Fatalf("expected 1 subscriber, got %d", broker.SubscriberCount())
		}

		cancel()
		time.Sleep(50 * time.Millisecond)

		if broker.SubscriberCount() != 0 {
			t.Errorf("expected 0 subscribers after cancel, got %d", broker.SubscriberCount())
		}
		if _, ok := <-ch; ok {
			t.Error("expected channel to be closed")
		}
	})

	t.Run("shutdown closes subscriptions and ignores later calls", func(t *testing.T) {
		broker := NewBroker[events.SanitizeEvent]("sanitize")
		sub := broker.Subscribe(context.Background())

		broker.Shutdown()
		if _, ok := <-sub; ok {
			t.Error("subscription should be closed")
		}

		broker.Publish(EventCompleted, events.NewSanitizeEvent("s1", "sanitizer-balanced", 10, 8, true, nil))
		if _, ok := <-broker.Subscribe(context.Background()); ok {
			t.Error("subscribing after shutdown should return a closed channel")
		}
	})
}

func TestBrokerConcurrentRuns(t *testing.T) {
	broker := NewBroker[events.RunEvent]("run", WithBufferSize[events.RunEvent](256))
	defer broker.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const subscribers = 4
	const runs = 8
	const turns = 10

	var wg sync.WaitGroup
	received := make([]int, subscribers)
	for i := 0; i < subscribers; i++ {
		sub := broker.Subscribe(ctx)
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for range sub {
				received[idx]++
			}
		}(i)
	}

	var pub sync.WaitGroup
	for r := 0; r < runs; r++ {
		pub.Add(1)
		go func(r int) {
			defer pub.Done()
			id := string(rune('a' + r))
			for n := 1; n <= turns; n++ {
				broker.Publish(EventProgress, turn(id, n))
			}
		}(r)
	}
	pub.Wait()

	time.Sleep(50 * time.Millisecond)
	cancel()
	wg.Wait()

	for i, count := range received {
		if count != runs*turns {
			t.Errorf("subscriber %d received %d events, want %d", i, count, runs*turns)
		}
	}
}

func TestBrokerMetrics(t *testing.T) {
	broker := NewBroker[events.SessionEvent]("session")
	defer broker.Shutdown()

	ctx := context.Background()
	_ = broker.Subscribe(ctx)
	_ = broker.Subscribe(ctx)

	broker.Publish(EventCreated, events.NewSessionCreatedEvent("s1", "Story Session - Nova", "story", []string{"Nova"}))
	broker.Publish(EventDeleted, events.NewSessionDeletedEvent("s1"))

	metrics := broker.Metrics()
	if metrics.Name != "session" {
		t.Errorf("expected name 'session', got %q", metrics.Name)
	}
	if metrics.SubscriberCount != 2 {
		t.Errorf("expected 2 subscribers, got %d", metrics.SubscriberCount)
	}
	if metrics.PublishCount != 2 {
		t.Errorf("expected 2 publishes, got %d", metrics.PublishCount)
	}
}

func TestBrokerOptions(t *testing.T) {
	t.Run("slow subscriber drops overflow", func(t *testing.T) {
		broker := NewBroker[events.RunEvent]("run", WithBufferSize[events.RunEvent](2))
		defer broker.Shutdown()

		ch := broker.Subscribe(context.Background())
		for n := 1; n <= 3; n++ {
			broker.Publish(EventProgress, turn("s1", n))
		}

		if got := broker.Metrics().DropCount; got != 1 {
			t.Errorf("DropCount = %d, want 1", got)
		}
		if e := <-ch; e.Payload.Turn != 1 {
			t.Errorf("expected turn 1, got %d", e.Payload.Turn)
		}
		if e := <-ch; e.Payload.Turn != 2 {
			t.Errorf("expected turn 2, got %d", e.Payload.Turn)
		}
	})

	t.Run("blocking publish waits for the subscriber", func(t *testing.T) {
		broker := NewBroker[events.RunEvent]("run",
			WithBufferSize[events.RunEvent](1),
			WithDropPolicy[events.RunEvent](false),
		)
		defer broker.Shutdown()

		ch := broker.Subscribe(context.Background())
		broker.Publish(EventProgress, turn("s1", 1))

		done := make(chan struct{})
		go func() {
			broker.Publish(EventProgress, turn("s1", 2))
			close(done)
		}()

		select {
		case <-done:
			t.Error("publish should have blocked")
		case <-time.After(50 * time.Millisecond):
		}

		<-ch
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
			t.Error("publish should have completed")
		}
	})
}

func TestBrokerPublishAsync(t *testing.T) {
	broker := NewBroker[events.RunEvent]("run")
	defer broker.Shutdown()

	ch := broker.Subscribe(context.Background())
	broker.PublishAsync(EventStarted, events.NewRunStartedEvent("s1", "t1", "chat"))

	select {
	case event := <-ch:
		if event.Payload.Type != events.RunEventStarted {
			t.Errorf("expected started event, got %q", event.Payload.Type)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for async event")
	}
}

func TestBrokerIsShutdown(t *testing.T) {
	broker := NewBroker[events.RunEvent]("run")
	if broker.IsShutdown() {
		t.Error("broker should not be shut down initially")
	}

	broker.Shutdown()
	broker.Shutdown()
	if !broker.IsShutdown() {
		t.Error("broker should be shut down after Shutdown()")
	}
}

func TestBrokerSubscribeFiltered(t *testing.T) {
	broker := NewBroker[events.RunEvent]("run")
	defer broker.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := broker.SubscribeFiltered(ctx, func(ev events.RunEvent) bool {
		return ev.SessionID == "s1"
	})

	broker.Publish(EventProgress, events.NewRunTurnEvent("s2", "t2", "story", "Nova", 1, 3, 10))
	broker.Publish(EventProgress, events.NewRunTurnEvent("s1", "t1", "story", "Nova", 1, 3, 12))

	select {
	case event := <-ch:
		if event.Payload.SessionID != "s1" {
			t.Errorf("expected session s1, got %q", event.Payload.SessionID)
		}
		if event.Payload.Words != 12 {
			t.Errorf("expected 12 words, got %d", event.Payload.Words)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for filtered event")
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected filtered channel to close after cancel")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("filtered channel not closed after cancel")
	}
}

func TestBrokerPublishAfterUnsubscribe(t *testing.T) {
	broker := NewBroker[events.RunEvent]("run")
	defer broker.Shutdown()

	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		_ = broker.Subscribe(ctx)
		go cancel()
		broker.Publish(EventStarted, events.NewRunStartedEvent("s1", "t1", "chat"))
	}
}

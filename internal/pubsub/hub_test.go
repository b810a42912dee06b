package pubsub

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/guilhermegouw/storyloom/internal/events"
)

func TestNewHubRegistersBrokers(t *testing.T) {
	hub := NewHub()
	defer hub.Shutdown()

	want := []string{"run", "sanitize", "session"}
	got := hub.Registry().List()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("registry = %v, want %v", got, want)
	}

	metrics := hub.AllMetrics()
	if len(metrics) != 3 || metrics[0].Name != "session" || metrics[1].Name != "run" || metrics[2].Name != "sanitize" {
		t.Errorf("AllMetrics() = %+v", metrics)
	}
}

func TestHubShutdown(t *testing.T) {
	hub := NewHub()
	runs := hub.Run.Subscribe(context.Background())
	hub.Run.Publish(EventCompleted, events.NewRunCompletedEvent("s1", "t1", "story", 3))

	select {
	case <-hub.Done():
		t.Fatal("Done closed before Shutdown")
	default:
	}

	hub.Shutdown()
	hub.Shutdown()

	if !hub.IsShutdown() {
		t.Error("hub should report shutdown")
	}
	for _, m := range []member{hub.Session, hub.Run, hub.Sanitize} {
		if !m.IsShutdown() {
			t.Errorf("%s broker still open", m.Name())
		}
	}

	// A buffered completion survives shutdown so the recorder can drain it.
	event, ok := <-runs
	if !ok || event.Payload.Turn != 3 {
		t.Fatalf("expected buffered completion, got %+v (ok=%v)", event, ok)
	}
	if _, ok := <-runs; ok {
		t.Error("run subscription should be closed after draining")
	}
}

func TestHubDebugString(t *testing.T) {
	hub := NewHub()
	defer hub.Shutdown()

	_ = hub.Run.Subscribe(context.Background())
	hub.Run.Publish(EventProgress, events.NewRunTurnEvent("s", "t", "chat", "Nova", 1, 3, 5))
	hub.Run.Publish(EventProgress, events.NewRunTurnEvent("s", "t", "chat", "Orion", 2, 3, 5))

	got := hub.DebugString()
	if !strings.Contains(got, "run[subs=1 peak=1 published=2 dropped=0]") {
		t.Errorf("DebugString() = %q", got)
	}
}

func TestHubConcurrentRunsAndSubscribers(t *testing.T) {
	hub := NewHub()
	defer hub.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := hub.Run.SubscribeFiltered(ctx, func(ev events.RunEvent) bool { return ev.Kind == "story" })
			for j := 0; j < 3; j++ {
				select {
				case <-sub:
				case <-time.After(50 * time.Millisecond):
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 1; j <= 5; j++ {
				hub.Run.Publish(EventProgress, events.NewRunTurnEvent("s", "t", "story", "Nova", j, 5, 10))
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Error("concurrent runs timed out")
	}
}

func TestHubBrokerIntegration(t *testing.T) {
	hub := NewHub()
	defer hub.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionEvents := hub.Session.Subscribe(ctx)
	runEvents := hub.Run.Subscribe(ctx)
	sanitizeEvents := hub.Sanitize.Subscribe(ctx)

	hub.Session.Publish(EventCreated, events.NewSessionCreatedEvent("s", "Chat Session - Nova", "chat", []string{"Nova"}))
	hub.Run.Publish(EventFailed, events.NewRunFailedEvent("s", "t", 0, errors.New("boom")))
	hub.Sanitize.Publish(EventCompleted, events.NewSanitizeEvent("s", "sanitizer-balanced", 100, 90, true, nil))

	wait := func(name string, ch <-chan bool) {
		t.Helper()
		select {
		case ok := <-ch:
			if !ok {
				t.Errorf("%s event mismatch", name)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("timeout waiting for %s event", name)
		}
	}

	check := make(chan bool, 1)
	go func() { e := <-sessionEvents; check <- e.Payload.Title == "Chat Session - Nova" }()
	wait("session", check)
	go func() { e := <-runEvents; check <- e.Type == EventFailed && e.Payload.Error != nil }()
	wait("run", check)
	go func() { e := <-sanitizeEvents; check <- e.Payload.CleanedChars == 90 }()
	wait("sanitize", check)
}

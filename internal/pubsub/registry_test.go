package pubsub

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/guilhermegouw/storyloom/internal/events"
)

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	run := NewBroker[events.RunEvent]("run")
	defer run.Shutdown()

	r.Register("run", run)
	got, ok := r.Get("run")
	if !ok || got.Name() != "run" {
		t.Fatalf("Get(run) = %v, %v", got, ok)
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) should report false")
	}

	replacement := NewBroker[events.RunEvent]("run-v2")
	defer replacement.Shutdown()
	r.Register("run", replacement)
	if got, _ := r.Get("run"); got.Name() != "run-v2" {
		t.Errorf("expected replacement broker, got %q", got.Name())
	}
	if len(r.List()) != 1 {
		t.Errorf("expected 1 broker, got %v", r.List())
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	if names := r.List(); len(names) != 0 {
		t.Errorf("expected empty list, got %v", names)
	}

	r.Register("session", NewBroker[events.SessionEvent]("session"))
	r.Register("run", NewBroker[events.RunEvent]("run"))
	r.Register("sanitize", NewBroker[events.SanitizeEvent]("sanitize"))

	want := []string{"run", "sanitize", "session"}
	if got := r.List(); !slices.Equal(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
}

func TestRegistryAllMetrics(t *testing.T) {
	r := NewRegistry()
	run := NewBroker[events.RunEvent]("run")
	defer run.Shutdown()
	r.Register("run", run)

	_ = run.Subscribe(context.Background())
	run.Publish(EventProgress, events.NewRunTurnEvent("s1", "t1", "chat", "Nova", 1, 6, 4))

	m, ok := r.AllMetrics()["run"]
	if !ok {
		t.Fatal("missing run metrics")
	}
	if m.PublishCount != 1 || m.SubscriberCount != 1 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestRegistryDebugString(t *testing.T) {
	r := NewRegistry()
	if got := r.DebugString(); got != "" {
		t.Errorf("empty registry DebugString() = %q", got)
	}

	session := NewBroker[events.SessionEvent]("session")
	run := NewBroker[events.RunEvent]("run")
	defer run.Shutdown()
	r.Register("session", session)
	r.Register("run", run)
	session.Shutdown()

	got := r.DebugString()
	if !strings.HasPrefix(got, "run[subs=0") {
		t.Errorf("brokers should be sorted by name, got %q", got)
	}
	if !strings.Contains(got, "session[subs=0 peak=0 published=0 dropped=0 shutdown]") {
		t.Errorf("missing shutdown state, got %q", got)
	}
}

func TestRegistryConcurrency(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			name := fmt.Sprintf("run-%d", n)
			r.Register(name, NewBroker[events.RunEvent](name))
		}(i)
		go func() {
			defer wg.Done()
			_ = r.List()
			_ = r.DebugString()
		}()
	}
	wg.Wait()

	if got := len(r.List()); got != 20 {
		t.Errorf("expected 20 brokers, got %d", got)
	}
}

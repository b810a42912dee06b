//nolint:errorlint // Test files use direct error comparison.
package events

import (
	"errors"
	"testing"
)

func TestRunEventTypes(t *testing.T) {
	types := []RunEventType{
		RunEventStarted,
		RunEventTurn,
		RunEventCompleted,
		RunEventPaused,
		RunEventFailed,
	}

	seen := make(map[RunEventType]bool)
	for _, typ := range types {
		if seen[typ] {
			t.Errorf("duplicate event type: %s", typ)
		}
		seen[typ] = true
	}
}

func TestNewRunTurnEvent(t *testing.T) {
	event := NewRunTurnEvent("s1", "task-1", "chat", "Nova", 2, 3, 42)

	if event.Type != RunEventTurn {
		t.Errorf("expected Type RunEventTurn, got %q", event.Type)
	}
	if event.TaskID != "task-1" {
		t.Errorf("expected TaskID 'task-1', got %q", event.TaskID)
	}
	if event.Turn != 2 || event.Max != 3 {
		t.Errorf("expected turn 2 of 3, got %d of %d", event.Turn, event.Max)
	}
	if event.Speaker != "Nova" {
		t.Errorf("expected Speaker 'Nova', got %q", event.Speaker)
	}
	if event.Words != 42 {
		t.Errorf("expected 42 words, got %d", event.Words)
	}
}

func TestNewRunFailedEvent(t *testing.T) {
	cause := errors.New("provider unreachable")
	event := NewRunFailedEvent("s1", "task-1", 1, cause)

	if event.Type != RunEventFailed {
		t.Errorf("expected Type RunEventFailed, got %q", event.Type)
	}
	if event.Error != cause {
		t.Errorf("expected error %v, got %v", cause, event.Error)
	}
	if event.Turn != 1 {
		t.Errorf("expected Turn 1, got %d", event.Turn)
	}
}

func TestRunLifecycleEvents(t *testing.T) {
	started := NewRunStartedEvent("s1", "t1", "story")
	if started.Type != RunEventStarted || started.Kind != "story" {
		t.Errorf("unexpected started event: %+v", started)
	}

	completed := NewRunCompletedEvent("s1", "t1", "story", 4)
	if completed.Type != RunEventCompleted || completed.Turn != 4 {
		t.Errorf("unexpected completed event: %+v", completed)
	}

	paused := NewRunPausedEvent("s1", "t1", 2)
	if paused.Type != RunEventPaused || paused.Turn != 2 {
		t.Errorf("unexpected paused event: %+v", paused)
	}
}

func TestSanitizeEventRetention(t *testing.T) {
	tests := []struct {
		name     string
		original int
		cleaned  int
		want     float64
	}{
		{"half kept", 200, 100, 50},
		{"all kept", 80, 80, 100},
		{"empty original", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := NewSanitizeEvent("s1", "sanitizer-balanced", tt.original, tt.cleaned, true, nil)
			if got := event.Retention(); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

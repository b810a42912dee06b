// Package events defines domain-specific event types for the pub/sub system.
package events

import "time"

// SessionEventType represents session-specific event types.
type SessionEventType string

// Session event type constants.
const (
	SessionEventCreated SessionEventType = "created"
	SessionEventUpdated SessionEventType = "updated"
	SessionEventDeleted SessionEventType = "deleted"
	SessionEventPaused  SessionEventType = "paused"
	SessionEventResumed SessionEventType = "resumed"
)

// SessionEvent represents a session lifecycle event.
type SessionEvent struct { //nolint:govet // fieldalignment: preserving logical field order
	SessionID string
	Title     string
	Type      SessionEventType
	Timestamp time.Time

	// Optional fields
	Kind         string   // chat or story, for Created
	Participants []string // For Created
}

// NewSessionCreatedEvent creates a session created event.
func NewSessionCreatedEvent(id, title, kind string, participants []string) SessionEvent {
	return SessionEvent{
		SessionID:    id,
		Title:        title,
		Type:         SessionEventCreated,
		Kind:         kind,
		Participants: participants,
		Timestamp:    time.Now(),
	}
}

// NewSessionUpdatedEvent creates a session updated event.
func NewSessionUpdatedEvent(id, title string) SessionEvent {
	return SessionEvent{
		SessionID: id,
		Title:     title,
		Type:      SessionEventUpdated,
		Timestamp: time.Now(),
	}
}

// NewSessionDeletedEvent creates a session deleted event.
func NewSessionDeletedEvent(id string) SessionEvent {
	return SessionEvent{
		SessionID: id,
		Type:      SessionEventDeleted,
		Timestamp: time.Now(),
	}
}

// NewSessionPausedEvent creates a session paused event.
func NewSessionPausedEvent(id string) SessionEvent {
	return SessionEvent{
		SessionID: id,
		Type:      SessionEventPaused,
		Timestamp: time.Now(),
	}
}

// NewSessionResumedEvent creates a session resumed event.
func NewSessionResumedEvent(id string) SessionEvent {
	return SessionEvent{
		SessionID: id,
		Type:      SessionEventResumed,
		Timestamp: time.Now(),
	}
}

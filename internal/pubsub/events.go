// Package pubsub fans lifecycle events out to in-process subscribers.
package pubsub

import "time"

// EventType tags what happened to the payload.
type EventType string

// Event types shared by all brokers.
const (
	EventCreated   EventType = "created"
	EventUpdated   EventType = "updated"
	EventDeleted   EventType = "deleted"
	EventStarted   EventType = "started"
	EventProgress  EventType = "progress"
	EventPaused    EventType = "paused"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// Event wraps a payload with its type and publish time.
type Event[T any] struct { //nolint:govet // fieldalignment: preserving logical field order
	Type      EventType
	Payload   T
	Timestamp time.Time
}

package events

import "time"

// RunEventType represents generation run event types.
type RunEventType string

// Run event type constants.
const (
	RunEventStarted   RunEventType = "started"
	RunEventTurn      RunEventType = "turn"
	RunEventCompleted RunEventType = "completed"
	RunEventPaused    RunEventType = "paused"
	RunEventFailed    RunEventType = "failed"
)

// RunEvent reports the progress of a generation run or a single turn.
type RunEvent struct { //nolint:govet // fieldalignment: preserving logical field order
	SessionID string
	TaskID    string
	Type      RunEventType
	Timestamp time.Time

	// Payload fields
	Kind    string // chat or story
	Turn    int    // Turns completed so far
	Max     int    // Turn limit, 0 when unlimited
	Speaker string // For Turn
	Words   int    // Words in the generated text, for Turn
	Error   error  // For Failed
}

// NewRunStartedEvent creates a run started event.
func NewRunStartedEvent(sessionID, taskID, kind string) RunEvent {
	return RunEvent{
		SessionID: sessionID,
		TaskID:    taskID,
		Type:      RunEventStarted,
		Kind:      kind,
		Timestamp: time.Now(),
	}
}

// NewRunTurnEvent creates an event for one persisted turn.
func NewRunTurnEvent(sessionID, taskID, kind, speaker string, turn, maxTurns, words int) RunEvent {
	return RunEvent{
		SessionID: sessionID,
		TaskID:    taskID,
		Type:      RunEventTurn,
		Kind:      kind,
		Turn:      turn,
		Max:       maxTurns,
		Speaker:   speaker,
		Words:     words,
		Timestamp: time.Now(),
	}
}

// NewRunCompletedEvent creates a run completed event.
func NewRunCompletedEvent(sessionID, taskID, kind string, turn int) RunEvent {
	return RunEvent{
		SessionID: sessionID,
		TaskID:    taskID,
		Type:      RunEventCompleted,
		Kind:      kind,
		Turn:      turn,
		Timestamp: time.Now(),
	}
}

// NewRunPausedEvent creates an event for a run stopped by a pause.
func NewRunPausedEvent(sessionID, taskID string, turn int) RunEvent {
	return RunEvent{
		SessionID: sessionID,
		TaskID:    taskID,
		Type:      RunEventPaused,
		Turn:      turn,
		Timestamp: time.Now(),
	}
}

// NewRunFailedEvent creates a run failed event.
func NewRunFailedEvent(sessionID, taskID string, turn int, err error) RunEvent {
	return RunEvent{
		SessionID: sessionID,
		TaskID:    taskID,
		Type:      RunEventFailed,
		Turn:      turn,
		Error:     err,
		Timestamp: time.Now(),
	}
}

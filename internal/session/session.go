// Package session provides the versioned session document and its
// persistence.
package session

import (
	"slices"
	"strings"
	"time"

	"github.com/guilhermegouw/storyloom/internal/character"
)

// SchemaVersion is the document version written by this package.
const SchemaVersion = 2

// Unlimited is the limit sentinel for sessions that never complete.
const Unlimited = 999

// Default limits applied at creation.
const (
	DefaultTurns = 6
	DefaultParts = 4
)

// Type is the kind of session.
type Type string

// Session types.
const (
	TypeChat  Type = "chat"
	TypeStory Type = "story"
)

// ChatMode distinguishes user-driven chat from character-to-character chat.
type ChatMode string

// Chat modes.
const (
	ModeSingle ChatMode = "single"
	ModeMulti  ChatMode = "multi"
)

// Status is the lifecycle state of a session.
type Status string

// Session statuses.
const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// MessageKind tags who produced a message.
type MessageKind string

// Message kinds.
const (
	KindSystem MessageKind = "system"
	KindUser   MessageKind = "user"
	KindAI     MessageKind = "ai"
)

// Participant is a character taking part in a session.
type Participant struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Data character.Sheet `json:"data"`
}

// Message is one entry of the transcript.
type Message struct {
	ID        string      `json:"id,omitempty"`
	Kind      MessageKind `json:"kind"`
	Speaker   string      `json:"speaker,omitempty"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
	Sanitized bool        `json:"sanitized,omitempty"`
}

// Session is the persisted session document.
//
//nolint:govet // Field order mirrors the document layout.
type Session struct {
	SchemaVersion int           `json:"schema_version"`
	ID            string        `json:"id"`
	Type          Type          `json:"type"`
	ChatMode      ChatMode      `json:"chatMode,omitempty"`
	Title         string        `json:"title"`
	Participants  []Participant `json:"participants"`
	Scenario      string        `json:"scenario"`
	Setting       string        `json:"setting"`
	Turns         *int          `json:"turns,omitempty"`
	Parts         *int          `json:"parts,omitempty"`
	Status        Status        `json:"status"`
	Paused        bool          `json:"paused"`
	PausedAt      *time.Time    `json:"paused_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Messages      []Message     `json:"messages"`
	IsCompleted   bool          `json:"is_completed"`
}

// IsMulti reports whether the session is a multi-character chat.
func (s *Session) IsMulti() bool {
	return s.Type == TypeChat && s.ChatMode == ModeMulti
}

// TurnCount returns the number of ai messages.
func (s *Session) TurnCount() int {
	n := 0
	for _, m := range s.Messages {
		if m.Kind == KindAI {
			n++
		}
	}
	return n
}

// AIContents returns the content of every ai message in order.
func (s *Session) AIContents() []string {
	out := make([]string, 0, len(s.Messages))
	for _, m := range s.Messages {
		if m.Kind == KindAI {
			out = append(out, m.Content)
		}
	}
	return out
}

// Transcript joins the ai contents with blank lines.
func (s *Session) Transcript() string {
	return strings.Join(s.AIContents(), "\n\n")
}

// ParticipantNames returns the participant names in order.
func (s *Session) ParticipantNames() []string {
	names := make([]string, len(s.Participants))
	for i, p := range s.Participants {
		names[i] = p.Name
	}
	return names
}

// Clone returns a deep copy of the mutable parts of the document.
func (s *Session) Clone() *Session {
	c := *s
	c.Participants = slices.Clone(s.Participants)
	c.Messages = slices.Clone(s.Messages)
	if s.Turns != nil {
		v := *s.Turns
		c.Turns = &v
	}
	if s.Parts != nil {
		v := *s.Parts
		c.Parts = &v
	}
	if s.PausedAt != nil {
		v := *s.PausedAt
		c.PausedAt = &v
	}
	return &c
}

// Summary is the listing view of a session.
type Summary struct {
	ID        string
	Type      Type
	Status    Status
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Summarize returns the listing view of s.
func (s *Session) Summarize() Summary {
	return Summary{
		ID:        s.ID,
		Type:      s.Type,
		Status:    s.Status,
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

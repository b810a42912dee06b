// Package scheduler decides who speaks next, when a session is complete and
// how its turns are driven.
package scheduler

import (
	"github.com/guilhermegouw/storyloom/internal/apperr"
	"github.com/guilhermegouw/storyloom/internal/session"
)

// Plan is how a session's turns are driven.
type Plan int

// Run plans.
const (
	// PlanManual waits for an external trigger; one turn per call.
	PlanManual Plan = iota
	// PlanAutoRun generates every remaining turn in the background.
	PlanAutoRun
	// PlanOpeningOnly generates a single opening turn in the background.
	PlanOpeningOnly
)

func (p Plan) String() string {
	switch p {
	case PlanAutoRun:
		return "auto-run"
	case PlanOpeningOnly:
		return "opening-only"
	default:
		return "manual"
	}
}

// Progress is the turn count and limit of a session. Max is nil when the
// session is unlimited.
type Progress struct {
	Current int  `json:"current"`
	Max     *int `json:"max"`
}

// Limit returns the turn limit of s and whether it is bounded. Chat
// sessions without a limit use the default; story sessions without one
// are unlimited.
func Limit(s *session.Session) (int, bool) {
	var l *int
	if s.Type == session.TypeStory {
		l = s.Parts
		if l == nil {
			return 0, false
		}
	} else {
		l = s.Turns
		if l == nil {
			return session.DefaultTurns, true
		}
	}
	if *l == session.Unlimited {
		return 0, false
	}
	return *l, true
}

// IsComplete reports whether s has reached its limit.
func IsComplete(s *session.Session) bool {
	limit, bounded := Limit(s)
	return bounded && s.TurnCount() >= limit
}

// ProgressOf returns the progress of s.
func ProgressOf(s *session.Session) Progress {
	p := Progress{Current: s.TurnCount()}
	if limit, bounded := Limit(s); bounded {
		p.Max = &limit
	}
	return p
}

// NextSpeaker returns the index of the participant speaking the next turn.
func NextSpeaker(s *session.Session) (int, error) {
	n := len(s.Participants)
	if n == 0 {
		return 0, apperr.Validation("scheduler.NextSpeaker", "session %s has no participants", s.ID)
	}
	return s.TurnCount() % n, nil
}

// PlanFor returns the run plan of s.
func PlanFor(s *session.Session) Plan {
	if s.Type == session.TypeChat && s.ChatMode != session.ModeMulti {
		return PlanManual
	}
	if _, bounded := Limit(s); bounded {
		return PlanAutoRun
	}
	return PlanOpeningOnly
}

// ValidateLimit checks a requested limit: nil, the sentinel or at least one.
func ValidateLimit(field string, l *int) error {
	if l == nil || *l == session.Unlimited || *l >= 1 {
		return nil
	}
	return apperr.Validation("scheduler.ValidateLimit", "%s must be at least 1 or %d for unlimited, got %d", field, session.Unlimited, *l)
}

package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/guilhermegouw/storyloom/internal/apperr"
	"github.com/guilhermegouw/storyloom/internal/events"
	"github.com/guilhermegouw/storyloom/internal/provider"
	"github.com/guilhermegouw/storyloom/internal/pubsub"
	"github.com/guilhermegouw/storyloom/internal/runner"
	"github.com/guilhermegouw/storyloom/internal/scheduler"
	"github.com/guilhermegouw/storyloom/internal/session"
)

// ErrStaleTurn rejects a turn generated from a document that another
// writer has since advanced or completed.
var ErrStaleTurn error = apperr.Conflict("engine.checkpoint", "session changed while the turn was generated")

// Result is the outcome of Generate.
//
//nolint:govet // fieldalignment: preserving logical field order
type Result struct {
	Response  string
	Speaker   string
	Completed bool
	Paused    bool
	Degraded  bool // Response is a fallback and nothing was stored
	Progress  scheduler.Progress
	Task      *runner.Task // Set when the call scheduled a background run
}

// Generate produces the next turn of a session. input is the user message
// for chats or the steering direction for stories.
//
// A paused session yields a Paused result with ErrSessionPaused. A
// completed session yields a Completed result and no new message. A
// bounded story without input schedules a run for its remaining parts.
// A provider failure yields a Degraded result carrying fallback text.
func (e *Engine) Generate(ctx context.Context, id, input string) (*Result, error) {
	sess, err := e.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if res, err := stateResult(sess); res != nil {
		return res, err
	}

	release, err := e.sessions.AcquireWriter(ctx, id)
	if err != nil {
		return nil, err
	}

	// Re-read under the writer slot; a run may have finished meanwhile.
	sess, err = e.sessions.Get(ctx, id)
	if err != nil {
		release()
		return nil, err
	}
	if res, err := stateResult(sess); res != nil {
		release()
		return res, err
	}

	input = strings.TrimSpace(input)
	if _, bounded := scheduler.Limit(sess); sess.Type == session.TypeStory && bounded && input == "" {
		task, err := e.submitRun(sess, scheduler.PlanAutoRun, release)
		if err != nil {
			return nil, err
		}
		return &Result{Task: task, Progress: scheduler.ProgressOf(sess)}, nil
	}

	defer release()
	return e.syncTurn(ctx, sess, input)
}

func stateResult(s *session.Session) (*Result, error) {
	switch {
	case isDone(s):
		return &Result{Completed: true, Progress: scheduler.ProgressOf(s)}, nil
	case s.Paused:
		return &Result{Paused: true, Progress: scheduler.ProgressOf(s)}, session.ErrSessionPaused
	default:
		return nil, nil
	}
}

func (e *Engine) syncTurn(ctx context.Context, sess *session.Session, input string) (*Result, error) {
	text, speaker, err := e.generateTurn(ctx, sess, input)
	if errors.Is(err, apperr.ErrProvider) {
		e.logger.Warn("turn degraded", "session", sess.ID, "speaker", speaker, "error", err)
		return &Result{
			Response: fallbackFor(sess.Type),
			Speaker:  speaker,
			Degraded: true,
			Progress: scheduler.ProgressOf(sess),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	updated, err := e.checkpoint(ctx, sess.ID, sess.TurnCount(), input, speaker, text)
	if err != nil {
		return nil, err
	}
	e.publishTurn(updated, "", speaker, text)

	return &Result{
		Response:  text,
		Speaker:   speaker,
		Completed: isDone(updated),
		Progress:  scheduler.ProgressOf(updated),
	}, nil
}

// generateTurn calls the provider for the next turn of sess and returns
// the reply and its speaker. Provider failures are apperr.KindProvider.
func (e *Engine) generateTurn(ctx context.Context, sess *session.Session, input string) (string, string, error) {
	idx, err := scheduler.NextSpeaker(sess)
	if err != nil {
		return "", "", err
	}
	speaker := sess.Participants[idx]

	text, err := e.gen.Generate(ctx, buildRequest(sess, speaker, input))
	text = strings.TrimSpace(text)
	if err == nil && text == "" {
		err = provider.ErrEmptyResponse
	}
	if err != nil {
		return "", speaker.Name, apperr.Provider("engine.generateTurn", err)
	}

	if sess.IsMulti() {
		text = normalizeSpeaker(speaker.Name, text)
	}
	return text, speaker.Name, nil
}

// checkpoint appends the turn to the stored document and marks it
// completed when the limit is reached, in a single write. base is the
// turn count the turn was generated from; the write fails with
// ErrStaleTurn when the stored document no longer matches it.
func (e *Engine) checkpoint(ctx context.Context, id string, base int, input, speaker, text string) (*session.Session, error) {
	return e.sessions.Update(ctx, id, func(s *session.Session) error {
		if isDone(s) || s.TurnCount() != base {
			return ErrStaleTurn
		}
		if input != "" {
			s.Messages = append(s.Messages, e.newMessage(session.KindUser, "", input))
		}
		s.Messages = append(s.Messages, e.newMessage(session.KindAI, speaker, text))
		if scheduler.IsComplete(s) {
			// A pause that raced the final turn has nothing left to hold.
			s.Status = session.StatusCompleted
			s.IsCompleted = true
			s.Paused = false
			s.PausedAt = nil
		}
		return nil
	})
}

// publishTurn reports a stored turn, and the completion it caused.
func (e *Engine) publishTurn(s *session.Session, taskID, speaker, text string) {
	progress := scheduler.ProgressOf(s)
	limit := 0
	if progress.Max != nil {
		limit = *progress.Max
	}
	kind := string(s.Type)
	e.publishRun(pubsub.EventProgress,
		events.NewRunTurnEvent(s.ID, taskID, kind, speaker, progress.Current, limit, len(strings.Fields(text))))
	e.publishUpdated(s)
	if s.IsCompleted {
		e.publishRun(pubsub.EventCompleted, events.NewRunCompletedEvent(s.ID, taskID, kind, progress.Current))
	}
}

package engine

import (
	"context"

	"github.com/guilhermegouw/storyloom/internal/apperr"
	"github.com/guilhermegouw/storyloom/internal/events"
	"github.com/guilhermegouw/storyloom/internal/preset"
	"github.com/guilhermegouw/storyloom/internal/pubsub"
	"github.com/guilhermegouw/storyloom/internal/session"
)

// SanitizeResult is the outcome of Sanitize. Applied is false when the
// clean pass failed and the original text was kept; Err then holds the
// provider failure.
//
//nolint:govet // fieldalignment: preserving logical field order
type SanitizeResult struct {
	Session       *session.Session
	Preset        string
	Applied       bool
	OriginalChars int
	CleanedChars  int
	Err           error
}

// Sanitize cleans the transcript of a story session with the named preset
// and replaces all its messages with the single result. The replacement
// happens even when the clean pass falls back to the original text.
func (e *Engine) Sanitize(ctx context.Context, id, presetName string) (*SanitizeResult, error) {
	const op = "engine.Sanitize"

	if presetName == "" {
		presetName = preset.DefaultSanitizer
	}

	sess, err := e.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkSanitizable(op, sess); err != nil {
		return nil, err
	}
	p, err := e.presets.Resolve(ctx, presetName)
	if err != nil {
		return nil, err
	}

	release, err := e.sessions.AcquireWriter(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err = e.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkSanitizable(op, sess); err != nil {
		return nil, err
	}

	story := sess.Transcript()
	res := e.sanitizer.Clean(ctx, story, p)

	updated, err := e.sessions.Update(ctx, id, func(s *session.Session) error {
		msg := e.newMessage(session.KindAI, "", res.Text)
		msg.Sanitized = true
		s.Messages = []session.Message{msg}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := &SanitizeResult{
		Session:       updated,
		Preset:        p.Name,
		Applied:       res.Applied,
		OriginalChars: len(story),
		CleanedChars:  len(res.Text),
		Err:           res.Err,
	}
	e.logger.Info("session sanitized", "session", id, "preset", p.Name, "applied", res.Applied,
		"original", out.OriginalChars, "cleaned", out.CleanedChars)

	if e.hub != nil {
		e.hub.Sanitize.Publish(pubsub.EventCompleted,
			events.NewSanitizeEvent(id, p.Name, out.OriginalChars, out.CleanedChars, res.Applied, res.Err))
	}
	e.publishUpdated(updated)
	return out, nil
}

func checkSanitizable(op string, s *session.Session) error {
	if s.Type != session.TypeStory {
		return apperr.Validation(op, "only story sessions can be sanitized, session %s is a %s", s.ID, s.Type)
	}
	if s.TurnCount() == 0 {
		return apperr.Validation(op, "session %s has no story content", s.ID)
	}
	return nil
}

// Package engine drives session generation: creation, synchronous turns,
// background auto-runs and story sanitization.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/guilhermegouw/storyloom/internal/apperr"
	"github.com/guilhermegouw/storyloom/internal/character"
	"github.com/guilhermegouw/storyloom/internal/events"
	"github.com/guilhermegouw/storyloom/internal/preset"
	"github.com/guilhermegouw/storyloom/internal/provider"
	"github.com/guilhermegouw/storyloom/internal/pubsub"
	"github.com/guilhermegouw/storyloom/internal/runner"
	"github.com/guilhermegouw/storyloom/internal/sanitizer"
	"github.com/guilhermegouw/storyloom/internal/scheduler"
	"github.com/guilhermegouw/storyloom/internal/session"
)

// Options configures an Engine. Sessions, Characters, Generator and Runner
// are required.
type Options struct {
	Sessions   *session.Service
	Characters character.Resolver
	Presets    preset.Resolver
	Generator  provider.Generator
	Runner     *runner.Runner
	Hub        *pubsub.Hub // Optional; run and sanitize events are dropped without it
	Logger     *slog.Logger
}

// Engine coordinates sessions, the generator and the background runner.
type Engine struct {
	sessions   *session.Service
	characters character.Resolver
	presets    preset.Resolver
	gen        provider.Generator
	sanitizer  *sanitizer.Sanitizer
	runner     *runner.Runner
	hub        *pubsub.Hub
	logger     *slog.Logger
	now        func() time.Time
}

// New creates an engine.
func New(opts Options) (*Engine, error) {
	switch {
	case opts.Sessions == nil:
		return nil, errors.New("engine: session service is required")
	case opts.Characters == nil:
		return nil, errors.New("engine: character resolver is required")
	case opts.Generator == nil:
		return nil, errors.New("engine: generator is required")
	case opts.Runner == nil:
		return nil, errors.New("engine: runner is required")
	}
	if opts.Presets == nil {
		opts.Presets = preset.NewDirResolver("")
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		sessions:   opts.Sessions,
		characters: opts.Characters,
		presets:    opts.Presets,
		gen:        opts.Generator,
		sanitizer:  sanitizer.New(opts.Generator, opts.Logger.With("component", "sanitizer")),
		runner:     opts.Runner,
		hub:        opts.Hub,
		logger:     opts.Logger,
		now:        time.Now,
	}, nil
}

// ParticipantRef names a character to add to a session. Name overrides
// the character's own name and Preset, when set, replaces its model
// settings.
type ParticipantRef struct {
	ID     string
	Name   string
	Preset string
}

// ParseParticipantRef parses "id" or "id:preset".
func ParseParticipantRef(s string) ParticipantRef {
	id, p, _ := strings.Cut(s, ":")
	return ParticipantRef{ID: strings.TrimSpace(id), Preset: strings.TrimSpace(p)}
}

// CreateRequest describes a new session.
type CreateRequest struct {
	Type         session.Type
	ChatMode     session.ChatMode
	Participants []ParticipantRef
	Scenario     string
	Setting      string
	// Turns and Parts default to session.DefaultTurns and
	// session.DefaultParts when nil. Pass session.Unlimited for a session
	// that never completes.
	Turns *int
	Parts *int
}

func (r *CreateRequest) normalize() error {
	const op = "engine.Create"

	if len(r.Participants) == 0 {
		return apperr.Validation(op, "at least one participant is required")
	}
	switch r.Type {
	case session.TypeChat:
		if r.ChatMode == "" {
			r.ChatMode = session.ModeSingle
		}
		if r.ChatMode != session.ModeSingle && r.ChatMode != session.ModeMulti {
			return apperr.Validation(op, "invalid chat mode %q", r.ChatMode)
		}
		if r.ChatMode == session.ModeMulti && len(r.Participants) < 2 {
			return apperr.Validation(op, "multi-character chat needs at least 2 participants, got %d", len(r.Participants))
		}
		if err := scheduler.ValidateLimit("turns", r.Turns); err != nil {
			return err
		}
		if r.Turns == nil {
			r.Turns = intPtr(session.DefaultTurns)
		}
		r.Parts = nil
	case session.TypeStory:
		if err := scheduler.ValidateLimit("parts", r.Parts); err != nil {
			return err
		}
		if r.Parts == nil {
			r.Parts = intPtr(session.DefaultParts)
		}
		r.ChatMode = ""
		r.Turns = nil
	default:
		return apperr.Validation(op, "invalid session type %q", r.Type)
	}
	for _, p := range r.Participants {
		if p.ID == "" {
			return apperr.Validation(op, "participant id is required")
		}
	}
	return nil
}

// Created is the outcome of Create. Task is set when a background run
// was scheduled.
type Created struct {
	Session *session.Session
	Task    *runner.Task
}

// Create validates req, writes the new session and schedules its first
// generation according to its run plan.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*Created, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	participants, err := e.resolveParticipants(ctx, req.Participants)
	if err != nil {
		return nil, err
	}

	sess := &session.Session{
		Type:         req.Type,
		ChatMode:     req.ChatMode,
		Participants: participants,
		Scenario:     req.Scenario,
		Setting:      req.Setting,
		Turns:        req.Turns,
		Parts:        req.Parts,
		Messages:     []session.Message{},
	}
	sess.Title = titleFor(sess)
	if sess.IsMulti() {
		sess.Messages = append(sess.Messages, e.newMessage(session.KindSystem, "",
			"Multi-character conversation started between "+strings.Join(sess.ParticipantNames(), ", ")))
	}

	if err := e.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}

	out := &Created{Session: sess}
	plan := scheduler.PlanFor(sess)
	if plan == scheduler.PlanManual {
		if opened := e.openChat(ctx, sess); opened != nil {
			out.Session = opened
		}
		return out, nil
	}

	task, err := e.startRun(ctx, sess, plan)
	if err != nil {
		return out, err
	}
	out.Task = task
	return out, nil
}

func (e *Engine) resolveParticipants(ctx context.Context, refs []ParticipantRef) ([]session.Participant, error) {
	out := make([]session.Participant, 0, len(refs))
	for _, ref := range refs {
		sheet, err := e.characters.Resolve(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		data := *sheet
		if ref.Preset != "" {
			p, err := e.presets.Resolve(ctx, ref.Preset)
			if err != nil {
				return nil, err
			}
			data = preset.Apply(data, p)
		}
		name := ref.Name
		if name == "" {
			name = data.Name
		}
		out = append(out, session.Participant{ID: ref.ID, Name: name, Data: data})
	}
	return out, nil
}

func titleFor(s *session.Session) string {
	names := s.ParticipantNames()
	switch {
	case s.Type == session.TypeStory:
		return "Story Session - " + strings.Join(names, ", ")
	case s.IsMulti():
		return "Multi-Character Chat - " + strings.Join(names, ", ")
	default:
		return "Chat Session - " + strings.Join(names, ", ")
	}
}

// openChat generates the greeting of a single chat and stores it as a
// system message. Failures are logged and leave the session as is.
func (e *Engine) openChat(ctx context.Context, sess *session.Session) *session.Session {
	release, err := e.sessions.AcquireWriter(ctx, sess.ID)
	if err != nil {
		return nil
	}
	defer release()

	speaker := sess.Participants[0]
	sheet := speaker.Data.WithDefaults()
	req := sheetRequest(sheet, sheet.SystemPrompt(speaker.Name), []provider.Message{
		{Role: provider.RoleUser, Content: chatOpeningPrompt(sess, speaker)},
	})

	text, err := e.gen.Generate(ctx, req)
	text = strings.TrimSpace(text)
	if err == nil && text == "" {
		err = provider.ErrEmptyResponse
	}
	if err != nil {
		e.logger.Warn("chat opening failed", "session", sess.ID, "speaker", speaker.Name, "error", err)
		return nil
	}

	opened, err := e.sessions.Update(ctx, sess.ID, func(s *session.Session) error {
		s.Messages = append(s.Messages, e.newMessage(session.KindSystem, speaker.Name, text))
		return nil
	})
	if err != nil {
		e.logger.Warn("storing chat opening failed", "session", sess.ID, "error", err)
		return nil
	}
	return opened
}

// Get returns a session.
func (e *Engine) Get(ctx context.Context, id string) (*session.Session, error) {
	return e.sessions.Get(ctx, id)
}

// List returns session summaries, newest first.
func (e *Engine) List(ctx context.Context) ([]session.Summary, error) {
	return e.sessions.List(ctx)
}

// Delete removes a session. A run in progress stops at its next turn.
func (e *Engine) Delete(ctx context.Context, id string) error {
	return e.sessions.Delete(ctx, id)
}

// Pause stops further turns of a session. A turn already in flight is
// still stored.
func (e *Engine) Pause(ctx context.Context, id string) (*session.Session, error) {
	return e.sessions.Pause(ctx, id)
}

// Resume clears the pause of a session. Sessions driven by background
// runs get a new run for their remaining turns; the returned task is nil
// otherwise.
func (e *Engine) Resume(ctx context.Context, id string) (*session.Session, *runner.Task, error) {
	sess, err := e.sessions.Resume(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	plan := scheduler.PlanFor(sess)
	switch {
	case isDone(sess), plan == scheduler.PlanManual:
		return sess, nil, nil
	case plan == scheduler.PlanOpeningOnly && sess.TurnCount() > 0:
		return sess, nil, nil
	}

	task, err := e.startRun(ctx, sess, plan)
	if errors.Is(err, session.ErrSessionBusy) {
		// The run that was paused has not stopped yet; it will pick up
		// the cleared flag.
		return sess, nil, nil
	}
	if err != nil {
		return sess, nil, err
	}
	return sess, task, nil
}

func (e *Engine) newMessage(kind session.MessageKind, speaker, content string) session.Message {
	return session.Message{
		ID:        uuid.NewString(),
		Kind:      kind,
		Speaker:   speaker,
		Content:   content,
		Timestamp: e.now().UTC(),
	}
}

func (e *Engine) publishRun(t pubsub.EventType, ev events.RunEvent) {
	if e.hub != nil {
		e.hub.Run.Publish(t, ev)
	}
}

func (e *Engine) publishUpdated(s *session.Session) {
	if e.hub != nil {
		e.hub.Session.Publish(pubsub.EventUpdated, events.NewSessionUpdatedEvent(s.ID, s.Title))
	}
}

// isDone reports whether s takes no more turns.
func isDone(s *session.Session) bool {
	return s.Status == session.StatusCompleted || scheduler.IsComplete(s)
}

func intPtr(v int) *int {
	return &v
}

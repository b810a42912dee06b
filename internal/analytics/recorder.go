// Package analytics keeps daily usage counters fed by domain events.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/guilhermegouw/storyloom/internal/events"
	"github.com/guilhermegouw/storyloom/internal/pubsub"
)

const dayLayout = "2006-01-02"

// Recorder subscribes to the hub and persists counters in SQLite. The
// embedded Store reads them back.
type Recorder struct { //nolint:govet // fieldalignment: preserving logical field order
	*Store
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRecorder creates a recorder writing to db.
func NewRecorder(db *sql.DB, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{Store: NewStore(db), logger: logger}
}

// Start subscribes to the session, run and sanitize brokers of hub.
// Events keep being recorded until ctx ends or the hub shuts down.
func (r *Recorder) Start(ctx context.Context, hub *pubsub.Hub) {
	ctx, r.cancel = context.WithCancel(ctx)

	sessions := hub.Session.Subscribe(ctx)
	runs := hub.Run.Subscribe(ctx)
	sanitized := hub.Sanitize.Subscribe(ctx)

	r.wg.Add(3)
	go func() {
		defer r.wg.Done()
		for event := range sessions {
			if event.Type == pubsub.EventCreated {
				p := event.Payload
				r.logError("session created", r.RecordCreated(ctx, p.Kind, p.Participants, p.Timestamp))
			}
		}
	}()
	go func() {
		defer r.wg.Done()
		for event := range runs {
			p := event.Payload
			switch p.Type {
			case events.RunEventTurn:
				r.logError("turn", r.RecordWords(ctx, p.Kind, p.Words, p.Timestamp))
			case events.RunEventCompleted:
				r.logError("completion", r.RecordCompleted(ctx, p.Kind, p.Timestamp))
			}
		}
	}()
	go func() {
		defer r.wg.Done()
		for event := range sanitized {
			r.logError("sanitization", r.RecordSanitize(ctx, event.Payload))
		}
	}()
}

// Wait blocks until every subscription has been drained. Shut the hub
// down first to flush pending events.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

// Stop cancels the subscriptions and waits for the recorder to finish.
func (r *Recorder) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Recorder) logError(what string, err error) {
	if err != nil {
		r.logger.Warn("recording analytics failed", "event", what, "error", err)
	}
}

// RecordCreated counts a new session and its participants.
func (r *Recorder) RecordCreated(ctx context.Context, kind string, participants []string, at time.Time) error {
	if err := r.bump(ctx, "sessions_created", day(at), kind, 1); err != nil {
		return err
	}
	for _, name := range participants {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO character_usage (name, sessions) VALUES (?, 1)
			ON CONFLICT (name) DO UPDATE SET sessions = sessions + 1`, name)
		if err != nil {
			return fmt.Errorf("recording character usage: %w", err)
		}
	}
	return nil
}

// RecordCompleted counts a session reaching its limit.
func (r *Recorder) RecordCompleted(ctx context.Context, kind string, at time.Time) error {
	return r.bump(ctx, "sessions_completed", day(at), kind, 1)
}

// RecordWords adds generated words.
func (r *Recorder) RecordWords(ctx context.Context, kind string, words int, at time.Time) error {
	if words <= 0 {
		return nil
	}
	return r.bump(ctx, "words_generated", day(at), kind, words)
}

// RecordSanitize stores one sanitization run.
func (r *Recorder) RecordSanitize(ctx context.Context, ev events.SanitizeEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sanitization_runs (session_id, preset, original_length, sanitized_length, applied, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.SessionID, ev.Preset, ev.OriginalChars, ev.CleanedChars, ev.Applied, ev.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("recording sanitization: %w", err)
	}
	return nil
}

// bump adds n to one column of the daily row for kind. column is always
// one of the fixed counter names above.
func (r *Recorder) bump(ctx context.Context, column, d, kind string, n int) error {
	query := fmt.Sprintf(`
		INSERT INTO analytics_daily (day, session_type, %[1]s) VALUES (?, ?, ?)
		ON CONFLICT (day, session_type) DO UPDATE SET %[1]s = %[1]s + excluded.%[1]s`, column)
	if _, err := r.db.ExecContext(ctx, query, d, kind, n); err != nil {
		return fmt.Errorf("updating %s: %w", column, err)
	}
	return nil
}

func day(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(dayLayout)
}

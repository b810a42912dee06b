package engine

import (
	"context"
	"errors"

	"github.com/guilhermegouw/storyloom/internal/apperr"
	"github.com/guilhermegouw/storyloom/internal/events"
	"github.com/guilhermegouw/storyloom/internal/pubsub"
	"github.com/guilhermegouw/storyloom/internal/runner"
	"github.com/guilhermegouw/storyloom/internal/scheduler"
	"github.com/guilhermegouw/storyloom/internal/session"
)

// startRun takes the writer slot of sess and schedules a background run.
func (e *Engine) startRun(ctx context.Context, sess *session.Session, plan scheduler.Plan) (*runner.Task, error) {
	release, err := e.sessions.AcquireWriter(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	return e.submitRun(sess, plan, release)
}

// submitRun schedules a run that owns the writer slot until it ends.
func (e *Engine) submitRun(sess *session.Session, plan scheduler.Plan, release func()) (*runner.Task, error) {
	id, kind := sess.ID, string(sess.Type)
	task, err := e.runner.Submit(id, plan.String(), func(ctx context.Context) error {
		defer release()
		return e.autoRun(ctx, id, kind, plan)
	})
	if err != nil {
		release()
		return nil, err
	}
	e.logger.Info("run scheduled", "session", id, "task", task.ID, "plan", plan.String())
	return task, nil
}

// autoRun generates turns until the session completes, is paused, or the
// plan is satisfied. Each turn starts from the stored document.
func (e *Engine) autoRun(ctx context.Context, id, kind string, plan scheduler.Plan) error {
	var taskID string
	if t, ok := runner.TaskFromContext(ctx); ok {
		taskID = t.ID
	}
	logger := e.logger.With("session", id, "task", taskID, "plan", plan.String())

	e.publishRun(pubsub.EventStarted, events.NewRunStartedEvent(id, taskID, kind))
	turn := 0
	fail := func(err error) error {
		logger.Error("run aborted", "turn", turn, "error", err)
		e.publishRun(pubsub.EventFailed, events.NewRunFailedEvent(id, taskID, turn, err))
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			logger.Info("run cancelled", "turn", turn)
			return err
		}

		sess, err := e.sessions.Get(ctx, id)
		if errors.Is(err, apperr.ErrNotFound) {
			logger.Info("session deleted, run stopped", "turn", turn)
			return nil
		}
		if err != nil {
			return fail(err)
		}
		turn = sess.TurnCount()

		switch {
		case isDone(sess):
			return nil
		case sess.Paused:
			logger.Info("run paused", "turn", turn)
			e.publishRun(pubsub.EventPaused, events.NewRunPausedEvent(id, taskID, turn))
			return nil
		case plan == scheduler.PlanOpeningOnly && turn > 0:
			return nil
		}

		text, speaker, err := e.generateTurn(ctx, sess, "")
		if err != nil {
			return fail(err)
		}
		updated, err := e.checkpoint(ctx, id, turn, "", speaker, text)
		if errors.Is(err, apperr.ErrNotFound) {
			logger.Info("session deleted, turn dropped", "turn", turn)
			return nil
		}
		if errors.Is(err, ErrStaleTurn) {
			logger.Warn("session changed by another writer, run stopped", "turn", turn)
			return nil
		}
		if err != nil {
			return fail(err)
		}
		turn = updated.TurnCount()
		logger.Debug("turn stored", "turn", turn, "speaker", speaker)
		e.publishTurn(updated, taskID, speaker, text)
	}
}

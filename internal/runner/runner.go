// Package runner executes long generation runs on a bounded pool of
// background workers, decoupled from the call that scheduled them.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// DefaultWorkers bounds concurrent tasks when Options.Workers is unset.
const DefaultWorkers = 4

// ErrShutdown is returned by Submit after Shutdown.
var ErrShutdown = errors.New("runner is shut down")

// ErrPanic wraps a panic recovered from a task.
var ErrPanic = errors.New("task panicked")

// Func is the body of a task. ctx is cancelled on Shutdown.
type Func func(ctx context.Context) error

// Options configures a Runner.
type Options struct {
	Workers int
	Logger  *slog.Logger
}

// Runner is a bounded pool of background tasks.
type Runner struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	active map[string]*Task
	closed bool
}

// New creates a runner.
func New(opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		sem:    semaphore.NewWeighted(int64(opts.Workers)),
		ctx:    ctx,
		cancel: cancel,
		logger: opts.Logger,
		active: make(map[string]*Task),
	}
}

// Submit schedules fn and returns its handle. The task waits for a free
// worker before running.
func (r *Runner) Submit(sessionID, name string, fn Func) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrShutdown
	}

	t := &Task{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Name:      name,
		Submitted: time.Now(),
		done:      make(chan struct{}),
	}
	r.active[t.ID] = t
	r.wg.Add(1)
	go r.run(t, fn)

	r.logger.Debug("task submitted", "task", t.ID, "session", sessionID, "name", name)
	return t, nil
}

func (r *Runner) run(t *Task, fn Func) {
	defer r.wg.Done()

	var err error
	defer func() {
		r.mu.Lock()
		delete(r.active, t.ID)
		r.mu.Unlock()
		t.finish(err)
	}()

	if err = r.sem.Acquire(r.ctx, 1); err != nil {
		r.logger.Warn("task not started", "task", t.ID, "session", t.SessionID, "error", err)
		return
	}
	defer r.sem.Release(1)

	start := time.Now()
	err = r.safeCall(t, fn)
	if err != nil {
		r.logger.Error("task failed", "task", t.ID, "session", t.SessionID, "name", t.Name,
			"duration", time.Since(start), "error", err)
		return
	}
	r.logger.Info("task finished", "task", t.ID, "session", t.SessionID, "name", t.Name, "duration", time.Since(start))
}

func (r *Runner) safeCall(t *Task, fn Func) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Error("task panic recovered", "task", t.ID, "session", t.SessionID,
				"panic", recovered, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrPanic, recovered)
		}
	}()
	return fn(context.WithValue(r.ctx, taskKey{}, t))
}

// Active returns the number of tasks submitted and not yet finished.
func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Shutdown cancels every task context and waits for in-flight tasks or
// for ctx to end.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for tasks: %w", ctx.Err())
	}
}

// Drain waits for in-flight tasks to finish on their own. It returns
// early with an error when ctx ends; call Shutdown afterwards to cancel
// what is left.
func (r *Runner) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining tasks: %w", ctx.Err())
	}
}

type taskKey struct{}

// TaskFromContext returns the task whose body was called with ctx.
func TaskFromContext(ctx context.Context) (*Task, bool) {
	t, ok := ctx.Value(taskKey{}).(*Task)
	return t, ok
}

// Task is the handle of a submitted task.
type Task struct {
	ID        string
	SessionID string
	Name      string
	Submitted time.Time

	done chan struct{}
	mu   sync.Mutex
	err  error
}

func (t *Task) finish(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
	close(t.done)
}

// Done returns a channel closed when the task has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the outcome of a finished task, or nil while it runs.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Wait blocks until the task finishes or ctx ends and returns the task
// outcome or the context error.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

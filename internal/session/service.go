package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"

	"github.com/guilhermegouw/storyloom/internal/apperr"
	"github.com/guilhermegouw/storyloom/internal/events"
	"github.com/guilhermegouw/storyloom/internal/pubsub"
)

// Conflict outcomes.
var (
	ErrSessionBusy   error = apperr.Conflict("session", "another generation is in progress")
	ErrSessionPaused error = apperr.Conflict("session", "session is paused")
)

// DefaultLeaseTTL is how long a writer lease survives without renewal.
const DefaultLeaseTTL = 30 * time.Second

// Service manages sessions with pub/sub event publishing. All document
// mutations go through Update so that concurrent writers never lose each
// other's changes, including writers in other processes sharing the
// store.
type Service struct { //nolint:govet // fieldalignment: preserving logical field order
	store    Store
	broker   *pubsub.Broker[events.SessionEvent]
	locks    *Locks
	logger   *slog.Logger
	now      func() time.Time
	owner    string
	leaseTTL time.Duration
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLeaseTTL sets the lifetime of writer leases. Held leases are
// renewed every third of it.
func WithLeaseTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.leaseTTL = ttl
		}
	}
}

// NewService creates a new session service.
func NewService(store Store, broker *pubsub.Broker[events.SessionEvent], logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Service{
		store:    store,
		broker:   broker,
		locks:    NewLocks(),
		logger:   logger,
		now:      time.Now,
		owner:    uuid.NewString(),
		leaseTTL: DefaultLeaseTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create assigns an ID and timestamps to sess and persists it.
func (s *Service) Create(ctx context.Context, sess *Session) error {
	now := s.now().UTC()
	if sess.ID == "" {
		sess.ID = shortuuid.New()
	}
	sess.SchemaVersion = SchemaVersion
	sess.CreatedAt = now
	sess.UpdatedAt = now
	if sess.Status == "" {
		sess.Status = StatusActive
	}
	if sess.Messages == nil {
		sess.Messages = []Message{}
	}

	if err := s.store.Save(ctx, sess); err != nil {
		return apperr.Persistence("session.Create", err)
	}
	s.logger.Info("session created", "session", sess.ID, "type", sess.Type, "participants", len(sess.Participants))

	if s.broker != nil {
		s.broker.Publish(pubsub.EventCreated,
			events.NewSessionCreatedEvent(sess.ID, sess.Title, string(sess.Type), sess.ParticipantNames()))
	}
	return nil
}

// Get retrieves a session by ID.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, classify("session.Get", id, err)
	}
	return sess, nil
}

// List returns all sessions, newest first.
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	out, err := s.store.List(ctx)
	if err != nil {
		return nil, apperr.Persistence("session.List", err)
	}
	return out, nil
}

// Delete removes a session by ID. A run still holding the writer slot
// stops when its next re-read finds the session gone.
func (s *Service) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	err := s.store.Delete(ctx, id)
	unlock()
	if err != nil {
		return classify("session.Delete", id, err)
	}
	s.locks.Forget(id)
	s.logger.Info("session deleted", "session", id)

	if s.broker != nil {
		s.broker.Publish(pubsub.EventDeleted, events.NewSessionDeletedEvent(id))
	}
	return nil
}

// Update applies fn to the stored document and persists the result as
// one store transaction. An error from fn aborts the write and is
// returned as is.
func (s *Service) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	var fnErr error
	sess, err := s.store.Update(ctx, id, func(sess *Session) error {
		if fnErr = fn(sess); fnErr != nil {
			return fnErr
		}
		sess.UpdatedAt = s.now().UTC()
		return nil
	})
	if fnErr != nil {
		return nil, fnErr
	}
	if err != nil {
		return nil, classify("session.Update", id, err)
	}
	return sess, nil
}

// Pause marks a session paused. Messages are left untouched. Pausing a
// completed session is a conflict.
func (s *Service) Pause(ctx context.Context, id string) (*Session, error) {
	sess, err := s.Update(ctx, id, func(sess *Session) error {
		if sess.Status == StatusCompleted {
			return apperr.Conflict("session.Pause", "session is already completed")
		}
		now := s.now().UTC()
		sess.Paused = true
		sess.PausedAt = &now
		sess.Status = StatusPaused
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("session paused", "session", id)

	if s.broker != nil {
		s.broker.Publish(pubsub.EventPaused, events.NewSessionPausedEvent(id))
	}
	return sess, nil
}

// Resume clears the pause markers of a session.
func (s *Service) Resume(ctx context.Context, id string) (*Session, error) {
	sess, err := s.Update(ctx, id, func(sess *Session) error {
		sess.Paused = false
		sess.PausedAt = nil
		if sess.Status == StatusPaused {
			sess.Status = StatusActive
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("session resumed", "session", id)

	if s.broker != nil {
		s.broker.Publish(pubsub.EventUpdated, events.NewSessionResumedEvent(id))
	}
	return sess, nil
}

// AcquireWriter takes the writer slot of a session, failing with
// ErrSessionBusy when another writer holds it in this process or holds
// its store lease from another one. The lease is renewed until the
// returned release func is called.
func (s *Service) AcquireWriter(ctx context.Context, id string) (func(), error) {
	local, ok := s.locks.TryAcquire(id)
	if !ok {
		return nil, ErrSessionBusy
	}
	held, err := s.store.AcquireLease(ctx, id, s.owner, s.leaseTTL)
	if err != nil {
		local()
		return nil, apperr.Persistence("session.AcquireWriter", err)
	}
	if !held {
		local()
		return nil, ErrSessionBusy
	}

	hbCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go s.heartbeat(hbCtx, id, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			<-done
			if err := s.store.ReleaseLease(context.WithoutCancel(ctx), id, s.owner); err != nil {
				s.logger.Warn("releasing session lease failed", "session", id, "error", err)
			}
			local()
		})
	}, nil
}

func (s *Service) heartbeat(ctx context.Context, id string, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.leaseTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			held, err := s.store.RenewLease(ctx, id, s.owner, s.leaseTTL)
			switch {
			case ctx.Err() != nil:
				return
			case err != nil:
				s.logger.Warn("renewing session lease failed", "session", id, "error", err)
			case !held:
				s.logger.Warn("session lease lost", "session", id)
			}
		}
	}
}

// Busy reports whether a writer of this process holds the session.
func (s *Service) Busy(id string) bool {
	return s.locks.Busy(id)
}

// Migrate rewrites every stored document at the current schema version.
// It returns the number of documents rewritten.
func (s *Service) Migrate(ctx context.Context) (int, error) {
	ids, err := s.store.IDs(ctx)
	if err != nil {
		return 0, apperr.Persistence("session.Migrate", err)
	}

	n := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		// Reading upgrades the document; writing it back stores it at the
		// current schema.
		unlock := s.locks.Lock(id)
		_, err := s.store.Update(ctx, id, func(*Session) error { return nil })
		unlock()
		if err != nil {
			s.logger.Warn("session migration failed", "session", id, "error", err)
			continue
		}
		n++
	}
	s.logger.Info("sessions migrated", "count", n, "total", len(ids))
	return n, nil
}

func classify(op, id string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound(op, "session", id)
	}
	return apperr.Persistence(op, err)
}

package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a session is not found.
var ErrNotFound = errors.New("session not found")

// Store defines the interface for session persistence. Every write
// replaces the whole document.
type Store interface {
	Leaser

	// Save inserts or replaces the document.
	Save(ctx context.Context, s *Session) error

	// Get retrieves a session by ID, migrating legacy documents.
	Get(ctx context.Context, id string) (*Session, error)

	// Update reads the document, applies fn and writes it back as one
	// step that other processes sharing the store cannot interleave.
	// Nothing is written when fn fails.
	Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error)

	// List returns all sessions ordered by created_at descending.
	List(ctx context.Context) ([]Summary, error)

	// Delete removes a session by ID.
	Delete(ctx context.Context, id string) error

	// IDs returns the ID of every stored session.
	IDs(ctx context.Context) ([]string, error)
}

// Leaser hands out the writer lease of a session. A lease belongs to one
// owner until it is released or expires.
type Leaser interface {
	// AcquireLease takes the lease for owner. It reports false when a
	// different owner holds an unexpired lease.
	AcquireLease(ctx context.Context, id, owner string, ttl time.Duration) (bool, error)

	// RenewLease extends a lease owner still holds. It reports false when
	// the lease was lost.
	RenewLease(ctx context.Context, id, owner string, ttl time.Duration) (bool, error)

	// ReleaseLease drops the lease if owner holds it.
	ReleaseLease(ctx context.Context, id, owner string) error
}

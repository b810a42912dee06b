package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const (
	lockPoll = 5 * time.Millisecond
	// staleLockAge is far longer than any read-modify-write; an older
	// lock file was left behind by a dead process.
	staleLockAge = 10 * time.Second
)

// FileStore implements Store with one JSON document per session under a
// directory. Writes go through a temp file and rename. Updates, deletes
// and leases of a session are serialized across processes by a
// .<id>.lock file; the lease itself lives in .<id>.lease.
type FileStore struct {
	dir string
}

type fileLease struct {
	Owner     string `json:"owner"`
	ExpiresAt int64  `json:"expires_at"`
}

// NewFileStore creates a store in dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating sessions directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return "", ErrNotFound
	}
	return filepath.Join(s.dir, id+".json"), nil
}

// Save atomically replaces the document file.
func (s *FileStore) Save(_ context.Context, sess *Session) error {
	path, err := s.path(sess.ID)
	if err != nil {
		return fmt.Errorf("saving session: invalid id %q", sess.ID)
	}
	doc, err := Encode(sess)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+sess.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(doc); err != nil {
		_ = tmp.Close() //nolint:errcheck // write error takes precedence
		return fmt.Errorf("saving session: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close() //nolint:errcheck // sync error takes precedence
		return fmt.Errorf("saving session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID.
func (s *FileStore) Get(_ context.Context, id string) (*Session, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting session: %w", err)
	}

	sess, _, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("getting session %s: %w", id, err)
	}
	if sess.ID == "" {
		sess.ID = id
	}
	return sess, nil
}

// List returns all sessions ordered by created_at descending. Unreadable
// documents are skipped.
func (s *FileStore) List(ctx context.Context) ([]Summary, error) {
	ids, err := s.IDs(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, sess.Summarize())
	}
	slices.SortFunc(out, func(a, b Summary) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Update applies fn to the document while holding the session lock file.
func (s *FileStore) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	if _, err := s.path(id); err != nil {
		return nil, err
	}
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Delete removes a session and its lease.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	_ = os.Remove(s.leasePath(id)) //nolint:errcheck // most sessions have no lease
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// IDs returns the ID of every stored session.
func (s *FileStore) IDs(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

// lock takes the cross-process mutex of id by creating its lock file
// exclusively, polling until it succeeds or ctx ends.
func (s *FileStore) lock(ctx context.Context, id string) (func(), error) {
	name := filepath.Join(s.dir, "."+id+".lock")
	for {
		f, err := os.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_ = f.Close() //nolint:errcheck // only the file's existence matters
			return func() { _ = os.Remove(name) }, nil //nolint:errcheck // a leftover is broken once stale
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("locking session: %w", err)
		}
		if info, err := os.Stat(name); err == nil && time.Since(info.ModTime()) > staleLockAge {
			_ = os.Remove(name) //nolint:errcheck // another process may have broken it first
			continue
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("locking session: %w", ctx.Err())
		case <-time.After(lockPoll):
		}
	}
}

func (s *FileStore) leasePath(id string) string {
	return filepath.Join(s.dir, "."+id+".lease")
}

func (s *FileStore) readLease(id string) (*fileLease, error) {
	data, err := os.ReadFile(s.leasePath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var l fileLease
	if err := json.Unmarshal(data, &l); err != nil {
		// A torn lease file holds nothing.
		return nil, nil //nolint:nilerr // treated as free
	}
	return &l, nil
}

func (s *FileStore) writeLease(id, owner string, ttl time.Duration) error {
	data, err := json.Marshal(fileLease{Owner: owner, ExpiresAt: time.Now().Add(ttl).UnixMilli()})
	if err != nil {
		return err
	}
	return os.WriteFile(s.leasePath(id), data, 0o600)
}

// withLease runs fn on the current lease of id under the session lock.
func (s *FileStore) withLease(ctx context.Context, id string, fn func(*fileLease) error) error {
	if _, err := s.path(id); err != nil {
		return err
	}
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	l, err := s.readLease(id)
	if err != nil {
		return err
	}
	return fn(l)
}

// AcquireLease takes the lease when it is free, expired or already owned.
func (s *FileStore) AcquireLease(ctx context.Context, id, owner string, ttl time.Duration) (bool, error) {
	var held bool
	err := s.withLease(ctx, id, func(l *fileLease) error {
		if l != nil && l.Owner != owner && l.ExpiresAt > time.Now().UnixMilli() {
			return nil
		}
		held = true
		return s.writeLease(id, owner, ttl)
	})
	if err != nil {
		return false, fmt.Errorf("acquiring lease: %w", err)
	}
	return held, nil
}

// RenewLease pushes the expiry of a lease owner still holds.
func (s *FileStore) RenewLease(ctx context.Context, id, owner string, ttl time.Duration) (bool, error) {
	var held bool
	err := s.withLease(ctx, id, func(l *fileLease) error {
		if l == nil || l.Owner != owner {
			return nil
		}
		held = true
		return s.writeLease(id, owner, ttl)
	})
	if err != nil {
		return false, fmt.Errorf("renewing lease: %w", err)
	}
	return held, nil
}

// ReleaseLease removes the lease file if owner holds it.
func (s *FileStore) ReleaseLease(ctx context.Context, id, owner string) error {
	err := s.withLease(ctx, id, func(l *fileLease) error {
		if l == nil || l.Owner != owner {
			return nil
		}
		if err := os.Remove(s.leasePath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("releasing lease: %w", err)
	}
	return nil
}

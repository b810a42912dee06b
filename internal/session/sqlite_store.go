package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/guilhermegouw/storyloom/internal/db"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store using SQLite. The document is kept as JSON
// next to the columns used for listing.
type SQLiteStore struct {
	conn *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed session store.
func NewSQLiteStore(conn *sql.DB) *SQLiteStore {
	return &SQLiteStore{conn: conn}
}

// Save inserts or replaces the document.
func (s *SQLiteStore) Save(ctx context.Context, sess *Session) error {
	return save(ctx, s.conn, sess)
}

func save(ctx context.Context, q querier, sess *Session) error {
	doc, err := Encode(sess)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO sessions (id, type, status, title, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			type = excluded.type,
			status = excluded.status,
			title = excluded.title,
			document = excluded.document,
			updated_at = excluded.updated_at`,
		sess.ID, string(sess.Type), string(sess.Status), sess.Title, string(doc),
		sess.CreatedAt.UnixMilli(), sess.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Session, error) {
	return get(ctx, s.conn, id)
}

func get(ctx context.Context, q querier, id string) (*Session, error) {
	var doc string
	err := q.QueryRowContext(ctx, `SELECT document FROM sessions WHERE id = ?`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting session: %w", err)
	}

	sess, _, err := Decode([]byte(doc))
	if err != nil {
		return nil, fmt.Errorf("getting session %s: %w", id, err)
	}
	return sess, nil
}

// Update runs the read, fn and the write in one immediate transaction.
func (s *SQLiteStore) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	var out *Session
	err := db.WithImmediateTx(ctx, s.conn, func(tx *sql.Tx) error {
		sess, err := get(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(sess); err != nil {
			return err
		}
		if err := save(ctx, tx, sess); err != nil {
			return err
		}
		out = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List returns all sessions ordered by created_at descending.
func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, type, status, title, created_at, updated_at
		FROM sessions
		ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close() //nolint:errcheck // rows.Err is checked below

	var out []Summary
	for rows.Next() {
		var (
			sum                  Summary
			typ, status          string
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&sum.ID, &typ, &status, &sum.Title, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sum.Type = Type(typ)
		sum.Status = Status(status)
		sum.CreatedAt = time.UnixMilli(createdAt)
		sum.UpdatedAt = time.UnixMilli(updatedAt)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return out, nil
}

// Delete removes a session and its lease.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	return db.WithTx(ctx, s.conn, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("deleting session: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("deleting session: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM session_leases WHERE session_id = ?`, id); err != nil {
			return fmt.Errorf("deleting session lease: %w", err)
		}
		return nil
	})
}

// IDs returns the ID of every stored session.
func (s *SQLiteStore) IDs(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT id FROM sessions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing session ids: %w", err)
	}
	defer rows.Close() //nolint:errcheck // rows.Err is checked below

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AcquireLease takes the lease when it is free, expired or already owned.
func (s *SQLiteStore) AcquireLease(ctx context.Context, id, owner string, ttl time.Duration) (bool, error) {
	now := time.Now()
	var held bool
	err := db.WithImmediateTx(ctx, s.conn, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO session_leases (session_id, owner, expires_at)
			VALUES (?, ?, ?)
			ON CONFLICT (session_id) DO UPDATE SET
				owner = excluded.owner,
				expires_at = excluded.expires_at
			WHERE session_leases.owner = excluded.owner OR session_leases.expires_at <= ?`,
			id, owner, now.Add(ttl).UnixMilli(), now.UnixMilli())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		held = n == 1
		return err
	})
	if err != nil {
		return false, fmt.Errorf("acquiring lease: %w", err)
	}
	return held, nil
}

// RenewLease pushes the expiry of a lease owner still holds.
func (s *SQLiteStore) RenewLease(ctx context.Context, id, owner string, ttl time.Duration) (bool, error) {
	var held bool
	err := db.WithImmediateTx(ctx, s.conn, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE session_leases SET expires_at = ? WHERE session_id = ? AND owner = ?`,
			time.Now().Add(ttl).UnixMilli(), id, owner)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		held = n == 1
		return err
	})
	if err != nil {
		return false, fmt.Errorf("renewing lease: %w", err)
	}
	return held, nil
}

// ReleaseLease deletes the lease row of owner.
func (s *SQLiteStore) ReleaseLease(ctx context.Context, id, owner string) error {
	err := db.WithImmediateTx(ctx, s.conn, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM session_leases WHERE session_id = ? AND owner = ?`, id, owner)
		return err
	})
	if err != nil {
		return fmt.Errorf("releasing lease: %w", err)
	}
	return nil
}

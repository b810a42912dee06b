package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/guilhermegouw/storyloom/internal/db"
)

// RecentDays is the length of the recent activity window.
const RecentDays = 7

// TypeStats are the totals of one session type.
type TypeStats struct {
	Type           string
	Created        int
	Completed      int
	Words          int
	CompletionRate float64 // completed / created * 100
}

// DayStats are the totals of one day.
type DayStats struct {
	Day       string
	Created   int
	Completed int
	Words     int
}

// CharacterStats counts the sessions a character took part in.
type CharacterStats struct {
	Name     string
	Sessions int
}

// Overview summarizes all recorded activity.
type Overview struct {
	TotalSessions  int
	TotalCompleted int
	TotalWords     int
	ByType         []TypeStats
	Recent         []DayStats // Oldest first, one entry per day
	Characters     []CharacterStats

	Sanitizations    int
	CharsRemoved     int
	AverageRetention float64 // Percent of characters kept by applied runs
}

// Store reads and resets the counters.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a store over db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Overview computes the current overview.
func (s *Store) Overview(ctx context.Context) (*Overview, error) {
	ov := &Overview{}
	if err := s.loadTypes(ctx, ov); err != nil {
		return nil, err
	}
	if err := s.loadRecent(ctx, ov); err != nil {
		return nil, err
	}
	if err := s.loadCharacters(ctx, ov); err != nil {
		return nil, err
	}
	if err := s.loadSanitizations(ctx, ov); err != nil {
		return nil, err
	}
	return ov, nil
}

func (s *Store) loadTypes(ctx context.Context, ov *Overview) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_type, SUM(sessions_created), SUM(sessions_completed), SUM(words_generated)
		FROM analytics_daily
		GROUP BY session_type
		ORDER BY session_type`)
	if err != nil {
		return fmt.Errorf("querying type totals: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only query

	for rows.Next() {
		var ts TypeStats
		if err := rows.Scan(&ts.Type, &ts.Created, &ts.Completed, &ts.Words); err != nil {
			return fmt.Errorf("scanning type totals: %w", err)
		}
		if ts.Created > 0 {
			ts.CompletionRate = float64(ts.Completed) / float64(ts.Created) * 100
		}
		ov.ByType = append(ov.ByType, ts)
		ov.TotalSessions += ts.Created
		ov.TotalCompleted += ts.Completed
		ov.TotalWords += ts.Words
	}
	return rows.Err()
}

func (s *Store) loadRecent(ctx context.Context, ov *Overview) error {
	today := s.now().UTC()
	since := today.AddDate(0, 0, -(RecentDays - 1)).Format(dayLayout)

	rows, err := s.db.QueryContext(ctx, `
		SELECT day, SUM(sessions_created), SUM(sessions_completed), SUM(words_generated)
		FROM analytics_daily
		WHERE day >= ?
		GROUP BY day`, since)
	if err != nil {
		return fmt.Errorf("querying recent activity: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only query

	byDay := make(map[string]DayStats)
	for rows.Next() {
		var ds DayStats
		if err := rows.Scan(&ds.Day, &ds.Created, &ds.Completed, &ds.Words); err != nil {
			return fmt.Errorf("scanning recent activity: %w", err)
		}
		byDay[ds.Day] = ds
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := RecentDays - 1; i >= 0; i-- {
		d := today.AddDate(0, 0, -i).Format(dayLayout)
		ds := byDay[d]
		ds.Day = d
		ov.Recent = append(ov.Recent, ds)
	}
	return nil
}

func (s *Store) loadCharacters(ctx context.Context, ov *Overview) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, sessions FROM character_usage
		ORDER BY sessions DESC, name
		LIMIT 10`)
	if err != nil {
		return fmt.Errorf("querying character usage: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only query

	for rows.Next() {
		var cs CharacterStats
		if err := rows.Scan(&cs.Name, &cs.Sessions); err != nil {
			return fmt.Errorf("scanning character usage: %w", err)
		}
		ov.Characters = append(ov.Characters, cs)
	}
	return rows.Err()
}

func (s *Store) loadSanitizations(ctx context.Context, ov *Overview) error {
	var removed sql.NullInt64
	var retention sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			SUM(CASE WHEN applied AND original_length > sanitized_length
				THEN original_length - sanitized_length ELSE 0 END),
			AVG(CASE WHEN applied AND original_length > 0
				THEN sanitized_length * 100.0 / original_length END)
		FROM sanitization_runs`).Scan(&ov.Sanitizations, &removed, &retention)
	if err != nil {
		return fmt.Errorf("querying sanitizations: %w", err)
	}
	ov.CharsRemoved = int(removed.Int64)
	ov.AverageRetention = retention.Float64
	return nil
}

// Reset clears every counter.
func (s *Store) Reset(ctx context.Context) error {
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, table := range []string{"analytics_daily", "sanitization_runs", "character_usage"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clearing %s: %w", table, err)
			}
		}
		return nil
	})
}

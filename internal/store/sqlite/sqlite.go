// Package sqlite implements the activity store on a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/markview/internal/core"
	"github.com/JonMunkholm/markview/internal/store"
)

// timestampLayout is fixed-width so text ordering matches time ordering.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS user_actions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    action_type TEXT NOT NULL,
    action_data TEXT,
    timestamp TEXT NOT NULL,
    date TEXT NOT NULL,
    week_number INTEGER,
    year INTEGER
);
CREATE INDEX IF NOT EXISTS idx_user_actions_date ON user_actions (date);
CREATE TABLE IF NOT EXISTS app_settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);`

// Store is a core.ActivityStore backed by SQLite.
//
// SQLite has no native timestamp type; timestamps are stored as UTC text in
// timestampLayout for reliable round-trips.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ core.ActivityStore = (*Store)(nil)

func init() {
	store.Register("sqlite", func(ctx context.Context, cfg store.Config) (core.ActivityStore, error) {
		return Open(ctx, cfg.DSN)
	})
}

// Open opens (creating if needed) the database at path and ensures the
// tables exist.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: empty database path")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer at a time avoids SQLITE_BUSY under concurrent sessions.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create tables: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// LogEvent implements core.ActivityLog.
func (s *Store) LogEvent(ctx context.Context, eventType string, payload map[string]any) error {
	rec, err := store.NewRecord(eventType, payload, s.now())
	if err != nil {
		return err
	}

	var data sql.NullString
	if rec.Data != nil {
		data = sql.NullString{String: string(rec.Data), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_actions (action_type, action_data, timestamp, date, week_number, year)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Type, data, rec.Timestamp.Format(timestampLayout), rec.Date, rec.Week, rec.Year,
	)
	if err != nil {
		return fmt.Errorf("insert %s event: %w", eventType, err)
	}
	return nil
}

// RecentEvents implements core.RecentEvents.
func (s *Store) RecentEvents(ctx context.Context, windowDays, limit int) ([]core.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT action_type, action_data, timestamp
		FROM user_actions
		WHERE date >= ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`,
		store.WindowStart(s.now(), windowDays), store.Limit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close()

	var events []core.Event
	for rows.Next() {
		var (
			typ  string
			data sql.NullString
			ts   string
		)
		if err := rows.Scan(&typ, &data, &ts); err != nil {
			return nil, err
		}
		payload, err := store.DecodePayload([]byte(data.String))
		if err != nil {
			return nil, err
		}
		when, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
		events = append(events, core.Event{Type: typ, Payload: payload, Timestamp: when})
	}
	return events, rows.Err()
}

// GetSetting implements core.SettingsStore.
func (s *Store) GetSetting(ctx context.Context, key, def string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM app_settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

// SetSetting implements core.SettingsStore.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO app_settings (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// PurgeBefore deletes events recorded before cutoff.
func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_actions WHERE timestamp < ?`,
		cutoff.UTC().Format(timestampLayout))
	if err != nil {
		return 0, fmt.Errorf("purge events: %w", err)
	}
	return res.RowsAffected()
}

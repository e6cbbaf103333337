// Package postgres implements the activity store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/markview/internal/core"
	"github.com/JonMunkholm/markview/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS user_actions (
    id BIGSERIAL PRIMARY KEY,
    action_type TEXT NOT NULL,
    action_data JSONB,
    timestamp TIMESTAMPTZ NOT NULL,
    date DATE NOT NULL,
    week_number INTEGER,
    year INTEGER
);
CREATE INDEX IF NOT EXISTS idx_user_actions_date ON user_actions (date);
CREATE TABLE IF NOT EXISTS app_settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);`

// Store is a core.ActivityStore backed by a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ core.ActivityStore = (*Store)(nil)

func init() {
	store.Register("postgres", Open)
}

// Open connects to cfg.DSN, applies the pool settings and ensures the
// tables exist.
func Open(ctx context.Context, cfg store.Config) (core.ActivityStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return New(ctx, pool)
}

// New wraps an existing pool and ensures the tables exist.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("postgres: create tables: %w", err)
	}
	return &Store{pool: pool, now: time.Now}, nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// LogEvent implements core.ActivityLog.
func (s *Store) LogEvent(ctx context.Context, eventType string, payload map[string]any) error {
	rec, err := store.NewRecord(eventType, payload, s.now())
	if err != nil {
		return err
	}

	// nil []byte is sent as SQL NULL
	var data any
	if rec.Data != nil {
		data = string(rec.Data)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO user_actions (action_type, action_data, timestamp, date, week_number, year)
		VALUES ($1, $2::jsonb, $3, $4::date, $5, $6)`,
		rec.Type, data, rec.Timestamp, rec.Date, rec.Week, rec.Year,
	)
	if err != nil {
		return fmt.Errorf("insert %s event: %w", eventType, err)
	}
	return nil
}

// RecentEvents implements core.RecentEvents.
func (s *Store) RecentEvents(ctx context.Context, windowDays, limit int) ([]core.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT action_type, action_data::text, timestamp
		FROM user_actions
		WHERE date >= $1::date
		ORDER BY timestamp DESC, id DESC
		LIMIT $2`,
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
			data *string
			ts   time.Time
		)
		if err := rows.Scan(&typ, &data, &ts); err != nil {
			return nil, err
		}
		var raw []byte
		if data != nil {
			raw = []byte(*data)
		}
		payload, err := store.DecodePayload(raw)
		if err != nil {
			return nil, err
		}
		events = append(events, core.Event{Type: typ, Payload: payload, Timestamp: ts.UTC()})
	}
	return events, rows.Err()
}

// GetSetting implements core.SettingsStore.
func (s *Store) GetSetting(ctx context.Context, key, def string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM app_settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

// SetSetting implements core.SettingsStore.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO app_settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// PurgeBefore deletes events recorded before cutoff.
func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM user_actions WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge events: %w", err)
	}
	return tag.RowsAffected(), nil
}

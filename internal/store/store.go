// Package store persists the activity log and application settings.
//
// Backends live in subpackages and register themselves from init():
//
//	import _ "github.com/JonMunkholm/markview/internal/store/sqlite"
//
//	st, err := store.Open(ctx, store.Config{Driver: "sqlite", DSN: "markview.db"})
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/markview/internal/core"
)

// Config selects and configures a backend.
type Config struct {
	Driver string // Registered backend name ("sqlite", "postgres")
	DSN    string // File path for SQLite, connection URL for Postgres

	// Pool settings; ignored by backends without a pool.
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Factory opens a backend and creates its tables if needed.
type Factory func(ctx context.Context, cfg Config) (core.ActivityStore, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under name. It panics on an empty
// name, a nil factory or a duplicate registration.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if name == "" {
		panic("store: Register called with empty name")
	}
	if f == nil {
		panic("store: Register called with nil factory")
	}
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("store: backend already registered: %q", name))
	}
	factories[name] = f
}

// Drivers returns the registered backend names, sorted.
func Drivers() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open constructs the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (core.ActivityStore, error) {
	if cfg.Driver == "" {
		return nil, fmt.Errorf("store: missing driver")
	}

	mu.RLock()
	f, ok := factories[cfg.Driver]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("store: unsupported driver %q (registered: %v)", cfg.Driver, Drivers())
	}
	return f(ctx, cfg)
}

// Record is one user_actions row as written by every backend.
type Record struct {
	Type      string
	Data      []byte // JSON object, nil when the payload is empty
	Timestamp time.Time
	Date      string // YYYY-MM-DD
	Week      int    // ISO 8601 week number
	Year      int
}

// NewRecord prepares an event for insertion. Timestamps are stored in UTC.
func NewRecord(eventType string, payload map[string]any, now time.Time) (Record, error) {
	if eventType == "" {
		return Record{}, fmt.Errorf("event type is required")
	}
	now = now.UTC()

	var data []byte
	if len(payload) > 0 {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return Record{}, fmt.Errorf("encode %s payload: %w", eventType, err)
		}
	}

	_, week := now.ISOWeek()
	return Record{
		Type:      eventType,
		Data:      data,
		Timestamp: now,
		Date:      now.Format(time.DateOnly),
		Week:      week,
		Year:      now.Year(),
	}, nil
}

// DecodePayload parses a stored action_data value. Empty input yields an
// empty, non-nil map.
func DecodePayload(data []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode action_data: %w", err)
	}
	return out, nil
}

// WindowStart returns the first date included in a window reaching days
// back from now. Zero covers today only.
func WindowStart(now time.Time, days int) string {
	if days < 0 {
		days = 0
	}
	return now.UTC().AddDate(0, 0, -days).Format(time.DateOnly)
}

// Limit clamps a caller-supplied limit to a sane range.
func Limit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

package core

import (
	"context"
	"time"
)

// Event types written to the activity log.
const (
	EventDatasetImported = "excel_file_uploaded"
	EventImportFailed    = "excel_file_upload_failed"
	EventFilterChanged   = "filter_changed"
	EventFiltersReset    = "filters_reset"
	EventSessionCreated  = "session_created"
	EventDashboardViewed = "dashboard_viewed"
)

// Settings keys used by the session.
const (
	SettingLastDataset = "last_dataset_path"
	SettingFilters     = "column_filters"
)

// ActivityLog records user-visible events. Implementations are best-effort:
// callers log and discard the returned error.
type ActivityLog interface {
	LogEvent(ctx context.Context, eventType string, payload map[string]any) error
}

// Event is one activity log entry.
type Event struct {
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// RecentEvents lists events from the last windowDays days, newest first.
type RecentEvents interface {
	RecentEvents(ctx context.Context, windowDays, limit int) ([]Event, error)
}

// SettingsStore is a string key-value store.
type SettingsStore interface {
	GetSetting(ctx context.Context, key, def string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// ActivityStore is the full persistence surface the application wires up.
type ActivityStore interface {
	ActivityLog
	RecentEvents
	SettingsStore

	// PurgeBefore deletes events older than cutoff and returns how many were removed.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// NopActivityLog discards every event.
type NopActivityLog struct{}

// LogEvent implements ActivityLog.
func (NopActivityLog) LogEvent(context.Context, string, map[string]any) error { return nil }

package core

// scheduler.go runs periodic maintenance:
//  1. Purge activity events older than the retention window
//  2. Evict sessions that have been idle past their TTL
//
// It is long-running and context-aware. Individual failures are logged
// and never stop the loop.

import (
	"context"
	"log/slog"
	"time"
)

// Purger deletes activity events older than a cutoff.
type Purger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// MaintenanceConfig holds configuration for the maintenance scheduler.
type MaintenanceConfig struct {
	RetentionDays int           // Days of activity to keep (default: 90, <0 disables purge)
	Interval      time.Duration // How often to run (default: 1h)
}

func (c MaintenanceConfig) withDefaults() MaintenanceConfig {
	if c.RetentionDays == 0 {
		c.RetentionDays = 90
	}
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	return c
}

// RunMaintenance runs one maintenance cycle immediately, then every
// Interval until ctx is cancelled. store and reg may each be nil.
func RunMaintenance(ctx context.Context, store Purger, reg *Registry, cfg MaintenanceConfig) {
	cfg = cfg.withDefaults()
	slog.Info("maintenance scheduler started",
		"retention_days", cfg.RetentionDays,
		"interval", cfg.Interval,
	)

	runMaintenanceJob(ctx, store, reg, cfg, time.Now())

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("maintenance scheduler stopped")
			return
		case now := <-ticker.C:
			runMaintenanceJob(ctx, store, reg, cfg, now)
		}
	}
}

// runMaintenanceJob performs one purge + eviction cycle.
func runMaintenanceJob(ctx context.Context, store Purger, reg *Registry, cfg MaintenanceConfig, now time.Time) {
	start := time.Now()

	if store != nil && cfg.RetentionDays > 0 {
		cutoff := now.AddDate(0, 0, -cfg.RetentionDays)
		purged, err := store.PurgeBefore(ctx, cutoff)
		if err != nil {
			slog.Error("activity purge failed", "error", err)
		} else if purged > 0 {
			slog.Info("purged old activity events",
				"events_purged", purged,
				"cutoff", cutoff.Format(time.DateOnly),
			)
		}
	}

	if reg != nil {
		reg.EvictIdle()
	}

	slog.Debug("maintenance job completed", "duration_ms", time.Since(start).Milliseconds())
}

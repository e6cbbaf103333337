package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Snapshot is one consistent state of a Session. Dataset, Filters, View
// and Stats always belong together; a Snapshot is never modified after
// it is published.
type Snapshot struct {
	Dataset *Dataset
	Filters FilterState
	View    *View
	Stats   Statistics
	Version uint64
}

// LoadResult is delivered on the channel returned by StartLoad.
type LoadResult struct {
	ImportID string
	Dataset  *Dataset // Nil on failure
	Duration time.Duration
	Err      error
}

// SessionOptions configures a Session. Zero values are usable.
type SessionOptions struct {
	ID       string         // Generated when empty
	Importer *Importer      // DefaultImporter when nil
	Limiter  *ImportLimiter // Optional limiter shared with other sessions
	Activity ActivityLog    // NopActivityLog when nil
	Settings SettingsStore  // Optional; enables SaveFilters/RestoreFilters
	Logger   *slog.Logger   // slog.Default() when nil
}

// Session owns the current dataset, filter state, filtered view and
// statistics. Reads are lock-free against the latest published Snapshot;
// writes are serialized and publish a new Snapshot atomically.
type Session struct {
	id       string
	importer *Importer
	shared   *ImportLimiter
	gate     *ImportLimiter // One slot: at most one import in flight
	activity ActivityLog
	settings SettingsStore
	logger   *slog.Logger

	state   atomic.Pointer[Snapshot]
	writeMu sync.Mutex

	importMu sync.Mutex // Taken after writeMu when both are held
	progress *ImportProgress
	cancel   context.CancelFunc

	lastUsed atomic.Int64
}

// NewSession returns a Session with no dataset loaded.
func NewSession(opts SessionOptions) *Session {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Importer == nil {
		opts.Importer = DefaultImporter
	}
	if opts.Activity == nil {
		opts.Activity = NopActivityLog{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Session{
		id:       opts.ID,
		importer: opts.Importer,
		shared:   opts.Limiter,
		gate:     NewImportLimiter(1, time.Second),
		activity: opts.Activity,
		settings: opts.Settings,
		logger:   opts.Logger.With("session_id", opts.ID),
	}
	s.state.Store(&Snapshot{
		Filters: NewFilterState(nil),
		View:    Recompute(nil, FilterState{}),
		Stats:   ComputeStatistics(nil),
	})
	s.touch()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// LastUsed returns when the session was last read or written.
func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

func (s *Session) touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

// Snapshot returns the current state.
func (s *Session) Snapshot() *Snapshot {
	s.touch()
	return s.state.Load()
}

// CurrentDataset returns the installed dataset, or nil before the first import.
func (s *Session) CurrentDataset() *Dataset { return s.Snapshot().Dataset }

// CurrentView returns the filtered view of the installed dataset.
func (s *Session) CurrentView() *View { return s.Snapshot().View }

// CurrentStatistics returns statistics of the installed dataset.
func (s *Session) CurrentStatistics() Statistics { return s.Snapshot().Stats }

// FilterState returns the current column filters.
func (s *Session) FilterState() FilterState { return s.Snapshot().Filters }

// Importing reports whether an import is in flight.
func (s *Session) Importing() bool {
	return s.gate.ActiveCount() > 0
}

// Progress returns the progress of the current or most recent import.
func (s *Session) Progress() (ImportProgress, bool) {
	s.importMu.Lock()
	defer s.importMu.Unlock()
	if s.progress == nil {
		return ImportProgress{}, false
	}
	return *s.progress, true
}

// LoadDataset imports the source at path and installs it, blocking until
// the import finishes. On any failure the previous state is kept.
func (s *Session) LoadDataset(ctx context.Context, path string) error {
	done, err := s.StartLoad(ctx, path)
	if err != nil {
		return err
	}
	res := <-done
	return res.Err
}

// StartLoad begins importing path on a separate goroutine and returns a
// channel that receives exactly one LoadResult. If another import is in
// flight it fails immediately with ErrImportInProgress.
//
// Cancelling ctx (or calling CancelImport) abandons the import; a
// cancelled import is never installed.
func (s *Session) StartLoad(ctx context.Context, path string) (<-chan LoadResult, error) {
	importID := uuid.NewString()
	loadCtx, cancel := context.WithCancel(ctx)

	// The slot is taken under writeMu so filter updates see it, and under
	// importMu so CancelImport never sees the slot without its cancel func.
	s.writeMu.Lock()
	s.importMu.Lock()
	if !s.gate.TryAcquire() {
		s.importMu.Unlock()
		s.writeMu.Unlock()
		cancel()
		return nil, &ImportError{Kind: ErrImportInProgress, Path: path}
	}
	s.cancel = cancel
	s.progress = &ImportProgress{ImportID: importID, FileName: path, Phase: PhaseStarting}
	s.importMu.Unlock()
	s.writeMu.Unlock()
	s.touch()

	done := make(chan LoadResult, 1)
	go func() {
		res := s.runLoad(loadCtx, importID, path)
		cancel()
		// Free the slot before delivering, so a caller woken by done can
		// start the next import straight away.
		s.importMu.Lock()
		s.cancel = nil
		s.gate.Release()
		s.importMu.Unlock()
		done <- res
		close(done)
	}()

	return done, nil
}

// CancelImport cancels the in-flight import. It reports false when no
// import is running.
func (s *Session) CancelImport() bool {
	s.importMu.Lock()
	defer s.importMu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

// runLoad parses and installs one source. It runs off the caller's goroutine.
func (s *Session) runLoad(ctx context.Context, importID, path string) LoadResult {
	start := time.Now()
	logger := s.logger.With("import_id", importID, "path", path)
	logger.Info("import started")

	res := LoadResult{ImportID: importID}
	fail := func(err error) LoadResult {
		res.Err = err
		res.Duration = time.Since(start)
		phase := PhaseFailed
		if isContextErr(err) {
			phase = PhaseCancelled
		}
		s.updateProgress(func(p *ImportProgress) {
			p.Phase = phase
			p.Error = err.Error()
		})
		logger.Warn("import failed", "phase", phase, "error", err, "duration_ms", res.Duration.Milliseconds())
		return res
	}

	if s.shared != nil {
		if err := s.shared.Acquire(ctx); err != nil {
			return fail(fmt.Errorf("wait for import slot: %w", err))
		}
		defer s.shared.Release()
	}

	s.updateProgress(func(p *ImportProgress) { p.Phase = PhaseReading })
	ds, err := s.importer.Import(ctx, path, func(rows int, bytes int64) {
		s.updateProgress(func(p *ImportProgress) {
			p.RowsRead = rows
			p.BytesRead = bytes
		})
	})
	if err != nil {
		return fail(err)
	}

	s.updateProgress(func(p *ImportProgress) { p.Phase = PhaseInstalling })
	if err := s.install(ctx, ds); err != nil {
		return fail(err)
	}

	res.Dataset = ds
	res.Duration = time.Since(start)
	s.updateProgress(func(p *ImportProgress) {
		p.Phase = PhaseComplete
		p.RowsRead = ds.RowCount()
	})
	logger.Info("import completed",
		"rows", ds.RowCount(),
		"columns", ds.ColumnCount(),
		"duration_ms", res.Duration.Milliseconds(),
	)

	s.recordImport(ctx, path, ds)
	return res
}

// install publishes ds with fresh filters, view and statistics. The
// context is checked under the write lock so a cancelled import cannot
// replace the current dataset.
func (s *Session) install(ctx context.Context, ds *Dataset) error {
	filters := NewFilterState(ds)
	view := Recompute(ds, filters)
	stats := ComputeStatistics(ds)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	cur := s.state.Load()
	s.state.Store(&Snapshot{
		Dataset: ds,
		Filters: filters,
		View:    view,
		Stats:   stats,
		Version: cur.Version + 1,
	})
	return nil
}

// recordImport writes the import event and remembers the path. Failures
// are logged and otherwise ignored.
func (s *Session) recordImport(ctx context.Context, path string, ds *Dataset) {
	// The import context is about to be cancelled; don't let that drop the event.
	ctx = context.WithoutCancel(ctx)

	err := s.activity.LogEvent(ctx, EventDatasetImported, map[string]any{
		"path":        path,
		"rowCount":    ds.RowCount(),
		"columnCount": ds.ColumnCount(),
	})
	if err != nil {
		s.logger.Warn("activity log write failed", "event", EventDatasetImported, "error", err)
	}

	if s.settings != nil {
		if err := s.settings.SetSetting(ctx, SettingLastDataset, path); err != nil {
			s.logger.Warn("settings write failed", "key", SettingLastDataset, "error", err)
		}
	}
}

func (s *Session) updateProgress(fn func(*ImportProgress)) {
	s.importMu.Lock()
	defer s.importMu.Unlock()
	if s.progress != nil {
		fn(s.progress)
	}
}

// SetColumnFilter sets one column's filter and recomputes the view.
// Other columns keep their filters. The column must exist in the current
// dataset; otherwise a *FilterError is returned and nothing changes.
func (s *Session) SetColumnFilter(column string, mode FilterMode) error {
	return s.update(func(cur *Snapshot) (FilterState, error) {
		return cur.Filters.With(cur.Dataset, column, mode)
	})
}

// ResetFilters sets every column back to ShowAll.
func (s *Session) ResetFilters() error {
	return s.update(func(cur *Snapshot) (FilterState, error) {
		return NewFilterState(cur.Dataset), nil
	})
}

// update applies a filter transition and publishes the recomputed view.
// Statistics are carried over unchanged. Imports only start under writeMu,
// so the Importing check holds for the whole update.
func (s *Session) update(next func(*Snapshot) (FilterState, error)) error {
	s.touch()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.Importing() {
		return &ImportError{Kind: ErrImportInProgress, Detail: "filters are locked while an import runs"}
	}

	cur := s.state.Load()
	filters, err := next(cur)
	if err != nil {
		return err
	}
	s.state.Store(&Snapshot{
		Dataset: cur.Dataset,
		Filters: filters,
		View:    Recompute(cur.Dataset, filters),
		Stats:   cur.Stats,
		Version: cur.Version + 1,
	})
	return nil
}

// errNoSettings is returned by the filter persistence methods when the
// session has no settings store.
var errNoSettings = errors.New("no settings store configured")

// SaveFilters stores the active column filters in the settings store.
func (s *Session) SaveFilters(ctx context.Context) error {
	if s.settings == nil {
		return errNoSettings
	}
	active := s.FilterState().Active()
	data, err := json.Marshal(active)
	if err != nil {
		return fmt.Errorf("encode filters: %w", err)
	}
	if err := s.settings.SetSetting(ctx, SettingFilters, string(data)); err != nil {
		return fmt.Errorf("save filters: %w", err)
	}
	return nil
}

// RestoreFilters re-applies saved filters to the current dataset. Saved
// entries for columns the dataset does not have are skipped. It returns
// the number of columns whose filter was applied.
func (s *Session) RestoreFilters(ctx context.Context) (int, error) {
	if s.settings == nil {
		return 0, errNoSettings
	}
	raw, err := s.settings.GetSetting(ctx, SettingFilters, "")
	if err != nil {
		return 0, fmt.Errorf("load filters: %w", err)
	}
	if raw == "" {
		return 0, nil
	}
	var saved map[string]FilterMode
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		return 0, fmt.Errorf("decode filters: %w", err)
	}

	applied := 0
	err = s.update(func(cur *Snapshot) (FilterState, error) {
		if cur.Dataset == nil {
			return cur.Filters, ErrNoDataset
		}
		fs := NewFilterState(cur.Dataset)
		for col, mode := range saved {
			next, err := fs.With(cur.Dataset, col, mode)
			if err != nil {
				continue
			}
			fs = next
			applied++
		}
		return fs, nil
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}

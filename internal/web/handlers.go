package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/markview/internal/core"
	"github.com/JonMunkholm/markview/internal/logging"
	"github.com/JonMunkholm/markview/internal/web/templates"
)

// maxPageRows caps how many rows one response carries.
const maxPageRows = 1000

// multipartMemory is how much of an upload is buffered in memory before
// spilling to disk.
const multipartMemory = 32 << 20

// columnResponse is one column with its marker count and filter.
type columnResponse struct {
	Name        string          `json:"name"`
	MarkedCount int             `json:"markedCount"`
	Filter      core.FilterMode `json:"filter"`
}

type datasetResponse struct {
	SourcePath string    `json:"sourcePath"`
	Sheet      string    `json:"sheet,omitempty"`
	ImportedAt time.Time `json:"importedAt"`
}

// viewResponse is the filtered view of a session.
type viewResponse struct {
	SessionID   string           `json:"sessionId"`
	Dataset     *datasetResponse `json:"dataset,omitempty"`
	Columns     []columnResponse `json:"columns"`
	Rows        [][]string       `json:"rows,omitempty"`
	Offset      int              `json:"offset,omitempty"`
	TotalRows   int              `json:"totalRows"`
	VisibleRows int              `json:"visibleRows"`
	UniqueCount int              `json:"uniqueCount"`
	Importing   bool             `json:"importing"`
}

// buildView renders a snapshot. Rows are included only when limit > 0.
func buildView(sess *core.Session, snap *core.Snapshot, offset, limit int) viewResponse {
	resp := viewResponse{
		SessionID:   sess.ID(),
		Columns:     []columnResponse{},
		VisibleRows: snap.View.RowCount(),
		UniqueCount: snap.Stats.UniqueCount,
		Importing:   sess.Importing(),
	}
	if snap.Dataset == nil {
		return resp
	}

	info := snap.Dataset.Info()
	resp.Dataset = &datasetResponse{
		SourcePath: filepath.Base(info.SourcePath),
		Sheet:      info.Sheet,
		ImportedAt: info.ImportedAt,
	}
	resp.TotalRows = snap.Dataset.RowCount()
	for _, c := range snap.Dataset.Columns() {
		resp.Columns = append(resp.Columns, columnResponse{
			Name:        c.Name,
			MarkedCount: snap.Stats.Marked(c.Name),
			Filter:      snap.Filters.Mode(c.Name),
		})
	}

	if limit > 0 {
		resp.Offset = offset
		resp.Rows = rowStrings(snap.View, offset, limit)
	}
	return resp
}

// rowStrings returns visible rows [offset, offset+limit) as display text.
func rowStrings(v *core.View, offset, limit int) [][]string {
	end := offset + limit
	if end > v.RowCount() {
		end = v.RowCount()
	}
	if offset >= end {
		return [][]string{}
	}
	out := make([][]string, 0, end-offset)
	for i := offset; i < end; i++ {
		row := v.Row(i)
		cells := make([]string, len(row))
		for j, c := range row {
			cells[j] = c.String()
		}
		out = append(out, cells)
	}
	return out
}

// parseIntParam parses an integer query parameter with a default value.
// Values below min fall back to the default.
func parseIntParam(r *http.Request, name string, defaultVal, min int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < min {
		return defaultVal
	}
	return i
}

// sessionFrom resolves the {sessionID} path parameter, responding with an
// error when the session does not exist.
func (s *Server) sessionFrom(w http.ResponseWriter, r *http.Request) (*core.Session, bool) {
	sess, err := s.reg.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err)
		return nil, false
	}
	return sess, true
}

// logEvent writes a UI event to the activity log. Failures are logged only.
func (s *Server) logEvent(r *http.Request, eventType string, payload map[string]any) {
	ctx := WithRequestMetadata(r.Context(), r)
	if err := s.activity.LogEvent(ctx, eventType, core.WithRequestInfo(ctx, payload)); err != nil {
		logging.FromContext(ctx).Warn("activity log write failed", "event", eventType, "error", err)
	}
}

// handleHealth reports liveness plus session and import counts.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":   "ok",
		"sessions": s.reg.Len(),
	}
	if s.limiter != nil {
		resp["imports"] = s.limiter.Status()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCreateSession starts a new session.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.reg.Create()
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.logEvent(r, core.EventSessionCreated, map[string]any{"session_id": sess.ID()})
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": sess.ID()})
}

// handleNewSessionPage starts a session from the dashboard form.
func (s *Server) handleNewSessionPage(w http.ResponseWriter, r *http.Request) {
	sess, err := s.reg.Create()
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.logEvent(r, core.EventSessionCreated, map[string]any{"session_id": sess.ID()})
	http.Redirect(w, r, "/sessions/"+sess.ID(), http.StatusSeeOther)
}

// handleDeleteSession drops a session and cancels its import.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.reg.Remove(chi.URLParam(r, "sessionID")) {
		respondError(w, r, core.ErrSessionNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpload stores an uploaded spreadsheet and imports it into the
// session. By default it answers 202 as soon as the import has started;
// with ?wait=true it answers once the import has finished.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Ingest.MaxFileSize+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large") {
			writeError(w, r, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	logger := logging.WithFields(r.Context(), "session_id", sess.ID(), "file", header.Filename)

	path, cleanup, err := s.saveUpload(file, header.Filename)
	if err != nil {
		respondError(w, r, fmt.Errorf("store upload: %w", err))
		return
	}

	// The import outlives the request unless the client waits for it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(WithRequestMetadata(r.Context(), r)), s.cfg.Ingest.Timeout)
	done, err := sess.StartLoad(ctx, path)
	if err != nil {
		cancel()
		cleanup()
		respondError(w, r, err)
		return
	}
	progress, _ := sess.Progress()
	logger.Info("upload received", "import_id", progress.ImportID, "size", header.Size)

	if r.URL.Query().Get("wait") != "true" {
		s.uploads.Add(1)
		go func() {
			defer s.uploads.Done()
			defer cancel()
			defer cleanup()
			if res := <-done; res.Err != nil {
				s.logImportFailure(ctx, header.Filename, res)
			}
		}()
		writeJSON(w, http.StatusAccepted, map[string]string{
			"import_id":  progress.ImportID,
			"status_url": "/api/sessions/" + sess.ID() + "/import",
		})
		return
	}

	defer cancel()
	defer cleanup()

	var res core.LoadResult
	select {
	case res = <-done:
	case <-r.Context().Done():
		sess.CancelImport()
		res = <-done
	}
	if res.Err != nil {
		s.logImportFailure(ctx, header.Filename, res)
		respondError(w, r, res.Err)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		http.Redirect(w, r, "/sessions/"+sess.ID(), http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, buildView(sess, sess.Snapshot(), 0, 0))
}

// saveUpload copies an upload into its own temp directory, keeping the
// original file name so the extension selects the reader and the name
// shows up in the activity log.
func (s *Server) saveUpload(src io.Reader, filename string) (string, func(), error) {
	dir, err := os.MkdirTemp(s.cfg.Ingest.UploadDir, "markview-upload-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { os.RemoveAll(dir) }

	name := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(filename, `\`, "/")))
	if name == "/" || name == "." {
		name = "upload"
	}
	path := filepath.Join(dir, name)

	dst, err := os.Create(path)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		cleanup()
		return "", nil, err
	}
	if err := dst.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}

// logImportFailure records a failed import in the activity log.
func (s *Server) logImportFailure(ctx context.Context, filename string, res core.LoadResult) {
	msg := core.MapError(res.Err)
	payload := core.WithRequestInfo(ctx, map[string]any{
		"path":      filename,
		"import_id": res.ImportID,
		"code":      msg.Code,
	})
	if err := s.activity.LogEvent(ctx, core.EventImportFailed, payload); err != nil {
		logging.FromContext(ctx).Warn("activity log write failed", "event", core.EventImportFailed, "error", err)
	}
}

// handleImportStatus reports progress of the current or last import.
func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	progress, ok := sess.Progress()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"importing": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"importing": sess.Importing(),
		"progress":  progress,
		"percent":   progress.Percent(),
	})
}

// handleCancelImport cancels the session's in-flight import.
func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": sess.CancelImport()})
}

// handleView returns the filtered rows. Supports ?offset= and ?limit=.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	offset := parseIntParam(r, "offset", 0, 0)
	limit := parseIntParam(r, "limit", maxPageRows, 1)
	if limit > maxPageRows {
		limit = maxPageRows
	}
	writeJSON(w, http.StatusOK, buildView(sess, sess.Snapshot(), offset, limit))
}

// handleStatistics returns the statistics of the loaded dataset.
func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.CurrentStatistics())
}

// handleGetFilters returns every column's filter mode.
func (s *Server) handleGetFilters(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"filters": sess.FilterState().Modes()})
}

// setFilterRequest is the body of PUT /filters/{column}.
type setFilterRequest struct {
	Mode string `json:"mode"`
}

// handleSetFilter sets one column's filter and returns the new summary.
func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}

	column := chi.URLParam(r, "column")
	if unescaped, err := url.PathUnescape(column); err == nil {
		column = unescaped
	}

	raw, err := filterModeFrom(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := core.ParseFilterMode(raw)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := sess.SetColumnFilter(column, mode); err != nil {
		respondError(w, r, err)
		return
	}

	snap := sess.Snapshot()
	s.logEvent(r, core.EventFilterChanged, map[string]any{
		"session_id":  sess.ID(),
		"column":      column,
		"mode":        mode.String(),
		"visibleRows": snap.View.RowCount(),
	})
	if isHTMX(r) {
		renderSessionTable(w, r, sess)
		return
	}
	writeJSON(w, http.StatusOK, buildView(sess, snap, 0, 0))
}

// filterModeFrom reads the requested mode. API clients send JSON
// {"mode": ...}; the HTML select posts it form-encoded.
func filterModeFrom(r *http.Request) (string, error) {
	if ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); ct == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return "", errors.New("invalid form body")
		}
		return r.PostForm.Get("mode"), nil
	}

	var req setFilterRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		return "", errors.New("invalid JSON body")
	}
	return req.Mode, nil
}

// handleResetFilters sets every column back to ShowAll.
func (s *Server) handleResetFilters(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	if err := sess.ResetFilters(); err != nil {
		respondError(w, r, err)
		return
	}
	s.logEvent(r, core.EventFiltersReset, map[string]any{"session_id": sess.ID()})
	if isHTMX(r) {
		renderSessionTable(w, r, sess)
		return
	}
	writeJSON(w, http.StatusOK, buildView(sess, sess.Snapshot(), 0, 0))
}

// handleSaveFilters persists the active filters.
func (s *Server) handleSaveFilters(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	if err := sess.SaveFilters(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"saved": sess.FilterState().ActiveCount()})
}

// handleRestoreFilters re-applies saved filters to the loaded dataset.
func (s *Server) handleRestoreFilters(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	applied, err := sess.RestoreFilters(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"applied": applied,
		"view":    buildView(sess, sess.Snapshot(), 0, 0),
	})
}

// handleEvents lists recent activity. Supports ?days= and ?limit=.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, r, http.StatusServiceUnavailable, "activity log unavailable")
		return
	}
	days := parseIntParam(r, "days", s.cfg.Activity.RecentDays, 0)
	limit := parseIntParam(r, "limit", s.cfg.Activity.RecentLimit, 1)

	events, err := s.events.RecentEvents(r.Context(), days, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if events == nil {
		events = []core.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"days":   days,
		"limit":  limit,
		"events": events,
	})
}

// handleDashboard renders the landing page with recent activity.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	days := s.cfg.Activity.RecentDays

	var items []templates.EventItem
	if s.events != nil {
		events, err := s.events.RecentEvents(r.Context(), days, s.cfg.Activity.RecentLimit)
		if err != nil {
			logging.FromContext(r.Context()).Warn("load recent events", "error", err)
		}
		for _, e := range events {
			items = append(items, templates.EventItem{
				Type:      e.Type,
				Summary:   eventSummary(e),
				Timestamp: e.Timestamp,
			})
		}
	}

	s.logEvent(r, core.EventDashboardViewed, nil)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	templates.Dashboard(items, days).Render(r.Context(), w)
}

// eventSummary describes an event's payload in one line.
func eventSummary(e core.Event) string {
	switch e.Type {
	case core.EventDatasetImported:
		return fmt.Sprintf("%s (%v rows, %v columns)",
			filepath.Base(fmt.Sprint(e.Payload["path"])), e.Payload["rowCount"], e.Payload["columnCount"])
	case core.EventImportFailed:
		return fmt.Sprintf("%v (%v)", e.Payload["path"], e.Payload["code"])
	case core.EventFilterChanged:
		return fmt.Sprintf("%v: %v", e.Payload["column"], e.Payload["mode"])
	default:
		return ""
	}
}

// handleSessionPage renders the session's table. HTMX requests get the
// table fragment only.
func (s *Server) handleSessionPage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	if isHTMX(r) {
		renderSessionTable(w, r, sess)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	templates.SessionPage(sessionPageParams(sess)).Render(r.Context(), w)
}

// renderSessionTable writes the #session partial that htmx swaps in.
func renderSessionTable(w http.ResponseWriter, r *http.Request, sess *core.Session) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	templates.SessionTable(sessionPageParams(sess)).Render(r.Context(), w)
}

func sessionPageParams(sess *core.Session) templates.SessionPageParams {
	view := buildView(sess, sess.Snapshot(), 0, maxPageRows)

	params := templates.SessionPageParams{
		SessionID:   sess.ID(),
		Rows:        view.Rows,
		TotalRows:   view.TotalRows,
		VisibleRows: view.VisibleRows,
		UniqueCount: view.UniqueCount,
		Truncated:   view.VisibleRows > len(view.Rows),
		Importing:   view.Importing,
	}
	if view.Dataset != nil {
		params.SourcePath = view.Dataset.SourcePath
	}
	for _, c := range view.Columns {
		params.Columns = append(params.Columns, templates.ColumnHeader{
			Name:        c.Name,
			MarkedCount: c.MarkedCount,
			Filter:      c.Filter.String(),
		})
	}
	return params
}

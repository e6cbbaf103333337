package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/JonMunkholm/markview/internal/config"
	"github.com/JonMunkholm/markview/internal/core"
	"github.com/JonMunkholm/markview/internal/web/templates"
)

// memoryActivity records events in memory.
type memoryActivity struct {
	mu       sync.Mutex
	events   []core.Event
	settings map[string]string
}

func newMemoryActivity() *memoryActivity {
	return &memoryActivity{settings: make(map[string]string)}
}

func (m *memoryActivity) LogEvent(_ context.Context, eventType string, payload map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, core.Event{Type: eventType, Payload: payload, Timestamp: time.Now()})
	return nil
}

func (m *memoryActivity) RecentEvents(_ context.Context, _, limit int) ([]core.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Event
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.events[i])
	}
	return out, nil
}

func (m *memoryActivity) GetSetting(_ context.Context, key, def string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.settings[key]; ok {
		return v, nil
	}
	return def, nil
}

func (m *memoryActivity) SetSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

func (m *memoryActivity) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

func (m *memoryActivity) last(eventType string) (core.Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].Type == eventType {
			return m.events[i], true
		}
	}
	return core.Event{}, false
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadWith(func(string) string { return "" })
	if err != nil {
		t.Fatalf("LoadWith: %v", err)
	}
	cfg.Rate.Enabled = false
	cfg.Ingest.UploadDir = t.TempDir()
	cfg.Ingest.Timeout = 10 * time.Second
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *memoryActivity) {
	t.Helper()
	act := newMemoryActivity()
	limiter := core.NewImportLimiter(2, time.Second)
	reg := core.NewRegistry(core.RegistryOptions{
		Session: core.SessionOptions{
			Importer: core.NewImporter(cfg.Ingest.MaxFileSize),
			Limiter:  limiter,
			Activity: act,
			Settings: act,
		},
	})
	s := NewServer(Deps{Registry: reg, Limiter: limiter, Activity: act, Events: act}, cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return s, act
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func createSession(t *testing.T, s *Server) string {
	t.Helper()
	rec := do(t, s, httptest.NewRequest(http.MethodPost, "/api/sessions", nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: status %d, body %s", rec.Code, rec.Body)
	}
	return decode[map[string]string](t, rec)["session_id"]
}

func uploadRequest(t *testing.T, target, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

const flagsCSV = "ID,Flag,Note\n1,1,\n2,,x\n3,1,\n"

// loadFlags creates a session holding flagsCSV.
func loadFlags(t *testing.T, s *Server) string {
	t.Helper()
	id := createSession(t, s)
	rec := do(t, s, uploadRequest(t, "/api/sessions/"+id+"/dataset?wait=true", "flags.csv", flagsCSV))
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: status %d, body %s", rec.Code, rec.Body)
	}
	return id
}

func TestUploadWaitReturnsView(t *testing.T) {
	s, act := newTestServer(t, testConfig(t))
	id := createSession(t, s)

	rec := do(t, s, uploadRequest(t, "/api/sessions/"+id+"/dataset?wait=true", "flags.csv", flagsCSV))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	got := decode[viewResponse](t, rec)
	if got.TotalRows != 3 || got.VisibleRows != 3 {
		t.Errorf("rows = %d/%d, want 3/3", got.VisibleRows, got.TotalRows)
	}
	if got.UniqueCount != 3 {
		t.Errorf("UniqueCount = %d, want 3", got.UniqueCount)
	}
	if got.Dataset == nil || got.Dataset.SourcePath != "flags.csv" {
		t.Errorf("Dataset = %+v, want source flags.csv", got.Dataset)
	}

	wantCols := []columnResponse{
		{Name: "ID", MarkedCount: 1, Filter: core.ShowAll},
		{Name: "Flag", MarkedCount: 2, Filter: core.ShowAll},
		{Name: "Note", MarkedCount: 0, Filter: core.ShowAll},
	}
	if diff := cmp.Diff(wantCols, got.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}

	e, ok := act.last(core.EventDatasetImported)
	if !ok {
		t.Fatalf("no %s event in %v", core.EventDatasetImported, act.types())
	}
	if e.Payload["rowCount"] != 3 || e.Payload["columnCount"] != 3 {
		t.Errorf("import payload = %v", e.Payload)
	}
}

func TestUploadAsyncAccepted(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))
	id := createSession(t, s)

	rec := do(t, s, uploadRequest(t, "/api/sessions/"+id+"/dataset", "flags.csv", flagsCSV))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	resp := decode[map[string]string](t, rec)
	if resp["import_id"] == "" {
		t.Error("missing import_id")
	}
	if resp["status_url"] != "/api/sessions/"+id+"/import" {
		t.Errorf("status_url = %q", resp["status_url"])
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id+"/view?limit=1", nil))
		v := decode[viewResponse](t, rec)
		if v.TotalRows == 3 {
			if len(v.Rows) != 1 {
				t.Errorf("len(Rows) = %d, want 1", len(v.Rows))
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("import did not complete")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestUploadUnsupportedFile(t *testing.T) {
	s, act := newTestServer(t, testConfig(t))
	id := loadFlags(t, s)

	rec := do(t, s, uploadRequest(t, "/api/sessions/"+id+"/dataset?wait=true", "notes.pdf", "%PDF-1.4"))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if got := decode[ErrorResponse](t, rec); !strings.HasPrefix(got.Code, "IMP") {
		t.Errorf("Code = %q, want IMP*", got.Code)
	}
	if _, ok := act.last(core.EventImportFailed); !ok {
		t.Errorf("no %s event in %v", core.EventImportFailed, act.types())
	}

	// The previous dataset is still installed.
	v := decode[viewResponse](t, do(t, s, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id+"/view", nil)))
	if v.TotalRows != 3 {
		t.Errorf("TotalRows = %d, want 3 after failed import", v.TotalRows)
	}
}

func TestUploadTooLarge(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ingest.MaxFileSize = 16
	s, _ := newTestServer(t, cfg)
	id := createSession(t, s)

	big := strings.Repeat("a,b\n", 64)
	rec := do(t, s, uploadRequest(t, "/api/sessions/"+id+"/dataset?wait=true", "big.csv", big))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 (body %s)", rec.Code, rec.Body)
	}
	if got := decode[ErrorResponse](t, rec).Code; got != "IMP004" {
		t.Errorf("Code = %q, want IMP004", got)
	}
}

func TestUploadMissingFile(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))
	id := createSession(t, s)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("other", "x")
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/dataset", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := do(t, s, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSetFilter(t *testing.T) {
	tests := []struct {
		name        string
		column      string
		body        string
		wantStatus  int
		wantVisible int
		wantCode    string
	}{
		{name: "marked", column: "Flag", body: `{"mode":"marked"}`, wantStatus: 200, wantVisible: 2},
		{name: "empty", column: "Note", body: `{"mode":"empty"}`, wantStatus: 200, wantVisible: 2},
		{name: "all", column: "Flag", body: `{"mode":"all"}`, wantStatus: 200, wantVisible: 3},
		{name: "unknown column", column: "Missing", body: `{"mode":"marked"}`, wantStatus: 404, wantCode: "FLT001"},
		{name: "bad mode", column: "Flag", body: `{"mode":"sometimes"}`, wantStatus: 400, wantCode: "REQ000"},
		{name: "bad json", column: "Flag", body: `{`, wantStatus: 400, wantCode: "REQ000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, testConfig(t))
			id := loadFlags(t, s)

			req := httptest.NewRequest(http.MethodPut, "/api/sessions/"+id+"/filters/"+tt.column, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := do(t, s, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body)
			}
			if tt.wantStatus != http.StatusOK {
				if tt.wantCode != "" {
					if got := decode[ErrorResponse](t, rec).Code; got != tt.wantCode {
						t.Errorf("Code = %q, want %q", got, tt.wantCode)
					}
				}
				return
			}
			if got := decode[viewResponse](t, rec).VisibleRows; got != tt.wantVisible {
				t.Errorf("VisibleRows = %d, want %d", got, tt.wantVisible)
			}
		})
	}
}

func TestFiltersCompose(t *testing.T) {
	s, act := newTestServer(t, testConfig(t))
	id := loadFlags(t, s)

	put := func(col, mode string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/api/sessions/"+id+"/filters/"+col,
			strings.NewReader(`{"mode":"`+mode+`"}`))
		return do(t, s, req)
	}
	put("Flag", "marked")
	rec := put("ID", "marked")
	if got := decode[viewResponse](t, rec).VisibleRows; got != 1 {
		t.Errorf("VisibleRows = %d, want 1", got)
	}

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id+"/filters", nil))
	got := decode[map[string]map[string]string](t, rec)["filters"]
	want := map[string]string{"ID": "marked", "Flag": "marked", "Note": "all"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("filters mismatch (-want +got):\n%s", diff)
	}

	e, ok := act.last(core.EventFilterChanged)
	if !ok {
		t.Fatal("no filter_changed event")
	}
	if e.Payload["column"] != "ID" || e.Payload["mode"] != "marked" || e.Payload["visibleRows"] != 1 {
		t.Errorf("filter_changed payload = %v", e.Payload)
	}

	rec = do(t, s, httptest.NewRequest(http.MethodDelete, "/api/sessions/"+id+"/filters", nil))
	if got := decode[viewResponse](t, rec).VisibleRows; got != 3 {
		t.Errorf("after reset VisibleRows = %d, want 3", got)
	}
}

func TestRestoreFiltersWithoutDataset(t *testing.T) {
	s, store := newTestServer(t, testConfig(t))
	id := createSession(t, s)

	saved, err := json.Marshal(map[string]core.FilterMode{"Flag": core.OnlyMarked})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SetSetting(context.Background(), core.SettingFilters, string(saved)); err != nil {
		t.Fatal(err)
	}

	rec := do(t, s, httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/filters/restore", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 (body %s)", rec.Code, rec.Body)
	}
	if got := decode[ErrorResponse](t, rec).Code; got != "FLT002" {
		t.Errorf("Code = %q, want FLT002", got)
	}
}

func TestSaveAndRestoreFilters(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))
	id := loadFlags(t, s)

	req := httptest.NewRequest(http.MethodPut, "/api/sessions/"+id+"/filters/Flag", strings.NewReader(`{"mode":"marked"}`))
	do(t, s, req)

	rec := do(t, s, httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/filters/save", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("save: status %d, body %s", rec.Code, rec.Body)
	}

	// Re-import resets filters; restore brings them back.
	rec = do(t, s, uploadRequest(t, "/api/sessions/"+id+"/dataset?wait=true", "flags.csv", flagsCSV))
	if got := decode[viewResponse](t, rec).VisibleRows; got != 3 {
		t.Fatalf("after re-import VisibleRows = %d, want 3", got)
	}

	rec = do(t, s, httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/filters/restore", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("restore: status %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		Applied int          `json:"applied"`
		View    viewResponse `json:"view"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Applied != 1 || resp.View.VisibleRows != 2 {
		t.Errorf("applied = %d, visible = %d; want 1, 2", resp.Applied, resp.View.VisibleRows)
	}
}

func TestStatistics(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))
	id := loadFlags(t, s)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id+"/statistics", nil))
	got := decode[core.Statistics](t, rec)
	want := core.Statistics{
		UniqueCount: 3,
		MarkedCount: map[string]int{"ID": 1, "Flag": 2, "Note": 0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("statistics mismatch (-want +got):\n%s", diff)
	}
}

func TestViewWithoutDataset(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))
	id := createSession(t, s)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id+"/view", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[viewResponse](t, rec)
	if got.Dataset != nil || got.TotalRows != 0 || len(got.Columns) != 0 {
		t.Errorf("view = %+v, want empty", got)
	}

	req := httptest.NewRequest(http.MethodPut, "/api/sessions/"+id+"/filters/ID", strings.NewReader(`{"mode":"marked"}`))
	if rec := do(t, s, req); rec.Code != http.StatusNotFound {
		t.Errorf("filter without dataset: status = %d, want 404", rec.Code)
	}
}

func TestSessionNotFound(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))

	for _, path := range []string{"/view", "/statistics", "/filters", "/import"} {
		rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/sessions/nope"+path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s: status = %d, want 404", path, rec.Code)
			continue
		}
		if got := decode[ErrorResponse](t, rec).Code; got != "SES001" {
			t.Errorf("GET %s: Code = %q, want SES001", path, got)
		}
	}
}

func TestDeleteSession(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))
	id := createSession(t, s)

	if rec := do(t, s, httptest.NewRequest(http.MethodDelete, "/api/sessions/"+id+"/", nil)); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", rec.Code)
	}
	if rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id+"/view", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("after delete: status = %d, want 404", rec.Code)
	}
}

func TestImportStatus(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))
	id := createSession(t, s)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id+"/import", nil))
	if got := decode[map[string]any](t, rec); got["importing"] != false {
		t.Errorf("before import = %v", got)
	}

	loadID := loadFlags(t, s)
	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/sessions/"+loadID+"/import", nil))
	var got struct {
		Importing bool                `json:"importing"`
		Progress  core.ImportProgress `json:"progress"`
		Percent   int                 `json:"percent"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Progress.Phase != core.PhaseComplete || got.Percent != 100 {
		t.Errorf("progress = %+v percent %d, want complete/100", got.Progress, got.Percent)
	}

	rec = do(t, s, httptest.NewRequest(http.MethodDelete, "/api/sessions/"+loadID+"/import", nil))
	if got := decode[map[string]bool](t, rec); got["cancelled"] {
		t.Error("cancelled = true with no import running")
	}
}

func TestEvents(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))
	loadFlags(t, s)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/events?limit=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got struct {
		Limit  int          `json:"limit"`
		Events []core.Event `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Limit != 1 || len(got.Events) != 1 {
		t.Fatalf("limit %d, %d events; want 1, 1", got.Limit, len(got.Events))
	}
	if got.Events[0].Type != core.EventDatasetImported {
		t.Errorf("newest event = %q, want %q", got.Events[0].Type, core.EventDatasetImported)
	}
}

func TestEventsWithoutStore(t *testing.T) {
	cfg := testConfig(t)
	s := NewServer(Deps{Registry: core.NewRegistry(core.RegistryOptions{})}, cfg)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestPages(t *testing.T) {
	s, act := newTestServer(t, testConfig(t))

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Recent activity") {
		t.Errorf("dashboard: status %d, body %q", rec.Code, rec.Body)
	}
	if _, ok := act.last(core.EventDashboardViewed); !ok {
		t.Error("no dashboard_viewed event")
	}

	rec = do(t, s, httptest.NewRequest(http.MethodPost, "/sessions", nil))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("new session: status = %d, want 303", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "/sessions/") {
		t.Fatalf("Location = %q", loc)
	}

	rec = do(t, s, httptest.NewRequest(http.MethodGet, loc, nil))
	if !strings.Contains(rec.Body.String(), "No dataset loaded") {
		t.Errorf("empty session page missing placeholder: %q", rec.Body)
	}

	id := loadFlags(t, s)
	req := httptest.NewRequest(http.MethodGet, "/sessions/"+id, nil)
	req.Header.Set("HX-Request", "true")
	body := do(t, s, req).Body.String()
	if strings.Contains(body, "<html") {
		t.Error("HTMX response contains full page")
	}
	for _, want := range []string{"Flag (2)", "Showing 3 of 3 rows", "flags.csv"} {
		if !strings.Contains(body, want) {
			t.Errorf("session table missing %q", want)
		}
	}
}

func TestSessionPageLoadsHTMX(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))
	id := loadFlags(t, s)

	body := do(t, s, httptest.NewRequest(http.MethodGet, "/sessions/"+id, nil)).Body.String()
	for _, want := range []string{
		`<script src="` + templates.HTMXScriptURL + `">`,
		`hx-put="/api/sessions/` + id + `/filters/Flag"`,
		`hx-target="#session"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("session page missing %q", want)
		}
	}
}

func TestSetFilterHTMX(t *testing.T) {
	s, act := newTestServer(t, testConfig(t))
	id := loadFlags(t, s)

	hxRequest := func(method, target, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("HX-Request", "true")
		if body != "" {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
		return do(t, s, req)
	}

	rec := hxRequest(http.MethodPut, "/api/sessions/"+id+"/filters/Flag", "mode=marked")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{`<section id="session"`, "Showing 2 of 3 rows", `<option value="marked" selected>`} {
		if !strings.Contains(body, want) {
			t.Errorf("partial missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "<html") {
		t.Error("HTMX response contains full page")
	}
	if e, ok := act.last(core.EventFilterChanged); !ok || e.Payload["mode"] != "marked" {
		t.Errorf("filter_changed event = %+v", e)
	}

	rec = hxRequest(http.MethodPut, "/api/sessions/"+id+"/filters/Flag", "mode=sometimes")
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "alert-error") {
		t.Errorf("bad mode: status %d, body %s", rec.Code, rec.Body)
	}

	rec = hxRequest(http.MethodDelete, "/api/sessions/"+id+"/filters", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Showing 3 of 3 rows") {
		t.Errorf("reset: status %d, body %s", rec.Code, rec.Body)
	}
}

func TestBrowserUploadRedirects(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))
	id := createSession(t, s)

	req := uploadRequest(t, "/api/sessions/"+id+"/dataset?wait=true", "flags.csv", flagsCSV)
	req.Header.Set("Accept", "text/html")
	rec := do(t, s, req)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/sessions/"+id {
		t.Errorf("status %d, Location %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))
	createSession(t, s)

	got := decode[map[string]any](t, do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil)))
	if got["status"] != "ok" || got["sessions"] != float64(1) {
		t.Errorf("health = %v", got)
	}
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig(t)
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"secret"}
	s, _ := newTestServer(t, cfg)

	if rec := do(t, s, httptest.NewRequest(http.MethodPost, "/api/sessions", nil)); rec.Code != http.StatusUnauthorized {
		t.Errorf("no key: status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
	req.Header.Set("X-API-Key", "secret")
	if rec := do(t, s, req); rec.Code != http.StatusCreated {
		t.Errorf("valid key: status = %d, want 201", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.Rate.Enabled = true
	cfg.Rate.RequestsPerMinute = 2
	s, _ := newTestServer(t, cfg)

	var codes []int
	for range 3 {
		codes = append(codes, do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
	}
	want := []int{200, 200, 429}
	if diff := cmp.Diff(want, codes); diff != "" {
		t.Errorf("status codes mismatch (-want +got):\n%s", diff)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrSessionNotFound, http.StatusNotFound},
		{&core.FilterError{Column: "x"}, http.StatusNotFound},
		{&core.ImportError{Kind: core.ErrImportInProgress}, http.StatusConflict},
		{core.ErrNoDataset, http.StatusConflict},
		{core.ErrTooManySessions, http.StatusServiceUnavailable},
		{&core.ImportError{Kind: core.ErrMalformedHeader}, http.StatusUnprocessableEntity},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{context.Canceled, http.StatusRequestTimeout},
		{http.ErrBodyNotAllowed, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

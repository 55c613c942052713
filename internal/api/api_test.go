package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/priyanshumodi22/kubiq-sub000/internal/aggregator"
	"github.com/priyanshumodi22/kubiq-sub000/internal/tailer"
	"github.com/priyanshumodi22/kubiq-sub000/internal/testutil"
	"github.com/priyanshumodi22/kubiq-sub000/pkg/types"
)

// =============================================================================
// IN-MEMORY STORE
// =============================================================================

type memStore struct {
	mu       sync.Mutex
	targets  map[string]types.ServiceTarget
	channels map[string]types.NotificationChannel
	sources  map[string]types.LogSource
	pages    map[string]types.StatusPage
	history  map[string][]types.CheckResult
}

func newMemStore() *memStore {
	return &memStore{
		targets:  make(map[string]types.ServiceTarget),
		channels: make(map[string]types.NotificationChannel),
		sources:  make(map[string]types.LogSource),
		pages:    make(map[string]types.StatusPage),
		history:  make(map[string][]types.CheckResult),
	}
}

func (m *memStore) CreateTarget(ctx context.Context, t *types.ServiceTarget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targets[t.Name] = *t
	return nil
}

func (m *memStore) GetTarget(ctx context.Context, name string) (*types.ServiceTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.targets[name]; ok {
		return &t, nil
	}
	return nil, nil
}

func (m *memStore) ListTargets(ctx context.Context) ([]types.ServiceTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.ServiceTarget, 0, len(m.targets))
	for _, t := range m.targets {
		out = append(out, t)
	}
	return out, nil
}

func (m *memStore) UpdateTarget(ctx context.Context, t *types.ServiceTarget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targets[t.Name] = *t
	return nil
}

func (m *memStore) DeleteTarget(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.targets, name)
	return nil
}

func (m *memStore) CreateChannel(ctx context.Context, ch *types.NotificationChannel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.ID] = *ch
	return nil
}

func (m *memStore) GetChannel(ctx context.Context, id string) (*types.NotificationChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.channels[id]; ok {
		return &ch, nil
	}
	return nil, nil
}

func (m *memStore) ListChannels(ctx context.Context) ([]types.NotificationChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.NotificationChannel, 0, len(m.channels))
	for _, ch := range m.channels {
		out = append(out, ch)
	}
	return out, nil
}

func (m *memStore) UpdateChannel(ctx context.Context, ch *types.NotificationChannel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.ID] = *ch
	return nil
}

func (m *memStore) DeleteChannel(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, id)
	return nil
}

func (m *memStore) CreateLogSource(ctx context.Context, src *types.LogSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[src.ID] = *src
	return nil
}

func (m *memStore) GetLogSource(ctx context.Context, id string) (*types.LogSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if src, ok := m.sources[id]; ok {
		return &src, nil
	}
	return nil, nil
}

func (m *memStore) ListLogSources(ctx context.Context) ([]types.LogSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.LogSource, 0, len(m.sources))
	for _, src := range m.sources {
		out = append(out, src)
	}
	return out, nil
}

func (m *memStore) DeleteLogSource(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sources, id)
	return nil
}

func (m *memStore) CreateStatusPage(ctx context.Context, page *types.StatusPage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[page.Slug] = *page
	return nil
}

func (m *memStore) GetStatusPage(ctx context.Context, slug string) (*types.StatusPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if page, ok := m.pages[slug]; ok {
		return &page, nil
	}
	return nil, nil
}

func (m *memStore) ListStatusPages(ctx context.Context) ([]types.StatusPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.StatusPage, 0, len(m.pages))
	for _, page := range m.pages {
		out = append(out, page)
	}
	return out, nil
}

func (m *memStore) UpdateStatusPage(ctx context.Context, page *types.StatusPage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[page.Slug] = *page
	return nil
}

func (m *memStore) DeleteStatusPage(ctx context.Context, slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pages, slug)
	return nil
}

func (m *memStore) GetResultHistory(ctx context.Context, target string, window time.Duration, limit int) ([]types.CheckResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	results := m.history[target]
	if limit > 0 && len(results) > limit {
		results = results[len(results)-limit:]
	}
	return results, nil
}

// =============================================================================
// STUBS
// =============================================================================

type stubScheduler struct {
	mu        sync.Mutex
	known     map[string]bool
	triggered []string
}

func (s *stubScheduler) TriggerNow(target string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.known[target] {
		return false
	}
	s.triggered = append(s.triggered, target)
	return true
}

func (s *stubScheduler) TargetCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.known)
}

type stubStates struct {
	states []types.ServiceState
}

func (s *stubStates) States() []types.ServiceState { return s.states }

type stubHistory struct{}

func (stubHistory) Query(target string, limit int) []types.CheckResult { return nil }

// =============================================================================
// TEST SERVER
// =============================================================================

type testEnv struct {
	server    *Server
	store     *memStore
	scheduler *stubScheduler
	states    *stubStates
	tailer    *tailer.Tailer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := testutil.NewTestLogger()
	st := newMemStore()
	sched := &stubScheduler{known: make(map[string]bool)}
	states := &stubStates{}
	agg := aggregator.New(states, stubHistory{}, st, nil, logger)
	tl := tailer.New(tailer.Config{PollInterval: 20 * time.Millisecond}, logger)
	t.Cleanup(tl.CloseAll)

	return &testEnv{
		server:    NewServer(st, sched, agg, tl, states, nil, logger),
		store:     st,
		scheduler: sched,
		states:    states,
		tailer:    tl,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return v
}

// =============================================================================
// TESTS
// =============================================================================

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	env.scheduler.known["api"] = true

	rec := env.do(t, "GET", "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
	if body["targets"].(float64) != 1 {
		t.Fatalf("targets = %v", body["targets"])
	}
}

func TestCORSPreflights(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "OPTIONS", "/api/v1/targets", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS header")
	}
}

func TestTargetCRUD(t *testing.T) {
	env := newTestEnv(t)
	target := testutil.FixtureTarget(func(tt *types.ServiceTarget) {
		tt.Name = "payments"
	})

	rec := env.do(t, "POST", "/api/v1/targets", target)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, "GET", "/api/v1/targets/payments", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	got := decode[types.ServiceTarget](t, rec)
	if got.Name != "payments" || got.URL != target.URL {
		t.Fatalf("got = %+v", got)
	}

	rec = env.do(t, "GET", "/api/v1/targets", nil)
	list := decode[map[string]any](t, rec)
	if list["count"].(float64) != 1 {
		t.Fatalf("list count = %v", list["count"])
	}

	target.URL = "https://example.com/readyz"
	rec = env.do(t, "PUT", "/api/v1/targets/payments", target)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}
	updated := decode[types.ServiceTarget](t, rec)
	if updated.URL != "https://example.com/readyz" {
		t.Fatalf("updated = %+v", updated)
	}

	rec = env.do(t, "DELETE", "/api/v1/targets/payments", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = env.do(t, "GET", "/api/v1/targets/payments", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", rec.Code)
	}
}

func TestCreateTarget_Validation(t *testing.T) {
	env := newTestEnv(t)

	// HTTP target without a URL is rejected.
	bad := testutil.FixtureTarget(func(tt *types.ServiceTarget) { tt.URL = "" })
	rec := env.do(t, "POST", "/api/v1/targets", bad)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCreateTarget_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	target := testutil.FixtureTarget(func(tt *types.ServiceTarget) { tt.Name = "dup" })

	if rec := env.do(t, "POST", "/api/v1/targets", target); rec.Code != http.StatusCreated {
		t.Fatalf("first create status = %d", rec.Code)
	}
	if rec := env.do(t, "POST", "/api/v1/targets", target); rec.Code != http.StatusConflict {
		t.Fatalf("second create status = %d", rec.Code)
	}
}

func TestTriggerCheck(t *testing.T) {
	env := newTestEnv(t)
	env.scheduler.known["api"] = true

	rec := env.do(t, "POST", "/api/v1/targets/api/check", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(env.scheduler.triggered) != 1 || env.scheduler.triggered[0] != "api" {
		t.Fatalf("triggered = %v", env.scheduler.triggered)
	}

	rec = env.do(t, "POST", "/api/v1/targets/ghost/check", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown target status = %d", rec.Code)
	}
}

func TestTargetHistory(t *testing.T) {
	env := newTestEnv(t)
	env.store.history["api"] = []types.CheckResult{
		testutil.FixtureResult("api"),
		testutil.FixtureResult("api"),
		testutil.FixtureFailedResult("api", types.FailureTimeout),
	}

	rec := env.do(t, "GET", "/api/v1/targets/api/history?window=1h&limit=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decode[map[string]any](t, rec)
	if body["count"].(float64) != 2 {
		t.Fatalf("count = %v", body["count"])
	}

	rec = env.do(t, "GET", "/api/v1/targets/api/history?window=bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad window status = %d", rec.Code)
	}
}

func TestChannelCRUD(t *testing.T) {
	env := newTestEnv(t)
	ch := testutil.FixtureChannel(func(c *types.NotificationChannel) { c.ID = "" })

	rec := env.do(t, "POST", "/api/v1/channels", ch)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[types.NotificationChannel](t, rec)
	if created.ID == "" {
		t.Fatal("server did not assign an ID")
	}

	rec = env.do(t, "GET", "/api/v1/channels/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	created.Name = "renamed"
	rec = env.do(t, "PUT", "/api/v1/channels/"+created.ID, created)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, "DELETE", "/api/v1/channels/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = env.do(t, "GET", "/api/v1/channels/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", rec.Code)
	}
}

func TestLogSourceCRUD(t *testing.T) {
	env := newTestEnv(t)
	src := testutil.FixtureLogSource("/var/log/app/*.log", func(s *types.LogSource) { s.ID = "" })

	rec := env.do(t, "POST", "/api/v1/logsources", src)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[types.LogSource](t, rec)
	if created.ID == "" {
		t.Fatal("server did not assign an ID")
	}

	rec = env.do(t, "GET", "/api/v1/logsources", nil)
	list := decode[map[string]any](t, rec)
	if list["count"].(float64) != 1 {
		t.Fatalf("list count = %v", list["count"])
	}

	rec = env.do(t, "DELETE", "/api/v1/logsources/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
}

func TestCreateLogSource_Validation(t *testing.T) {
	env := newTestEnv(t)
	src := testutil.FixtureLogSource("", func(s *types.LogSource) { s.Pattern = "" })

	rec := env.do(t, "POST", "/api/v1/logsources", src)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestStatusPageCRUD(t *testing.T) {
	env := newTestEnv(t)
	page := testutil.FixtureStatusPage([]string{"api"}, func(p *types.StatusPage) {
		p.Slug = "public"
	})

	rec := env.do(t, "POST", "/api/v1/pages", page)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, "PUT", "/api/v1/pages/public", map[string]any{
		"title":         "Renamed",
		"service_names": []string{"api", "db"},
		"enabled":       true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, "DELETE", "/api/v1/pages/public", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = env.do(t, "GET", "/api/v1/pages/public", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", rec.Code)
	}
}

func TestPublicStatus(t *testing.T) {
	env := newTestEnv(t)
	env.states.states = []types.ServiceState{
		{Target: "api", Status: types.StatusHealthy, UptimePercent: 99.9},
	}
	env.store.pages["public"] = *testutil.FixtureStatusPage([]string{"api"}, func(p *types.StatusPage) {
		p.Slug = "public"
	})
	env.store.pages["hidden"] = *testutil.FixtureStatusPage(nil, func(p *types.StatusPage) {
		p.Slug = "hidden"
		p.Enabled = false
	})

	rec := env.do(t, "GET", "/api/v1/status/public", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	view := decode[aggregator.PageView](t, rec)
	if len(view.Services) != 1 || view.Services[0].Name != "api" {
		t.Fatalf("view = %+v", view)
	}

	// Disabled and missing slugs return identical 404s.
	recDisabled := env.do(t, "GET", "/api/v1/status/hidden", nil)
	recMissing := env.do(t, "GET", "/api/v1/status/ghost", nil)
	if recDisabled.Code != http.StatusNotFound || recMissing.Code != http.StatusNotFound {
		t.Fatalf("codes = %d / %d", recDisabled.Code, recMissing.Code)
	}
	if recDisabled.Body.String() != recMissing.Body.String() {
		t.Fatal("disabled page leaked its existence")
	}
}

func TestOverview(t *testing.T) {
	env := newTestEnv(t)
	env.states.states = []types.ServiceState{
		{Target: "api", Status: types.StatusHealthy},
		{Target: "db", Status: types.StatusUnhealthy},
	}

	rec := env.do(t, "GET", "/api/v1/overview", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	overview := decode[aggregator.FleetOverview](t, rec)
	if overview.TotalTargets != 2 || overview.Healthy != 1 {
		t.Fatalf("overview = %+v", overview)
	}
}

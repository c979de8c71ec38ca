package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/goleak"

	"github.com/askbase/askbase/internal/answer"
	"github.com/askbase/askbase/internal/log"
	"github.com/askbase/askbase/internal/partition"
	"github.com/askbase/askbase/internal/resolver"
	"github.com/askbase/askbase/internal/router"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockResolver returns a canned resolution result.
type mockResolver struct {
	result resolver.Result
}

func (m *mockResolver) Resolve(_ context.Context, _, _ string) resolver.Result {
	return m.result
}

// mockRouter returns a canned retrieval plan and documents.
type mockRouter struct {
	plan router.Plan
	docs []partition.Result

	lastQuery string
	lastTier  int
}

func (m *mockRouter) Search(_ context.Context, query string, userTier, _ int) (router.Plan, []partition.Result) {
	m.lastQuery = query
	m.lastTier = userTier
	return m.plan, m.docs
}

// mockLogs counts Append calls.
type mockLogs struct {
	queries []string
	err     error
}

func (m *mockLogs) Append(_ context.Context, query, _, _ string) error {
	m.queries = append(m.queries, query)
	return m.err
}

// mockStats serves canned statistics.
type mockStats struct {
	stats *answer.Stats
	err   error
}

func (m *mockStats) Stats(_ context.Context, _ int) (*answer.Stats, error) {
	return m.stats, m.err
}

// mockRefresher records refresh calls.
type mockRefresher struct {
	calls int
	err   error
}

func (m *mockRefresher) Refresh(_ context.Context) error {
	m.calls++
	return m.err
}

func newTestServer(res *mockResolver, rt *mockRouter, logs *mockLogs, stats *mockStats, ref *mockRefresher) http.Handler {
	logger := log.NewNop()
	resolve := NewResolveHandler(res, rt, logs, logger)
	admin := NewAdminHandler(stats, ref, logger)
	return NewServer(nil, resolve, admin, logger).Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestResolveCacheHit(t *testing.T) {
	res := &mockResolver{result: resolver.Result{
		Hit:        true,
		ClusterID:  "c_kitas",
		Answer:     "Submit form E23.",
		Sources:    []string{"kb/kitas"},
		Confidence: 0.95,
		MatchType:  resolver.MatchSemantic,
		Similarity: 0.87,
	}}
	rt := &mockRouter{}
	logs := &mockLogs{}
	h := newTestServer(res, rt, logs, &mockStats{}, &mockRefresher{})

	rec := doJSON(t, h, http.MethodPost, "/api/resolve", `{"query":"kitas renewal","userTier":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	body := rec.Body.String()
	for _, want := range []string{`"source":"cache"`, `"answer":"Submit form E23."`, `"matchType":"semantic"`, `"similarity":0.87`} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %s: %s", want, body)
		}
	}

	// A cache hit never logs for mining or touches retrieval.
	if len(logs.queries) != 0 {
		t.Errorf("cache hit appended to query log: %v", logs.queries)
	}
	if rt.lastQuery != "" {
		t.Errorf("cache hit reached the router with %q", rt.lastQuery)
	}
}

func TestResolveMissFallsToRetrieval(t *testing.T) {
	rt := &mockRouter{
		plan: router.Plan{Partition: "visas"},
		docs: []partition.Result{
			{Document: partition.Document{ID: "d1", Content: "visa doc"}, Similarity: 0.72},
		},
	}
	logs := &mockLogs{}
	h := newTestServer(&mockResolver{}, rt, logs, &mockStats{}, &mockRefresher{})

	rec := doJSON(t, h, http.MethodPost, "/api/resolve", `{"query":"obscure visa question","userTier":2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	body := rec.Body.String()
	if !strings.Contains(body, `"source":"retrieval"`) || !strings.Contains(body, `"partition":"visas"`) {
		t.Errorf("unexpected body: %s", body)
	}
	if rt.lastTier != 2 {
		t.Errorf("user tier = %d, want 2", rt.lastTier)
	}
	if len(logs.queries) != 1 || logs.queries[0] != "obscure visa question" {
		t.Errorf("query log = %v, want the missed query", logs.queries)
	}
}

func TestResolveLogFailureStillServes(t *testing.T) {
	logs := &mockLogs{err: errors.New("db down")}
	h := newTestServer(&mockResolver{}, &mockRouter{plan: router.Plan{Partition: "general"}}, logs, &mockStats{}, &mockRefresher{})

	rec := doJSON(t, h, http.MethodPost, "/api/resolve", `{"query":"q"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("log append failure must not fail the request, got %d", rec.Code)
	}
}

func TestResolveBadRequests(t *testing.T) {
	h := newTestServer(&mockResolver{}, &mockRouter{}, &mockLogs{}, &mockStats{}, &mockRefresher{})

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"query":`},
		{"missing query", `{"userTier":1}`},
		{"blank query", `{"query":"   "}`},
		{"oversized query", `{"query":"` + strings.Repeat("a", maxQueryLength+1) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/api/resolve", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestStatsEndpoint(t *testing.T) {
	stats := &mockStats{stats: &answer.Stats{
		TotalAnswers:  12,
		TotalUsage:    340,
		AvgConfidence: 0.91,
		TopAnswers: []answer.TopAnswer{
			{ClusterID: "c_kitas", CanonicalQuestion: "how do i extend my kitas?", UsageCount: 120},
		},
	}}
	h := newTestServer(&mockResolver{}, &mockRouter{}, &mockLogs{}, stats, &mockRefresher{})

	rec := doJSON(t, h, http.MethodGet, "/api/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"total_answers":12`) {
		t.Errorf("unexpected body: %s", rec.Body)
	}

	if rec := doJSON(t, h, http.MethodGet, "/api/stats?top=0", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("top=0 status = %d, want 400", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodGet, "/api/stats?top=abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("top=abc status = %d, want 400", rec.Code)
	}
}

func TestStatsFailure(t *testing.T) {
	stats := &mockStats{err: errors.New("db down")}
	h := newTestServer(&mockResolver{}, &mockRouter{}, &mockLogs{}, stats, &mockRefresher{})

	if rec := doJSON(t, h, http.MethodGet, "/api/stats", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	ref := &mockRefresher{}
	h := newTestServer(&mockResolver{}, &mockRouter{}, &mockLogs{}, &mockStats{}, ref)

	rec := doJSON(t, h, http.MethodPost, "/api/admin/refresh", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ref.calls != 1 {
		t.Errorf("refresh calls = %d, want 1", ref.calls)
	}

	ref.err = errors.New("reload failed")
	if rec := doJSON(t, h, http.MethodPost, "/api/admin/refresh", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	h := newTestServer(&mockResolver{}, &mockRouter{}, &mockLogs{}, &mockStats{}, &mockRefresher{})

	if rec := doJSON(t, h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200", rec.Code)
	}
	// No pool configured: not ready.
	if rec := doJSON(t, h, http.MethodGet, "/ready", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/ready status = %d, want 503", rec.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	h := newTestServer(&mockResolver{}, &mockRouter{}, &mockLogs{}, &mockStats{}, &mockRefresher{})

	rec := doJSON(t, h, http.MethodGet, "/health", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	panics := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	h := chain(panics, recoveryMiddleware, loggingMiddleware)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

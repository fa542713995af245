package status

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bleepstore/integrity/internal/metrics"
)

func init() {
	// Register metrics once for the entire test binary so that tests
	// checking /metrics output see the expected collectors.
	metrics.Register()
}

func newTestServer(t *testing.T) (*Server, *Progress) {
	t.Helper()
	p := &Progress{}
	return New(p, nil), p
}

func testRequest(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeSnapshot(t *testing.T, rec *httptest.ResponseRecorder) Snapshot {
	t.Helper()
	var snap Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decoding /status body %q: %v", rec.Body.String(), err)
	}
	return snap
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := testRequest(t, srv, http.MethodGet, "/health")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("X-Request-Id header missing")
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding /health body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, want %q", body["status"], "ok")
	}
}

func TestHealthHeadEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := testRequest(t, srv, http.MethodHead, "/health")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("HEAD body = %q, want empty", rec.Body.String())
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, p := newTestServer(t)
	p.Start("multipart", "run-1", 4)
	p.SetCurrent("part_size=5242880_last_part_size=0_part_nr=1_uuid=x")
	p.Record(true)
	p.Record(false)

	rec := testRequest(t, srv, http.MethodGet, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	snap := decodeSnapshot(t, rec)
	if snap.Mode != "multipart" || snap.RunID != "run-1" {
		t.Errorf("Mode, RunID = %q, %q, want multipart, run-1", snap.Mode, snap.RunID)
	}
	if snap.Total != 4 || snap.Passed != 1 || snap.Failed != 1 {
		t.Errorf("Total/Passed/Failed = %d/%d/%d, want 4/1/1", snap.Total, snap.Passed, snap.Failed)
	}
	if !strings.HasPrefix(snap.Current, "part_size=") {
		t.Errorf("Current = %q, want a multipart key", snap.Current)
	}
	if snap.Done {
		t.Error("Done = true before Finish")
	}

	p.Finish()
	snap = decodeSnapshot(t, testRequest(t, srv, http.MethodGet, "/status"))
	if !snap.Done {
		t.Error("Done = false after Finish")
	}
	if snap.Current != "" {
		t.Errorf("Current = %q after Finish, want empty", snap.Current)
	}
}

func TestOpenAPIEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := testRequest(t, srv, http.MethodGet, "/openapi.json")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "get-status") {
		t.Error("OpenAPI document does not describe get-status")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	testRequest(t, srv, http.MethodGet, "/health")

	rec := testRequest(t, srv, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "integrity_http_requests_total") {
		t.Error("/metrics missing integrity_http_requests_total")
	}
}

func TestStartAndShutdown(t *testing.T) {
	srv, _ := newTestServer(t)
	addr, err := srv.Start("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp, err := http.Get("http://" + addr.String() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "ok") {
		t.Errorf("body = %q, want it to report ok", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestShutdownWithoutStart(t *testing.T) {
	srv, _ := newTestServer(t)
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

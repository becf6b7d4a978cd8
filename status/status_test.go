package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/conservacam/fieldcam/inference"
	"github.com/conservacam/fieldcam/session"
)

type staticSession struct {
	state session.State
}

func (s staticSession) Snapshot() session.State {
	return s.state
}

type fakeJobLister struct {
	jobs      []*inference.Job
	err       error
	lastLimit int
}

func (f *fakeJobLister) ListRecentJobs(ctx context.Context, limit int) ([]*inference.Job, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.jobs) {
		return f.jobs[:limit], nil
	}
	return f.jobs, nil
}

func newTestServer(sessions SessionSource, jobs inference.JobLister) http.Handler {
	gin.SetMode(gin.TestMode)
	return NewServer(":0", NewStatusHandler(nil, sessions, jobs, 100), nil).Handler()
}

func get(t *testing.T, handler http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestServer(staticSession{}, nil), "/health")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestGetSession(t *testing.T) {
	state := session.State{Day: "2025-03-01", Count: 42, Dispatches: 3}
	rec := get(t, newTestServer(staticSession{state: state}, nil), "/api/session")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp SessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Day != "2025-03-01" || resp.Count != 42 || resp.Dispatches != 3 {
		t.Errorf("unexpected session %+v", resp)
	}
	if resp.DispatchEvery != 100 || resp.UntilNextDispatch != 58 {
		t.Errorf("expected 58 captures until dispatch, got %+v", resp)
	}
}

func TestListJobs(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	lister := &fakeJobLister{jobs: []*inference.Job{
		{ID: "b", Kind: inference.JobKindClassification, Status: inference.JobStatusSucceeded, StartedAt: now},
		{ID: "a", Kind: inference.JobKindClassification, Status: inference.JobStatusFailed, StartedAt: now.Add(-time.Hour)},
	}}
	handler := newTestServer(staticSession{}, lister)

	rec := get(t, handler, "/api/jobs")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if lister.lastLimit != DefaultJobLimit {
		t.Errorf("expected default limit %d, got %d", DefaultJobLimit, lister.lastLimit)
	}

	var body struct {
		Jobs []inference.Job `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(body.Jobs) != 2 || body.Jobs[0].ID != "b" {
		t.Errorf("unexpected jobs %+v", body.Jobs)
	}

	rec = get(t, handler, "/api/jobs?limit=1")
	if rec.Code != http.StatusOK || lister.lastLimit != 1 {
		t.Errorf("limit=1: code %d, limit %d", rec.Code, lister.lastLimit)
	}

	get(t, handler, "/api/jobs?limit=5000")
	if lister.lastLimit != MaxJobLimit {
		t.Errorf("expected limit clamped to %d, got %d", MaxJobLimit, lister.lastLimit)
	}
}

func TestListJobs_BadLimit(t *testing.T) {
	handler := newTestServer(staticSession{}, &fakeJobLister{})

	for _, target := range []string{"/api/jobs?limit=abc", "/api/jobs?limit=0", "/api/jobs?limit=-3"} {
		if rec := get(t, handler, target); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, rec.Code)
		}
	}
}

func TestListJobs_Unavailable(t *testing.T) {
	rec := get(t, newTestServer(staticSession{}, nil), "/api/jobs")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without a job store, got %d", rec.Code)
	}
}

func TestListJobs_StoreError(t *testing.T) {
	rec := get(t, newTestServer(staticSession{}, &fakeJobLister{err: errors.New("disk I/O error")}), "/api/jobs")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestServer_StartShutdown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := NewServer("127.0.0.1:0", NewStatusHandler(nil, staticSession{}, nil, 1), nil)

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v after shutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after shutdown")
	}
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/me/jobtracker/internal/slurm"
	"github.com/me/jobtracker/internal/store"
	"github.com/me/jobtracker/internal/tracker"
	"github.com/me/jobtracker/pkg/model"
)

// idleAdapter reports no jobs and never submits.
type idleAdapter struct{}

func (idleAdapter) ListActiveJobs(context.Context) ([]slurm.ActiveJob, error) { return nil, nil }
func (idleAdapter) Submit(context.Context, string, string) (string, error)    { return "1", nil }
func (idleAdapter) FindOutputFile(context.Context, string, string, time.Duration) slurm.OutputFile {
	return slurm.OutputFile{}
}

func testServer(t *testing.T, cfg Config) (*Server, *tracker.Tracker) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	dir := t.TempDir()
	st := store.NewJSONStore(filepath.Join(dir, "current.json"), filepath.Join(dir, "history.json"), logger)
	tr := tracker.New(tracker.Config{MaxJobs: 3, Interval: 5 * time.Second, SearchBudget: time.Second}, idleAdapter{}, st, logger)
	return New(cfg, tr, logger), tr
}

// envelope is used to decode the standard response envelope.
type envelope struct {
	Status    string          `json:"status"`
	RequestID string          `json:"request_id"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	Error     *model.APIError `json:"error"`
}

func doGet(t *testing.T, srv *Server, path string) envelope {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET %s: status=%d, want 200, body=%s", path, w.Code, w.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("GET %s: invalid JSON: %v", path, err)
	}
	return env
}

func doCommand(srv *Server, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestDiscovery(t *testing.T) {
	srv, _ := testServer(t, Config{})
	env := doGet(t, srv, "/")
	if env.Status != "ok" {
		t.Errorf("status = %q, want ok", env.Status)
	}
	if env.RequestID == "" {
		t.Error("request_id is empty")
	}

	var data struct {
		Commands []string `json:"commands"`
	}
	json.Unmarshal(env.Data, &data)
	if len(data.Commands) != 4 {
		t.Errorf("commands = %v, want 4 entries", data.Commands)
	}
}

func TestHealth(t *testing.T) {
	srv, tr := testServer(t, Config{})
	if _, err := tr.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	tr.HandleCommand(model.NewSubmitCommand("/nonexistent", ""))

	env := doGet(t, srv, "/healthz")
	var data healthResponse
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.Status != "healthy" {
		t.Errorf("health status = %q, want healthy", data.Status)
	}
	if data.Cycles != 1 {
		t.Errorf("cycles = %d, want 1", data.Cycles)
	}
	if data.Queued != 1 {
		t.Errorf("queued = %d, want 1", data.Queued)
	}
	if data.LastCycle == nil {
		t.Error("last_cycle missing after a cycle")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := testServer(t, Config{})
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "jobtracker_running_jobs") {
		t.Error("metrics output missing jobtracker_running_jobs")
	}
}

func TestCommand_SubmitAndQueue(t *testing.T) {
	srv, _ := testServer(t, Config{})

	w := doCommand(srv, `{"command":"submit_task","args":{"working_dir":"/scratch/a","script_name":"run.sh"}}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200, body=%s", w.Code, w.Body.String())
	}
	var status model.StatusResponse
	json.Unmarshal(w.Body.Bytes(), &status)
	if status.Status != model.StatusQueued {
		t.Errorf("status = %q, want %q", status.Status, model.StatusQueued)
	}

	w = doCommand(srv, `{"command":"get_queue"}`, "")
	var queue model.QueueResponse
	if err := json.Unmarshal(w.Body.Bytes(), &queue); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if queue.Status != model.StatusQueueRetrieved {
		t.Errorf("status = %q, want %q", queue.Status, model.StatusQueueRetrieved)
	}
	if len(queue.QueuedTasks) != 1 || queue.QueuedTasks[0].ScriptName != "run.sh" {
		t.Errorf("queued_tasks = %+v", queue.QueuedTasks)
	}
}

func TestCommand_GetInfo(t *testing.T) {
	srv, _ := testServer(t, Config{})
	w := doCommand(srv, `{"command":"get_info"}`, "")

	var info map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info["status"] != "OK" {
		t.Errorf("status = %v, want OK", info["status"])
	}
	if info["max_jobs"] != float64(3) {
		t.Errorf("max_jobs = %v, want 3", info["max_jobs"])
	}
	if info["interval"] != float64(5) {
		t.Errorf("interval = %v, want 5", info["interval"])
	}
}

func TestCommand_GetStatusEmpty(t *testing.T) {
	srv, _ := testServer(t, Config{})
	w := doCommand(srv, `{"command":"get_status"}`, "")
	if got := strings.TrimSpace(w.Body.String()); got != `{"running_jobs":[],"completed_jobs":[]}` {
		t.Errorf("body = %s", got)
	}
}

func TestCommand_Unknown(t *testing.T) {
	srv, _ := testServer(t, Config{})
	w := doCommand(srv, `{"command":"cancel_everything"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", w.Code)
	}
	var status model.StatusResponse
	json.Unmarshal(w.Body.Bytes(), &status)
	if status.Status != model.StatusUnknownCommand {
		t.Errorf("status = %q, want %q", status.Status, model.StatusUnknownCommand)
	}
}

func TestCommand_InvalidJSON(t *testing.T) {
	srv, tr := testServer(t, Config{})
	w := doCommand(srv, "not json", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", w.Code)
	}
	var status model.StatusResponse
	json.Unmarshal(w.Body.Bytes(), &status)
	if status.Status != model.StatusInvalidRequest || status.Error != "invalid JSON" {
		t.Errorf("response = %+v", status)
	}
	if tr.Stats().Queued != 0 {
		t.Error("invalid request mutated the queue")
	}
}

func TestCommand_SubmitWithoutWorkingDir(t *testing.T) {
	srv, tr := testServer(t, Config{})
	w := doCommand(srv, `{"command":"submit_task","args":{"script_name":"x.sh"}}`, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", w.Code)
	}
	if tr.Stats().Queued != 0 {
		t.Error("invalid submit_task was queued")
	}
}

func TestCommand_TokenRequired(t *testing.T) {
	srv, _ := testServer(t, Config{Token: "s3cret"})

	for _, tok := range []string{"", "wrong"} {
		w := doCommand(srv, `{"command":"get_info"}`, tok)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("token %q: status=%d, want 401", tok, w.Code)
		}
		var env envelope
		json.Unmarshal(w.Body.Bytes(), &env)
		if env.Error == nil || env.Error.Code != model.ErrUnauthorized {
			t.Errorf("token %q: error = %v, want UNAUTHORIZED", tok, env.Error)
		}
	}

	w := doCommand(srv, `{"command":"get_info"}`, "s3cret")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", w.Code)
	}

	// Health stays open.
	doGet(t, srv, "/healthz")
}

func TestCommand_RateLimited(t *testing.T) {
	srv, _ := testServer(t, Config{RateLimit: 0.001, RateBurst: 2})

	for i := 0; i < 2; i++ {
		if w := doCommand(srv, `{"command":"get_info"}`, ""); w.Code != http.StatusOK {
			t.Fatalf("request %d: status=%d, want 200", i, w.Code)
		}
	}
	w := doCommand(srv, `{"command":"get_info"}`, "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d, want 429", w.Code)
	}
	var env envelope
	json.Unmarshal(w.Body.Bytes(), &env)
	if env.Error == nil || env.Error.Code != model.ErrRateLimited {
		t.Errorf("error = %v, want RATE_LIMITED", env.Error)
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv, _ := testServer(t, Config{})
	w := doCommand(srv, `{"command":"get_info"}`, "")
	if id := w.Header().Get("X-Request-ID"); !strings.HasPrefix(id, "req_") {
		t.Errorf("X-Request-ID = %q, want req_ prefix", id)
	}
}

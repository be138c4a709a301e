package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kompanion-dev/kompanion/pkg/chat"
	"github.com/kompanion-dev/kompanion/pkg/health"
	"github.com/kompanion-dev/kompanion/pkg/orchestrator"
)

// stubRunner replays a fixed event script, or fails without writing.
type stubRunner struct {
	events []chat.Event
	err    error

	gotSkill   string
	gotQuery   string
	gotHistory []chat.Turn
}

func (s *stubRunner) RunStep(ctx context.Context, skill, query string, history []chat.Turn, w orchestrator.EventWriter) error {
	s.gotSkill = skill
	s.gotQuery = query
	s.gotHistory = history
	if s.err != nil {
		return s.err
	}
	for _, ev := range s.events {
		if err := w.WriteEvent(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func newTestServer(runner StepRunner, checker *health.Checker) *Server {
	cfg := DefaultServerConfig()
	cfg.Skills = map[string]string{"kubernetes": "qwen2.5-coder:7b"}
	return NewServer(runner, checker, cfg)
}

func TestChatStreamsEvents(t *testing.T) {
	runner := &stubRunner{
		events: []chat.Event{
			chat.StatusEvent("Executing pods_list..."),
			chat.FinalEvent("You have 2 pods running.", ""),
		},
	}
	srv := newTestServer(runner, nil)

	body := `{"skill":"kubernetes","query":"list pods","history":[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}
	out := rec.Body.String()
	if !strings.Contains(out, `"status":"Executing pods_list..."`) {
		t.Errorf("missing status event:\n%s", out)
	}
	if !strings.Contains(out, `You have 2 pods running.`) {
		t.Errorf("missing final answer:\n%s", out)
	}
	if !strings.HasSuffix(out, "data: [DONE]\n\n") {
		t.Errorf("stream should end with [DONE]:\n%s", out)
	}

	if runner.gotSkill != "kubernetes" || runner.gotQuery != "list pods" {
		t.Errorf("runner got skill=%q query=%q", runner.gotSkill, runner.gotQuery)
	}
	if len(runner.gotHistory) != 2 || runner.gotHistory[1].Content != "hello" {
		t.Errorf("runner got history %+v", runner.gotHistory)
	}
}

func TestChatRejectsEmptyQuery(t *testing.T) {
	srv := newTestServer(&stubRunner{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"skill":"sre"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["error"] == "" {
		t.Error("expected an error message")
	}
}

func TestChatRejectsMalformedBody(t *testing.T) {
	srv := newTestServer(&stubRunner{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"query": `))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestChatErrorBeforeFirstEventIsJSON(t *testing.T) {
	runner := &stubRunner{err: errors.New("backend exploded")}
	srv := newTestServer(runner, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"query":"hello"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["error"] != "internal server error" {
		t.Errorf("error = %q", resp["error"])
	}
	// Internal details must not leak to the client.
	if strings.Contains(rec.Body.String(), "exploded") {
		t.Error("internal error text leaked into the response")
	}
}

func TestHealthzWithoutChecker(t *testing.T) {
	srv := newTestServer(&stubRunner{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != health.StatusOK {
		t.Errorf("status = %q", resp["status"])
	}
}

func TestHealthzReportsDegraded(t *testing.T) {
	checker := health.NewChecker(time.Minute, time.Second)
	checker.Register("ollama", func(context.Context) error { return nil })
	checker.Register("qdrant", func(context.Context) error { return errors.New("connection refused") })
	srv := newTestServer(&stubRunner{}, checker)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	var report health.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if report.Status != health.StatusDegraded {
		t.Errorf("overall = %q", report.Status)
	}
	if report.Components["qdrant"].Error != "connection refused" {
		t.Errorf("qdrant = %+v", report.Components["qdrant"])
	}
}

func TestSkillsEndpoint(t *testing.T) {
	srv := newTestServer(&stubRunner{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/skills", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Skills []skillInfo `json:"skills"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Skills) != 1 || resp.Skills[0].Name != "kubernetes" || resp.Skills[0].Model != "qwen2.5-coder:7b" {
		t.Errorf("skills = %+v", resp.Skills)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	srv := newTestServer(&stubRunner{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q", got)
	}
}

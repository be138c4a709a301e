package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kompanion-dev/kompanion/pkg/chat"
)

func TestWriteEventSetsHeadersOnFirstWrite(t *testing.T) {
	rec := httptest.NewRecorder()
	w := newSSEEventWriter(rec)

	if w.started() {
		t.Fatal("writer reports started before first write")
	}
	if err := w.WriteEvent(context.Background(), chat.StatusEvent("Executing pods_list...")); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}

	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q", got)
	}
	if !w.started() {
		t.Error("writer should report started after first write")
	}
	if w.completed() {
		t.Error("writer should not be completed after a status event")
	}
}

func TestWriteEventFramesDataLines(t *testing.T) {
	rec := httptest.NewRecorder()
	w := newSSEEventWriter(rec)
	ctx := context.Background()

	if err := w.WriteEvent(ctx, chat.StatusEvent("working")); err != nil {
		t.Fatalf("status: %v", err)
	}
	if err := w.WriteEvent(ctx, chat.ContentEvent("The cluster has ")); err != nil {
		t.Fatalf("content: %v", err)
	}
	if err := w.WriteEvent(ctx, chat.FinalEvent("The cluster has 3 pods.", "checked pod list")); err != nil {
		t.Fatalf("final: %v", err)
	}

	body := rec.Body.String()
	lines := strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n")
	want := []string{
		`data: {"status":"working"}`,
		`data: {"message":{"content":"The cluster has "}}`,
		`data: {"message":{"content":"The cluster has 3 pods.","reasoning":"checked pod list"},"done":true}`,
		`data: [DONE]`,
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d frames, want %d:\n%s", len(lines), len(want), body)
	}
	for i, line := range lines {
		if line != want[i] {
			t.Errorf("frame %d = %q, want %q", i, line, want[i])
		}
	}
}

func TestWriteEventAfterTerminalFails(t *testing.T) {
	rec := httptest.NewRecorder()
	w := newSSEEventWriter(rec)
	ctx := context.Background()

	if err := w.WriteEvent(ctx, chat.FinalEvent("done", "")); err != nil {
		t.Fatalf("final: %v", err)
	}
	if !w.completed() {
		t.Fatal("writer should be completed after terminal event")
	}

	if err := w.WriteEvent(ctx, chat.StatusEvent("late")); err == nil {
		t.Error("expected error writing after terminal event")
	}
	if strings.Contains(rec.Body.String(), "late") {
		t.Error("late event leaked into the stream")
	}
}

func TestWriteEventHonorsCancelledContext(t *testing.T) {
	rec := httptest.NewRecorder()
	w := newSSEEventWriter(rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := w.WriteEvent(ctx, chat.StatusEvent("working")); err == nil {
		t.Error("expected error for cancelled context")
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body should be empty, got %q", rec.Body.String())
	}
}

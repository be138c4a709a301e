package orchestrator

import (
	"context"
	"testing"

	"github.com/kompanion-dev/kompanion/pkg/tools"
)

func extractorRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	for _, name := range []string{"pods_list_in_namespace", "pods_log", "pods_get", "query_db"} {
		err := reg.Register(tools.Tool{
			Name:     name,
			Dispatch: func(context.Context, map[string]any) (any, error) { return "ok", nil },
		})
		if err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	return reg
}

func TestExtract(t *testing.T) {
	ex := NewExtractor(extractorRegistry(t))

	tests := []struct {
		name     string
		content  string
		wantName string
		wantArgs map[string]any
		wantHit  bool
	}{
		{
			name:     "bare call",
			content:  `{"name": "query_db", "arguments": {"sql": "SELECT 1"}}`,
			wantName: "query_db",
			wantArgs: map[string]any{"sql": "SELECT 1"},
			wantHit:  true,
		},
		{
			name:     "call surrounded by prose",
			content:  `Sure, let me check that: {"name": "pods_log", "arguments": {"name": "web-1"}} — one moment.`,
			wantName: "pods_log",
			wantArgs: map[string]any{"name": "web-1"},
			wantHit:  true,
		},
		{
			name:     "legacy alias normalized",
			content:  `{"name": "list_pods", "arguments": {"namespace": "prod"}}`,
			wantName: "pods_list_in_namespace",
			wantArgs: map[string]any{"namespace": "prod"},
			wantHit:  true,
		},
		{
			name:     "function key as string",
			content:  `{"function": "pods_get", "arguments": {"name": "api-0"}}`,
			wantName: "pods_get",
			wantArgs: map[string]any{"name": "api-0"},
			wantHit:  true,
		},
		{
			name:     "nested function object",
			content:  `{"function": {"name": "pods_log"}, "arguments": {"name": "db-2"}}`,
			wantName: "pods_log",
			wantArgs: map[string]any{"name": "db-2"},
			wantHit:  true,
		},
		{
			name:     "null arguments become empty map",
			content:  `{"name": "pods_get", "arguments": null}`,
			wantName: "pods_get",
			wantArgs: map[string]any{},
			wantHit:  true,
		},
		{
			name:    "missing arguments key",
			content: `{"name": "pods_get"}`,
		},
		{
			name:    "unregistered tool",
			content: `{"name": "launch_rockets", "arguments": {}}`,
		},
		{
			name:    "prose mentioning both keys without JSON",
			content: `In Ollama's format the "name" field precedes the "arguments" field.`,
		},
		{
			name:    "braces in wrong order",
			content: `the "name" and "arguments" keys } come before { here`,
		},
		{
			name:    "invalid JSON span",
			content: `{"name": "pods_get", "arguments": {"name": }}`,
		},
		{
			name:    "empty content",
			content: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call, hit := ex.Extract(tt.content)
			if hit != tt.wantHit {
				t.Fatalf("Extract hit = %v, want %v", hit, tt.wantHit)
			}
			if !hit {
				return
			}
			if call.Name != tt.wantName {
				t.Errorf("name = %q, want %q", call.Name, tt.wantName)
			}
			if len(call.Arguments) != len(tt.wantArgs) {
				t.Fatalf("arguments = %v, want %v", call.Arguments, tt.wantArgs)
			}
			for k, v := range tt.wantArgs {
				if call.Arguments[k] != v {
					t.Errorf("argument %q = %v, want %v", k, call.Arguments[k], v)
				}
			}
		})
	}
}

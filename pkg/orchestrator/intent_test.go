package orchestrator

import (
	"reflect"
	"testing"
)

func TestNeedsTools(t *testing.T) {
	gate := NewIntentGate()

	tests := []struct {
		query string
		want  bool
	}{
		{"why is my pod crashing", true},
		{"show me the logs for checkout", true},
		{"Is the database healthy?", true},
		{"DELETE the failing deployment", true},
		{"restart nginx in staging", true},
		{"what's the capital of France", false},
		{"explain how DNS works", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := gate.NeedsTools(tt.query); got != tt.want {
			t.Errorf("NeedsTools(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestMatchFastPath(t *testing.T) {
	gate := NewIntentGate()

	tests := []struct {
		query    string
		wantTool string
		wantArgs map[string]any
		wantHit  bool
	}{
		{"list pods in namespace kube-system", "pods_list_in_namespace", map[string]any{"namespace": "kube-system"}, true},
		{"list all pods in default", "pods_list_in_namespace", map[string]any{"namespace": "default"}, true},
		{"List all pods", "pods_list", map[string]any{}, true},
		{"list namespaces.", "namespaces_list", map[string]any{}, true},
		{"logs for pod web-79fd", "pods_log", map[string]any{"name": "web-79fd"}, true},
		{"logs of checkout!", "pods_log", map[string]any{"name": "checkout"}, true},
		{"tell me about pods", "", nil, false},
		{"list pods in namespace default and explain each", "", nil, false},
	}

	for _, tt := range tests {
		tool, args, hit := gate.MatchFastPath(tt.query)
		if hit != tt.wantHit {
			t.Errorf("MatchFastPath(%q) hit = %v, want %v", tt.query, hit, tt.wantHit)
			continue
		}
		if !hit {
			continue
		}
		if tool != tt.wantTool {
			t.Errorf("MatchFastPath(%q) tool = %q, want %q", tt.query, tool, tt.wantTool)
		}
		if !reflect.DeepEqual(args, tt.wantArgs) {
			t.Errorf("MatchFastPath(%q) args = %v, want %v", tt.query, args, tt.wantArgs)
		}
	}
}

package orchestrator

import (
	"strings"
	"testing"
)

const sampleManifest = `apiVersion: apps/v1
kind: Deployment
metadata:
  name: web
spec:
  replicas: 2`

func TestDetectManifest(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantHit bool
	}{
		{
			name:    "fenced yaml block",
			text:    "Here you go:\n```yaml\n" + sampleManifest + "\n```\nApply when ready.",
			wantHit: true,
		},
		{
			name:    "unlabeled fence",
			text:    "```\n" + sampleManifest + "\n```",
			wantHit: true,
		},
		{
			name:    "raw document",
			text:    sampleManifest,
			wantHit: true,
		},
		{
			name: "fence missing kind",
			text: "```yaml\napiVersion: v1\nmetadata:\n  name: x\n```",
		},
		{
			name: "prose mentioning the keys inline",
			text: "Every manifest needs apiVersion: and kind: fields under metadata: somewhere.",
		},
		{
			name: "plain answer",
			text: "Your pods look fine.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, hit := detectManifest(tt.text)
			if hit != tt.wantHit {
				t.Fatalf("detectManifest hit = %v, want %v", hit, tt.wantHit)
			}
			if hit && !strings.Contains(doc, "kind: Deployment") {
				t.Errorf("doc = %q, missing kind line", doc)
			}
		})
	}
}

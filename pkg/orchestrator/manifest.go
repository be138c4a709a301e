package orchestrator

import (
	"regexp"
	"strings"
)

var fenceRE = regexp.MustCompile("(?s)```(?:ya?ml)?\\s*\n(.*?)```")

// manifestKeys are the fields a Kubernetes declarative document always
// carries. A block holding all of them is treated as an apply candidate.
var manifestKeys = []string{"apiVersion:", "kind:", "metadata:"}

// detectManifest looks for a declarative configuration document in the
// model's final text: either a fenced YAML block or the text itself.
// It returns the document body on a hit.
func detectManifest(text string) (string, bool) {
	for _, m := range fenceRE.FindAllStringSubmatch(text, -1) {
		if isManifest(m[1]) {
			return strings.TrimSpace(m[1]), true
		}
	}
	if trimmed := strings.TrimSpace(text); isManifest(trimmed) {
		return trimmed, true
	}
	return "", false
}

// isManifest reports whether every manifest key appears at the start of
// some line of the block.
func isManifest(block string) bool {
	for _, key := range manifestKeys {
		found := false
		for _, line := range strings.Split(block, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), key) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

package orchestrator

import (
	"encoding/json"
	"strings"

	"github.com/kompanion-dev/kompanion/pkg/chat"
	"github.com/kompanion-dev/kompanion/pkg/tools"
)

// defaultAliases maps legacy and alternate tool names, as emitted by
// models trained on older tool vocabularies, to canonical registry
// names.
var defaultAliases = map[string]string{
	"list_pods":    "pods_list_in_namespace",
	"pods_list":    "pods_list_in_namespace",
	"get_pod_logs": "pods_log",
	"get_pod":      "pods_get",
}

// Extractor recovers a tool invocation that the model emitted as inline
// JSON text instead of a structured call.
type Extractor struct {
	registry *tools.Registry
	aliases  map[string]string
}

// NewExtractor creates an Extractor bound to the given registry, with
// the default legacy-name alias map.
func NewExtractor(registry *tools.Registry) *Extractor {
	return &Extractor{registry: registry, aliases: defaultAliases}
}

// Extract inspects content for a text-embedded tool call. It returns
// the normalized call on success. It never errors: unparseable or
// unmapped content simply reports no hit, letting the caller fall
// through to the next detection stage.
//
// Extraction is only attempted when the content carries both a
// name-bearing key and an "arguments" key; the parsed name must then
// resolve, via the alias map, to a registered tool. The two-stage check
// prevents false positives when the model merely discusses JSON.
func (e *Extractor) Extract(content string) (*chat.FunctionCall, bool) {
	if content == "" {
		return nil, false
	}
	hasName := strings.Contains(content, `"name"`) || strings.Contains(content, `"function"`)
	if !hasName || !strings.Contains(content, `"arguments"`) {
		return nil, false
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, false
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(content[start:end+1]), &parsed); err != nil {
		return nil, false
	}

	name := parsedName(parsed)
	if name == "" {
		return nil, false
	}
	if canonical, ok := e.aliases[name]; ok {
		name = canonical
	}
	if !e.registry.Has(name) {
		return nil, false
	}

	args, _ := parsed["arguments"].(map[string]any)
	if args == nil {
		args = map[string]any{}
	}

	return &chat.FunctionCall{Name: name, Arguments: args}, true
}

// parsedName pulls the tool name out of the parsed object, accepting
// both {"name": "..."} and {"function": "..."} as well as the nested
// {"function": {"name": "..."}} shape.
func parsedName(parsed map[string]any) string {
	if name, ok := parsed["name"].(string); ok {
		return name
	}
	switch fn := parsed["function"].(type) {
	case string:
		return fn
	case map[string]any:
		if name, ok := fn["name"].(string); ok {
			return name
		}
	}
	return ""
}

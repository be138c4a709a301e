package orchestrator

import (
	"regexp"
	"strings"
)

// envKeywords is the vocabulary that marks a query as needing live
// environment access: resource nouns plus verbs implying current state.
// A false negative only means the question is answered from model
// knowledge, which is acceptable degradation.
var envKeywords = []string{
	"pod", "pods", "cluster", "node", "deploy", "namespace",
	"log", "logs", "metric", "metrics", "alert",
	"database", "sql", "table", "schema",
	"repo", "repository", "pr", "pull request", "issue",
	"artifact", "image", "scan",
	"health", "status", "running", "crashed", "error",
	"analyze", "triage", "diagnose",
	"restart", "delete", "apply", "manifest",
}

// fastPathPattern maps a literal query shape directly to a tool
// invocation, bypassing the model for tool selection. The model is
// still used to summarize the tool output.
type fastPathPattern struct {
	re   *regexp.Regexp
	tool string
	arg  string // name of the single capture-group argument, if any
}

var fastPathPatterns = []fastPathPattern{
	{re: regexp.MustCompile(`(?i)^list (?:all )?pods in (?:namespace )?([\w.-]+)$`), tool: "pods_list_in_namespace", arg: "namespace"},
	{re: regexp.MustCompile(`(?i)^list (?:all )?pods$`), tool: "pods_list"},
	{re: regexp.MustCompile(`(?i)^list (?:all )?namespaces$`), tool: "namespaces_list"},
	{re: regexp.MustCompile(`(?i)^logs (?:for|of) (?:pod )?([\w.-]+)$`), tool: "pods_log", arg: "name"},
}

// IntentGate decides whether a query needs live tool access and whether
// it matches a fast-path shortcut.
type IntentGate struct {
	keywords []string
}

// NewIntentGate returns a gate over the default keyword vocabulary.
func NewIntentGate() *IntentGate {
	return &IntentGate{keywords: envKeywords}
}

// NeedsTools reports whether the query mentions live environment
// vocabulary. Matching is case-insensitive substring membership.
func (g *IntentGate) NeedsTools(query string) bool {
	q := strings.ToLower(query)
	for _, kw := range g.keywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// MatchFastPath matches the query against the fixed shortcut patterns.
// On a hit it returns the tool name and its arguments.
func (g *IntentGate) MatchFastPath(query string) (string, map[string]any, bool) {
	q := strings.TrimSpace(query)
	q = strings.TrimRight(q, ".!?")
	for _, p := range fastPathPatterns {
		m := p.re.FindStringSubmatch(q)
		if m == nil {
			continue
		}
		args := map[string]any{}
		if p.arg != "" && len(m) > 1 {
			args[p.arg] = m[1]
		}
		return p.tool, args, true
	}
	return "", nil, false
}

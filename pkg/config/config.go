// Package config provides unified configuration for the kompanion
// gateway.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (KOMPANION_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the kompanion gateway.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Brain         BrainConfig         `yaml:"brain"`
	Loop          LoopConfig          `yaml:"loop"`
	Memory        MemoryConfig        `yaml:"memory"`
	Kubernetes    KubernetesConfig    `yaml:"kubernetes"`
	Database      DatabaseConfig      `yaml:"database"`
	Prometheus    PrometheusConfig    `yaml:"prometheus"`
	MCP           MCPConfig           `yaml:"mcp"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int           `yaml:"port"`         // default: 8080
	ReadTimeout time.Duration `yaml:"read_timeout"` // default: 30s
	// WriteTimeout must cover a full streamed answer, not one write.
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 600s
}

// BrainConfig holds model backend settings.
type BrainConfig struct {
	URL          string                 `yaml:"url"`           // default: http://localhost:11434
	DefaultSkill string                 `yaml:"default_skill"` // default: "expert"
	Timeout      time.Duration          `yaml:"timeout"`       // default: 5m
	Skills       map[string]SkillConfig `yaml:"skills"`
}

// SkillConfig binds a persona to a model and system prompt.
type SkillConfig struct {
	Model      string `yaml:"model"`
	Prompt     string `yaml:"prompt"`
	PromptFile string `yaml:"prompt_file"` // _file variant for prompt
}

// LoopConfig holds control-loop settings.
type LoopConfig struct {
	MaxRounds       int  `yaml:"max_rounds"`        // default: 5
	MaxHistoryTurns int  `yaml:"max_history_turns"` // default: 40
	DisableFastPath bool `yaml:"disable_fast_path"` // default: false

	// AutoApplyManifests lets the loop apply a manifest found in final
	// model text without an explicit tool call. Off by default.
	AutoApplyManifests bool   `yaml:"auto_apply_manifests"`
	ApplyTool          string `yaml:"apply_tool"` // default: "resources_apply"
}

// MemoryConfig holds RAG memory settings. Memory is disabled unless
// enabled explicitly.
type MemoryConfig struct {
	Enabled    bool    `yaml:"enabled"`
	QdrantURL  string  `yaml:"qdrant_url"`  // default: http://localhost:6333
	Collection string  `yaml:"collection"`  // default: "kompanion"
	EmbedModel string  `yaml:"embed_model"` // default: "nomic-embed-text"
	TopK       int     `yaml:"top_k"`       // default: 4
	MinScore   float64 `yaml:"min_score"`   // default: 0.6
}

// KubernetesConfig holds cluster tool provider settings.
type KubernetesConfig struct {
	Enabled    bool   `yaml:"enabled"`    // default: true
	Kubeconfig string `yaml:"kubeconfig"` // empty means in-cluster, then $KUBECONFIG
	// LogTailLines bounds pod log retrieval.
	LogTailLines int64 `yaml:"log_tail_lines"` // default: 100
}

// DatabaseConfig holds the SQL tool provider settings. The provider is
// registered only when a DSN is configured.
type DatabaseConfig struct {
	DSN          string        `yaml:"dsn"`
	DSNFile      string        `yaml:"dsn_file"` // _file variant for dsn
	MaxConns     int32         `yaml:"max_conns"`     // default: 4
	MaxRows      int           `yaml:"max_rows"`      // default: 50
	QueryTimeout time.Duration `yaml:"query_timeout"` // default: 10s
}

// PrometheusConfig holds the metrics tool provider settings. The
// provider is registered only when a URL is configured.
type PrometheusConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"` // default: 10s
}

// MCPConfig holds MCP (Model Context Protocol) server settings.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes a single MCP server connection.
type MCPServerConfig struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // "sse" or "streamable-http"
	URL       string            `yaml:"url"`
	Headers   map[string]string `yaml:"headers"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in,
// including the built-in skill roster.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 600 * time.Second,
		},
		Brain: BrainConfig{
			URL:          "http://localhost:11434",
			DefaultSkill: "expert",
			Timeout:      5 * time.Minute,
			Skills:       defaultSkills(),
		},
		Loop: LoopConfig{
			MaxRounds:       5,
			MaxHistoryTurns: 40,
			ApplyTool:       "resources_apply",
		},
		Memory: MemoryConfig{
			QdrantURL:  "http://localhost:6333",
			Collection: "kompanion",
			EmbedModel: "nomic-embed-text",
			TopK:       4,
			MinScore:   0.6,
		},
		Kubernetes: KubernetesConfig{
			Enabled:      true,
			LogTailLines: 100,
		},
		Database: DatabaseConfig{
			MaxConns:     4,
			MaxRows:      50,
			QueryTimeout: 10 * time.Second,
		},
		Prometheus: PrometheusConfig{
			Timeout: 10 * time.Second,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// defaultSkills is the built-in persona roster. Each skill pairs a
// local model with a focused system prompt; operators override or
// extend the map per deployment.
func defaultSkills() map[string]SkillConfig {
	return map[string]SkillConfig{
		"expert": {
			Model: "deepseek-r1:8b",
			Prompt: "You are a senior technical expert. Answer precisely and " +
				"admit uncertainty instead of guessing. When tool results are " +
				"provided, base your answer on them.",
		},
		"kubernetes": {
			Model: "qwen2.5-coder:7b",
			Prompt: "You are a Kubernetes specialist. Use the provided tools to " +
				"inspect the cluster before answering questions about its state. " +
				"Prefer concrete resource names and namespaces over generalities.",
		},
		"sre": {
			Model: "llama3.1:8b",
			Prompt: "You are a site reliability engineer. Triage symptoms, " +
				"correlate logs and metrics, and propose the smallest safe " +
				"remediation first.",
		},
		"database": {
			Model: "gemma3:4b",
			Prompt: "You are a database administrator. Write careful read-only " +
				"SQL, explain query results plainly, and never fabricate rows.",
		},
		"documents": {
			Model: "llama3.1:8b",
			Prompt: "You are a documentation assistant. Answer from the provided " +
				"context; say so when the context does not cover the question.",
		},
	}
}

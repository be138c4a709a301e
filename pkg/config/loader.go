package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, KOMPANION_CONFIG env, ./config.yaml, /etc/kompanion/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. KOMPANION_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/kompanion/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("KOMPANION_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/kompanion/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps KOMPANION_* environment variables to config
// fields, for container deployments that never mount a config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KOMPANION_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("KOMPANION_OLLAMA_URL"); v != "" {
		cfg.Brain.URL = v
	}
	if v := os.Getenv("KOMPANION_DEFAULT_SKILL"); v != "" {
		cfg.Brain.DefaultSkill = v
	}
	if v := os.Getenv("KOMPANION_BRAIN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Brain.Timeout = d
		}
	}
	if v := os.Getenv("KOMPANION_MAX_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Loop.MaxRounds = n
		}
	}
	if v := os.Getenv("KOMPANION_AUTO_APPLY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Loop.AutoApplyManifests = b
		}
	}
	if v := os.Getenv("KOMPANION_MEMORY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Memory.Enabled = b
		}
	}
	if v := os.Getenv("KOMPANION_QDRANT_URL"); v != "" {
		cfg.Memory.QdrantURL = v
	}
	if v := os.Getenv("KOMPANION_KUBECONFIG"); v != "" {
		cfg.Kubernetes.Kubeconfig = v
	}
	if v := os.Getenv("KOMPANION_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("KOMPANION_PROMETHEUS_URL"); v != "" {
		cfg.Prometheus.URL = v
	}

	// KOMPANION_MCP_SERVERS: JSON array of MCP server configs.
	if v := os.Getenv("KOMPANION_MCP_SERVERS"); v != "" {
		servers, err := parseMCPServersJSON(v)
		if err == nil && len(servers) > 0 {
			cfg.MCP.Servers = servers
		}
	}
}

// parseMCPServersJSON parses a JSON array of MCP server configurations.
func parseMCPServersJSON(jsonStr string) ([]MCPServerConfig, error) {
	var servers []MCPServerConfig
	if err := json.Unmarshal([]byte(jsonStr), &servers); err != nil {
		return nil, fmt.Errorf("parsing MCP servers JSON: %w", err)
	}
	return servers, nil
}

// resolveFileReferences reads _file fields and populates the
// corresponding value fields. For each field ending in _file, if the
// value field is empty and the file field is set, the file is read,
// whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	// database.dsn_file -> database.dsn
	if cfg.Database.DSNFile != "" && cfg.Database.DSN == "" {
		val, err := readSecretFile(cfg.Database.DSNFile)
		if err != nil {
			return fmt.Errorf("database.dsn_file: %w", err)
		}
		cfg.Database.DSN = val
	}

	// brain.skills[*].prompt_file -> brain.skills[*].prompt
	for name, skill := range cfg.Brain.Skills {
		if skill.PromptFile != "" && skill.Prompt == "" {
			val, err := readSecretFile(skill.PromptFile)
			if err != nil {
				return fmt.Errorf("brain.skills[%s].prompt_file: %w", name, err)
			}
			skill.Prompt = val
			cfg.Brain.Skills[name] = skill
		}
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding
// whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for errors that would only surface
// later as confusing runtime failures.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Brain.URL == "" {
		return fmt.Errorf("brain.url must not be empty")
	}
	if len(c.Brain.Skills) == 0 {
		return fmt.Errorf("brain.skills must define at least one skill")
	}
	for name, skill := range c.Brain.Skills {
		if skill.Model == "" {
			return fmt.Errorf("brain.skills[%s].model must not be empty", name)
		}
	}
	if c.Brain.DefaultSkill != "" {
		if _, ok := c.Brain.Skills[c.Brain.DefaultSkill]; !ok {
			return fmt.Errorf("brain.default_skill %q is not a configured skill", c.Brain.DefaultSkill)
		}
	}

	if c.Loop.MaxRounds < 0 {
		return fmt.Errorf("loop.max_rounds must not be negative, got %d", c.Loop.MaxRounds)
	}
	if c.Loop.MaxHistoryTurns < 0 {
		return fmt.Errorf("loop.max_history_turns must not be negative, got %d", c.Loop.MaxHistoryTurns)
	}

	if c.Memory.Enabled {
		if c.Memory.QdrantURL == "" {
			return fmt.Errorf("memory.qdrant_url must not be empty when memory is enabled")
		}
		if c.Memory.Collection == "" {
			return fmt.Errorf("memory.collection must not be empty when memory is enabled")
		}
		if c.Memory.EmbedModel == "" {
			return fmt.Errorf("memory.embed_model must not be empty when memory is enabled")
		}
		if c.Memory.TopK < 1 {
			return fmt.Errorf("memory.top_k must be at least 1, got %d", c.Memory.TopK)
		}
	}

	if c.Database.DSN != "" {
		if c.Database.MaxRows < 1 {
			return fmt.Errorf("database.max_rows must be at least 1, got %d", c.Database.MaxRows)
		}
	}

	seen := make(map[string]bool)
	for i, s := range c.MCP.Servers {
		if s.Name == "" {
			return fmt.Errorf("mcp.servers[%d].name must not be empty", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("mcp.servers[%d]: duplicate server name %q", i, s.Name)
		}
		seen[s.Name] = true
		if s.URL == "" {
			return fmt.Errorf("mcp.servers[%s].url must not be empty", s.Name)
		}
		switch s.Transport {
		// Empty selects the client's streamable-http default.
		case "", "sse", "streamable-http":
		default:
			return fmt.Errorf("mcp.servers[%s].transport must be \"sse\" or \"streamable-http\", got %q", s.Name, s.Transport)
		}
	}

	if c.Observability.Metrics.Enabled && !strings.HasPrefix(c.Observability.Metrics.Path, "/") {
		return fmt.Errorf("observability.metrics.path must start with /, got %q", c.Observability.Metrics.Path)
	}

	return nil
}

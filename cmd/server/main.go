// Command server runs the kompanion gateway: an HTTP frontend over a
// tool-calling control loop backed by Ollama.
//
// Configuration is layered: built-in defaults, an optional YAML file
// (-config flag, KOMPANION_CONFIG, ./config.yaml, or
// /etc/kompanion/config.yaml), then KOMPANION_* environment overrides.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/kompanion-dev/kompanion/pkg/brain"
	"github.com/kompanion-dev/kompanion/pkg/brain/ollama"
	"github.com/kompanion-dev/kompanion/pkg/config"
	"github.com/kompanion-dev/kompanion/pkg/health"
	"github.com/kompanion-dev/kompanion/pkg/memory"
	"github.com/kompanion-dev/kompanion/pkg/orchestrator"
	"github.com/kompanion-dev/kompanion/pkg/tools"
	"github.com/kompanion-dev/kompanion/pkg/tools/database"
	"github.com/kompanion-dev/kompanion/pkg/tools/kubernetes"
	"github.com/kompanion-dev/kompanion/pkg/tools/mcp"
	"github.com/kompanion-dev/kompanion/pkg/tools/metrics"
	transporthttp "github.com/kompanion-dev/kompanion/pkg/transport/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	setupLogging()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ctx := context.Background()
	checker := health.NewChecker(30*time.Second, 5*time.Second)

	// Model backend.
	session, err := ollama.New(ollama.Config{
		BaseURL:      cfg.Brain.URL,
		Skills:       brainSkills(cfg.Brain.Skills),
		DefaultSkill: cfg.Brain.DefaultSkill,
		Timeout:      cfg.Brain.Timeout,
	})
	if err != nil {
		return fmt.Errorf("creating model backend: %w", err)
	}
	checker.Register("ollama", session.Ping)
	slog.Info("model backend configured",
		"url", cfg.Brain.URL,
		"default_skill", cfg.Brain.DefaultSkill,
		"skills", len(cfg.Brain.Skills),
	)

	// Tool providers. Each one is optional; a provider that cannot
	// start is logged and skipped so the gateway still answers from
	// general knowledge.
	registry := tools.NewRegistry()
	cleanups := registerProviders(ctx, registry, *cfg, checker)
	registerLegacyAliases(registry)
	defer func() {
		for _, cleanup := range cleanups {
			cleanup()
		}
	}()
	slog.Info("tools registered", "names", strings.Join(registry.Names(), ", "))

	// RAG memory.
	var mem orchestrator.Memory
	if cfg.Memory.Enabled {
		m, err := memory.New(memory.Config{
			OllamaURL:  cfg.Brain.URL,
			EmbedModel: cfg.Memory.EmbedModel,
			QdrantURL:  cfg.Memory.QdrantURL,
			Collection: cfg.Memory.Collection,
			TopK:       cfg.Memory.TopK,
			MinScore:   cfg.Memory.MinScore,
		})
		if err != nil {
			return fmt.Errorf("creating memory: %w", err)
		}
		mem = m
		checker.Register("qdrant", httpProbe(cfg.Memory.QdrantURL))
		slog.Info("memory enabled", "qdrant", cfg.Memory.QdrantURL, "collection", cfg.Memory.Collection)
	}

	// Control loop.
	orch, err := orchestrator.New(session, registry, mem, orchestrator.Config{
		MaxRounds:          cfg.Loop.MaxRounds,
		MaxHistoryTurns:    cfg.Loop.MaxHistoryTurns,
		DisableFastPath:    cfg.Loop.DisableFastPath,
		AutoApplyManifests: cfg.Loop.AutoApplyManifests,
		ApplyTool:          cfg.Loop.ApplyTool,
	})
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	// HTTP frontend.
	srv := transporthttp.NewServer(orch, checker, transporthttp.ServerConfig{
		Addr:            fmt.Sprintf(":%d", cfg.Server.Port),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: 30 * time.Second,
		MetricsEnabled:  cfg.Observability.Metrics.Enabled,
		MetricsPath:     cfg.Observability.Metrics.Path,
		Skills:          skillRoster(cfg.Brain.Skills),
	})

	return srv.ListenAndServe()
}

// registerProviders wires every configured tool provider into the
// registry, returning cleanup functions for those that hold
// connections.
func registerProviders(ctx context.Context, registry *tools.Registry, cfg config.Config, checker *health.Checker) []func() {
	var cleanups []func()

	if cfg.Kubernetes.Enabled {
		kubeCfg := kubernetes.Config{
			Kubeconfig:   cfg.Kubernetes.Kubeconfig,
			LogTailLines: cfg.Kubernetes.LogTailLines,
		}
		restCfg, err := kubernetes.RESTConfig(cfg.Kubernetes.Kubeconfig)
		if err != nil {
			slog.Warn("kubernetes tools unavailable", "error", err)
		} else {
			if prov, err := kubernetes.NewProviderForConfig(restCfg, kubeCfg); err != nil {
				slog.Warn("kubernetes read tools unavailable", "error", err)
			} else if err := prov.Register(registry); err != nil {
				slog.Warn("registering kubernetes tools", "error", err)
			} else {
				checker.Register("kubernetes", prov.Ping)
			}
			if applier, err := kubernetes.NewApplierForConfig(restCfg); err != nil {
				slog.Warn("kubernetes apply tool unavailable", "error", err)
			} else if err := applier.Register(registry); err != nil {
				slog.Warn("registering apply tool", "error", err)
			}
		}
	}

	if cfg.Database.DSN != "" {
		db, err := database.New(ctx, database.Config{
			DSN:          cfg.Database.DSN,
			MaxConns:     cfg.Database.MaxConns,
			MaxRows:      cfg.Database.MaxRows,
			QueryTimeout: cfg.Database.QueryTimeout,
		})
		if err != nil {
			slog.Warn("database tools unavailable", "error", err)
		} else if err := db.Register(registry); err != nil {
			slog.Warn("registering database tools", "error", err)
			db.Close()
		} else {
			checker.Register("database", db.Ping)
			cleanups = append(cleanups, db.Close)
		}
	}

	if cfg.Prometheus.URL != "" {
		prom, err := metrics.New(metrics.Config{
			URL:     cfg.Prometheus.URL,
			Timeout: cfg.Prometheus.Timeout,
		})
		if err != nil {
			slog.Warn("prometheus tools unavailable", "error", err)
		} else if err := prom.Register(registry); err != nil {
			slog.Warn("registering prometheus tools", "error", err)
		} else {
			checker.Register("prometheus", httpProbe(cfg.Prometheus.URL + "/-/healthy"))
		}
	}

	for _, serverCfg := range cfg.MCP.Servers {
		client := mcp.NewClient(mcp.ServerConfig{
			Name:      serverCfg.Name,
			Transport: serverCfg.Transport,
			URL:       serverCfg.URL,
			Headers:   serverCfg.Headers,
		})
		if err := client.Connect(ctx); err != nil {
			slog.Warn("mcp server unavailable", "server", serverCfg.Name, "error", err)
			continue
		}
		if err := client.Register(ctx, registry); err != nil {
			slog.Warn("registering mcp tools", "server", serverCfg.Name, "error", err)
			client.Close()
			continue
		}
		checker.Register("mcp:"+serverCfg.Name, client.Ping)
		cleanups = append(cleanups, func() {
			if err := client.Close(); err != nil {
				slog.Warn("closing mcp client", "server", serverCfg.Name, "error", err)
			}
		})
	}

	return cleanups
}

// registerLegacyAliases maps pre-rename tool names still emitted by
// older model checkpoints onto the current roster.
func registerLegacyAliases(registry *tools.Registry) {
	legacy := map[string]string{
		"list_pods":    "pods_list",
		"get_pod":      "pods_get",
		"get_pod_logs": "pods_log",
	}
	for alias, canonical := range legacy {
		if !registry.Has(canonical) || registry.Has(alias) {
			continue
		}
		if err := registry.Alias(alias, canonical); err != nil {
			slog.Warn("registering tool alias", "alias", alias, "error", err)
		}
	}
}

// brainSkills converts the config skill roster into the adapter shape.
func brainSkills(skills map[string]config.SkillConfig) map[string]brain.Skill {
	out := make(map[string]brain.Skill, len(skills))
	for name, sc := range skills {
		out[name] = brain.Skill{Model: sc.Model, Prompt: sc.Prompt}
	}
	return out
}

// skillRoster flattens the skill config into the advertised name to
// model map.
func skillRoster(skills map[string]config.SkillConfig) map[string]string {
	out := make(map[string]string, len(skills))
	for name, sc := range skills {
		out[name] = sc.Model
	}
	return out
}

// httpProbe returns a health check that considers any HTTP response a
// sign of life.
func httpProbe(url string) health.Check {
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return nil
	}
}

// setupLogging installs a structured logger. KOMPANION_LOG_LEVEL and
// KOMPANION_LOG_FORMAT (text or json) adjust the output.
func setupLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("KOMPANION_LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("KOMPANION_LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

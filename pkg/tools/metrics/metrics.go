// Package metrics exposes PromQL queries as a tool, backed by the
// Prometheus HTTP API client.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/kompanion-dev/kompanion/pkg/tools"
)

// Config holds the metrics provider settings.
type Config struct {
	// URL is the Prometheus server base URL.
	URL string

	// Timeout bounds one query. Default: 10s.
	Timeout time.Duration
}

// Provider runs PromQL queries on behalf of the model.
type Provider struct {
	api     promv1.API
	timeout time.Duration
}

// New creates a Provider for the given Prometheus URL.
func New(cfg Config) (*Provider, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("metrics: prometheus URL must not be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client, err := api.NewClient(api.Config{Address: cfg.URL})
	if err != nil {
		return nil, fmt.Errorf("metrics: creating client: %w", err)
	}
	return &Provider{api: promv1.NewAPI(client), timeout: cfg.Timeout}, nil
}

// Register adds the query_metrics tool to the registry.
func (p *Provider) Register(reg *tools.Registry) error {
	return reg.Register(tools.Tool{
		Name:        "query_metrics",
		Description: "Run an instant PromQL query against Prometheus",
		Params: map[string]tools.Param{
			"query": {Type: "string", Description: "PromQL expression"},
		},
		Required: []string{"query"},
		Dispatch: p.query,
	})
}

func (p *Provider) query(ctx context.Context, args map[string]any) (any, error) {
	expr, _ := args["query"].(string)
	if expr == "" {
		return nil, fmt.Errorf("query is required")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	value, warnings, err := p.api.Query(ctx, expr, time.Now())
	if err != nil {
		return nil, fmt.Errorf("prometheus query failed: %w", err)
	}
	for _, w := range warnings {
		slog.Warn("prometheus query warning", "query", expr, "warning", w)
	}

	return flatten(value), nil
}

// flatten converts a Prometheus result into plain JSON-friendly data
// the model can read.
func flatten(value model.Value) any {
	switch v := value.(type) {
	case model.Vector:
		out := make([]map[string]any, 0, len(v))
		for _, sample := range v {
			out = append(out, map[string]any{
				"labels":    labelMap(sample.Metric),
				"value":     float64(sample.Value),
				"timestamp": sample.Timestamp.Time().UTC().Format(time.RFC3339),
			})
		}
		return out
	case model.Matrix:
		out := make([]map[string]any, 0, len(v))
		for _, series := range v {
			points := make([]map[string]any, 0, len(series.Values))
			for _, sp := range series.Values {
				points = append(points, map[string]any{
					"value":     float64(sp.Value),
					"timestamp": sp.Timestamp.Time().UTC().Format(time.RFC3339),
				})
			}
			out = append(out, map[string]any{
				"labels": labelMap(series.Metric),
				"points": points,
			})
		}
		return out
	case *model.Scalar:
		return map[string]any{"value": float64(v.Value)}
	case *model.String:
		return map[string]any{"value": v.Value}
	default:
		return map[string]any{"value": value.String()}
	}
}

func labelMap(metric model.Metric) map[string]string {
	out := make(map[string]string, len(metric))
	for k, v := range metric {
		out[string(k)] = string(v)
	}
	return out
}

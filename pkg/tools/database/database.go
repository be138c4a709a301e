// Package database exposes read-only SQL access as a tool. It uses
// pgx/v5 connection pooling against a single configured PostgreSQL
// instance.
package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kompanion-dev/kompanion/pkg/tools"
)

// Config holds the SQL provider settings.
type Config struct {
	DSN      string
	MaxConns int32 // default: 4

	// MaxRows caps result size; model context is the scarce resource,
	// not the database. Default: 50.
	MaxRows int

	// QueryTimeout bounds one query. Default: 10s.
	QueryTimeout time.Duration
}

func (c *Config) defaults() {
	if c.MaxConns <= 0 {
		c.MaxConns = 4
	}
	if c.MaxRows <= 0 {
		c.MaxRows = 50
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 10 * time.Second
	}
}

// Provider runs SQL queries on behalf of the model.
type Provider struct {
	pool *pgxpool.Pool
	cfg  Config
}

// New creates a Provider and verifies connectivity.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Provider{pool: pool, cfg: cfg}, nil
}

// Close releases the connection pool.
func (p *Provider) Close() {
	p.pool.Close()
}

// Ping verifies database connectivity.
func (p *Provider) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Register adds the query_db tool to the registry.
func (p *Provider) Register(reg *tools.Registry) error {
	return reg.Register(tools.Tool{
		Name:        "query_db",
		Description: "Run a read-only SQL query against the configured PostgreSQL database",
		Params: map[string]tools.Param{
			"sql": {Type: "string", Description: "A single SELECT statement"},
		},
		Required: []string{"sql"},
		Dispatch: p.query,
	})
}

// readOnly rejects statements that could mutate data. A keyword check
// is not a security boundary; the database user should be read-only
// too. It keeps the model from accidentally destructive queries.
func readOnly(sql string) error {
	head := strings.ToLower(strings.TrimSpace(sql))
	for _, allowed := range []string{"select", "with", "show", "explain"} {
		if strings.HasPrefix(head, allowed) {
			return nil
		}
	}
	return fmt.Errorf("only read-only queries are allowed")
}

func (p *Provider) query(ctx context.Context, args map[string]any) (any, error) {
	sql, _ := args["sql"].(string)
	if strings.TrimSpace(sql) == "" {
		return nil, fmt.Errorf("sql is required")
	}
	if err := readOnly(sql); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.QueryTimeout)
	defer cancel()

	rows, err := p.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	out := make([]map[string]any, 0)
	truncated := false
	for rows.Next() {
		if len(out) >= p.cfg.MaxRows {
			truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	result := map[string]any{
		"columns":   columns,
		"rows":      out,
		"row_count": len(out),
	}
	if truncated {
		result["truncated"] = true
	}
	return result, nil
}

package database

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kompanion-dev/kompanion/pkg/tools"
)

func init() {
	// Configure testcontainers to use podman.
	// Detect the podman socket from `podman machine inspect`.
	if os.Getenv("DOCKER_HOST") == "" {
		out, err := exec.Command("podman", "machine", "inspect", "--format", "{{.ConnectionInfo.PodmanSocket.Path}}").Output()
		if err == nil {
			sock := strings.TrimSpace(string(out))
			if sock != "" {
				os.Setenv("DOCKER_HOST", "unix://"+sock)
			}
		}
	}
	// Ryuk needs privileged mode with podman.
	if os.Getenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED", "true")
	}
}

// setupProvider starts a PostgreSQL container, seeds a table, and
// returns a registry with the query_db tool registered. Tests are
// skipped if no container runtime is available.
func setupProvider(t *testing.T, cfg Config) *tools.Registry {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping PostgreSQL integration tests")
	}
	if _, err := exec.LookPath("podman"); err != nil {
		t.Skip("podman not found, skipping integration tests")
	}

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("kompanion_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container (is podman running?): %v", err)
	}
	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	cfg.DSN = connStr
	p, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("creating provider: %v", err)
	}
	t.Cleanup(p.Close)

	seed := []string{
		`CREATE TABLE incidents (id serial PRIMARY KEY, service text, severity text)`,
		`INSERT INTO incidents (service, severity) VALUES
			('checkout', 'critical'), ('search', 'warning'), ('payments', 'critical')`,
	}
	for _, stmt := range seed {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}

	reg := tools.NewRegistry()
	if err := p.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return reg
}

func TestQueryDB(t *testing.T) {
	reg := setupProvider(t, Config{})

	res := reg.Dispatch(context.Background(), "query_db", map[string]any{
		"sql": "SELECT service, severity FROM incidents WHERE severity = 'critical' ORDER BY service",
	})
	if res.IsError() {
		t.Fatalf("dispatch error: %s", res.Err)
	}

	result := res.Value.(map[string]any)
	if result["row_count"] != 2 {
		t.Errorf("row_count = %v, want 2", result["row_count"])
	}
	rows := result["rows"].([]map[string]any)
	if rows[0]["service"] != "checkout" || rows[1]["service"] != "payments" {
		t.Errorf("rows = %v", rows)
	}
	columns := result["columns"].([]string)
	if len(columns) != 2 || columns[0] != "service" {
		t.Errorf("columns = %v", columns)
	}
}

func TestQueryDBTruncatesLargeResults(t *testing.T) {
	reg := setupProvider(t, Config{MaxRows: 2})

	res := reg.Dispatch(context.Background(), "query_db", map[string]any{
		"sql": "SELECT id FROM incidents",
	})
	if res.IsError() {
		t.Fatalf("dispatch error: %s", res.Err)
	}

	result := res.Value.(map[string]any)
	if result["row_count"] != 2 {
		t.Errorf("row_count = %v, want cap of 2", result["row_count"])
	}
	if result["truncated"] != true {
		t.Error("truncated flag not set")
	}
}

func TestQueryDBRejectsWrites(t *testing.T) {
	reg := setupProvider(t, Config{})

	for _, sql := range []string{
		"DELETE FROM incidents",
		"UPDATE incidents SET severity = 'low'",
		"DROP TABLE incidents",
		"INSERT INTO incidents (service) VALUES ('evil')",
	} {
		res := reg.Dispatch(context.Background(), "query_db", map[string]any{"sql": sql})
		if !res.IsError() {
			t.Errorf("statement %q accepted, want error result", sql)
		}
	}

	// The table must be intact afterwards.
	res := reg.Dispatch(context.Background(), "query_db", map[string]any{
		"sql": "SELECT count(*) AS n FROM incidents",
	})
	if res.IsError() {
		t.Fatalf("dispatch error: %s", res.Err)
	}
	rows := res.Value.(map[string]any)["rows"].([]map[string]any)
	if rows[0]["n"] != int64(3) {
		t.Errorf("count = %v, want 3", rows[0]["n"])
	}
}

func TestQueryDBErrorsSurfaceAsResults(t *testing.T) {
	reg := setupProvider(t, Config{})

	res := reg.Dispatch(context.Background(), "query_db", map[string]any{
		"sql": "SELECT nope FROM does_not_exist",
	})
	if !res.IsError() {
		t.Fatal("expected error result for bad query")
	}
	if !strings.Contains(res.Err, "query failed") {
		t.Errorf("err = %q", res.Err)
	}
}

func TestReadOnlyCheck(t *testing.T) {
	allowed := []string{
		"SELECT 1",
		"  select * from t",
		"WITH x AS (SELECT 1) SELECT * FROM x",
		"EXPLAIN SELECT 1",
	}
	for _, sql := range allowed {
		if err := readOnly(sql); err != nil {
			t.Errorf("readOnly(%q) = %v, want nil", sql, err)
		}
	}
	denied := []string{"TRUNCATE t", "GRANT ALL ON t TO x", "delete from t"}
	for _, sql := range denied {
		if err := readOnly(sql); err == nil {
			t.Errorf("readOnly(%q) = nil, want error", sql)
		}
	}
}

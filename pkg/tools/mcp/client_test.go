package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kompanion-dev/kompanion/pkg/tools"
)

// setupTestServer creates a test MCP server with tools and connects it
// to a client via in-memory transports. Returns the client ready for use.
func setupTestServer(t *testing.T, serverTools map[string]mcp.ToolHandler) *Client {
	t.Helper()

	server := mcp.NewServer(
		&mcp.Implementation{Name: "test-server", Version: "1.0.0"},
		nil,
	)

	for name, handler := range serverTools {
		server.AddTool(
			&mcp.Tool{
				Name:        name,
				Description: "Test tool: " + name,
				InputSchema: map[string]any{"type": "object"},
			},
			handler,
		)
	}

	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ctx := context.Background()
	go func() {
		_ = server.Run(ctx, serverTransport)
	}()

	client := NewClient(ServerConfig{Name: "test-server"})
	if err := client.ConnectWithTransport(ctx, clientTransport); err != nil {
		t.Fatalf("ConnectWithTransport failed: %v", err)
	}

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

func echoHandler(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: "echo"}},
	}, nil
}

func TestRegisterDiscoversTools(t *testing.T) {
	client := setupTestServer(t, map[string]mcp.ToolHandler{
		"github_list_prs":  echoHandler,
		"github_get_issue": echoHandler,
	})

	reg := tools.NewRegistry()
	if err := client.Register(context.Background(), reg); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for _, name := range []string{"github_list_prs", "github_get_issue"} {
		if !reg.Has(name) {
			t.Errorf("tool %q not registered", name)
		}
	}

	// The server's own schema is passed through verbatim.
	spec, ok := reg.Lookup("github_list_prs")
	if !ok {
		t.Fatal("lookup failed")
	}
	if !strings.Contains(string(spec.Spec().Function.Parameters), `"object"`) {
		t.Errorf("parameters = %s", spec.Spec().Function.Parameters)
	}
}

func TestRegisterSkipsTakenNames(t *testing.T) {
	client := setupTestServer(t, map[string]mcp.ToolHandler{
		"pods_list": echoHandler,
	})

	reg := tools.NewRegistry()
	if err := reg.Register(tools.Tool{
		Name:     "pods_list",
		Dispatch: func(context.Context, map[string]any) (any, error) { return "local", nil },
	}); err != nil {
		t.Fatal(err)
	}

	if err := client.Register(context.Background(), reg); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// The local tool must still win.
	res := reg.Dispatch(context.Background(), "pods_list", nil)
	if res.Value != "local" {
		t.Errorf("value = %v, want local provider", res.Value)
	}
}

func TestDispatchRoutesToServer(t *testing.T) {
	var gotParams string
	client := setupTestServer(t, map[string]mcp.ToolHandler{
		"get_weather": func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			data, _ := json.Marshal(req.Params)
			gotParams = string(data)
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: "sunny, 24C"}},
			}, nil
		},
	})

	reg := tools.NewRegistry()
	if err := client.Register(context.Background(), reg); err != nil {
		t.Fatalf("Register: %v", err)
	}

	res := reg.Dispatch(context.Background(), "get_weather", map[string]any{"city": "Berlin"})
	if res.IsError() {
		t.Fatalf("dispatch error: %s", res.Err)
	}
	if res.Value != "sunny, 24C" {
		t.Errorf("value = %v", res.Value)
	}
	if !strings.Contains(gotParams, "Berlin") {
		t.Errorf("server saw params %s", gotParams)
	}
}

func TestDispatchToolErrorBecomesErrorResult(t *testing.T) {
	client := setupTestServer(t, map[string]mcp.ToolHandler{
		"broken": func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{&mcp.TextContent{Text: "backend unavailable"}},
			}, nil
		},
	})

	reg := tools.NewRegistry()
	if err := client.Register(context.Background(), reg); err != nil {
		t.Fatalf("Register: %v", err)
	}

	res := reg.Dispatch(context.Background(), "broken", nil)
	if !res.IsError() {
		t.Fatal("expected error result")
	}
	if !strings.Contains(res.Err, "backend unavailable") {
		t.Errorf("err = %q", res.Err)
	}
}

func TestRegisterRequiresConnection(t *testing.T) {
	client := NewClient(ServerConfig{Name: "offline"})
	reg := tools.NewRegistry()
	if err := client.Register(context.Background(), reg); err == nil {
		t.Error("expected error for unconnected client")
	}
}

func TestCreateTransportRejectsUnknownType(t *testing.T) {
	client := NewClient(ServerConfig{Name: "x", Transport: "carrier-pigeon", URL: "http://x"})
	if _, err := client.createTransport(); err == nil {
		t.Error("expected error for unknown transport")
	}
}

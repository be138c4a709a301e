package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kompanion-dev/kompanion/pkg/tools"
)

// ServerConfig describes one MCP server connection.
type ServerConfig struct {
	Name      string
	Transport string // "sse" or "streamable-http", default streamable-http
	URL       string
	Headers   map[string]string
}

// Client wraps an MCP SDK client and session for a single server
// connection.
type Client struct {
	cfg     ServerConfig
	client  *mcp.Client
	session *mcp.ClientSession
}

// NewClient creates a Client for the given server configuration. Call
// Connect to establish the connection.
func NewClient(cfg ServerConfig) *Client {
	return &Client{cfg: cfg}
}

// Connect establishes the MCP connection to the server, performing the
// protocol handshake.
func (c *Client) Connect(ctx context.Context) error {
	return c.ConnectWithTransport(ctx, nil)
}

// ConnectWithTransport establishes the MCP connection using the given
// transport. If transport is nil, one is created from the server
// configuration.
func (c *Client) ConnectWithTransport(ctx context.Context, transport mcp.Transport) error {
	c.client = mcp.NewClient(
		&mcp.Implementation{
			Name:    "kompanion",
			Version: "1.0.0",
		},
		&mcp.ClientOptions{
			Capabilities: &mcp.ClientCapabilities{},
		},
	)

	if transport == nil {
		t, err := c.createTransport()
		if err != nil {
			return fmt.Errorf("creating transport for %q: %w", c.cfg.Name, err)
		}
		transport = t
	}

	session, err := c.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connecting to MCP server %q: %w", c.cfg.Name, err)
	}
	c.session = session
	return nil
}

// createTransport creates an MCP transport based on the server
// configuration.
func (c *Client) createTransport() (mcp.Transport, error) {
	httpClient := c.buildHTTPClient()

	switch c.cfg.Transport {
	case "sse":
		transport := &mcp.SSEClientTransport{
			Endpoint: c.cfg.URL,
		}
		if httpClient != nil {
			transport.HTTPClient = httpClient
		}
		return transport, nil

	case "streamable-http", "":
		transport := &mcp.StreamableClientTransport{
			Endpoint: c.cfg.URL,
		}
		if httpClient != nil {
			transport.HTTPClient = httpClient
		}
		return transport, nil

	default:
		return nil, fmt.Errorf("unsupported transport type %q", c.cfg.Transport)
	}
}

// buildHTTPClient returns an HTTP client that injects the configured
// static headers, or nil when none are configured.
func (c *Client) buildHTTPClient() *http.Client {
	if len(c.cfg.Headers) == 0 {
		return nil
	}
	return &http.Client{
		Transport: &headerTransport{
			base:    http.DefaultTransport,
			headers: c.cfg.Headers,
		},
	}
}

// headerTransport is an http.RoundTripper that adds custom headers to
// every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

// Register discovers the server's tools and adds each one to the
// registry with a dispatcher bound to this session. Tools whose names
// are already taken are skipped with a warning, so local providers win
// over remote ones.
func (c *Client) Register(ctx context.Context, reg *tools.Registry) error {
	if c.session == nil {
		return fmt.Errorf("MCP client %q not connected", c.cfg.Name)
	}

	count := 0
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return fmt.Errorf("listing tools from %q: %w", c.cfg.Name, err)
		}

		var schema json.RawMessage
		if tool.InputSchema != nil {
			data, err := json.Marshal(tool.InputSchema)
			if err != nil {
				return fmt.Errorf("marshaling schema of %q from %q: %w", tool.Name, c.cfg.Name, err)
			}
			schema = data
		}

		name := tool.Name
		if reg.Has(name) {
			slog.Warn("skipping MCP tool, name already registered",
				"tool", name, "server", c.cfg.Name)
			continue
		}

		err = reg.Register(tools.Tool{
			Name:        name,
			Description: tool.Description,
			RawSchema:   schema,
			Dispatch: func(ctx context.Context, args map[string]any) (any, error) {
				return c.call(ctx, name, args)
			},
		})
		if err != nil {
			return err
		}
		count++
	}

	slog.Info("registered MCP tools", "server", c.cfg.Name, "count", count)
	return nil
}

// call executes one tool on the server and flattens the result to its
// text content.
func (c *Client) call(ctx context.Context, name string, args map[string]any) (any, error) {
	if c.session == nil {
		return nil, fmt.Errorf("MCP client %q not connected", c.cfg.Name)
	}

	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, fmt.Errorf("MCP tool call error: %w", err)
	}

	text := textContent(result)
	if result.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return nil, fmt.Errorf("%s", text)
	}
	return text, nil
}

// textContent concatenates the text parts of a tool result.
func textContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Ping verifies the session is alive.
func (c *Client) Ping(ctx context.Context) error {
	if c.session == nil {
		return fmt.Errorf("MCP client %q not connected", c.cfg.Name)
	}
	return c.session.Ping(ctx, nil)
}

// Close closes the MCP session.
func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

// Package ollama implements brain.Session on the Ollama chat API.
//
// The /api/chat endpoint returns a single JSON document when
// stream=false and newline-delimited JSON chunks when stream=true.
// Structured tool calls only appear on non-streaming responses.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kompanion-dev/kompanion/pkg/brain"
	"github.com/kompanion-dev/kompanion/pkg/chat"
)

// DefaultURL is the conventional local Ollama endpoint.
const DefaultURL = "http://localhost:11434"

// Config holds the adapter configuration.
type Config struct {
	// BaseURL is the Ollama server URL. Defaults to DefaultURL.
	BaseURL string

	// Skills maps skill names to their model and system prompt.
	Skills map[string]brain.Skill

	// DefaultSkill is used when a call names an unknown skill. Empty
	// means unknown skills are an error.
	DefaultSkill string

	// Timeout bounds one backend request. Large models with tools
	// need generous ceilings; defaults to 5 minutes.
	Timeout time.Duration
}

// Client is a brain.Session backed by Ollama.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

var _ brain.Session = (*Client)(nil)

// New creates a Client from the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if len(cfg.Skills) == 0 {
		return nil, fmt.Errorf("ollama: at least one skill must be configured")
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// chatRequest is the Ollama /api/chat request body.
type chatRequest struct {
	Model    string          `json:"model"`
	Messages []chat.Turn     `json:"messages"`
	Stream   bool            `json:"stream"`
	Tools    []chat.ToolSpec `json:"tools,omitempty"`
}

// chatResponse is one /api/chat response document (or stream chunk).
type chatResponse struct {
	Model   string    `json:"model"`
	Message chat.Turn `json:"message"`
	Done    bool      `json:"done"`
}

// resolve maps a skill name to its model and system prompt.
func (c *Client) resolve(skill string) (brain.Skill, error) {
	if s, ok := c.cfg.Skills[skill]; ok {
		return s, nil
	}
	if c.cfg.DefaultSkill != "" {
		if s, ok := c.cfg.Skills[c.cfg.DefaultSkill]; ok {
			return s, nil
		}
	}
	return brain.Skill{}, fmt.Errorf("ollama: unknown skill %q", skill)
}

// buildMessages prepends the skill's system prompt to the transcript.
func buildMessages(s brain.Skill, turns []chat.Turn) []chat.Turn {
	msgs := make([]chat.Turn, 0, len(turns)+1)
	if s.Prompt != "" {
		msgs = append(msgs, chat.Turn{Role: chat.RoleSystem, Content: s.Prompt})
	}
	return append(msgs, turns...)
}

func (c *Client) post(ctx context.Context, body chatRequest) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("backend error %d: %s", resp.StatusCode, string(msg))
	}
	return resp, nil
}

// Complete performs a non-streaming chat call with optional tools.
func (c *Client) Complete(ctx context.Context, skill string, turns []chat.Turn, specs []chat.ToolSpec) (*brain.Message, error) {
	s, err := c.resolve(skill)
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, chatRequest{
		Model:    s.Model,
		Messages: buildMessages(s, turns),
		Stream:   false,
		Tools:    specs,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &brain.Message{
		Content:   out.Message.Content,
		ToolCalls: out.Message.ToolCalls,
	}, nil
}

// Stream performs a streaming chat call with tools disabled. Fragments
// are delivered in arrival order; the channel closes when the backend
// reports done or the stream fails.
func (c *Client) Stream(ctx context.Context, skill string, turns []chat.Turn) (<-chan brain.Fragment, error) {
	s, err := c.resolve(skill)
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, chatRequest{
		Model:    s.Model,
		Messages: buildMessages(s, turns),
		Stream:   true,
	})
	if err != nil {
		return nil, err
	}

	ch := make(chan brain.Fragment)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		decoder := json.NewDecoder(resp.Body)
		for {
			var chunk chatResponse
			if err := decoder.Decode(&chunk); err != nil {
				if err == io.EOF {
					return
				}
				select {
				case ch <- brain.Fragment{Err: fmt.Errorf("decode stream chunk: %w", err)}:
				case <-ctx.Done():
				}
				return
			}

			if chunk.Message.Content != "" {
				select {
				case ch <- brain.Fragment{Content: chunk.Message.Content}:
				case <-ctx.Done():
					return
				}
			}

			if chunk.Done {
				return
			}
		}
	}()

	return ch, nil
}

// Ping checks whether the backend is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend error %d", resp.StatusCode)
	}
	return nil
}

// ListModels returns the model names available on the backend.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	names := make([]string, len(result.Models))
	for i, m := range result.Models {
		names[i] = m.Name
	}
	return names, nil
}

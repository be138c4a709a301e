package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// QdrantStore talks to Qdrant over its HTTP API.
type QdrantStore struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewQdrant creates a QdrantStore for the given base URL.
func NewQdrant(url string) *QdrantStore {
	return &QdrantStore{
		BaseURL:    strings.TrimRight(url, "/"),
		HTTPClient: &http.Client{},
	}
}

func (q *QdrantStore) do(ctx context.Context, method, path string, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.BaseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := q.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("qdrant request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	return respBody, resp.StatusCode, nil
}

// EnsureCollection creates the collection if it does not exist.
// Existing collections are left untouched, whatever their settings.
func (q *QdrantStore) EnsureCollection(ctx context.Context, name string, dimensions int) error {
	_, status, err := q.do(ctx, http.MethodGet, "/collections/"+name, nil)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimensions,
			"distance": "Cosine",
		},
	}
	respBody, status, err := q.do(ctx, http.MethodPut, "/collections/"+name, body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("qdrant create collection returned status %d: %s", status, string(respBody))
	}
	return nil
}

// qdrantPoint is one vector with its payload.
type qdrantPoint struct {
	ID      uint64         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// Upsert writes one point into the collection.
// PUT /collections/{name}/points
func (q *QdrantStore) Upsert(ctx context.Context, collection string, point qdrantPoint) error {
	body := map[string]any{"points": []qdrantPoint{point}}
	respBody, status, err := q.do(ctx, http.MethodPut, "/collections/"+collection+"/points", body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("qdrant upsert returned status %d: %s", status, string(respBody))
	}
	return nil
}

// qdrantSearchRequest is the JSON body for Qdrant's search endpoint.
type qdrantSearchRequest struct {
	Vector         []float32 `json:"vector"`
	Limit          int       `json:"limit"`
	WithPayload    bool      `json:"with_payload"`
	ScoreThreshold float64   `json:"score_threshold,omitempty"`
}

// qdrantSearchResponse represents Qdrant's search response.
type qdrantSearchResponse struct {
	Result []qdrantSearchResult `json:"result"`
}

type qdrantSearchResult struct {
	Score   float32        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Match is one retrieved memory entry.
type Match struct {
	Score float32
	Text  string
}

// Search performs a nearest-neighbor search in the named collection.
// POST /collections/{name}/points/search
func (q *QdrantStore) Search(ctx context.Context, collection string, vector []float32, limit int, minScore float64) ([]Match, error) {
	respBody, status, err := q.do(ctx, http.MethodPost, "/collections/"+collection+"/points/search", qdrantSearchRequest{
		Vector:         vector,
		Limit:          limit,
		WithPayload:    true,
		ScoreThreshold: minScore,
	})
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		// Nothing stored yet.
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("qdrant search returned status %d: %s", status, string(respBody))
	}

	var searchResp qdrantSearchResponse
	if err := json.Unmarshal(respBody, &searchResp); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}

	matches := make([]Match, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		m := Match{Score: r.Score}
		if text, ok := r.Payload["text"].(string); ok {
			m.Text = text
		}
		if m.Text == "" {
			continue
		}
		matches = append(matches, m)
	}
	return matches, nil
}

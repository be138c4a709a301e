package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds memory settings.
type Config struct {
	// OllamaURL is the embedding backend.
	OllamaURL string

	// EmbedModel names the embedding model.
	EmbedModel string

	// QdrantURL is the vector store.
	QdrantURL string

	// Collection names the Qdrant collection.
	Collection string

	// TopK caps how many past interactions are retrieved.
	TopK int

	// MinScore filters weakly related matches.
	MinScore float64
}

// Memory stores and retrieves past interactions. It satisfies the
// orchestrator's Memory interface.
type Memory struct {
	embed Embedder
	store *QdrantStore
	cfg   Config

	ensureOnce sync.Once
	ensureErr  error

	// seq disambiguates point IDs minted within the same nanosecond.
	seq atomic.Uint64
}

// New creates a Memory from the given configuration.
func New(cfg Config) (*Memory, error) {
	if cfg.QdrantURL == "" {
		return nil, fmt.Errorf("memory: qdrant URL must not be empty")
	}
	if cfg.EmbedModel == "" {
		return nil, fmt.Errorf("memory: embed model must not be empty")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 4
	}
	return &Memory{
		embed: NewOllamaEmbedder(cfg.OllamaURL, cfg.EmbedModel),
		store: NewQdrant(cfg.QdrantURL),
		cfg:   cfg,
	}, nil
}

// RetrieveContext returns past interactions similar to the query,
// joined into a single context block. An empty string means no
// sufficiently similar memory exists.
func (m *Memory) RetrieveContext(ctx context.Context, query string) (string, error) {
	vectors, err := m.embed.Embed(ctx, []string{query})
	if err != nil {
		return "", fmt.Errorf("embedding query: %w", err)
	}

	matches, err := m.store.Search(ctx, m.cfg.Collection, vectors[0], m.cfg.TopK, m.cfg.MinScore)
	if err != nil {
		return "", fmt.Errorf("searching memory: %w", err)
	}
	if len(matches) == 0 {
		return "", nil
	}

	texts := make([]string, len(matches))
	for i, match := range matches {
		texts[i] = match.Text
	}
	return strings.Join(texts, "\n---\n"), nil
}

// StoreInteraction records a resolved query/answer pair. The collection
// is created lazily on first write, sized to the embedding model's
// output.
func (m *Memory) StoreInteraction(ctx context.Context, query, resolution string) error {
	text := "Q: " + query + "\nA: " + resolution

	vectors, err := m.embed.Embed(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("embedding interaction: %w", err)
	}

	m.ensureOnce.Do(func() {
		m.ensureErr = m.store.EnsureCollection(ctx, m.cfg.Collection, len(vectors[0]))
	})
	if m.ensureErr != nil {
		return fmt.Errorf("ensuring collection: %w", m.ensureErr)
	}

	point := qdrantPoint{
		ID:     uint64(time.Now().UnixNano()) + m.seq.Add(1),
		Vector: vectors[0],
		Payload: map[string]any{
			"text":      text,
			"query":     query,
			"stored_at": time.Now().UTC().Format(time.RFC3339),
		},
	}
	if err := m.store.Upsert(ctx, m.cfg.Collection, point); err != nil {
		return fmt.Errorf("storing interaction: %w", err)
	}
	return nil
}

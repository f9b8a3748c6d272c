// Package search provides similarity search over complaint text. Hit
// fields are read from the complaint store on every query so results
// always reflect the current status and category; embedding vectors are
// cached per complaint and recomputed only when the text changes.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/scope-engine/scope-assistant/internal/complaint"
	"github.com/scope-engine/scope-assistant/internal/embeddings"
)

// previewLen is the number of runes of complaint text carried in a Hit.
const previewLen = 60

// Embedder generates a vector for a text. Satisfied by *embeddings.Client.
type Embedder interface {
	Generate(ctx context.Context, text string) ([]float32, error)
}

// Source supplies the complaints to rank. Satisfied by *complaint.Store.
type Source interface {
	All(ctx context.Context) ([]*complaint.Complaint, error)
}

// Hit is one ranked search result.
type Hit struct {
	ID       int64
	Preview  string
	Category complaint.Category
	Urgency  complaint.Urgency
	Status   complaint.Status
	Score    float32
}

type cachedVector struct {
	text   string
	vector []float32
}

// Index ranks complaints by cosine similarity to a query.
type Index struct {
	embedder Embedder
	source   Source
	logger   *slog.Logger

	mu   sync.Mutex
	vecs map[int64]cachedVector
}

// NewIndex creates an index over the given embedder and store.
func NewIndex(embedder Embedder, source Source, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		embedder: embedder,
		source:   source,
		logger:   logger,
		vecs:     make(map[int64]cachedVector),
	}
}

// Refresh warms the vector cache from the complaint store. Search does
// not require it; calling it at startup keeps first-query latency down.
func (ix *Index) Refresh(ctx context.Context) error {
	records, err := ix.source.All(ctx)
	if err != nil {
		return fmt.Errorf("load complaints for index: %w", err)
	}
	for _, c := range records {
		if _, err := ix.vectorFor(ctx, c); err != nil {
			return err
		}
	}
	ix.logger.Debug("search index refreshed", "complaints", len(records))
	return nil
}

// vectorFor returns the embedding vector for c, reusing the cached one
// when the complaint text is unchanged.
func (ix *Index) vectorFor(ctx context.Context, c *complaint.Complaint) ([]float32, error) {
	ix.mu.Lock()
	cached, ok := ix.vecs[c.ID]
	ix.mu.Unlock()
	if ok && cached.text == c.Text {
		return cached.vector, nil
	}

	vec, err := ix.embedder.Generate(ctx, c.Text)
	if err != nil {
		return nil, fmt.Errorf("embed complaint %d: %w", c.ID, err)
	}

	ix.mu.Lock()
	ix.vecs[c.ID] = cachedVector{text: c.Text, vector: vec}
	ix.mu.Unlock()
	return vec, nil
}

// Search returns the k most similar complaints to the query, best first.
// The store is re-read on every call, so a status updated between
// searches renders with its new value.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	records, err := ix.source.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load complaints for search: %w", err)
	}

	queryVec, err := ix.embedder.Generate(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits := make([]Hit, 0, len(records))
	for _, c := range records {
		vec, err := ix.vectorFor(ctx, c)
		if err != nil {
			return nil, err
		}
		hits = append(hits, Hit{
			ID:       c.ID,
			Preview:  preview(c.Text),
			Category: c.Category,
			Urgency:  c.Urgency,
			Status:   c.Status,
			Score:    embeddings.CosineSimilarity(queryVec, vec),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// preview collapses newlines and truncates to previewLen runes.
func preview(text string) string {
	flat := strings.Join(strings.Fields(text), " ")
	runes := []rune(flat)
	if len(runes) <= previewLen {
		return flat
	}
	return strings.TrimSpace(string(runes[:previewLen])) + "..."
}

package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/cloo-solutions/autoreply/internal/domain"
)

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// ChunkEmbedder turns a policy set into embedded chunks. Embeddings are
// memoised by the exact text sent to the provider, so rebuilding an index
// after one policy changes only embeds the changed windows.
type ChunkEmbedder struct {
	client   EmbeddingClient
	chunkCfg ChunkConfig

	mu   sync.Mutex
	memo map[string][]float32
}

// NewChunkEmbedder creates a new ChunkEmbedder instance
func NewChunkEmbedder(client EmbeddingClient, cfg ChunkConfig) *ChunkEmbedder {
	return &ChunkEmbedder{
		client:   client,
		chunkCfg: cfg,
		memo:     make(map[string][]float32),
	}
}

// BuildChunks embeds every chunk of every policy. It fails on the first
// provider error and never returns a partial set.
func (e *ChunkEmbedder) BuildChunks(ctx context.Context, policies []*domain.Policy) ([]domain.PolicyChunk, error) {
	chunks := make([]domain.PolicyChunk, 0, len(policies))
	used := make(map[string]struct{})

	for _, p := range policies {
		for i, window := range chunkText(p.Content, e.chunkCfg) {
			text := buildChunkEmbeddingText(p, window)
			embedding, err := e.embed(ctx, text)
			if err != nil {
				return nil, fmt.Errorf("failed to generate chunk embedding for policy %s: %w", p.ID, err)
			}
			used[memoKey(text)] = struct{}{}

			chunks = append(chunks, domain.PolicyChunk{
				PolicyID:   p.ID,
				ChunkIndex: i,
				Title:      p.Title,
				Category:   p.Category,
				Keywords:   p.Keywords,
				Content:    window,
				Embedding:  embedding,
			})
		}
	}

	e.prune(used)
	return chunks, nil
}

// EmbedQuery embeds a search query. Queries are not memoised.
func (e *ChunkEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	embedding, err := e.client.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}
	return embedding, nil
}

func (e *ChunkEmbedder) embed(ctx context.Context, text string) ([]float32, error) {
	key := memoKey(text)

	e.mu.Lock()
	cached, ok := e.memo[key]
	e.mu.Unlock()
	if ok {
		return cached, nil
	}

	embedding, err := e.client.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.memo[key] = embedding
	e.mu.Unlock()
	return embedding, nil
}

// prune drops memo entries not used by the latest build.
func (e *ChunkEmbedder) prune(used map[string]struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key := range e.memo {
		if _, ok := used[key]; !ok {
			delete(e.memo, key)
		}
	}
}

func memoKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func buildChunkEmbeddingText(p *domain.Policy, chunk string) string {
	var parts []string
	if p.Title != "" {
		parts = append(parts, p.Title)
	}
	if chunk != "" {
		parts = append(parts, chunk)
	}
	if len(p.Keywords) > 0 {
		parts = append(parts, fmt.Sprintf("Keywords: %s", strings.Join(p.Keywords, ", ")))
	}
	return strings.Join(parts, "\n\n")
}

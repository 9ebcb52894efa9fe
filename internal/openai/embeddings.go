package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

var (
	ErrEmptyText       = errors.New("text cannot be empty")
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	ErrNoEmbedding     = errors.New("no embedding data returned")
)

// GenerateEmbedding embeds text and checks the vector length against the
// configured dimensions, which must match the policy_chunks column.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	var resp openai.EmbeddingResponse
	err := c.retry(ctx, func() error {
		var err error
		resp, err = c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: c.embeddingModel,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, ErrNoEmbedding
	}

	embedding := resp.Data[0].Embedding
	if len(embedding) != c.dimensions {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrWrongDimensions, c.dimensions, len(embedding))
	}
	return embedding, nil
}

package repository

import (
	"context"

	"github.com/cloo-solutions/autoreply/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PolicyChunkRepository is the pgvector-backed similarity index over policy chunks.
type PolicyChunkRepository struct {
	db dbtx
}

func NewPolicyChunkRepository(pool *pgxpool.Pool) *PolicyChunkRepository {
	return &PolicyChunkRepository{db: pool}
}

func NewPolicyChunkRepositoryWithTx(tx dbtx) *PolicyChunkRepository {
	return &PolicyChunkRepository{db: tx}
}

// Replace swaps the whole index for chunks. Callers run it inside a
// transaction so readers never observe a partial index.
func (r *PolicyChunkRepository) Replace(ctx context.Context, chunks []domain.PolicyChunk) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM policy_chunks`); err != nil {
		return err
	}

	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(
			`INSERT INTO policy_chunks (policy_id, chunk_index, content, embedding)
			 VALUES ($1, $2, $3, $4)`,
			c.PolicyID, c.ChunkIndex, c.Content, pgvector.NewVector(c.Embedding),
		)
	}

	return r.db.SendBatch(ctx, batch).Close()
}

// Search returns the nearest chunks by cosine distance, joined with their policy.
func (r *PolicyChunkRepository) Search(ctx context.Context, embedding []float32, limit int) ([]*domain.PolicyMatch, error) {
	if limit <= 0 {
		limit = 3
	}

	rows, err := r.db.Query(ctx,
		`SELECT c.policy_id, p.title, p.category, p.keywords, c.content,
		        1.0 / (1.0 + (c.embedding <=> $1)) AS score
		 FROM policy_chunks c
		 JOIN policies p ON p.id = c.policy_id
		 ORDER BY c.embedding <=> $1, c.policy_id, c.chunk_index
		 LIMIT $2`,
		pgvector.NewVector(embedding), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := make([]*domain.PolicyMatch, 0, limit)
	for rows.Next() {
		var m domain.PolicyMatch
		var score float64
		if err := rows.Scan(&m.PolicyID, &m.Title, &m.Category, &m.Keywords, &m.Content, &score); err != nil {
			return nil, err
		}
		m.Score = float32(score)
		matches = append(matches, &m)
	}
	return matches, rows.Err()
}

func (r *PolicyChunkRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM policy_chunks`).Scan(&n)
	return n, err
}

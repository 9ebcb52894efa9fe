package repository

import (
	"context"
	"errors"

	"github.com/cloo-solutions/autoreply/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PolicyRepository struct {
	db dbtx
}

func NewPolicyRepository(pool *pgxpool.Pool) *PolicyRepository {
	return &PolicyRepository{db: pool}
}

func NewPolicyRepositoryWithTx(tx pgx.Tx) *PolicyRepository {
	return &PolicyRepository{db: tx}
}

func (r *PolicyRepository) Create(ctx context.Context, p *domain.Policy) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO policies (id, title, content, category, keywords, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Title, p.Content, p.Category, keywordsOrEmpty(p.Keywords), p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (r *PolicyRepository) Update(ctx context.Context, p *domain.Policy) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE policies SET title = $2, content = $3, category = $4, keywords = $5, updated_at = $6
		 WHERE id = $1`,
		p.ID, p.Title, p.Content, p.Category, keywordsOrEmpty(p.Keywords), p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPolicyNotFound
	}
	return nil
}

func (r *PolicyRepository) GetByID(ctx context.Context, id string) (*domain.Policy, error) {
	var p domain.Policy
	err := r.db.QueryRow(ctx,
		`SELECT id, title, content, category, keywords, created_at, updated_at
		 FROM policies WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Title, &p.Content, &p.Category, &p.Keywords, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPolicyNotFound
		}
		return nil, err
	}
	return &p, nil
}

// List returns policies in insertion order.
func (r *PolicyRepository) List(ctx context.Context) ([]*domain.Policy, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, title, content, category, keywords, created_at, updated_at
		 FROM policies ORDER BY seq`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	policies := make([]*domain.Policy, 0)
	for rows.Next() {
		var p domain.Policy
		if err := rows.Scan(&p.ID, &p.Title, &p.Content, &p.Category, &p.Keywords, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		policies = append(policies, &p)
	}
	return policies, rows.Err()
}

func keywordsOrEmpty(keywords []string) []string {
	if keywords == nil {
		return []string{}
	}
	return keywords
}

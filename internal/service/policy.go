package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloo-solutions/autoreply/internal/domain"
	"github.com/cloo-solutions/autoreply/internal/telemetry"
	"github.com/google/uuid"
)

// DefaultSearchLimit is the number of chunks returned when k is not positive.
const DefaultSearchLimit = 3

// PolicyRepository persists policy records.
type PolicyRepository interface {
	Create(ctx context.Context, p *domain.Policy) error
	Update(ctx context.Context, p *domain.Policy) error
	GetByID(ctx context.Context, id string) (*domain.Policy, error)
	List(ctx context.Context) ([]*domain.Policy, error)
}

// PolicyIndex stores embedded chunks and answers nearest-neighbour queries.
type PolicyIndex interface {
	Replace(ctx context.Context, chunks []domain.PolicyChunk) error
	Search(ctx context.Context, embedding []float32, limit int) ([]*domain.PolicyMatch, error)
	Count(ctx context.Context) (int, error)
}

// IndexObserver is told the chunk count after every rebuild.
type IndexObserver interface {
	SetIndexedChunks(n int)
}

// AddPolicyInput holds the input for adding or updating a policy.
type AddPolicyInput struct {
	Title    string
	Content  string
	Category string
	Keywords []string
}

// PolicyService owns the policy set and its similarity index.
type PolicyService struct {
	tx       TxRunner
	repo     PolicyRepository
	index    PolicyIndex
	embedder *ChunkEmbedder
	observer IndexObserver
	now      func() time.Time

	// writeMu serialises validate + rebuild + persist.
	writeMu sync.Mutex
}

// NewPolicyService creates a new PolicyService instance
func NewPolicyService(tx TxRunner, repo PolicyRepository, index PolicyIndex, embedder *ChunkEmbedder) *PolicyService {
	return &PolicyService{
		tx:       tx,
		repo:     repo,
		index:    index,
		embedder: embedder,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetIndexObserver registers an observer for index size changes.
func (s *PolicyService) SetIndexObserver(o IndexObserver) {
	s.observer = o
}

// AddPolicy validates and stores a new policy, then rebuilds the index over
// the whole set. Nothing is persisted if embedding fails.
func (s *PolicyService) AddPolicy(ctx context.Context, input AddPolicyInput) (*domain.Policy, error) {
	ctx, span := telemetry.StartSpan(ctx, "PolicyService.AddPolicy", telemetry.SpanAttributes{
		Operation: "add_policy",
	})
	defer span.End()

	policy := domain.NewPolicy(
		domain.PolicyIDPrefix+uuid.NewString(),
		strings.TrimSpace(input.Title),
		strings.TrimSpace(input.Content),
		strings.TrimSpace(input.Category),
		input.Keywords,
		s.now(),
	)
	if err := domain.ValidatePolicy(policy); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.rebuild(ctx,
		func(current []*domain.Policy) ([]*domain.Policy, error) {
			return append(current, policy), nil
		},
		func(repos TxRepositories) error {
			return repos.Policies().Create(ctx, policy)
		},
	)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	return policy, nil
}

// UpdatePolicy replaces a policy's fields and rebuilds the index.
func (s *PolicyService) UpdatePolicy(ctx context.Context, id string, input AddPolicyInput) (*domain.Policy, error) {
	ctx, span := telemetry.StartSpan(ctx, "PolicyService.UpdatePolicy", telemetry.SpanAttributes{
		PolicyID:  id,
		Operation: "update_policy",
	})
	defer span.End()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *existing
	updated.Title = strings.TrimSpace(input.Title)
	updated.Content = strings.TrimSpace(input.Content)
	updated.Category = strings.TrimSpace(input.Category)
	updated.Keywords = domain.NormalizeKeywords(input.Keywords)
	updated.UpdatedAt = s.now()
	if err := domain.ValidatePolicy(&updated); err != nil {
		return nil, err
	}

	err = s.rebuild(ctx,
		func(current []*domain.Policy) ([]*domain.Policy, error) {
			for i, p := range current {
				if p.ID == id {
					current[i] = &updated
					return current, nil
				}
			}
			return nil, domain.ErrPolicyNotFound
		},
		func(repos TxRepositories) error {
			return repos.Policies().Update(ctx, &updated)
		},
	)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	return &updated, nil
}

// Load seeds an empty repository and rebuilds the index from whatever is stored.
func (s *PolicyService) Load(ctx context.Context, seed []*domain.Policy) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var toCreate []*domain.Policy
	return s.rebuild(ctx,
		func(current []*domain.Policy) ([]*domain.Policy, error) {
			if len(current) > 0 {
				return current, nil
			}
			now := s.now()
			for _, p := range seed {
				id := p.ID
				if id == "" {
					id = domain.PolicyIDPrefix + uuid.NewString()
				}
				policy := domain.NewPolicy(id, p.Title, p.Content, p.Category, p.Keywords, now)
				if err := domain.ValidatePolicy(policy); err != nil {
					return nil, fmt.Errorf("invalid seed policy %q: %w", id, err)
				}
				toCreate = append(toCreate, policy)
			}
			return toCreate, nil
		},
		func(repos TxRepositories) error {
			for _, p := range toCreate {
				if err := repos.Policies().Create(ctx, p); err != nil {
					return err
				}
			}
			return nil
		},
	)
}

// rebuild runs one index write inside a transaction. The policy set is read
// under the transaction's writer lock, so a concurrent writer elsewhere is
// always included. apply derives the new set from it, and the set is fully
// embedded before persist and the index swap run. Any failure rolls back.
func (s *PolicyService) rebuild(
	ctx context.Context,
	apply func(current []*domain.Policy) ([]*domain.Policy, error),
	persist func(TxRepositories) error,
) error {
	var indexed int
	err := s.tx.WithTx(ctx, func(repos TxRepositories) error {
		current, err := repos.Policies().List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list policies: %w", err)
		}
		policies, err := apply(current)
		if err != nil {
			return err
		}

		chunks, err := s.embedder.BuildChunks(ctx, policies)
		if err != nil {
			return domain.NewDomainErrorWithCause(domain.ErrCodeUpstream, "failed to index policies", err)
		}

		if err := persist(repos); err != nil {
			return fmt.Errorf("failed to persist policy: %w", err)
		}
		if err := repos.Index().Replace(ctx, chunks); err != nil {
			return fmt.Errorf("failed to replace policy index: %w", err)
		}
		indexed = len(chunks)
		return nil
	})
	if err != nil {
		return err
	}

	if s.observer != nil {
		s.observer.SetIndexedChunks(indexed)
	}
	return nil
}

// SearchPolicies returns up to k chunks ordered by similarity to query. An
// empty index yields an empty result, not an error.
func (s *PolicyService) SearchPolicies(ctx context.Context, query string, k int) ([]*domain.PolicyMatch, error) {
	ctx, span := telemetry.StartSpan(ctx, "PolicyService.SearchPolicies", telemetry.SpanAttributes{
		Operation: "search_policies",
	})
	defer span.End()

	if k <= 0 {
		k = DefaultSearchLimit
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ValidationError("query")
	}

	count, err := s.index.Count(ctx)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to inspect policy index: %w", err)
	}
	if count == 0 {
		return []*domain.PolicyMatch{}, nil
	}

	embedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.SetError(err)
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUpstream, "failed to search policies", err)
	}

	matches, err := s.index.Search(ctx, embedding, k)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to search policy index: %w", err)
	}
	return matches, nil
}

// GetAllPolicies returns every policy in insertion order.
func (s *PolicyService) GetAllPolicies(ctx context.Context) ([]*domain.Policy, error) {
	return s.repo.List(ctx)
}

func (s *PolicyService) GetPolicy(ctx context.Context, id string) (*domain.Policy, error) {
	return s.repo.GetByID(ctx, id)
}

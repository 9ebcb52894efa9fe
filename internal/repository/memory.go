package repository

import (
	"context"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/cloo-solutions/autoreply/internal/domain"
	"github.com/cloo-solutions/autoreply/internal/service"
)

// MemoryStore keeps policies and their chunk index in process memory. It is
// used when no database is configured.
type MemoryStore struct {
	// txMu is held for the whole of WithTx so that writers sharing the
	// store run one at a time.
	txMu     sync.Mutex
	mu       sync.RWMutex
	policies []*domain.Policy
	chunks   []domain.PolicyChunk
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Policies returns the store's policy repository.
func (s *MemoryStore) Policies() *MemoryPolicyRepository {
	return &MemoryPolicyRepository{store: s}
}

// Index returns the store's brute-force similarity index.
func (s *MemoryStore) Index() *MemoryPolicyIndex {
	return &MemoryPolicyIndex{store: s}
}

// WithTx runs fn against the store and restores the previous state if fn
// fails. Calls are serialised.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(repos service.TxRepositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	policies := clonePolicies(s.policies)
	chunks := slices.Clone(s.chunks)
	s.mu.RUnlock()

	if err := fn(memoryTxRepos{store: s}); err != nil {
		s.mu.Lock()
		s.policies = policies
		s.chunks = chunks
		s.mu.Unlock()
		return err
	}
	return nil
}

type memoryTxRepos struct {
	store *MemoryStore
}

func (r memoryTxRepos) Policies() service.PolicyRepository {
	return r.store.Policies()
}

func (r memoryTxRepos) Index() service.PolicyIndex {
	return r.store.Index()
}

// MemoryPolicyRepository is an in-process PolicyRepository.
type MemoryPolicyRepository struct {
	store *MemoryStore
}

func (r *MemoryPolicyRepository) Create(ctx context.Context, p *domain.Policy) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, existing := range r.store.policies {
		if existing.ID == p.ID {
			return domain.NewDomainError(domain.ErrCodeConflict, "policy already exists")
		}
	}
	r.store.policies = append(r.store.policies, clonePolicy(p))
	return nil
}

func (r *MemoryPolicyRepository) Update(ctx context.Context, p *domain.Policy) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for i, existing := range r.store.policies {
		if existing.ID == p.ID {
			r.store.policies[i] = clonePolicy(p)
			return nil
		}
	}
	return domain.ErrPolicyNotFound
}

func (r *MemoryPolicyRepository) GetByID(ctx context.Context, id string) (*domain.Policy, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, p := range r.store.policies {
		if p.ID == id {
			return clonePolicy(p), nil
		}
	}
	return nil, domain.ErrPolicyNotFound
}

func (r *MemoryPolicyRepository) List(ctx context.Context) ([]*domain.Policy, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return clonePolicies(r.store.policies), nil
}

// MemoryPolicyIndex is a brute-force cosine similarity index.
type MemoryPolicyIndex struct {
	store *MemoryStore
}

func (x *MemoryPolicyIndex) Replace(ctx context.Context, chunks []domain.PolicyChunk) error {
	x.store.mu.Lock()
	defer x.store.mu.Unlock()

	x.store.chunks = slices.Clone(chunks)
	return nil
}

func (x *MemoryPolicyIndex) Count(ctx context.Context) (int, error) {
	x.store.mu.RLock()
	defer x.store.mu.RUnlock()

	return len(x.store.chunks), nil
}

// Search scores every chunk and returns the top limit, ties broken by index order.
func (x *MemoryPolicyIndex) Search(ctx context.Context, embedding []float32, limit int) ([]*domain.PolicyMatch, error) {
	if limit <= 0 {
		limit = 3
	}

	x.store.mu.RLock()
	defer x.store.mu.RUnlock()

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(x.store.chunks))
	for i, c := range x.store.chunks {
		scores[i] = scored{idx: i, score: 1.0 / (1.0 + cosineDistance(c.Embedding, embedding))}
	}
	sort.SliceStable(scores, func(a, b int) bool {
		return scores[a].score > scores[b].score
	})

	limit = min(limit, len(scores))
	matches := make([]*domain.PolicyMatch, 0, limit)
	for _, s := range scores[:limit] {
		c := x.store.chunks[s.idx]
		matches = append(matches, &domain.PolicyMatch{
			PolicyID: c.PolicyID,
			Title:    c.Title,
			Category: c.Category,
			Content:  c.Content,
			Keywords: slices.Clone(c.Keywords),
			Score:    float32(s.score),
		})
	}
	return matches, nil
}

// cosineDistance returns 1 - cos(a, b), or 1 when either vector is zero.
func cosineDistance(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func clonePolicy(p *domain.Policy) *domain.Policy {
	c := *p
	c.Keywords = slices.Clone(p.Keywords)
	return &c
}

func clonePolicies(policies []*domain.Policy) []*domain.Policy {
	out := make([]*domain.Policy, 0, len(policies))
	for _, p := range policies {
		out = append(out, clonePolicy(p))
	}
	return out
}

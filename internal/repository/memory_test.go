package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloo-solutions/autoreply/internal/domain"
	"github.com/cloo-solutions/autoreply/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPolicy(id, title string) *domain.Policy {
	return domain.NewPolicy(id, title, title+" content", "general", []string{"kw"}, time.Now().UTC())
}

func TestMemoryPolicyRepository_CreateAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore().Policies()

	require.NoError(t, repo.Create(ctx, newTestPolicy("policy_b", "B")))
	require.NoError(t, repo.Create(ctx, newTestPolicy("policy_a", "A")))

	policies, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, policies, 2)
	assert.Equal(t, "policy_b", policies[0].ID)
	assert.Equal(t, "policy_a", policies[1].ID)
}

func TestMemoryPolicyRepository_CreateDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore().Policies()

	require.NoError(t, repo.Create(ctx, newTestPolicy("policy_1", "A")))
	err := repo.Create(ctx, newTestPolicy("policy_1", "A"))

	var domainErr *domain.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, domain.ErrCodeConflict, domainErr.Code)
}

func TestMemoryPolicyRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore().Policies()
	require.NoError(t, repo.Create(ctx, newTestPolicy("policy_1", "Refund Policy")))

	got, err := repo.GetByID(ctx, "policy_1")
	require.NoError(t, err)
	assert.Equal(t, "Refund Policy", got.Title)

	got.Keywords[0] = "mutated"
	again, err := repo.GetByID(ctx, "policy_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"kw"}, again.Keywords)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrPolicyNotFound)
}

func TestMemoryPolicyRepository_Update(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore().Policies()
	require.NoError(t, repo.Create(ctx, newTestPolicy("policy_1", "Old")))

	updated := newTestPolicy("policy_1", "New")
	require.NoError(t, repo.Update(ctx, updated))

	got, err := repo.GetByID(ctx, "policy_1")
	require.NoError(t, err)
	assert.Equal(t, "New", got.Title)

	err = repo.Update(ctx, newTestPolicy("missing", "X"))
	assert.ErrorIs(t, err, domain.ErrPolicyNotFound)
}

func TestMemoryPolicyIndex_SearchOrdersByCosineSimilarity(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryStore().Index()

	require.NoError(t, index.Replace(ctx, []domain.PolicyChunk{
		{PolicyID: "p1", Title: "Shipping", Category: "shipping", Content: "ships", Embedding: []float32{0, 1, 0}},
		{PolicyID: "p2", Title: "Refund", Category: "billing", Content: "refunds", Embedding: []float32{1, 0, 0}},
		{PolicyID: "p3", Title: "Hours", Category: "support", Content: "hours", Embedding: []float32{0.7, 0.7, 0}},
	}))

	matches, err := index.Search(ctx, []float32{1, 0.1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "Refund", matches[0].Title)
	assert.Equal(t, "billing", matches[0].Category)
	assert.Equal(t, "Hours", matches[1].Title)
	assert.Greater(t, matches[0].Score, matches[1].Score)

	count, err := index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestMemoryPolicyIndex_SearchDefaultsAndBounds(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryStore().Index()

	matches, err := index.Search(ctx, []float32{1}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)

	chunks := make([]domain.PolicyChunk, 5)
	for i := range chunks {
		chunks[i] = domain.PolicyChunk{PolicyID: "p", ChunkIndex: i, Embedding: []float32{1, float32(i)}}
	}
	require.NoError(t, index.Replace(ctx, chunks))

	matches, err = index.Search(ctx, []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Len(t, matches, 3)
}

func TestMemoryStore_WithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Policies().Create(ctx, newTestPolicy("policy_1", "Kept")))
	require.NoError(t, store.Index().Replace(ctx, []domain.PolicyChunk{{PolicyID: "policy_1", Embedding: []float32{1}}}))

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(repos service.TxRepositories) error {
		require.NoError(t, repos.Policies().Create(ctx, newTestPolicy("policy_2", "Dropped")))
		require.NoError(t, repos.Index().Replace(ctx, nil))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	policies, err := store.Policies().List(ctx)
	require.NoError(t, err)
	require.Len(t, policies, 1)
	assert.Equal(t, "policy_1", policies[0].ID)

	count, err := store.Index().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryStore_WithTxIsSerialised(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	entered := make(chan struct{})
	release := make(chan struct{})
	firstDone := make(chan error, 1)
	go func() {
		firstDone <- store.WithTx(ctx, func(repos service.TxRepositories) error {
			close(entered)
			<-release
			return repos.Policies().Create(ctx, newTestPolicy("policy_1", "First"))
		})
	}()
	<-entered

	secondDone := make(chan []*domain.Policy, 1)
	go func() {
		var seen []*domain.Policy
		_ = store.WithTx(ctx, func(repos service.TxRepositories) error {
			var err error
			seen, err = repos.Policies().List(ctx)
			return err
		})
		secondDone <- seen
	}()

	select {
	case <-secondDone:
		t.Fatal("second transaction ran while the first was open")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-firstDone)
	seen := <-secondDone
	require.Len(t, seen, 1)
	assert.Equal(t, "policy_1", seen[0].ID)
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0.0, cosineDistance([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 1.0, cosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 2.0, cosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 1.0, cosineDistance([]float32{0, 0}, []float32{1, 0}))
}

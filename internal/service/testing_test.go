package service_test

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/cloo-solutions/autoreply/internal/repository"
	"github.com/cloo-solutions/autoreply/internal/service"
)

// bagOfWordsEmbedder hashes lower-cased words into a small vector so that
// texts sharing words are close under cosine distance.
type bagOfWordsEmbedder struct {
	mu      sync.Mutex
	calls   []string
	failOn  string
	failErr error
}

func (e *bagOfWordsEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls = append(e.calls, text)
	failOn, failErr := e.failOn, e.failErr
	e.mu.Unlock()

	if failOn != "" && strings.Contains(text, failOn) {
		if failErr == nil {
			failErr = errors.New("embedding provider unavailable")
		}
		return nil, failErr
	}

	vec := make([]float32, 256)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%256]++
	}
	return vec, nil
}

func (e *bagOfWordsEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func (e *bagOfWordsEmbedder) fail(substr string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failOn = substr
}

// gatedEmbedder holds embeddings of texts containing word until release is
// closed, signalling entered on the first such call.
type gatedEmbedder struct {
	bagOfWordsEmbedder
	word    string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedEmbedder(word string) *gatedEmbedder {
	return &gatedEmbedder{
		word:    word,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (e *gatedEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(text, e.word) {
		e.once.Do(func() { close(e.entered) })
		select {
		case <-e.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return e.bagOfWordsEmbedder.GenerateEmbedding(ctx, text)
}

func newMemoryPolicyService(embedder service.EmbeddingClient) (*service.PolicyService, *repository.MemoryStore) {
	store := repository.NewMemoryStore()
	return newPolicyServiceOn(store, embedder), store
}

func newPolicyServiceOn(store *repository.MemoryStore, embedder service.EmbeddingClient) *service.PolicyService {
	return service.NewPolicyService(
		store,
		store.Policies(),
		store.Index(),
		service.NewChunkEmbedder(embedder, service.DefaultChunkConfig()),
	)
}

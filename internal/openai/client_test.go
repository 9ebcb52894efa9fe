package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI serves the embeddings and chat endpoints. Each handler may fail the
// first n calls with the given status.
type fakeAPI struct {
	t          *testing.T
	dimensions int
	reply      string
	failFirst  int32
	failStatus int
	calls      atomic.Int32

	mu         sync.Mutex
	lastChat   openai.ChatCompletionRequest
	chatFields map[string]json.RawMessage
	lastEmbed  openai.EmbeddingRequest
}

func (f *fakeAPI) chatField(name string) (json.RawMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.chatFields[name]
	return v, ok
}

func (f *fakeAPI) chatRequest() openai.ChatCompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastChat
}

func (f *fakeAPI) embedRequest() openai.EmbeddingRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastEmbed
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := f.calls.Add(1)
	if n <= f.failFirst {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.failStatus)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"requests"}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/v1/embeddings":
		var req openai.EmbeddingRequest
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.lastEmbed = req
		f.mu.Unlock()
		vec := make([]float32, f.dimensions)
		for i := range vec {
			vec[i] = float32(i) * 0.001
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   []map[string]any{{"object": "embedding", "index": 0, "embedding": vec}},
		})
	case "/v1/chat/completions":
		body, err := io.ReadAll(r.Body)
		assert.NoError(f.t, err)
		var req openai.ChatCompletionRequest
		assert.NoError(f.t, json.Unmarshal(body, &req))
		var fields map[string]json.RawMessage
		assert.NoError(f.t, json.Unmarshal(body, &fields))
		f.mu.Lock()
		f.lastChat = req
		f.chatFields = fields
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"index":   0,
				"message": map[string]string{"role": "assistant", "content": f.reply},
			}},
		})
	default:
		http.NotFound(w, r)
	}
}

func newFakeClient(t *testing.T, api *fakeAPI, cfg Config) *Client {
	t.Helper()
	api.t = t
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	cfg.APIKey = "sk-test"
	cfg.BaseURL = srv.URL + "/v1/"
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Millisecond
	}
	return New(cfg)
}

func TestNew_Defaults(t *testing.T) {
	c := New(Config{APIKey: "sk-test"})

	assert.Equal(t, DefaultEmbeddingModel, c.embeddingModel)
	assert.Equal(t, DefaultEmbeddingDimensions, c.dimensions)
	assert.Equal(t, DefaultChatModel, c.chatModel)
	assert.Equal(t, DefaultTemperature, c.temperature)
	assert.Equal(t, DefaultMaxAttempts, c.maxAttempts)
}

func TestGenerateEmbedding(t *testing.T) {
	api := &fakeAPI{dimensions: DefaultEmbeddingDimensions}
	c := newFakeClient(t, api, Config{})

	embedding, err := c.GenerateEmbedding(context.Background(), "Refunds are processed within 5-7 business days.")

	require.NoError(t, err)
	assert.Len(t, embedding, DefaultEmbeddingDimensions)
	assert.InDelta(t, 0.001, embedding[1], 1e-6)
	assert.Equal(t, DefaultEmbeddingModel, api.embedRequest().Model)
}

func TestGenerateEmbedding_EmptyText(t *testing.T) {
	api := &fakeAPI{dimensions: 3}
	c := newFakeClient(t, api, Config{EmbeddingDimensions: 3})

	_, err := c.GenerateEmbedding(context.Background(), "")

	assert.ErrorIs(t, err, ErrEmptyText)
	assert.Zero(t, api.calls.Load())
}

func TestGenerateEmbedding_WrongDimensions(t *testing.T) {
	c := newFakeClient(t, &fakeAPI{dimensions: 512}, Config{})

	_, err := c.GenerateEmbedding(context.Background(), "text")

	assert.ErrorIs(t, err, ErrWrongDimensions)
	assert.ErrorContains(t, err, "expected 1536, got 512")
}

func TestGenerateEmbedding_RetriesRateLimit(t *testing.T) {
	api := &fakeAPI{dimensions: 3, failFirst: 2, failStatus: http.StatusTooManyRequests}
	c := newFakeClient(t, api, Config{EmbeddingDimensions: 3, MaxAttempts: 3})

	embedding, err := c.GenerateEmbedding(context.Background(), "text")

	require.NoError(t, err)
	assert.Len(t, embedding, 3)
	assert.Equal(t, int32(3), api.calls.Load())
}

func TestGenerateEmbedding_NoRetryByDefault(t *testing.T) {
	api := &fakeAPI{dimensions: 3, failFirst: 10, failStatus: http.StatusTooManyRequests}
	c := newFakeClient(t, api, Config{EmbeddingDimensions: 3})

	_, err := c.GenerateEmbedding(context.Background(), "text")

	assert.Error(t, err)
	assert.Equal(t, int32(1), api.calls.Load())
}

func TestGenerateEmbedding_GivesUpAfterMaxAttempts(t *testing.T) {
	api := &fakeAPI{dimensions: 3, failFirst: 10, failStatus: http.StatusServiceUnavailable}
	c := newFakeClient(t, api, Config{EmbeddingDimensions: 3, MaxAttempts: 2})

	_, err := c.GenerateEmbedding(context.Background(), "text")

	assert.ErrorContains(t, err, "failed to create embedding")
	var apiErr *openai.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.HTTPStatusCode)
	assert.Equal(t, int32(2), api.calls.Load())
}

func TestGenerateEmbedding_ClientErrorNotRetried(t *testing.T) {
	api := &fakeAPI{dimensions: 3, failFirst: 10, failStatus: http.StatusUnauthorized}
	c := newFakeClient(t, api, Config{EmbeddingDimensions: 3, MaxAttempts: 3})

	_, err := c.GenerateEmbedding(context.Background(), "text")

	assert.Error(t, err)
	assert.Equal(t, int32(1), api.calls.Load())
}

func TestComplete(t *testing.T) {
	api := &fakeAPI{reply: "  Your refund is on its way.\n"}
	c := newFakeClient(t, api, Config{})

	reply, err := c.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "Be helpful."},
		{Role: RoleUser, Content: "Where is my refund?"},
	})

	require.NoError(t, err)
	assert.Equal(t, "Your refund is on its way.", reply)
	req := api.chatRequest()
	assert.Equal(t, DefaultChatModel, req.Model)
	assert.Equal(t, DefaultTemperature, req.Temperature)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "Where is my refund?", req.Messages[1].Content)
}

func temperature(t float32) *float32 { return &t }

func TestComplete_ZeroTemperatureIsSent(t *testing.T) {
	api := &fakeAPI{reply: "ok"}
	c := newFakeClient(t, api, Config{Temperature: temperature(0)})
	assert.Zero(t, c.temperature)

	_, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})

	require.NoError(t, err)
	_, sent := api.chatField("temperature")
	assert.True(t, sent)
	assert.InDelta(t, 0, api.chatRequest().Temperature, 1e-6)
}

func TestComplete_ConfiguredModel(t *testing.T) {
	api := &fakeAPI{reply: "ok"}
	c := newFakeClient(t, api, Config{ChatModel: "gpt-4o-mini", Temperature: temperature(0.2)})

	_, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})

	require.NoError(t, err)
	req := api.chatRequest()
	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.Equal(t, float32(0.2), req.Temperature)
}

func TestComplete_EmptyPrompt(t *testing.T) {
	api := &fakeAPI{}
	c := newFakeClient(t, api, Config{})

	_, err := c.Complete(context.Background(), nil)

	assert.ErrorIs(t, err, ErrEmptyPrompt)
	assert.Zero(t, api.calls.Load())
}

func TestComplete_CancelledDuringBackoff(t *testing.T) {
	api := &fakeAPI{failFirst: 10, failStatus: http.StatusTooManyRequests}
	c := newFakeClient(t, api, Config{MaxAttempts: 3, RetryBackoff: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Complete(ctx, []Message{{Role: RoleUser, Content: "hi"}})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), api.calls.Load())
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloo-solutions/autoreply/internal/api/handlers"
	"github.com/cloo-solutions/autoreply/internal/api/middleware"
	"github.com/cloo-solutions/autoreply/internal/cache"
	"github.com/cloo-solutions/autoreply/internal/domain"
	"github.com/cloo-solutions/autoreply/internal/jobs"
	"github.com/cloo-solutions/autoreply/internal/metrics"
	"github.com/cloo-solutions/autoreply/internal/openai"
	"github.com/cloo-solutions/autoreply/internal/repository"
	"github.com/cloo-solutions/autoreply/internal/rules"
	"github.com/cloo-solutions/autoreply/internal/seed"
	"github.com/cloo-solutions/autoreply/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "secret-test-key"

// wordEmbedder hashes words into a fixed vector; texts sharing words score
// close under cosine distance.
type wordEmbedder struct{}

func (wordEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, 128)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%128]++
	}
	return vec, nil
}

type countingCompleter struct {
	mu    sync.Mutex
	calls int
}

func (c *countingCompleter) Complete(ctx context.Context, messages []openai.Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return "Thank you for contacting us. Refunds are processed within 30 days of purchase.", nil
}

func (c *countingCompleter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// recordingMail fails the send whose 1-based position equals failAt.
type recordingMail struct {
	mu     sync.Mutex
	sent   []*domain.OutboundEmail
	failAt int
	inbox  []*domain.EmailMessage
}

func (m *recordingMail) SendEmail(ctx context.Context, email *domain.OutboundEmail) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, email)
	if len(m.sent) == m.failAt {
		return "", errors.New("gmail send: backend error")
	}
	return fmt.Sprintf("sent-%d", len(m.sent)), nil
}

func (m *recordingMail) ListInboxMessages(ctx context.Context, maxResults int) ([]*domain.EmailMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inbox, nil
}

func (m *recordingMail) MarkProcessed(ctx context.Context, id string) error {
	return nil
}

func (m *recordingMail) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type testApp struct {
	router     http.Handler
	mail       *recordingMail
	llm        *countingCompleter
	dispatcher *jobs.Dispatcher
	metrics    *metrics.Metrics
}

func newTestApp(t *testing.T, auth middleware.AuthValidator) *testApp {
	t.Helper()
	ctx := context.Background()

	store := repository.NewMemoryStore()
	policies := service.NewPolicyService(store, store.Policies(), store.Index(),
		service.NewChunkEmbedder(wordEmbedder{}, service.DefaultChunkConfig()))
	m := metrics.New()
	policies.SetIndexObserver(m)

	defaults, err := seed.Defaults()
	require.NoError(t, err)
	require.NoError(t, policies.Load(ctx, defaults))

	mr := miniredis.RunT(t)
	replyCache := cache.NewRedisCache(ctx, cache.Config{URL: "redis://" + mr.Addr(), TTL: time.Minute})
	t.Cleanup(func() { _ = replyCache.Close() })

	llm := &countingCompleter{}
	responses := service.NewResponseService(policies, llm, replyCache, 3)
	responses.SetObserver(m)

	mail := &recordingMail{}
	emails := service.NewEmailService(responses, mail, 10)
	emails.SetObserver(m)

	dispatcher := jobs.NewDispatcher()
	processor := jobs.NewInboxProcessor(mail, responses, rules.Always{}, jobs.InboxConfig{MarkRead: true})
	processor.SetObserver(m)

	router := NewRouter(RouterConfig{
		AuthValidator: auth,
		Metrics:       m,
		SystemHandler: handlers.NewSystemHandler(),
		EmailHandler:  handlers.NewEmailHandler(emails, responses, jobs.NewLauncher(jobs.InboxJobName, processor, dispatcher)),
		PolicyHandler: handlers.NewPolicyHandler(policies),
		CacheHandler:  handlers.NewCacheHandler(replyCache),
	})

	return &testApp{router: router, mail: mail, llm: llm, dispatcher: dispatcher, metrics: m}
}

func (a *testApp) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func TestRouter_RootAndHealth(t *testing.T) {
	app := newTestApp(t, middleware.StaticKey(testAPIKey))

	for _, path := range []string{"/", "/health", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			app.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusOK, w.Code)
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		})
	}
}

func TestRouter_ProtectedRoutesRequireKey(t *testing.T) {
	app := newTestApp(t, middleware.StaticKey(testAPIKey))

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/emails/send"},
		{http.MethodPost, "/emails/batch"},
		{http.MethodPost, "/emails/preview"},
		{http.MethodGet, "/emails/inbox"},
		{http.MethodPost, "/emails/process-inbox"},
		{http.MethodPost, "/policies/add"},
		{http.MethodGet, "/policies/search"},
		{http.MethodGet, "/policies/all"},
		{http.MethodGet, "/policies/refund_policy"},
		{http.MethodPut, "/policies/refund_policy"},
		{http.MethodGet, "/cache/stats"},
		{http.MethodPost, "/cache/clear"},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			app.router.ServeHTTP(w, httptest.NewRequest(route.method, route.path, nil))
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestRouter_NoValidatorLeavesRoutesOpen(t *testing.T) {
	app := newTestApp(t, nil)

	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/policies/all", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_SendRefundRequest(t *testing.T) {
	app := newTestApp(t, middleware.StaticKey(testAPIKey))

	w := app.do(t, http.MethodPost, "/emails/send",
		`{"to":"customer@example.com","subject":"Refund request","body":"I want a refund for my order","priority":"high"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp service.SentEmail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "sent-1", resp.ID)
	assert.Equal(t, service.StatusSent, resp.Status)
	assert.NotEmpty(t, resp.GeneratedResponse)
	assert.Contains(t, resp.PoliciesUsed, "Refund Policy")

	require.Equal(t, 1, app.mail.sentCount())
	assert.Equal(t, "customer@example.com", app.mail.sent[0].To)
	assert.Equal(t, "Refund request", app.mail.sent[0].Subject)
}

func TestRouter_SendUsesCache(t *testing.T) {
	app := newTestApp(t, middleware.StaticKey(testAPIKey))
	body := `{"to":"customer@example.com","subject":"Refund request","body":"I want a refund"}`

	require.Equal(t, http.StatusOK, app.do(t, http.MethodPost, "/emails/send", body).Code)
	require.Equal(t, http.StatusOK, app.do(t, http.MethodPost, "/emails/send", body).Code)

	assert.Equal(t, 1, app.llm.count())
	assert.Equal(t, 2, app.mail.sentCount())

	w := app.do(t, http.MethodGet, "/cache/stats", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"available":true`)

	w = app.do(t, http.MethodPost, "/cache/clear", "")
	assert.JSONEq(t, `{"message":"Cache cleared successfully"}`, w.Body.String())

	require.Equal(t, http.StatusOK, app.do(t, http.MethodPost, "/emails/send", body).Code)
	assert.Equal(t, 2, app.llm.count())
}

func TestRouter_BatchStopsAtFirstFailure(t *testing.T) {
	app := newTestApp(t, middleware.StaticKey(testAPIKey))
	app.mail.failAt = 2

	body := `{"emails":[
		{"to":"a@example.com","subject":"Refund","body":"refund please"},
		{"to":"b@example.com","subject":"Shipping","body":"where is my order"},
		{"to":"c@example.com","subject":"Hours","body":"when are you open"}
	]}`
	w := app.do(t, http.MethodPost, "/emails/batch", body)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "email 2")
	assert.Equal(t, 2, app.mail.sentCount())
}

func TestRouter_BatchTooLarge(t *testing.T) {
	app := newTestApp(t, middleware.StaticKey(testAPIKey))

	emails := make([]string, 11)
	for i := range emails {
		emails[i] = `{"to":"a@example.com","subject":"s","body":"b"}`
	}
	w := app.do(t, http.MethodPost, "/emails/batch", `{"emails":[`+strings.Join(emails, ",")+`]}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, app.mail.sentCount())
}

func TestRouter_PolicyLifecycle(t *testing.T) {
	app := newTestApp(t, middleware.StaticKey(testAPIKey))

	w := app.do(t, http.MethodGet, "/policies/all", "")
	var before struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &before))

	w = app.do(t, http.MethodPost, "/policies/add",
		`{"title":"Warranty Policy","content":"Every gizmotron carries a two year warranty.","category":"support","keywords":["warranty","gizmotron"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var added handlers.PolicyStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &added))
	assert.Equal(t, "added", added.Status)

	w = app.do(t, http.MethodGet, "/policies/search?query=gizmotron+warranty&k=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var found struct {
		Policies []domain.PolicyMatch `json:"policies"`
		Count    int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &found))
	require.Equal(t, 1, found.Count)
	assert.Equal(t, added.PolicyID, found.Policies[0].PolicyID)

	w = app.do(t, http.MethodGet, "/policies/all", "")
	var after struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &after))
	assert.Equal(t, before.Count+1, after.Count)

	w = app.do(t, http.MethodPut, "/policies/"+added.PolicyID,
		`{"title":"Warranty Policy","content":"Every gizmotron carries a three year warranty.","category":"support"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"updated"`)

	w = app.do(t, http.MethodGet, "/policies/"+added.PolicyID, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "three year")

	w = app.do(t, http.MethodGet, "/policies/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_ProcessInbox(t *testing.T) {
	app := newTestApp(t, middleware.StaticKey(testAPIKey))
	app.mail.inbox = []*domain.EmailMessage{
		{ID: "m1", ThreadID: "t1", Sender: "customer@example.com", Subject: "Refund", Body: "I want a refund", MessageID: "<m1@example.com>"},
	}

	w := app.do(t, http.MethodPost, "/emails/process-inbox", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"message":"Inbox processing started","status":"processing"}`, w.Body.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, app.dispatcher.Shutdown(ctx))

	require.Equal(t, 1, app.mail.sentCount())
	assert.Equal(t, "Re: Refund", app.mail.sent[0].Subject)
	assert.Equal(t, "t1", app.mail.sent[0].ThreadID)
}

func TestRouter_MetricsExposeDomainCounters(t *testing.T) {
	app := newTestApp(t, middleware.StaticKey(testAPIKey))
	require.Equal(t, http.StatusOK, app.do(t, http.MethodPost, "/emails/send",
		`{"to":"customer@example.com","subject":"Refund request","body":"I want a refund"}`).Code)

	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := w.Body.String()
	assert.Contains(t, body, `autoreply_emails_sent_total{outcome="sent"} 1`)
	assert.Contains(t, body, `autoreply_responses_generated_total{source="model"} 1`)
	assert.Contains(t, body, `route="/emails/send"`)
	assert.Contains(t, body, "autoreply_policy_index_chunks")
}

package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/autoreply/internal/domain"
	"github.com/cloo-solutions/autoreply/internal/openai"
	"github.com/cloo-solutions/autoreply/internal/telemetry"
)

const (
	// CacheKeyPrefix prefixes cached generated responses.
	CacheKeyPrefix = "response_"

	ResponseSourceCache = "cache"
	ResponseSourceModel = "model"
)

const systemPrompt = `You are a professional customer service representative. Write a reply to the customer's email.

Guidelines:
- Be professional and courteous.
- Use the relevant company policies provided to answer accurately.
- If the policies do not cover the question, acknowledge it and offer to help further.
- Keep the reply concise but complete.
- Include clear next steps for the customer where appropriate.`

// PolicySearcher retrieves policy chunks relevant to a query.
type PolicySearcher interface {
	SearchPolicies(ctx context.Context, query string, k int) ([]*domain.PolicyMatch, error)
}

// Completer drafts text from a chat prompt.
type Completer interface {
	Complete(ctx context.Context, messages []openai.Message) (string, error)
}

// ResponseCache is the best-effort cache used for generated responses.
type ResponseCache interface {
	Get(ctx context.Context, key string, dest any) bool
	Set(ctx context.Context, key string, value any, ttl time.Duration) bool
}

// ResponseObserver records where each generated response came from.
type ResponseObserver interface {
	ObserveResponse(source string)
}

// GenerateInput holds the input for generating a reply.
type GenerateInput struct {
	Subject  string
	Body     string
	Priority string
	UseCache bool
}

// ResponseService drafts policy-grounded replies.
type ResponseService struct {
	policies PolicySearcher
	llm      Completer
	cache    ResponseCache
	topK     int
	observer ResponseObserver
}

// NewResponseService creates a new ResponseService instance
func NewResponseService(policies PolicySearcher, llm Completer, cache ResponseCache, topK int) *ResponseService {
	if topK <= 0 {
		topK = DefaultSearchLimit
	}
	return &ResponseService{
		policies: policies,
		llm:      llm,
		cache:    cache,
		topK:     topK,
	}
}

func (s *ResponseService) SetObserver(o ResponseObserver) {
	s.observer = o
}

// GenerateResponse returns a cached reply for the same subject and body when
// allowed, otherwise retrieves policies, prompts the model and caches the result.
func (s *ResponseService) GenerateResponse(ctx context.Context, input GenerateInput) (*domain.GeneratedResponse, error) {
	priority, err := domain.ParsePriority(input.Priority)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "ResponseService.GenerateResponse", telemetry.SpanAttributes{
		Priority:  string(priority),
		Operation: "generate_response",
	})
	defer span.End()

	key := ResponseCacheKey(input.Subject, input.Body)
	if input.UseCache {
		var cached domain.GeneratedResponse
		if s.cache.Get(ctx, key, &cached) {
			s.observe(ResponseSourceCache)
			return &cached, nil
		}
	}

	matches, err := s.policies.SearchPolicies(ctx, input.Subject+" "+input.Body, s.topK)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to retrieve policies: %w", err)
	}

	reply, err := s.llm.Complete(ctx, buildPrompt(input.Subject, input.Body, priority, matches))
	if err != nil {
		span.SetError(err)
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUpstream, "failed to generate response", err)
	}
	if reply == "" {
		return nil, domain.ErrEmptyCompletion
	}

	result := &domain.GeneratedResponse{
		Response:     reply,
		PoliciesUsed: policyTitles(matches),
		Priority:     priority,
	}

	if input.UseCache {
		_ = s.cache.Set(ctx, key, result, 0)
	}
	s.observe(ResponseSourceModel)

	return result, nil
}

func (s *ResponseService) observe(source string) {
	if s.observer != nil {
		s.observer.ObserveResponse(source)
	}
}

// ResponseCacheKey derives the deterministic cache key for a subject and body.
func ResponseCacheKey(subject, body string) string {
	sum := sha256.Sum256([]byte(subject + "\n" + body))
	return CacheKeyPrefix + hex.EncodeToString(sum[:])
}

func buildPrompt(subject, body string, priority domain.Priority, matches []*domain.PolicyMatch) []openai.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Customer Email:\nSubject: %s\nBody: %s\nPriority: %s\n\n", subject, body, priority)
	b.WriteString("Relevant Company Policies:\n")
	if len(matches) == 0 {
		b.WriteString("(no relevant policies found)\n")
	}
	for _, m := range matches {
		fmt.Fprintf(&b, "- %s: %s\n", m.Title, m.Content)
	}
	b.WriteString("\nPlease write a reply to this email.")

	return []openai.Message{
		{Role: openai.RoleSystem, Content: systemPrompt},
		{Role: openai.RoleUser, Content: b.String()},
	}
}

func policyTitles(matches []*domain.PolicyMatch) []string {
	titles := make([]string, 0, len(matches))
	for _, m := range matches {
		titles = append(titles, m.Title)
	}
	return titles
}

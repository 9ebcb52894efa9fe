package domain

import (
	"strings"
	"time"
)

// PolicyIDPrefix prefixes every generated policy identifier.
const PolicyIDPrefix = "policy_"

// Policy is a company policy used to ground generated replies.
type Policy struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Content   string    `json:"content" yaml:"content"`
	Category  string    `json:"category" yaml:"category"`
	Keywords  []string  `json:"keywords" yaml:"keywords"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// PolicyChunk is a window of a policy's content together with its embedding.
// Chunks are derived data and are rebuilt whenever the policy set changes.
type PolicyChunk struct {
	PolicyID   string
	ChunkIndex int
	Title      string
	Category   string
	Keywords   []string
	Content    string
	Embedding  []float32
}

// PolicyMatch is a search hit: one chunk annotated with its source policy.
type PolicyMatch struct {
	PolicyID string   `json:"policy_id"`
	Title    string   `json:"title"`
	Category string   `json:"category"`
	Content  string   `json:"content"`
	Keywords []string `json:"keywords"`
	Score    float32  `json:"score"`
}

// NewPolicy creates a new Policy instance
func NewPolicy(id, title, content, category string, keywords []string, createdAt time.Time) *Policy {
	return &Policy{
		ID:        id,
		Title:     title,
		Content:   content,
		Category:  category,
		Keywords:  NormalizeKeywords(keywords),
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// ValidatePolicy rejects policies without a title or content.
func ValidatePolicy(p *Policy) error {
	if p == nil {
		return ErrMissingRequiredField
	}
	if strings.TrimSpace(p.Title) == "" {
		return ValidationError("title")
	}
	if strings.TrimSpace(p.Content) == "" {
		return ValidationError("content")
	}
	return nil
}

// NormalizeKeywords trims keywords and drops blanks and duplicates, keeping
// first-seen order.
func NormalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		key := strings.ToLower(kw)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, kw)
	}
	return out
}

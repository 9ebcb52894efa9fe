// Package seed loads the initial policy set from the built-in defaults, a
// local YAML document or an object in S3-compatible storage.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cloo-solutions/autoreply/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

const s3Scheme = "s3://"

// ErrNoObjectStore is returned for s3:// sources when no object store is configured.
var ErrNoObjectStore = errors.New("policy seed is an s3:// URL but object storage is not configured")

// Document is the on-disk seed format.
type Document struct {
	Policies []*domain.Policy `yaml:"policies"`
}

// ObjectGetter reads objects from S3-compatible storage.
type ObjectGetter interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// Loader resolves a seed source into policies.
type Loader struct {
	objects ObjectGetter
}

// NewLoader creates a Loader. objects may be nil when S3 is not configured.
func NewLoader(objects ObjectGetter) *Loader {
	return &Loader{objects: objects}
}

// Load reads policies from source: empty for the defaults, s3://bucket/key,
// or a local file path.
func (l *Loader) Load(ctx context.Context, source string) ([]*domain.Policy, error) {
	source = strings.TrimSpace(source)
	switch {
	case source == "":
		return Defaults()
	case strings.HasPrefix(source, s3Scheme):
		if l.objects == nil {
			return nil, ErrNoObjectStore
		}
		bucket, key, err := splitS3URL(source)
		if err != nil {
			return nil, err
		}
		data, err := l.objects.GetObject(ctx, bucket, key)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch policy seed: %w", err)
		}
		return Parse(data)
	default:
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy seed: %w", err)
		}
		return Parse(data)
	}
}

// Defaults returns the built-in policy set.
func Defaults() ([]*domain.Policy, error) {
	return Parse(defaultsYAML)
}

// Parse decodes and validates a seed document.
func Parse(data []byte) ([]*domain.Policy, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy seed: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Policies))
	for i, p := range doc.Policies {
		if p == nil {
			return nil, fmt.Errorf("policy seed entry %d is empty", i)
		}
		p.Title = strings.TrimSpace(p.Title)
		p.Content = strings.TrimSpace(p.Content)
		p.Keywords = domain.NormalizeKeywords(p.Keywords)
		if err := domain.ValidatePolicy(p); err != nil {
			return nil, fmt.Errorf("policy seed entry %d: %w", i, err)
		}
		if p.ID == "" {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("policy seed entry %d: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = struct{}{}
	}

	return doc.Policies, nil
}

func splitS3URL(source string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(source, s3Scheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || key == "" {
		return "", "", fmt.Errorf("invalid s3 seed %q: expected s3://bucket/key", source)
	}
	return bucket, key, nil
}

// Package rules decides whether an inbox message receives an automatic reply.
package rules

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cloo-solutions/autoreply/internal/domain"
	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

// DefaultQuery is the Rego decision evaluated for every message.
const DefaultQuery = "data.autoreply.respond"

// Predicate decides whether msg should be answered automatically.
type Predicate interface {
	ShouldAutoRespond(ctx context.Context, msg *domain.EmailMessage) (bool, error)
}

// Always answers every message.
type Always struct{}

func (Always) ShouldAutoRespond(ctx context.Context, msg *domain.EmailMessage) (bool, error) {
	return true, nil
}

// Func adapts a plain function to Predicate.
type Func func(ctx context.Context, msg *domain.EmailMessage) (bool, error)

func (f Func) ShouldAutoRespond(ctx context.Context, msg *domain.EmailMessage) (bool, error) {
	return f(ctx, msg)
}

// Rego evaluates a compiled Rego module against each message.
type Rego struct {
	query rego.PreparedEvalQuery
}

// NewRego compiles module source. The module must define a boolean
// autoreply.respond rule; an undefined result means "do not respond".
func NewRego(ctx context.Context, name, source string) (*Rego, error) {
	if strings.TrimSpace(source) == "" {
		return nil, errors.New("rego module is empty")
	}

	module, err := ast.ParseModuleWithOpts(name, source, ast.ParserOptions{RegoVersion: ast.RegoV1})
	if err != nil {
		return nil, fmt.Errorf("parse rego module %q: %w", name, err)
	}

	prepared, err := rego.New(
		rego.Query(DefaultQuery),
		rego.ParsedModule(module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile rego module %q: %w", name, err)
	}

	return &Rego{query: prepared}, nil
}

// LoadRego reads and compiles a Rego file.
func LoadRego(ctx context.Context, path string) (*Rego, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read auto-respond policy: %w", err)
	}
	return NewRego(ctx, path, string(data))
}

func (r *Rego) ShouldAutoRespond(ctx context.Context, msg *domain.EmailMessage) (bool, error) {
	results, err := r.query.Eval(ctx, rego.EvalInput(input(msg)))
	if err != nil {
		return false, fmt.Errorf("evaluate auto-respond policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}

	respond, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("auto-respond policy: unexpected result type %T", results[0].Expressions[0].Value)
	}
	return respond, nil
}

func input(msg *domain.EmailMessage) map[string]any {
	labels := make([]any, 0, len(msg.Labels))
	for _, l := range msg.Labels {
		labels = append(labels, l)
	}
	return map[string]any{
		"id":         msg.ID,
		"thread_id":  msg.ThreadID,
		"sender":     msg.Sender,
		"subject":    msg.Subject,
		"snippet":    msg.Snippet,
		"body":       msg.Text(),
		"message_id": msg.MessageID,
		"labels":     labels,
	}
}

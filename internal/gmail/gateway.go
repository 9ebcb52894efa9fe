// Package gmail sends and reads mail through the Gmail API.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cloo-solutions/autoreply/internal/domain"
	"github.com/cloo-solutions/autoreply/internal/telemetry"
	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	DefaultUser       = "me"
	DefaultMaxResults = 10

	labelInbox  = "INBOX"
	labelUnread = "UNREAD"
)

// Config holds gateway configuration.
type Config struct {
	User  string
	Query string
	// UnreadOnly restricts listing to unread messages. Set it when replied
	// messages are marked processed, or every poll sees them again.
	UnreadOnly        bool
	RequestsPerSecond float64
	Burst             int
}

// Gateway is the Gmail-backed mail gateway.
type Gateway struct {
	svc     *gmailapi.Service
	user    string
	query   string
	limiter *RateLimiter
}

// NewGateway creates a gateway over an authenticated token source.
func NewGateway(ctx context.Context, ts oauth2.TokenSource, cfg Config) (*Gateway, error) {
	svc, err := gmailapi.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return NewGatewayWithService(svc, cfg), nil
}

// NewGatewayWithService wraps an existing Gmail service client.
func NewGatewayWithService(svc *gmailapi.Service, cfg Config) *Gateway {
	user := cfg.User
	if user == "" {
		user = DefaultUser
	}
	return &Gateway{
		svc:     svc,
		user:    user,
		query:   listQuery(cfg.Query, cfg.UnreadOnly),
		limiter: NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst),
	}
}

// listQuery adds is:unread to query unless it already filters on it.
func listQuery(query string, unreadOnly bool) string {
	query = strings.TrimSpace(query)
	if !unreadOnly || strings.Contains(strings.ToLower(query), "is:unread") {
		return query
	}
	if query == "" {
		return "is:unread"
	}
	return query + " is:unread"
}

// SendEmail sends a plain-text message and returns the provider message id.
func (g *Gateway) SendEmail(ctx context.Context, email *domain.OutboundEmail) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "gmail.SendEmail", telemetry.SpanAttributes{
		MessageID: email.InReplyTo,
	})
	defer span.End()

	if err := domain.ValidateOutboundEmail(email); err != nil {
		return "", err
	}

	msg := &gmailapi.Message{
		Raw:      buildRawMessage(email),
		ThreadId: email.ThreadID,
	}

	var sent *gmailapi.Message
	err := g.call(ctx, "send", func() error {
		var err error
		sent, err = g.svc.Users.Messages.Send(g.user, msg).Context(ctx).Do()
		return err
	})
	if err != nil {
		span.SetError(err)
		return "", err
	}

	log.Printf("gmail: sent message %s to %s", sent.Id, email.To)
	return sent.Id, nil
}

// ListInboxMessages returns up to maxResults inbox messages with headers and
// plain-text bodies. maxResults <= 0 uses DefaultMaxResults.
func (g *Gateway) ListInboxMessages(ctx context.Context, maxResults int) ([]*domain.EmailMessage, error) {
	ctx, span := telemetry.StartSpan(ctx, "gmail.ListInboxMessages", telemetry.SpanAttributes{
		Operation: "list",
	})
	defer span.End()

	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	var list *gmailapi.ListMessagesResponse
	err := g.call(ctx, "list", func() error {
		req := g.svc.Users.Messages.List(g.user).
			LabelIds(labelInbox).
			MaxResults(int64(maxResults)).
			Context(ctx)
		if g.query != "" {
			req = req.Q(g.query)
		}
		var err error
		list, err = req.Do()
		return err
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	messages := make([]*domain.EmailMessage, 0, len(list.Messages))
	for _, ref := range list.Messages {
		var full *gmailapi.Message
		err := g.call(ctx, "get", func() error {
			var err error
			full, err = g.svc.Users.Messages.Get(g.user, ref.Id).Format("full").Context(ctx).Do()
			return err
		})
		if err != nil {
			span.SetError(err)
			return nil, err
		}
		messages = append(messages, toEmailMessage(full))
	}

	return messages, nil
}

// MarkProcessed removes the UNREAD label from a message.
func (g *Gateway) MarkProcessed(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "gmail.MarkProcessed", telemetry.SpanAttributes{
		MessageID: id,
	})
	defer span.End()

	req := &gmailapi.ModifyMessageRequest{RemoveLabelIds: []string{labelUnread}}
	err := g.call(ctx, "modify", func() error {
		_, err := g.svc.Users.Messages.Modify(g.user, id, req).Context(ctx).Do()
		return err
	})
	if err != nil {
		span.SetError(err)
	}
	return err
}

// call waits on the limiter, runs fn and maps its error. A 429 opens the
// limiter's backoff window for every subsequent call.
func (g *Gateway) call(ctx context.Context, op string, fn func() error) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("gmail %s: %w", op, err)
	}

	err := fn()
	if err == nil {
		return nil
	}
	if IsRateLimited(err) {
		g.limiter.RecordRateLimitError(retryAfter(err))
	}
	return wrapError(op, err)
}

func retryAfter(err error) time.Duration {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || gerr.Header == nil {
		return 0
	}
	secs, convErr := time.ParseDuration(gerr.Header.Get("Retry-After") + "s")
	if convErr != nil {
		return 0
	}
	return secs
}

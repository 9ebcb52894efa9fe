package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/autoreply/internal/domain"
	"github.com/cloo-solutions/autoreply/internal/telemetry"
)

// StatusSent is reported for every delivered email.
const StatusSent = "sent"

// DefaultMaxBatchSize bounds SendBatch when no limit is configured.
const DefaultMaxBatchSize = 10

// MailGateway delivers and reads mail.
type MailGateway interface {
	SendEmail(ctx context.Context, email *domain.OutboundEmail) (string, error)
	ListInboxMessages(ctx context.Context, maxResults int) ([]*domain.EmailMessage, error)
	MarkProcessed(ctx context.Context, id string) error
}

// Responder drafts replies.
type Responder interface {
	GenerateResponse(ctx context.Context, input GenerateInput) (*domain.GeneratedResponse, error)
}

// EmailObserver counts delivery outcomes.
type EmailObserver interface {
	RecordEmailSent(outcome string)
}

// SendEmailInput is one email to answer and deliver.
type SendEmailInput struct {
	To       string
	Subject  string
	Body     string
	Priority string
	UseCache bool
}

// SentEmail describes a delivered reply.
type SentEmail struct {
	ID                string    `json:"id"`
	Status            string    `json:"status"`
	GeneratedResponse string    `json:"generated_response"`
	PoliciesUsed      []string  `json:"policies_used"`
	Timestamp         time.Time `json:"timestamp"`
}

// EmailService drafts policy-grounded replies and sends them.
type EmailService struct {
	responses    Responder
	mail         MailGateway
	maxBatchSize int
	observer     EmailObserver
	now          func() time.Time
}

// NewEmailService creates a new EmailService instance
func NewEmailService(responses Responder, mail MailGateway, maxBatchSize int) *EmailService {
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	return &EmailService{
		responses:    responses,
		mail:         mail,
		maxBatchSize: maxBatchSize,
		now:          time.Now,
	}
}

func (s *EmailService) SetObserver(o EmailObserver) {
	s.observer = o
}

// ValidateSendInput rejects emails missing a recipient, subject or body.
func ValidateSendInput(in SendEmailInput) error {
	if strings.TrimSpace(in.To) == "" {
		return domain.ValidationError("to")
	}
	if strings.TrimSpace(in.Subject) == "" {
		return domain.ValidationError("subject")
	}
	if strings.TrimSpace(in.Body) == "" {
		return domain.ValidationError("body")
	}
	if _, err := domain.ParsePriority(in.Priority); err != nil {
		return err
	}
	return nil
}

// SendEmail generates a reply to the email content and sends it to in.To.
func (s *EmailService) SendEmail(ctx context.Context, in SendEmailInput) (*SentEmail, error) {
	if err := ValidateSendInput(in); err != nil {
		return nil, err
	}
	return s.send(ctx, in)
}

// SendBatch sends each email in order. The first failure aborts the batch;
// later emails are not attempted.
func (s *EmailService) SendBatch(ctx context.Context, inputs []SendEmailInput) ([]*SentEmail, error) {
	if len(inputs) > s.maxBatchSize {
		return nil, domain.NewDomainErrorWithCause(domain.ErrBatchTooLarge.Code, domain.ErrBatchTooLarge.Message,
			fmt.Errorf("%d emails, limit is %d", len(inputs), s.maxBatchSize))
	}
	for i, in := range inputs {
		if err := ValidateSendInput(in); err != nil {
			return nil, fmt.Errorf("email %d: %w", i+1, err)
		}
	}

	ctx, span := telemetry.StartSpan(ctx, "EmailService.SendBatch", telemetry.SpanAttributes{
		Operation: "send_batch",
	})
	defer span.End()

	results := make([]*SentEmail, 0, len(inputs))
	for i, in := range inputs {
		sent, err := s.send(ctx, in)
		if err != nil {
			span.SetError(err)
			return nil, fmt.Errorf("email %d: %w", i+1, err)
		}
		results = append(results, sent)
	}
	return results, nil
}

// ListInbox returns up to maxResults inbox messages.
func (s *EmailService) ListInbox(ctx context.Context, maxResults int) ([]*domain.EmailMessage, error) {
	messages, err := s.mail.ListInboxMessages(ctx, maxResults)
	if err != nil {
		return nil, fmt.Errorf("failed to list inbox: %w", err)
	}
	return messages, nil
}

func (s *EmailService) send(ctx context.Context, in SendEmailInput) (*SentEmail, error) {
	ctx, span := telemetry.StartSpan(ctx, "EmailService.SendEmail", telemetry.SpanAttributes{
		Priority:  in.Priority,
		Operation: "send_email",
	})
	defer span.End()

	reply, err := s.responses.GenerateResponse(ctx, GenerateInput{
		Subject:  in.Subject,
		Body:     in.Body,
		Priority: in.Priority,
		UseCache: in.UseCache,
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	id, err := s.mail.SendEmail(ctx, &domain.OutboundEmail{
		To:      in.To,
		Subject: in.Subject,
		Body:    reply.Response,
	})
	if err != nil {
		span.SetError(err)
		s.record("failed")
		return nil, fmt.Errorf("failed to send email: %w", err)
	}
	s.record(StatusSent)

	return &SentEmail{
		ID:                id,
		Status:            StatusSent,
		GeneratedResponse: reply.Response,
		PoliciesUsed:      reply.PoliciesUsed,
		Timestamp:         s.now().UTC(),
	}, nil
}

func (s *EmailService) record(outcome string) {
	if s.observer != nil {
		s.observer.RecordEmailSent(outcome)
	}
}

package domain

import (
	"fmt"
	"strings"
	"time"
)

// Priority is the urgency attached to an inbound message.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority maps an empty value to normal and rejects unknown values.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case "":
		return PriorityNormal, nil
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return p, nil
	}
	return "", NewDomainErrorWithCause(ErrInvalidPriority.Code, ErrInvalidPriority.Message,
		fmt.Errorf("%q is not one of low, normal, high, urgent", s))
}

// EmailMessage is a read-only projection of a provider-side inbox message.
type EmailMessage struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id,omitempty"`
	Sender    string    `json:"sender"`
	Subject   string    `json:"subject"`
	Snippet   string    `json:"snippet"`
	Body      string    `json:"body,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Labels    []string  `json:"labels,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Text returns the message body, falling back to the snippet.
func (m *EmailMessage) Text() string {
	if strings.TrimSpace(m.Body) != "" {
		return m.Body
	}
	return m.Snippet
}

// OutboundEmail is a plain-text message handed to the mail gateway.
type OutboundEmail struct {
	To        string
	Subject   string
	Body      string
	ThreadID  string
	InReplyTo string
}

// ValidateOutboundEmail requires a recipient and a subject.
func ValidateOutboundEmail(e *OutboundEmail) error {
	if e == nil {
		return ErrMissingRequiredField
	}
	if strings.TrimSpace(e.To) == "" {
		return ValidationError("to")
	}
	if strings.TrimSpace(e.Subject) == "" {
		return ValidationError("subject")
	}
	return nil
}

// ReplySubject prefixes subject with "Re:" unless it already carries one.
func ReplySubject(subject string) string {
	trimmed := strings.TrimSpace(subject)
	if strings.HasPrefix(strings.ToLower(trimmed), "re:") {
		return trimmed
	}
	return "Re: " + trimmed
}

// GeneratedResponse is a drafted reply and the policies it was grounded on.
type GeneratedResponse struct {
	Response     string   `json:"response"`
	PoliciesUsed []string `json:"policies_used"`
	Priority     Priority `json:"priority"`
}

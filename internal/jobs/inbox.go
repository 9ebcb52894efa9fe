// Package jobs runs inbox processing in the background.
package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cloo-solutions/autoreply/internal/domain"
	"github.com/cloo-solutions/autoreply/internal/rules"
	"github.com/cloo-solutions/autoreply/internal/service"
	"github.com/cloo-solutions/autoreply/internal/telemetry"
)

// InboxJobName identifies inbox runs in the Dispatcher.
const InboxJobName = "process-inbox"

const (
	DefaultProcessingDelay = 2 * time.Second
	DefaultInboxMaxResults = 10
)

// Inbox message outcomes.
const (
	OutcomeReplied = "replied"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// InboxObserver counts per-message outcomes.
type InboxObserver interface {
	RecordInboxMessage(outcome string)
}

// InboxConfig controls an inbox run.
type InboxConfig struct {
	MaxResults int
	Delay      time.Duration
	MarkRead   bool
	UseCache   bool
}

// InboxSummary reports what a run did.
type InboxSummary struct {
	Fetched int `json:"fetched"`
	Replied int `json:"replied"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// InboxProcessor answers inbox messages that the predicate accepts.
type InboxProcessor struct {
	mail      service.MailGateway
	responses service.Responder
	predicate rules.Predicate
	cfg       InboxConfig
	observer  InboxObserver
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewInboxProcessor creates a new InboxProcessor instance. A nil predicate
// answers every message.
func NewInboxProcessor(mail service.MailGateway, responses service.Responder, predicate rules.Predicate, cfg InboxConfig) *InboxProcessor {
	if predicate == nil {
		predicate = rules.Always{}
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultInboxMaxResults
	}
	if cfg.Delay < 0 {
		cfg.Delay = DefaultProcessingDelay
	}
	return &InboxProcessor{
		mail:      mail,
		responses: responses,
		predicate: predicate,
		cfg:       cfg,
		sleep:     sleepContext,
	}
}

func (p *InboxProcessor) SetObserver(o InboxObserver) {
	p.observer = o
}

// ProcessJobs implements the JobProcessor interface
func (p *InboxProcessor) ProcessJobs(ctx context.Context) error {
	_, err := p.ProcessInbox(ctx)
	return err
}

// ProcessInbox lists the inbox and replies to every accepted message,
// pausing between messages. A failing message is logged and counted; the run
// continues with the next one.
func (p *InboxProcessor) ProcessInbox(ctx context.Context) (InboxSummary, error) {
	ctx, span := telemetry.StartSpan(ctx, "InboxProcessor.ProcessInbox", telemetry.SpanAttributes{
		Operation: "process_inbox",
	})
	defer span.End()

	var summary InboxSummary
	messages, err := p.mail.ListInboxMessages(ctx, p.cfg.MaxResults)
	if err != nil {
		span.SetError(err)
		return summary, fmt.Errorf("failed to list inbox: %w", err)
	}
	summary.Fetched = len(messages)

	for i, msg := range messages {
		if i > 0 && p.cfg.Delay > 0 {
			if err := p.sleep(ctx, p.cfg.Delay); err != nil {
				log.Printf("inbox: run interrupted after %d of %d messages: %v", i, len(messages), err)
				return summary, err
			}
		}

		outcome, err := p.processMessage(ctx, msg)
		if err != nil {
			log.Printf("inbox: message %s failed: %v", msg.ID, err)
		}
		switch outcome {
		case OutcomeReplied:
			summary.Replied++
		case OutcomeSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
		if p.observer != nil {
			p.observer.RecordInboxMessage(outcome)
		}
	}

	log.Printf("inbox: processed %d messages (replied %d, skipped %d, failed %d)",
		summary.Fetched, summary.Replied, summary.Skipped, summary.Failed)
	return summary, nil
}

func (p *InboxProcessor) processMessage(ctx context.Context, msg *domain.EmailMessage) (string, error) {
	respond, err := p.predicate.ShouldAutoRespond(ctx, msg)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("auto-respond rule: %w", err)
	}
	if !respond {
		return OutcomeSkipped, nil
	}

	reply, err := p.responses.GenerateResponse(ctx, service.GenerateInput{
		Subject:  msg.Subject,
		Body:     msg.Text(),
		UseCache: p.cfg.UseCache,
	})
	if err != nil {
		return OutcomeFailed, err
	}

	if _, err := p.mail.SendEmail(ctx, &domain.OutboundEmail{
		To:        msg.Sender,
		Subject:   domain.ReplySubject(msg.Subject),
		Body:      reply.Response,
		ThreadID:  msg.ThreadID,
		InReplyTo: msg.MessageID,
	}); err != nil {
		return OutcomeFailed, fmt.Errorf("failed to send reply: %w", err)
	}
	log.Printf("inbox: auto-responded to message %s", msg.ID)

	if p.cfg.MarkRead {
		if err := p.mail.MarkProcessed(ctx, msg.ID); err != nil {
			log.Printf("inbox: reply sent but marking %s processed failed: %v", msg.ID, err)
		}
	}
	return OutcomeReplied, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package gmail

import (
	"context"

	"github.com/cloo-solutions/autoreply/internal/domain"
)

// Disabled is wired when no Gmail credentials are configured. Every operation
// fails with domain.ErrMailGatewayDisabled.
type Disabled struct{}

func (Disabled) SendEmail(ctx context.Context, email *domain.OutboundEmail) (string, error) {
	return "", domain.ErrMailGatewayDisabled
}

func (Disabled) ListInboxMessages(ctx context.Context, maxResults int) ([]*domain.EmailMessage, error) {
	return nil, domain.ErrMailGatewayDisabled
}

func (Disabled) MarkProcessed(ctx context.Context, id string) error {
	return domain.ErrMailGatewayDisabled
}

package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cloo-solutions/autoreply/internal/domain"
	"github.com/cloo-solutions/autoreply/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockMailGateway struct {
	mock.Mock
}

func (m *MockMailGateway) SendEmail(ctx context.Context, email *domain.OutboundEmail) (string, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Error(1)
}

func (m *MockMailGateway) ListInboxMessages(ctx context.Context, maxResults int) ([]*domain.EmailMessage, error) {
	args := m.Called(ctx, maxResults)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.EmailMessage), args.Error(1)
}

func (m *MockMailGateway) MarkProcessed(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockResponder struct {
	mock.Mock
}

func (m *MockResponder) GenerateResponse(ctx context.Context, input service.GenerateInput) (*domain.GeneratedResponse, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GeneratedResponse), args.Error(1)
}

type outcomeRecorder struct {
	outcomes []string
}

func (r *outcomeRecorder) RecordEmailSent(outcome string) {
	r.outcomes = append(r.outcomes, outcome)
}

var refundReply = &domain.GeneratedResponse{
	Response:     "Your refund will be processed within 5-7 business days.",
	PoliciesUsed: []string{"Refund Policy"},
	Priority:     domain.PriorityNormal,
}

func toRecipient(to string) interface{} {
	return mock.MatchedBy(func(e *domain.OutboundEmail) bool { return e.To == to })
}

func TestEmailService_SendEmail(t *testing.T) {
	ctx := context.Background()
	responder := new(MockResponder)
	mail := new(MockMailGateway)
	recorder := &outcomeRecorder{}
	svc := service.NewEmailService(responder, mail, 10)
	svc.SetObserver(recorder)

	responder.On("GenerateResponse", mock.Anything, service.GenerateInput{
		Subject: "Refund request", Body: "I want a refund", Priority: "high", UseCache: true,
	}).Return(refundReply, nil)
	mail.On("SendEmail", mock.Anything, &domain.OutboundEmail{
		To: "a@b.com", Subject: "Refund request", Body: refundReply.Response,
	}).Return("msg-1", nil)

	sent, err := svc.SendEmail(ctx, service.SendEmailInput{
		To: "a@b.com", Subject: "Refund request", Body: "I want a refund", Priority: "high", UseCache: true,
	})

	require.NoError(t, err)
	assert.Equal(t, "msg-1", sent.ID)
	assert.Equal(t, service.StatusSent, sent.Status)
	assert.Equal(t, refundReply.Response, sent.GeneratedResponse)
	assert.Equal(t, []string{"Refund Policy"}, sent.PoliciesUsed)
	assert.False(t, sent.Timestamp.IsZero())
	assert.Equal(t, []string{"sent"}, recorder.outcomes)
	responder.AssertExpectations(t)
	mail.AssertExpectations(t)
}

func TestEmailService_SendEmail_ValidationBeforeExternalCalls(t *testing.T) {
	tests := []struct {
		name  string
		input service.SendEmailInput
		field string
	}{
		{"missing to", service.SendEmailInput{Subject: "s", Body: "b"}, "to is required"},
		{"missing subject", service.SendEmailInput{To: "a@b.com", Body: "b"}, "subject is required"},
		{"blank body", service.SendEmailInput{To: "a@b.com", Subject: "s", Body: "  "}, "body is required"},
		{"bad priority", service.SendEmailInput{To: "a@b.com", Subject: "s", Body: "b", Priority: "asap"}, "invalid priority"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			responder := new(MockResponder)
			mail := new(MockMailGateway)
			svc := service.NewEmailService(responder, mail, 10)

			_, err := svc.SendEmail(context.Background(), tt.input)

			var domainErr *domain.DomainError
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, domain.ErrCodeValidation, domainErr.Code)
			assert.Equal(t, tt.field, domainErr.Message)
			responder.AssertNotCalled(t, "GenerateResponse", mock.Anything, mock.Anything)
			mail.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
		})
	}
}

func TestEmailService_SendEmail_GenerationFailureSkipsSend(t *testing.T) {
	responder := new(MockResponder)
	mail := new(MockMailGateway)
	svc := service.NewEmailService(responder, mail, 10)
	responder.On("GenerateResponse", mock.Anything, mock.Anything).Return(nil, errors.New("openai down"))

	_, err := svc.SendEmail(context.Background(), service.SendEmailInput{To: "a@b.com", Subject: "s", Body: "b"})

	assert.ErrorContains(t, err, "openai down")
	mail.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
}

func TestEmailService_SendEmail_GatewayDisabled(t *testing.T) {
	responder := new(MockResponder)
	mail := new(MockMailGateway)
	recorder := &outcomeRecorder{}
	svc := service.NewEmailService(responder, mail, 10)
	svc.SetObserver(recorder)
	responder.On("GenerateResponse", mock.Anything, mock.Anything).Return(refundReply, nil)
	mail.On("SendEmail", mock.Anything, mock.Anything).Return("", domain.ErrMailGatewayDisabled)

	_, err := svc.SendEmail(context.Background(), service.SendEmailInput{To: "a@b.com", Subject: "s", Body: "b"})

	assert.ErrorIs(t, err, domain.ErrMailGatewayDisabled)
	assert.Equal(t, []string{"failed"}, recorder.outcomes)
}

func TestEmailService_SendBatch_SecondFailureAborts(t *testing.T) {
	responder := new(MockResponder)
	mail := new(MockMailGateway)
	svc := service.NewEmailService(responder, mail, 10)
	responder.On("GenerateResponse", mock.Anything, mock.Anything).Return(refundReply, nil)
	mail.On("SendEmail", mock.Anything, toRecipient("one@example.com")).Return("msg-1", nil)
	mail.On("SendEmail", mock.Anything, toRecipient("two@example.com")).Return("", errors.New("gmail 500"))

	_, err := svc.SendBatch(context.Background(), []service.SendEmailInput{
		{To: "one@example.com", Subject: "s1", Body: "b1"},
		{To: "two@example.com", Subject: "s2", Body: "b2"},
		{To: "three@example.com", Subject: "s3", Body: "b3"},
	})

	assert.ErrorContains(t, err, "email 2")
	mail.AssertNumberOfCalls(t, "SendEmail", 2)
	mail.AssertNotCalled(t, "SendEmail", mock.Anything, toRecipient("three@example.com"))
}

func TestEmailService_SendBatch(t *testing.T) {
	responder := new(MockResponder)
	mail := new(MockMailGateway)
	svc := service.NewEmailService(responder, mail, 10)
	responder.On("GenerateResponse", mock.Anything, mock.MatchedBy(func(in service.GenerateInput) bool {
		return in.UseCache
	})).Return(refundReply, nil)
	mail.On("SendEmail", mock.Anything, toRecipient("one@example.com")).Return("msg-1", nil)
	mail.On("SendEmail", mock.Anything, toRecipient("two@example.com")).Return("msg-2", nil)

	sent, err := svc.SendBatch(context.Background(), []service.SendEmailInput{
		{To: "one@example.com", Subject: "s1", Body: "b1", UseCache: true},
		{To: "two@example.com", Subject: "s2", Body: "b2", UseCache: true},
	})

	require.NoError(t, err)
	require.Len(t, sent, 2)
	assert.Equal(t, "msg-1", sent[0].ID)
	assert.Equal(t, "msg-2", sent[1].ID)
}

func TestEmailService_SendBatch_Limits(t *testing.T) {
	responder := new(MockResponder)
	mail := new(MockMailGateway)
	svc := service.NewEmailService(responder, mail, 2)

	_, err := svc.SendBatch(context.Background(), make([]service.SendEmailInput, 3))
	assert.ErrorIs(t, err, domain.ErrBatchTooLarge)

	_, err = svc.SendBatch(context.Background(), []service.SendEmailInput{
		{To: "one@example.com", Subject: "s1", Body: "b1"},
		{To: "two@example.com", Subject: "", Body: "b2"},
	})
	assert.ErrorContains(t, err, "email 2")
	responder.AssertNotCalled(t, "GenerateResponse", mock.Anything, mock.Anything)
}

func TestEmailService_SendBatch_Empty(t *testing.T) {
	svc := service.NewEmailService(new(MockResponder), new(MockMailGateway), 10)

	sent, err := svc.SendBatch(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, sent)
}

func TestEmailService_ListInbox(t *testing.T) {
	mail := new(MockMailGateway)
	svc := service.NewEmailService(new(MockResponder), mail, 10)
	msgs := []*domain.EmailMessage{{ID: "m1", Subject: "Hello"}}
	mail.On("ListInboxMessages", mock.Anything, 5).Return(msgs, nil)

	got, err := svc.ListInbox(context.Background(), 5)

	require.NoError(t, err)
	assert.Equal(t, msgs, got)
}

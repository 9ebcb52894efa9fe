package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cloo-solutions/autoreply/internal/api"
	"github.com/cloo-solutions/autoreply/internal/domain"
	"github.com/cloo-solutions/autoreply/internal/service"
)

type EmailService interface {
	SendEmail(ctx context.Context, in service.SendEmailInput) (*service.SentEmail, error)
	SendBatch(ctx context.Context, inputs []service.SendEmailInput) ([]*service.SentEmail, error)
	ListInbox(ctx context.Context, maxResults int) ([]*domain.EmailMessage, error)
}

type ResponseGenerator interface {
	GenerateResponse(ctx context.Context, input service.GenerateInput) (*domain.GeneratedResponse, error)
}

// InboxLauncher starts a detached inbox run.
type InboxLauncher interface {
	LaunchInbox() error
}

type EmailHandler struct {
	emails    EmailService
	responses ResponseGenerator
	inbox     InboxLauncher
}

func NewEmailHandler(emails EmailService, responses ResponseGenerator, inbox InboxLauncher) *EmailHandler {
	return &EmailHandler{emails: emails, responses: responses, inbox: inbox}
}

type SendEmailRequest struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Priority string `json:"priority"`
}

type BatchEmailRequest struct {
	Emails   []SendEmailRequest `json:"emails"`
	UseCache *bool              `json:"use_cache"`
}

type PreviewRequest struct {
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Priority string `json:"priority"`
	UseCache *bool  `json:"use_cache"`
}

type InboxResponse struct {
	Emails []*domain.EmailMessage `json:"emails"`
	Count  int                    `json:"count"`
}

func useCache(flag *bool) bool {
	return flag == nil || *flag
}

func (req SendEmailRequest) toInput(cache bool) service.SendEmailInput {
	return service.SendEmailInput{
		To:       req.To,
		Subject:  req.Subject,
		Body:     req.Body,
		Priority: req.Priority,
		UseCache: cache,
	}
}

func (h *EmailHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendEmailRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	sent, err := h.emails.SendEmail(r.Context(), req.toInput(true))
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.JSON(w, http.StatusOK, sent)
}

func (h *EmailHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req BatchEmailRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	cache := useCache(req.UseCache)
	inputs := make([]service.SendEmailInput, 0, len(req.Emails))
	for _, e := range req.Emails {
		inputs = append(inputs, e.toInput(cache))
	}

	sent, err := h.emails.SendBatch(r.Context(), inputs)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.JSON(w, http.StatusOK, sent)
}

func (h *EmailHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	if req.Subject == "" && req.Body == "" {
		api.Error(w, http.StatusBadRequest, "subject or body is required")
		return
	}

	result, err := h.responses.GenerateResponse(r.Context(), service.GenerateInput{
		Subject:  req.Subject,
		Body:     req.Body,
		Priority: req.Priority,
		UseCache: useCache(req.UseCache),
	})
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.JSON(w, http.StatusOK, result)
}

func (h *EmailHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	maxResults := 0
	if v := r.URL.Query().Get("max_results"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			api.Error(w, http.StatusBadRequest, "max_results must be between 1 and 500")
			return
		}
		maxResults = n
	}

	messages, err := h.emails.ListInbox(r.Context(), maxResults)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.JSON(w, http.StatusOK, InboxResponse{Emails: messages, Count: len(messages)})
}

func (h *EmailHandler) ProcessInbox(w http.ResponseWriter, r *http.Request) {
	if err := h.inbox.LaunchInbox(); err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.JSON(w, http.StatusAccepted, map[string]string{
		"message": "Inbox processing started",
		"status":  "processing",
	})
}

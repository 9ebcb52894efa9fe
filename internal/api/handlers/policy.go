package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cloo-solutions/autoreply/internal/api"
	"github.com/cloo-solutions/autoreply/internal/domain"
	"github.com/cloo-solutions/autoreply/internal/service"
	"github.com/go-chi/chi/v5"
)

type PolicyService interface {
	AddPolicy(ctx context.Context, input service.AddPolicyInput) (*domain.Policy, error)
	UpdatePolicy(ctx context.Context, id string, input service.AddPolicyInput) (*domain.Policy, error)
	GetPolicy(ctx context.Context, id string) (*domain.Policy, error)
	GetAllPolicies(ctx context.Context) ([]*domain.Policy, error)
	SearchPolicies(ctx context.Context, query string, k int) ([]*domain.PolicyMatch, error)
}

type PolicyHandler struct {
	svc PolicyService
}

func NewPolicyHandler(svc PolicyService) *PolicyHandler {
	return &PolicyHandler{svc: svc}
}

type PolicyRequest struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Keywords []string `json:"keywords"`
}

type PolicyStatusResponse struct {
	PolicyID string `json:"policy_id"`
	Status   string `json:"status"`
}

type PolicyListResponse struct {
	Policies interface{} `json:"policies"`
	Count    int         `json:"count"`
}

func (req PolicyRequest) toInput() service.AddPolicyInput {
	return service.AddPolicyInput{
		Title:    req.Title,
		Content:  req.Content,
		Category: req.Category,
		Keywords: req.Keywords,
	}
}

func (h *PolicyHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req PolicyRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	policy, err := h.svc.AddPolicy(r.Context(), req.toInput())
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.JSON(w, http.StatusOK, PolicyStatusResponse{PolicyID: policy.ID, Status: "added"})
}

func (h *PolicyHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req PolicyRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	policy, err := h.svc.UpdatePolicy(r.Context(), id, req.toInput())
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.JSON(w, http.StatusOK, PolicyStatusResponse{PolicyID: policy.ID, Status: "updated"})
}

func (h *PolicyHandler) Get(w http.ResponseWriter, r *http.Request) {
	policy, err := h.svc.GetPolicy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.JSON(w, http.StatusOK, policy)
}

func (h *PolicyHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")

	k := 0
	if v := r.URL.Query().Get("k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 50 {
			api.Error(w, http.StatusBadRequest, "k must be between 1 and 50")
			return
		}
		k = n
	}

	matches, err := h.svc.SearchPolicies(r.Context(), query, k)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.JSON(w, http.StatusOK, PolicyListResponse{Policies: matches, Count: len(matches)})
}

func (h *PolicyHandler) All(w http.ResponseWriter, r *http.Request) {
	policies, err := h.svc.GetAllPolicies(r.Context())
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.JSON(w, http.StatusOK, PolicyListResponse{Policies: policies, Count: len(policies)})
}

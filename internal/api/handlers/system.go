package handlers

import (
	"net/http"
	"time"

	"github.com/cloo-solutions/autoreply/internal/api"
)

// Version is reported by GET /.
var Version = "1.0.0"

type SystemHandler struct {
	now func() time.Time
}

func NewSystemHandler() *SystemHandler {
	return &SystemHandler{now: time.Now}
}

func (h *SystemHandler) Root(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, map[string]string{
		"message": "Auto Email Responder API",
		"version": Version,
	})
}

func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

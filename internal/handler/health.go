package handler

import (
	"net/http"

	"github.com/wavehub/instance-server-go/internal/health"
)

type HealthHandler struct {
	reporter *health.Reporter
}

func NewHealthHandler(reporter *health.Reporter) *HealthHandler {
	return &HealthHandler{reporter: reporter}
}

// GET /health and GET /status
func (h *HealthHandler) Report(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.reporter.Report())
}

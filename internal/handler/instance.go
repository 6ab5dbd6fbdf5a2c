package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/wavehub/instance-server-go/internal/errors"
	"github.com/wavehub/instance-server-go/internal/model"
	"github.com/wavehub/instance-server-go/internal/session"
)

type InstanceHandler struct {
	registry *session.Registry
}

func NewInstanceHandler(registry *session.Registry) *InstanceHandler {
	return &InstanceHandler{registry: registry}
}

func (h *InstanceHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/{id}/reset", h.Reset)
	r.Get("/{id}/qr", h.QR)
	r.Get("/{id}/status", h.Status)
	r.Post("/{id}/disconnect", h.Disconnect)

	return r
}

// GET /instances
func (h *InstanceHandler) List(w http.ResponseWriter, r *http.Request) {
	snapshots := h.registry.List()

	items := make([]map[string]any, 0, len(snapshots))
	for _, s := range snapshots {
		items = append(items, map[string]any{
			"instanceId":         s.ID,
			"isConnected":        s.Status == model.StatusConnected,
			"connectedAddress":   nullableString(s.BoundAddress),
			"hasPairingArtifact": s.PairingArtifact != "",
		})
	}

	writeJSON(w, http.StatusOK, items)
}

type createInstanceRequest struct {
	InstanceID string `json:"instanceId"`
	Name       string `json:"name"`
}

// POST /instances
func (h *InstanceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}

	if req.InstanceID == "" {
		req.InstanceID = uuid.NewString()
	}

	if _, err := h.registry.Create(req.InstanceID, req.Name); err != nil {
		writeError(w, err)
		return
	}

	if err := h.registry.StartSession(req.InstanceID); err != nil {
		// entry without a startable transport is useless, roll it back
		h.registry.Remove(req.InstanceID)
		writeError(w, err)
		return
	}

	snap, _ := h.registry.Lookup(req.InstanceID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"instanceId": snap.ID,
		"name":       snap.Name,
		"status":     snap.Status,
	})
}

// POST /instances/{id}/reset
//
// Destroys and recreates the session unconditionally: the manual equivalent
// of the supervisor's automatic reconnect path.
func (h *InstanceHandler) Reset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	name := ""
	if snap, ok := h.registry.Lookup(id); ok {
		name = snap.Name
	}

	h.registry.Remove(id)

	if _, err := h.registry.Create(id, name); err != nil {
		writeError(w, err)
		return
	}
	if err := h.registry.StartSession(id); err != nil {
		h.registry.Remove(id)
		writeError(w, err)
		return
	}

	log.Info().Str("instanceId", id).Msg("instance reset")

	snap, _ := h.registry.Lookup(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"instanceId": snap.ID,
		"status":     snap.Status,
	})
}

// GET /instances/{id}/qr
func (h *InstanceHandler) QR(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	snap, ok := h.registry.Lookup(id)
	if !ok {
		writeError(w, apperrors.NotFound("instance"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"instanceId":      snap.ID,
		"pairingArtifact": nullableString(snap.PairingArtifact),
		"isConnected":     snap.Status == model.StatusConnected,
	})
}

// GET /instances/{id}/status
func (h *InstanceHandler) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	snap, ok := h.registry.Lookup(id)
	if !ok {
		writeError(w, apperrors.NotFound("instance"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"instanceId":   snap.ID,
		"status":       snap.Status,
		"connected":    snap.Status == model.StatusConnected,
		"boundAddress": nullableString(snap.BoundAddress),
	})
}

// POST /instances/{id}/disconnect
func (h *InstanceHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, ok := h.registry.Lookup(id); !ok {
		writeError(w, apperrors.NotFound("instance"))
		return
	}

	h.registry.Remove(id)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

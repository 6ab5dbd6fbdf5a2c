package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/wavehub/instance-server-go/internal/errors"
	"github.com/wavehub/instance-server-go/internal/service"
)

type MessageHandler struct {
	messages *service.MessageService
}

func NewMessageHandler(messages *service.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

// POST /send-message
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var params service.SendMessageParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}

	result, err := h.messages.Send(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}

	if appErr := result.AppError(); appErr != nil {
		writeError(w, appErr.WithDetails(map[string]string{"messageId": result.MessageID}))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"messageId":         result.MessageID,
		"providerMessageId": result.ProviderMessageID,
	})
}

// GET /messages/{id}
func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	msg, err := h.messages.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

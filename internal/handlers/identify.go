package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	apperrors "bitespeed-identity/internal/errors"
	"bitespeed-identity/internal/models"
	"bitespeed-identity/internal/service"

	"go.uber.org/zap"
)

const internalErrorMessage = "Internal server error"

// Identifier resolves a validated identity to its consolidated contact
type Identifier interface {
	Identify(ctx context.Context, id service.Identity) (*models.IdentifyResponse, error)
}

// IdentifyHandler handles the /identify endpoint
type IdentifyHandler struct {
	service Identifier
	log     *zap.Logger
}

// NewIdentifyHandler creates a new identify handler
func NewIdentifyHandler(svc Identifier, log *zap.Logger) *IdentifyHandler {
	return &IdentifyHandler{service: svc, log: log}
}

// Handle processes the identify request
func (h *IdentifyHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id, err := service.ParseIdentifyRequest(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, apperrors.MessageOf(err))
		return
	}

	response, err := h.service.Identify(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, apperrors.MessageOf(err))
			return
		}
		h.log.Error("Error processing identify request",
			zap.String("requestId", RequestIDFrom(r.Context())),
			zap.String("kind", string(apperrors.KindOf(err))),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, internalErrorMessage)
		return
	}

	writeJSON(w, http.StatusOK, response, h.log)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorResponse{Message: message}, nil)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}, log *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil && log != nil {
		log.Warn("Error encoding response", zap.Error(err))
	}
}

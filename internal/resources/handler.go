package resources

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/ersim-ai-platform/pkg/logging"
)

// Handler exposes resource materialization over HTTP.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Unlock handles POST /api/sim/resources/unlock.
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	var req UnlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
		return
	}

	result, err := h.service.Materialize(r.Context(), req)
	if err != nil {
		status := statusForError(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("resource unlock failed", "resource", req.Resource, "error", err)
		}
		h.writeJSON(w, status, map[string]string{"detail": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrUnknownResource):
		return http.StatusBadRequest
	case errors.Is(err, ErrResourceUnavailable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}

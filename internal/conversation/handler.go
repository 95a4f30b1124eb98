package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/ersim-ai-platform/internal/cases"
	"github.com/wolfman30/ersim-ai-platform/internal/identity"
	"github.com/wolfman30/ersim-ai-platform/pkg/logging"
)

// Service is the turn engine surface the HTTP handler needs.
type Service interface {
	Respond(ctx context.Context, req RespondRequest) (*TurnResponse, error)
	Transcript(ctx context.Context, userID, sessionID string) ([]Turn, error)
	Primer(ctx context.Context, caseID string) (cases.Primer, error)
}

var _ Service = (*Orchestrator)(nil)

// Handler wires HTTP requests to the turn engine.
type Handler struct {
	service Service
	logger  *logging.Logger
}

// NewHandler creates a conversation handler.
func NewHandler(service Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Respond handles POST /api/sim/respond.
func (h *Handler) Respond(w http.ResponseWriter, r *http.Request) {
	var req RespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.UserID = identity.UserID(r.Context())

	resp, err := h.service.Respond(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "failed to respond", err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Turns handles GET /api/sim/sessions/{sessionID}/turns.
func (h *Handler) Turns(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	turns, err := h.service.Transcript(r.Context(), identity.UserID(r.Context()), sessionID)
	if err != nil {
		h.writeServiceError(w, "failed to list turns", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"turns":      turns,
	})
}

// Primer handles GET /api/sim/cases/{caseID}/primer.
func (h *Handler) Primer(w http.ResponseWriter, r *http.Request) {
	primer, err := h.service.Primer(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		h.writeServiceError(w, "failed to build primer", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"primer":   primer,
		"fallback": primer.Fallback,
	})
}

// StatusForError maps turn engine errors to HTTP status codes.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUpstreamFailure):
		return http.StatusBadGateway
	case errors.Is(err, ErrTurnConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, msg string, err error) {
	status := StatusForError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, "error", err)
	} else {
		h.logger.Warn(msg, "error", err)
	}
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = msg
	}
	h.writeError(w, status, detail)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, map[string]string{"detail": detail})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}

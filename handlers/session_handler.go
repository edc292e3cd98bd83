package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/upb/persona-router/internal/observability"
	"github.com/upb/persona-router/services"
	"github.com/upb/persona-router/utils"
)

// SetPersonaRequest is the body of PUT /api/v1/sessions/{userID}/persona
type SetPersonaRequest struct {
	Persona string `json:"persona" validate:"required,max=64"`
}

// SessionHandler exposes the per-user persona mode and history
type SessionHandler struct {
	router   PersonaRouter
	sessions SessionStore
	logger   *zap.Logger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(router PersonaRouter, sessions SessionStore, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		router:   router,
		sessions: sessions,
		logger:   logger,
	}
}

// HandleGet handles GET /api/v1/sessions/{userID}
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	logger := observability.WithRequestID(r.Context(), h.logger)

	sess, ok := h.sessions.Get(chi.URLParam(r, "userID"))
	if !ok {
		HandleServiceError(w, services.ErrSessionNotFound, logger)
		return
	}

	if err := utils.WriteOK(w, sess); err != nil {
		logger.Error("failed to write session response", zap.Error(err))
	}
}

// HandleSetPersona handles PUT /api/v1/sessions/{userID}/persona
func (h *SessionHandler) HandleSetPersona(w http.ResponseWriter, r *http.Request) {
	logger := observability.WithRequestID(r.Context(), h.logger)
	userID := chi.URLParam(r, "userID")

	var req SetPersonaRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	name := strings.ToUpper(strings.TrimSpace(req.Persona))
	persona, ok := h.router.Persona(name)
	if !ok {
		writeUnknownPersona(w, name, personaNames(h.router), logger)
		return
	}

	sess := h.sessions.SetPersona(userID, persona.Name)
	logger.Info("persona mode changed",
		zap.String("user_id", sess.UserID),
		zap.String("persona", persona.Name))

	if err := utils.WriteOK(w, sess); err != nil {
		logger.Error("failed to write session response", zap.Error(err))
	}
}

// HandleResetHistory handles POST /api/v1/sessions/{userID}/reset
func (h *SessionHandler) HandleResetHistory(w http.ResponseWriter, r *http.Request) {
	logger := observability.WithRequestID(r.Context(), h.logger)

	if !h.sessions.ResetHistory(chi.URLParam(r, "userID")) {
		HandleServiceError(w, services.ErrSessionNotFound, logger)
		return
	}
	utils.WriteNoContent(w)
}

// HandleDelete handles DELETE /api/v1/sessions/{userID}
func (h *SessionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	logger := observability.WithRequestID(r.Context(), h.logger)

	if !h.sessions.Delete(chi.URLParam(r, "userID")) {
		HandleServiceError(w, services.ErrSessionNotFound, logger)
		return
	}
	utils.WriteNoContent(w)
}

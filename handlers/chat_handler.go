package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/persona-router/internal/observability"
	"github.com/upb/persona-router/services"
	"github.com/upb/persona-router/services/routing"
	"github.com/upb/persona-router/services/session"
	"github.com/upb/persona-router/utils"
)

// DegradedReply is sent to the user when every provider for the persona failed
const DegradedReply = "Sorry, I can't answer right now. Please try again in a few minutes."

// ChatRequest is the body of POST /api/v1/chat
type ChatRequest struct {
	UserID  string `json:"user_id" validate:"required,max=128"`
	Message string `json:"message" validate:"required,max=8000"`
	Persona string `json:"persona,omitempty" validate:"max=64"`
	System  string `json:"system,omitempty" validate:"max=4000"`
}

// ChatResponse is the reply returned to the messaging channel
type ChatResponse struct {
	RequestID string `json:"request_id"`
	Reply     string `json:"reply"`
	Persona   string `json:"persona"`
	ServedBy  string `json:"served_by,omitempty"`
	Vendor    string `json:"vendor,omitempty"`
	Model     string `json:"model,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
	Degraded  bool   `json:"degraded"`
}

// ChatHandler turns a user message into a routed persona reply
type ChatHandler struct {
	router         PersonaRouter
	sessions       SessionStore
	defaultPersona string
	logger         *zap.Logger
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(router PersonaRouter, sessions SessionStore, defaultPersona string, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		router:         router,
		sessions:       sessions,
		defaultPersona: defaultPersona,
		logger:         logger,
	}
}

// HandleChat handles POST /api/v1/chat
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	logger := observability.WithRequestID(r.Context(), h.logger)

	var req ChatRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, logger)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		HandleServiceError(w, services.ErrEmptyPrompt, logger)
		return
	}

	sess, hasSession := h.sessions.Get(req.UserID)

	personaName := h.resolvePersona(req.Persona, sess)
	persona, ok := h.router.Persona(personaName)
	if !ok {
		writeUnknownPersona(w, personaName, personaNames(h.router), logger)
		return
	}

	requestID := middleware.GetReqID(r.Context())
	if requestID == "" {
		requestID = uuid.NewString()
	}

	routeReq := &routing.RouteRequest{
		RequestID:         requestID,
		Persona:           persona.Name,
		Prompt:            req.Message,
		SystemInstruction: req.System,
	}
	if hasSession {
		routeReq.History = sess.History
	}

	result, err := h.router.Route(r.Context(), routeReq)
	if err != nil {
		if services.IsProvidersExhaustedError(err) {
			logger.Warn("replying with degraded message",
				zap.String("persona", persona.Name),
				zap.String("user_id", req.UserID),
				zap.Error(err))
			h.writeChat(w, logger, ChatResponse{
				RequestID: requestID,
				Reply:     DegradedReply,
				Persona:   persona.Name,
				Degraded:  true,
			})
			return
		}
		HandleServiceError(w, err, logger)
		return
	}

	h.sessions.AppendTurn(req.UserID, req.Message, result.Text)

	h.writeChat(w, logger, ChatResponse{
		RequestID: requestID,
		Reply:     result.Text,
		Persona:   result.Persona,
		ServedBy:  string(result.ServedBy),
		Vendor:    string(result.Vendor),
		Model:     result.Model,
		LatencyMs: result.Latency.Milliseconds(),
	})
}

// resolvePersona picks the request persona, then the session mode, then the default
func (h *ChatHandler) resolvePersona(requested string, sess *session.Session) string {
	if p := strings.TrimSpace(requested); p != "" {
		return strings.ToUpper(p)
	}
	if sess != nil && sess.Persona != "" {
		return sess.Persona
	}
	return h.defaultPersona
}

func (h *ChatHandler) writeChat(w http.ResponseWriter, logger *zap.Logger, resp ChatResponse) {
	if err := utils.WriteOK(w, resp); err != nil {
		logger.Error("failed to write chat response", zap.Error(err))
	}
}

func personaNames(router PersonaRouter) []string {
	personas := router.Personas()
	names := make([]string, 0, len(personas))
	for _, p := range personas {
		names = append(names, p.Name)
	}
	return names
}

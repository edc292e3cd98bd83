package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/upb/persona-router/models"
	"github.com/upb/persona-router/utils"
)

// BindingView is the public shape of a persona binding
type BindingView struct {
	Vendor    string `json:"vendor"`
	Model     string `json:"model"`
	TimeoutMs int64  `json:"timeout_ms"`
}

// PersonaView is the public shape of a persona
type PersonaView struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Primary     BindingView  `json:"primary"`
	Backup      *BindingView `json:"backup,omitempty"`
}

// NewPersonaView converts a persona for the API
func NewPersonaView(p models.Persona) PersonaView {
	view := PersonaView{
		Name:        p.Name,
		Description: p.Description,
		Primary:     newBindingView(p.Primary),
	}
	if p.Backup != nil {
		backup := newBindingView(*p.Backup)
		view.Backup = &backup
	}
	return view
}

func newBindingView(b models.Binding) BindingView {
	return BindingView{
		Vendor:    string(b.Vendor),
		Model:     b.Model,
		TimeoutMs: b.Timeout.Milliseconds(),
	}
}

// PersonaHandler lists configured personas
type PersonaHandler struct {
	router PersonaRouter
	logger *zap.Logger
}

// NewPersonaHandler creates a new PersonaHandler
func NewPersonaHandler(router PersonaRouter, logger *zap.Logger) *PersonaHandler {
	return &PersonaHandler{router: router, logger: logger}
}

// HandleList handles GET /api/v1/personas
func (h *PersonaHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	personas := h.router.Personas()
	views := make([]PersonaView, 0, len(personas))
	for _, p := range personas {
		views = append(views, NewPersonaView(p))
	}

	if err := utils.WriteOK(w, views); err != nil {
		h.logger.Error("failed to write personas response", zap.Error(err))
	}
}

// HandleGet handles GET /api/v1/personas/{name}
func (h *PersonaHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	persona, ok := h.router.Persona(chi.URLParam(r, "name"))
	if !ok {
		if err := utils.WriteNotFound(w, "Persona not found"); err != nil {
			h.logger.Error("failed to write not found response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteOK(w, NewPersonaView(persona)); err != nil {
		h.logger.Error("failed to write persona response", zap.Error(err))
	}
}

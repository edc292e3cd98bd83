package handlers

import (
	"context"

	"github.com/upb/persona-router/models"
	"github.com/upb/persona-router/services/routing"
	"github.com/upb/persona-router/services/session"
)

// PersonaRouter is the routing capability the HTTP layer depends on
type PersonaRouter interface {
	Route(ctx context.Context, req *routing.RouteRequest) (*routing.RouteResult, error)
	Personas() []models.Persona
	Persona(name string) (models.Persona, bool)
}

// SessionStore keeps per-user persona mode and conversation history
type SessionStore interface {
	Get(userID string) (*session.Session, bool)
	SetPersona(userID, persona string) *session.Session
	AppendTurn(userID, userText, assistantText string) *session.Session
	ResetHistory(userID string) bool
	Delete(userID string) bool
}

// ProviderCatalog lists the registered vendor adapters
type ProviderCatalog interface {
	List() []string
	Count() int
}

var (
	_ PersonaRouter = (*routing.Router)(nil)
	_ SessionStore  = (*session.Store)(nil)
)

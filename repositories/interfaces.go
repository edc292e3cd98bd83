package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/upb/persona-router/models"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("record not found")

// RouteEventRepository handles route audit data operations
type RouteEventRepository interface {
	// Insert inserts a new route event
	Insert(ctx context.Context, event *models.RouteEvent) error

	// GetByID retrieves a route event by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.RouteEvent, error)

	// ListRecent retrieves the newest route events with pagination
	ListRecent(ctx context.Context, limit, offset int) ([]*models.RouteEvent, error)

	// ListByPersona retrieves the newest route events for a persona with pagination
	ListByPersona(ctx context.Context, persona string, limit, offset int) ([]*models.RouteEvent, error)
}

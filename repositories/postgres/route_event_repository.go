package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/persona-router/models"
	"github.com/upb/persona-router/repositories"
)

const routeEventColumns = `id, request_id, persona, outcome, served_by, vendor, model,
		       latency_ms, primary_error_code, error_code, created_at`

// RouteEventRepository implements the repositories.RouteEventRepository interface
type RouteEventRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRouteEventRepository creates a new route event repository
func NewRouteEventRepository(db *DB, logger *zap.Logger) repositories.RouteEventRepository {
	return &RouteEventRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new route event
func (r *RouteEventRepository) Insert(ctx context.Context, event *models.RouteEvent) error {
	query := `
		INSERT INTO route_events (
			id, request_id, persona, outcome, served_by, vendor, model,
			latency_ms, primary_error_code, error_code, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.RequestID,
		event.Persona,
		event.Outcome,
		event.ServedBy,
		event.Vendor,
		event.Model,
		event.LatencyMs,
		event.PrimaryErrorCode,
		event.ErrorCode,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert route event: %w", err)
	}

	r.logger.Debug("route event inserted",
		zap.String("id", event.ID.String()),
		zap.String("outcome", string(event.Outcome)))
	return nil
}

// GetByID retrieves a route event by ID
func (r *RouteEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.RouteEvent, error) {
	query := `
		SELECT ` + routeEventColumns + `
		FROM route_events
		WHERE id = $1
	`

	event, err := scanRouteEvent(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("route event %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get route event: %w", err)
	}

	return event, nil
}

// ListRecent retrieves the newest route events with pagination
func (r *RouteEventRepository) ListRecent(ctx context.Context, limit, offset int) ([]*models.RouteEvent, error) {
	query := `
		SELECT ` + routeEventColumns + `
		FROM route_events
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	return r.queryRouteEvents(ctx, query, limit, offset)
}

// ListByPersona retrieves the newest route events for a persona with pagination
func (r *RouteEventRepository) ListByPersona(ctx context.Context, persona string, limit, offset int) ([]*models.RouteEvent, error) {
	query := `
		SELECT ` + routeEventColumns + `
		FROM route_events
		WHERE persona = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	return r.queryRouteEvents(ctx, query, persona, limit, offset)
}

// queryRouteEvents is a helper function to query multiple route events
func (r *RouteEventRepository) queryRouteEvents(ctx context.Context, query string, args ...interface{}) ([]*models.RouteEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query route events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.RouteEvent, 0)
	for rows.Next() {
		event, err := scanRouteEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan route event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating route events: %w", err)
	}

	return events, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRouteEvent(row rowScanner) (*models.RouteEvent, error) {
	event := &models.RouteEvent{}
	err := row.Scan(
		&event.ID,
		&event.RequestID,
		&event.Persona,
		&event.Outcome,
		&event.ServedBy,
		&event.Vendor,
		&event.Model,
		&event.LatencyMs,
		&event.PrimaryErrorCode,
		&event.ErrorCode,
		&event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return event, nil
}

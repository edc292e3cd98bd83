package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/persona-router/internal/observability"
	"github.com/upb/persona-router/models"
	"github.com/upb/persona-router/repositories"
	"github.com/upb/persona-router/services"
	"github.com/upb/persona-router/utils"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 200
)

// RouteEventsHandler serves the route audit trail
type RouteEventsHandler struct {
	repo   repositories.RouteEventRepository
	logger *zap.Logger
}

// NewRouteEventsHandler creates a new RouteEventsHandler.
// A nil repo means auditing is disabled and every request gets 503.
func NewRouteEventsHandler(repo repositories.RouteEventRepository, logger *zap.Logger) *RouteEventsHandler {
	return &RouteEventsHandler{repo: repo, logger: logger}
}

// HandleList handles GET /api/v1/route-events?persona=&limit=&offset=
func (h *RouteEventsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	logger := observability.WithRequestID(r.Context(), h.logger)
	if h.repo == nil {
		_ = utils.WriteServiceUnavailable(w, "Route auditing is disabled")
		return
	}

	q := r.URL.Query()
	limit, err := parseBoundedInt(q.Get("limit"), defaultEventLimit, 1, maxEventLimit)
	if err != nil {
		HandleServiceError(w, services.NewDomainError(services.ErrorTypeValidation, "limit must be between 1 and 200", err), logger)
		return
	}
	offset, err := parseBoundedInt(q.Get("offset"), 0, 0, -1)
	if err != nil {
		HandleServiceError(w, services.NewDomainError(services.ErrorTypeValidation, "offset must be zero or positive", err), logger)
		return
	}

	var events []*models.RouteEvent
	if persona := normalizeQueryPersona(q.Get("persona")); persona != "" {
		events, err = h.repo.ListByPersona(r.Context(), persona, limit, offset)
	} else {
		events, err = h.repo.ListRecent(r.Context(), limit, offset)
	}
	if err != nil {
		HandleServiceError(w, services.NewDomainError(services.ErrorTypeInternal, "failed to list route events", err), logger)
		return
	}

	if err := utils.WriteOK(w, events); err != nil {
		logger.Error("failed to write route events response", zap.Error(err))
	}
}

// HandleGet handles GET /api/v1/route-events/{id}
func (h *RouteEventsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	logger := observability.WithRequestID(r.Context(), h.logger)
	if h.repo == nil {
		_ = utils.WriteServiceUnavailable(w, "Route auditing is disabled")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		HandleServiceError(w, services.NewDomainError(services.ErrorTypeValidation, "invalid route event id", err), logger)
		return
	}

	event, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			HandleServiceError(w, services.NewDomainError(services.ErrorTypeNotFound, "route event not found", err), logger)
			return
		}
		HandleServiceError(w, services.NewDomainError(services.ErrorTypeInternal, "failed to get route event", err), logger)
		return
	}

	if err := utils.WriteOK(w, event); err != nil {
		logger.Error("failed to write route event response", zap.Error(err))
	}
}

// parseBoundedInt parses raw or returns def when empty; max < 0 means no upper bound
func parseBoundedInt(raw string, def, min, max int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if v < min || (max >= 0 && v > max) {
		return 0, strconv.ErrRange
	}
	return v, nil
}

func normalizeQueryPersona(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

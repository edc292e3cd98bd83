package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/upb/persona-router/app"
	"github.com/upb/persona-router/handlers"
	"github.com/upb/persona-router/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	if deps.Config.Server.RequestTimeout > 0 {
		r.Use(middleware.Timeout(deps.Config.Server.RequestTimeout))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	health := handlers.NewHealthHandler(deps.SQLDB(), deps.Providers, deps.Logger)
	chat := handlers.NewChatHandler(deps.Router, deps.Sessions, deps.Config.Router.DefaultPersona, deps.Logger)
	sessions := handlers.NewSessionHandler(deps.Router, deps.Sessions, deps.Logger)
	personas := handlers.NewPersonaHandler(deps.Router, deps.Logger)
	events := handlers.NewRouteEventsHandler(deps.RouteEvents, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat", chat.HandleChat)

		r.Route("/personas", func(r chi.Router) {
			r.Get("/", personas.HandleList)
			r.Get("/{name}", personas.HandleGet)
		})

		r.Route("/sessions/{userID}", func(r chi.Router) {
			r.Get("/", sessions.HandleGet)
			r.Delete("/", sessions.HandleDelete)
			r.Put("/persona", sessions.HandleSetPersona)
			r.Post("/reset", sessions.HandleResetHistory)
		})

		r.Route("/route-events", func(r chi.Router) {
			r.Get("/", events.HandleList)
			r.Get("/{id}", events.HandleGet)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "The requested resource was not found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteJSON(w, http.StatusMethodNotAllowed, utils.ErrorResponse{
			Error:   "method_not_allowed",
			Message: "The requested method is not allowed for this resource",
		})
	})

	return r
}

// requestLogger logs one line per request with zap
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

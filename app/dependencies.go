package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/persona-router/config"
	"github.com/upb/persona-router/repositories"
	"github.com/upb/persona-router/repositories/postgres"
	"github.com/upb/persona-router/services/audit"
	"github.com/upb/persona-router/services/providers"
	"github.com/upb/persona-router/services/providers/deepseek"
	"github.com/upb/persona-router/services/providers/gemini"
	"github.com/upb/persona-router/services/providers/openai"
	"github.com/upb/persona-router/services/routing"
	"github.com/upb/persona-router/services/session"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB // nil when DATABASE_URL is unset
	Logger *zap.Logger

	// Repositories
	RouteEvents repositories.RouteEventRepository // nil when DATABASE_URL is unset

	// Services
	Audit     *audit.AuditService // nil when DATABASE_URL is unset
	Providers *providers.Registry
	Router    *routing.Router
	Sessions  *session.Store

	stopCleanup chan struct{}
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initServices(cfg); err != nil {
		return nil, err
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initServices builds everything above the database. On failure the audit
// workers and the pool started by initDatabase are released.
func (d *Dependencies) initServices(cfg *config.Config) error {
	if err := d.initProviders(cfg); err != nil {
		d.releaseAuditing()
		return fmt.Errorf("failed to initialize providers: %w", err)
	}

	if err := d.initRouter(cfg); err != nil {
		d.releaseAuditing()
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	d.initSessions(cfg)
	return nil
}

// initDatabase connects the optional audit database and starts the audit workers
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	if !cfg.Database.Enabled() {
		d.Logger.Info("DATABASE_URL not set, route auditing disabled")
		return nil
	}

	db, err := postgres.NewDB(cfg.Database, d.Logger)
	if err != nil {
		return err
	}
	d.DB = db

	if err := db.InitSchema(ctx); err != nil {
		d.releaseAuditing()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.RouteEvents = postgres.NewRouteEventRepository(db, d.Logger)
	d.Audit = audit.NewAuditService(d.RouteEvents, d.Logger, audit.Config{
		BufferSize:  cfg.Audit.BufferSize,
		WorkerCount: cfg.Audit.Workers,
	})
	if err := d.Audit.Start(); err != nil {
		d.releaseAuditing()
		return fmt.Errorf("failed to start audit service: %w", err)
	}

	return nil
}

// initProviders registers every vendor adapter; vendors without a key fail fast at call time
func (d *Dependencies) initProviders(cfg *config.Config) error {
	builder := providers.NewRegistryBuilder().
		WithAdapterBuilder("openai", func(c providers.ProviderConfig) (providers.Adapter, error) {
			return openai.NewOpenAIAdapter(c), nil
		}).
		WithAdapterBuilder("gemini", func(c providers.ProviderConfig) (providers.Adapter, error) {
			return gemini.NewGeminiAdapter(c), nil
		}).
		WithAdapterBuilder("deepseek", func(c providers.ProviderConfig) (providers.Adapter, error) {
			return deepseek.NewDeepSeekAdapter(c), nil
		})

	registry, err := builder.Build(ProviderConfigs(cfg.Providers))
	if err != nil {
		return err
	}

	for _, name := range registry.List() {
		d.Logger.Info("registered provider", zap.String("provider", name))
	}
	if !cfg.Providers.AnyConfigured() {
		d.Logger.Warn("no AI provider API keys configured, every route will fail with a configuration error")
	}

	d.Providers = registry
	return nil
}

// ProviderConfigs maps vendor settings to adapter configurations
func ProviderConfigs(p config.ProvidersConfig) map[string]providers.ProviderConfig {
	toProvider := func(v config.VendorConfig) providers.ProviderConfig {
		pc := providers.DefaultProviderConfig()
		pc.APIKey = v.APIKey
		pc.BaseURL = v.BaseURL
		if v.Timeout > 0 {
			pc.Timeout = v.Timeout
		}
		return pc
	}

	return map[string]providers.ProviderConfig{
		"openai":   toProvider(p.OpenAI),
		"gemini":   toProvider(p.Gemini),
		"deepseek": toProvider(p.DeepSeek),
	}
}

// initRouter loads the persona table and resolves it against the registry
func (d *Dependencies) initRouter(cfg *config.Config) error {
	personas, err := config.LoadPersonas(cfg.Router.PersonasFile)
	if err != nil {
		return err
	}

	opts := []routing.Option{routing.WithLogger(d.Logger.Named("router"))}
	if d.Audit != nil {
		opts = append(opts, routing.WithRecorder(d.Audit))
	}

	router, err := routing.NewRouter(personas, d.Providers, opts...)
	if err != nil {
		return err
	}

	if _, ok := router.Persona(cfg.Router.DefaultPersona); !ok {
		return fmt.Errorf("default persona %s is not defined", cfg.Router.DefaultPersona)
	}

	d.Router = router
	d.Logger.Info("router initialized",
		zap.Int("personas", len(personas)),
		zap.String("default_persona", cfg.Router.DefaultPersona),
		zap.String("personas_file", cfg.Router.PersonasFile))
	return nil
}

func (d *Dependencies) initSessions(cfg *config.Config) {
	d.Sessions = session.NewStore(cfg.Session.MaxUsers, cfg.Session.TTL, cfg.Session.MaxHistory)

	if cfg.Session.TTL > 0 && cfg.Session.CleanupInterval > 0 {
		d.stopCleanup = make(chan struct{})
		go d.Sessions.StartCleanupWorker(cfg.Session.CleanupInterval, d.stopCleanup)
	}
}

// SQLDB returns the raw pool for health checks, or nil when auditing is disabled
func (d *Dependencies) SQLDB() *sql.DB {
	if d.DB == nil {
		return nil
	}
	return d.DB.DB
}

// releaseAuditing stops the audit workers before closing the pool they write to
func (d *Dependencies) releaseAuditing() {
	if d.Audit != nil {
		if err := d.Audit.Stop(d.Config.Audit.StopTimeout); err != nil {
			d.Logger.Warn("failed to stop audit service", zap.Error(err))
		}
		d.Audit = nil
	}
	d.RouteEvents = nil

	if d.DB == nil {
		return
	}
	if err := d.DB.Close(); err != nil {
		d.Logger.Warn("failed to close database", zap.Error(err))
	}
	d.DB = nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.stopCleanup != nil {
		close(d.stopCleanup)
		d.stopCleanup = nil
	}

	// Drain pending route events before the pool goes away
	if d.Audit != nil {
		if err := d.Audit.Stop(d.Config.Audit.StopTimeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}

package routing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/persona-router/models"
	"github.com/upb/persona-router/services"
	"github.com/upb/persona-router/services/providers"
)

// ServedBy tells the caller which binding produced the reply
type ServedBy string

const (
	ServedByPrimary ServedBy = "primary"
	ServedByBackup  ServedBy = "backup"
)

// AdapterSource resolves a vendor name to its adapter
type AdapterSource interface {
	Get(name string) (providers.Adapter, error)
}

// Recorder receives one event per finished Route call.
// Implementations must not block.
type Recorder interface {
	RecordRoute(ctx context.Context, event *models.RouteEvent)
}

// RouteRequest is the per-call input to Route
type RouteRequest struct {
	// RequestID correlates logs and audit events (optional)
	RequestID string

	// Persona selects the primary/backup bindings
	Persona string

	// Prompt is the current user turn
	Prompt string

	// SystemInstruction is passed to whichever vendor serves the call (optional)
	SystemInstruction string

	// History holds prior turns, oldest first (optional)
	History []providers.Message
}

// RouteResult is the uniform routing outcome
type RouteResult struct {
	Text     string        `json:"text"`
	Persona  string        `json:"persona"`
	ServedBy ServedBy      `json:"served_by"`
	Vendor   models.Vendor `json:"vendor"`
	Model    string        `json:"model"`
	Latency  time.Duration `json:"latency"`

	// PrimaryErr is set when the backup served the request
	PrimaryErr error `json:"-"`

	// Raw is the serving vendor's response envelope
	Raw interface{} `json:"-"`
}

// ExhaustedError is carried inside a providers_exhausted DomainError.
// Unwrap yields the backup error, or the primary error when no backup is configured.
type ExhaustedError struct {
	Persona    string
	PrimaryErr error
	BackupErr  error
}

func (e *ExhaustedError) Error() string {
	if e.BackupErr == nil {
		return fmt.Sprintf("persona %s: primary failed: %v; no backup configured", e.Persona, e.PrimaryErr)
	}
	return fmt.Sprintf("persona %s: backup failed: %v; primary failed: %v", e.Persona, e.BackupErr, e.PrimaryErr)
}

func (e *ExhaustedError) Unwrap() error {
	if e.BackupErr != nil {
		return e.BackupErr
	}
	return e.PrimaryErr
}

type target struct {
	binding models.Binding
	adapter providers.Adapter
}

type resolvedPersona struct {
	persona models.Persona
	primary target
	backup  *target
}

// Router dispatches persona requests to a primary binding and fails over to a backup.
// It holds only the persona table built at construction and is safe for concurrent use.
type Router struct {
	personas map[string]*resolvedPersona
	logger   *zap.Logger
	recorder Recorder
}

// Option configures a Router
type Option func(*Router)

// WithLogger sets the router logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRecorder sets the route event recorder
func WithRecorder(recorder Recorder) Option {
	return func(r *Router) {
		r.recorder = recorder
	}
}

// NewRouter resolves every persona binding against source.
// A binding whose vendor has no adapter is a configuration error.
func NewRouter(personas []models.Persona, source AdapterSource, opts ...Option) (*Router, error) {
	r := &Router{
		personas: make(map[string]*resolvedPersona, len(personas)),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, p := range personas {
		key := normalizePersona(p.Name)
		if key == "" {
			return nil, services.WrapConfiguration("persona name cannot be empty", services.ErrInvalidPersonaFile)
		}
		if _, exists := r.personas[key]; exists {
			return nil, services.NewDomainError(services.ErrorTypeConfiguration,
				fmt.Sprintf("persona %s is defined more than once", key), services.ErrInvalidPersonaFile)
		}

		primary, err := resolveTarget(source, p.Primary)
		if err != nil {
			return nil, configErrorFor(key, "primary", p.Primary, err)
		}
		if p.Primary.Timeout <= 0 {
			return nil, configErrorFor(key, "primary", p.Primary, errors.New("primary timeout must be greater than zero"))
		}

		rp := &resolvedPersona{persona: p, primary: primary}
		if p.Backup != nil {
			backup, err := resolveTarget(source, *p.Backup)
			if err != nil {
				return nil, configErrorFor(key, "backup", *p.Backup, err)
			}
			rp.backup = &backup
		}

		rp.persona.Name = key
		r.personas[key] = rp
	}

	return r, nil
}

func resolveTarget(source AdapterSource, binding models.Binding) (target, error) {
	if binding.Vendor == "" || binding.Model == "" {
		return target{}, errors.New("vendor and model are required")
	}
	adapter, err := source.Get(string(binding.Vendor))
	if err != nil {
		return target{}, fmt.Errorf("%w: %w", services.ErrUnknownVendor, err)
	}
	return target{binding: binding, adapter: adapter}, nil
}

func configErrorFor(persona, slot string, binding models.Binding, err error) error {
	return services.NewDomainError(services.ErrorTypeConfiguration,
		fmt.Sprintf("persona %s %s binding %s cannot be resolved", persona, slot, binding.String()), err).
		WithDetail("persona", persona).
		WithDetail("vendor", string(binding.Vendor))
}

func normalizePersona(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Personas returns the configured personas sorted by name
func (r *Router) Personas() []models.Persona {
	out := make([]models.Persona, 0, len(r.personas))
	for _, rp := range r.personas {
		out = append(out, rp.persona)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Persona looks up a single persona
func (r *Router) Persona(name string) (models.Persona, bool) {
	rp, ok := r.personas[normalizePersona(name)]
	if !ok {
		return models.Persona{}, false
	}
	return rp.persona, true
}

// Route invokes the persona's primary binding under its timeout and, on failure
// or timeout, the backup binding once. It fails with a providers_exhausted
// DomainError only when every configured binding failed.
func (r *Router) Route(ctx context.Context, req *RouteRequest) (*RouteResult, error) {
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return nil, services.ErrEmptyPrompt
	}

	start := time.Now()
	name := normalizePersona(req.Persona)

	rp, ok := r.personas[name]
	if !ok {
		err := services.NewDomainError(services.ErrorTypeConfiguration,
			fmt.Sprintf("persona %q is not configured", req.Persona), services.ErrUnknownPersona).
			WithDetail("persona", req.Persona)
		r.record(ctx, models.NewRouteEvent(req.RequestID, name, models.RouteOutcomeConfigError).
			WithLatency(time.Since(start)).
			WithErrors("", string(services.ErrorTypeConfiguration)))
		return nil, err
	}

	logger := r.logger.With(zap.String("persona", name), zap.String("request_id", req.RequestID))

	// Copy history so a late primary never observes caller mutations
	history := append([]providers.Message(nil), req.History...)

	resp, err := r.attempt(ctx, rp.primary, req, history)
	if err == nil {
		result := r.result(name, ServedByPrimary, rp.primary, resp, start)
		r.record(ctx, models.NewRouteEvent(req.RequestID, name, models.RouteOutcomeServed).
			WithServer(string(ServedByPrimary), string(rp.primary.binding.Vendor), rp.primary.binding.Model).
			WithLatency(result.Latency))
		return result, nil
	}

	primaryErr := classify(rp.primary, err)
	if stop := r.terminal(ctx, req.RequestID, name, start, primaryErr, nil); stop != nil {
		return nil, stop
	}

	logger.Warn("primary provider failed",
		zap.String("vendor", string(rp.primary.binding.Vendor)),
		zap.String("model", rp.primary.binding.Model),
		zap.Bool("has_backup", rp.backup != nil),
		zap.Error(primaryErr))

	if rp.backup == nil {
		return nil, r.exhausted(ctx, logger, req.RequestID, name, start, primaryErr, nil)
	}

	resp, err = r.attempt(ctx, *rp.backup, req, history)
	if err == nil {
		result := r.result(name, ServedByBackup, *rp.backup, resp, start)
		result.PrimaryErr = primaryErr
		logger.Info("backup provider served request",
			zap.String("vendor", string(rp.backup.binding.Vendor)),
			zap.String("model", rp.backup.binding.Model),
			zap.Duration("latency", result.Latency))
		r.record(ctx, models.NewRouteEvent(req.RequestID, name, models.RouteOutcomeServed).
			WithServer(string(ServedByBackup), string(rp.backup.binding.Vendor), rp.backup.binding.Model).
			WithLatency(result.Latency).
			WithErrors(errorCode(primaryErr), ""))
		return result, nil
	}

	backupErr := classify(*rp.backup, err)
	if stop := r.terminal(ctx, req.RequestID, name, start, backupErr, primaryErr); stop != nil {
		return nil, stop
	}

	return nil, r.exhausted(ctx, logger, req.RequestID, name, start, primaryErr, backupErr)
}

func (r *Router) attempt(ctx context.Context, t target, req *RouteRequest, history []providers.Message) (*providers.InvokeResponse, error) {
	invokeReq := &providers.InvokeRequest{
		Model:             t.binding.Model,
		Prompt:            req.Prompt,
		SystemInstruction: req.SystemInstruction,
		History:           history,
	}
	resp, err := race(ctx, t.binding.Timeout, func(callCtx context.Context) (*providers.InvokeResponse, error) {
		return t.adapter.Invoke(callCtx, invokeReq)
	})
	if err == nil && resp == nil {
		return nil, providers.NewProviderError(t.adapter.Name(), providers.CodeMalformedResponse,
			"adapter returned no response", 0, false, nil)
	}
	return resp, err
}

// terminal returns a non-nil error when routing must stop without trying further bindings:
// missing credentials and caller cancellation.
func (r *Router) terminal(ctx context.Context, requestID, persona string, start time.Time, err, primaryErr error) error {
	if services.IsConfigurationError(err) {
		r.logger.Error("provider misconfigured",
			zap.String("persona", persona),
			zap.String("request_id", requestID),
			zap.Error(err))
		r.record(ctx, models.NewRouteEvent(requestID, persona, models.RouteOutcomeConfigError).
			WithLatency(time.Since(start)).
			WithErrors(errorCode(primaryErr), errorCode(err)))
		return err
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		canceled := services.NewDomainError(services.ErrorTypeCanceled,
			fmt.Sprintf("request for persona %s canceled before a provider answered", persona), ctxErr).
			WithDetail("persona", persona)
		r.record(ctx, models.NewRouteEvent(requestID, persona, models.RouteOutcomeCanceled).
			WithLatency(time.Since(start)).
			WithErrors(errorCode(primaryErr), string(services.ErrorTypeCanceled)))
		return canceled
	}

	return nil
}

func (r *Router) exhausted(ctx context.Context, logger *zap.Logger, requestID, persona string, start time.Time, primaryErr, backupErr error) error {
	final := backupErr
	if final == nil {
		final = primaryErr
	}

	logger.Error("all providers exhausted",
		zap.NamedError("primary_error", primaryErr),
		zap.NamedError("backup_error", backupErr))

	r.record(ctx, models.NewRouteEvent(requestID, persona, models.RouteOutcomeExhausted).
		WithLatency(time.Since(start)).
		WithErrors(errorCode(primaryErr), errorCode(final)))

	return services.NewDomainError(services.ErrorTypeProvidersExhausted,
		fmt.Sprintf("all providers failed for persona %s", persona),
		&ExhaustedError{Persona: persona, PrimaryErr: primaryErr, BackupErr: backupErr}).
		WithDetail("persona", persona).
		WithDetail("primary_error", primaryErr.Error())
}

func (r *Router) result(persona string, servedBy ServedBy, t target, resp *providers.InvokeResponse, start time.Time) *RouteResult {
	return &RouteResult{
		Text:     resp.Text,
		Persona:  persona,
		ServedBy: servedBy,
		Vendor:   t.binding.Vendor,
		Model:    t.binding.Model,
		Latency:  time.Since(start),
		Raw:      resp.Raw,
	}
}

func (r *Router) record(ctx context.Context, event *models.RouteEvent) {
	if r.recorder == nil {
		return
	}
	r.recorder.RecordRoute(ctx, event)
}

// classify converts an adapter or race error into the routing error taxonomy
func classify(t target, err error) error {
	var domainErr *services.DomainError
	var panicErr *PanicError

	switch {
	case errors.Is(err, providers.ErrMissingCredential):
		domainErr = services.NewDomainError(services.ErrorTypeConfiguration,
			fmt.Sprintf("%s credential not configured", t.binding.Vendor), err)
	case errors.Is(err, ErrDeadlineElapsed):
		domainErr = services.NewDomainError(services.ErrorTypeProviderTimeout,
			fmt.Sprintf("%s did not respond within %s", t.binding.String(), t.binding.Timeout), err)
	case errors.As(err, &panicErr):
		domainErr = services.NewDomainError(services.ErrorTypeProviderFailure,
			fmt.Sprintf("%s adapter panicked", t.binding.String()), err)
	default:
		domainErr = services.NewDomainError(services.ErrorTypeProviderFailure,
			fmt.Sprintf("%s failed", t.binding.String()), err)
	}

	return domainErr.
		WithDetail("vendor", string(t.binding.Vendor)).
		WithDetail("model", t.binding.Model)
}

// errorCode prefers the vendor code and falls back to the routing error type
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	if code := providers.ErrorCode(err); code != "" {
		return code
	}
	return string(services.GetErrorType(err))
}

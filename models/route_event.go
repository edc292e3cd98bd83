package models

import (
	"time"

	"github.com/google/uuid"
)

// RouteOutcome is the terminal state of a single routing call
type RouteOutcome string

const (
	RouteOutcomeServed      RouteOutcome = "served"
	RouteOutcomeExhausted   RouteOutcome = "exhausted"
	RouteOutcomeConfigError RouteOutcome = "configuration_error"
	RouteOutcomeCanceled    RouteOutcome = "canceled"
)

// RouteEvent is the audit record of a routing call.
// It never carries prompt or reply text.
type RouteEvent struct {
	ID               uuid.UUID    `json:"id" db:"id"`
	RequestID        string       `json:"request_id" db:"request_id"`
	Persona          string       `json:"persona" db:"persona"`
	Outcome          RouteOutcome `json:"outcome" db:"outcome"`
	ServedBy         *string      `json:"served_by,omitempty" db:"served_by"`
	Vendor           *string      `json:"vendor,omitempty" db:"vendor"`
	Model            *string      `json:"model,omitempty" db:"model"`
	LatencyMs        int          `json:"latency_ms" db:"latency_ms"`
	PrimaryErrorCode *string      `json:"primary_error_code,omitempty" db:"primary_error_code"`
	ErrorCode        *string      `json:"error_code,omitempty" db:"error_code"`
	CreatedAt        time.Time    `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the RouteEvent model
func (RouteEvent) TableName() string {
	return "route_events"
}

// NewRouteEvent creates a new RouteEvent instance
func NewRouteEvent(requestID, persona string, outcome RouteOutcome) *RouteEvent {
	return &RouteEvent{
		ID:        uuid.New(),
		RequestID: requestID,
		Persona:   persona,
		Outcome:   outcome,
		CreatedAt: time.Now().UTC(),
	}
}

// WithServer records which binding answered
func (e *RouteEvent) WithServer(servedBy, vendor, model string) *RouteEvent {
	e.ServedBy = &servedBy
	e.Vendor = &vendor
	e.Model = &model
	return e
}

// WithLatency records the end-to-end routing latency
func (e *RouteEvent) WithLatency(latency time.Duration) *RouteEvent {
	e.LatencyMs = int(latency.Milliseconds())
	return e
}

// WithErrors records error codes for the failed attempts
func (e *RouteEvent) WithErrors(primaryCode, finalCode string) *RouteEvent {
	if primaryCode != "" {
		e.PrimaryErrorCode = &primaryCode
	}
	if finalCode != "" {
		e.ErrorCode = &finalCode
	}
	return e
}

// Package observability builds the zap loggers used across the router
// and attaches request-scoped fields to them.
package observability

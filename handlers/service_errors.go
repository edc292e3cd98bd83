package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/persona-router/services"
	"github.com/upb/persona-router/utils"
)

// StatusClientClosedRequest is written when the caller went away before a provider answered
const StatusClientClosedRequest = 499

// HandleServiceError maps domain errors to HTTP responses.
// Only the domain message is written; wrapped vendor errors stay in the logs.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	message := err.Error()
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		message = domainErr.Message
	}

	var writeErr error
	switch {
	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, message)

	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, message, services.GetErrorDetails(err))

	case services.IsConfigurationError(err):
		logger.Error("routing configuration error", zap.Error(err))
		writeErr = utils.WriteServiceUnavailable(w, "The assistant is not configured correctly")

	case services.IsProviderTimeoutError(err):
		writeErr = utils.WriteError(w, http.StatusGatewayTimeout, message, nil)

	case services.IsProviderFailureError(err), services.IsProvidersExhaustedError(err):
		logger.Warn("provider error", zap.Error(err))
		writeErr = utils.WriteJSON(w, http.StatusBadGateway, utils.ErrorResponse{
			Error:   "bad_gateway",
			Message: message,
		})

	case services.IsCanceledError(err):
		logger.Debug("request canceled by client", zap.Error(err))
		writeErr = utils.WriteJSON(w, StatusClientClosedRequest, utils.ErrorResponse{
			Error:   "client_closed_request",
			Message: message,
		})

	case services.IsInternalError(err):
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{}, len(fields))
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

// writeUnknownPersona answers requests naming a persona that is not configured
func writeUnknownPersona(w http.ResponseWriter, persona string, known []string, logger *zap.Logger) {
	if err := utils.WriteUnprocessable(w, "Unknown persona", map[string]interface{}{
		"persona":   persona,
		"available": known,
	}); err != nil {
		logger.Error("failed to write unknown persona response", zap.Error(err))
	}
}

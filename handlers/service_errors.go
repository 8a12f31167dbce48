package handlers

import (
	"net/http"

	"github.com/heycarlitos/llm-proxy/internal/observability"
	"github.com/heycarlitos/llm-proxy/services"
	"github.com/heycarlitos/llm-proxy/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses.
// Only validation, rate limit and configuration messages reach the client;
// upstream and internal causes are logged and replaced by a fixed message.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)
	if len(details) == 0 {
		details = nil
	}
	message := services.GetErrorMessage(err)

	switch {
	case services.IsValidationError(err):
		logger.Debug("rejected request body", zap.Error(err))
		if err := utils.WriteBadRequest(w, message, details); err != nil {
			logger.Error("failed to write bad request response", zap.Error(err))
		}

	case services.IsRateLimitError(err):
		if err := utils.WriteTooManyRequests(w, message, details); err != nil {
			logger.Error("failed to write rate limit response", zap.Error(err))
		}

	case services.IsConfigurationError(err):
		logger.Error("provider not configured", zap.Error(err))
		if err := utils.WriteInternalServerError(w, message); err != nil {
			logger.Error("failed to write configuration error response", zap.Error(err))
		}

	case services.IsExternalError(err):
		logger.Warn("upstream provider error", zap.Error(err))
		if err := utils.WriteBadGateway(w, services.ErrUpstreamUnavailable.Message); err != nil {
			logger.Error("failed to write bad gateway response", zap.Error(err))
		}

	case services.IsInternalError(err):
		logger.Error("internal server error", zap.Error(err))
		if err := utils.WriteInternalServerError(w, "An internal error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		if err := utils.WriteInternalServerError(w, "An unexpected error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}
	}
}

// outcomeFor classifies an error for the request counter
func outcomeFor(err error) string {
	switch {
	case services.IsValidationError(err):
		return observability.OutcomeBadRequest
	case services.IsRateLimitError(err):
		return observability.OutcomeRateLimited
	case services.IsConfigurationError(err):
		return observability.OutcomeMisconfigured
	case services.IsExternalError(err):
		return observability.OutcomeUpstreamError
	default:
		return observability.OutcomeInternalError
	}
}

package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	IntegrationsErrorBadInput       = "INTEGRATIONS_BAD_INPUT"
	IntegrationsErrorNotFound       = "INTEGRATIONS_NOT_FOUND"
	IntegrationsErrorFilterInvalid  = "INTEGRATIONS_FILTER_INVALID"
	IntegrationsErrorRateLimited    = "INTEGRATIONS_RATE_LIMITED"
	IntegrationsErrorDeliveryFailed = "INTEGRATIONS_DELIVERY_FAILED"
	IntegrationsErrorAdapterMissing = "INTEGRATIONS_ADAPTER_MISSING"
	IntegrationsErrorInternal       = "INTEGRATIONS_INTERNAL_ERROR"
)

func integrationsErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureIntegrationsErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return newIntegrationsError(err.Error(), goerrors.CategoryNotFound, IntegrationsErrorNotFound)
	case strings.Contains(msg, "invalid event filter"), strings.Contains(msg, "filter"):
		return newIntegrationsError(err.Error(), goerrors.CategoryBadInput, IntegrationsErrorFilterInvalid)
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return newIntegrationsError(err.Error(), goerrors.CategoryRateLimit, IntegrationsErrorRateLimited)
	case strings.Contains(msg, "adapter") && strings.Contains(msg, "not registered"):
		return newIntegrationsError(err.Error(), goerrors.CategoryOperation, IntegrationsErrorAdapterMissing)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "unknown event"):
		return newIntegrationsError(err.Error(), goerrors.CategoryBadInput, IntegrationsErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureIntegrationsErrorEnvelope(mapped)
}

func newIntegrationsError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureIntegrationsErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureIntegrationsErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = integrationsHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultIntegrationsTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultIntegrationsTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return IntegrationsErrorBadInput
	case goerrors.CategoryNotFound:
		return IntegrationsErrorNotFound
	case goerrors.CategoryRateLimit:
		return IntegrationsErrorRateLimited
	case goerrors.CategoryOperation:
		return IntegrationsErrorDeliveryFailed
	default:
		return IntegrationsErrorInternal
	}
}

func integrationsHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryOperation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

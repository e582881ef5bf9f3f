package erp

import (
	goerrors "github.com/goliatone/go-errors"

	"github.com/garagereg/go-integrations/core"
)

func syncError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(syncTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func syncWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) error {
	if source == nil {
		return syncError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(syncTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func syncTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.IntegrationsErrorBadInput
	case goerrors.CategoryRateLimit:
		return core.IntegrationsErrorRateLimited
	case goerrors.CategoryExternal, goerrors.CategoryOperation:
		return core.IntegrationsErrorDeliveryFailed
	default:
		return core.IntegrationsErrorInternal
	}
}

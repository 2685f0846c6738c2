package httpadapter

import (
	"context"
	"errors"
	"net/http"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNotInitialized):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrInitializing):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrDomainNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prohmpiriya/eventgate/internal/domain"
	"github.com/prohmpiriya/eventgate/internal/gateway"
	"github.com/prohmpiriya/eventgate/pkg/logger"
	"github.com/prohmpiriya/eventgate/pkg/response"
)

var errorCodes = []struct {
	kind error
	code string
}{
	{domain.ErrUnauthorized, response.ErrCodeUnauthorized},
	{domain.ErrForbidden, response.ErrCodeForbidden},
	{domain.ErrBadRequest, response.ErrCodeBadRequest},
	{domain.ErrNotFound, response.ErrCodeNotFound},
	{domain.ErrInvalidOwnership, response.ErrCodeInvalidOwnership},
	{domain.ErrNotReady, response.ErrCodeNotReady},
	{domain.ErrBookingNotConfirmed, response.ErrCodeBookingNotConfirmed},
	{domain.ErrValidationDisabled, response.ErrCodeValidationDisabled},
	{gateway.ErrNotConfigured, response.ErrCodeServiceUnavailable},
}

// errorCode maps a service error to a response code; unknown errors are internal
func errorCode(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.kind) {
			return e.code
		}
	}
	return response.ErrCodeInternalError
}

// respondError writes the error envelope for err. Internal errors are logged and their text is not exposed.
func respondError(c *gin.Context, log *logger.Logger, err error, fallback string) {
	code := errorCode(err)
	status := response.GetHTTPStatus(code)

	if status >= http.StatusInternalServerError {
		log.WithContext(c.Request.Context()).Error(fallback,
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		if code == response.ErrCodeInternalError {
			c.JSON(status, response.InternalError(fallback))
			return
		}
	}

	c.JSON(status, response.ErrorWithDetails(code, domain.ErrorMessage(err), domain.ErrorDetails(err)))
}

package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/docvault/internal/access"
	"github.com/MarcoPoloResearchLab/docvault/internal/auth"
	"github.com/MarcoPoloResearchLab/docvault/internal/catalog"
	"github.com/MarcoPoloResearchLab/docvault/internal/device"
	"github.com/MarcoPoloResearchLab/docvault/internal/ledger"
	"github.com/MarcoPoloResearchLab/docvault/internal/licensing"
	"github.com/MarcoPoloResearchLab/docvault/internal/session"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	errorCodeInvalidRequest      = "invalid_request"
	errorCodeUnauthorized        = "unauthorized"
	errorCodeInsufficientBalance = "insufficient_balance"
	errorCodeAlreadyOwned        = "already_owned"
	errorCodeAlreadyBound        = "already_bound"
	errorCodeDeviceMismatch      = "device_mismatch"
	errorCodeNotInLibrary        = "not_in_library"
	errorCodeInvalidGrant        = "invalid_grant"
	errorCodeNotFound            = "not_found"
	errorCodeInvalidDraft        = "invalid_draft"
	errorCodeMissingDevice       = "missing_device"
	errorCodeInvalidDevice       = "invalid_device"
	errorCodeCanceled            = "request_canceled"
	errorCodeInternal            = "internal_error"
)

type coded interface {
	Code() string
}

type errorPayload struct {
	Error           string `json:"error"`
	Message         string `json:"message,omitempty"`
	Code            string `json:"code,omitempty"`
	BoundDevice     string `json:"bound_device,omitempty"`
	RequesterDevice string `json:"requester_device,omitempty"`
}

// writeError maps domain errors onto HTTP statuses. Unknown failures are logged and reported as 500.
func (h *httpHandler) writeError(c *gin.Context, operation string, err error) {
	status, payload := classifyError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("operation", operation),
			zap.String("code", payload.Code),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, payload)
}

func classifyError(err error) (int, errorPayload) {
	var denied *access.DeniedError
	if errors.As(err, &denied) {
		return http.StatusForbidden, mismatchPayload(denied.Bound, denied.Requester, err)
	}
	var mismatch *licensing.MismatchError
	if errors.As(err, &mismatch) {
		return http.StatusForbidden, mismatchPayload(mismatch.Bound, mismatch.Requester, err)
	}

	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusPaymentRequired, errorPayload{Error: errorCodeInsufficientBalance, Message: err.Error()}
	case errors.Is(err, licensing.ErrAlreadyOwned):
		return http.StatusConflict, errorPayload{Error: errorCodeAlreadyOwned, Message: err.Error()}
	case errors.Is(err, catalog.ErrAlreadyBound):
		return http.StatusConflict, errorPayload{Error: errorCodeAlreadyBound, Message: err.Error()}
	case errors.Is(err, access.ErrNotInLibrary):
		return http.StatusForbidden, errorPayload{Error: errorCodeNotInLibrary}
	case errors.Is(err, access.ErrGrantMismatch),
		errors.Is(err, auth.ErrMissingCapabilityToken),
		errors.Is(err, auth.ErrInvalidCapability),
		errors.Is(err, auth.ErrExpiredCapability),
		errors.Is(err, auth.ErrCapabilityActionMismatch):
		return http.StatusForbidden, errorPayload{Error: errorCodeInvalidGrant}
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound, errorPayload{Error: errorCodeNotFound}
	case errors.Is(err, licensing.ErrInvalidDraft), errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, catalog.ErrInvalidDocType):
		return http.StatusBadRequest, errorPayload{Error: errorCodeInvalidDraft, Message: err.Error()}
	case errors.Is(err, licensing.ErrMissingDevice):
		return http.StatusBadRequest, errorPayload{Error: errorCodeMissingDevice}
	case errors.Is(err, device.ErrInvalidID):
		return http.StatusBadRequest, errorPayload{Error: errorCodeInvalidDevice}
	case errors.Is(err, session.ErrNotFound):
		return http.StatusUnauthorized, errorPayload{Error: errorCodeUnauthorized}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, errorPayload{Error: errorCodeCanceled}
	}

	payload := errorPayload{Error: errorCodeInternal}
	var withCode coded
	if errors.As(err, &withCode) {
		payload.Code = withCode.Code()
	}
	return http.StatusInternalServerError, payload
}

func mismatchPayload(bound, requester device.ID, err error) errorPayload {
	return errorPayload{
		Error:           errorCodeDeviceMismatch,
		Message:         err.Error(),
		BoundDevice:     bound.String(),
		RequesterDevice: requester.String(),
	}
}

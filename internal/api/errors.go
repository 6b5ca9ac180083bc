// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/calmpulse/calmpulse/internal/auth"
	"github.com/calmpulse/calmpulse/pkg/errutil"
)

// ErrorBody is the JSON envelope of every failed request.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the failure kind and optional per-field details.
type ErrorDetail struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Details []auth.FieldError `json:"details,omitempty"`
}

const internalErrorMessage = "internal server error"

// StatusFor maps a failure kind onto an HTTP status.
func StatusFor(k auth.Kind) int {
	switch k {
	case auth.KindValidationFailed:
		return http.StatusUnprocessableEntity
	case auth.KindConflict:
		return http.StatusConflict
	case auth.KindInvalidCredentials, auth.KindUnauthorized:
		return http.StatusUnauthorized
	case auth.KindInvalidToken:
		return http.StatusBadRequest
	case auth.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError classifies err and writes the envelope. Fatal errors are
// logged and their message is never exposed.
func (h *handlers) abortWithError(c *gin.Context, err error) {
	k := auth.KindOf(err)
	status := StatusFor(k)

	detail := ErrorDetail{Kind: k.String(), Message: err.Error(), Details: auth.FieldErrors(err)}
	if k == auth.KindFatal {
		errutil.LogErrorContext(c.Request.Context(), h.logger, "request failed", err)
		detail = ErrorDetail{Kind: k.String(), Message: internalErrorMessage}
	}
	_ = c.Error(err) //nolint:errcheck // recorded for the access log
	c.AbortWithStatusJSON(status, ErrorBody{Error: detail})
}

func abortWithKind(c *gin.Context, k auth.Kind, status int, message string, details []auth.FieldError) {
	c.AbortWithStatusJSON(status, ErrorBody{Error: ErrorDetail{Kind: k.String(), Message: message, Details: details}})
}

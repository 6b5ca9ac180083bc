// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

package api

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"github.com/calmpulse/calmpulse/internal/auth"
)

const (
	// RequestIDHeader is echoed back on every response.
	RequestIDHeader = "X-Request-ID"

	contextKeyRequestID = "request_id"
	contextKeyAccountID = "account_id"

	maxRequestIDLength = 128
)

// requestID adopts a caller-supplied request id or mints a ULID.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > maxRequestIDLength {
			id = ulid.Make().String()
		}
		c.Set(contextKeyRequestID, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// accessLog writes one structured line per request and feeds the HTTP
// metrics. Routes are reported by template so ids never become labels.
func accessLog(logger *slog.Logger, observer HTTPObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		if observer != nil {
			observer.ObserveHTTP(c.Request.Method, route, status, elapsed)
		}

		attrs := []any{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"request_id", c.GetString(contextKeyRequestID),
			"client_ip", c.ClientIP(),
		}
		if id, ok := c.Get(contextKeyAccountID); ok {
			attrs = append(attrs, "account_id", id)
		}
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "http request", attrs...)
	}
}

// cors answers preflight requests and decorates responses for the
// configured origins. A "*" entry allows any origin.
func cors(origins []string) gin.HandlerFunc {
	allowAny := len(origins) == 0 || slices.Contains(origins, "*")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			c.Writer.Header().Add("Vary", "Origin")
			switch {
			case allowAny:
				c.Header("Access-Control-Allow-Origin", "*")
			case slices.Contains(origins, origin):
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, "+RequestIDHeader)
			c.Header("Access-Control-Expose-Headers", RequestIDHeader)
			c.Header("Access-Control-Max-Age", "600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requireAccount rejects requests without a valid access token and stores
// the account id on both the gin and the request context.
func (h *handlers) requireAccount(c *gin.Context) {
	id, err := h.authorizer.Authorize(c.GetHeader("Authorization"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.Set(contextKeyAccountID, id)
	c.Request = c.Request.WithContext(auth.WithAccountID(c.Request.Context(), id))
	c.Next()
}

func accountID(c *gin.Context) int64 {
	id, _ := auth.AccountIDFromContext(c.Request.Context())
	return id
}

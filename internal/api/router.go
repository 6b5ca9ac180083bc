// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

// Package api serves the CalmPulse account and session endpoints over HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/calmpulse/calmpulse/internal/auth"
)

// AuthService is the account and session surface the handlers call.
type AuthService interface {
	Register(ctx context.Context, email, displayName, password string) (*auth.Session, error)
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	Rotate(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	Logout(ctx context.Context, accountID int64) (int64, error)
	DeleteAccount(ctx context.Context, accountID int64) error
	WhoAmI(ctx context.Context, accountID int64) (*auth.Account, error)
	UpdateProfile(ctx context.Context, accountID int64, upd auth.ProfileUpdate) (*auth.Account, error)
}

// Authorizer resolves an Authorization header to an account id.
type Authorizer interface {
	Authorize(header string) (int64, error)
}

// HTTPObserver receives one observation per served request.
type HTTPObserver interface {
	ObserveHTTP(method, route string, status int, elapsed time.Duration)
}

// MaxBodyBytes caps every request body.
const MaxBodyBytes int64 = 1 << 20

// Config configures NewRouter.
type Config struct {
	Service     AuthService
	Authorizer  Authorizer
	Observer    HTTPObserver
	Logger      *slog.Logger
	CORSOrigins []string
	// ServiceName names the spans created for each request.
	ServiceName string
}

type handlers struct {
	svc        AuthService
	authorizer Authorizer
	logger     *slog.Logger
}

// NewRouter builds the gin engine with every route and middleware mounted.
func NewRouter(cfg Config) (*gin.Engine, error) {
	if cfg.Service == nil {
		return nil, oops.Errorf("auth service is required")
	}
	if cfg.Authorizer == nil {
		return nil, oops.Errorf("authorizer is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "calmpulse"
	}

	h := &handlers{svc: cfg.Service, authorizer: cfg.Authorizer, logger: logger}

	r := gin.New()
	r.Use(gin.CustomRecovery(h.recovered))
	r.Use(requestID())
	r.Use(accessLog(logger, cfg.Observer))
	r.Use(cors(cfg.CORSOrigins))
	r.Use(otelgin.Middleware(serviceName))

	r.GET("/health", h.health)
	r.NoRoute(func(c *gin.Context) {
		abortWithKind(c, auth.KindNotFound, http.StatusNotFound, "route not found", nil)
	})

	authGroup := r.Group("/api/auth")
	{
		authGroup.POST("/signup", h.signup)
		authGroup.POST("/login", h.login)
		authGroup.POST("/refresh", h.refresh)
		authGroup.GET("/me", h.requireAccount, h.me)
		authGroup.POST("/revoke", h.requireAccount, h.revoke)
	}

	users := r.Group("/api/users", h.requireAccount)
	{
		users.GET("/me", h.me)
		users.PATCH("/me", h.updateProfile)
		users.POST("/update", h.updateProfile)
		users.DELETE("/me", h.deleteAccount)
	}

	return r, nil
}

func (h *handlers) recovered(c *gin.Context, recovered any) {
	h.logger.ErrorContext(c.Request.Context(), "handler panicked",
		"panic", fmt.Sprint(recovered),
		"route", c.FullPath(),
		"request_id", c.GetString(contextKeyRequestID))
	abortWithKind(c, auth.KindFatal, http.StatusInternalServerError, internalErrorMessage, nil)
}

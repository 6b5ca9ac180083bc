// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/calmpulse/calmpulse/internal/auth"
)

// AccountView is the public projection of an account. The password hash
// never leaves the service.
type AccountView struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TokensView is the JSON form of a token pair.
type TokensView struct {
	AccessToken           string    `json:"accessToken"`
	RefreshToken          string    `json:"refreshToken"`
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}

// SessionView is returned by signup and login.
type SessionView struct {
	Account AccountView `json:"account"`
	TokensView
}

func viewAccount(a *auth.Account) AccountView {
	return AccountView{ID: a.ID, Email: a.Email, DisplayName: a.DisplayName, CreatedAt: a.CreatedAt.UTC()}
}

func viewTokens(p auth.TokenPair) TokensView {
	return TokensView{
		AccessToken:           p.AccessToken,
		RefreshToken:          p.RefreshToken,
		AccessTokenExpiresAt:  p.AccessExpiresAt.UTC(),
		RefreshTokenExpiresAt: p.RefreshExpiresAt.UTC(),
	}
}

func viewSession(s *auth.Session) SessionView {
	return SessionView{Account: viewAccount(s.Account), TokensView: viewTokens(s.Tokens)}
}

// bind reads the body, validates it against the named schema and decodes
// it into dst. On failure the response is already written.
func (h *handlers) bind(c *gin.Context, schema string, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abortWithKind(c, auth.KindValidationFailed, http.StatusRequestEntityTooLarge, "request body too large", nil)
			return false
		}
		abortWithKind(c, auth.KindValidationFailed, http.StatusBadRequest, "request body unreadable", nil)
		return false
	}

	details, err := validateBody(schema, body)
	if err != nil {
		h.abortWithError(c, err)
		return false
	}
	if len(details) > 0 {
		abortWithKind(c, auth.KindValidationFailed, http.StatusUnprocessableEntity, "request validation failed", details)
		return false
	}

	if err := json.Unmarshal(body, dst); err != nil {
		abortWithKind(c, auth.KindValidationFailed, http.StatusUnprocessableEntity, "request validation failed",
			[]auth.FieldError{{Field: "body", Message: errMalformedBody.Error()}})
		return false
	}
	return true
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *handlers) signup(c *gin.Context) {
	var req SignupRequest
	if !h.bind(c, "signup", &req) {
		return
	}
	session, err := h.svc.Register(c.Request.Context(), req.Email, req.DisplayName, req.Password)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewSession(session))
}

func (h *handlers) login(c *gin.Context) {
	var req LoginRequest
	if !h.bind(c, "login", &req) {
		return
	}
	session, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewSession(session))
}

func (h *handlers) refresh(c *gin.Context) {
	var req RefreshRequest
	if !h.bind(c, "refresh", &req) {
		return
	}
	pair, err := h.svc.Rotate(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewTokens(*pair))
}

func (h *handlers) me(c *gin.Context) {
	account, err := h.svc.WhoAmI(c.Request.Context(), accountID(c))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewAccount(account))
}

func (h *handlers) revoke(c *gin.Context) {
	n, err := h.svc.Logout(c.Request.Context(), accountID(c))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": true, "count": n})
}

func (h *handlers) updateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if !h.bind(c, "update-profile", &req) {
		return
	}
	account, err := h.svc.UpdateProfile(c.Request.Context(), accountID(c), auth.ProfileUpdate{
		Email:       req.Email,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewAccount(account))
}

func (h *handlers) deleteAccount(c *gin.Context) {
	if err := h.svc.DeleteAccount(c.Request.Context(), accountID(c)); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

package auth

import (
	"errors"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Store-level sentinels. Repository implementations wrap these so the
// service can translate them into caller-facing kinds.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEmailTaken is returned when an email is already claimed by another account.
	ErrEmailTaken = errors.New("email already in use")

	// ErrDisplayNameTaken is returned when a display name is already claimed.
	ErrDisplayNameTaken = errors.New("display name already in use")
)

// Refresh ledger sentinels.
var (
	// ErrRefreshUnknown means no record matches the presented secret.
	ErrRefreshUnknown = errors.New("refresh token not recognized")

	// ErrRefreshExpired means the record exists but its expiry has passed.
	ErrRefreshExpired = errors.New("refresh token expired")

	// ErrRefreshRevoked means the record was revoked without being rotated,
	// by logout, account deletion or lineage revocation.
	ErrRefreshRevoked = errors.New("refresh token revoked")

	// ErrRefreshReplayed means the record was already rotated. Match with
	// errors.Is; use errors.As with *ReplayError to learn the lineage.
	ErrRefreshReplayed = errors.New("refresh token already used")
)

// ReplayError reports a presented refresh token whose record was already
// rotated.
type ReplayError struct {
	RecordID  ulid.ULID
	FamilyID  ulid.ULID
	AccountID int64
}

func (e *ReplayError) Error() string {
	return ErrRefreshReplayed.Error()
}

// Is makes errors.Is(err, ErrRefreshReplayed) hold for *ReplayError.
func (e *ReplayError) Is(target error) bool {
	return target == ErrRefreshReplayed
}

// Kind is the closed set of failure categories surfaced to callers.
type Kind int

// Failure kinds. Anything unrecognized is Fatal.
const (
	KindFatal Kind = iota
	KindValidationFailed
	KindConflict
	KindInvalidCredentials
	KindInvalidToken
	KindUnauthorized
	KindNotFound
)

// oops codes carried by service-boundary errors, one per Kind.
const (
	CodeValidationFailed   = "AUTH_VALIDATION_FAILED"
	CodeConflict           = "AUTH_CONFLICT"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeInvalidToken       = "AUTH_INVALID_TOKEN"
	CodeUnauthorized       = "AUTH_UNAUTHORIZED"
	CodeNotFound           = "AUTH_NOT_FOUND"
	CodeFatal              = "AUTH_FATAL"
)

var kindNames = map[Kind]string{
	KindFatal:              "Fatal",
	KindValidationFailed:   "ValidationFailed",
	KindConflict:           "Conflict",
	KindInvalidCredentials: "InvalidCredentials",
	KindInvalidToken:       "InvalidToken",
	KindUnauthorized:       "Unauthorized",
	KindNotFound:           "NotFound",
}

var codeKinds = map[string]Kind{
	CodeValidationFailed:   KindValidationFailed,
	CodeConflict:           KindConflict,
	CodeInvalidCredentials: KindInvalidCredentials,
	CodeInvalidToken:       KindInvalidToken,
	CodeUnauthorized:       KindUnauthorized,
	CodeNotFound:           KindNotFound,
	CodeFatal:              KindFatal,
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindFatal]
}

// KindOf classifies err. It returns KindFatal for nil-coded, foreign or
// unknown errors so that nothing is silently downgraded to a recoverable kind.
//
// oops reports the deepest code in a wrap chain, so kind errors must be
// created at the service boundary rather than wrapped around coded store
// errors.
func KindOf(err error) Kind {
	if err == nil {
		return KindFatal
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return KindFatal
	}
	code, _ := oopsErr.Code().(string)
	if kind, ok := codeKinds[code]; ok {
		return kind
	}
	return KindFatal
}

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors returns the field details attached to a ValidationFailed or
// Conflict error, or nil.
func FieldErrors(err error) []FieldError {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	ctx := oopsErr.Context()
	field, _ := ctx["field"].(string)
	if field == "" {
		return nil
	}
	return []FieldError{{Field: field, Message: oopsErr.Error()}}
}

func validationError(field, format string, args ...any) error {
	return oops.Code(CodeValidationFailed).With("field", field).Errorf(format, args...)
}

func conflictError(field string, cause error) error {
	return oops.Code(CodeConflict).With("field", field).Wrap(cause)
}

var errInvalidCredentials = errors.New("invalid email or password")

func invalidCredentialsError() error {
	return oops.Code(CodeInvalidCredentials).Wrap(errInvalidCredentials)
}

var errInvalidRefresh = errors.New("invalid refresh token")

func invalidTokenError(cause error) error {
	return oops.Code(CodeInvalidToken).With("reason", cause.Error()).Wrap(errInvalidRefresh)
}

var errUnauthorized = errors.New("unauthorized")

func unauthorizedError(reason string) error {
	return oops.Code(CodeUnauthorized).With("reason", reason).Wrap(errUnauthorized)
}

func notFoundError(accountID int64) error {
	return oops.Code(CodeNotFound).With("account_id", accountID).Wrap(ErrNotFound)
}

// fatalError wraps an infrastructure failure. The inner code, if any, is
// preserved for logs; KindOf still reports Fatal because no store code is a
// kind code.
func fatalError(operation string, err error) error {
	return oops.Code(CodeFatal).With("operation", operation).Wrap(err)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Input limits.
const (
	MaxEmailLength       = 254
	MinDisplayNameLength = 2
	MaxDisplayNameLength = 50
	MinPasswordLength    = 8
	MaxPasswordLength    = 128
)

// Account is a registered identity.
type Account struct {
	ID           int64
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
}

// ProfileUpdate carries the optional fields of a profile change. Nil
// fields are left untouched.
type ProfileUpdate struct {
	Email       *string
	DisplayName *string
}

// ValidateEmail checks that email is a bare RFC 5322 address.
// Matching is exact-string: no case folding or trimming is applied.
func ValidateEmail(email string) error {
	if email == "" {
		return validationError("email", "email is required")
	}
	if len(email) > MaxEmailLength {
		return validationError("email", "email must be at most %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return validationError("email", "email is not a valid address")
	}
	return nil
}

// ValidateDisplayName checks length and rejects control characters and
// surrounding whitespace.
func ValidateDisplayName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < MinDisplayNameLength {
		return validationError("displayName", "display name must be at least %d characters", MinDisplayNameLength)
	}
	if n > MaxDisplayNameLength {
		return validationError("displayName", "display name must be at most %d characters", MaxDisplayNameLength)
	}
	if strings.TrimSpace(name) != name {
		return validationError("displayName", "display name cannot start or end with whitespace")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return validationError("displayName", "display name cannot contain control characters")
		}
	}
	return nil
}

// ValidatePassword checks password length in characters.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength {
		return validationError("password", "password must be at least %d characters", MinPasswordLength)
	}
	if n > MaxPasswordLength {
		return validationError("password", "password must be at most %d characters", MaxPasswordLength)
	}
	return nil
}

// AccountRepository manages account persistence.
//
// Implementations participate in a transaction started by their
// Transactor when the context carries one.
type AccountRepository interface {
	// Create stores a new account and sets its ID.
	// Returns an error wrapping ErrEmailTaken or ErrDisplayNameTaken on
	// uniqueness violations.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id int64) (*Account, error)

	// GetByEmail retrieves an account by exact email. Returns ErrNotFound if absent.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// GetByDisplayName retrieves an account by exact display name.
	// Returns ErrNotFound if absent.
	GetByDisplayName(ctx context.Context, name string) (*Account, error)

	// Update persists email, display name and password hash.
	// Returns ErrNotFound if absent and the uniqueness sentinels on conflict.
	Update(ctx context.Context, account *Account) error

	// Delete removes an account. Returns ErrNotFound if absent.
	Delete(ctx context.Context, id int64) error
}

// Transactor runs fn inside a single store transaction. Repositories
// called with the context passed to fn join that transaction.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

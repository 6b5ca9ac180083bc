// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

package auth_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calmpulse/calmpulse/internal/auth"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want auth.Kind
	}{
		{"nil", nil, auth.KindFatal},
		{"plain error", errors.New("boom"), auth.KindFatal},
		{"unknown code", oops.Code("SOMETHING_ELSE").Errorf("x"), auth.KindFatal},
		{"validation", oops.Code(auth.CodeValidationFailed).Errorf("x"), auth.KindValidationFailed},
		{"conflict", oops.Code(auth.CodeConflict).Errorf("x"), auth.KindConflict},
		{"invalid credentials", oops.Code(auth.CodeInvalidCredentials).Errorf("x"), auth.KindInvalidCredentials},
		{"invalid token", oops.Code(auth.CodeInvalidToken).Errorf("x"), auth.KindInvalidToken},
		{"unauthorized", oops.Code(auth.CodeUnauthorized).Errorf("x"), auth.KindUnauthorized},
		{"not found", oops.Code(auth.CodeNotFound).Errorf("x"), auth.KindNotFound},
		{"fatal", oops.Code(auth.CodeFatal).Errorf("x"), auth.KindFatal},
		{"wrapped by fmt", fmt.Errorf("ctx: %w", oops.Code(auth.CodeConflict).Errorf("x")), auth.KindConflict},
		{"coded store error under fatal", oops.Code(auth.CodeFatal).Wrap(oops.Code("ACCOUNT_CREATE_FAILED").Errorf("x")), auth.KindFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.KindOf(tt.err))
		})
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "ValidationFailed", auth.KindValidationFailed.String())
	assert.Equal(t, "InvalidToken", auth.KindInvalidToken.String())
	assert.Equal(t, "Fatal", auth.Kind(99).String())
}

func TestReplayError(t *testing.T) {
	family := ulid.Make()
	err := oops.Code("REFRESH_REPLAYED").Wrap(&auth.ReplayError{FamilyID: family, AccountID: 3})

	assert.ErrorIs(t, err, auth.ErrRefreshReplayed)

	var replay *auth.ReplayError
	require.ErrorAs(t, err, &replay)
	assert.Equal(t, family, replay.FamilyID)
	assert.Equal(t, int64(3), replay.AccountID)
}

func TestFieldErrors(t *testing.T) {
	t.Run("validation error carries its field", func(t *testing.T) {
		err := auth.ValidateEmail("nope")
		fields := auth.FieldErrors(err)
		require.Len(t, fields, 1)
		assert.Equal(t, "email", fields[0].Field)
		assert.NotEmpty(t, fields[0].Message)
	})

	t.Run("no field yields nil", func(t *testing.T) {
		assert.Nil(t, auth.FieldErrors(oops.Errorf("x")))
		assert.Nil(t, auth.FieldErrors(errors.New("x")))
	})
}

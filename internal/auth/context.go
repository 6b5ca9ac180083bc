// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

package auth

import "context"

type accountIDKey struct{}

// WithAccountID returns a context carrying the verified caller's account ID.
func WithAccountID(ctx context.Context, accountID int64) context.Context {
	return context.WithValue(ctx, accountIDKey{}, accountID)
}

// AccountIDFromContext returns the verified caller's account ID, if any.
func AccountIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(accountIDKey{}).(int64)
	return id, ok && id > 0
}

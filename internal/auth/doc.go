// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

// Package auth provides the credential core of CalmPulse: password
// hashing, token signing, the refresh token ledger and the service that
// composes them.
//
// # Credentials
//
// An access token is a short-lived HS256 JWT verified by signature and
// clock alone (see Gate). A refresh token is a JWT envelope around a random
// secret; only the SHA-256 of the secret is persisted, as a RefreshRecord.
// Refresh secrets are single-use: RefreshLedger.Rotate revokes the
// presented record and records its successor in the same lineage.
//
// # Errors
//
// Service methods return oops errors whose code maps to a Kind via KindOf.
// Repository implementations return errors wrapping ErrNotFound,
// ErrEmailTaken or ErrDisplayNameTaken, which the service translates.
//
// # Services
//
// Services are created with constructors that validate dependencies:
//   - NewService - register, login, rotate, logout, account management
//   - NewRefreshLedger - refresh record lifecycle
//   - NewTokenCodec - token signing and verification
//   - NewGate - request authorization
package auth

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

package api

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/calmpulse/calmpulse/internal/auth"
)

// mockService is a mock for AuthService.
type mockService struct {
	mock.Mock
}

func (m *mockService) Register(ctx context.Context, email, displayName, password string) (*auth.Session, error) {
	args := m.Called(ctx, email, displayName, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Session), args.Error(1)
}

func (m *mockService) Login(ctx context.Context, email, password string) (*auth.Session, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Session), args.Error(1)
}

func (m *mockService) Rotate(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.TokenPair), args.Error(1)
}

func (m *mockService) Logout(ctx context.Context, accountID int64) (int64, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockService) DeleteAccount(ctx context.Context, accountID int64) error {
	args := m.Called(ctx, accountID)
	return args.Error(0)
}

func (m *mockService) WhoAmI(ctx context.Context, accountID int64) (*auth.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Account), args.Error(1)
}

func (m *mockService) UpdateProfile(ctx context.Context, accountID int64, upd auth.ProfileUpdate) (*auth.Account, error) {
	args := m.Called(ctx, accountID, upd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Account), args.Error(1)
}

// mockAuthorizer is a mock for Authorizer.
type mockAuthorizer struct {
	mock.Mock
}

func (m *mockAuthorizer) Authorize(header string) (int64, error) {
	args := m.Called(header)
	return args.Get(0).(int64), args.Error(1)
}

type observation struct {
	method string
	route  string
	status int
}

// recordingObserver collects ObserveHTTP calls.
type recordingObserver struct {
	mu   sync.Mutex
	seen []observation
}

func (o *recordingObserver) ObserveHTTP(method, route string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, observation{method, route, status})
}

func (o *recordingObserver) observations() []observation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]observation(nil), o.seen...)
}

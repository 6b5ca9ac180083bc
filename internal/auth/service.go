// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/calmpulse/calmpulse/pkg/errutil"
)

// TokenPair is an access token issued together with its refresh token.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Session is the result of a successful registration or login.
type Session struct {
	Account *Account
	Tokens  TokenPair
}

// Recorder receives auth outcomes for metrics.
type Recorder interface {
	// RecordAuthEvent counts one operation outcome. outcome is "ok" or a
	// Kind name.
	RecordAuthEvent(operation, outcome string)

	// RecordReplay counts one detected refresh token replay.
	RecordReplay()
}

type noopRecorder struct{}

func (noopRecorder) RecordAuthEvent(string, string) {}
func (noopRecorder) RecordReplay()                  {}

// Service provides authentication operations.
type Service struct {
	accounts AccountRepository
	ledger   *RefreshLedger
	tx       Transactor
	hasher   PasswordHasher
	codec    *TokenCodec

	// dummyHash is verified against when an email is unknown. It comes
	// from hasher so both login paths pay the configured cost.
	dummyHash string

	logger               *slog.Logger
	recorder             Recorder
	now                  func() time.Time
	revokeFamilyOnReplay bool
}

// ServiceOption configures a Service.
type ServiceOption func(*Service) error

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) error {
		if logger == nil {
			return oops.Errorf("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) error {
		if r == nil {
			return oops.Errorf("recorder cannot be nil")
		}
		s.recorder = r
		return nil
	}
}

// WithClock overrides the time source used for account timestamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) error {
		s.now = now
		return nil
	}
}

// WithReplayLineageRevocation makes a replayed refresh token revoke every
// live token in its rotation lineage, not only the stale record.
func WithReplayLineageRevocation(enabled bool) ServiceOption {
	return func(s *Service) error {
		s.revokeFamilyOnReplay = enabled
		return nil
	}
}

// NewService creates a new Service.
func NewService(
	accounts AccountRepository,
	ledger *RefreshLedger,
	tx Transactor,
	hasher PasswordHasher,
	codec *TokenCodec,
	opts ...ServiceOption,
) (*Service, error) {
	switch {
	case accounts == nil:
		return nil, oops.Errorf("accounts repository is required")
	case ledger == nil:
		return nil, oops.Errorf("refresh ledger is required")
	case tx == nil:
		return nil, oops.Errorf("transactor is required")
	case hasher == nil:
		return nil, oops.Errorf("password hasher is required")
	case codec == nil:
		return nil, oops.Errorf("token codec is required")
	}

	s := &Service{
		accounts: accounts,
		ledger:   ledger,
		tx:       tx,
		hasher:   hasher,
		codec:    codec,
		logger:   slog.Default(),
		recorder: noopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	// The plaintext is random and discarded, so the digest matches nothing.
	plaintext, err := GenerateRefreshSecret()
	if err != nil {
		return nil, oops.Code("AUTH_DUMMY_HASH_FAILED").Wrap(err)
	}
	if s.dummyHash, err = hasher.Hash(plaintext); err != nil {
		return nil, oops.Code("AUTH_DUMMY_HASH_FAILED").Wrap(err)
	}
	return s, nil
}

// Register creates an account and issues its first token pair.
func (s *Service) Register(ctx context.Context, email, displayName, password string) (*Session, error) {
	const op = "register"

	if err := firstError(
		ValidateEmail(email),
		ValidateDisplayName(displayName),
		ValidatePassword(password),
	); err != nil {
		return nil, s.finish(ctx, op, err)
	}

	if err := s.ensureUnclaimed(ctx, 0, &email, &displayName); err != nil {
		return nil, s.finish(ctx, op, err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, s.finish(ctx, op, fatalError("hash password", err))
	}

	account := &Account{
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}

	var pair *TokenPair
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.accounts.Create(ctx, account); err != nil {
			return translateWrite("create account", err)
		}
		var issueErr error
		pair, issueErr = s.issuePair(ctx, account.ID)
		return issueErr
	})
	if err != nil {
		return nil, s.finish(ctx, op, err)
	}

	s.logger.InfoContext(ctx, "account registered", "account_id", account.ID)
	_ = s.finish(ctx, op, nil)
	return &Session{Account: account, Tokens: *pair}, nil
}

// Login verifies credentials and issues a fresh token pair.
// Unknown emails and wrong passwords produce the same error and run the
// same password verification work.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	const op = "login"

	account, lookupErr := s.accounts.GetByEmail(ctx, email)

	var targetHash string
	var accountExists bool

	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, s.finish(ctx, op, fatalError("get account by email", lookupErr))
		}
		targetHash = s.dummyHash
	} else {
		targetHash = account.PasswordHash
		accountExists = true
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		// A corrupt stored digest is logged and answered like a wrong password.
		if accountExists {
			errutil.LogErrorContext(ctx, s.logger, "stored password hash unusable",
				fatalError("verify password", oops.With("account_id", account.ID).Wrap(verifyErr)))
		}
		return nil, s.finish(ctx, op, invalidCredentialsError())
	}

	if !accountExists || !valid {
		return nil, s.finish(ctx, op, invalidCredentialsError())
	}

	if s.hasher.NeedsUpgrade(account.PasswordHash) {
		s.upgradeHash(ctx, account, password)
	}

	pair, err := s.issuePair(ctx, account.ID)
	if err != nil {
		return nil, s.finish(ctx, op, err)
	}

	_ = s.finish(ctx, op, nil)
	return &Session{Account: account, Tokens: *pair}, nil
}

// upgradeHash rehashes with current parameters. Login succeeds regardless.
func (s *Service) upgradeHash(ctx context.Context, account *Account, password string) {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, "password hash upgrade failed", err)
		return
	}
	previous := account.PasswordHash
	account.PasswordHash = newHash
	if err := s.accounts.Update(ctx, account); err != nil {
		account.PasswordHash = previous
		errutil.LogErrorContext(ctx, s.logger, "password hash upgrade not persisted", err)
		return
	}
	s.logger.InfoContext(ctx, "password hash upgraded", "account_id", account.ID)
}

// Rotate exchanges a refresh token for a new pair. The presented token is
// single-use; exactly one of several concurrent attempts succeeds.
func (s *Service) Rotate(ctx context.Context, refreshToken string) (*TokenPair, error) {
	const op = "rotate"

	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, s.finish(ctx, op, err)
	}

	nextSecret, err := GenerateRefreshSecret()
	if err != nil {
		return nil, s.finish(ctx, op, fatalError("generate refresh secret", err))
	}

	rec, err := s.ledger.Rotate(ctx, claims.AccountID, claims.Secret, nextSecret, s.codec.RefreshTTL())
	if err != nil {
		return nil, s.finish(ctx, op, s.rotateFailure(ctx, err))
	}

	pair, err := s.signPair(rec.AccountID, nextSecret, rec.ExpiresAt)
	if err != nil {
		return nil, s.finish(ctx, op, err)
	}

	_ = s.finish(ctx, op, nil)
	return pair, nil
}

// rotateFailure classifies a ledger rotation error. It runs after the
// rotation transaction has rolled back, so lineage revocation persists.
func (s *Service) rotateFailure(ctx context.Context, err error) error {
	var replay *ReplayError
	switch {
	case errors.As(err, &replay):
		s.recorder.RecordReplay()
		s.logger.WarnContext(ctx, "refresh token replay detected",
			"account_id", replay.AccountID,
			"family_id", replay.FamilyID.String(),
		)
		if s.revokeFamilyOnReplay {
			n, revokeErr := s.ledger.RevokeFamily(ctx, replay.FamilyID)
			if revokeErr != nil {
				errutil.LogErrorContext(ctx, s.logger, "lineage revocation failed", revokeErr)
			} else {
				s.logger.InfoContext(ctx, "refresh lineage revoked",
					"family_id", replay.FamilyID.String(),
					"revoked", n,
				)
			}
		}
		return invalidTokenError(ErrRefreshReplayed)
	case errors.Is(err, ErrRefreshRevoked):
		return invalidTokenError(ErrRefreshRevoked)
	case errors.Is(err, ErrRefreshUnknown):
		return invalidTokenError(ErrRefreshUnknown)
	case errors.Is(err, ErrRefreshExpired):
		return invalidTokenError(ErrRefreshExpired)
	default:
		return fatalError("rotate refresh token", err)
	}
}

// Logout revokes every refresh token of the account and returns how many
// were live. Calling it with no live tokens is not an error.
func (s *Service) Logout(ctx context.Context, accountID int64) (int64, error) {
	n, err := s.ledger.RevokeAll(ctx, accountID)
	if err != nil {
		return 0, s.finish(ctx, "logout", fatalError("revoke refresh tokens", err))
	}
	s.logger.InfoContext(ctx, "refresh tokens revoked", "account_id", accountID, "revoked", n)
	_ = s.finish(ctx, "logout", nil)
	return n, nil
}

// DeleteAccount revokes the account's refresh tokens and removes it in one
// transaction. Deleting a missing account is not an error.
func (s *Service) DeleteAccount(ctx context.Context, accountID int64) error {
	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.ledger.RevokeAll(ctx, accountID); err != nil {
			return err
		}
		if err := s.accounts.Delete(ctx, accountID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return s.finish(ctx, "delete_account", fatalError("delete account", err))
	}
	s.logger.InfoContext(ctx, "account deleted", "account_id", accountID)
	return s.finish(ctx, "delete_account", nil)
}

// WhoAmI returns the caller's account. The access token may outlive the
// account, in which case NotFound is returned.
func (s *Service) WhoAmI(ctx context.Context, accountID int64) (*Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, s.finish(ctx, "whoami", notFoundError(accountID))
		}
		return nil, s.finish(ctx, "whoami", fatalError("get account by id", err))
	}
	return account, s.finish(ctx, "whoami", nil)
}

// UpdateProfile changes the account's email and/or display name after
// validating and checking uniqueness against other accounts.
func (s *Service) UpdateProfile(ctx context.Context, accountID int64, upd ProfileUpdate) (*Account, error) {
	const op = "update_profile"

	if upd.Email != nil {
		if err := ValidateEmail(*upd.Email); err != nil {
			return nil, s.finish(ctx, op, err)
		}
	}
	if upd.DisplayName != nil {
		if err := ValidateDisplayName(*upd.DisplayName); err != nil {
			return nil, s.finish(ctx, op, err)
		}
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, s.finish(ctx, op, notFoundError(accountID))
		}
		return nil, s.finish(ctx, op, fatalError("get account by id", err))
	}

	if err := s.ensureUnclaimed(ctx, accountID, upd.Email, upd.DisplayName); err != nil {
		return nil, s.finish(ctx, op, err)
	}

	if upd.Email != nil {
		account.Email = *upd.Email
	}
	if upd.DisplayName != nil {
		account.DisplayName = *upd.DisplayName
	}

	if err := s.accounts.Update(ctx, account); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, s.finish(ctx, op, notFoundError(accountID))
		}
		return nil, s.finish(ctx, op, translateWrite("update account", err))
	}

	s.logger.InfoContext(ctx, "profile updated", "account_id", accountID)
	return account, s.finish(ctx, op, nil)
}

// ensureUnclaimed fails with Conflict when email or displayName belongs to
// an account other than self. Nil fields are skipped.
func (s *Service) ensureUnclaimed(ctx context.Context, self int64, email, displayName *string) error {
	if email != nil {
		existing, err := s.accounts.GetByEmail(ctx, *email)
		switch {
		case err == nil && existing.ID != self:
			return conflictError("email", ErrEmailTaken)
		case err != nil && !errors.Is(err, ErrNotFound):
			return fatalError("get account by email", err)
		}
	}
	if displayName != nil {
		existing, err := s.accounts.GetByDisplayName(ctx, *displayName)
		switch {
		case err == nil && existing.ID != self:
			return conflictError("displayName", ErrDisplayNameTaken)
		case err != nil && !errors.Is(err, ErrNotFound):
			return fatalError("get account by display name", err)
		}
	}
	return nil
}

// issuePair records a new refresh lineage and signs both tokens.
func (s *Service) issuePair(ctx context.Context, accountID int64) (*TokenPair, error) {
	secret, err := GenerateRefreshSecret()
	if err != nil {
		return nil, fatalError("generate refresh secret", err)
	}
	rec, err := s.ledger.Record(ctx, accountID, secret, s.codec.RefreshTTL())
	if err != nil {
		return nil, fatalError("record refresh token", err)
	}
	return s.signPair(accountID, secret, rec.ExpiresAt)
}

func (s *Service) signPair(accountID int64, secret string, refreshExpiresAt time.Time) (*TokenPair, error) {
	access, accessExp, err := s.codec.SignAccess(accountID)
	if err != nil {
		return nil, fatalError("sign access token", err)
	}
	refresh, err := s.codec.SignRefresh(accountID, secret, refreshExpiresAt)
	if err != nil {
		return nil, fatalError("sign refresh token", err)
	}
	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}

// finish records the outcome of op and logs fatal failures.
func (s *Service) finish(ctx context.Context, op string, err error) error {
	if err == nil {
		s.recorder.RecordAuthEvent(op, "ok")
		return nil
	}
	kind := KindOf(err)
	s.recorder.RecordAuthEvent(op, kind.String())
	if kind == KindFatal {
		errutil.LogErrorContext(ctx, s.logger, op+" failed", err)
	} else {
		s.logger.DebugContext(ctx, op+" rejected", "kind", kind.String())
	}
	return err
}

// translateWrite maps store uniqueness sentinels to Conflict and anything
// else to Fatal.
func translateWrite(operation string, err error) error {
	switch {
	case errors.Is(err, ErrEmailTaken):
		return conflictError("email", ErrEmailTaken)
	case errors.Is(err, ErrDisplayNameTaken):
		return conflictError("displayName", ErrDisplayNameTaken)
	default:
		return fatalError(operation, err)
	}
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opentrusty/provisioner/internal/audit"
	"github.com/opentrusty/provisioner/internal/authz"
	"github.com/opentrusty/provisioner/internal/id"
)

// Service provides identity-related business logic
type Service struct {
	repo               UserRepository
	hasher             *PasswordHasher
	auditLogger        audit.Logger
	lockoutMaxAttempts int
	lockoutDuration    time.Duration
}

// NewService creates a new identity service
func NewService(
	repo UserRepository,
	hasher *PasswordHasher,
	auditLogger audit.Logger,
	lockoutMaxAttempts int,
	lockoutDuration time.Duration,
) *Service {
	return &Service{
		repo:               repo,
		hasher:             hasher,
		auditLogger:        auditLogger,
		lockoutMaxAttempts: lockoutMaxAttempts,
		lockoutDuration:    lockoutDuration,
	}
}

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateIdentity creates a new identity. An empty credential creates a
// placeholder that cannot sign in; disabled marks it inactive until
// UpdateIdentity enables it.
func (s *Service) CreateIdentity(ctx context.Context, email, credential string, disabled bool) (*User, error) {
	email = NormalizeEmail(email)
	if !ValidEmail(email) {
		return nil, ErrInvalidEmail
	}

	var passwordHash string
	if credential != "" {
		if !isStrongPassword(credential) {
			return nil, ErrWeakPassword
		}
		h, err := s.hasher.Hash(credential)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		passwordHash = h
	}

	if existing, err := s.repo.GetByEmail(ctx, email); err == nil && existing != nil {
		return nil, ErrUserAlreadyExists
	} else if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("failed to look up identity: %w", err)
	}

	now := time.Now()
	user := &User{
		ID:            id.NewUUIDv7(),
		Email:         email,
		Disabled:      disabled,
		EmailVerified: false,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrUserAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeUserCreated,
		ActorID:  user.ID,
		Resource: "identity",
		Metadata: map[string]any{
			audit.AttrEmail: email,
			"disabled":      disabled,
		},
	})

	if passwordHash != "" {
		if err := s.setPasswordHash(ctx, user.ID, passwordHash); err != nil {
			return nil, err
		}
	}

	return user, nil
}

// UpdateIdentity gives a placeholder identity its first credential,
// enables it and marks its email verified. An identity that is enabled or
// already holds a credential is left untouched and ErrAccountActive is
// returned; of concurrent callers at most one succeeds.
func (s *Service) UpdateIdentity(ctx context.Context, userID, credential string) (*User, error) {
	if !isStrongPassword(credential) {
		return nil, ErrWeakPassword
	}

	passwordHash, err := s.hasher.Hash(credential)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	err = s.repo.ActivatePlaceholder(ctx, &Credentials{
		UserID:       userID,
		PasswordHash: passwordHash,
		UpdatedAt:    time.Now(),
	})
	switch {
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrAccountActive):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("failed to activate identity: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeCredentialSet,
		ActorID:  userID,
		Resource: "identity",
		Metadata: map[string]any{"activated": true},
	})

	return s.GetUser(ctx, userID)
}

func (s *Service) setPasswordHash(ctx context.Context, userID, passwordHash string) error {
	credentials := &Credentials{
		UserID:       userID,
		PasswordHash: passwordHash,
		UpdatedAt:    time.Now(),
	}
	if err := s.repo.SetCredentials(ctx, credentials); err != nil {
		return fmt.Errorf("failed to set credentials: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeCredentialSet,
		ActorID:  userID,
		Resource: "identity",
	})
	return nil
}

// VerifyCredential authenticates an identity with email and password.
// Repeated failures lock the account for the configured duration.
func (s *Service) VerifyCredential(ctx context.Context, email, password string) (*User, error) {
	email = NormalizeEmail(email)

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			Resource: email,
			Metadata: map[string]any{audit.AttrReason: "user_not_found"},
		})
		return nil, ErrInvalidCredentials
	}

	if user.Disabled {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			ActorID:  user.ID,
			Resource: "login",
			Metadata: map[string]any{audit.AttrReason: "disabled"},
		})
		return nil, ErrAccountDisabled
	}

	if user.LockedUntil != nil && user.LockedUntil.After(time.Now()) {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			ActorID:  user.ID,
			Resource: "login",
			Metadata: map[string]any{audit.AttrReason: "locked_out"},
		})
		return nil, ErrAccountLocked
	}

	credentials, err := s.repo.GetCredentials(ctx, user.ID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	valid, err := s.hasher.Verify(password, credentials.PasswordHash)
	if err != nil || !valid {
		attempts := user.FailedLoginAttempts + 1
		var lockedUntil *time.Time

		if attempts >= s.lockoutMaxAttempts {
			until := time.Now().Add(s.lockoutDuration)
			lockedUntil = &until
			s.auditLogger.Log(ctx, audit.Event{
				Type:     audit.TypeUserLocked,
				ActorID:  user.ID,
				Resource: "login",
				Metadata: map[string]any{audit.AttrAttempts: attempts},
			})
		}

		_ = s.repo.UpdateLockout(ctx, user.ID, attempts, lockedUntil)

		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			ActorID:  user.ID,
			Resource: "login",
			Metadata: map[string]any{
				audit.AttrReason:   "invalid_password",
				audit.AttrAttempts: attempts,
			},
		})

		return nil, ErrInvalidCredentials
	}

	if user.FailedLoginAttempts > 0 || user.LockedUntil != nil {
		_ = s.repo.UpdateLockout(ctx, user.ID, 0, nil)
		user.FailedLoginAttempts = 0
		user.LockedUntil = nil
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeLoginSuccess,
		ActorID:  user.ID,
		Resource: "login",
	})

	return user, nil
}

// GetByEmail retrieves a user by email. Returns ErrUserNotFound if absent.
func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.GetByEmail(ctx, NormalizeEmail(email))
}

// GetUser retrieves a user by ID
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// SetMetadata replaces the transitional role hints of a user
func (s *Service) SetMetadata(ctx context.Context, userID string, md Metadata) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	user.Metadata = md
	user.UpdatedAt = time.Now()
	return s.repo.Update(ctx, user)
}

// GetPrincipal loads a user as an authorization principal
func (s *Service) GetPrincipal(ctx context.Context, principalID string) (*authz.Principal, error) {
	user, err := s.GetUser(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, authz.ErrPrincipalNotFound
		}
		return nil, err
	}
	return &authz.Principal{
		ID:         user.ID,
		Email:      user.Email,
		Roles:      user.Metadata.Roles,
		IsAdmin:    user.Metadata.IsAdmin,
		HasCompany: user.Metadata.HasCompany,
	}, nil
}

// ValidEmail performs a structural check of a normalized email address
func ValidEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	return len(email) > 3 && len(email) < 255 && at > 0 && at < len(email)-1
}

func isStrongPassword(password string) bool {
	return len(password) >= 8
}

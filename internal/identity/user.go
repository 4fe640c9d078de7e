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
	"time"
)

// Domain errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password does not meet security requirements")
	ErrAccountLocked      = errors.New("account is locked")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrAccountActive      = errors.New("account is already active")
)

// User represents an authenticatable identity.
//
// A user created ahead of invitation confirmation is a placeholder: it is
// Disabled, has no credential and cannot sign in until UpdateIdentity
// supplies one.
type User struct {
	ID                  string
	Email               string
	Disabled            bool
	EmailVerified       bool
	Metadata            Metadata
	FailedLoginAttempts int
	LockedUntil         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Metadata carries transitional role hints for principals that predate
// their company membership row. It is only consulted when no membership
// exists.
type Metadata struct {
	Roles      []string `json:"roles,omitempty"`
	IsAdmin    *bool    `json:"is_admin,omitempty"`
	HasCompany bool     `json:"has_company,omitempty"`
}

// Credentials represents user authentication credentials
type Credentials struct {
	UserID       string
	PasswordHash string
	UpdatedAt    time.Time
}

// UserRepository defines the interface for user persistence
type UserRepository interface {
	// Create creates a new user identity. Returns ErrUserAlreadyExists when
	// the email is taken.
	Create(ctx context.Context, user *User) error

	// SetCredentials creates or replaces the credentials of a user
	SetCredentials(ctx context.Context, credentials *Credentials) error

	// ActivatePlaceholder stores the first credential of a disabled
	// identity and enables it, as one conditional write. Returns
	// ErrAccountActive when the identity is enabled or already holds a
	// credential.
	ActivatePlaceholder(ctx context.Context, credentials *Credentials) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByEmail retrieves a user by normalized email
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Update updates user state and metadata
	Update(ctx context.Context, user *User) error

	// UpdateLockout updates user lockout status
	UpdateLockout(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error

	// GetCredentials retrieves user credentials
	GetCredentials(ctx context.Context, userID string) (*Credentials, error)
}

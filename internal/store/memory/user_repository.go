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

package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/opentrusty/provisioner/internal/identity"
)

// UserRepository implements identity.UserRepository
type UserRepository struct {
	mu          sync.Mutex
	users       map[string]*identity.User
	credentials map[string]*identity.Credentials
}

// NewUserRepository creates a new in-memory user repository
func NewUserRepository() *UserRepository {
	return &UserRepository{
		users:       make(map[string]*identity.User),
		credentials: make(map[string]*identity.Credentials),
	}
}

func cloneUser(u *identity.User) *identity.User {
	out := *u
	out.LockedUntil = clonePtr(u.LockedUntil)
	out.Metadata.Roles = slices.Clone(u.Metadata.Roles)
	out.Metadata.IsAdmin = clonePtr(u.Metadata.IsAdmin)
	return &out
}

// Create stores a user. Emails are unique.
func (r *UserRepository) Create(ctx context.Context, user *identity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == user.Email {
			return identity.ErrUserAlreadyExists
		}
	}
	r.users[user.ID] = cloneUser(user)
	return nil
}

// SetCredentials creates or replaces credentials
func (r *UserRepository) SetCredentials(ctx context.Context, credentials *identity.Credentials) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[credentials.UserID]; !ok {
		return identity.ErrUserNotFound
	}
	cp := *credentials
	r.credentials[credentials.UserID] = &cp
	return nil
}

// ActivatePlaceholder sets the first credential of a disabled user and
// enables it
func (r *UserRepository) ActivatePlaceholder(ctx context.Context, credentials *identity.Credentials) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[credentials.UserID]
	if !ok {
		return identity.ErrUserNotFound
	}
	if _, has := r.credentials[u.ID]; has || !u.Disabled {
		return identity.ErrAccountActive
	}

	cp := *credentials
	r.credentials[u.ID] = &cp
	u.Disabled = false
	u.EmailVerified = true
	u.UpdatedAt = credentials.UpdatedAt
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*identity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return cloneUser(u), nil
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, identity.ErrUserNotFound
}

// Update replaces user state
func (r *UserRepository) Update(ctx context.Context, user *identity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; !ok {
		return identity.ErrUserNotFound
	}
	r.users[user.ID] = cloneUser(user)
	return nil
}

// UpdateLockout updates lockout counters
func (r *UserRepository) UpdateLockout(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return identity.ErrUserNotFound
	}
	u.FailedLoginAttempts = failedAttempts
	u.LockedUntil = clonePtr(lockedUntil)
	return nil
}

// GetCredentials retrieves credentials
func (r *UserRepository) GetCredentials(ctx context.Context, userID string) (*identity.Credentials, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.credentials[userID]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	cp := *c
	return &cp, nil
}

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
	"testing"
	"time"

	"github.com/opentrusty/provisioner/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates conditional placeholder activation in the in-memory user store.
// Scope: Unit Test
// Security: Credentials of enabled accounts cannot be replaced through activation
// Expected: A disabled user without a credential is activated once with its lockout counter intact; later calls and enabled users yield ErrAccountActive.
// Test Case ID: MEM-05
func TestMemory_UserRepository_ActivatePlaceholder(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository()
	now := time.Now()

	require.NoError(t, repo.Create(ctx, &identity.User{ID: "u-1", Email: "alice@example.com", Disabled: true}))
	require.NoError(t, repo.Create(ctx, &identity.User{ID: "u-2", Email: "bob@example.com"}))
	require.NoError(t, repo.UpdateLockout(ctx, "u-1", 2, nil))

	require.NoError(t, repo.ActivatePlaceholder(ctx, &identity.Credentials{UserID: "u-1", PasswordHash: "first", UpdatedAt: now}))

	u, err := repo.GetByID(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, u.Disabled)
	assert.True(t, u.EmailVerified)
	assert.Equal(t, 2, u.FailedLoginAttempts)

	err = repo.ActivatePlaceholder(ctx, &identity.Credentials{UserID: "u-1", PasswordHash: "second", UpdatedAt: now})
	assert.ErrorIs(t, err, identity.ErrAccountActive)
	creds, err := repo.GetCredentials(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "first", creds.PasswordHash)

	err = repo.ActivatePlaceholder(ctx, &identity.Credentials{UserID: "u-2", PasswordHash: "takeover", UpdatedAt: now})
	assert.ErrorIs(t, err, identity.ErrAccountActive)
	_, err = repo.GetCredentials(ctx, "u-2")
	assert.ErrorIs(t, err, identity.ErrUserNotFound)

	err = repo.ActivatePlaceholder(ctx, &identity.Credentials{UserID: "ghost", PasswordHash: "x", UpdatedAt: now})
	assert.ErrorIs(t, err, identity.ErrUserNotFound)
}

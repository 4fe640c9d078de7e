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

//go:build integration
// +build integration

package postgres

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opentrusty/provisioner/internal/company"
	"github.com/opentrusty/provisioner/internal/id"
	"github.com/opentrusty/provisioner/internal/identity"
	"github.com/opentrusty/provisioner/internal/invitation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	cfg := Config{
		URL:          os.Getenv("DATABASE_URL"),
		Host:         "localhost",
		Port:         "5432",
		User:         "provisioner",
		Password:     "provisioner_dev_password",
		Database:     "provisioner",
		SSLMode:      "disable",
		MaxOpenConns: 5,
		MaxIdleConns: 1,
	}

	db, err := New(context.Background(), cfg)
	if err != nil {
		t.Skipf("Skipping integration test: failed to connect to database: %v", err)
	}
	t.Cleanup(db.Close)

	require.NoError(t, db.MigrateUp())
	return db
}

// TestPurpose: Validates that the database enforces one unresolved invitation per email and conditional transitions.
// Scope: Database Integration Test
// Security: Race-free state changes and duplicate provisioning (CWE-362)
// Expected: The partial unique index rejects a second unresolved invitation; transitions only apply from expected statuses.
// Test Case ID: PG-01
// Metadata:
//   - Category: Invitation
//   - Priority: High
//   - Tags: concurrency, data-integrity
func TestInvitationRepository_Lifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewInvitationRepository(db)

	email := "pg-" + id.NewUUIDv7() + "@example.com"
	now := time.Now().UTC().Truncate(time.Microsecond)
	newInv := func() *invitation.Invitation {
		token, err := id.NewToken(32)
		require.NoError(t, err)
		return &invitation.Invitation{
			ID: id.NewUUIDv7(), Email: email, CompanyName: "Acme Co", Role: "tech",
			Token: token, Status: invitation.StatusPending, CreatedBy: "issuer",
			CreatedAt: now, ExpiresAt: now.Add(invitation.DefaultTTL), UpdatedAt: now,
		}
	}

	first := newInv()
	require.NoError(t, repo.Create(ctx, first))
	t.Cleanup(func() { db.pool.Exec(ctx, "DELETE FROM invitations WHERE email = $1", email) })

	assert.ErrorIs(t, repo.Create(ctx, newInv()), invitation.ErrDuplicateInvitation)

	_, err := repo.Transition(ctx, invitation.Transition{
		ID: first.ID, From: []invitation.Status{invitation.StatusEmailConfirmed},
		To: invitation.StatusAdminApproved, At: now,
	})
	assert.ErrorIs(t, err, invitation.ErrStatusConflict)

	_, err = repo.Transition(ctx, invitation.Transition{
		ID: first.ID, From: []invitation.Status{invitation.StatusPending},
		To: invitation.StatusExpired, At: now, ExpiresBefore: &now,
	})
	assert.ErrorIs(t, err, invitation.ErrStatusConflict, "not past expires_at yet")

	confirmedAt := now.Add(time.Minute)
	updated, err := repo.Transition(ctx, invitation.Transition{
		ID: first.ID, From: []invitation.Status{invitation.StatusPending},
		To: invitation.StatusEmailConfirmed, At: confirmedAt, EmailConfirmedAt: &confirmedAt,
	})
	require.NoError(t, err)
	assert.Equal(t, invitation.StatusEmailConfirmed, updated.Status)
	require.NotNil(t, updated.EmailConfirmedAt)
	assert.True(t, confirmedAt.Equal(*updated.EmailConfirmedAt))
	assert.Nil(t, updated.CompanyID)

	byToken, err := repo.GetByToken(ctx, first.Token)
	require.NoError(t, err)
	assert.Equal(t, first.ID, byToken.ID)

	_, err = repo.Transition(ctx, invitation.Transition{
		ID: "missing", From: []invitation.Status{invitation.StatusPending}, To: invitation.StatusExpired, At: now,
	})
	assert.ErrorIs(t, err, invitation.ErrNotFound)

	rejectedBy := "approver"
	_, err = repo.Transition(ctx, invitation.Transition{
		ID: first.ID, From: []invitation.Status{invitation.StatusEmailConfirmed},
		To: invitation.StatusRejected, At: now, RejectedAt: &now, RejectedBy: &rejectedBy,
	})
	require.NoError(t, err)

	reset, err := repo.Reset(ctx, first.ID, []invitation.Status{invitation.StatusRejected}, now, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, invitation.StatusPending, reset.Status)
	assert.Nil(t, reset.RejectedBy)

	list, err := repo.ListByEmail(ctx, email, []invitation.Status{invitation.StatusPending})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

// TestPurpose: Validates company and membership constraints in the database.
// Scope: Database Integration Test
// Security: Tenant integrity
// Expected: Company names are unique case-insensitively and a principal holds at most one membership.
// Test Case ID: PG-02
// Metadata:
//   - Category: Company
//   - Priority: High
//   - Tags: multi-tenancy, data-integrity
func TestCompanyRepository_Constraints(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	users := NewUserRepository(db)
	companies := NewCompanyRepository(db)
	memberships := NewMembershipRepository(db)

	now := time.Now()
	user := &identity.User{ID: id.NewUUIDv7(), Email: "pg-" + id.NewUUIDv7() + "@example.com", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, users.Create(ctx, user))
	t.Cleanup(func() { db.pool.Exec(ctx, "DELETE FROM users WHERE id = $1", user.ID) })

	dup := *user
	dup.ID = id.NewUUIDv7()
	assert.ErrorIs(t, users.Create(ctx, &dup), identity.ErrUserAlreadyExists)

	name := "Company " + id.NewUUIDv7()
	c := &company.Company{ID: id.NewUUIDv7(), Name: name, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, companies.Create(ctx, c))
	t.Cleanup(func() { db.pool.Exec(ctx, "DELETE FROM companies WHERE id = $1", c.ID) })

	other := &company.Company{ID: id.NewUUIDv7(), Name: strings.ToUpper(name), CreatedAt: now, UpdatedAt: now}
	assert.ErrorIs(t, companies.Create(ctx, other), company.ErrCompanyExists)

	found, err := companies.GetByName(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, c.ID, found.ID)

	m := &company.Membership{ID: id.NewUUIDv7(), PrincipalID: user.ID, CompanyID: c.ID, Role: "tech", CreatedAt: now}
	require.NoError(t, memberships.Create(ctx, m))

	second := &company.Membership{ID: id.NewUUIDv7(), PrincipalID: user.ID, CompanyID: c.ID, Role: "viewer", CreatedAt: now}
	assert.ErrorIs(t, memberships.Create(ctx, second), company.ErrAlreadyMember)

	list, err := memberships.ListByPrincipal(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "tech", list[0].Role)
}

// TestPurpose: Validates that a placeholder is activated at most once.
// Scope: Database Integration Test
// Security: Account takeover through credential replacement (CWE-640)
// Expected: Of concurrent activations exactly one succeeds; an enabled user is never given a new credential and lockout counters survive.
// Test Case ID: PG-03
// Metadata:
//   - Category: Identity
//   - Priority: High
//   - Tags: concurrency, authentication
func TestUserRepository_ActivatePlaceholder(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(db)

	now := time.Now()
	placeholder := &identity.User{ID: id.NewUUIDv7(), Email: "pg-" + id.NewUUIDv7() + "@example.com", Disabled: true, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, users.Create(ctx, placeholder))
	t.Cleanup(func() { db.pool.Exec(ctx, "DELETE FROM users WHERE id = $1", placeholder.ID) })
	require.NoError(t, users.UpdateLockout(ctx, placeholder.ID, 2, nil))

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = users.ActivatePlaceholder(ctx, &identity.Credentials{
				UserID:       placeholder.ID,
				PasswordHash: fmt.Sprintf("hash-%d", i),
				UpdatedAt:    now,
			})
		}(i)
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			require.Equal(t, -1, winner, "only one activation may succeed")
			winner = i
			continue
		}
		assert.ErrorIs(t, err, identity.ErrAccountActive)
	}
	require.NotEqual(t, -1, winner)

	creds, err := users.GetCredentials(ctx, placeholder.ID)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("hash-%d", winner), creds.PasswordHash)

	stored, err := users.GetByID(ctx, placeholder.ID)
	require.NoError(t, err)
	assert.False(t, stored.Disabled)
	assert.True(t, stored.EmailVerified)
	assert.Equal(t, 2, stored.FailedLoginAttempts)

	active := &identity.User{ID: id.NewUUIDv7(), Email: "pg-" + id.NewUUIDv7() + "@example.com", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, users.Create(ctx, active))
	t.Cleanup(func() { db.pool.Exec(ctx, "DELETE FROM users WHERE id = $1", active.ID) })
	assert.ErrorIs(t, users.ActivatePlaceholder(ctx, &identity.Credentials{UserID: active.ID, PasswordHash: "x", UpdatedAt: now}), identity.ErrAccountActive)

	assert.ErrorIs(t, users.ActivatePlaceholder(ctx, &identity.Credentials{UserID: id.NewUUIDv7(), PasswordHash: "x", UpdatedAt: now}), identity.ErrUserNotFound)
}

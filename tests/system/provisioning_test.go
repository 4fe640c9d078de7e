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

// Package system provides integration tests that run the invitation engine
// against a real PostgreSQL database.
//
// Test Execution:
//
//	INTEGRATION_TEST=true go test -v ./tests/system/...
//
// Prerequisites:
//
//	docker compose up -d postgres
//
// Test Categories:
//   - SYS-ISO-*: Company isolation tests
//   - SYS-CON-*: Concurrency tests
package system

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/opentrusty/provisioner/internal/audit"
	"github.com/opentrusty/provisioner/internal/authz"
	"github.com/opentrusty/provisioner/internal/company"
	"github.com/opentrusty/provisioner/internal/id"
	"github.com/opentrusty/provisioner/internal/identity"
	"github.com/opentrusty/provisioner/internal/invitation"
	"github.com/opentrusty/provisioner/internal/store/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "CorrectHorse42"

// testDB is the shared database connection for integration tests
var testDB *postgres.DB

// TestMain sets up and tears down the test database connection
func TestMain(m *testing.M) {
	if os.Getenv("INTEGRATION_TEST") != "true" {
		os.Exit(0)
	}

	ctx := context.Background()
	db, err := postgres.New(ctx, postgres.Config{
		URL:          os.Getenv("DATABASE_URL"),
		Host:         getEnvOrDefault("DB_HOST", "localhost"),
		Port:         getEnvOrDefault("DB_PORT", "5432"),
		User:         getEnvOrDefault("DB_USER", "provisioner"),
		Password:     getEnvOrDefault("DB_PASSWORD", "provisioner_dev_password"),
		Database:     getEnvOrDefault("DB_NAME", "provisioner"),
		SSLMode:      "disable",
		MaxOpenConns: 10,
		MaxIdleConns: 2,
	})
	if err != nil {
		panic("failed to connect to test database: " + err.Error())
	}
	if err := db.MigrateUp(); err != nil {
		panic("failed to migrate test database: " + err.Error())
	}
	testDB = db

	code := m.Run()

	testDB.Close()
	os.Exit(code)
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// world is a provisioning stack over PostgreSQL with one admin and two
// companies, each with an owner. Names are unique per test run.
type world struct {
	ctx        context.Context
	engine     *invitation.Engine
	identities *identity.Service
	companies  *company.Service

	adminID  string
	ownerA   string
	ownerB   string
	companyA *company.Company
	companyB *company.Company
	suffix   string
}

func newWorld(t *testing.T) *world {
	t.Helper()
	ctx := context.Background()
	suffix := id.NewUUIDv7()[24:]

	auditLogger := audit.NewSlogLogger()
	hasher := identity.NewPasswordHasher(16*1024, 1, 1, 16, 32)
	identities := identity.NewService(postgres.NewUserRepository(testDB), hasher, auditLogger, 5, 15*time.Minute)
	companies := company.NewService(postgres.NewCompanyRepository(testDB), postgres.NewMembershipRepository(testDB), auditLogger)

	w := &world{ctx: ctx, identities: identities, companies: companies, suffix: suffix}
	var userIDs, companyIDs []string
	t.Cleanup(func() {
		pool := testDB.Pool()
		pool.Exec(ctx, "DELETE FROM invitations WHERE email LIKE $1", "%+"+suffix+"@example.com")
		pool.Exec(ctx, "DELETE FROM companies WHERE id = ANY($1)", companyIDs)
		pool.Exec(ctx, "DELETE FROM users WHERE email LIKE $1", "%+"+suffix+"@example.com")
		pool.Exec(ctx, "DELETE FROM users WHERE id = ANY($1)", userIDs)
	})

	member := func(local, companyName, role string) (string, *company.Company) {
		u, err := identities.CreateIdentity(ctx, w.email(local), testPassword, false)
		require.NoError(t, err)
		userIDs = append(userIDs, u.ID)
		c, err := companies.EnsureCompany(ctx, companyName+" "+suffix, u.ID)
		require.NoError(t, err)
		companyIDs = append(companyIDs, c.ID)
		_, err = companies.EnsureMembership(ctx, u.ID, c.ID, role, audit.ActorSystemBootstrap)
		require.NoError(t, err)
		return u.ID, c
	}

	w.adminID, _ = member("admin", "Platform", "admin")
	w.ownerA, w.companyA = member("owner-a", "Company A", "owner")
	w.ownerB, w.companyB = member("owner-b", "Company B", "owner")

	w.engine = invitation.NewEngine(
		postgres.NewInvitationRepository(testDB),
		authz.NewService(companies, identities),
		identities,
		companies,
		nil,
		auditLogger,
	)
	return w
}

func (w *world) email(local string) string {
	return local + "+" + w.suffix + "@example.com"
}

func (w *world) confirmedInvitation(t *testing.T, issuerID string, c *company.Company, local string) *invitation.Invitation {
	t.Helper()
	inv, err := w.engine.CreateInvitation(w.ctx, invitation.CreateRequest{
		IssuerID:    issuerID,
		Email:       w.email(local),
		CompanyName: c.Name,
		Role:        "tech",
	})
	require.NoError(t, err)
	conf, err := w.engine.ConfirmEmail(w.ctx, inv.Token, testPassword)
	require.NoError(t, err)
	return conf.Invitation
}

// =============================================================================
// COMPANY ISOLATION TESTS
// =============================================================================

// TestPurpose: Validates that an owner cannot invite into, or review invitations of, another company.
// Scope: Integration Test
// Security: Multi-tenancy boundary enforcement (prevents cross-company provisioning)
// Expected: Owner B is denied creating into Company A and approving Company A's invitation; owner A succeeds.
// Test Case ID: SYS-ISO-01
func TestSystem_CompanyIsolation(t *testing.T) {
	w := newWorld(t)

	_, err := w.engine.CreateInvitation(w.ctx, invitation.CreateRequest{
		IssuerID:    w.ownerB,
		Email:       w.email("intruder"),
		CompanyName: w.companyA.Name,
		Role:        "tech",
	})
	assert.ErrorIs(t, err, invitation.ErrPermissionDenied,
		"SYS-ISO-01 SECURITY: owner B MUST NOT invite into company A")

	inv := w.confirmedInvitation(t, w.ownerA, w.companyA, "alice")

	_, err = w.engine.Approve(w.ctx, w.ownerB, inv.ID)
	assert.ErrorIs(t, err, invitation.ErrPermissionDenied,
		"SYS-ISO-01 SECURITY: owner B MUST NOT approve company A invitations")

	_, err = w.engine.GetInvitation(w.ctx, w.ownerB, inv.ID)
	assert.ErrorIs(t, err, invitation.ErrPermissionDenied)

	approved, err := w.engine.Approve(w.ctx, w.ownerA, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invitation.StatusAdminApproved, approved.Status)

	invitee, err := w.identities.GetByEmail(w.ctx, w.email("alice"))
	require.NoError(t, err)
	done, err := w.engine.HandleSignIn(w.ctx, invitee.ID, invitee.Email)
	require.NoError(t, err)
	require.NotNil(t, done)
	assert.Equal(t, invitation.StatusCompleted, done.Status)

	memberships, err := w.companies.ListMemberships(w.ctx, invitee.ID)
	require.NoError(t, err)
	require.Len(t, memberships, 1)
	assert.Equal(t, w.companyA.ID, memberships[0].CompanyID)
}

// =============================================================================
// CONCURRENCY TESTS
// =============================================================================

// TestPurpose: Validates that concurrent approvals against PostgreSQL produce exactly one transition.
// Scope: Integration Test
// Security: Race-free state changes (CWE-362)
// Expected: Exactly one approver succeeds; every other gets ErrInvalidState.
// Test Case ID: SYS-CON-01
func TestSystem_ConcurrentApproval(t *testing.T) {
	w := newWorld(t)
	inv := w.confirmedInvitation(t, w.ownerA, w.companyA, "bob")

	approvers := []string{w.adminID, w.ownerA, w.adminID, w.ownerA}
	errs := make([]error, len(approvers))

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, approver := range approvers {
		wg.Add(1)
		go func(i int, approver string) {
			defer wg.Done()
			<-start
			_, errs[i] = w.engine.Approve(w.ctx, approver, inv.ID)
		}(i, approver)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, invitation.ErrInvalidState)
	}
	assert.Equal(t, 1, succeeded, "SYS-CON-01: exactly one approval must win")
}

// TestPurpose: Validates that concurrent completions create exactly one membership.
// Scope: Integration Test
// Security: Idempotent provisioning side effects (CWE-362)
// Expected: The invitation ends completed and the invitee holds a single membership.
// Test Case ID: SYS-CON-02
func TestSystem_ConcurrentCompletion(t *testing.T) {
	w := newWorld(t)
	inv := w.confirmedInvitation(t, w.ownerA, w.companyA, "carol")
	_, err := w.engine.Approve(w.ctx, w.adminID, inv.ID)
	require.NoError(t, err)

	errs := make([]error, 4)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = w.engine.CompleteOnFirstSignIn(w.ctx, inv.ID)
		}(i)
	}
	close(start)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, invitation.ErrInvalidState)
		}
	}

	invitee, err := w.identities.GetByEmail(w.ctx, w.email("carol"))
	require.NoError(t, err)
	memberships, err := w.companies.ListMemberships(w.ctx, invitee.ID)
	require.NoError(t, err)
	assert.Len(t, memberships, 1, "SYS-CON-02: completion must not duplicate memberships")

	final, err := w.engine.GetInvitation(w.ctx, w.adminID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invitation.StatusCompleted, final.Status)
}

// TestPurpose: Validates that concurrent creation for the same email yields one unresolved invitation.
// Scope: Integration Test
// Security: Duplicate provisioning prevention (CWE-362)
// Expected: One create succeeds; the rest fail with ErrDuplicateInvitation via the partial unique index.
// Test Case ID: SYS-CON-03
func TestSystem_ConcurrentCreate(t *testing.T) {
	w := newWorld(t)

	errs := make([]error, 4)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = w.engine.CreateInvitation(w.ctx, invitation.CreateRequest{
				IssuerID:    w.adminID,
				Email:       w.email("dave"),
				CompanyName: w.companyB.Name,
				Role:        "viewer",
			})
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, invitation.ErrDuplicateInvitation)
	}
	assert.Equal(t, 1, succeeded)
}

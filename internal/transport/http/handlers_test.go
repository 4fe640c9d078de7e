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

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opentrusty/provisioner/internal/audit"
	"github.com/opentrusty/provisioner/internal/authz"
	"github.com/opentrusty/provisioner/internal/company"
	"github.com/opentrusty/provisioner/internal/identity"
	"github.com/opentrusty/provisioner/internal/invitation"
	"github.com/opentrusty/provisioner/internal/session"
	"github.com/opentrusty/provisioner/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPassword = "CorrectHorse42"
	adminEmail   = "admin@platform.example.com"
	ownerEmail   = "owner@acme.example.com"
	inviteeEmail = "alice@example.com"
	testSecret   = "0123456789abcdef0123456789abcdef"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type apiFixture struct {
	router     *chi.Mux
	issuer     *session.Issuer
	identities *identity.Service
	clock      *testClock

	adminToken string
	ownerToken string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()

	auditLogger := audit.NewSlogLogger()
	hasher := identity.NewPasswordHasher(16*1024, 1, 1, 16, 32)
	identities := identity.NewService(memory.NewUserRepository(), hasher, auditLogger, 5, 15*time.Minute)
	companies := company.NewService(memory.NewCompanyRepository(), memory.NewMembershipRepository(), auditLogger)
	authorizer := authz.NewService(companies, identities)

	bootstrap := identity.NewBootstrapService(identities, companies, auditLogger)
	require.NoError(t, bootstrap.Bootstrap(ctx, identity.BootstrapConfig{
		Email:       adminEmail,
		Password:    testPassword,
		CompanyName: "Platform",
	}))
	admin, err := identities.GetByEmail(ctx, adminEmail)
	require.NoError(t, err)

	owner, err := identities.CreateIdentity(ctx, ownerEmail, testPassword, false)
	require.NoError(t, err)
	acme, err := companies.EnsureCompany(ctx, "Acme Co", admin.ID)
	require.NoError(t, err)
	_, err = companies.EnsureMembership(ctx, owner.ID, acme.ID, "owner", admin.ID)
	require.NoError(t, err)

	clock := &testClock{now: time.Now().UTC()}
	engine := invitation.NewEngine(
		memory.NewInvitationRepository(), authorizer, identities, companies, nil, auditLogger,
		invitation.WithClock(clock.Now),
	)

	issuer, err := session.NewIssuer([]byte(testSecret), "provisioner-test", time.Hour)
	require.NoError(t, err)

	f := &apiFixture{
		router:     NewRouter(NewHandler(engine, identities, issuer), nil, 0),
		issuer:     issuer,
		identities: identities,
		clock:      clock,
	}
	f.adminToken, _, err = issuer.Issue(admin.ID, admin.Email)
	require.NoError(t, err)
	f.ownerToken, _, err = issuer.Issue(owner.ID, owner.Email)
	require.NoError(t, err)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (f *apiFixture) createInvitation(t *testing.T, token, email, role string) CreateInvitationResponse {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/v1/invitations", token, CreateInvitationRequest{
		Email: email, CompanyName: "Acme Co", Role: role,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[CreateInvitationResponse](t, w)
}

// TestPurpose: Validates that the health endpoint is public and reports the service name.
// Scope: Unit Test
// Security: None
// Expected: Returns HTTP 200 with status healthy.
// Test Case ID: API-01
func TestAPI_HealthCheck(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]string](t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, serviceName, body["service"])
}

// TestPurpose: Validates that protected invitation routes require a valid bearer token.
// Scope: Unit Test
// Security: Authentication boundary (CWE-306)
// Expected: Missing, malformed, forged and expired tokens all return HTTP 401.
// Test Case ID: API-02
func TestAPI_BearerAuthentication(t *testing.T) {
	f := newAPIFixture(t)

	forger, err := session.NewIssuer([]byte("ffffffffffffffffffffffffffffffff"), "provisioner-test", time.Hour)
	require.NoError(t, err)
	forged, _, err := forger.Issue("someone", "someone@example.com")
	require.NoError(t, err)

	stale := f.issuer.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) })
	expired, _, err := stale.Issue("someone", "someone@example.com")
	require.NoError(t, err)

	cases := map[string]string{
		"Missing":     "",
		"WrongScheme": "Basic dXNlcjpwYXNz",
		"Garbage":     "Bearer not-a-token",
		"Forged":      "Bearer " + forged,
		"Expired":     "Bearer " + expired,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/invitations", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			w := httptest.NewRecorder()
			f.router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}

	w := f.do(t, http.MethodGet, "/api/v1/invitations", f.ownerToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestPurpose: Validates the invitation flow end to end over HTTP.
// Scope: Integration Test
// Security: Membership is only granted after confirmation and approval
// Expected: Create, validate, confirm, approve and sign-in succeed in order and sign-in reports the completed invitation.
// Test Case ID: API-03
func TestAPI_InvitationFlow(t *testing.T) {
	f := newAPIFixture(t)

	created := f.createInvitation(t, f.ownerToken, inviteeEmail, "tech")
	assert.NotEmpty(t, created.Token)
	assert.Equal(t, "pending", created.Status)

	w := f.do(t, http.MethodGet, "/api/v1/invitations/validate?token="+url.QueryEscape(created.Token), "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	validated := decode[InvitationResponse](t, w)
	assert.Equal(t, created.InvitationID, validated.ID)
	assert.Equal(t, inviteeEmail, validated.Email)
	assert.NotContains(t, w.Body.String(), created.Token, "token must not be echoed back")

	// The placeholder identity cannot sign in before confirmation
	w = f.do(t, http.MethodPost, "/api/v1/auth/sign-in", "", SignInRequest{Email: inviteeEmail, Password: testPassword})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/invitations/confirm", "", ConfirmInvitationRequest{Token: created.Token, Password: testPassword})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	confirmed := decode[map[string]string](t, w)
	assert.NotEmpty(t, confirmed["principal_id"])
	assert.Equal(t, "email_confirmed", confirmed["status"])

	w = f.do(t, http.MethodPost, "/api/v1/invitations/"+created.InvitationID+"/approve", f.ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "admin_approved", decode[InvitationResponse](t, w).Status)

	w = f.do(t, http.MethodPost, "/api/v1/auth/sign-in", "", SignInRequest{Email: inviteeEmail, Password: testPassword})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	signIn := decode[SignInResponse](t, w)
	assert.Equal(t, "Bearer", signIn.TokenType)
	assert.Equal(t, confirmed["principal_id"], signIn.PrincipalID)
	assert.Equal(t, created.InvitationID, signIn.CompletedInvitationID)

	sess, err := f.issuer.Parse(signIn.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, signIn.PrincipalID, sess.PrincipalID)

	w = f.do(t, http.MethodGet, "/api/v1/invitations/"+created.InvitationID, f.ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	final := decode[InvitationResponse](t, w)
	assert.Equal(t, "completed", final.Status)
	assert.NotNil(t, final.CompletedAt)

	// A second sign-in does not complete anything again
	w = f.do(t, http.MethodPost, "/api/v1/auth/sign-in", "", SignInRequest{Email: inviteeEmail, Password: testPassword})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[SignInResponse](t, w).CompletedInvitationID)

	// The new tech may not invite an owner
	w = f.do(t, http.MethodPost, "/api/v1/invitations", signIn.AccessToken, CreateInvitationRequest{
		Email: "bob@example.com", CompanyName: "Acme Co", Role: "owner",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, invitation.KindPermissionDenied, decode[map[string]string](t, w)["code"])
}

// TestPurpose: Validates the mapping of engine error kinds to HTTP status codes.
// Scope: Unit Test
// Security: Error responses do not leak internal state
// Expected: Invalid input 400, permission denied 403, not found 404, expired 400, invalid state and duplicates 409.
// Test Case ID: API-04
func TestAPI_ErrorMapping(t *testing.T) {
	f := newAPIFixture(t)
	created := f.createInvitation(t, f.ownerToken, inviteeEmail, "tech")

	t.Run("MalformedBody", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/invitations", bytes.NewReader([]byte(`{invalid_json}`)))
		req.Header.Set("Authorization", "Bearer "+f.ownerToken)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("InvalidEmail", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/invitations", f.ownerToken, CreateInvitationRequest{
			Email: "not-an-email", CompanyName: "Acme Co", Role: "tech",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, invitation.KindInvalidInput, decode[map[string]string](t, w)["code"])
	})

	t.Run("RoleAboveIssuer", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/invitations", f.ownerToken, CreateInvitationRequest{
			Email: "carol@example.com", CompanyName: "Acme Co", Role: "owner",
		})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Duplicate", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/invitations", f.adminToken, CreateInvitationRequest{
			Email: inviteeEmail, CompanyName: "Acme Co", Role: "tech",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, invitation.KindDuplicateInvitation, decode[map[string]string](t, w)["code"])
	})

	t.Run("UnknownInvitation", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/invitations/does-not-exist", f.adminToken, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("UnknownToken", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/invitations/validate?token=unknown", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("MissingToken", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/invitations/validate", "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("ApproveBeforeConfirmation", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/invitations/"+created.InvitationID+"/approve", f.adminToken, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, invitation.KindInvalidState, decode[map[string]string](t, w)["code"])
	})

	t.Run("ResetByOwner", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/invitations/"+created.InvitationID+"/reset", f.ownerToken, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Expired", func(t *testing.T) {
		f.clock.Advance(invitation.DefaultTTL + time.Hour)
		w := f.do(t, http.MethodPost, "/api/v1/invitations/confirm", "", ConfirmInvitationRequest{Token: created.Token, Password: testPassword})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, invitation.KindExpired, decode[map[string]string](t, w)["code"])
	})
}

// TestPurpose: Validates rejection and administrative reset over HTTP.
// Scope: Unit Test
// Security: Only administrators may revive a rejected invitation
// Expected: The owner rejects a pending invitation, the admin resets it to pending and it validates again.
// Test Case ID: API-05
func TestAPI_RejectAndReset(t *testing.T) {
	f := newAPIFixture(t)
	created := f.createInvitation(t, f.ownerToken, inviteeEmail, "viewer")

	w := f.do(t, http.MethodPost, "/api/v1/invitations/"+created.InvitationID+"/reject", f.ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rejected := decode[InvitationResponse](t, w)
	assert.Equal(t, "rejected", rejected.Status)
	require.NotNil(t, rejected.RejectedBy)

	w = f.do(t, http.MethodGet, "/api/v1/invitations/validate?token="+url.QueryEscape(created.Token), "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, invitation.KindAlreadyUsed, decode[map[string]string](t, w)["code"])

	w = f.do(t, http.MethodPost, "/api/v1/invitations/"+created.InvitationID+"/reset", f.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	reset := decode[InvitationResponse](t, w)
	assert.Equal(t, "pending", reset.Status)
	assert.Nil(t, reset.RejectedBy)

	w = f.do(t, http.MethodGet, "/api/v1/invitations/validate?token="+url.QueryEscape(created.Token), "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestPurpose: Validates list visibility and query parameter validation.
// Scope: Unit Test
// Security: Cross-tenant data exposure (CWE-200)
// Expected: Admins see every invitation, owners only their own; malformed filters return 400.
// Test Case ID: API-06
func TestAPI_ListInvitations(t *testing.T) {
	f := newAPIFixture(t)
	f.createInvitation(t, f.ownerToken, "one@example.com", "tech")
	f.createInvitation(t, f.adminToken, "two@example.com", "owner")

	type listBody struct {
		Invitations []InvitationResponse `json:"invitations"`
		Count       int                  `json:"count"`
	}

	w := f.do(t, http.MethodGet, "/api/v1/invitations", f.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[listBody](t, w).Count)

	w = f.do(t, http.MethodGet, "/api/v1/invitations", f.ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	own := decode[listBody](t, w)
	require.Equal(t, 1, own.Count)
	assert.Equal(t, "one@example.com", own.Invitations[0].Email)

	w = f.do(t, http.MethodGet, "/api/v1/invitations?status=pending,rejected&limit=1", f.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[listBody](t, w).Count)

	w = f.do(t, http.MethodGet, "/api/v1/invitations?status=archived", f.adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/invitations?limit=-1", f.adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestPurpose: Validates sign-in input handling and credential failures.
// Scope: Unit Test
// Security: Credential verification without account enumeration (CWE-204)
// Expected: Missing fields 400; wrong password and unknown email both 401 with the same message.
// Test Case ID: API-07
func TestAPI_SignIn_Failures(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/auth/sign-in", "", SignInRequest{Email: ownerEmail})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	wrong := f.do(t, http.MethodPost, "/api/v1/auth/sign-in", "", SignInRequest{Email: ownerEmail, Password: "WrongHorse42"})
	unknown := f.do(t, http.MethodPost, "/api/v1/auth/sign-in", "", SignInRequest{Email: "ghost@example.com", Password: testPassword})
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())

	w = f.do(t, http.MethodPost, "/api/v1/auth/sign-in", "", SignInRequest{Email: ownerEmail, Password: testPassword})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode[SignInResponse](t, w).AccessToken)
}

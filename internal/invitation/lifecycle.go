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

package invitation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/opentrusty/provisioner/internal/audit"
	"github.com/opentrusty/provisioner/internal/authz"
	"github.com/opentrusty/provisioner/internal/company"
	"github.com/opentrusty/provisioner/internal/id"
	"github.com/opentrusty/provisioner/internal/identity"
	"github.com/opentrusty/provisioner/internal/notify"
	"github.com/opentrusty/provisioner/internal/rbac"
)

// tokenBytes is the entropy of an invitation token
const tokenBytes = 32

// CreateRequest describes a new invitation
type CreateRequest struct {
	IssuerID    string
	Email       string
	CompanyName string
	Role        string
	Message     string
}

// Confirmation is the outcome of ConfirmEmail
type Confirmation struct {
	Invitation  *Invitation
	PrincipalID string
}

// CreateInvitation issues a pending invitation after checking that the
// issuer may invite the requested role. Non-admin issuers may only invite
// into their own company. A disabled identity placeholder is provisioned
// for the invitee if none exists; an invitee that already belongs to a
// company is refused.
func (e *Engine) CreateInvitation(ctx context.Context, req CreateRequest) (inv *Invitation, err error) {
	ctx, done := e.start(ctx, "CreateInvitation")
	defer done(&err)

	email := identity.NormalizeEmail(req.Email)
	companyName := strings.TrimSpace(req.CompanyName)
	role := rbac.Normalize(req.Role)

	if !identity.ValidEmail(email) {
		return nil, fmt.Errorf("%w: invited email is not a valid address", ErrInvalidInput)
	}
	if companyName == "" {
		return nil, fmt.Errorf("%w: company name is required", ErrInvalidInput)
	}

	grant, err := e.resolve(ctx, "create", req.IssuerID)
	if err != nil {
		return nil, err
	}
	if !authz.CanInvite(grant, role) {
		return nil, e.deny(ctx, "create", req.IssuerID, fmt.Sprintf("%q may not invite %q", grant.Role, role))
	}

	target, err := e.companies.FindByName(ctx, companyName)
	if err != nil && !errors.Is(err, company.ErrCompanyNotFound) {
		return nil, collaboratorErr(CollaboratorCompany, "find company", err)
	}
	if !grant.IsAdmin() {
		if (target == nil && grant.CompanyID != "") || (target != nil && !grant.InCompany(target.ID)) {
			return nil, e.deny(ctx, "create", req.IssuerID, "company outside the issuer's scope")
		}
	}

	if err := e.ensureNoUnresolved(ctx, email, ""); err != nil {
		return nil, err
	}
	if err := e.ensureInvitee(ctx, email); err != nil {
		return nil, err
	}

	token, err := id.NewToken(tokenBytes)
	if err != nil {
		return nil, err
	}

	now := e.now()
	inv = &Invitation{
		ID:          id.NewUUIDv7(),
		Email:       email,
		CompanyName: companyName,
		Role:        role,
		Token:       token,
		Status:      StatusPending,
		Message:     strings.TrimSpace(req.Message),
		CreatedBy:   req.IssuerID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(e.ttl),
		UpdatedAt:   now,
	}
	if target != nil {
		companyID := target.ID
		inv.CompanyID = &companyID
		inv.CompanyName = target.Name
	}

	if err := e.repo.Create(ctx, inv); err != nil {
		if errors.Is(err, ErrDuplicateInvitation) {
			return nil, ErrDuplicateInvitation
		}
		return nil, collaboratorErr(CollaboratorStore, "create invitation", err)
	}

	e.inst.Transition(ctx, string(StatusPending))
	e.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeInvitationCreated,
		CompanyID: stringValue(inv.CompanyID),
		ActorID:   req.IssuerID,
		Resource:  inv.ID,
		Metadata: map[string]any{
			audit.AttrInvitationID: inv.ID,
			audit.AttrEmail:        inv.Email,
			audit.AttrRole:         inv.Role,
			"company_name":         inv.CompanyName,
		},
	})
	e.notify(ctx, inv, notify.KindInvitationCreated)

	return inv, nil
}

// ensureInvitee provisions a disabled identity for email unless one
// already exists. An existing identity holding a membership cannot be
// invited since a principal belongs to at most one company.
func (e *Engine) ensureInvitee(ctx context.Context, email string) error {
	user, err := e.identities.GetByEmail(ctx, email)
	if errors.Is(err, identity.ErrUserNotFound) {
		_, err = e.identities.CreateIdentity(ctx, email, "", true)
		if err != nil && !errors.Is(err, identity.ErrUserAlreadyExists) {
			return collaboratorErr(CollaboratorIdentity, "create placeholder identity", err)
		}
		return nil
	}
	if err != nil {
		return collaboratorErr(CollaboratorIdentity, "find identity", err)
	}

	memberships, err := e.companies.ListMemberships(ctx, user.ID)
	if err != nil {
		return collaboratorErr(CollaboratorCompany, "list memberships", err)
	}
	if len(memberships) > 0 {
		return fmt.Errorf("%w: invitee already belongs to a company", ErrInvalidInput)
	}
	return nil
}

// ValidateToken returns the pending invitation bound to token. An
// invitation found past its expiry is moved to expired before ErrExpired
// is returned.
func (e *Engine) ValidateToken(ctx context.Context, token string) (inv *Invitation, err error) {
	ctx, done := e.start(ctx, "ValidateToken")
	defer done(&err)

	return e.validate(ctx, token)
}

func (e *Engine) validate(ctx context.Context, token string) (*Invitation, error) {
	if token == "" {
		return nil, ErrNotFound
	}

	inv, err := e.repo.GetByToken(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, collaboratorErr(CollaboratorStore, "get invitation by token", err)
	}

	if inv.ExpiredAt(e.now()) {
		if err := e.expire(ctx, inv); err != nil {
			return nil, err
		}
		return nil, ErrExpired
	}

	switch inv.Status {
	case StatusPending:
		return inv, nil
	case StatusExpired:
		return nil, ErrExpired
	default:
		return nil, ErrAlreadyUsed
	}
}

// ConfirmEmail binds the credential to the invitee identity and moves the
// invitation from pending to email_confirmed. A placeholder identity is
// activated with the credential. An identity that is already active keeps
// its credential and must authenticate with it instead.
func (e *Engine) ConfirmEmail(ctx context.Context, token, credential string) (c *Confirmation, err error) {
	ctx, done := e.start(ctx, "ConfirmEmail")
	defer done(&err)

	inv, err := e.validate(ctx, token)
	if err != nil {
		return nil, err
	}
	if credential == "" {
		return nil, fmt.Errorf("%w: credential is required", ErrInvalidInput)
	}

	user, err := e.claimIdentity(ctx, inv, credential)
	if err != nil {
		return nil, err
	}

	now := e.now()
	updated, err := e.repo.Transition(ctx, Transition{
		ID:               inv.ID,
		From:             []Status{StatusPending},
		To:               StatusEmailConfirmed,
		At:               now,
		EmailConfirmedAt: &now,
	})
	if errors.Is(err, ErrStatusConflict) {
		if cur, gerr := e.repo.GetByID(ctx, inv.ID); gerr == nil && cur.Status == StatusExpired {
			return nil, ErrExpired
		}
		return nil, ErrAlreadyUsed
	}
	if err != nil {
		return nil, collaboratorErr(CollaboratorStore, "confirm invitation", err)
	}

	e.recordTransition(ctx, updated, StatusPending, audit.TypeInvitationEmailConfirmed, user.ID)
	return &Confirmation{Invitation: updated, PrincipalID: user.ID}, nil
}

// claimIdentity returns the invitee identity once credential is bound to
// it. Activation is conditional in the store, so of concurrent
// confirmations at most one sets a credential.
func (e *Engine) claimIdentity(ctx context.Context, inv *Invitation, credential string) (*identity.User, error) {
	user, err := e.identities.GetByEmail(ctx, inv.Email)
	if errors.Is(err, identity.ErrUserNotFound) {
		user, err = e.identities.CreateIdentity(ctx, inv.Email, "", true)
		if errors.Is(err, identity.ErrUserAlreadyExists) {
			user, err = e.identities.GetByEmail(ctx, inv.Email)
		}
	}
	if err != nil {
		return nil, collaboratorErr(CollaboratorIdentity, "provision identity", err)
	}

	if !user.Disabled {
		verified, err := e.identities.VerifyCredential(ctx, inv.Email, credential)
		if err != nil {
			return nil, e.deny(ctx, "confirm", user.ID, "existing identity did not authenticate")
		}
		return verified, nil
	}

	activated, err := e.identities.UpdateIdentity(ctx, user.ID, credential)
	switch {
	case errors.Is(err, identity.ErrWeakPassword):
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	case errors.Is(err, identity.ErrAccountActive):
		return nil, fmt.Errorf("%w: identity already claimed", ErrAlreadyUsed)
	case err != nil:
		return nil, collaboratorErr(CollaboratorIdentity, "set credential", err)
	}
	return activated, nil
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

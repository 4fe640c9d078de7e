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

	"github.com/opentrusty/provisioner/internal/audit"
	"github.com/opentrusty/provisioner/internal/company"
	"github.com/opentrusty/provisioner/internal/identity"
)

// CompleteOnFirstSignIn grants the invitee their company membership and
// moves the invitation from admin_approved to completed. It runs only
// after approval, so no membership ever exists before an approver acted.
//
// Calling it on a completed invitation is a no-op that returns the stored
// row; nothing is re-created and completed_at keeps its first value.
func (e *Engine) CompleteOnFirstSignIn(ctx context.Context, invitationID string) (inv *Invitation, err error) {
	ctx, done := e.start(ctx, "CompleteOnFirstSignIn")
	defer done(&err)

	inv, err = e.get(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	return e.complete(ctx, inv, "")
}

// HandleSignIn is the sign-in hook. It completes the approved invitation
// addressed to email, if any, and returns nil when there is none.
func (e *Engine) HandleSignIn(ctx context.Context, principalID, email string) (inv *Invitation, err error) {
	ctx, done := e.start(ctx, "HandleSignIn")
	defer done(&err)

	approved, err := e.repo.ListByEmail(ctx, identity.NormalizeEmail(email), []Status{StatusAdminApproved})
	if err != nil {
		return nil, collaboratorErr(CollaboratorStore, "list approved invitations", err)
	}
	if len(approved) == 0 {
		return nil, nil
	}
	return e.complete(ctx, approved[0], principalID)
}

// complete performs the completion side effects. When principalID is set
// the invitee identity must match it.
func (e *Engine) complete(ctx context.Context, inv *Invitation, principalID string) (*Invitation, error) {
	switch inv.Status {
	case StatusCompleted:
		return inv, nil
	case StatusAdminApproved:
	default:
		return nil, fmt.Errorf("%w: cannot complete from %s", ErrInvalidState, inv.Status)
	}

	user, err := e.identities.GetByEmail(ctx, inv.Email)
	if err != nil {
		return nil, collaboratorErr(CollaboratorIdentity, "find invitee identity", err)
	}
	if principalID != "" && user.ID != principalID {
		return nil, fmt.Errorf("%w: invitation addressed to another principal", ErrPermissionDenied)
	}

	c, err := e.companyFor(ctx, inv, user.ID)
	if err != nil {
		return nil, err
	}

	grantedBy := audit.ActorSystem
	if inv.AdminApprovedBy != nil {
		grantedBy = *inv.AdminApprovedBy
	}
	_, err = e.companies.EnsureMembership(ctx, user.ID, c.ID, inv.Role, grantedBy)
	if errors.Is(err, company.ErrAlreadyMember) {
		return nil, fmt.Errorf("%w: invitee joined another company", ErrInvalidState)
	}
	if err != nil {
		return nil, collaboratorErr(CollaboratorCompany, "ensure membership", err)
	}

	now := e.now()
	companyID := c.ID
	updated, err := e.repo.Transition(ctx, Transition{
		ID:          inv.ID,
		From:        []Status{StatusAdminApproved},
		To:          StatusCompleted,
		At:          now,
		CompletedAt: &now,
		CompanyID:   &companyID,
	})
	if errors.Is(err, ErrStatusConflict) {
		cur, gerr := e.get(ctx, inv.ID)
		if gerr == nil && cur.Status == StatusCompleted {
			return cur, nil
		}
		return nil, fmt.Errorf("%w: invitation changed concurrently", ErrInvalidState)
	}
	if err != nil {
		return nil, collaboratorErr(CollaboratorStore, "complete invitation", err)
	}

	e.recordTransition(ctx, updated, StatusAdminApproved, audit.TypeInvitationCompleted, user.ID)
	return updated, nil
}

// companyFor returns the company the invitee joins, creating it by name
// when the invitation is not bound to one yet.
func (e *Engine) companyFor(ctx context.Context, inv *Invitation, createdBy string) (*company.Company, error) {
	if inv.HasCompany() {
		c, err := e.companies.GetCompany(ctx, *inv.CompanyID)
		if err != nil {
			return nil, collaboratorErr(CollaboratorCompany, "get company", err)
		}
		return c, nil
	}
	c, err := e.companies.EnsureCompany(ctx, inv.CompanyName, createdBy)
	if err != nil {
		return nil, collaboratorErr(CollaboratorCompany, "ensure company", err)
	}
	return c, nil
}

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
	"slices"

	"github.com/opentrusty/provisioner/internal/audit"
	"github.com/opentrusty/provisioner/internal/authz"
	"github.com/opentrusty/provisioner/internal/notify"
)

// loadForReview authorizes an approver against an invitation. Admins may
// review anything; other approvers only invitations bound to their own
// company or not bound to any company yet.
func (e *Engine) loadForReview(ctx context.Context, op, approverID, invitationID string) (*authz.Grant, *Invitation, error) {
	grant, err := e.resolve(ctx, op, approverID)
	if err != nil {
		return nil, nil, err
	}
	if !authz.CanApprove(grant) {
		return nil, nil, e.deny(ctx, op, approverID, fmt.Sprintf("%q may not review invitations", grant.Role))
	}

	inv, err := e.get(ctx, invitationID)
	if err != nil {
		return nil, nil, err
	}
	if !grant.IsAdmin() && inv.HasCompany() && !grant.InCompany(*inv.CompanyID) {
		return nil, nil, e.deny(ctx, op, approverID, "invitation belongs to another company")
	}

	if inv.ExpiredAt(e.now()) {
		if err := e.expire(ctx, inv); err != nil {
			return nil, nil, err
		}
		return nil, nil, ErrExpired
	}
	if inv.Status == StatusExpired {
		return nil, nil, ErrExpired
	}
	return grant, inv, nil
}

// Approve moves an email_confirmed invitation to admin_approved. Of two
// concurrent approvals exactly one succeeds; the other gets ErrInvalidState.
func (e *Engine) Approve(ctx context.Context, approverID, invitationID string) (inv *Invitation, err error) {
	ctx, done := e.start(ctx, "Approve")
	defer done(&err)

	_, inv, err = e.loadForReview(ctx, "approve", approverID, invitationID)
	if err != nil {
		return nil, err
	}
	if inv.Status != StatusEmailConfirmed {
		return nil, fmt.Errorf("%w: cannot approve from %s", ErrInvalidState, inv.Status)
	}

	now := e.now()
	updated, err := e.repo.Transition(ctx, Transition{
		ID:              inv.ID,
		From:            []Status{StatusEmailConfirmed},
		To:              StatusAdminApproved,
		At:              now,
		AdminApprovedAt: &now,
		AdminApprovedBy: &approverID,
	})
	if errors.Is(err, ErrStatusConflict) {
		return nil, fmt.Errorf("%w: invitation changed concurrently", ErrInvalidState)
	}
	if err != nil {
		return nil, collaboratorErr(CollaboratorStore, "approve invitation", err)
	}

	e.recordTransition(ctx, updated, StatusEmailConfirmed, audit.TypeInvitationApproved, approverID)
	e.notify(ctx, updated, notify.KindInvitationApproved)
	return updated, nil
}

// Reject moves a pending or email_confirmed invitation to rejected.
func (e *Engine) Reject(ctx context.Context, approverID, invitationID string) (inv *Invitation, err error) {
	ctx, done := e.start(ctx, "Reject")
	defer done(&err)

	_, inv, err = e.loadForReview(ctx, "reject", approverID, invitationID)
	if err != nil {
		return nil, err
	}
	from := []Status{StatusPending, StatusEmailConfirmed}
	if !slices.Contains(from, inv.Status) {
		return nil, fmt.Errorf("%w: cannot reject from %s", ErrInvalidState, inv.Status)
	}

	now := e.now()
	updated, err := e.repo.Transition(ctx, Transition{
		ID:         inv.ID,
		From:       from,
		To:         StatusRejected,
		At:         now,
		RejectedAt: &now,
		RejectedBy: &approverID,
	})
	if errors.Is(err, ErrStatusConflict) {
		return nil, fmt.Errorf("%w: invitation changed concurrently", ErrInvalidState)
	}
	if err != nil {
		return nil, collaboratorErr(CollaboratorStore, "reject invitation", err)
	}

	e.recordTransition(ctx, updated, inv.Status, audit.TypeInvitationRejected, approverID)
	e.notify(ctx, updated, notify.KindInvitationRejected)
	return updated, nil
}

// Reset returns an expired or rejected invitation to pending with a fresh
// validity window. Only admins may reset, and only while no other
// unresolved invitation exists for the same email. The token is kept.
func (e *Engine) Reset(ctx context.Context, adminID, invitationID string) (inv *Invitation, err error) {
	ctx, done := e.start(ctx, "Reset")
	defer done(&err)

	grant, err := e.resolve(ctx, "reset", adminID)
	if err != nil {
		return nil, err
	}
	if !grant.IsAdmin() {
		return nil, e.deny(ctx, "reset", adminID, "only admins may reset invitations")
	}

	inv, err = e.get(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if inv.ExpiredAt(e.now()) {
		if err := e.expire(ctx, inv); err != nil {
			return nil, err
		}
	}
	if !slices.Contains(resettable, inv.Status) {
		return nil, fmt.Errorf("%w: cannot reset from %s", ErrInvalidState, inv.Status)
	}
	if err := e.ensureNoUnresolved(ctx, inv.Email, inv.ID); err != nil {
		return nil, err
	}

	now := e.now()
	updated, err := e.repo.Reset(ctx, inv.ID, resettable, now, now.Add(e.ttl))
	switch {
	case errors.Is(err, ErrStatusConflict):
		return nil, fmt.Errorf("%w: invitation changed concurrently", ErrInvalidState)
	case errors.Is(err, ErrDuplicateInvitation):
		return nil, ErrDuplicateInvitation
	case err != nil:
		return nil, collaboratorErr(CollaboratorStore, "reset invitation", err)
	}

	e.inst.Transition(ctx, string(StatusPending))
	e.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeInvitationReset,
		CompanyID: stringValue(updated.CompanyID),
		ActorID:   adminID,
		Resource:  updated.ID,
		Metadata: map[string]any{
			audit.AttrInvitationID: updated.ID,
			audit.AttrEmail:        updated.Email,
			audit.AttrFromStatus:   string(inv.Status),
			audit.AttrToStatus:     string(updated.Status),
		},
	})
	e.notify(ctx, updated, notify.KindInvitationCreated)
	return updated, nil
}

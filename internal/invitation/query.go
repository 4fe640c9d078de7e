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

	"github.com/opentrusty/provisioner/internal/authz"
	"github.com/opentrusty/provisioner/internal/identity"
	"github.com/opentrusty/provisioner/internal/rbac"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ListInvitations returns the invitations visible to viewerID. Admins see
// every invitation; everyone else only the ones they issued.
func (e *Engine) ListInvitations(ctx context.Context, viewerID string, filter Filter) (list []*Invitation, err error) {
	ctx, done := e.start(ctx, "ListInvitations")
	defer done(&err)

	grant, err := e.resolve(ctx, "list", viewerID)
	if err != nil {
		return nil, err
	}
	if !rbac.CanViewAllCompanyActivity(grant.Role) {
		filter.CreatedBy = viewerID
	}
	if filter.Email != "" {
		filter.Email = identity.NormalizeEmail(filter.Email)
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	list, err = e.repo.List(ctx, filter)
	if err != nil {
		return nil, collaboratorErr(CollaboratorStore, "list invitations", err)
	}
	return list, nil
}

// GetInvitation returns one invitation if viewerID may see it
func (e *Engine) GetInvitation(ctx context.Context, viewerID, invitationID string) (inv *Invitation, err error) {
	ctx, done := e.start(ctx, "GetInvitation")
	defer done(&err)

	grant, err := e.resolve(ctx, "get", viewerID)
	if err != nil {
		return nil, err
	}
	inv, err = e.get(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if !authz.CanView(grant, inv.CreatedBy) {
		return nil, e.deny(ctx, "get", viewerID, "invitation issued by another principal")
	}
	return inv, nil
}

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

// Package memory provides in-process repositories. State lives for the
// lifetime of the process; each repository serializes access with a mutex
// so conditional updates behave like their SQL counterparts.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/opentrusty/provisioner/internal/invitation"
)

// InvitationRepository implements invitation.Repository
type InvitationRepository struct {
	mu   sync.Mutex
	rows map[string]*invitation.Invitation
}

// NewInvitationRepository creates a new in-memory invitation repository
func NewInvitationRepository() *InvitationRepository {
	return &InvitationRepository{rows: make(map[string]*invitation.Invitation)}
}

func cloneInvitation(in *invitation.Invitation) *invitation.Invitation {
	out := *in
	out.CompanyID = clonePtr(in.CompanyID)
	out.EmailConfirmedAt = clonePtr(in.EmailConfirmedAt)
	out.AdminApprovedAt = clonePtr(in.AdminApprovedAt)
	out.AdminApprovedBy = clonePtr(in.AdminApprovedBy)
	out.CompletedAt = clonePtr(in.CompletedAt)
	out.RejectedAt = clonePtr(in.RejectedAt)
	out.RejectedBy = clonePtr(in.RejectedBy)
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// hasUnresolvedLocked reports whether another unresolved invitation exists
// for email. Caller holds r.mu.
func (r *InvitationRepository) hasUnresolvedLocked(email, exceptID string) bool {
	for _, row := range r.rows {
		if row.ID != exceptID && row.Email == email && row.Status.Unresolved() {
			return true
		}
	}
	return false
}

// Create stores a new invitation
func (r *InvitationRepository) Create(ctx context.Context, inv *invitation.Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[inv.ID]; ok {
		return fmt.Errorf("invitation %s already exists", inv.ID)
	}
	for _, row := range r.rows {
		if row.Token == inv.Token {
			return fmt.Errorf("invitation token collision")
		}
	}
	if inv.Status.Unresolved() && r.hasUnresolvedLocked(inv.Email, inv.ID) {
		return invitation.ErrDuplicateInvitation
	}

	r.rows[inv.ID] = cloneInvitation(inv)
	return nil
}

// GetByID retrieves an invitation by ID
func (r *InvitationRepository) GetByID(ctx context.Context, id string) (*invitation.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok {
		return nil, invitation.ErrNotFound
	}
	return cloneInvitation(row), nil
}

// GetByToken retrieves an invitation by token
func (r *InvitationRepository) GetByToken(ctx context.Context, token string) (*invitation.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, row := range r.rows {
		if row.Token == token {
			return cloneInvitation(row), nil
		}
	}
	return nil, invitation.ErrNotFound
}

// ListByEmail retrieves invitations for an email in any of the statuses
func (r *InvitationRepository) ListByEmail(ctx context.Context, email string, statuses []invitation.Status) ([]*invitation.Invitation, error) {
	return r.List(ctx, invitation.Filter{Email: email, Statuses: statuses})
}

// List retrieves invitations matching the filter, newest first
func (r *InvitationRepository) List(ctx context.Context, filter invitation.Filter) ([]*invitation.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*invitation.Invitation
	for _, row := range r.rows {
		if filter.CreatedBy != "" && row.CreatedBy != filter.CreatedBy {
			continue
		}
		if filter.Email != "" && row.Email != filter.Email {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, row.Status) {
			continue
		}
		out = append(out, cloneInvitation(row))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*invitation.Invitation{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Transition applies a conditional status change
func (r *InvitationRepository) Transition(ctx context.Context, t invitation.Transition) (*invitation.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[t.ID]
	if !ok {
		return nil, invitation.ErrNotFound
	}
	if !slices.Contains(t.From, row.Status) {
		return nil, invitation.ErrStatusConflict
	}
	if t.ExpiresBefore != nil && !row.ExpiresAt.Before(*t.ExpiresBefore) {
		return nil, invitation.ErrStatusConflict
	}

	row.Status = t.To
	row.UpdatedAt = t.At
	if t.EmailConfirmedAt != nil {
		row.EmailConfirmedAt = clonePtr(t.EmailConfirmedAt)
	}
	if t.AdminApprovedAt != nil {
		row.AdminApprovedAt = clonePtr(t.AdminApprovedAt)
	}
	if t.AdminApprovedBy != nil {
		row.AdminApprovedBy = clonePtr(t.AdminApprovedBy)
	}
	if t.CompletedAt != nil {
		row.CompletedAt = clonePtr(t.CompletedAt)
	}
	if t.RejectedAt != nil {
		row.RejectedAt = clonePtr(t.RejectedAt)
	}
	if t.RejectedBy != nil {
		row.RejectedBy = clonePtr(t.RejectedBy)
	}
	if t.CompanyID != nil {
		row.CompanyID = clonePtr(t.CompanyID)
	}
	return cloneInvitation(row), nil
}

// Reset returns an invitation to pending with a new validity window
func (r *InvitationRepository) Reset(ctx context.Context, id string, from []invitation.Status, createdAt, expiresAt time.Time) (*invitation.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok {
		return nil, invitation.ErrNotFound
	}
	if !slices.Contains(from, row.Status) {
		return nil, invitation.ErrStatusConflict
	}
	if r.hasUnresolvedLocked(row.Email, row.ID) {
		return nil, invitation.ErrDuplicateInvitation
	}

	row.Status = invitation.StatusPending
	row.CreatedAt = createdAt
	row.ExpiresAt = expiresAt
	row.UpdatedAt = createdAt
	row.EmailConfirmedAt = nil
	row.AdminApprovedAt = nil
	row.AdminApprovedBy = nil
	row.CompletedAt = nil
	row.RejectedAt = nil
	row.RejectedBy = nil
	return cloneInvitation(row), nil
}

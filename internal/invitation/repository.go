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
	"time"
)

// Transition is a conditional status change. It applies only when the row
// is currently in one of From; otherwise the repository returns
// ErrStatusConflict (or ErrNotFound when the row does not exist).
//
// Nil stamp fields leave the stored value untouched.
type Transition struct {
	ID   string
	From []Status
	To   Status
	At   time.Time

	// ExpiresBefore, when set, additionally requires expires_at to be
	// earlier than it. Lazy expiry uses it so a concurrent reset wins.
	ExpiresBefore *time.Time

	EmailConfirmedAt *time.Time
	AdminApprovedAt  *time.Time
	AdminApprovedBy  *string
	CompletedAt      *time.Time
	RejectedAt       *time.Time
	RejectedBy       *string
	CompanyID        *string
}

// Filter narrows List results
type Filter struct {
	// CreatedBy restricts results to invitations issued by one principal
	CreatedBy string
	Email     string
	Statuses  []Status
	Limit     int
	Offset    int
}

// Repository defines the interface for invitation persistence
type Repository interface {
	// Create stores a new invitation. Returns ErrDuplicateInvitation when an
	// unresolved invitation for the same email already exists.
	Create(ctx context.Context, inv *Invitation) error

	// GetByID retrieves an invitation. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (*Invitation, error)

	// GetByToken retrieves an invitation by its token. Returns ErrNotFound if absent.
	GetByToken(ctx context.Context, token string) (*Invitation, error)

	// ListByEmail retrieves invitations for an email in any of the statuses,
	// newest first.
	ListByEmail(ctx context.Context, email string, statuses []Status) ([]*Invitation, error)

	// List retrieves invitations matching the filter, newest first
	List(ctx context.Context, filter Filter) ([]*Invitation, error)

	// Transition atomically applies a conditional status change and returns
	// the updated row.
	Transition(ctx context.Context, t Transition) (*Invitation, error)

	// Reset moves an invitation in one of from back to pending with a new
	// validity window and clears every transition stamp. The token is kept.
	Reset(ctx context.Context, id string, from []Status, createdAt, expiresAt time.Time) (*Invitation, error)
}

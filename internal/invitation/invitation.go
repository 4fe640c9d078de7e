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

// Package invitation implements the invitation lifecycle: an authorized
// principal invites someone by email, the invitee confirms and sets a
// credential, an approver approves, and the first sign-in afterwards grants
// the company membership.
package invitation

import (
	"slices"
	"time"
)

// Status is the persisted invitation status. The string values are stored
// verbatim and must not change.
type Status string

const (
	StatusPending        Status = "pending"
	StatusEmailConfirmed Status = "email_confirmed"
	StatusAdminApproved  Status = "admin_approved"
	StatusCompleted      Status = "completed"
	StatusExpired        Status = "expired"
	StatusRejected       Status = "rejected"
)

// DefaultTTL is the lifetime of a freshly issued or reset invitation
const DefaultTTL = 7 * 24 * time.Hour

// transitions is the lifecycle graph. Reset is the only way back out of a
// terminal status and is handled separately.
var transitions = map[Status][]Status{
	StatusPending:        {StatusEmailConfirmed, StatusExpired, StatusRejected},
	StatusEmailConfirmed: {StatusAdminApproved, StatusExpired, StatusRejected},
	StatusAdminApproved:  {StatusCompleted},
}

var (
	// unresolved statuses block a second invitation for the same email
	unresolved = []Status{StatusPending, StatusEmailConfirmed, StatusAdminApproved}

	// expirable statuses are subject to lazy expiry
	expirable = []Status{StatusPending, StatusEmailConfirmed}

	// resettable statuses may be returned to pending by an administrator
	resettable = []Status{StatusExpired, StatusRejected}
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusEmailConfirmed, StatusAdminApproved,
		StatusCompleted, StatusExpired, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no lifecycle edge leaves s
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// Unresolved reports whether s still blocks a new invitation for the email
func (s Status) Unresolved() bool {
	return slices.Contains(unresolved, s)
}

// CanTransition reports whether from → to is an edge of the lifecycle graph
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// Invitation is an offer, bound to a single-use token, to join a company
// with a role.
type Invitation struct {
	ID          string
	Email       string
	CompanyName string
	Role        string
	Token       string
	Status      Status
	Message     string
	CreatedBy   string
	// CompanyID stays nil until a company with CompanyName exists and the
	// invitation is bound to it.
	CompanyID *string

	CreatedAt        time.Time
	ExpiresAt        time.Time
	EmailConfirmedAt *time.Time
	AdminApprovedAt  *time.Time
	AdminApprovedBy  *string
	CompletedAt      *time.Time
	RejectedAt       *time.Time
	RejectedBy       *string
	UpdatedAt        time.Time
}

// ExpiredAt reports whether the invitation has outlived its TTL at now and
// is still in a status that expires.
func (i *Invitation) ExpiredAt(now time.Time) bool {
	return slices.Contains(expirable, i.Status) && now.After(i.ExpiresAt)
}

// HasCompany reports whether the invitation is bound to a company
func (i *Invitation) HasCompany() bool {
	return i.CompanyID != nil && *i.CompanyID != ""
}

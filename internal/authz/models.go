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

package authz

import (
	"context"
	"errors"

	"github.com/opentrusty/provisioner/internal/company"
	"github.com/opentrusty/provisioner/internal/rbac"
)

// Domain errors
var (
	ErrPermissionDenied  = errors.New("permission denied")
	ErrPrincipalNotFound = errors.New("principal not found")
)

// Principal is an authenticated identity independent of company context.
// Roles, IsAdmin and HasCompany are transitional hints consulted only while
// the principal holds no membership row.
type Principal struct {
	ID         string
	Email      string
	Roles      []string
	IsAdmin    *bool
	HasCompany bool
}

// Grant is the effective role of a principal and where it came from.
type Grant struct {
	PrincipalID string
	Role        string
	CompanyID   string
	Source      Source
}

// Tier returns the capability tier of the granted role.
func (g *Grant) Tier() rbac.Tier {
	if g == nil {
		return rbac.TierNone
	}
	return rbac.Parse(g.Role)
}

// IsAdmin reports whether the grant carries the admin tier.
func (g *Grant) IsAdmin() bool {
	return g.Tier() == rbac.TierAdmin
}

// InCompany reports whether the grant is scoped to companyID.
func (g *Grant) InCompany(companyID string) bool {
	return g != nil && g.CompanyID != "" && g.CompanyID == companyID
}

// MembershipReader reads company membership rows for a principal
type MembershipReader interface {
	ListMemberships(ctx context.Context, principalID string) ([]*company.Membership, error)
}

// PrincipalReader loads a principal and its transitional metadata.
// Returns ErrPrincipalNotFound for unknown IDs.
type PrincipalReader interface {
	GetPrincipal(ctx context.Context, principalID string) (*Principal, error)
}

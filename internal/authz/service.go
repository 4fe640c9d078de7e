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
	"fmt"

	"github.com/opentrusty/provisioner/internal/rbac"
)

// Service answers what a principal may do. It only reads; memberships and
// principals are written elsewhere.
type Service struct {
	memberships MembershipReader
	principals  PrincipalReader
}

// NewService creates a new authorization service
func NewService(memberships MembershipReader, principals PrincipalReader) *Service {
	return &Service{
		memberships: memberships,
		principals:  principals,
	}
}

// Resolve returns the effective grant of a principal.
//
// Sources are consulted in a fixed order and the first one that yields a
// role wins:
//  1. membership rows (highest tier if several)
//  2. transitional principal metadata (admin flag, then role list)
//  3. nothing: SourceNone with an empty role, which has no capabilities
func (s *Service) Resolve(ctx context.Context, principalID string) (*Grant, error) {
	memberships, err := s.memberships.ListMemberships(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	if m := roleFromMemberships(memberships); m != nil {
		return &Grant{
			PrincipalID: principalID,
			Role:        rbac.Normalize(m.Role),
			CompanyID:   m.CompanyID,
			Source:      SourceMembership,
		}, nil
	}

	p, err := s.principals.GetPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if role := roleFromMetadata(p); role != "" {
		return &Grant{PrincipalID: principalID, Role: role, Source: SourceMetadata}, nil
	}

	return &Grant{PrincipalID: principalID, Source: SourceNone}, nil
}

// IsAdmin resolves admin-ness through the ordered chain: a membership row
// decides if one exists, then the metadata admin flag if set, then the
// metadata role list.
func (s *Service) IsAdmin(ctx context.Context, principalID string) (bool, error) {
	g, err := s.Resolve(ctx, principalID)
	if err != nil {
		return false, err
	}
	return g.IsAdmin(), nil
}

// CanInvite reports whether the grant may invite targetRole.
func CanInvite(g *Grant, targetRole string) bool {
	return g != nil && rbac.CanInvite(g.Role, targetRole)
}

// CanApprove reports whether the grant may approve or reject invitations.
func CanApprove(g *Grant) bool {
	return g != nil && rbac.CanApprove(g.Role)
}

// CanView reports whether the grant may see a record created by ownerID.
// Admins see everything; everyone else only their own records.
func CanView(g *Grant, ownerID string) bool {
	if g == nil {
		return false
	}
	if rbac.CanViewAllCompanyActivity(g.Role) {
		return true
	}
	return g.PrincipalID != "" && g.PrincipalID == ownerID
}

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
	"github.com/opentrusty/provisioner/internal/company"
	"github.com/opentrusty/provisioner/internal/rbac"
)

// Source identifies which record produced a grant.
type Source string

const (
	// SourceMembership: the principal's company membership row.
	SourceMembership Source = "membership"

	// SourceMetadata: transitional hints on the principal, used only when
	// no membership row exists.
	SourceMetadata Source = "metadata"

	// SourceNone: nothing grants the principal a role.
	SourceNone Source = "none"
)

// roleFromMemberships picks the highest-tier membership. Ties keep the
// first row returned by the store.
func roleFromMemberships(memberships []*company.Membership) *company.Membership {
	var best *company.Membership
	for _, m := range memberships {
		if best == nil || rbac.Parse(m.Role).Rank() > rbac.Parse(best.Role).Rank() {
			best = m
		}
	}
	return best
}

// roleFromMetadata derives a role from transitional principal metadata.
// An explicit admin flag decides admin-ness before the role list is read:
// true yields admin, false drops any admin entry from the list.
func roleFromMetadata(p *Principal) string {
	if p.IsAdmin != nil && *p.IsAdmin {
		return rbac.RoleAdmin
	}

	roles := make([]string, 0, len(p.Roles))
	for _, r := range p.Roles {
		if !rbac.Valid(r) {
			continue
		}
		if p.IsAdmin != nil && rbac.Parse(r) == rbac.TierAdmin {
			continue
		}
		roles = append(roles, rbac.Normalize(r))
	}
	return rbac.Highest(roles...)
}

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

package rbac

// Canonical role names as persisted in company_memberships.role and
// invitations.role. Stored values for manager and viewer may carry a
// suffix (e.g. "manager_senior"); see Parse.
const (
	// RoleAdmin is the platform administrator. Not invitable.
	RoleAdmin = "admin"

	// RoleOwner controls a single company.
	RoleOwner = "owner"

	// RoleManager supervises technicians and viewers inside a company.
	RoleManager = "manager"

	// RoleTech is an operational member of a company.
	RoleTech = "tech"

	// RoleViewer has read access to company records.
	RoleViewer = "viewer"
)

// Tier is a capability tier in the role hierarchy.
type Tier int

const (
	// TierNone is assigned to unrecognized roles. It carries no capability.
	TierNone Tier = iota
	TierTech
	TierViewer
	TierManager
	TierOwner
	TierAdmin
)

// String returns the canonical role name of the tier.
func (t Tier) String() string {
	switch t {
	case TierAdmin:
		return RoleAdmin
	case TierOwner:
		return RoleOwner
	case TierManager:
		return RoleManager
	case TierTech:
		return RoleTech
	case TierViewer:
		return RoleViewer
	default:
		return "none"
	}
}

// Rank orders tiers by privilege. Tech and viewer share a rank: they are
// incomparable peers.
func (t Tier) Rank() int {
	switch t {
	case TierAdmin:
		return 4
	case TierOwner:
		return 3
	case TierManager:
		return 2
	case TierTech, TierViewer:
		return 1
	default:
		return 0
	}
}

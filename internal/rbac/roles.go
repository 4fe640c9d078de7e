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

import "strings"

// capabilities is the single capability table for the role hierarchy.
// Nothing outside this file decides what a tier may do.
var capabilities = map[Tier]struct {
	invite            []Tier
	approve           bool
	viewAllActivities bool
}{
	TierAdmin: {
		invite:            []Tier{TierOwner, TierManager, TierTech, TierViewer},
		approve:           true,
		viewAllActivities: true,
	},
	TierOwner: {
		invite:  []Tier{TierManager, TierTech, TierViewer},
		approve: true,
	},
	TierManager: {
		invite:  []Tier{TierTech, TierViewer},
		approve: true,
	},
}

// Parse maps a stored role string onto its tier. admin, owner and tech
// match exactly; manager and viewer match by prefix so sub-roles such as
// "manager_senior" keep the manager tier. Anything else is TierNone.
func Parse(role string) Tier {
	r := strings.ToLower(strings.TrimSpace(role))
	switch {
	case r == RoleAdmin:
		return TierAdmin
	case r == RoleOwner:
		return TierOwner
	case r == RoleTech:
		return TierTech
	case strings.HasPrefix(r, RoleManager):
		return TierManager
	case strings.HasPrefix(r, RoleViewer):
		return TierViewer
	default:
		return TierNone
	}
}

// Normalize trims and lowercases a role string for persistence.
func Normalize(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

// Valid reports whether role belongs to the closed role set.
func Valid(role string) bool {
	return Parse(role) != TierNone
}

// CanInvite reports whether a principal holding actorRole may invite
// someone into targetRole. Nobody may invite admin.
func CanInvite(actorRole, targetRole string) bool {
	target := Parse(targetRole)
	if target == TierNone || target == TierAdmin {
		return false
	}
	for _, t := range capabilities[Parse(actorRole)].invite {
		if t == target {
			return true
		}
	}
	return false
}

// CanApprove reports whether actorRole may approve or reject invitations.
func CanApprove(actorRole string) bool {
	return capabilities[Parse(actorRole)].approve
}

// CanViewAllCompanyActivity reports whether actorRole may see records not
// scoped to itself.
func CanViewAllCompanyActivity(actorRole string) bool {
	return capabilities[Parse(actorRole)].viewAllActivities
}

// Highest returns the role with the highest rank. Ties keep the first.
func Highest(roles ...string) string {
	best := ""
	bestRank := -1
	for _, r := range roles {
		if rank := Parse(r).Rank(); rank > bestRank {
			best, bestRank = r, rank
		}
	}
	return best
}

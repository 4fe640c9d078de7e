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

package memory

import (
	"context"
	"testing"

	"github.com/opentrusty/provisioner/internal/audit"
	"github.com/opentrusty/provisioner/internal/company"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates company naming rules and paginated listing of the in-memory company store.
// Scope: Unit Test
// Security: Company identity uniqueness
// Expected: Names collide case-insensitively; listing is ordered by name and honors limit and offset.
// Test Case ID: MEM-04
func TestMemory_CompanyRepository_List(t *testing.T) {
	ctx := context.Background()
	svc := company.NewService(NewCompanyRepository(), NewMembershipRepository(), audit.NewSlogLogger())

	for _, name := range []string{"Globex", "Acme Co", "Initech"} {
		_, err := svc.EnsureCompany(ctx, name, "admin-1")
		require.NoError(t, err)
	}

	again, err := svc.EnsureCompany(ctx, "  acme co ", "admin-2")
	require.NoError(t, err)
	assert.Equal(t, "Acme Co", again.Name, "lookup is case-insensitive and returns the existing row")

	all, err := svc.ListCompanies(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"Acme Co", "Globex", "Initech"}, []string{all[0].Name, all[1].Name, all[2].Name})

	page, err := svc.ListCompanies(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "Globex", page[0].Name)

	empty, err := svc.ListCompanies(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

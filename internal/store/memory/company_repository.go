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
	"sort"
	"strings"
	"sync"

	"github.com/opentrusty/provisioner/internal/company"
)

// CompanyRepository implements company.Repository
type CompanyRepository struct {
	mu   sync.Mutex
	rows map[string]*company.Company
}

// NewCompanyRepository creates a new in-memory company repository
func NewCompanyRepository() *CompanyRepository {
	return &CompanyRepository{rows: make(map[string]*company.Company)}
}

// Create stores a company. Names are unique case-insensitively.
func (r *CompanyRepository) Create(ctx context.Context, c *company.Company) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, row := range r.rows {
		if strings.EqualFold(row.Name, c.Name) {
			return company.ErrCompanyExists
		}
	}
	cp := *c
	r.rows[c.ID] = &cp
	return nil
}

// GetByID retrieves a company by ID
func (r *CompanyRepository) GetByID(ctx context.Context, id string) (*company.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok {
		return nil, company.ErrCompanyNotFound
	}
	cp := *row
	return &cp, nil
}

// GetByName retrieves a company by case-insensitive name
func (r *CompanyRepository) GetByName(ctx context.Context, name string) (*company.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, row := range r.rows {
		if strings.EqualFold(row.Name, name) {
			cp := *row
			return &cp, nil
		}
	}
	return nil, company.ErrCompanyNotFound
}

// List retrieves companies ordered by name
func (r *CompanyRepository) List(ctx context.Context, limit, offset int) ([]*company.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*company.Company, 0, len(r.rows))
	for _, row := range r.rows {
		cp := *row
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	if offset >= len(out) {
		return []*company.Company{}, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MembershipRepository implements company.MembershipRepository
type MembershipRepository struct {
	mu   sync.Mutex
	rows []*company.Membership
}

// NewMembershipRepository creates a new in-memory membership repository
func NewMembershipRepository() *MembershipRepository {
	return &MembershipRepository{}
}

// Create stores a membership. A principal holds at most one.
func (r *MembershipRepository) Create(ctx context.Context, m *company.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, row := range r.rows {
		if row.PrincipalID == m.PrincipalID {
			return company.ErrAlreadyMember
		}
	}
	cp := *m
	r.rows = append(r.rows, &cp)
	return nil
}

// ListByPrincipal retrieves memberships of a principal in creation order
func (r *MembershipRepository) ListByPrincipal(ctx context.Context, principalID string) ([]*company.Membership, error) {
	return r.filter(func(m *company.Membership) bool { return m.PrincipalID == principalID }), nil
}

// ListByCompany retrieves memberships inside a company in creation order
func (r *MembershipRepository) ListByCompany(ctx context.Context, companyID string) ([]*company.Membership, error) {
	return r.filter(func(m *company.Membership) bool { return m.CompanyID == companyID }), nil
}

func (r *MembershipRepository) filter(keep func(*company.Membership) bool) []*company.Membership {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []*company.Membership{}
	for _, row := range r.rows {
		if keep(row) {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out
}

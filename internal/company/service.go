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

package company

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opentrusty/provisioner/internal/audit"
	"github.com/opentrusty/provisioner/internal/id"
	"github.com/opentrusty/provisioner/internal/rbac"
)

// Service provides company and membership business logic
type Service struct {
	repo           Repository
	membershipRepo MembershipRepository
	auditLogger    audit.Logger
}

// NewService creates a new company service
func NewService(repo Repository, membershipRepo MembershipRepository, auditLogger audit.Logger) *Service {
	return &Service{
		repo:           repo,
		membershipRepo: membershipRepo,
		auditLogger:    auditLogger,
	}
}

// EnsureCompany returns the company with the given name, creating it if it
// does not exist yet.
func (s *Service) EnsureCompany(ctx context.Context, name, createdBy string) (*Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}

	existing, err := s.repo.GetByName(ctx, name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrCompanyNotFound) {
		return nil, fmt.Errorf("failed to look up company: %w", err)
	}

	now := time.Now()
	c := &Company{
		ID:        id.NewUUIDv7(),
		Name:      name,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, c); err != nil {
		// Lost a race with a concurrent creator; the winner's row is the company.
		if errors.Is(err, ErrCompanyExists) {
			return s.repo.GetByName(ctx, name)
		}
		return nil, fmt.Errorf("failed to create company: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeCompanyCreated,
		CompanyID: c.ID,
		ActorID:   createdBy,
		Resource:  "company",
		Metadata:  map[string]any{"name": c.Name},
	})

	return c, nil
}

// GetCompany retrieves a company by ID
func (s *Service) GetCompany(ctx context.Context, id string) (*Company, error) {
	return s.repo.GetByID(ctx, id)
}

// FindByName retrieves a company by name
func (s *Service) FindByName(ctx context.Context, name string) (*Company, error) {
	return s.repo.GetByName(ctx, strings.TrimSpace(name))
}

// ListCompanies lists companies with pagination
func (s *Service) ListCompanies(ctx context.Context, limit, offset int) ([]*Company, error) {
	return s.repo.List(ctx, limit, offset)
}

// EnsureMembership grants principalID the role inside companyID unless a
// membership already exists. A principal holds at most one membership: an
// existing row in the same company is returned unchanged, a row in another
// company yields ErrAlreadyMember.
func (s *Service) EnsureMembership(ctx context.Context, principalID, companyID, role, grantedBy string) (*Membership, error) {
	if !rbac.Valid(role) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRole, role)
	}

	if m, err := s.existingMembership(ctx, principalID, companyID); err != nil || m != nil {
		return m, err
	}

	m := &Membership{
		ID:          id.NewUUIDv7(),
		PrincipalID: principalID,
		CompanyID:   companyID,
		Role:        rbac.Normalize(role),
		CreatedAt:   time.Now(),
	}

	if err := s.membershipRepo.Create(ctx, m); err != nil {
		if errors.Is(err, ErrAlreadyMember) {
			existing, lerr := s.existingMembership(ctx, principalID, companyID)
			if lerr == nil && existing != nil {
				return existing, nil
			}
			return nil, ErrAlreadyMember
		}
		return nil, fmt.Errorf("failed to create membership: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeMembershipCreated,
		CompanyID: companyID,
		ActorID:   grantedBy,
		Resource:  m.Role,
		Metadata:  map[string]any{"principal_id": principalID},
	})

	return m, nil
}

// existingMembership returns the membership of principalID inside
// companyID, nil if the principal has none, or ErrAlreadyMember if the
// principal belongs to another company.
func (s *Service) existingMembership(ctx context.Context, principalID, companyID string) (*Membership, error) {
	existing, err := s.membershipRepo.ListByPrincipal(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	for _, m := range existing {
		if m.CompanyID == companyID {
			return m, nil
		}
	}
	if len(existing) > 0 {
		return nil, ErrAlreadyMember
	}
	return nil, nil
}

// ListMemberships retrieves the memberships held by a principal
func (s *Service) ListMemberships(ctx context.Context, principalID string) ([]*Membership, error) {
	return s.membershipRepo.ListByPrincipal(ctx, principalID)
}

// ListMembers retrieves all memberships inside a company
func (s *Service) ListMembers(ctx context.Context, companyID string) ([]*Membership, error) {
	return s.membershipRepo.ListByCompany(ctx, companyID)
}

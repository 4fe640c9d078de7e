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

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/provisioner/internal/company"
)

// CompanyRepository implements company.Repository
type CompanyRepository struct {
	db *DB
}

// NewCompanyRepository creates a new company repository
func NewCompanyRepository(db *DB) *CompanyRepository {
	return &CompanyRepository{db: db}
}

const companyColumns = `id, name, address_line1, address_line2, city, region,
	postal_code, country, contact_name, contact_email, contact_phone,
	depreciation_rate, created_by, created_at, updated_at`

func scanCompany(row pgx.Row) (*company.Company, error) {
	var c company.Company
	var createdBy sql.NullString
	err := row.Scan(
		&c.ID, &c.Name, &c.AddressLine1, &c.AddressLine2, &c.City, &c.Region,
		&c.PostalCode, &c.Country, &c.ContactName, &c.ContactEmail, &c.ContactPhone,
		&c.DepreciationRate, &createdBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if createdBy.Valid {
		c.CreatedBy = createdBy.String
	}
	return &c, nil
}

// Create creates a new company
func (r *CompanyRepository) Create(ctx context.Context, c *company.Company) error {
	var createdBy sql.NullString
	if c.CreatedBy != "" {
		createdBy = sql.NullString{String: c.CreatedBy, Valid: true}
	}

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO companies (`+companyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		c.ID, c.Name, c.AddressLine1, c.AddressLine2, c.City, c.Region,
		c.PostalCode, c.Country, c.ContactName, c.ContactEmail, c.ContactPhone,
		c.DepreciationRate, createdBy, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if uniqueViolation(err, "companies_name_key") {
			return company.ErrCompanyExists
		}
		return fmt.Errorf("failed to create company: %w", err)
	}
	return nil
}

// GetByID retrieves a company by ID
func (r *CompanyRepository) GetByID(ctx context.Context, id string) (*company.Company, error) {
	c, err := scanCompany(r.db.pool.QueryRow(ctx, `
		SELECT `+companyColumns+` FROM companies WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, company.ErrCompanyNotFound
		}
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return c, nil
}

// GetByName retrieves a company by case-insensitive name
func (r *CompanyRepository) GetByName(ctx context.Context, name string) (*company.Company, error) {
	c, err := scanCompany(r.db.pool.QueryRow(ctx, `
		SELECT `+companyColumns+` FROM companies WHERE lower(name) = lower($1)
	`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, company.ErrCompanyNotFound
		}
		return nil, fmt.Errorf("failed to get company by name: %w", err)
	}
	return c, nil
}

// List retrieves companies ordered by name
func (r *CompanyRepository) List(ctx context.Context, limit, offset int) ([]*company.Company, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+companyColumns+`
		FROM companies
		ORDER BY name
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	companies := []*company.Company{}
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

// MembershipRepository implements company.MembershipRepository
type MembershipRepository struct {
	db *DB
}

// NewMembershipRepository creates a new membership repository
func NewMembershipRepository(db *DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// Create stores a membership
func (r *MembershipRepository) Create(ctx context.Context, m *company.Membership) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO company_memberships (id, principal_id, company_id, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, m.ID, m.PrincipalID, m.CompanyID, m.Role, m.CreatedAt)
	if err != nil {
		if uniqueViolation(err, "company_memberships_principal_key") {
			return company.ErrAlreadyMember
		}
		return fmt.Errorf("failed to create membership: %w", err)
	}
	return nil
}

// ListByPrincipal retrieves the memberships of a principal
func (r *MembershipRepository) ListByPrincipal(ctx context.Context, principalID string) ([]*company.Membership, error) {
	return r.query(ctx, `
		SELECT id, principal_id, company_id, role, created_at
		FROM company_memberships
		WHERE principal_id = $1
		ORDER BY created_at
	`, principalID)
}

// ListByCompany retrieves the memberships inside a company
func (r *MembershipRepository) ListByCompany(ctx context.Context, companyID string) ([]*company.Membership, error) {
	return r.query(ctx, `
		SELECT id, principal_id, company_id, role, created_at
		FROM company_memberships
		WHERE company_id = $1
		ORDER BY created_at
	`, companyID)
}

func (r *MembershipRepository) query(ctx context.Context, stmt, arg string) ([]*company.Membership, error) {
	rows, err := r.db.pool.Query(ctx, stmt, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	memberships := []*company.Membership{}
	for rows.Next() {
		var m company.Membership
		if err := rows.Scan(&m.ID, &m.PrincipalID, &m.CompanyID, &m.Role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, &m)
	}
	return memberships, rows.Err()
}

package company

import (
	"context"
	"errors"
)

var (
	ErrCompanyNotFound    = errors.New("company not found")
	ErrCompanyExists      = errors.New("company already exists")
	ErrMembershipNotFound = errors.New("membership not found")
	ErrAlreadyMember      = errors.New("principal already belongs to another company")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidName        = errors.New("company name is required")
)

// Repository defines the interface for company storage
type Repository interface {
	Create(ctx context.Context, company *Company) error
	GetByID(ctx context.Context, id string) (*Company, error)
	// GetByName matches names case-insensitively.
	GetByName(ctx context.Context, name string) (*Company, error)
	List(ctx context.Context, limit, offset int) ([]*Company, error)
}

// MembershipRepository defines the interface for company membership storage
type MembershipRepository interface {
	Create(ctx context.Context, membership *Membership) error
	ListByPrincipal(ctx context.Context, principalID string) ([]*Membership, error)
	ListByCompany(ctx context.Context, companyID string) ([]*Membership, error)
}

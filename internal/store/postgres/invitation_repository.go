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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/provisioner/internal/invitation"
)

// InvitationRepository implements invitation.Repository
type InvitationRepository struct {
	db *DB
}

// NewInvitationRepository creates a new invitation repository
func NewInvitationRepository(db *DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

const invitationColumns = `id, email, company_name, role, token, status, message,
	created_by, company_id, created_at, expires_at, email_confirmed_at,
	admin_approved_at, admin_approved_by, completed_at, rejected_at,
	rejected_by, updated_at`

func scanInvitation(row pgx.Row) (*invitation.Invitation, error) {
	var inv invitation.Invitation
	var status string
	err := row.Scan(
		&inv.ID, &inv.Email, &inv.CompanyName, &inv.Role, &inv.Token, &status, &inv.Message,
		&inv.CreatedBy, &inv.CompanyID, &inv.CreatedAt, &inv.ExpiresAt, &inv.EmailConfirmedAt,
		&inv.AdminApprovedAt, &inv.AdminApprovedBy, &inv.CompletedAt, &inv.RejectedAt,
		&inv.RejectedBy, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.Status = invitation.Status(status)
	return &inv, nil
}

func statusStrings(statuses []invitation.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Create stores a new invitation
func (r *InvitationRepository) Create(ctx context.Context, inv *invitation.Invitation) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO invitations (
			id, email, company_name, role, token, status, message,
			created_by, company_id, created_at, expires_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		inv.ID, inv.Email, inv.CompanyName, inv.Role, inv.Token, string(inv.Status), inv.Message,
		inv.CreatedBy, inv.CompanyID, inv.CreatedAt, inv.ExpiresAt, inv.UpdatedAt,
	)
	if err != nil {
		if uniqueViolation(err, "invitations_unresolved_email_key") {
			return invitation.ErrDuplicateInvitation
		}
		return fmt.Errorf("failed to insert invitation: %w", err)
	}
	return nil
}

func (r *InvitationRepository) getOne(ctx context.Context, where string, arg any) (*invitation.Invitation, error) {
	inv, err := scanInvitation(r.db.pool.QueryRow(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, invitation.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return inv, nil
}

// GetByID retrieves an invitation by ID
func (r *InvitationRepository) GetByID(ctx context.Context, id string) (*invitation.Invitation, error) {
	return r.getOne(ctx, "id = $1", id)
}

// GetByToken retrieves an invitation by token
func (r *InvitationRepository) GetByToken(ctx context.Context, token string) (*invitation.Invitation, error) {
	return r.getOne(ctx, "token = $1", token)
}

// ListByEmail retrieves invitations for an email in any of the statuses
func (r *InvitationRepository) ListByEmail(ctx context.Context, email string, statuses []invitation.Status) ([]*invitation.Invitation, error) {
	return r.List(ctx, invitation.Filter{Email: email, Statuses: statuses})
}

// List retrieves invitations matching the filter, newest first
func (r *InvitationRepository) List(ctx context.Context, filter invitation.Filter) ([]*invitation.Invitation, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.CreatedBy != "" {
		add("created_by = $%d", filter.CreatedBy)
	}
	if filter.Email != "" {
		add("email = $%d", filter.Email)
	}
	if len(filter.Statuses) > 0 {
		add("status = ANY($%d)", statusStrings(filter.Statuses))
	}

	query := `SELECT ` + invitationColumns + ` FROM invitations`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	invitations := []*invitation.Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

// Transition applies a conditional status change in a single statement.
// Zero affected rows means the row is missing or no longer matches.
func (r *InvitationRepository) Transition(ctx context.Context, t invitation.Transition) (*invitation.Invitation, error) {
	inv, err := scanInvitation(r.db.pool.QueryRow(ctx, `
		UPDATE invitations SET
			status = $3,
			updated_at = $4,
			email_confirmed_at = COALESCE($5, email_confirmed_at),
			admin_approved_at = COALESCE($6, admin_approved_at),
			admin_approved_by = COALESCE($7, admin_approved_by),
			completed_at = COALESCE($8, completed_at),
			rejected_at = COALESCE($9, rejected_at),
			rejected_by = COALESCE($10, rejected_by),
			company_id = COALESCE($11, company_id)
		WHERE id = $1
			AND status = ANY($2)
			AND ($12::timestamptz IS NULL OR expires_at < $12::timestamptz)
		RETURNING `+invitationColumns,
		t.ID, statusStrings(t.From), string(t.To), t.At,
		t.EmailConfirmedAt, t.AdminApprovedAt, t.AdminApprovedBy,
		t.CompletedAt, t.RejectedAt, t.RejectedBy, t.CompanyID,
		t.ExpiresBefore,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.missingOrConflict(ctx, t.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to transition invitation: %w", err)
	}
	return inv, nil
}

// Reset returns an invitation to pending with a new validity window
func (r *InvitationRepository) Reset(ctx context.Context, id string, from []invitation.Status, createdAt, expiresAt time.Time) (*invitation.Invitation, error) {
	inv, err := scanInvitation(r.db.pool.QueryRow(ctx, `
		UPDATE invitations SET
			status = 'pending',
			created_at = $3,
			expires_at = $4,
			updated_at = $3,
			email_confirmed_at = NULL,
			admin_approved_at = NULL,
			admin_approved_by = NULL,
			completed_at = NULL,
			rejected_at = NULL,
			rejected_by = NULL
		WHERE id = $1 AND status = ANY($2)
		RETURNING `+invitationColumns,
		id, statusStrings(from), createdAt, expiresAt,
	))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, r.missingOrConflict(ctx, id)
	case uniqueViolation(err, "invitations_unresolved_email_key"):
		return nil, invitation.ErrDuplicateInvitation
	case err != nil:
		return nil, fmt.Errorf("failed to reset invitation: %w", err)
	}
	return inv, nil
}

func (r *InvitationRepository) missingOrConflict(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM invitations WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check invitation: %w", err)
	}
	if !exists {
		return invitation.ErrNotFound
	}
	return invitation.ErrStatusConflict
}

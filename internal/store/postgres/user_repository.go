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
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/provisioner/internal/identity"
)

// UserRepository implements identity.UserRepository
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, disabled, email_verified, metadata,
	failed_login_attempts, locked_until, created_at, updated_at`

func scanUser(row pgx.Row) (*identity.User, error) {
	var user identity.User
	err := row.Scan(
		&user.ID, &user.Email, &user.Disabled, &user.EmailVerified, &user.Metadata,
		&user.FailedLoginAttempts, &user.LockedUntil, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// Create creates a new user identity
func (r *UserRepository) Create(ctx context.Context, user *identity.User) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO users (
			id, email, disabled, email_verified, metadata,
			failed_login_attempts, locked_until, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		user.ID, user.Email, user.Disabled, user.EmailVerified, user.Metadata,
		user.FailedLoginAttempts, user.LockedUntil, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if uniqueViolation(err, "users_email_key") {
			return identity.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// SetCredentials creates or replaces the credentials of a user
func (r *UserRepository) SetCredentials(ctx context.Context, credentials *identity.Credentials) error {
	now := time.Now()

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO credentials (user_id, password_hash, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET password_hash = EXCLUDED.password_hash, updated_at = EXCLUDED.updated_at
	`, credentials.UserID, credentials.PasswordHash, now)
	if err != nil {
		return fmt.Errorf("failed to set credentials: %w", err)
	}

	credentials.UpdatedAt = now
	return nil
}

// ActivatePlaceholder enables a disabled user and inserts its first
// credential in one statement. The row lock taken by the UPDATE serializes
// concurrent callers; the loser re-reads disabled = false and matches
// nothing.
func (r *UserRepository) ActivatePlaceholder(ctx context.Context, credentials *identity.Credentials) error {
	result, err := r.db.pool.Exec(ctx, `
		WITH activated AS (
			UPDATE users
			SET disabled = FALSE, email_verified = TRUE, updated_at = $3
			WHERE id = $1
				AND disabled
				AND NOT EXISTS (SELECT 1 FROM credentials WHERE user_id = $1)
			RETURNING id
		)
		INSERT INTO credentials (user_id, password_hash, updated_at)
		SELECT id, $2, $3 FROM activated
	`, credentials.UserID, credentials.PasswordHash, credentials.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to activate user: %w", err)
	}
	if result.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, credentials.UserID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if !exists {
		return identity.ErrUserNotFound
	}
	return identity.ErrAccountActive
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*identity.User, error) {
	return scanUser(r.db.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id))
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	return scanUser(r.db.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE lower(email) = lower($1)
	`, email))
}

// Update updates user state and metadata
func (r *UserRepository) Update(ctx context.Context, user *identity.User) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE users SET
			email = $2,
			disabled = $3,
			email_verified = $4,
			metadata = $5,
			updated_at = $6
		WHERE id = $1
	`, user.ID, user.Email, user.Disabled, user.EmailVerified, user.Metadata, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	if result.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// UpdateLockout updates user lockout status
func (r *UserRepository) UpdateLockout(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error {
	query := `
		UPDATE users
		SET failed_login_attempts = $1, locked_until = $2, updated_at = NOW()
		WHERE id = $3
	`
	_, err := r.db.pool.Exec(ctx, query, failedAttempts, lockedUntil, userID)
	if err != nil {
		return fmt.Errorf("failed to update user lockout status: %w", err)
	}
	return nil
}

// GetCredentials retrieves user credentials
func (r *UserRepository) GetCredentials(ctx context.Context, userID string) (*identity.Credentials, error) {
	var credentials identity.Credentials
	err := r.db.pool.QueryRow(ctx, `
		SELECT user_id, password_hash, updated_at
		FROM credentials
		WHERE user_id = $1
	`, userID).Scan(&credentials.UserID, &credentials.PasswordHash, &credentials.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get credentials: %w", err)
	}
	return &credentials, nil
}

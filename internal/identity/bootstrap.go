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

package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/opentrusty/provisioner/internal/audit"
	"github.com/opentrusty/provisioner/internal/company"
	"github.com/opentrusty/provisioner/internal/observability/logger"
	"github.com/opentrusty/provisioner/internal/rbac"
)

// BootstrapConfig names the initial administrator
type BootstrapConfig struct {
	Email       string
	Password    string
	CompanyName string
}

// BootstrapService provisions the first administrator so invitations can be
// issued on an empty system.
type BootstrapService struct {
	identityService *Service
	companyService  *company.Service
	auditLogger     audit.Logger
}

// NewBootstrapService creates a new bootstrap service
func NewBootstrapService(
	identityService *Service,
	companyService *company.Service,
	auditLogger audit.Logger,
) *BootstrapService {
	return &BootstrapService{
		identityService: identityService,
		companyService:  companyService,
		auditLogger:     auditLogger,
	}
}

// Bootstrap ensures the configured admin identity, the platform company and
// an admin membership exist. Each step is check-before-create so running it
// on every start is safe. An empty email disables bootstrap.
func (s *BootstrapService) Bootstrap(ctx context.Context, cfg BootstrapConfig) error {
	if cfg.Email == "" {
		return nil
	}

	user, err := s.identityService.GetByEmail(ctx, cfg.Email)
	switch {
	case errors.Is(err, ErrUserNotFound):
		if cfg.Password == "" {
			return fmt.Errorf("bootstrap admin %s does not exist and no password is configured", cfg.Email)
		}
		user, err = s.identityService.CreateIdentity(ctx, cfg.Email, cfg.Password, false)
		if err != nil {
			return fmt.Errorf("failed to create bootstrap admin: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to look up bootstrap admin: %w", err)
	}

	memberships, err := s.companyService.ListMemberships(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("failed to list bootstrap admin memberships: %w", err)
	}
	for _, m := range memberships {
		if rbac.Parse(m.Role) == rbac.TierAdmin {
			return nil
		}
	}

	c, err := s.companyService.EnsureCompany(ctx, cfg.CompanyName, audit.ActorSystemBootstrap)
	if err != nil {
		return fmt.Errorf("failed to ensure platform company: %w", err)
	}

	if _, err := s.companyService.EnsureMembership(ctx, user.ID, c.ID, rbac.RoleAdmin, audit.ActorSystemBootstrap); err != nil {
		return fmt.Errorf("failed to grant admin membership during bootstrap: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeAdminBootstrap,
		CompanyID: c.ID,
		ActorID:   audit.ActorSystemBootstrap,
		Resource:  user.ID,
		Metadata: map[string]any{
			audit.AttrEmail: user.Email,
			audit.AttrRole:  rbac.RoleAdmin,
		},
	})

	slog.InfoContext(ctx, "bootstrapped initial admin",
		logger.Email(user.Email),
		logger.CompanyID(c.ID),
	)
	return nil
}

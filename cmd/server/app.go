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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/opentrusty/provisioner/internal/audit"
	"github.com/opentrusty/provisioner/internal/authz"
	"github.com/opentrusty/provisioner/internal/company"
	"github.com/opentrusty/provisioner/internal/config"
	"github.com/opentrusty/provisioner/internal/identity"
	"github.com/opentrusty/provisioner/internal/invitation"
	"github.com/opentrusty/provisioner/internal/notify"
	"github.com/opentrusty/provisioner/internal/observability/logger"
	"github.com/opentrusty/provisioner/internal/store/memory"
	"github.com/opentrusty/provisioner/internal/store/postgres"
)

// stores groups the repositories behind the configured driver
type stores struct {
	db          *postgres.DB
	users       identity.UserRepository
	companies   company.Repository
	memberships company.MembershipRepository
	invitations invitation.Repository
}

func (s *stores) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

func openDatabase(ctx context.Context, cfg *config.Config) (*postgres.DB, error) {
	db, err := postgres.New(ctx, postgres.Config{
		URL:          cfg.Database.URL,
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Database.Driver == config.DriverMemory {
		slog.Warn("using in-memory store; all data is lost on exit")
		return &stores{
			users:       memory.NewUserRepository(),
			companies:   memory.NewCompanyRepository(),
			memberships: memory.NewMembershipRepository(),
			invitations: memory.NewInvitationRepository(),
		}, nil
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("connected to database")

	if cfg.Database.AutoMigrate {
		if err := db.MigrateUp(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
		slog.Info("database migrations applied")
	}

	return &stores{
		db:          db,
		users:       postgres.NewUserRepository(db),
		companies:   postgres.NewCompanyRepository(db),
		memberships: postgres.NewMembershipRepository(db),
		invitations: postgres.NewInvitationRepository(db),
	}, nil
}

// services holds the domain services built over a set of stores
type services struct {
	auditLogger audit.Logger
	identities  *identity.Service
	companies   *company.Service
	authorizer  *authz.Service
	bootstrap   *identity.BootstrapService
}

func newServices(cfg *config.Config, s *stores) *services {
	auditLogger := audit.NewSlogLogger()
	passwordHasher := identity.NewPasswordHasher(
		cfg.Security.Argon2Memory,
		cfg.Security.Argon2Iterations,
		cfg.Security.Argon2Parallelism,
		cfg.Security.Argon2SaltLength,
		cfg.Security.Argon2KeyLength,
	)

	identities := identity.NewService(
		s.users,
		passwordHasher,
		auditLogger,
		cfg.Security.LockoutMaxAttempts,
		cfg.Security.LockoutDuration,
	)
	companies := company.NewService(s.companies, s.memberships, auditLogger)

	return &services{
		auditLogger: auditLogger,
		identities:  identities,
		companies:   companies,
		authorizer:  authz.NewService(companies, identities),
		bootstrap:   identity.NewBootstrapService(identities, companies, auditLogger),
	}
}

func newMailer(cfg *config.Config) notify.Mailer {
	if cfg.Mail.Driver == config.MailDriverSMTP {
		return notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
			Timeout:  cfg.Mail.Timeout,
		})
	}
	return notify.NewLogMailer(slog.Default().With(logger.Component("mailer")))
}

func runBootstrap(ctx context.Context, cfg *config.Config, svc *services) error {
	if !cfg.Bootstrap.Enabled() {
		return errors.New("BOOTSTRAP_ADMIN_EMAIL is not set")
	}
	return svc.bootstrap.Bootstrap(ctx, identity.BootstrapConfig{
		Email:       cfg.Bootstrap.AdminEmail,
		Password:    cfg.Bootstrap.AdminPassword,
		CompanyName: cfg.Bootstrap.CompanyName,
	})
}

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

package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage drivers
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Mail drivers
const (
	MailDriverSMTP = "smtp"
	MailDriverLog  = "log"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Observability ObservabilityConfig
	Security      SecurityConfig
	Invitation    InvitationConfig
	Mail          MailConfig
	RateLimit     RateLimitConfig
	Bootstrap     BootstrapConfig
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64 `env:"RATELIMIT_RPS" envDefault:"10"`
	Burst             int     `env:"RATELIMIT_BURST" envDefault:"20"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string        `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port           string        `env:"SERVER_PORT" envDefault:"8080"`
	ReadTimeout    time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout   time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout    time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" envDefault:"10s"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string        `env:"DB_DRIVER" envDefault:"postgres"`
	URL             string        `env:"DATABASE_URL"`
	Host            string        `env:"DB_HOST" envDefault:"localhost"`
	Port            string        `env:"DB_PORT" envDefault:"5432"`
	User            string        `env:"DB_USER" envDefault:"provisioner"`
	Password        string        `env:"DB_PASSWORD"`
	Database        string        `env:"DB_NAME" envDefault:"provisioner"`
	SSLMode         string        `env:"DB_SSLMODE" envDefault:"disable"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	AutoMigrate     bool          `env:"DB_AUTO_MIGRATE" envDefault:"false"`
}

// ObservabilityConfig holds logging, tracing and metrics configuration
type ObservabilityConfig struct {
	LogLevel          string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat         string `env:"LOG_FORMAT" envDefault:"json"`
	LogFile           string `env:"LOG_FILE"`
	LogFileMaxSizeMB  int    `env:"LOG_FILE_MAX_SIZE_MB" envDefault:"100"`
	LogFileMaxBackups int    `env:"LOG_FILE_MAX_BACKUPS" envDefault:"5"`
	LogFileMaxAgeDays int    `env:"LOG_FILE_MAX_AGE_DAYS" envDefault:"28"`
	OTELEnabled       bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint      string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELInsecure      bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	ServiceName       string `env:"OTEL_SERVICE_NAME" envDefault:"provisioner"`
	ServiceVersion    string `env:"OTEL_SERVICE_VERSION" envDefault:"0.1.0"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	Argon2Memory       uint32        `env:"ARGON2_MEMORY" envDefault:"65536"`
	Argon2Iterations   uint32        `env:"ARGON2_ITERATIONS" envDefault:"3"`
	Argon2Parallelism  uint8         `env:"ARGON2_PARALLELISM" envDefault:"4"`
	Argon2SaltLength   uint32        `env:"ARGON2_SALT_LENGTH" envDefault:"16"`
	Argon2KeyLength    uint32        `env:"ARGON2_KEY_LENGTH" envDefault:"32"`
	LockoutMaxAttempts int           `env:"SECURITY_LOCKOUT_MAX_ATTEMPTS" envDefault:"5"`
	LockoutDuration    time.Duration `env:"SECURITY_LOCKOUT_DURATION" envDefault:"15m"`
	TokenSecret        string        `env:"TOKEN_SECRET"`
	TokenIssuer        string        `env:"TOKEN_ISSUER" envDefault:"provisioner"`
	TokenTTL           time.Duration `env:"TOKEN_TTL" envDefault:"12h"`
}

// InvitationConfig holds invitation lifecycle configuration
type InvitationConfig struct {
	TTL         time.Duration `env:"INVITATION_TTL" envDefault:"168h"`
	LinkBaseURL string        `env:"INVITATION_LINK_BASE_URL" envDefault:"http://localhost:8080/accept"`
}

// MailConfig holds outbound notification configuration
type MailConfig struct {
	Driver   string        `env:"MAIL_DRIVER" envDefault:"log"`
	Host     string        `env:"SMTP_HOST"`
	Port     int           `env:"SMTP_PORT" envDefault:"587"`
	Username string        `env:"SMTP_USERNAME"`
	Password string        `env:"SMTP_PASSWORD"`
	From     string        `env:"SMTP_FROM" envDefault:"no-reply@localhost"`
	Timeout  time.Duration `env:"SMTP_TIMEOUT" envDefault:"10s"`
}

// BootstrapConfig holds the initial administrator settings
type BootstrapConfig struct {
	AdminEmail    string `env:"BOOTSTRAP_ADMIN_EMAIL"`
	AdminPassword string `env:"BOOTSTRAP_ADMIN_PASSWORD"`
	CompanyName   string `env:"BOOTSTRAP_COMPANY_NAME" envDefault:"Platform"`
}

// Enabled reports whether an administrator should be bootstrapped
func (b BootstrapConfig) Enabled() bool {
	return b.AdminEmail != ""
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	return LoadWith(env.Options{})
}

// LoadWith loads configuration with explicit parser options
func LoadWith(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" && c.Database.Password == "" {
			errs = append(errs, errors.New("DB_PASSWORD or DATABASE_URL is required"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be %q or %q", DriverPostgres, DriverMemory))
	}

	if len(c.Security.TokenSecret) < 32 {
		errs = append(errs, errors.New("TOKEN_SECRET must be at least 32 bytes"))
	}
	if c.Security.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.Invitation.TTL <= 0 {
		errs = append(errs, errors.New("INVITATION_TTL must be positive"))
	}

	switch c.Mail.Driver {
	case MailDriverSMTP:
		if c.Mail.Host == "" {
			errs = append(errs, errors.New("SMTP_HOST is required when MAIL_DRIVER=smtp"))
		}
	case MailDriverLog:
	default:
		errs = append(errs, fmt.Errorf("MAIL_DRIVER must be %q or %q", MailDriverSMTP, MailDriverLog))
	}

	if c.Bootstrap.Enabled() && c.Bootstrap.AdminPassword == "" {
		errs = append(errs, errors.New("BOOTSTRAP_ADMIN_PASSWORD is required with BOOTSTRAP_ADMIN_EMAIL"))
	}

	return errors.Join(errs...)
}

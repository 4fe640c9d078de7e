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
	"strings"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = strings.Repeat("s", 32)

// TestPurpose: Validates that defaults are applied when only required settings are present.
// Scope: Unit Test
// Security: Safe defaults (invitation lifetime, lockout)
// Expected: The invitation lifetime defaults to seven days and lockout to five attempts.
// Test Case ID: CFG-01
func TestConfig_Defaults(t *testing.T) {
	cfg, err := LoadWith(env.Options{Environment: map[string]string{
		"DB_DRIVER":    "memory",
		"TOKEN_SECRET": testSecret,
	}})
	require.NoError(t, err)

	assert.Equal(t, 168*time.Hour, cfg.Invitation.TTL)
	assert.Equal(t, 5, cfg.Security.LockoutMaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.Security.LockoutDuration)
	assert.Equal(t, uint32(65536), cfg.Security.Argon2Memory)
	assert.Equal(t, MailDriverLog, cfg.Mail.Driver)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.False(t, cfg.Bootstrap.Enabled())
}

// TestPurpose: Validates that environment values override defaults.
// Scope: Unit Test
// Security: N/A
// Expected: Durations, numbers and strings are parsed from the environment.
// Test Case ID: CFG-02
func TestConfig_Overrides(t *testing.T) {
	cfg, err := LoadWith(env.Options{Environment: map[string]string{
		"DB_DRIVER":                "postgres",
		"DATABASE_URL":             "postgres://u:p@db:5432/prov",
		"TOKEN_SECRET":             testSecret,
		"INVITATION_TTL":           "48h",
		"RATELIMIT_RPS":            "2.5",
		"MAIL_DRIVER":              "smtp",
		"SMTP_HOST":                "smtp.example.com",
		"SMTP_PORT":                "2525",
		"BOOTSTRAP_ADMIN_EMAIL":    "root@example.com",
		"BOOTSTRAP_ADMIN_PASSWORD": "RootPassword1",
	}})
	require.NoError(t, err)

	assert.Equal(t, 48*time.Hour, cfg.Invitation.TTL)
	assert.Equal(t, 2.5, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 2525, cfg.Mail.Port)
	assert.Equal(t, "postgres://u:p@db:5432/prov", cfg.Database.URL)
	assert.True(t, cfg.Bootstrap.Enabled())
	assert.Equal(t, "Platform", cfg.Bootstrap.CompanyName)
}

// TestPurpose: Validates rejection of unsafe or incomplete configuration.
// Scope: Unit Test
// Security: Weak token signing secrets and missing credentials
// Expected: Every violation is reported in the joined error.
// Test Case ID: CFG-03
func TestConfig_Validate(t *testing.T) {
	_, err := LoadWith(env.Options{Environment: map[string]string{
		"DB_DRIVER":             "postgres",
		"TOKEN_SECRET":          "short",
		"MAIL_DRIVER":           "smtp",
		"BOOTSTRAP_ADMIN_EMAIL": "root@example.com",
	}})
	require.Error(t, err)

	for _, want := range []string{"DB_PASSWORD", "TOKEN_SECRET", "SMTP_HOST", "BOOTSTRAP_ADMIN_PASSWORD"} {
		assert.Contains(t, err.Error(), want)
	}

	_, err = LoadWith(env.Options{Environment: map[string]string{
		"DB_DRIVER":    "sqlite",
		"TOKEN_SECRET": testSecret,
	}})
	assert.ErrorContains(t, err, "DB_DRIVER")
}

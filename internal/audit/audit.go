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

// Package audit records who changed what in the provisioning pipeline.
package audit

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// Event types
const (
	TypeLoginSuccess             = "login_success"
	TypeLoginFailed              = "login_failed"
	TypeUserLocked               = "user_locked"
	TypeUserCreated              = "user_created"
	TypeCredentialSet            = "credential_set"
	TypeCompanyCreated           = "company_created"
	TypeMembershipCreated        = "membership_created"
	TypeInvitationCreated        = "invitation_created"
	TypeInvitationEmailConfirmed = "invitation_email_confirmed"
	TypeInvitationApproved       = "invitation_approved"
	TypeInvitationRejected       = "invitation_rejected"
	TypeInvitationExpired        = "invitation_expired"
	TypeInvitationCompleted      = "invitation_completed"
	TypeInvitationReset          = "invitation_reset"
	TypeAccessDenied             = "access_denied"
	TypeAdminBootstrap           = "admin_bootstrap"
)

// Well-known actors and attribute keys
const (
	ActorSystem          = "system"
	ActorSystemBootstrap = "system:bootstrap"

	AttrReason       = "reason"
	AttrAttempts     = "attempts"
	AttrEmail        = "email"
	AttrRole         = "role"
	AttrCompanyID    = "company_id"
	AttrInvitationID = "invitation_id"
	AttrFromStatus   = "from_status"
	AttrToStatus     = "to_status"
)

// Event represents an auditable action. CompanyID is empty for actions
// that happen before a company exists.
type Event struct {
	Type      string
	CompanyID string
	ActorID   string
	Resource  string
	Metadata  map[string]any
	Timestamp time.Time
	IPAddress string
	UserAgent string
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event)
}

// SlogLogger writes audit events as structured log records
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates an audit logger writing to the default slog logger
// as it is at the time of each event.
func NewSlogLogger() *SlogLogger {
	return &SlogLogger{}
}

// NewSlogLoggerWith creates an audit logger writing to l
func NewSlogLoggerWith(l *slog.Logger) *SlogLogger {
	return &SlogLogger{logger: l}
}

// Log records an audit event. Metadata keys are emitted in sorted order and
// secret-looking values are redacted.
func (l *SlogLogger) Log(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	attrs := []slog.Attr{
		slog.String("component", "audit"),
		slog.String("audit_type", event.Type),
		slog.String("company_id", event.CompanyID),
		slog.String("actor_id", event.ActorID),
		slog.String("resource", event.Resource),
		slog.Time("timestamp", event.Timestamp),
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if len(event.Metadata) > 0 {
		group := make([]any, 0, len(event.Metadata))
		for _, k := range slices.Sorted(maps.Keys(event.Metadata)) {
			v := event.Metadata[k]
			if isSecret(k) {
				v = "[REDACTED]"
			}
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", group...))
	}

	out := l.logger
	if out == nil {
		out = slog.Default()
	}
	out.LogAttrs(ctx, slog.LevelInfo, "AUDIT_EVENT", attrs...)
}

var secretMarkers = []string{"password", "secret", "token", "key", "authorization", "hash", "credential"}

// isSecret checks if a key likely contains a secret
func isSecret(key string) bool {
	k := strings.ToLower(key)
	for _, s := range secretMarkers {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// Recorder keeps events in memory. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Log appends event
func (r *Recorder) Log(ctx context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events in order
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Count returns how many events of eventType were recorded
func (r *Recorder) Count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

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

// Package notify delivers outbound notifications about invitations.
// Delivery is best-effort: callers log failures and carry on.
package notify

import (
	"context"
	"log/slog"

	"github.com/opentrusty/provisioner/internal/observability/logger"
)

// Kind selects the template used for a notification
type Kind string

const (
	KindInvitationCreated  Kind = "invitation_created"
	KindInvitationApproved Kind = "invitation_approved"
	KindInvitationRejected Kind = "invitation_rejected"
)

// Data is the template context of a notification
type Data struct {
	CompanyName string
	Role        string
	InvitedBy   string
	Message     string
	Link        string
	ExpiresAt   string
}

// Message is a single notification to a single recipient
type Message struct {
	To   string
	Kind Kind
	Data Data
}

// Mailer sends notifications
type Mailer interface {
	Notify(ctx context.Context, msg Message) error
}

// LogMailer renders notifications and writes them to the log instead of
// sending them. Used in development and when no SMTP host is configured.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a mailer that logs rendered notifications
func NewLogMailer(l *slog.Logger) *LogMailer {
	if l == nil {
		l = slog.Default()
	}
	return &LogMailer{logger: l.With(logger.Component("mailer"))}
}

// Notify renders msg and logs it
func (m *LogMailer) Notify(ctx context.Context, msg Message) error {
	subject, body, err := Render(msg)
	if err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "notification",
		logger.Email(msg.To),
		logger.NotificationKind(string(msg.Kind)),
		slog.String("subject", subject),
		slog.Int("body_bytes", len(body)),
	)
	return nil
}

// NoopMailer discards notifications
type NoopMailer struct{}

// Notify does nothing
func (NoopMailer) Notify(context.Context, Message) error { return nil }

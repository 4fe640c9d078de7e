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

package invitation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/opentrusty/provisioner/internal/audit"
	"github.com/opentrusty/provisioner/internal/authz"
	"github.com/opentrusty/provisioner/internal/company"
	"github.com/opentrusty/provisioner/internal/identity"
	"github.com/opentrusty/provisioner/internal/notify"
	"github.com/opentrusty/provisioner/internal/observability/logger"
	"github.com/opentrusty/provisioner/internal/observability/metrics"
	"github.com/opentrusty/provisioner/internal/observability/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/opentrusty/provisioner/internal/invitation"

// Authorizer resolves the effective grant of a principal
type Authorizer interface {
	Resolve(ctx context.Context, principalID string) (*authz.Grant, error)
}

// IdentityProvider stores and updates authenticatable identities.
// UpdateIdentity must only activate a disabled placeholder and fail with
// identity.ErrAccountActive for any other identity.
type IdentityProvider interface {
	GetByEmail(ctx context.Context, email string) (*identity.User, error)
	CreateIdentity(ctx context.Context, email, credential string, disabled bool) (*identity.User, error)
	UpdateIdentity(ctx context.Context, userID, credential string) (*identity.User, error)
	VerifyCredential(ctx context.Context, email, credential string) (*identity.User, error)
}

// Companies provisions companies and memberships. Every method is
// check-before-create.
type Companies interface {
	FindByName(ctx context.Context, name string) (*company.Company, error)
	GetCompany(ctx context.Context, id string) (*company.Company, error)
	EnsureCompany(ctx context.Context, name, createdBy string) (*company.Company, error)
	EnsureMembership(ctx context.Context, principalID, companyID, role, grantedBy string) (*company.Membership, error)
	ListMemberships(ctx context.Context, principalID string) ([]*company.Membership, error)
}

// Engine owns every invitation mutation
type Engine struct {
	repo        Repository
	authorizer  Authorizer
	identities  IdentityProvider
	companies   Companies
	mailer      notify.Mailer
	auditLogger audit.Logger

	ttl      time.Duration
	now      func() time.Time
	linkBase string
	logger   *slog.Logger
	tracer   trace.Tracer
	inst     *metrics.Provisioning
}

// Option configures an Engine
type Option func(*Engine)

// WithTTL overrides the invitation lifetime
func WithTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLinkBaseURL sets the URL invitees open to accept; the token is
// appended as a query parameter.
func WithLinkBaseURL(base string) Option {
	return func(e *Engine) { e.linkBase = base }
}

// WithLogger sets the logger used for best-effort failures
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTracer sets the tracer used for operation spans
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithInstruments sets the metric instruments
func WithInstruments(inst *metrics.Provisioning) Option {
	return func(e *Engine) {
		if inst != nil {
			e.inst = inst
		}
	}
}

// NewEngine creates a new invitation engine
func NewEngine(
	repo Repository,
	authorizer Authorizer,
	identities IdentityProvider,
	companies Companies,
	mailer notify.Mailer,
	auditLogger audit.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		repo:        repo,
		authorizer:  authorizer,
		identities:  identities,
		companies:   companies,
		mailer:      mailer,
		auditLogger: auditLogger,
		ttl:         DefaultTTL,
		now:         time.Now,
		tracer:      otel.Tracer(tracerName),
		inst:        metrics.NopProvisioning(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.mailer == nil {
		e.mailer = notify.NoopMailer{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With(logger.Component("invitation"))
	return e
}

// start opens the span of an engine operation. The returned func records
// the outcome and must be deferred with a pointer to the named error.
func (e *Engine) start(ctx context.Context, op string) (context.Context, func(*error)) {
	ctx, span := tracing.StartOperation(ctx, e.tracer, op)
	began := time.Now()
	return ctx, func(errp *error) {
		e.inst.Observe(ctx, op, time.Since(began))
		tracing.EndOperation(span, *errp, KindOf(*errp))
	}
}

// resolve loads the grant of an acting principal. Unknown principals are
// refused rather than reported as missing.
func (e *Engine) resolve(ctx context.Context, op, principalID string) (*authz.Grant, error) {
	if principalID == "" {
		return nil, e.deny(ctx, op, principalID, "anonymous")
	}
	g, err := e.authorizer.Resolve(ctx, principalID)
	if errors.Is(err, authz.ErrPrincipalNotFound) {
		return nil, e.deny(ctx, op, principalID, "unknown principal")
	}
	if err != nil {
		return nil, collaboratorErr(CollaboratorAuthorization, "resolve grant", err)
	}
	return g, nil
}

func (e *Engine) deny(ctx context.Context, op, actorID, reason string) error {
	e.inst.Denied(ctx, op)
	e.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeAccessDenied,
		ActorID:  actorID,
		Resource: "invitation:" + op,
		Metadata: map[string]any{audit.AttrReason: reason},
	})
	return fmt.Errorf("%w: %s", ErrPermissionDenied, reason)
}

func (e *Engine) get(ctx context.Context, invitationID string) (*Invitation, error) {
	inv, err := e.repo.GetByID(ctx, invitationID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, collaboratorErr(CollaboratorStore, "get invitation", err)
	}
	return inv, nil
}

// expire moves a stale invitation to expired. Losing the race to another
// transition is not an error: the row left the expirable states anyway.
func (e *Engine) expire(ctx context.Context, inv *Invitation) error {
	from := inv.Status
	now := e.now()
	updated, err := e.repo.Transition(ctx, Transition{
		ID:            inv.ID,
		From:          expirable,
		To:            StatusExpired,
		At:            now,
		ExpiresBefore: &now,
	})
	if errors.Is(err, ErrStatusConflict) {
		return nil
	}
	if err != nil {
		return collaboratorErr(CollaboratorStore, "expire invitation", err)
	}
	e.recordTransition(ctx, updated, from, audit.TypeInvitationExpired, audit.ActorSystem)
	*inv = *updated
	return nil
}

// ensureNoUnresolved fails with ErrDuplicateInvitation when another
// unresolved invitation exists for email. Stale ones are expired first so
// they do not block.
func (e *Engine) ensureNoUnresolved(ctx context.Context, email, exceptID string) error {
	existing, err := e.repo.ListByEmail(ctx, email, unresolved)
	if err != nil {
		return collaboratorErr(CollaboratorStore, "list invitations", err)
	}
	now := e.now()
	for _, inv := range existing {
		if inv.ID == exceptID {
			continue
		}
		if inv.ExpiredAt(now) {
			if err := e.expire(ctx, inv); err != nil {
				return err
			}
			continue
		}
		return ErrDuplicateInvitation
	}
	return nil
}

func (e *Engine) recordTransition(ctx context.Context, inv *Invitation, from Status, eventType, actorID string) {
	e.inst.Transition(ctx, string(inv.Status))
	e.logger.DebugContext(ctx, "invitation transition",
		logger.InvitationID(inv.ID),
		logger.Transition(string(from), string(inv.Status)),
		logger.Role(inv.Role),
		logger.PrincipalID(actorID),
	)
	e.auditLogger.Log(ctx, audit.Event{
		Type:      eventType,
		CompanyID: stringValue(inv.CompanyID),
		ActorID:   actorID,
		Resource:  inv.ID,
		Metadata: map[string]any{
			audit.AttrInvitationID: inv.ID,
			audit.AttrEmail:        inv.Email,
			audit.AttrRole:         inv.Role,
			audit.AttrFromStatus:   string(from),
			audit.AttrToStatus:     string(inv.Status),
		},
	})
}

// notify delivers a notification without affecting the caller's outcome
func (e *Engine) notify(ctx context.Context, inv *Invitation, kind notify.Kind) {
	data := notify.Data{
		CompanyName: inv.CompanyName,
		Role:        inv.Role,
		InvitedBy:   inv.CreatedBy,
		Message:     inv.Message,
		ExpiresAt:   inv.ExpiresAt.UTC().Format(time.RFC1123),
	}
	if kind == notify.KindInvitationCreated && e.linkBase != "" {
		data.Link = e.linkBase + "?token=" + url.QueryEscape(inv.Token)
	}

	err := e.mailer.Notify(ctx, notify.Message{To: inv.Email, Kind: kind, Data: data})
	if err != nil {
		e.logger.WarnContext(ctx, "notification failed",
			logger.InvitationID(inv.ID),
			logger.Email(inv.Email),
			logger.NotificationKind(string(kind)),
			logger.Error(err),
		)
	}
}

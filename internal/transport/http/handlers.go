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

// @title OpenTrusty Provisioner API
// @version 1.0.0
// @description Invitation-driven account provisioning for multi-tenant companies

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opentrusty/provisioner/internal/identity"
	"github.com/opentrusty/provisioner/internal/invitation"
	"github.com/opentrusty/provisioner/internal/observability/logger"
	"github.com/opentrusty/provisioner/internal/session"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "opentrusty-provisioner"

// Handler holds HTTP handlers and dependencies
type Handler struct {
	engine          *invitation.Engine
	identityService *identity.Service
	issuer          *session.Issuer
}

// NewHandler creates a new HTTP handler
func NewHandler(
	engine *invitation.Engine,
	identityService *identity.Service,
	issuer *session.Issuer,
) *Handler {
	return &Handler{
		engine:          engine,
		identityService: identityService,
		issuer:          issuer,
	}
}

// NewRouter creates a new HTTP router. A non-positive requestTimeout
// disables the per-request deadline.
func NewRouter(h *Handler, rateLimiter *RateLimiter, requestTimeout time.Duration) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	if rateLimiter != nil {
		r.Use(RateLimitMiddleware(rateLimiter))
	}
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	if requestTimeout > 0 {
		r.Use(middleware.Timeout(requestTimeout))
	}

	// Health check
	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/sign-in", h.SignIn)

		r.Route("/invitations", func(r chi.Router) {
			// Invitee endpoints, authenticated by the invitation token
			r.Get("/validate", h.ValidateInvitation)
			r.Post("/confirm", h.ConfirmInvitation)

			r.Group(func(r chi.Router) {
				r.Use(h.AuthMiddleware)

				r.Post("/", h.CreateInvitation)
				r.Get("/", h.ListInvitations)
				r.Route("/{invitationID}", func(r chi.Router) {
					r.Get("/", h.GetInvitation)
					r.Post("/approve", h.ApproveInvitation)
					r.Post("/reject", h.RejectInvitation)
					r.Post("/reset", h.ResetInvitation)
				})
			})
		})
	})

	return r
}

// HealthCheck returns the health status
// @Summary Health Check
// @Description Checks if the service is up and running
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": serviceName,
	})
}

// SignInRequest represents sign-in credentials
type SignInRequest struct {
	Email    string `json:"email" example:"user@example.com"`
	Password string `json:"password" example:"secret123"`
}

// SignInResponse carries the issued access token
type SignInResponse struct {
	AccessToken           string    `json:"access_token"`
	TokenType             string    `json:"token_type"`
	ExpiresAt             time.Time `json:"expires_at"`
	PrincipalID           string    `json:"principal_id"`
	CompletedInvitationID string    `json:"completed_invitation_id,omitempty"`
}

// SignIn authenticates a principal and completes its approved invitation
// @Summary Sign in
// @Description Verify credentials, complete an approved invitation on first sign-in and issue an access token
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body SignInRequest true "Credentials"
// @Success 200 {object} SignInResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /auth/sign-in [post]
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.identityService.VerifyCredential(r.Context(), req.Email, req.Password)
	if err != nil {
		// Disabled, locked and unknown accounts are indistinguishable to the caller
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	resp := SignInResponse{TokenType: "Bearer", PrincipalID: user.ID}

	completed, err := h.engine.HandleSignIn(r.Context(), user.ID, user.Email)
	if err != nil {
		// Sign-in still succeeds; the next sign-in retries completion
		slog.WarnContext(r.Context(), "invitation completion on sign-in failed",
			logger.RequestID(middleware.GetReqID(r.Context())),
			logger.PrincipalID(user.ID),
			logger.ErrorType(invitation.KindOf(err)),
			logger.Error(err),
		)
	} else if completed != nil {
		resp.CompletedInvitationID = completed.ID
	}

	token, sess, err := h.issuer.Issue(user.ID, user.Email)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to issue access token",
			logger.PrincipalID(user.ID),
			logger.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "failed to issue access token")
		return
	}
	resp.AccessToken = token
	resp.ExpiresAt = sess.ExpiresAt

	respondJSON(w, http.StatusOK, resp)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

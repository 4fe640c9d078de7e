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

package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opentrusty/provisioner/internal/invitation"
	"github.com/opentrusty/provisioner/internal/observability/logger"
)

// InvitationResponse is the public view of an invitation. The token is
// only ever returned to the issuer at creation time.
type InvitationResponse struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	CompanyName      string     `json:"company_name"`
	CompanyID        *string    `json:"company_id,omitempty"`
	Role             string     `json:"role"`
	Status           string     `json:"status"`
	Message          string     `json:"message,omitempty"`
	CreatedBy        string     `json:"created_by"`
	CreatedAt        time.Time  `json:"created_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	AdminApprovedAt  *time.Time `json:"admin_approved_at,omitempty"`
	AdminApprovedBy  *string    `json:"admin_approved_by,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	RejectedAt       *time.Time `json:"rejected_at,omitempty"`
	RejectedBy       *string    `json:"rejected_by,omitempty"`
}

func toInvitationResponse(inv *invitation.Invitation) InvitationResponse {
	return InvitationResponse{
		ID:               inv.ID,
		Email:            inv.Email,
		CompanyName:      inv.CompanyName,
		CompanyID:        inv.CompanyID,
		Role:             inv.Role,
		Status:           string(inv.Status),
		Message:          inv.Message,
		CreatedBy:        inv.CreatedBy,
		CreatedAt:        inv.CreatedAt,
		ExpiresAt:        inv.ExpiresAt,
		EmailConfirmedAt: inv.EmailConfirmedAt,
		AdminApprovedAt:  inv.AdminApprovedAt,
		AdminApprovedBy:  inv.AdminApprovedBy,
		CompletedAt:      inv.CompletedAt,
		RejectedAt:       inv.RejectedAt,
		RejectedBy:       inv.RejectedBy,
	}
}

// statusForKind maps engine error kinds to HTTP status codes
var statusForKind = map[string]int{
	invitation.KindPermissionDenied:    http.StatusForbidden,
	invitation.KindNotFound:            http.StatusNotFound,
	invitation.KindExpired:             http.StatusBadRequest,
	invitation.KindAlreadyUsed:         http.StatusBadRequest,
	invitation.KindInvalidInput:        http.StatusBadRequest,
	invitation.KindInvalidState:        http.StatusConflict,
	invitation.KindDuplicateInvitation: http.StatusConflict,
}

// respondEngineError writes the HTTP form of an engine error. Collaborator
// and unclassified failures are logged and reported without detail.
func respondEngineError(w http.ResponseWriter, r *http.Request, err error) {
	kind := invitation.KindOf(err)
	noteErrorKind(r.Context(), kind)
	status, ok := statusForKind[kind]
	if !ok {
		slog.ErrorContext(r.Context(), "invitation request failed",
			logger.RequestID(middleware.GetReqID(r.Context())),
			logger.Method(r.Method),
			logger.Path(r.URL.Path),
			logger.ErrorType(kind),
			logger.Error(err),
		)
		respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal error",
			"code":  kind,
		})
		return
	}
	respondJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  kind,
	})
}

// requirePrincipal returns the authenticated principal or writes 401
func requirePrincipal(w http.ResponseWriter, r *http.Request) (string, bool) {
	principalID := GetPrincipalID(r.Context())
	if principalID == "" {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return "", false
	}
	return principalID, true
}

// CreateInvitationRequest represents invitation creation data
type CreateInvitationRequest struct {
	Email       string `json:"email" example:"alice@example.com"`
	CompanyName string `json:"company_name" example:"Acme Co"`
	Role        string `json:"role" example:"tech"`
	Message     string `json:"message" example:"Welcome aboard"`
}

// CreateInvitationResponse carries the new invitation and its token
type CreateInvitationResponse struct {
	InvitationID string    `json:"invitation_id"`
	Token        string    `json:"token"`
	Status       string    `json:"status"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// CreateInvitation handles invitation creation
// @Summary Create Invitation
// @Description Invite an email address to join a company with a role
// @Tags Invitation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateInvitationRequest true "Invitation Data"
// @Success 201 {object} CreateInvitationResponse
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /invitations [post]
func (h *Handler) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	issuerID, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req CreateInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	inv, err := h.engine.CreateInvitation(r.Context(), invitation.CreateRequest{
		IssuerID:    issuerID,
		Email:       req.Email,
		CompanyName: req.CompanyName,
		Role:        req.Role,
		Message:     req.Message,
	})
	if err != nil {
		respondEngineError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, CreateInvitationResponse{
		InvitationID: inv.ID,
		Token:        inv.Token,
		Status:       string(inv.Status),
		ExpiresAt:    inv.ExpiresAt,
	})
}

// parseListFilter reads status, email, limit and offset query parameters
func parseListFilter(r *http.Request) (invitation.Filter, string) {
	q := r.URL.Query()
	filter := invitation.Filter{Email: q.Get("email")}

	for _, raw := range q["status"] {
		for _, part := range strings.Split(raw, ",") {
			s := invitation.Status(strings.TrimSpace(part))
			if s == "" {
				continue
			}
			if !s.Valid() {
				return filter, "invalid status: " + string(s)
			}
			filter.Statuses = append(filter.Statuses, s)
		}
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, "invalid limit"
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, "invalid offset"
		}
		filter.Offset = n
	}
	return filter, ""
}

// ListInvitations lists the invitations visible to the caller
// @Summary List Invitations
// @Description Admins see every invitation; other principals see the ones they issued
// @Tags Invitation
// @Produce json
// @Security BearerAuth
// @Param status query string false "Comma-separated statuses"
// @Param email query string false "Invitee email"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Router /invitations [get]
func (h *Handler) ListInvitations(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	filter, problem := parseListFilter(r)
	if problem != "" {
		respondError(w, http.StatusBadRequest, problem)
		return
	}

	list, err := h.engine.ListInvitations(r.Context(), viewerID, filter)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}

	out := make([]InvitationResponse, 0, len(list))
	for _, inv := range list {
		out = append(out, toInvitationResponse(inv))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"invitations": out,
		"count":       len(out),
	})
}

// GetInvitation returns one invitation
// @Summary Get Invitation
// @Tags Invitation
// @Produce json
// @Security BearerAuth
// @Param invitationID path string true "Invitation ID"
// @Success 200 {object} InvitationResponse
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /invitations/{invitationID} [get]
func (h *Handler) GetInvitation(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	inv, err := h.engine.GetInvitation(r.Context(), viewerID, chi.URLParam(r, "invitationID"))
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toInvitationResponse(inv))
}

// ValidateInvitation checks an invitation token
// @Summary Validate Invitation Token
// @Description Returns the pending invitation bound to the token
// @Tags Invitation
// @Produce json
// @Param token query string true "Invitation token"
// @Success 200 {object} InvitationResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /invitations/validate [get]
func (h *Handler) ValidateInvitation(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, http.StatusBadRequest, "token is required")
		return
	}

	inv, err := h.engine.ValidateToken(r.Context(), token)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toInvitationResponse(inv))
}

// ConfirmInvitationRequest represents the invitee's acceptance
type ConfirmInvitationRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ConfirmInvitation confirms the invitee's email and sets a credential
// @Summary Confirm Invitation
// @Description Set the invitee credential and mark the email as confirmed
// @Tags Invitation
// @Accept json
// @Produce json
// @Param request body ConfirmInvitationRequest true "Token and password"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /invitations/confirm [post]
func (h *Handler) ConfirmInvitation(w http.ResponseWriter, r *http.Request) {
	var req ConfirmInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" {
		respondError(w, http.StatusBadRequest, "token is required")
		return
	}

	c, err := h.engine.ConfirmEmail(r.Context(), req.Token, req.Password)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"principal_id":  c.PrincipalID,
		"invitation_id": c.Invitation.ID,
		"status":        string(c.Invitation.Status),
	})
}

// ApproveInvitation approves a confirmed invitation
// @Summary Approve Invitation
// @Tags Invitation
// @Produce json
// @Security BearerAuth
// @Param invitationID path string true "Invitation ID"
// @Success 200 {object} InvitationResponse
// @Failure 403 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /invitations/{invitationID}/approve [post]
func (h *Handler) ApproveInvitation(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.engine.Approve)
}

// RejectInvitation rejects a pending or confirmed invitation
// @Summary Reject Invitation
// @Tags Invitation
// @Produce json
// @Security BearerAuth
// @Param invitationID path string true "Invitation ID"
// @Success 200 {object} InvitationResponse
// @Failure 403 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /invitations/{invitationID}/reject [post]
func (h *Handler) RejectInvitation(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.engine.Reject)
}

// ResetInvitation returns an expired or rejected invitation to pending
// @Summary Reset Invitation
// @Tags Invitation
// @Produce json
// @Security BearerAuth
// @Param invitationID path string true "Invitation ID"
// @Success 200 {object} InvitationResponse
// @Failure 403 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /invitations/{invitationID}/reset [post]
func (h *Handler) ResetInvitation(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.engine.Reset)
}

// review runs an approver action on the invitation named in the path
func (h *Handler) review(w http.ResponseWriter, r *http.Request, op func(context.Context, string, string) (*invitation.Invitation, error)) {
	actorID, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	inv, err := op(r.Context(), actorID, chi.URLParam(r, "invitationID"))
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toInvitationResponse(inv))
}

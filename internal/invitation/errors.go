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
	"errors"
	"fmt"

	"github.com/opentrusty/provisioner/internal/authz"
)

// Domain errors
var (
	ErrPermissionDenied    = authz.ErrPermissionDenied
	ErrNotFound            = errors.New("invitation not found")
	ErrExpired             = errors.New("invitation expired")
	ErrAlreadyUsed         = errors.New("invitation already used")
	ErrInvalidState        = errors.New("invitation is not in a state that allows this transition")
	ErrDuplicateInvitation = errors.New("an unresolved invitation already exists for this email")
	ErrInvalidInput        = errors.New("invalid invitation request")
	ErrCollaboratorFailure = errors.New("collaborator failure")

	// ErrStatusConflict is returned by Repository.Transition and
	// Repository.Reset when the row is no longer in one of the expected
	// statuses. The engine never returns it to callers.
	ErrStatusConflict = errors.New("invitation status changed concurrently")
)

// Collaborators the engine depends on
const (
	CollaboratorStore         = "store"
	CollaboratorIdentity      = "identity_provider"
	CollaboratorCompany       = "company"
	CollaboratorAuthorization = "authorization"
)

// CollaboratorError reports a failure of an external collaborator. It
// matches ErrCollaboratorFailure under errors.Is and unwraps to the cause.
type CollaboratorError struct {
	Collaborator string
	Op           string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Collaborator, e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// Is makes every CollaboratorError match ErrCollaboratorFailure
func (e *CollaboratorError) Is(target error) bool {
	return target == ErrCollaboratorFailure
}

func collaboratorErr(collaborator, op string, err error) error {
	return &CollaboratorError{Collaborator: collaborator, Op: op, Err: err}
}

// Kind discriminators returned by KindOf
const (
	KindPermissionDenied    = "permission_denied"
	KindNotFound            = "not_found"
	KindExpired             = "expired"
	KindAlreadyUsed         = "already_used"
	KindInvalidState        = "invalid_state"
	KindDuplicateInvitation = "duplicate_invitation"
	KindInvalidInput        = "invalid_input"
	KindCollaboratorFailure = "collaborator_failure"
	KindInternal            = "internal"
)

// KindOf classifies an engine error. Collaborator failures are checked
// first so a wrapped cause never masquerades as a domain outcome.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCollaboratorFailure):
		return KindCollaboratorFailure
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrExpired):
		return KindExpired
	case errors.Is(err, ErrAlreadyUsed):
		return KindAlreadyUsed
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrDuplicateInvitation):
		return KindDuplicateInvitation
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	default:
		return KindInternal
	}
}

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

package logger

import (
	"log/slog"
	"strings"
)

// Request attributes
func RequestID(id string) slog.Attr {
	return slog.String("request_id", id)
}

func Method(method string) slog.Attr {
	return slog.String("method", method)
}

func Path(path string) slog.Attr {
	return slog.String("path", path)
}

func RemoteAddr(addr string) slog.Attr {
	return slog.String("remote_addr", addr)
}

func UserAgent(ua string) slog.Attr {
	return slog.String("user_agent", ua)
}

func StatusCode(code int) slog.Attr {
	return slog.Int("status_code", code)
}

func Duration(ms int64) slog.Attr {
	return slog.Int64("duration_ms", ms)
}

// Principal attributes
func PrincipalID(id string) slog.Attr {
	return slog.String("principal_id", id)
}

// Email logs an address with its local part masked. Invitee addresses reach
// the logs before the invitee has agreed to anything.
func Email(email string) slog.Attr {
	return slog.String("email", MaskEmail(email))
}

// MaskEmail keeps the first character of the local part and the domain:
// "alice@example.com" becomes "a***@example.com".
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}

// Provisioning attributes
func InvitationID(id string) slog.Attr {
	return slog.String("invitation_id", id)
}

func CompanyID(id string) slog.Attr {
	return slog.String("company_id", id)
}

func Role(role string) slog.Attr {
	return slog.String("role", role)
}

// Transition groups the source and target status of an invitation change.
func Transition(from, to string) slog.Attr {
	return slog.Group("transition", slog.String("from", from), slog.String("to", to))
}

func NotificationKind(kind string) slog.Attr {
	return slog.String("notification_kind", kind)
}

// Error attributes
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// ErrorType carries the stable error kind, e.g. "collaborator_failure".
func ErrorType(errType string) slog.Attr {
	return slog.String("error_type", errType)
}

// Component attributes
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func Operation(op string) slog.Attr {
	return slog.String("operation", op)
}

// String creates a generic string attribute
func String(key, value string) slog.Attr {
	return slog.String(key, value)
}

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
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/opentrusty/provisioner/internal/observability/logger"
	"github.com/opentrusty/provisioner/internal/observability/tracing"
	"github.com/opentrusty/provisioner/internal/session"
	"go.opentelemetry.io/otel/trace"
)

// Authorization Principles:
// 1. The acting principal is derived only from a verified bearer token
// 2. Request bodies never name the actor
// 3. Roles are resolved per request by the engine, never cached in the token

// LoggingMiddleware writes one access log record per request. The level
// follows the response: 5xx is an error, 4xx a warning.
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rl := &requestLog{}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				attrs := []slog.Attr{
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(getClientIP(r)),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(status),
					logger.Duration(time.Since(start).Milliseconds()),
				}
				if rl.principalID != "" {
					attrs = append(attrs, logger.PrincipalID(rl.principalID))
				}
				if rl.errorKind != "" {
					attrs = append(attrs, logger.ErrorType(rl.errorKind))
				}
				slog.LogAttrs(r.Context(), accessLogLevel(status), "http_request", attrs...)
			}()

			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), requestLogKey, rl)))
		})
	}
}

func accessLogLevel(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// bearerToken extracts the token from an "Authorization: Bearer" header
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// AuthMiddleware verifies the bearer token and adds the principal to context
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		sess, err := h.issuer.Parse(token)
		if err != nil {
			if !errors.Is(err, session.ErrSessionExpired) {
				slog.WarnContext(r.Context(), "rejected access token",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Error(err),
				)
			}
			respondError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		trace.SpanFromContext(r.Context()).SetAttributes(tracing.AttrPrincipalID.String(sess.PrincipalID))
		ctx := withPrincipal(r.Context(), Principal{
			ID:        sess.PrincipalID,
			Email:     sess.Email,
			SessionID: sess.ID,
		})

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

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

import "context"

type contextKey string

const (
	principalKey  contextKey = "principal"
	requestLogKey contextKey = "request_log"
)

// Principal is the caller authenticated by a bearer token
type Principal struct {
	ID        string
	Email     string
	SessionID string
}

// requestLog is filled in by inner handlers and read by LoggingMiddleware
// once the request has been served.
type requestLog struct {
	principalID string
	errorKind   string
}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	if rl, ok := ctx.Value(requestLogKey).(*requestLog); ok {
		rl.principalID = p.ID
	}
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok && p.ID != ""
}

// GetPrincipalID retrieves the authenticated principal ID from context.
func GetPrincipalID(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.ID
}

// noteErrorKind records the engine error kind of a failed request for the
// access log.
func noteErrorKind(ctx context.Context, kind string) {
	if rl, ok := ctx.Value(requestLogKey).(*requestLog); ok {
		rl.errorKind = kind
	}
}

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

// Package session issues and verifies the bearer tokens that identify a
// signed-in principal to the HTTP API.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/opentrusty/provisioner/internal/id"
)

// Domain errors
var (
	ErrSessionExpired = errors.New("session expired")
	ErrSessionInvalid = errors.New("session invalid")
)

// minSecretLength is the shortest accepted HMAC secret in bytes
const minSecretLength = 32

// Session is the verified content of a bearer token
type Session struct {
	ID          string
	PrincipalID string
	Email       string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Issuer signs and verifies HS256 session tokens
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates a session issuer. The secret must be at least 32 bytes.
func NewIssuer(secret []byte, issuer string, ttl time.Duration) (*Issuer, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes", minSecretLength)
	}
	if ttl <= 0 {
		return nil, errors.New("session lifetime must be positive")
	}
	return &Issuer{secret: secret, issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// WithClock returns a copy of the issuer using now as its time source
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	cp := *i
	cp.now = now
	return &cp
}

// Issue creates a signed token for a principal
func (i *Issuer) Issue(principalID, email string) (string, *Session, error) {
	now := i.now().UTC().Truncate(time.Second)
	s := &Session{
		ID:          id.NewUUIDv7(),
		PrincipalID: principalID,
		Email:       email,
		IssuedAt:    now,
		ExpiresAt:   now.Add(i.ttl),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.ID,
			Issuer:    i.issuer,
			Subject:   principalID,
			IssuedAt:  jwt.NewNumericDate(s.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
		Email: email,
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, s, nil
}

// Parse verifies a token and returns its session
func (i *Issuer) Parse(tokenString string) (*Session, error) {
	var c claims
	_, err := jwt.ParseWithClaims(tokenString, &c, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}
	if c.Subject == "" {
		return nil, ErrSessionInvalid
	}

	s := &Session{
		ID:          c.ID,
		PrincipalID: c.Subject,
		Email:       c.Email,
	}
	if c.IssuedAt != nil {
		s.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	}
	return s, nil
}

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

package company

import (
	"time"
)

// Company is the tenant boundary that memberships and visibility are scoped to
type Company struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	AddressLine1     string    `json:"address_line1,omitempty"`
	AddressLine2     string    `json:"address_line2,omitempty"`
	City             string    `json:"city,omitempty"`
	Region           string    `json:"region,omitempty"`
	PostalCode       string    `json:"postal_code,omitempty"`
	Country          string    `json:"country,omitempty"`
	ContactName      string    `json:"contact_name,omitempty"`
	ContactEmail     string    `json:"contact_email,omitempty"`
	ContactPhone     string    `json:"contact_phone,omitempty"`
	DepreciationRate float64   `json:"depreciation_rate"`
	CreatedBy        string    `json:"created_by,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Membership grants a principal a role within a company
type Membership struct {
	ID          string    `json:"id"`
	PrincipalID string    `json:"principal_id"`
	CompanyID   string    `json:"company_id"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

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

package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

var subjects = map[Kind]string{
	KindInvitationCreated:  "You're invited to join %s",
	KindInvitationApproved: "Your access to %s was approved",
	KindInvitationRejected: "Your invitation to %s was declined",
}

// Render returns the subject and HTML body for msg
func Render(msg Message) (subject, body string, err error) {
	format, ok := subjects[msg.Kind]
	if !ok {
		return "", "", fmt.Errorf("unknown notification kind %q", msg.Kind)
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, string(msg.Kind)+".html", msg.Data); err != nil {
		return "", "", fmt.Errorf("failed to execute template %s: %w", msg.Kind, err)
	}

	company := msg.Data.CompanyName
	if company == "" {
		company = "a team"
	}
	return fmt.Sprintf(format, company), buf.String(), nil
}

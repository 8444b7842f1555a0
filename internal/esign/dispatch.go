// Copyright (c) 2026 John Earle
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

package esign

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// IdempotencyHeader carries the per-submission key on envelope creation.
const IdempotencyHeader = "Idempotency-Key"

// Recipient identifies the person who signs the envelope.
type Recipient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// EnvelopeSummary is the provider's answer to an envelope submission.
type EnvelopeSummary struct {
	EnvelopeID string `json:"envelopeId"`
	Status     string `json:"status"`
}

type templateRole struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	RoleName string `json:"roleName"`
	Tabs     Tabs   `json:"tabs"`
}

type envelopeDefinition struct {
	TemplateID    string         `json:"templateId"`
	EmailSubject  string         `json:"emailSubject,omitempty"`
	TemplateRoles []templateRole `json:"templateRoles"`
	Status        string         `json:"status"`
}

// SendEnvelope creates an envelope from the configured template and sends
// it immediately. Failures other than authentication are
// *EnvelopeSubmissionError.
func (c *Client) SendEnvelope(ctx context.Context, recipient Recipient, tabs Tabs) (*EnvelopeSummary, error) {
	name := strings.TrimSpace(recipient.Name)
	email := strings.TrimSpace(recipient.Email)
	if name == "" || email == "" {
		return nil, &EnvelopeSubmissionError{Message: "recipient name and email are required"}
	}

	def := envelopeDefinition{
		TemplateID:   c.creds.TemplateID,
		EmailSubject: c.emailSubject,
		TemplateRoles: []templateRole{{
			Name:     name,
			Email:    email,
			RoleName: c.templateRole,
			Tabs:     tabs,
		}},
		Status: StatusSent,
	}

	body, err := json.Marshal(def)
	if err != nil {
		return nil, &EnvelopeSubmissionError{Err: fmt.Errorf("marshal envelope: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.envelopesURL(), bytes.NewReader(body))
	if err != nil {
		return nil, &EnvelopeSubmissionError{Err: fmt.Errorf("build envelope request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(IdempotencyHeader, c.newIdempotencyKey())

	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &EnvelopeSubmissionError{Err: fmt.Errorf("send envelope: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &EnvelopeSubmissionError{Status: resp.StatusCode, Err: fmt.Errorf("read envelope response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		code, message := parseAPIError(respBody)
		return nil, &EnvelopeSubmissionError{Status: resp.StatusCode, Code: code, Message: message}
	}

	var summary EnvelopeSummary
	if err := json.Unmarshal(respBody, &summary); err != nil {
		return nil, &EnvelopeSubmissionError{Status: resp.StatusCode, Message: "unparseable envelope response", Err: err}
	}
	if summary.EnvelopeID == "" {
		return nil, &EnvelopeSubmissionError{Status: resp.StatusCode, Message: "envelope response missing envelopeId"}
	}

	slog.Info("envelope sent",
		"envelope_id", summary.EnvelopeID,
		"status", summary.Status,
		"tabs", tabs.Len(),
	)

	return &summary, nil
}

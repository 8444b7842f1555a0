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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Envelope lifecycle statuses. The provider owns the lifecycle; these are
// only observed.
const (
	StatusCreated   = "created"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusCompleted = "completed"
	StatusDeclined  = "declined"
	StatusVoided    = "voided"
)

// IsTerminal reports whether an envelope in status can no longer change.
func IsTerminal(status string) bool {
	switch strings.ToLower(status) {
	case StatusCompleted, StatusDeclined, StatusVoided:
		return true
	}
	return false
}

// EnvelopeStatus is the current lifecycle state of an envelope. Timestamps
// the provider did not report are nil.
type EnvelopeStatus struct {
	EnvelopeID            string     `json:"envelopeId"`
	Status                string     `json:"status"`
	StatusDateTime        *time.Time `json:"statusDateTime"`
	StatusChangedDateTime *time.Time `json:"statusChangedDateTime"`
	SentDateTime          *time.Time `json:"sentDateTime"`
	CompletedDateTime     *time.Time `json:"completedDateTime"`
}

type envelopeResponse struct {
	EnvelopeID            string `json:"envelopeId"`
	Status                string `json:"status"`
	StatusDateTime        string `json:"statusDateTime"`
	StatusChangedDateTime string `json:"statusChangedDateTime"`
	SentDateTime          string `json:"sentDateTime"`
	CompletedDateTime     string `json:"completedDateTime"`
}

// EnvelopeStatus fetches the current status of an envelope. Failures other
// than authentication are *EnvelopeStatusError.
func (c *Client) EnvelopeStatus(ctx context.Context, envelopeID string) (*EnvelopeStatus, error) {
	if strings.TrimSpace(envelopeID) == "" {
		return nil, &EnvelopeStatusError{Message: "envelope id is required"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.envelopesURL(envelopeID), nil)
	if err != nil {
		return nil, &EnvelopeStatusError{EnvelopeID: envelopeID, Err: fmt.Errorf("build status request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &EnvelopeStatusError{EnvelopeID: envelopeID, Err: fmt.Errorf("fetch status: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &EnvelopeStatusError{EnvelopeID: envelopeID, Status: resp.StatusCode, Err: fmt.Errorf("read status response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		code, message := parseAPIError(body)
		return nil, &EnvelopeStatusError{EnvelopeID: envelopeID, Status: resp.StatusCode, Code: code, Message: message}
	}

	st, err := parseEnvelopeStatus(body)
	if err != nil {
		return nil, &EnvelopeStatusError{EnvelopeID: envelopeID, Status: resp.StatusCode, Message: "unparseable status response", Err: err}
	}
	if st.EnvelopeID == "" {
		st.EnvelopeID = envelopeID
	}
	return st, nil
}

func parseEnvelopeStatus(body []byte) (*EnvelopeStatus, error) {
	var raw envelopeResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	status := strings.ToLower(strings.TrimSpace(raw.Status))
	if status == "" {
		return nil, fmt.Errorf("missing status")
	}

	st := &EnvelopeStatus{EnvelopeID: raw.EnvelopeID, Status: status}
	fields := []struct {
		name string
		raw  string
		dst  **time.Time
	}{
		{"statusDateTime", raw.StatusDateTime, &st.StatusDateTime},
		{"statusChangedDateTime", raw.StatusChangedDateTime, &st.StatusChangedDateTime},
		{"sentDateTime", raw.SentDateTime, &st.SentDateTime},
		{"completedDateTime", raw.CompletedDateTime, &st.CompletedDateTime},
	}
	for _, f := range fields {
		ts, err := ParseTimestamp(f.raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = ts
	}
	return st, nil
}

// ParseTimestamp parses a provider timestamp. Blank input yields nil.
func ParseTimestamp(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

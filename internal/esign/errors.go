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
	"encoding/json"
	"fmt"
	"strings"
)

const genericAuthMessage = "authentication with the e-signature provider failed"

// AuthenticationError reports a failed token exchange. The message is the
// provider's error_description when one was returned.
type AuthenticationError struct {
	Status      int
	Code        string
	Description string
	Err         error
}

func (e *AuthenticationError) Error() string {
	if e.Description != "" {
		return e.Description
	}
	return genericAuthMessage
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// EnvelopeSubmissionError reports a failed envelope creation.
type EnvelopeSubmissionError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *EnvelopeSubmissionError) Error() string {
	return formatProviderError("envelope submission", e.Status, e.Code, e.Message, e.Err)
}

func (e *EnvelopeSubmissionError) Unwrap() error { return e.Err }

// EnvelopeStatusError reports a failed envelope status lookup.
type EnvelopeStatusError struct {
	EnvelopeID string
	Status     int
	Code       string
	Message    string
	Err        error
}

func (e *EnvelopeStatusError) Error() string {
	return formatProviderError("envelope status "+e.EnvelopeID, e.Status, e.Code, e.Message, e.Err)
}

func (e *EnvelopeStatusError) Unwrap() error { return e.Err }

// DocumentRetrievalError reports a failed signed-document download.
// BodyExcerpt holds the start of the provider's response body.
type DocumentRetrievalError struct {
	EnvelopeID  string
	Status      int
	BodyExcerpt string
	Err         error
}

func (e *DocumentRetrievalError) Error() string {
	return formatProviderError("document retrieval "+e.EnvelopeID, e.Status, "", e.BodyExcerpt, e.Err)
}

func (e *DocumentRetrievalError) Unwrap() error { return e.Err }

func formatProviderError(op string, status int, code, message string, err error) string {
	var b strings.Builder
	b.WriteString(op)
	b.WriteString(" failed")
	if status != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", status)
	}
	if code != "" {
		b.WriteString(" ")
		b.WriteString(code)
	}
	if message != "" {
		b.WriteString(": ")
		b.WriteString(message)
	}
	if err != nil {
		b.WriteString(": ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// apiErrorBody is the error shape returned by the REST API.
type apiErrorBody struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

// parseAPIError extracts errorCode/message from an error body. Bodies that
// are not JSON yield the trimmed excerpt as the message.
func parseAPIError(body []byte) (code, message string) {
	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && (parsed.ErrorCode != "" || parsed.Message != "") {
		return parsed.ErrorCode, parsed.Message
	}
	return "", excerpt(body)
}

const maxExcerpt = 512

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxExcerpt {
		s = s[:maxExcerpt]
	}
	return s
}

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

// Package models defines the data structures shared across the dispatch service.
package models

import "time"

// Event sources.
const (
	SourceDispatch  = "dispatch"
	SourceConnect   = "connect"
	SourceReconcile = "reconcile"
)

// EnvelopeEvent is a lifecycle change of one envelope, published for the
// back-office workers that update the policy record.
//
// The JSON shape is consumed outside this service; field names are part of
// that contract.
type EnvelopeEvent struct {
	EnvelopeID     string    `json:"envelope_id"`
	PolicyRef      string    `json:"policy_ref,omitempty"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	ChangedAt      time.Time `json:"changed_at"`
	DocumentKey    string    `json:"document_key,omitempty"`
	Source         string    `json:"source"`
}

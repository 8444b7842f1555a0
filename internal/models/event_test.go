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

package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// TestEnvelopeEvent_JSON verifies the wire field names consumers rely on.
func TestEnvelopeEvent_JSON(t *testing.T) {
	ev := EnvelopeEvent{
		EnvelopeID:     "abc123",
		PolicyRef:      "VPP-1001",
		Status:         "completed",
		PreviousStatus: "sent",
		ChangedAt:      time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC),
		DocumentKey:    "signed/abc123/contract.pdf",
		Source:         SourceConnect,
	}

	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, want := range []string{
		`"envelope_id":"abc123"`,
		`"policy_ref":"VPP-1001"`,
		`"previous_status":"sent"`,
		`"changed_at":"2024-05-02T09:30:00Z"`,
		`"document_key":"signed/abc123/contract.pdf"`,
		`"source":"connect"`,
	} {
		if !strings.Contains(string(b), want) {
			t.Errorf("JSON %s missing %s", b, want)
		}
	}

	b, _ = json.Marshal(EnvelopeEvent{EnvelopeID: "e1", Status: "sent", Source: SourceDispatch})
	if strings.Contains(string(b), "previous_status") || strings.Contains(string(b), "document_key") {
		t.Errorf("empty optional fields should be omitted: %s", b)
	}
}

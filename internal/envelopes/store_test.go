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

package envelopes

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shieldline/esign/internal/esign"
)

// TestAccepts verifies terminal statuses are never overwritten.
func TestAccepts(t *testing.T) {
	tests := []struct {
		current, next string
		want          bool
	}{
		{esign.StatusSent, esign.StatusDelivered, true},
		{esign.StatusDelivered, esign.StatusCompleted, true},
		{esign.StatusSent, esign.StatusSent, true},
		{esign.StatusCompleted, esign.StatusCompleted, true},
		{esign.StatusCompleted, esign.StatusDelivered, false},
		{esign.StatusDeclined, esign.StatusSent, false},
		{esign.StatusVoided, esign.StatusCompleted, false},
		{esign.StatusSent, "", false},
	}

	for _, tt := range tests {
		if got := Accepts(tt.current, tt.next); got != tt.want {
			t.Errorf("Accepts(%q, %q) = %v, want %v", tt.current, tt.next, got, tt.want)
		}
	}
}

// openTestStore connects to ESIGN_TEST_DATABASE_URL or skips.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("ESIGN_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("ESIGN_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	s, err := NewStore(ctx, pool)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

// TestStore_Lifecycle exercises the ledger against a real Postgres.
func TestStore_Lifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := "test-" + uuid.NewString()

	if err := s.Record(ctx, Record{
		EnvelopeID:     id,
		PolicyRef:      "VPP-1001",
		RecipientName:  "Jane Doe",
		RecipientEmail: "jane@example.com",
		TemplateID:     "tmpl-1",
		Status:         esign.StatusSent,
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	rec, err := s.Get(ctx, id)
	if err != nil || rec == nil {
		t.Fatalf("Get = %v, %v", rec, err)
	}
	if rec.Status != esign.StatusSent || rec.PolicyRef != "VPP-1001" {
		t.Errorf("record = %+v", rec)
	}

	done := time.Now().UTC().Truncate(time.Second)
	tr, err := s.UpdateStatus(ctx, &esign.EnvelopeStatus{EnvelopeID: id, Status: esign.StatusCompleted, CompletedDateTime: &done})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if !tr.Known || !tr.Changed || tr.Previous != esign.StatusSent || tr.PolicyRef != "VPP-1001" {
		t.Errorf("transition = %+v", tr)
	}

	// A late, out-of-order delivery must not reopen the envelope.
	tr, err = s.UpdateStatus(ctx, &esign.EnvelopeStatus{EnvelopeID: id, Status: esign.StatusDelivered})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if tr.Changed {
		t.Error("terminal status should not change")
	}

	rec, _ = s.Get(ctx, id)
	if rec.Status != esign.StatusCompleted {
		t.Errorf("status = %q, want completed", rec.Status)
	}
	if rec.CompletedDateTime == nil || !rec.CompletedDateTime.Equal(done) {
		t.Errorf("completed = %v, want %v", rec.CompletedDateTime, done)
	}

	unarchived, err := s.ListUnarchived(ctx, 1000)
	if err != nil {
		t.Fatalf("ListUnarchived: %v", err)
	}
	found := false
	for _, u := range unarchived {
		found = found || u.EnvelopeID == id
	}
	if !found {
		t.Error("completed envelope without document should be unarchived")
	}

	if err := s.SetDocumentKey(ctx, id, "signed/"+id+"/contract.pdf"); err != nil {
		t.Fatalf("SetDocumentKey: %v", err)
	}
	pending, err := s.ListPending(ctx, 1000)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	for _, p := range pending {
		if p.EnvelopeID == id {
			t.Error("completed envelope should not be pending")
		}
	}

	tr, err = s.UpdateStatus(ctx, &esign.EnvelopeStatus{EnvelopeID: "missing-" + id, Status: esign.StatusSent})
	if err != nil || tr.Known {
		t.Errorf("unknown envelope transition = %+v, %v", tr, err)
	}
}

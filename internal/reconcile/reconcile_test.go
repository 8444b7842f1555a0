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

package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shieldline/esign/internal/envelopes"
	"github.com/shieldline/esign/internal/esign"
	"github.com/shieldline/esign/internal/lifecycle"
)

// --- Mock ledger ---

type mockLedger struct {
	mu         sync.Mutex
	pending    []envelopes.Record
	unarchived []envelopes.Record
	touched    []string
	listErr    error
}

func (m *mockLedger) ListPending(ctx context.Context, limit int) ([]envelopes.Record, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.pending, nil
}

func (m *mockLedger) ListUnarchived(ctx context.Context, limit int) ([]envelopes.Record, error) {
	return m.unarchived, nil
}

func (m *mockLedger) Touch(ctx context.Context, envelopeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched = append(m.touched, envelopeID)
	return nil
}

// --- Mock provider ---

type mockStatus struct {
	statuses map[string]string
}

func (m *mockStatus) EnvelopeStatus(ctx context.Context, envelopeID string) (*esign.EnvelopeStatus, error) {
	status, ok := m.statuses[envelopeID]
	if !ok {
		return nil, &esign.EnvelopeStatusError{EnvelopeID: envelopeID, Status: 404}
	}
	return &esign.EnvelopeStatus{EnvelopeID: envelopeID, Status: status}, nil
}

// --- Mock tracker ---

type mockTracker struct {
	mu       sync.Mutex
	current  map[string]string
	applied  []string
	archived []string
}

func (m *mockTracker) Apply(ctx context.Context, st *esign.EnvelopeStatus, source string) (lifecycle.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied = append(m.applied, st.EnvelopeID)
	prev := m.current[st.EnvelopeID]
	out := lifecycle.Outcome{Transition: envelopes.Transition{Known: true, Previous: prev, Changed: prev != st.Status}}
	if out.Transition.Changed && st.Status == esign.StatusCompleted {
		out.DocumentKey = "signed/" + st.EnvelopeID + "/doc.pdf"
	}
	return out, nil
}

func (m *mockTracker) ArchiveCompleted(ctx context.Context, rec envelopes.Record, source string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archived = append(m.archived, rec.EnvelopeID)
	if rec.EnvelopeID == "broken" {
		return "", nil
	}
	return "signed/" + rec.EnvelopeID + "/doc.pdf", nil
}

func rec(id, status string) envelopes.Record {
	return envelopes.Record{EnvelopeID: id, Status: status}
}

// TestRun_AppliesChanges verifies changed, unchanged, and failed envelopes
// are counted and the run continues past failures.
func TestRun_AppliesChanges(t *testing.T) {
	ledger := &mockLedger{pending: []envelopes.Record{
		rec("e1", esign.StatusSent),
		rec("e2", esign.StatusSent),
		rec("e3", esign.StatusDelivered),
		rec("gone", esign.StatusSent),
	}}
	status := &mockStatus{statuses: map[string]string{
		"e1": esign.StatusDelivered,
		"e2": esign.StatusSent,
		"e3": esign.StatusCompleted,
	}}
	tracker := &mockTracker{current: map[string]string{
		"e1": esign.StatusSent,
		"e2": esign.StatusSent,
		"e3": esign.StatusDelivered,
	}}

	r := NewRunner(RunnerConfig{Status: status, Ledger: ledger, Tracker: tracker, Delay: time.Millisecond})
	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Checked != 4 {
		t.Errorf("Checked = %d, want 4", result.Checked)
	}
	if result.Changed != 2 {
		t.Errorf("Changed = %d, want 2", result.Changed)
	}
	if result.Archived != 1 {
		t.Errorf("Archived = %d, want 1", result.Archived)
	}
	if result.Errors != 1 {
		t.Errorf("Errors = %d, want 1", result.Errors)
	}
	if len(ledger.touched) != 1 || ledger.touched[0] != "e2" {
		t.Errorf("touched = %v, want [e2]", ledger.touched)
	}
	if len(tracker.archived) != 0 {
		t.Errorf("archive retry should be off, got %v", tracker.archived)
	}
}

// TestRun_RetriesArchive verifies completed envelopes without documents are archived.
func TestRun_RetriesArchive(t *testing.T) {
	ledger := &mockLedger{unarchived: []envelopes.Record{
		rec("done1", esign.StatusCompleted),
		rec("broken", esign.StatusCompleted),
	}}
	tracker := &mockTracker{}

	r := NewRunner(RunnerConfig{Status: &mockStatus{}, Ledger: ledger, Tracker: tracker, Delay: time.Millisecond, Archive: true})
	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Archived != 1 || result.Errors != 1 {
		t.Errorf("result = %+v", result)
	}
	if len(tracker.archived) != 2 {
		t.Errorf("archived = %v", tracker.archived)
	}
}

// TestRun_ListError verifies a ledger failure aborts the run.
func TestRun_ListError(t *testing.T) {
	r := NewRunner(RunnerConfig{
		Status:  &mockStatus{},
		Ledger:  &mockLedger{listErr: errors.New("db down")},
		Tracker: &mockTracker{},
	})
	if _, err := r.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

// TestRun_Cancelled verifies the delay honours cancellation.
func TestRun_Cancelled(t *testing.T) {
	ledger := &mockLedger{pending: []envelopes.Record{rec("e1", "sent"), rec("e2", "sent")}}
	status := &mockStatus{statuses: map[string]string{"e1": "sent", "e2": "sent"}}
	tracker := &mockTracker{current: map[string]string{"e1": "sent", "e2": "sent"}}

	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunner(RunnerConfig{Status: status, Ledger: ledger, Tracker: tracker, Delay: time.Hour})

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(ctx)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

// TestNewRunner_Defaults verifies default delay and limit.
func TestNewRunner_Defaults(t *testing.T) {
	r := NewRunner(RunnerConfig{})
	if r.delay != 500*time.Millisecond {
		t.Errorf("delay = %v", r.delay)
	}
	if r.limit != 200 {
		t.Errorf("limit = %d", r.limit)
	}
}

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

// Package lifecycle applies observed envelope statuses: it updates the
// ledger, archives the signed document on completion and publishes the
// change for the back office. Connect notifications and the reconciler both
// feed it.
package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/shieldline/esign/internal/envelopes"
	"github.com/shieldline/esign/internal/esign"
	"github.com/shieldline/esign/internal/models"
)

// Ledger records envelope statuses.
type Ledger interface {
	UpdateStatus(ctx context.Context, st *esign.EnvelopeStatus) (envelopes.Transition, error)
	SetDocumentKey(ctx context.Context, envelopeID, key string) error
}

// Publisher emits envelope events.
type Publisher interface {
	Publish(ctx context.Context, event *models.EnvelopeEvent) error
}

// Archiver stores the signed document of a completed envelope.
type Archiver interface {
	Archive(ctx context.Context, envelopeID string) (string, error)
}

// Outcome reports what Apply did.
type Outcome struct {
	Transition  envelopes.Transition
	DocumentKey string
	Published   bool
}

// Tracker applies status observations. The archiver is optional.
type Tracker struct {
	ledger    Ledger
	publisher Publisher
	archiver  Archiver
	now       func() time.Time
}

// NewTracker creates a tracker. archiver may be nil when no bucket is
// configured.
func NewTracker(ledger Ledger, publisher Publisher, archiver Archiver) *Tracker {
	return &Tracker{
		ledger:    ledger,
		publisher: publisher,
		archiver:  archiver,
		now:       time.Now,
	}
}

// Apply records st and, when the status changed, archives and publishes.
// Archive failures are logged and leave the document key empty so a later
// reconcile pass can retry; ledger and publish failures are returned.
func (t *Tracker) Apply(ctx context.Context, st *esign.EnvelopeStatus, source string) (Outcome, error) {
	tr, err := t.ledger.UpdateStatus(ctx, st)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Transition: tr}

	if !tr.Known {
		slog.Warn("status for unknown envelope ignored",
			"envelope_id", st.EnvelopeID,
			"status", st.Status,
			"source", source,
		)
		return out, nil
	}
	if !tr.Changed {
		return out, nil
	}

	if st.Status == esign.StatusCompleted {
		out.DocumentKey = t.archive(ctx, st.EnvelopeID)
	}

	changedAt := t.now().UTC()
	if st.StatusChangedDateTime != nil {
		changedAt = *st.StatusChangedDateTime
	}

	if err := t.publisher.Publish(ctx, &models.EnvelopeEvent{
		EnvelopeID:     st.EnvelopeID,
		PolicyRef:      tr.PolicyRef,
		Status:         st.Status,
		PreviousStatus: tr.Previous,
		ChangedAt:      changedAt,
		DocumentKey:    out.DocumentKey,
		Source:         source,
	}); err != nil {
		return out, err
	}
	out.Published = true

	slog.Info("envelope status changed",
		"envelope_id", st.EnvelopeID,
		"from", tr.Previous,
		"to", st.Status,
		"source", source,
	)
	return out, nil
}

// ArchiveCompleted archives a completed envelope whose document is missing
// and publishes the document key. An empty key means the document is still
// unrecorded and nothing was published.
func (t *Tracker) ArchiveCompleted(ctx context.Context, rec envelopes.Record, source string) (string, error) {
	key := t.archive(ctx, rec.EnvelopeID)
	if key == "" {
		return "", nil
	}

	changedAt := t.now().UTC()
	if rec.CompletedDateTime != nil {
		changedAt = *rec.CompletedDateTime
	}
	// Not a transition, so PreviousStatus stays empty.
	err := t.publisher.Publish(ctx, &models.EnvelopeEvent{
		EnvelopeID:  rec.EnvelopeID,
		PolicyRef:   rec.PolicyRef,
		Status:      esign.StatusCompleted,
		ChangedAt:   changedAt,
		DocumentKey: key,
		Source:      source,
	})
	return key, err
}

func (t *Tracker) archive(ctx context.Context, envelopeID string) string {
	if t.archiver == nil {
		return ""
	}

	key, err := t.archiver.Archive(ctx, envelopeID)
	if err != nil {
		slog.Error("archive signed document failed",
			"envelope_id", envelopeID,
			"error", err,
		)
		return ""
	}

	if err := t.ledger.SetDocumentKey(ctx, envelopeID, key); err != nil {
		slog.Error("record document key failed",
			"envelope_id", envelopeID,
			"key", key,
			"error", err,
		)
		return ""
	}
	return key
}

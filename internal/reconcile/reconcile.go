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

// Package reconcile catches up on status notifications the service missed.
// It walks the envelopes the ledger still considers in flight, asks the
// provider for their current status and feeds any change through the same
// lifecycle path as push notifications.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/shieldline/esign/internal/envelopes"
	"github.com/shieldline/esign/internal/esign"
	"github.com/shieldline/esign/internal/lifecycle"
	"github.com/shieldline/esign/internal/models"
)

// StatusSource reads an envelope's current status from the provider.
type StatusSource interface {
	EnvelopeStatus(ctx context.Context, envelopeID string) (*esign.EnvelopeStatus, error)
}

// Ledger lists envelopes needing attention.
type Ledger interface {
	ListPending(ctx context.Context, limit int) ([]envelopes.Record, error)
	ListUnarchived(ctx context.Context, limit int) ([]envelopes.Record, error)
	Touch(ctx context.Context, envelopeID string) error
}

// Tracker applies statuses and archives completed envelopes.
type Tracker interface {
	Apply(ctx context.Context, st *esign.EnvelopeStatus, source string) (lifecycle.Outcome, error)
	ArchiveCompleted(ctx context.Context, rec envelopes.Record, source string) (string, error)
}

// Result summarises a reconcile run.
type Result struct {
	Checked  int
	Changed  int
	Archived int
	Errors   int
	Elapsed  time.Duration
}

// Runner performs a reconcile pass.
type Runner struct {
	status  StatusSource
	ledger  Ledger
	tracker Tracker
	delay   time.Duration // delay between provider calls to avoid throttling
	limit   int
	archive bool
}

// RunnerConfig holds dependencies for the reconcile runner.
type RunnerConfig struct {
	Status  StatusSource
	Ledger  Ledger
	Tracker Tracker
	Delay   time.Duration
	Limit   int
	Archive bool // retry archiving completed envelopes without a document
}

// NewRunner creates a reconcile runner.
func NewRunner(cfg RunnerConfig) *Runner {
	delay := cfg.Delay
	if delay == 0 {
		delay = 500 * time.Millisecond
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = 200
	}
	return &Runner{
		status:  cfg.Status,
		ledger:  cfg.Ledger,
		tracker: cfg.Tracker,
		delay:   delay,
		limit:   limit,
		archive: cfg.Archive,
	}
}

// Run checks every pending envelope and retries archiving for completed
// envelopes without a document. Per-envelope failures are counted and the
// run continues; only listing failures and cancellation abort it.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{}

	pending, err := r.ledger.ListPending(ctx, r.limit)
	if err != nil {
		return nil, err
	}

	slog.Info("starting reconcile", "pending", len(pending))

	calls := 0
	for _, rec := range pending {
		if err := r.wait(ctx, calls); err != nil {
			return result, err
		}
		calls++
		result.Checked++

		st, err := r.status.EnvelopeStatus(ctx, rec.EnvelopeID)
		if err != nil {
			slog.Warn("reconcile: status lookup failed",
				"envelope_id", rec.EnvelopeID,
				"error", err,
			)
			result.Errors++
			continue
		}

		out, err := r.tracker.Apply(ctx, st, models.SourceReconcile)
		if err != nil {
			slog.Warn("reconcile: apply failed",
				"envelope_id", rec.EnvelopeID,
				"error", err,
			)
			result.Errors++
			continue
		}

		if out.Transition.Changed {
			result.Changed++
			if out.DocumentKey != "" {
				result.Archived++
			}
			continue
		}

		if err := r.ledger.Touch(ctx, rec.EnvelopeID); err != nil {
			slog.Warn("reconcile: touch failed", "envelope_id", rec.EnvelopeID, "error", err)
		}
	}

	if r.archive {
		if err := r.archiveMissing(ctx, result, calls); err != nil {
			return result, err
		}
	}

	result.Elapsed = time.Since(start)

	slog.Info("reconcile complete",
		"checked", result.Checked,
		"changed", result.Changed,
		"archived", result.Archived,
		"errors", result.Errors,
		"elapsed", result.Elapsed,
	)

	return result, nil
}

// archiveMissing retries archiving for completed envelopes with no document.
// calls carries the provider call count so the delay spans both passes.
func (r *Runner) archiveMissing(ctx context.Context, result *Result, calls int) error {
	unarchived, err := r.ledger.ListUnarchived(ctx, r.limit)
	if err != nil {
		slog.Error("reconcile: list unarchived failed", "error", err)
		result.Errors++
		return nil
	}

	for _, rec := range unarchived {
		if err := r.wait(ctx, calls); err != nil {
			return err
		}
		calls++

		key, err := r.tracker.ArchiveCompleted(ctx, rec, models.SourceReconcile)
		if err != nil {
			slog.Warn("reconcile: publish archived document failed",
				"envelope_id", rec.EnvelopeID,
				"error", err,
			)
			result.Errors++
			continue
		}
		if key == "" {
			result.Errors++
			continue
		}
		result.Archived++
	}
	return nil
}

// wait sleeps between provider calls.
func (r *Runner) wait(ctx context.Context, calls int) error {
	if calls == 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(r.delay):
		return nil
	}
}

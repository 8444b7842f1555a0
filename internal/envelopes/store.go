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

// Package envelopes provides the Postgres-backed ledger of envelopes sent by
// this service and their last observed lifecycle status.
package envelopes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shieldline/esign/internal/esign"
)

// Record is one envelope persisted in Postgres.
type Record struct {
	ID                    int64
	EnvelopeID            string
	PolicyRef             string
	RecipientName         string
	RecipientEmail        string
	TemplateID            string
	Status                string
	StatusDateTime        *time.Time
	StatusChangedDateTime *time.Time
	SentDateTime          *time.Time
	CompletedDateTime     *time.Time
	DocumentKey           string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Transition describes the effect of a status update on the ledger.
type Transition struct {
	Known     bool   // the envelope exists in the ledger
	Changed   bool   // the stored status changed
	Previous  string // status before the update
	PolicyRef string
}

// Store provides ledger operations on the envelopes table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an envelope ledger backed by the given Postgres pool.
// It ensures the envelopes table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure envelope schema: %w", err)
	}
	slog.Info("envelope ledger initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS envelopes (
			id                      BIGSERIAL PRIMARY KEY,
			envelope_id             TEXT NOT NULL UNIQUE,
			policy_ref              TEXT DEFAULT '',
			recipient_name          TEXT NOT NULL,
			recipient_email         TEXT NOT NULL,
			template_id             TEXT NOT NULL,
			status                  TEXT NOT NULL,
			status_datetime         TIMESTAMPTZ,
			status_changed_datetime TIMESTAMPTZ,
			sent_datetime           TIMESTAMPTZ,
			completed_datetime      TIMESTAMPTZ,
			document_key            TEXT DEFAULT '',
			created_at              TIMESTAMPTZ DEFAULT NOW(),
			updated_at              TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_envelopes_policy ON envelopes(policy_ref);
		CREATE INDEX IF NOT EXISTS idx_envelopes_status ON envelopes(status, updated_at);
	`)
	return err
}

// Ping checks the Postgres connection.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Record inserts a freshly dispatched envelope. Recording the same envelope
// twice is a no-op.
func (s *Store) Record(ctx context.Context, r Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO envelopes
			(envelope_id, policy_ref, recipient_name, recipient_email, template_id, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (envelope_id) DO NOTHING
	`, r.EnvelopeID, r.PolicyRef, r.RecipientName, r.RecipientEmail, r.TemplateID, r.Status)
	return err
}

const selectColumns = `
	SELECT id, envelope_id, policy_ref, recipient_name, recipient_email,
	       template_id, status, status_datetime, status_changed_datetime,
	       sent_datetime, completed_datetime, document_key, created_at, updated_at
	FROM envelopes`

// Get retrieves a single envelope. It returns nil when the envelope is unknown.
func (s *Store) Get(ctx context.Context, envelopeID string) (*Record, error) {
	row := s.pool.QueryRow(ctx, selectColumns+`
		WHERE envelope_id = $1
	`, envelopeID)
	return scanRecord(row)
}

// ListPending returns envelopes that have not reached a terminal status,
// least recently updated first.
func (s *Store) ListPending(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, selectColumns+`
		WHERE status <> ALL($1)
		ORDER BY updated_at
		LIMIT $2
	`, terminalStatuses, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ListUnarchived returns completed envelopes whose signed document has not
// been archived yet.
func (s *Store) ListUnarchived(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, selectColumns+`
		WHERE status = $1 AND document_key = ''
		ORDER BY updated_at
		LIMIT $2
	`, esign.StatusCompleted, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// UpdateStatus applies an observed status to the ledger. Updates are
// monotonic: once an envelope is terminal only the same status may refresh
// its timestamps.
func (s *Store) UpdateStatus(ctx context.Context, st *esign.EnvelopeStatus) (Transition, error) {
	var tr Transition

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var current, policyRef string
		err := tx.QueryRow(ctx, `
			SELECT status, policy_ref FROM envelopes WHERE envelope_id = $1 FOR UPDATE
		`, st.EnvelopeID).Scan(&current, &policyRef)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		tr = Transition{Known: true, Previous: current, PolicyRef: policyRef}
		if !Accepts(current, st.Status) {
			return nil
		}
		tr.Changed = current != st.Status

		_, err = tx.Exec(ctx, `
			UPDATE envelopes SET
				status                  = $1,
				status_datetime         = COALESCE($2, status_datetime),
				status_changed_datetime = COALESCE($3, status_changed_datetime),
				sent_datetime           = COALESCE($4, sent_datetime),
				completed_datetime      = COALESCE($5, completed_datetime),
				updated_at              = NOW()
			WHERE envelope_id = $6
		`, st.Status, st.StatusDateTime, st.StatusChangedDateTime, st.SentDateTime, st.CompletedDateTime, st.EnvelopeID)
		return err
	})
	if err != nil {
		return Transition{}, fmt.Errorf("update envelope %s: %w", st.EnvelopeID, err)
	}
	return tr, nil
}

// Touch bumps updated_at so an unchanged pending envelope moves to the back
// of the reconcile order.
func (s *Store) Touch(ctx context.Context, envelopeID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE envelopes SET updated_at = NOW() WHERE envelope_id = $1
	`, envelopeID)
	return err
}

// SetDocumentKey records where the signed document was archived.
func (s *Store) SetDocumentKey(ctx context.Context, envelopeID, key string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE envelopes SET document_key = $1, updated_at = NOW()
		WHERE envelope_id = $2
	`, key, envelopeID)
	return err
}

var terminalStatuses = []string{esign.StatusCompleted, esign.StatusDeclined, esign.StatusVoided}

// Accepts reports whether a ledger row in status current may take next.
func Accepts(current, next string) bool {
	if next == "" {
		return false
	}
	if esign.IsTerminal(current) {
		return current == next
	}
	return true
}

// scanRecord scans a single row into a Record.
func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	err := row.Scan(
		&r.ID, &r.EnvelopeID, &r.PolicyRef, &r.RecipientName, &r.RecipientEmail,
		&r.TemplateID, &r.Status, &r.StatusDateTime, &r.StatusChangedDateTime,
		&r.SentDateTime, &r.CompletedDateTime, &r.DocumentKey, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// collectRecords scans multiple rows into a slice of Records.
func collectRecords(rows pgx.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(
			&r.ID, &r.EnvelopeID, &r.PolicyRef, &r.RecipientName, &r.RecipientEmail,
			&r.TemplateID, &r.Status, &r.StatusDateTime, &r.StatusChangedDateTime,
			&r.SentDateTime, &r.CompletedDateTime, &r.DocumentKey, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

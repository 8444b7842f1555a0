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

// Package connect handles envelope status notifications pushed by the
// e-signature provider. The provider POSTs a JSON payload per status change
// and retries until it receives a 2xx, so the handler acknowledges quickly
// and processes in the background.
package connect

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/shieldline/esign/internal/esign"
	"github.com/shieldline/esign/internal/httpx"
	"github.com/shieldline/esign/internal/lifecycle"
	"github.com/shieldline/esign/internal/models"
)

const (
	// SignatureHeaderPrefix precedes the 1-based index of each signature
	// header; the provider sends one per active HMAC key.
	SignatureHeaderPrefix = "X-DocuSign-Signature-"

	maxSignatureHeaders = 10
	maxBodyBytes        = 5 << 20
)

// Notification is the JSON payload of a push notification.
type Notification struct {
	Event             string `json:"event"`
	APIVersion        string `json:"apiVersion"`
	RetryCount        int    `json:"retryCount"`
	GeneratedDateTime string `json:"generatedDateTime"`
	Data              struct {
		AccountID       string           `json:"accountId"`
		EnvelopeID      string           `json:"envelopeId"`
		EnvelopeSummary *envelopeSummary `json:"envelopeSummary"`
	} `json:"data"`
}

type envelopeSummary struct {
	Status                string `json:"status"`
	StatusDateTime        string `json:"statusDateTime"`
	StatusChangedDateTime string `json:"statusChangedDateTime"`
	SentDateTime          string `json:"sentDateTime"`
	CompletedDateTime     string `json:"completedDateTime"`
}

// Deduper suppresses repeated transitions.
type Deduper interface {
	IsNew(ctx context.Context, envelopeID, status string) (bool, error)
}

// Applier records a status observation.
type Applier interface {
	Apply(ctx context.Context, st *esign.EnvelopeStatus, source string) (lifecycle.Outcome, error)
}

// Handler processes push notifications.
type Handler struct {
	hmacKey []byte
	filter  Deduper
	tracker Applier

	wg sync.WaitGroup
}

// NewHandler creates a notification handler. Without an hmacKey every
// delivery is refused, since an unsigned notification cannot be trusted.
func NewHandler(hmacKey string, filter Deduper, tracker Applier) *Handler {
	var key []byte
	if hmacKey != "" {
		key = []byte(hmacKey)
	}
	return &Handler{hmacKey: key, filter: filter, tracker: tracker}
}

// ServeHTTP verifies and acknowledges a notification, then processes it in
// the background.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httpx.WriteError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "notification exceeds 5MB limit", nil)
			return
		}
		httpx.WriteError(w, http.StatusBadRequest, "BAD_BODY", err.Error(), nil)
		return
	}

	if h.hmacKey == nil {
		slog.Warn("notification refused, no Connect HMAC key configured", "remote", r.RemoteAddr)
		httpx.WriteError(w, http.StatusServiceUnavailable, "CONNECT_DISABLED", "notification signing key is not configured", nil)
		return
	}
	if !VerifySignature(h.hmacKey, body, r.Header) {
		slog.Warn("notification signature mismatch", "remote", r.RemoteAddr)
		httpx.WriteError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "notification signature did not verify", nil)
		return
	}

	st, err := ParseNotification(body)
	if err != nil {
		// A retry would carry the same payload; acknowledge so the provider
		// stops resending it.
		slog.Warn("unusable notification acknowledged",
			"body_len", len(body),
			"error", err,
		)
		w.WriteHeader(http.StatusOK)
		return
	}

	w.WriteHeader(http.StatusOK)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.process(context.Background(), st)
	}()
}

// Wait blocks until background processing of accepted notifications ends.
func (h *Handler) Wait() {
	h.wg.Wait()
}

func (h *Handler) process(ctx context.Context, st *esign.EnvelopeStatus) {
	if h.filter != nil {
		isNew, err := h.filter.IsNew(ctx, st.EnvelopeID, st.Status)
		if err != nil {
			slog.Warn("dedup check failed, proceeding", "error", err)
		} else if !isNew {
			slog.Debug("skipping duplicate notification",
				"envelope_id", st.EnvelopeID,
				"status", st.Status,
			)
			return
		}
	}

	if h.tracker == nil {
		return
	}
	if _, err := h.tracker.Apply(ctx, st, models.SourceConnect); err != nil {
		slog.Error("apply notification failed",
			"envelope_id", st.EnvelopeID,
			"status", st.Status,
			"error", err,
		)
	}
}

// VerifySignature reports whether any signature header carries the base64
// HMAC-SHA256 of body under key.
func VerifySignature(key, body []byte, headers http.Header) bool {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	expected := mac.Sum(nil)

	for i := 1; i <= maxSignatureHeaders; i++ {
		sig := strings.TrimSpace(headers.Get(fmt.Sprintf("%s%d", SignatureHeaderPrefix, i)))
		if sig == "" {
			continue
		}
		provided, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(expected, provided) {
			return true
		}
	}
	return false
}

// Sign computes the signature header value for body. It mirrors what the
// provider sends and is used by tests and local tooling.
func Sign(key, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ParseNotification extracts the envelope status from a notification. When
// the summary omits the status it is derived from the event name, e.g.
// "envelope-completed".
func ParseNotification(body []byte) (*esign.EnvelopeStatus, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}

	envelopeID := strings.TrimSpace(n.Data.EnvelopeID)
	if envelopeID == "" {
		return nil, errors.New("notification missing envelopeId")
	}

	var summary envelopeSummary
	if n.Data.EnvelopeSummary != nil {
		summary = *n.Data.EnvelopeSummary
	}

	status := strings.ToLower(strings.TrimSpace(summary.Status))
	if status == "" {
		status = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(n.Event), "envelope-"))
	}
	if status == "" {
		return nil, errors.New("notification missing status")
	}

	st := &esign.EnvelopeStatus{EnvelopeID: envelopeID, Status: status}
	var err error
	if st.StatusDateTime, err = esign.ParseTimestamp(summary.StatusDateTime); err != nil {
		return nil, fmt.Errorf("statusDateTime: %w", err)
	}
	if st.StatusChangedDateTime, err = esign.ParseTimestamp(summary.StatusChangedDateTime); err != nil {
		return nil, fmt.Errorf("statusChangedDateTime: %w", err)
	}
	if st.SentDateTime, err = esign.ParseTimestamp(summary.SentDateTime); err != nil {
		return nil, fmt.Errorf("sentDateTime: %w", err)
	}
	if st.CompletedDateTime, err = esign.ParseTimestamp(summary.CompletedDateTime); err != nil {
		return nil, fmt.Errorf("completedDateTime: %w", err)
	}
	return st, nil
}

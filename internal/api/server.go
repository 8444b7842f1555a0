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

// Package api exposes envelope dispatch to the back office over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shieldline/esign/internal/envelopes"
	"github.com/shieldline/esign/internal/esign"
	"github.com/shieldline/esign/internal/httpx"
	"github.com/shieldline/esign/internal/models"
)

// Provider is the e-signature client surface the API uses.
type Provider interface {
	SendEnvelope(ctx context.Context, recipient esign.Recipient, tabs esign.Tabs) (*esign.EnvelopeSummary, error)
	EnvelopeStatus(ctx context.Context, envelopeID string) (*esign.EnvelopeStatus, error)
	Document(ctx context.Context, envelopeID string) (*esign.SignedDocument, error)
}

// Ledger records dispatched envelopes.
type Ledger interface {
	Record(ctx context.Context, r envelopes.Record) error
}

// Publisher emits envelope events.
type Publisher interface {
	Publish(ctx context.Context, event *models.EnvelopeEvent) error
}

// Check is a named dependency probe for /health.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Config holds the API dependencies. Ledger, Publisher and Connect are
// optional.
type Config struct {
	Provider   Provider
	Ledger     Ledger
	Publisher  Publisher
	Connect    http.Handler
	Checks     []Check
	TemplateID string
}

// Server serves the back-office API.
type Server struct {
	cfg Config
	now func() time.Time
}

// NewServer creates an API server.
func NewServer(cfg Config) *Server {
	return &Server{cfg: cfg, now: time.Now}
}

// Routes builds the HTTP router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	if s.cfg.Connect != nil {
		r.Method(http.MethodPost, "/connect", s.cfg.Connect)
	}

	r.Route("/envelopes", func(er chi.Router) {
		er.Post("/", s.sendEnvelope)
		er.Get("/{envelope_id}", s.envelopeStatus)
		er.Get("/{envelope_id}/document", s.document)
	})

	return r
}

type sendRequest struct {
	Recipient esign.Recipient      `json:"recipient"`
	PolicyRef string               `json:"policy_ref"`
	Fields    esign.ContractFields `json:"fields"`
}

func (s *Server) sendEnvelope(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
		return
	}

	req.Recipient.Name = strings.TrimSpace(req.Recipient.Name)
	req.Recipient.Email = strings.TrimSpace(req.Recipient.Email)
	if req.Recipient.Name == "" {
		httpx.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "recipient.name is required", nil)
		return
	}
	if _, err := mail.ParseAddress(req.Recipient.Email); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "recipient.email is not a valid address", nil)
		return
	}

	tabs := esign.MapFields(req.Fields)
	summary, err := s.cfg.Provider.SendEnvelope(r.Context(), req.Recipient, tabs)
	if err != nil {
		writeProviderError(w, err)
		return
	}

	// The envelope is already with the signer; bookkeeping failures are
	// logged, not surfaced.
	if s.cfg.Ledger != nil {
		if err := s.cfg.Ledger.Record(r.Context(), envelopes.Record{
			EnvelopeID:     summary.EnvelopeID,
			PolicyRef:      req.PolicyRef,
			RecipientName:  req.Recipient.Name,
			RecipientEmail: req.Recipient.Email,
			TemplateID:     s.cfg.TemplateID,
			Status:         summary.Status,
		}); err != nil {
			slog.Error("record envelope failed", "envelope_id", summary.EnvelopeID, "error", err)
		}
	}
	if s.cfg.Publisher != nil {
		if err := s.cfg.Publisher.Publish(r.Context(), &models.EnvelopeEvent{
			EnvelopeID: summary.EnvelopeID,
			PolicyRef:  req.PolicyRef,
			Status:     summary.Status,
			ChangedAt:  s.now().UTC(),
			Source:     models.SourceDispatch,
		}); err != nil {
			slog.Error("publish dispatch event failed", "envelope_id", summary.EnvelopeID, "error", err)
		}
	}

	httpx.WriteJSON(w, http.StatusCreated, summary)
}

func (s *Server) envelopeStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.cfg.Provider.EnvelopeStatus(r.Context(), chi.URLParam(r, "envelope_id"))
	if err != nil {
		writeProviderError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, st)
}

func (s *Server) document(w http.ResponseWriter, r *http.Request) {
	doc, err := s.cfg.Provider.Document(r.Context(), chi.URLParam(r, "envelope_id"))
	if err != nil {
		writeProviderError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.FileName}))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Content)))
	w.WriteHeader(http.StatusOK)
	w.Write(doc.Content)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.cfg.Checks))
	for _, c := range s.cfg.Checks {
		if err := c.Ping(ctx); err != nil {
			checks[c.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[c.Name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	httpx.WriteJSON(w, status, map[string]any{"status": overall, "checks": checks})
}

// providerDetails carries the provider's view of a failure.
type providerDetails struct {
	ProviderStatus int    `json:"provider_status,omitempty"`
	ProviderCode   string `json:"provider_code,omitempty"`
}

// writeProviderError maps client errors onto API responses. Provider
// failures are 502 except a provider 404, which is passed through.
func writeProviderError(w http.ResponseWriter, err error) {
	var (
		authErr   *esign.AuthenticationError
		submitErr *esign.EnvelopeSubmissionError
		statusErr *esign.EnvelopeStatusError
		docErr    *esign.DocumentRetrievalError
	)

	switch {
	case errors.As(err, &authErr):
		slog.Error("provider authentication failed", "error", err)
		httpx.WriteError(w, http.StatusBadGateway, "PROVIDER_AUTH_FAILED", err.Error(),
			providerDetails{ProviderStatus: authErr.Status, ProviderCode: authErr.Code})
	case errors.As(err, &submitErr):
		if submitErr.Status == 0 && submitErr.Err == nil {
			httpx.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", submitErr.Message, nil)
			return
		}
		slog.Error("envelope submission failed", "error", err)
		httpx.WriteError(w, http.StatusBadGateway, "ENVELOPE_SUBMISSION_FAILED", err.Error(),
			providerDetails{ProviderStatus: submitErr.Status, ProviderCode: submitErr.Code})
	case errors.As(err, &statusErr):
		switch {
		case statusErr.Status == 0 && statusErr.Err == nil:
			httpx.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", statusErr.Message, nil)
		case statusErr.Status == http.StatusNotFound:
			httpx.WriteError(w, http.StatusNotFound, "ENVELOPE_NOT_FOUND", err.Error(),
				providerDetails{ProviderStatus: statusErr.Status, ProviderCode: statusErr.Code})
		default:
			slog.Error("envelope status failed", "error", err)
			httpx.WriteError(w, http.StatusBadGateway, "ENVELOPE_STATUS_FAILED", err.Error(),
				providerDetails{ProviderStatus: statusErr.Status, ProviderCode: statusErr.Code})
		}
	case errors.As(err, &docErr):
		if docErr.Status == http.StatusNotFound {
			httpx.WriteError(w, http.StatusNotFound, "DOCUMENT_NOT_FOUND", err.Error(),
				providerDetails{ProviderStatus: docErr.Status})
			return
		}
		slog.Error("document retrieval failed", "error", err)
		httpx.WriteError(w, http.StatusBadGateway, "DOCUMENT_RETRIEVAL_FAILED", err.Error(),
			providerDetails{ProviderStatus: docErr.Status})
	default:
		slog.Error("request failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}

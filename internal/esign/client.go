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

// Package esign is the protocol client for the e-signature provider. It
// authenticates with a signed service-account assertion, maps contract
// fields onto the configured template's tabs, sends envelopes, reads their
// lifecycle status and downloads the signed document.
//
// Every call acquires its own token before the dependent API request and
// nothing is retried here; resilience belongs to the caller.
package esign

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shieldline/esign/internal/config"
)

// DefaultTemplateRole is the template role the recipient is bound to.
const DefaultTemplateRole = "Signer"

// ClientConfig holds the dependencies for the provider client.
type ClientConfig struct {
	Credentials  *config.Credentials
	HTTPClient   *http.Client
	Tokens       TokenProvider // defaults to a per-call TokenExchanger
	TemplateRole string
	EmailSubject string
}

// Client talks to the provider's REST API for a single account and template.
// It holds no mutable state and is safe for concurrent use.
type Client struct {
	creds        *config.Credentials
	httpClient   *http.Client
	tokens       TokenProvider
	templateRole string
	emailSubject string

	newIdempotencyKey func() string
}

// NewClient creates a provider client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	tokens := cfg.Tokens
	if tokens == nil {
		tokens = NewTokenExchanger(cfg.Credentials, httpClient)
	}

	role := strings.TrimSpace(cfg.TemplateRole)
	if role == "" {
		role = DefaultTemplateRole
	}

	return &Client{
		creds:             cfg.Credentials,
		httpClient:        httpClient,
		tokens:            tokens,
		templateRole:      role,
		emailSubject:      cfg.EmailSubject,
		newIdempotencyKey: uuid.NewString,
	}
}

// TokenEarlyRefresh is how long before expiry a cached token is replaced.
const TokenEarlyRefresh = 60 * time.Second

// NewFromConfig creates a client from loaded configuration. ctx bounds the
// token cache when one is enabled.
func NewFromConfig(ctx context.Context, cfg *config.Config) *Client {
	httpClient := &http.Client{Timeout: cfg.ESign.HTTPTimeout}

	var tokens TokenProvider = NewTokenExchanger(cfg.Credentials, httpClient)
	if cfg.ESign.TokenCache {
		tokens = CacheTokens(ctx, tokens, TokenEarlyRefresh)
		slog.Info("provider token cache enabled", "early_refresh", TokenEarlyRefresh)
	}

	return NewClient(ClientConfig{
		Credentials:  cfg.Credentials,
		HTTPClient:   httpClient,
		Tokens:       tokens,
		TemplateRole: cfg.ESign.TemplateRole,
		EmailSubject: cfg.ESign.EmailSubject,
	})
}

// envelopesURL builds {api}/v2.1/accounts/{account}/envelopes[/part...].
func (c *Client) envelopesURL(parts ...string) string {
	u := fmt.Sprintf("%s/v2.1/accounts/%s/envelopes", c.creds.APIBaseURL, url.PathEscape(c.creds.AccountID))
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

// authorize obtains a bearer token and attaches it to req.
func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}
	tok.SetAuthHeader(req)
	return nil
}

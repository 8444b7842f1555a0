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

package esign

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/shieldline/esign/internal/config"
)

const jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// TokenProvider supplies a bearer token for one API call.
type TokenProvider interface {
	Token(ctx context.Context) (*oauth2.Token, error)
}

// TokenExchanger trades a freshly signed assertion for an access token.
// Every call signs a new assertion and performs a new exchange.
type TokenExchanger struct {
	creds      *config.Credentials
	httpClient *http.Client
	now        func() time.Time
}

// NewTokenExchanger creates a token exchanger for the given credentials.
func NewTokenExchanger(creds *config.Credentials, httpClient *http.Client) *TokenExchanger {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TokenExchanger{
		creds:      creds,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// tokenResponse covers both the success and the error shape of the token endpoint.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Token performs the JWT-bearer grant. Failures are *AuthenticationError.
func (x *TokenExchanger) Token(ctx context.Context) (*oauth2.Token, error) {
	now := x.now()

	assertion, err := BuildAssertion(x.creds, now)
	if err != nil {
		return nil, &AuthenticationError{Err: err}
	}

	form := url.Values{}
	form.Set("grant_type", jwtBearerGrant)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		x.creds.AuthBaseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &AuthenticationError{Err: fmt.Errorf("build token request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return nil, &AuthenticationError{Err: fmt.Errorf("token request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &AuthenticationError{Status: resp.StatusCode, Err: fmt.Errorf("read token response: %w", err)}
	}

	// A body that is not JSON leaves parsed empty and falls through to the
	// generic message below.
	var parsed tokenResponse
	_ = json.Unmarshal(body, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 || parsed.AccessToken == "" {
		return nil, &AuthenticationError{
			Status:      resp.StatusCode,
			Code:        parsed.Error,
			Description: parsed.ErrorDescription,
		}
	}

	tok := &oauth2.Token{
		AccessToken: parsed.AccessToken,
		TokenType:   parsed.TokenType,
	}
	if parsed.ExpiresIn > 0 {
		tok.Expiry = now.Add(time.Duration(parsed.ExpiresIn) * time.Second)
	}
	return tok, nil
}

// CacheTokens reuses tokens until earlyRefresh before their expiry. The
// returned provider exchanges with ctx, not with the per-call context, so
// ctx should live as long as the provider.
func CacheTokens(ctx context.Context, inner TokenProvider, earlyRefresh time.Duration) TokenProvider {
	src := oauth2.ReuseTokenSourceWithExpiry(nil, boundTokenSource{ctx: ctx, inner: inner}, earlyRefresh)
	return reusedTokens{src: src}
}

type boundTokenSource struct {
	ctx   context.Context
	inner TokenProvider
}

func (b boundTokenSource) Token() (*oauth2.Token, error) {
	return b.inner.Token(b.ctx)
}

type reusedTokens struct {
	src oauth2.TokenSource
}

func (r reusedTokens) Token(context.Context) (*oauth2.Token, error) {
	return r.src.Token()
}

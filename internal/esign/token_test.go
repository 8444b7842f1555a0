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
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/shieldline/esign/internal/config"
)

// TestTokenExchanger_Success verifies the grant form and the returned token.
func TestTokenExchanger_Success(t *testing.T) {
	p, srv := newFakeProvider(t, nil)
	x := NewTokenExchanger(testCredentials(t, srv.URL), srv.Client())
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	x.now = func() time.Time { return fixed }

	tok, err := x.Token(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tok.AccessToken != "tok-abc" {
		t.Errorf("AccessToken = %q, want tok-abc", tok.AccessToken)
	}
	if !tok.Expiry.Equal(fixed.Add(time.Hour)) {
		t.Errorf("Expiry = %v, want %v", tok.Expiry, fixed.Add(time.Hour))
	}

	p.mu.Lock()
	form := p.lastForm
	p.mu.Unlock()
	if form["grant_type"] != "urn:ietf:params:oauth:grant-type:jwt-bearer" {
		t.Errorf("grant_type = %q", form["grant_type"])
	}
	if strings.Count(form["assertion"], ".") != 2 {
		t.Errorf("assertion should have three parts: %q", form["assertion"])
	}
}

// TestTokenExchanger_NewAssertionPerCall verifies nothing is reused between calls.
func TestTokenExchanger_NewAssertionPerCall(t *testing.T) {
	p, srv := newFakeProvider(t, nil)
	x := NewTokenExchanger(testCredentials(t, srv.URL), srv.Client())

	clock := time.Unix(1700000000, 0)
	x.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	var assertions []string
	for i := 0; i < 2; i++ {
		if _, err := x.Token(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		p.mu.Lock()
		assertions = append(assertions, p.lastForm["assertion"])
		p.mu.Unlock()
	}

	if p.calls() != 2 {
		t.Errorf("token calls = %d, want 2", p.calls())
	}
	if assertions[0] == assertions[1] {
		t.Error("each exchange should sign a new assertion")
	}
}

// TestTokenExchanger_Failures verifies the AuthenticationError message rules.
func TestTokenExchanger_Failures(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
		wantCode    string
	}{
		{
			name:        "error description",
			status:      http.StatusBadRequest,
			body:        `{"error":"consent_required","error_description":"The user has not consented"}`,
			wantMessage: "The user has not consented",
			wantCode:    "consent_required",
		},
		{
			name:        "error without description",
			status:      http.StatusBadRequest,
			body:        `{"error":"invalid_grant"}`,
			wantMessage: genericAuthMessage,
			wantCode:    "invalid_grant",
		},
		{
			name:        "non JSON body",
			status:      http.StatusUnauthorized,
			body:        `<html>denied</html>`,
			wantMessage: genericAuthMessage,
		},
		{
			name:        "success without token",
			status:      http.StatusOK,
			body:        `{"token_type":"Bearer"}`,
			wantMessage: genericAuthMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, srv := newFakeProvider(t, nil)
			p.tokenStatus, p.tokenBody = tt.status, tt.body

			x := NewTokenExchanger(testCredentials(t, srv.URL), srv.Client())
			_, err := x.Token(context.Background())

			var authErr *AuthenticationError
			if !errors.As(err, &authErr) {
				t.Fatalf("expected AuthenticationError, got %v", err)
			}
			if authErr.Error() != tt.wantMessage {
				t.Errorf("message = %q, want %q", authErr.Error(), tt.wantMessage)
			}
			if authErr.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", authErr.Code, tt.wantCode)
			}
			if authErr.Status != tt.status {
				t.Errorf("status = %d, want %d", authErr.Status, tt.status)
			}
		})
	}
}

// TestTokenExchanger_TransportError verifies a dead endpoint is an AuthenticationError.
func TestTokenExchanger_TransportError(t *testing.T) {
	_, srv := newFakeProvider(t, nil)
	creds := testCredentials(t, srv.URL)
	srv.Close()

	_, err := NewTokenExchanger(creds, http.DefaultClient).Token(context.Background())
	var authErr *AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthenticationError, got %v", err)
	}
	if authErr.Unwrap() == nil {
		t.Error("transport cause should be preserved")
	}
}

// TestCacheTokens verifies cached tokens are reused until near expiry.
func TestCacheTokens(t *testing.T) {
	p, srv := newFakeProvider(t, nil)
	x := NewTokenExchanger(testCredentials(t, srv.URL), srv.Client())

	cached := CacheTokens(context.Background(), x, time.Minute)
	for i := 0; i < 3; i++ {
		tok, err := cached.Token(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tok.AccessToken != "tok-abc" {
			t.Errorf("AccessToken = %q", tok.AccessToken)
		}
	}

	if p.calls() != 1 {
		t.Errorf("token calls = %d, want 1", p.calls())
	}
}

// TestNewFromConfig_TokenCache verifies the cache switch.
func TestNewFromConfig_TokenCache(t *testing.T) {
	p, srv := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
	})

	for _, cached := range []bool{false, true} {
		before := p.calls()
		c := NewFromConfig(context.Background(), &config.Config{
			Credentials: testCredentials(t, srv.URL),
			ESign:       config.ESignConfig{TokenCache: cached, HTTPTimeout: 5 * time.Second},
		})
		for i := 0; i < 3; i++ {
			if _, err := c.EnvelopeStatus(context.Background(), "abc123"); err != nil {
				t.Fatalf("EnvelopeStatus: %v", err)
			}
		}

		want := 3
		if cached {
			want = 1
		}
		if got := p.calls() - before; got != want {
			t.Errorf("cached=%v: token calls = %d, want %d", cached, got, want)
		}
		if c.templateRole != DefaultTemplateRole {
			t.Errorf("template role = %q", c.templateRole)
		}
	}
}

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
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shieldline/esign/internal/config"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func sharedTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = k
	})
	return testKey
}

func testCredentials(t *testing.T, baseURL string) *config.Credentials {
	t.Helper()
	return &config.Credentials{
		IntegrationKey: "ik-123",
		UserID:         "user-456",
		AccountID:      "acct-789",
		AuthBaseURL:    baseURL,
		APIBaseURL:     baseURL + "/restapi",
		TemplateID:     "tmpl-1",
		PrivateKey:     sharedTestKey(t),
	}
}

// fakeProvider serves the token endpoint and lets each test supply the
// REST API handler.
type fakeProvider struct {
	mu          sync.Mutex
	tokenCalls  int
	lastForm    map[string]string
	tokenStatus int
	tokenBody   string
	api         http.HandlerFunc
}

func newFakeProvider(t *testing.T, api http.HandlerFunc) (*fakeProvider, *httptest.Server) {
	t.Helper()
	p := &fakeProvider{api: api}
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)
	return p, srv
}

func (p *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/oauth/token" {
		_ = r.ParseForm()
		p.mu.Lock()
		p.tokenCalls++
		p.lastForm = map[string]string{
			"grant_type": r.PostForm.Get("grant_type"),
			"assertion":  r.PostForm.Get("assertion"),
		}
		status, body := p.tokenStatus, p.tokenBody
		p.mu.Unlock()

		if status == 0 {
			status = http.StatusOK
			body = `{"access_token":"tok-abc","token_type":"Bearer","expires_in":3600}`
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
		return
	}
	if p.api == nil {
		http.NotFound(w, r)
		return
	}
	p.api(w, r)
}

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenCalls
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

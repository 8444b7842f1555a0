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

package config

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Environment keys for the provider credentials. The same names are used in
// error messages so an operator can see exactly which value is missing.
const (
	EnvIntegrationKey   = "DOCUSIGN_INTEGRATION_KEY"
	EnvUserID           = "DOCUSIGN_USER_ID"
	EnvAccountID        = "DOCUSIGN_ACCOUNT_ID"
	EnvAuthBaseURL      = "DOCUSIGN_AUTH_BASE_URL"
	EnvAPIBaseURL       = "DOCUSIGN_API_BASE_URL"
	EnvTemplateID       = "DOCUSIGN_TEMPLATE_ID"
	EnvPrivateKeyBase64 = "DOCUSIGN_PRIVATE_KEY_BASE64"
)

var requiredCredentialKeys = []string{
	EnvIntegrationKey,
	EnvUserID,
	EnvAccountID,
	EnvAuthBaseURL,
	EnvAPIBaseURL,
	EnvTemplateID,
	EnvPrivateKeyBase64,
}

// ConfigurationError reports a missing or unusable configuration value.
// It is fatal: retrying without fixing the configuration cannot succeed.
type ConfigurationError struct {
	Key    string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration %s: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration %s: %s", e.Key, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Credentials identifies this service to the e-signature provider.
// Built once at startup and shared read-only by every component.
type Credentials struct {
	IntegrationKey string
	UserID         string
	AccountID      string
	AuthBaseURL    string
	APIBaseURL     string
	TemplateID     string
	PrivateKey     *rsa.PrivateKey
}

// AuthHost is the audience for signed assertions: the auth server host
// without scheme or path, e.g. "account-d.docusign.com".
func (c *Credentials) AuthHost() string {
	u, err := url.Parse(c.AuthBaseURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// LoadCredentials reads the required credential values through lookup and
// decodes the private key. The first missing or invalid value is reported
// as a *ConfigurationError.
func LoadCredentials(lookup func(key string) string) (*Credentials, error) {
	values := make(map[string]string, len(requiredCredentialKeys))
	for _, key := range requiredCredentialKeys {
		v := strings.TrimSpace(lookup(key))
		if v == "" {
			return nil, &ConfigurationError{Key: key, Reason: "missing or empty"}
		}
		values[key] = v
	}

	authBase, err := parseBaseURL(EnvAuthBaseURL, values[EnvAuthBaseURL])
	if err != nil {
		return nil, err
	}
	apiBase, err := parseBaseURL(EnvAPIBaseURL, values[EnvAPIBaseURL])
	if err != nil {
		return nil, err
	}

	key, err := DecodePrivateKey(values[EnvPrivateKeyBase64])
	if err != nil {
		return nil, err
	}

	return &Credentials{
		IntegrationKey: values[EnvIntegrationKey],
		UserID:         values[EnvUserID],
		AccountID:      values[EnvAccountID],
		AuthBaseURL:    authBase,
		APIBaseURL:     apiBase,
		TemplateID:     values[EnvTemplateID],
		PrivateKey:     key,
	}, nil
}

// DecodePrivateKey turns a base64 blob holding a PEM-encoded RSA key
// (PKCS#1 or PKCS#8) into key material.
func DecodePrivateKey(blob string) (*rsa.PrivateKey, error) {
	// Keys are often pasted wrapped across several lines.
	compact := strings.Join(strings.Fields(blob), "")

	pemBytes, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		pemBytes, err = base64.RawStdEncoding.DecodeString(compact)
	}
	if err != nil {
		return nil, &ConfigurationError{Key: EnvPrivateKeyBase64, Reason: "not valid base64", Err: err}
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, &ConfigurationError{Key: EnvPrivateKeyBase64, Reason: "invalid RSA private key", Err: err}
	}
	return key, nil
}

func parseBaseURL(key, raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", &ConfigurationError{Key: key, Reason: "invalid URL", Err: err}
	}
	if u.Scheme == "" || u.Host == "" {
		return "", &ConfigurationError{Key: key, Reason: "URL must include scheme and host"}
	}
	return strings.TrimRight(raw, "/"), nil
}

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
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shieldline/esign/internal/config"
)

const (
	// AssertionLifetime is how long a signed assertion is accepted by the
	// auth server. Assertions are rebuilt for every token request.
	AssertionLifetime = 300 * time.Second

	assertionScope = "signature impersonation"
)

type assertionHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

// assertionClaims is the payload of the service-account assertion.
type assertionClaims struct {
	Issuer    string `json:"iss"`
	Subject   string `json:"sub"`
	Audience  string `json:"aud"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
	Scope     string `json:"scope"`
}

func newAssertionClaims(creds *config.Credentials, now time.Time) assertionClaims {
	iat := now.Unix()
	return assertionClaims{
		Issuer:    creds.IntegrationKey,
		Subject:   creds.UserID,
		Audience:  creds.AuthHost(),
		IssuedAt:  iat,
		ExpiresAt: iat + int64(AssertionLifetime/time.Second),
		Scope:     assertionScope,
	}
}

// encodeSegment is the URL-safe, unpadded base64 used for every part.
func encodeSegment(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// signSegments computes the RS256 signature over "header.payload" and
// returns it encoded as the third part.
func signSegments(signingInput string, key *rsa.PrivateKey) (string, error) {
	if key == nil {
		return "", errors.New("sign assertion: no private key")
	}
	sig, err := jwt.SigningMethodRS256.Sign(signingInput, key)
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}
	return encodeSegment(sig), nil
}

// BuildAssertion assembles and signs a fresh assertion valid from now for
// AssertionLifetime.
func BuildAssertion(creds *config.Credentials, now time.Time) (string, error) {
	header, err := json.Marshal(assertionHeader{Alg: jwt.SigningMethodRS256.Alg(), Typ: "JWT"})
	if err != nil {
		return "", fmt.Errorf("marshal assertion header: %w", err)
	}
	payload, err := json.Marshal(newAssertionClaims(creds, now))
	if err != nil {
		return "", fmt.Errorf("marshal assertion payload: %w", err)
	}

	signingInput := encodeSegment(header) + "." + encodeSegment(payload)
	sig, err := signSegments(signingInput, creds.PrivateKey)
	if err != nil {
		return "", err
	}
	return signingInput + "." + sig, nil
}

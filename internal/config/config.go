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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// StorageConfig describes the S3-compatible bucket that holds signed documents.
type StorageConfig struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// ESignConfig holds the optional e-signature settings that are not part of
// the provider credentials.
type ESignConfig struct {
	TemplateRole   string
	EmailSubject   string
	ConnectHMACKey string
	TokenCache     bool
	HTTPTimeout    time.Duration
}

// Config holds all configuration for the signature service.
type Config struct {
	Credentials *Credentials
	ESign       ESignConfig

	// Postgres
	DatabaseURL string

	// Redis
	RedisURL    string
	EventsQueue string

	Storage StorageConfig

	Port           int
	ReconcileDelay time.Duration
	LogLevel       string
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	ESign struct {
		IntegrationKey   string `yaml:"integration_key"`
		UserID           string `yaml:"user_id"`
		AccountID        string `yaml:"account_id"`
		AuthBaseURL      string `yaml:"auth_base_url"`
		APIBaseURL       string `yaml:"api_base_url"`
		TemplateID       string `yaml:"template_id"`
		PrivateKeyBase64 string `yaml:"private_key_base64"`
		TemplateRole     string `yaml:"template_role"`
		EmailSubject     string `yaml:"email_subject"`
		ConnectHMACKey   string `yaml:"connect_hmac_key"`
	} `yaml:"esign"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Events string `yaml:"events"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Storage struct {
		Bucket   string `yaml:"bucket"`
		Region   string `yaml:"region"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"storage"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings. The config file is optional
// unless CONFIG_PATH points at it explicitly.
func Load() (*Config, error) {
	raw, err := readRawConfig()
	if err != nil {
		return nil, err
	}

	fromFile := map[string]string{
		EnvIntegrationKey:   raw.ESign.IntegrationKey,
		EnvUserID:           raw.ESign.UserID,
		EnvAccountID:        raw.ESign.AccountID,
		EnvAuthBaseURL:      raw.ESign.AuthBaseURL,
		EnvAPIBaseURL:       raw.ESign.APIBaseURL,
		EnvTemplateID:       raw.ESign.TemplateID,
		EnvPrivateKeyBase64: raw.ESign.PrivateKeyBase64,
	}

	creds, err := LoadCredentials(func(key string) string {
		return firstNonEmpty(fromFile[key], os.Getenv(key))
	})
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Credentials: creds,
		ESign: ESignConfig{
			TemplateRole:   firstNonEmpty(raw.ESign.TemplateRole, envOrDefault("DOCUSIGN_TEMPLATE_ROLE", "Signer")),
			EmailSubject:   firstNonEmpty(raw.ESign.EmailSubject, os.Getenv("DOCUSIGN_EMAIL_SUBJECT")),
			ConnectHMACKey: firstNonEmpty(raw.ESign.ConnectHMACKey, os.Getenv("DOCUSIGN_CONNECT_HMAC_KEY")),
			TokenCache:     envOrDefaultBool("DOCUSIGN_TOKEN_CACHE", false),
			HTTPTimeout:    envOrDefaultDuration("HTTP_TIMEOUT", 30*time.Second),
		},
		DatabaseURL: firstNonEmpty(raw.Database.URL, envOrDefault("DATABASE_URL", "postgres://localhost:5432/esign")),
		RedisURL:    firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		EventsQueue: firstNonEmpty(raw.Redis.Queues.Events, envOrDefault("EVENTS_QUEUE", "envelope-events")),
		Storage: StorageConfig{
			Bucket:       firstNonEmpty(raw.Storage.Bucket, os.Getenv("S3_BUCKET")),
			Region:       firstNonEmpty(raw.Storage.Region, envOrDefault("S3_REGION", "us-east-1")),
			Endpoint:     firstNonEmpty(raw.Storage.Endpoint, os.Getenv("S3_ENDPOINT")),
			AccessKey:    os.Getenv("S3_ACCESS_KEY"),
			SecretKey:    os.Getenv("S3_SECRET_KEY"),
			UsePathStyle: envOrDefaultBool("S3_USE_PATH_STYLE", false),
		},
		Port:           envOrDefaultInt("PORT", 8080),
		ReconcileDelay: envOrDefaultDuration("RECONCILE_DELAY", 500*time.Millisecond),
		LogLevel:       envOrDefault("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

func readRawConfig() (rawConfig, error) {
	var raw rawConfig

	configPath, explicit := os.LookupEnv("CONFIG_PATH")
	if !explicit {
		configPath = "/app/config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return raw, nil
		}
		return raw, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return raw, fmt.Errorf("parse config YAML: %w", err)
	}
	return raw, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

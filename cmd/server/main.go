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

// Shieldline e-signature service
//
// Entry point for the envelope dispatch service. It:
//  1. Loads provider credentials and service configuration
//  2. Connects to PostgreSQL (envelope ledger) and Redis (event queue, dedup)
//  3. Builds the provider client and the optional S3 document archive
//  4. Serves the back-office API and the Connect notification listener
//  5. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/shieldline/esign/internal/api"
	"github.com/shieldline/esign/internal/archive"
	"github.com/shieldline/esign/internal/config"
	"github.com/shieldline/esign/internal/connect"
	"github.com/shieldline/esign/internal/dedup"
	"github.com/shieldline/esign/internal/envelopes"
	"github.com/shieldline/esign/internal/esign"
	"github.com/shieldline/esign/internal/lifecycle"
	"github.com/shieldline/esign/internal/logging"
	"github.com/shieldline/esign/internal/queue"
)

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(logging.New(os.Stdout, cfg.LogLevel))
	slog.Info("starting e-signature service",
		"account", cfg.Credentials.AccountID,
		"template", cfg.Credentials.TemplateID,
		"auth_host", cfg.Credentials.AuthHost(),
		"token_cache", cfg.ESign.TokenCache,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	ledger, err := envelopes.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise envelope ledger", "error", err)
		os.Exit(1)
	}

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	publisher := queue.NewPublisher(rdb, cfg.EventsQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis", "queue", cfg.EventsQueue)

	filter := dedup.NewFilter(rdb)

	// --- Provider client ---
	client := esign.NewFromConfig(ctx, cfg)

	// --- Document archive (optional) ---
	var archiver lifecycle.Archiver
	if cfg.Storage.Bucket != "" {
		s3Client, err := archive.NewS3Client(ctx, cfg.Storage)
		if err != nil {
			slog.Error("failed to create S3 client", "error", err)
			os.Exit(1)
		}
		archiver = archive.NewArchiver(client, s3Client, cfg.Storage.Bucket)
		slog.Info("signed document archive enabled", "bucket", cfg.Storage.Bucket)
	} else {
		slog.Warn("S3_BUCKET not set, signed documents will not be archived")
	}

	tracker := lifecycle.NewTracker(ledger, publisher, archiver)

	// Without a key the listener is not mounted; status then arrives only
	// through reconcile.
	var listener *connect.Handler
	var connectRoute http.Handler
	if cfg.ESign.ConnectHMACKey != "" {
		listener = connect.NewHandler(cfg.ESign.ConnectHMACKey, filter, tracker)
		connectRoute = listener
	} else {
		slog.Warn("DOCUSIGN_CONNECT_HMAC_KEY not set, Connect listener disabled")
	}

	// --- HTTP API ---
	server := api.NewServer(api.Config{
		Provider:   client,
		Ledger:     ledger,
		Publisher:  publisher,
		Connect:    connectRoute,
		TemplateID: cfg.Credentials.TemplateID,
		Checks: []api.Check{
			{Name: "postgres", Ping: ledger.Ping},
			{Name: "redis", Ping: publisher.Ping},
		},
	})

	ready, err := api.Serve(ctx, cfg.Port, server.Routes())
	if err != nil {
		slog.Error("failed to start api server", "error", err)
		os.Exit(1)
	}
	<-ready

	// --- Wait for shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig)
	cancel()
	if listener != nil {
		listener.Wait()
	}
	slog.Info("e-signature service stopped")
}

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

// Shieldline e-signature service: reconcile command
//
// Standalone CLI that catches up on missed Connect notifications. It checks
// every envelope the ledger still considers in flight against the provider,
// records and publishes any status change, and archives signed documents of
// completed envelopes. Intended to run on a schedule.
//
// Usage:
//
//	go run ./cmd/reconcile/ [--limit 200] [--delay 500ms] [--skip-archive]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/shieldline/esign/internal/archive"
	"github.com/shieldline/esign/internal/config"
	"github.com/shieldline/esign/internal/envelopes"
	"github.com/shieldline/esign/internal/esign"
	"github.com/shieldline/esign/internal/lifecycle"
	"github.com/shieldline/esign/internal/logging"
	"github.com/shieldline/esign/internal/queue"
	"github.com/shieldline/esign/internal/reconcile"
)

func main() {
	// --- CLI Flags ---
	limitFlag := flag.Int("limit", 200, "Maximum envelopes to check per pass")
	delayFlag := flag.Duration("delay", 0, "Delay between provider calls (default RECONCILE_DELAY)")
	skipArchive := flag.Bool("skip-archive", false, "Do not retry archiving completed envelopes")
	flag.Parse()

	if *limitFlag <= 0 {
		fmt.Fprintf(os.Stderr, "Error: --limit must be positive\n\n")
		flag.Usage()
		os.Exit(1)
	}

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(os.Stdout, cfg.LogLevel))

	delay := *delayFlag
	if delay == 0 {
		delay = cfg.ReconcileDelay
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

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

	client := esign.NewFromConfig(ctx, cfg)

	var archiver lifecycle.Archiver
	if cfg.Storage.Bucket != "" {
		s3Client, err := archive.NewS3Client(ctx, cfg.Storage)
		if err != nil {
			slog.Error("failed to create S3 client", "error", err)
			os.Exit(1)
		}
		archiver = archive.NewArchiver(client, s3Client, cfg.Storage.Bucket)
	}

	// --- Run Reconcile ---
	runner := reconcile.NewRunner(reconcile.RunnerConfig{
		Status:  client,
		Ledger:  ledger,
		Tracker: lifecycle.NewTracker(ledger, publisher, archiver),
		Delay:   delay,
		Limit:   *limitFlag,
		Archive: archiver != nil && !*skipArchive,
	})

	start := time.Now()
	result, err := runner.Run(ctx)
	if err != nil {
		slog.Error("reconcile failed", "error", err, "elapsed", time.Since(start))
		os.Exit(1)
	}

	// --- Summary ---
	fmt.Printf("checked=%d changed=%d archived=%d errors=%d elapsed=%s\n",
		result.Checked, result.Changed, result.Archived, result.Errors, result.Elapsed.Round(time.Millisecond))

	if result.Errors > 0 {
		os.Exit(2)
	}
}

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

// Package queue publishes envelope lifecycle events to a Redis list for the
// back-office workers that update policy records.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shieldline/esign/internal/models"
)

// TaskName identifies envelope events on the shared worker queue.
const TaskName = "policy.envelope_status_changed"

// redisList is the subset of the Redis client the publisher needs.
type redisList interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Publisher sends envelope events to Redis.
type Publisher struct {
	rdb       redisList
	queueName string
	now       func() time.Time
}

// NewPublisher creates a new Redis publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return newPublisher(rdb, queueName)
}

func newPublisher(rdb redisList, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
		now:       time.Now,
	}
}

// task is the message workers pop from the queue.
type task struct {
	ID         string                `json:"id"`
	Task       string                `json:"task"`
	EnqueuedAt time.Time             `json:"enqueued_at"`
	Event      *models.EnvelopeEvent `json:"event"`
}

// Publish serialises an envelope event and pushes it onto the queue.
// Workers pop from the other end, so delivery is FIFO.
func (p *Publisher) Publish(ctx context.Context, event *models.EnvelopeEvent) error {
	taskID := uuid.NewString()

	msg, err := json.Marshal(task{
		ID:         taskID,
		Task:       TaskName,
		EnqueuedAt: p.now().UTC(),
		Event:      event,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope event: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, string(msg)).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published envelope event to queue",
		"task_id", taskID,
		"envelope_id", event.EnvelopeID,
		"status", event.Status,
		"source", event.Source,
		"queue", p.queueName,
	)

	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}

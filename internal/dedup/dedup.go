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

// Package dedup suppresses repeated envelope status notifications using a
// Redis SET with TTL. The provider retries Connect deliveries until it sees a
// 2xx, so the same transition can arrive more than once.
package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long we remember a seen transition.
	DefaultTTL = 24 * time.Hour

	// keyPrefix namespaces dedup keys in Redis.
	keyPrefix = "esign:seen:"
)

type setNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Filter tracks which envelope transitions have already been processed.
type Filter struct {
	rdb setNXer
	ttl time.Duration
}

// NewFilter creates a dedup filter backed by Redis.
func NewFilter(rdb *redis.Client) *Filter {
	return &Filter{
		rdb: rdb,
		ttl: DefaultTTL,
	}
}

// IsNew returns true if the envelope has NOT been seen in this status
// before. If true, the transition is marked as seen atomically (SETNX).
func (f *Filter) IsNew(ctx context.Context, envelopeID, status string) (bool, error) {
	set, err := f.rdb.SetNX(ctx, key(envelopeID, status), 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}
	return set, nil
}

func key(envelopeID, status string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, envelopeID, strings.ToLower(status))
}

// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

// Package persistence delivers stable-flow reports to external systems.
// The sketch itself keeps no durable state; these publishers only externalize
// the reports the merger emits on eviction.
package persistence

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"placidsketch"
)

// RedisEvaler abstracts the minimal surface we need from a Redis client.
// Implementations may wrap github.com/redis/go-redis/v9 (Cmdable.Eval) or any
// equivalent.
type RedisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// RedisReportPublisher delivers reports idempotently using a Lua script:
// 1) SETNX placid:report:<flow>:<start> 1
// 2) If set -> RPUSH the JSON report onto the reports list
// 3) EXPIRE the marker (TTL) for leak protection
// If SETNX fails (already delivered), returns OK and makes no changes, so
// replayed traces do not duplicate reports.
type RedisReportPublisher struct {
	client    RedisEvaler
	markerTTL time.Duration
}

// NewRedisReportPublisher returns a publisher with the given client and
// marker TTL. markerTTL guards against unbounded growth of delivery markers;
// choose a duration comfortably larger than your maximum replay window.
func NewRedisReportPublisher(client RedisEvaler, markerTTL time.Duration) *RedisReportPublisher {
	if markerTTL <= 0 {
		markerTTL = 24 * time.Hour
	}
	return &RedisReportPublisher{client: client, markerTTL: markerTTL}
}

// redisLuaScript performs the idempotent delivery. It returns 1 if the report
// was pushed, 0 if it had already been delivered.
const redisLuaScript = `
local listKey = KEYS[1]
local markerKey = KEYS[2]
local payload = ARGV[1]
local ttlSeconds = tonumber(ARGV[2])
-- try to set the idempotency marker
local set = redis.call('SETNX', markerKey, 1)
if set == 1 then
  redis.call('RPUSH', listKey, payload)
  if ttlSeconds and ttlSeconds > 0 then
    redis.call('EXPIRE', markerKey, ttlSeconds)
  end
  return 1
else
  -- already delivered; no-op
  return 0
end
`

// Keys layout helpers (public for interoperability with other components)
func RedisReportListKey() string { return "placid:reports" }
func RedisMarkerKey(r placidsketch.StableFlowReport) string {
	return fmt.Sprintf("placid:report:%s:%d", hex.EncodeToString(r.FlowID[:]), r.StartWindow)
}

// PublishReport delivers one report. Safe to retry: delivery is deduplicated
// by the marker key.
func (p *RedisReportPublisher) PublishReport(ctx context.Context, r placidsketch.StableFlowReport) error {
	payload, err := json.Marshal(&r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	keys := []string{RedisReportListKey(), RedisMarkerKey(r)}
	res, err := p.client.Eval(ctx, redisLuaScript, keys, string(payload), int64(p.markerTTL.Seconds()))
	if err != nil {
		return fmt.Errorf("redis eval: %w", err)
	}
	switch v := res.(type) {
	case int64:
		return nil // 1 applied, 0 duplicate — both fine
	case nil:
		return nil
	default:
		return fmt.Errorf("unexpected eval result type %T", v)
	}
}

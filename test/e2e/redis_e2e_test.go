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

package e2e

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"

	"placidsketch"
	"placidsketch/internal/persistence"
)

func TestRedisIdempotentReportDeliveryE2E(t *testing.T) {
	// Arrange: ensure Redis is reachable
	rc := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping: Redis not reachable on 127.0.0.1:6379: %v", err)
	}

	report := placidsketch.StableFlowReport{
		FlowID:      placidsketch.FingerprintString("e2e-flow"),
		StartWindow: 7,
		EndWindow:   206,
		Subflows:    40,
		Mean:        11,
		Variance:    0.5,
	}

	// clean slate
	listKey := persistence.RedisReportListKey()
	_ = rc.Del(context.Background(), listKey, persistence.RedisMarkerKey(report)).Err()

	pub := persistence.NewRedisReportPublisher(persistence.NewGoRedisEvaler("127.0.0.1:6379"), time.Minute)

	// Act: deliver the same report twice, as a replayed trace would.
	if err := pub.PublishReport(context.Background(), report); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := pub.PublishReport(context.Background(), report); err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	// Assert: exactly one entry on the list, and it round-trips.
	vals, err := rc.LRange(context.Background(), listKey, 0, -1).Result()
	if err != nil {
		t.Fatalf("LRANGE: %v", err)
	}
	if len(vals) != 1 {
		t.Fatalf("list holds %d entries, want 1 (idempotent delivery)", len(vals))
	}
	var got placidsketch.StableFlowReport
	if err := json.Unmarshal([]byte(vals[0]), &got); err != nil {
		t.Fatalf("payload decode: %v", err)
	}
	if got != report {
		t.Fatalf("payload = %+v, want %+v", got, report)
	}
}

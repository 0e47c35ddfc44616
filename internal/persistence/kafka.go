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

package persistence

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"placidsketch"
)

// KafkaProducer is a minimal abstraction over a Kafka client.
// Implementations should enable idempotent production.
//
// Requirements:
//   - Idempotent producer ON (enable.idempotence=true)
//   - Use the message key below so broker dedup + per-flow ordering are preserved
//   - Acks=all is recommended
//
// Note: We intentionally avoid importing a specific Kafka library.
type KafkaProducer interface {
	Produce(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error
}

// KafkaReportPublisher publishes stable-flow reports as Kafka messages.
// Consumers dedup on the message key (flow fingerprint + start window), so
// replayed traces are harmless downstream.
type KafkaReportPublisher struct {
	producer       KafkaProducer
	topic          string
	defaultTimeout time.Duration
}

func NewKafkaReportPublisher(p KafkaProducer, topic string) *KafkaReportPublisher {
	return &KafkaReportPublisher{producer: p, topic: topic, defaultTimeout: 10 * time.Second}
}

// KafkaMessageKey identifies one report for broker-side ordering and consumer
// dedup: hex fingerprint plus the run's start window.
func KafkaMessageKey(r placidsketch.StableFlowReport) []byte {
	return []byte(fmt.Sprintf("%s:%d", hex.EncodeToString(r.FlowID[:]), r.StartWindow))
}

// PublishReport produces one report to the configured topic.
func (p *KafkaReportPublisher) PublishReport(ctx context.Context, r placidsketch.StableFlowReport) error {
	payload, err := json.Marshal(&r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.defaultTimeout)
		defer cancel()
	}
	headers := map[string]string{"content-type": "application/json"}
	if err := p.producer.Produce(ctx, p.topic, KafkaMessageKey(r), payload, headers); err != nil {
		return fmt.Errorf("kafka produce: %w", err)
	}
	return nil
}

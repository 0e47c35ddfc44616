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
	"log"
	"time"

	"placidsketch"
)

// ReportPublisher is the common surface of the Redis and Kafka publishers.
type ReportPublisher interface {
	PublishReport(ctx context.Context, r placidsketch.StableFlowReport) error
}

// BestEffortReporter adapts a ReportPublisher to placidsketch.Reporter.
// Reports are delivered synchronously with a per-report timeout; failures are
// logged and dropped, since the sketch's eviction path cannot block or retry.
type BestEffortReporter struct {
	pub     ReportPublisher
	timeout time.Duration
}

// NewBestEffortReporter wraps pub. timeout <= 0 defaults to 5s.
func NewBestEffortReporter(pub ReportPublisher, timeout time.Duration) *BestEffortReporter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &BestEffortReporter{pub: pub, timeout: timeout}
}

func (b *BestEffortReporter) ReportStableFlow(r placidsketch.StableFlowReport) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if err := b.pub.PublishReport(ctx, r); err != nil {
		log.Printf("persistence: drop report for %x start=%d: %v", r.FlowID[:4], r.StartWindow, err)
	}
}

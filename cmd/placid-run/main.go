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

package main

import (
	"flag"
	"log"
	"time"

	"placidsketch"
	"placidsketch/internal/persistence"
	"placidsketch/internal/sinks"
	"placidsketch/internal/telemetry"
	"placidsketch/internal/trace"
)

// multiReporter fans one report out to every wired destination.
type multiReporter []placidsketch.Reporter

func (m multiReporter) ReportStableFlow(r placidsketch.StableFlowReport) {
	for _, rep := range m {
		rep.ReportStableFlow(r)
	}
}

func main() {
	// In plain words (what this tool does):
	//   - placid-run replays a window-per-file CSV trace through the sketch
	//     pipeline: continuity filter → stability monitor → subflow merger.
	//   - Stable flows reported on merger eviction/finalize land in a JSONL
	//     file and, optionally, in Redis and/or Kafka for downstream
	//     consumers.
	var (
		dataDir     = flag.String("data", "data", "directory of per-window CSV files")
		reportPath  = flag.String("report", "placid-reports.jsonl", "JSONL output for stable-flow reports")
		metricsAddr = flag.String("metrics", "", "address for the /metrics endpoint, e.g. :9090 (empty disables)")
		kpiInterval = flag.Duration("kpi", 0, "interval for KPI log lines (0 disables)")
		redisAddr   = flag.String("redis", "", "Redis address to publish reports to (empty disables)")
		kafkaTopic  = flag.String("kafka-topic", "", "publish reports to this topic via the demo producer (empty disables)")
	)
	flag.Parse()

	telemetry.Enable(telemetry.Config{
		Enabled:     true,
		MetricsAddr: *metricsAddr,
		LogInterval: *kpiInterval,
	})

	fileSink, err := sinks.NewReportFileSink(*reportPath)
	if err != nil {
		log.Fatalf("open report sink: %v", err)
	}
	defer fileSink.Close()

	reporters := multiReporter{fileSink}
	if *redisAddr != "" {
		pub := persistence.NewRedisReportPublisher(persistence.NewGoRedisEvaler(*redisAddr), 24*time.Hour)
		reporters = append(reporters, persistence.NewBestEffortReporter(pub, 0))
	}
	if *kafkaTopic != "" {
		pub := persistence.NewKafkaReportPublisher(persistence.LoggingKafkaProducer{}, *kafkaTopic)
		reporters = append(reporters, persistence.NewBestEffortReporter(pub, 0))
	}

	packets, windows, err := trace.LoadDir(*dataDir)
	if err != nil {
		log.Fatalf("load trace: %v", err)
	}
	log.Printf("loaded %d packets across %d windows from %s", len(packets), windows, *dataDir)

	sketch := placidsketch.New(placidsketch.Options{Reporter: reporters})

	start := time.Now()
	for i := range packets {
		sketch.ProcessPacket(packets[i])
	}
	sketch.Finalize()
	if err := fileSink.Flush(); err != nil {
		log.Printf("flush report sink: %v", err)
	}

	elapsed := time.Since(start)
	rate := float64(len(packets)) / elapsed.Seconds()
	log.Printf("processed %d packets in %s (%.0f pkt/s); reports in %s", len(packets), elapsed, rate, *reportPath)
}

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

// Package telemetry provides opt-in, low-overhead counters for the sketch
// pipeline. The Observe* functions are safe to call from the per-packet hot
// path: when disabled they are no-ops behind a single atomic load, and none
// of them allocates.
package telemetry

import (
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls the telemetry module.
//
// Notes:
//   - MetricsAddr, when non-empty, starts a dedicated HTTP server serving
//     /metrics. If you already expose Prometheus elsewhere, leave it empty
//     and register promhttp yourself.
//   - LogInterval enables the periodic KPI log line; 0 disables it.
//   - Window is the rolling interval the KPI gauges are computed over;
//     defaults to 1m if 0.
type Config struct {
	Enabled     bool
	MetricsAddr string
	LogInterval time.Duration
	Window      time.Duration
}

var (
	modEnabled atomic.Bool

	packetsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "placid_packets_total",
		Help: "Total packets ingested by the sketch pipeline",
	})
	promotedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "placid_promoted_packets_total",
		Help: "Total packets whose flow passed the continuity filter",
	})
	subflowsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "placid_stable_subflows_total",
		Help: "Total stable subflows emitted by the stability monitor",
	})
	reportsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "placid_stable_flow_reports_total",
		Help: "Total finalized stable flows delivered on merger-cell eviction",
	})
	promotionRatio = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "placid_promotion_ratio",
		Help: "Fraction of packets admitted past the continuity filter over the KPI window",
	})
	subflowYield = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "placid_subflow_yield",
		Help: "Stable subflows per million ingested packets over the KPI window",
	})
)

func init() {
	// Register eagerly; harmless when no Prometheus endpoint is exposed.
	prometheus.MustRegister(packetsTotal, promotedTotal, subflowsTotal, reportsTotal, promotionRatio, subflowYield)
}

// Internal aggregates for the rolling KPI window.
var (
	packetsInternal  atomic.Int64
	promotedInternal atomic.Int64
	subflowsInternal atomic.Int64
	reportsInternal  atomic.Int64
)

type point struct {
	at       time.Time
	packets  int64
	promoted int64
	subflows int64
	reports  int64
}

var (
	exporterMu   sync.Mutex
	exporterStop chan struct{}
	exporterDone chan struct{}

	windowMu     sync.Mutex
	windowPoints []point

	metricsSrvOnce sync.Once
)

// Enable configures the module. Safe to call multiple times; subsequent calls
// replace the configuration and restart the exporter loop. The /metrics
// server is started at most once, on the first enabled call with a non-empty
// MetricsAddr; later MetricsAddr values are ignored.
func Enable(cfg Config) {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	modEnabled.Store(cfg.Enabled)

	if cfg.Enabled && cfg.MetricsAddr != "" {
		addr := cfg.MetricsAddr
		metricsSrvOnce.Do(func() {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				if err := http.ListenAndServe(addr, mux); err != nil {
					log.Printf("telemetry: metrics server: %v", err)
				}
			}()
		})
	}

	exporterMu.Lock()
	defer exporterMu.Unlock()
	if exporterStop != nil {
		close(exporterStop)
		<-exporterDone
		exporterStop, exporterDone = nil, nil
	}
	if !cfg.Enabled || cfg.LogInterval <= 0 {
		return
	}
	exporterStop = make(chan struct{})
	exporterDone = make(chan struct{})
	go exporterLoop(cfg, exporterStop, exporterDone)
}

// Enabled reports whether telemetry is currently on.
func Enabled() bool { return modEnabled.Load() }

// ObservePacket records one ingested packet and whether its flow was admitted
// past the continuity filter.
func ObservePacket(promoted bool) {
	if !modEnabled.Load() {
		return
	}
	packetsTotal.Inc()
	packetsInternal.Add(1)
	if promoted {
		promotedTotal.Inc()
		promotedInternal.Add(1)
	}
}

// ObserveSubflow records one stable subflow handed to the merger.
func ObserveSubflow() {
	if !modEnabled.Load() {
		return
	}
	subflowsTotal.Inc()
	subflowsInternal.Add(1)
}

// ObserveReport records one finalized stable flow delivered to the reporter.
func ObserveReport() {
	if !modEnabled.Load() {
		return
	}
	reportsTotal.Inc()
	reportsInternal.Add(1)
}

func snapshot() point {
	return point{
		at:       time.Now(),
		packets:  packetsInternal.Load(),
		promoted: promotedInternal.Load(),
		subflows: subflowsInternal.Load(),
		reports:  reportsInternal.Load(),
	}
}

// publishKPIs appends a snapshot, trims points older than the window and
// refreshes the gauges from the oldest retained point. Returns the deltas so
// the exporter log line can share the computation.
func publishKPIs(window time.Duration) (packets, promoted, subflows, reports int64) {
	now := snapshot()

	windowMu.Lock()
	windowPoints = append(windowPoints, now)
	cut := now.at.Add(-window)
	i := 0
	for i < len(windowPoints)-1 && windowPoints[i].at.Before(cut) {
		i++
	}
	windowPoints = windowPoints[i:]
	oldest := windowPoints[0]
	windowMu.Unlock()

	packets = now.packets - oldest.packets
	promoted = now.promoted - oldest.promoted
	subflows = now.subflows - oldest.subflows
	reports = now.reports - oldest.reports

	if packets > 0 {
		promotionRatio.Set(float64(promoted) / float64(packets))
		subflowYield.Set(float64(subflows) * 1e6 / float64(packets))
	} else {
		promotionRatio.Set(0)
		subflowYield.Set(0)
	}
	return
}

func exporterLoop(cfg Config, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(cfg.LogInterval)
	defer t.Stop()
	publishKPIs(cfg.Window)
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			packets, promoted, subflows, reports := publishKPIs(cfg.Window)
			log.Printf("placid kpi: packets=%d promoted=%d subflows=%d reports=%d window=%s",
				packets, promoted, subflows, reports, cfg.Window)
		}
	}
}

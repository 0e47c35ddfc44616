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

package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserversRespectEnableFlag(t *testing.T) {
	Enable(Config{Enabled: false})
	if Enabled() {
		t.Fatalf("module should be disabled")
	}

	before := testutil.ToFloat64(packetsTotal)
	ObservePacket(true)
	ObserveSubflow()
	ObserveReport()
	if after := testutil.ToFloat64(packetsTotal); after != before {
		t.Fatalf("disabled module incremented counters")
	}

	Enable(Config{Enabled: true})
	t.Cleanup(func() { Enable(Config{Enabled: false}) })
	if !Enabled() {
		t.Fatalf("module should be enabled")
	}

	beforePackets := testutil.ToFloat64(packetsTotal)
	beforePromoted := testutil.ToFloat64(promotedTotal)
	ObservePacket(true)
	ObservePacket(false)
	if got := testutil.ToFloat64(packetsTotal) - beforePackets; got != 2 {
		t.Fatalf("packetsTotal delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(promotedTotal) - beforePromoted; got != 1 {
		t.Fatalf("promotedTotal delta = %v, want 1", got)
	}

	beforeSub := testutil.ToFloat64(subflowsTotal)
	ObserveSubflow()
	ObserveSubflow()
	if got := testutil.ToFloat64(subflowsTotal) - beforeSub; got != 2 {
		t.Fatalf("subflowsTotal delta = %v, want 2", got)
	}

	beforeRep := testutil.ToFloat64(reportsTotal)
	ObserveReport()
	if got := testutil.ToFloat64(reportsTotal) - beforeRep; got != 1 {
		t.Fatalf("reportsTotal delta = %v, want 1", got)
	}
}

func TestKPIGaugesOverWindow(t *testing.T) {
	Enable(Config{Enabled: true, Window: 50 * time.Millisecond})
	t.Cleanup(func() { Enable(Config{Enabled: false}) })

	publishKPIs(50 * time.Millisecond) // baseline point

	for i := 0; i < 10; i++ {
		ObservePacket(i%2 == 0) // 5 promoted of 10
	}
	ObserveSubflow()

	packets, promoted, subflows, _ := publishKPIs(50 * time.Millisecond)
	if packets < 10 || promoted < 5 || subflows < 1 {
		t.Fatalf("window deltas = (%d,%d,%d), want at least (10,5,1)", packets, promoted, subflows)
	}
	if ratio := testutil.ToFloat64(promotionRatio); ratio <= 0 || ratio > 1 {
		t.Fatalf("promotion ratio gauge = %v, want in (0,1]", ratio)
	}
	if y := testutil.ToFloat64(subflowYield); y <= 0 {
		t.Fatalf("subflow yield gauge = %v, want positive", y)
	}
}

func TestExporterLoopStartsAndStops(t *testing.T) {
	Enable(Config{Enabled: true, LogInterval: 5 * time.Millisecond, Window: 20 * time.Millisecond})
	time.Sleep(15 * time.Millisecond) // let it tick at least once
	// Reconfiguring must stop the previous loop without deadlocking.
	Enable(Config{Enabled: true, LogInterval: 5 * time.Millisecond})
	Enable(Config{Enabled: false})
}

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

package placidsketch

import (
	"placidsketch/internal/telemetry"
)

// Sketch is the pipeline façade. It wires the three stages together, observes
// window boundaries to drive the continuity-filter sweep, and exposes the two
// operations hosts need: ProcessPacket and Finalize.
//
// Data flow is strictly forward; all emissions happen synchronously inside
// ProcessPacket. Ingestion of one stream is single-threaded by contract.
type Sketch struct {
	stage1 *ContinuityFilter
	stage2 *StabilityMonitor
	stage3 *SubflowMerger

	currentWindow uint32
	onPromote     func(Fingerprint, uint32)
}

// observingSink interposes between the monitor and the merger to feed
// telemetry and the host's OnSubflow hook without the stages knowing.
type observingSink struct {
	next SubflowSink
	hook func(Fingerprint, uint32, float32, float32)
}

func (s observingSink) ProcessSteadySubflow(flow Fingerprint, startWindow uint32, variance, mean float32) {
	telemetry.ObserveSubflow()
	if s.hook != nil {
		s.hook(flow, startWindow, variance, mean)
	}
	s.next.ProcessSteadySubflow(flow, startWindow, variance, mean)
}

// observingReporter counts finalized stable flows before forwarding them.
type observingReporter struct {
	next Reporter
}

func (r observingReporter) ReportStableFlow(rep StableFlowReport) {
	telemetry.ObserveReport()
	r.next.ReportStableFlow(rep)
}

// New constructs the full pipeline. See Options for the defaults taken when
// fields are zero.
func New(opts Options) *Sketch {
	s1mem := opts.Stage1MemoryBytes
	if s1mem == 0 {
		s1mem = DefaultStage1Memory
	}
	s2mem := opts.Stage2MemoryBytes
	if s2mem == 0 {
		s2mem = DefaultStage2Memory
	}
	s3mem := opts.Stage3MemoryBytes
	if s3mem == 0 {
		s3mem = DefaultStage3Memory
	}

	reporter := opts.Reporter
	if reporter == nil {
		reporter = NopReporter{}
	}
	merger := NewSubflowMerger(s3mem, opts.Rand, observingReporter{next: reporter})
	monitor := NewStabilityMonitor(observingSink{next: merger, hook: opts.OnSubflow}, s2mem)

	return &Sketch{
		stage1:    NewContinuityFilter(s1mem),
		stage2:    monitor,
		stage3:    merger,
		onPromote: opts.OnPromote,
	}
}

// ProcessPacket ingests one (flow, window) event. A change in window number
// marks the boundary of the previous window: the continuity filter is swept
// there before the packet is applied. Promoted flows continue into the
// stability monitor, which may synchronously emit a subflow to the merger.
func (s *Sketch) ProcessPacket(p Packet) {
	if p.Window != s.currentWindow {
		s.stage1.Sweep(s.currentWindow)
		s.currentWindow = p.Window
	}

	promoted := s.stage1.ProcessPacket(&p.FlowID, p.Window)
	telemetry.ObservePacket(promoted)
	if !promoted {
		return
	}
	if s.onPromote != nil {
		s.onPromote(p.FlowID, p.Window)
	}
	s.stage2.ProcessPotentialFlow(&p.FlowID, p.Window)
}

// Finalize ends the stream: the continuity filter is swept with the last
// observed window and every merger cell is flushed through the eviction path,
// delivering pending reports. The stability monitor keeps no flushable state;
// in-flight partial subflows are discarded by design. Finalize is idempotent.
func (s *Sketch) Finalize() {
	s.stage1.Sweep(s.currentWindow)
	s.stage3.Finalize()
}

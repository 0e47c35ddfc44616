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
	"math/rand"
	"time"
)

// Rand supplies the uniform variates behind the merger's probabilistic
// replacement. *math/rand.Rand satisfies it; tests inject a fixed-seed or
// scripted implementation to make replacement eviction deterministic.
type Rand interface {
	Float32() float32
}

// StableFlowReport is the externally observable outcome of the pipeline: a
// merged run of consecutive stable subflows long enough to count as a stable
// flow, delivered when its merger cell is evicted or flushed.
type StableFlowReport struct {
	FlowID      Fingerprint `json:"flow_id"`
	StartWindow uint32      `json:"start_window"`
	EndWindow   uint32      `json:"end_window"`
	Subflows    uint16      `json:"subflows"`
	Mean        float32     `json:"mean"`
	Variance    float32     `json:"variance"`
}

// Reporter observes finalized stable flows. Reports are delivered
// synchronously from the merger's eviction path, so implementations must not
// block.
type Reporter interface {
	ReportStableFlow(r StableFlowReport)
}

// NopReporter discards reports. It is the default when no reporter is wired.
type NopReporter struct{}

func (NopReporter) ReportStableFlow(StableFlowReport) {}

// mergerCell stores the merged statistics of one flow's run of consecutive
// stable subflows. A zero first fingerprint byte marks the cell empty.
type mergerCell struct {
	id       Fingerprint
	window   uint16
	number   uint16
	mean     float32
	variance float32
}

func (c *mergerCell) empty() bool { return c.id[0] == 0 }

// mergerCellBytes is the per-cell footprint used for sizing: the 28-byte
// cell (fingerprint, two 16-bit fields, two float32 statistics) counted as
// 32 bytes.
const mergerCellBytes = 32

// SubflowMerger is the third sketch stage: a small bucketed store that
// concatenates consecutive stable subflows of the same flow, keeps a merged
// (mean, variance) estimator per cell, and evicts under a probabilistic
// replacement policy. It implements SubflowSink.
type SubflowMerger struct {
	buckets  [Stage3Buckets][]mergerCell
	rng      Rand
	reporter Reporter
}

// NewSubflowMerger sizes the store from a byte budget split across the
// buckets. A nil rng falls back to a time-seeded generator; a nil reporter
// to NopReporter.
func NewSubflowMerger(memoryBytes int, rng Rand, reporter Reporter) *SubflowMerger {
	perBucket := memoryBytes / Stage3Buckets / mergerCellBytes
	if perBucket < 1 {
		perBucket = 1
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if reporter == nil {
		reporter = NopReporter{}
	}
	m := &SubflowMerger{rng: rng, reporter: reporter}
	for i := range m.buckets {
		m.buckets[i] = make([]mergerCell, perBucket)
	}
	return m
}

// mergedStats returns the incrementally merged (mean, variance) of a cell
// holding C subflows and an incoming (mean, variance) pair:
//
//	mu'  = (C*mu + mean) / (C+1)
//	V'   = (C*(V + (mu-mu')^2) + (var + (mean-mu')^2)) / (C+1)
func mergedStats(c *mergerCell, variance, mean float32) (float32, float32) {
	cf := float32(c.number)
	mu := (cf*c.mean + mean) / (cf + 1)
	d0 := c.mean - mu
	d1 := mean - mu
	v := (cf*(c.variance+d0*d0) + (variance + d1*d1)) / (cf + 1)
	return mu, v
}

func canMergeVariance(c *mergerCell, variance, mean float32) bool {
	_, v := mergedStats(c, variance, mean)
	return v <= StableThreshold
}

func initCell(c *mergerCell, fp *Fingerprint, startWindow uint32, variance, mean float32) {
	c.id = *fp
	c.window = uint16(startWindow)
	c.mean = mean
	c.variance = variance
	c.number = 1
}

func mergeCell(c *mergerCell, variance, mean float32) {
	if c.number < MaxMerged {
		mu, v := mergedStats(c, variance, mean)
		c.number++
		c.mean = mu
		c.variance = v
	}
}

// clearCell evicts a cell. Cells holding a long enough merged run whose
// variance still qualifies as stable are handed to the reporter first; the
// run's end window is the last window its subflows cover.
func (m *SubflowMerger) clearCell(c *mergerCell) {
	if !c.empty() && c.number >= ReportMin && c.variance <= StableThreshold {
		end := uint32(c.window) + uint32(c.number)*MinSubflows - 1
		m.reporter.ReportStableFlow(StableFlowReport{
			FlowID:      c.id,
			StartWindow: uint32(c.window),
			EndWindow:   end,
			Subflows:    c.number,
			Mean:        c.mean,
			Variance:    c.variance,
		})
	}
	*c = mergerCell{}
}

// ProcessSteadySubflow files one stable subflow into the flow's bucket:
// extending an existing run when the windows are contiguous and the merged
// variance stays stable, otherwise restarting the cell; when the bucket is
// full it evicts a discontinuous cell, or failing that the shortest run with
// a probability that decays with the run's length.
func (m *SubflowMerger) ProcessSteadySubflow(flow Fingerprint, startWindow uint32, variance, mean float32) {
	u := stage3Hash(&flow) % Stage3Buckets
	bucket := m.buckets[u]

	var target *mergerCell
	emptyIndex := -1
	firstDiscont := -1
	discontCount := 0

	for a := range bucket {
		c := &bucket[a]
		if c.empty() {
			if emptyIndex < 0 {
				emptyIndex = a
			}
			continue
		}
		if c.id == flow {
			target = c
			continue
		}
		if startWindow != uint32(c.window)+uint32(c.number)*MinSubflows {
			if firstDiscont < 0 {
				firstDiscont = a
			}
			discontCount++
		}
	}

	switch {
	case target == nil && emptyIndex >= 0:
		initCell(&bucket[emptyIndex], &flow, startWindow, variance, mean)

	case target != nil:
		if startWindow != uint32(target.window)+uint32(target.number)*MinSubflows {
			// The run broke; report what was accumulated and restart.
			m.clearCell(target)
			initCell(target, &flow, startWindow, variance, mean)
		} else if canMergeVariance(target, variance, mean) {
			mergeCell(target, variance, mean)
			if target.number >= MaxMerged {
				m.clearCell(target)
				initCell(target, &flow, startWindow, variance, mean)
			}
		} else {
			m.clearCell(target)
			initCell(target, &flow, startWindow, variance, mean)
		}

	case discontCount > 0:
		// Evict the discontinuous cell with the shortest merged run.
		victim := firstDiscont
		for a := range bucket {
			c := &bucket[a]
			if c.empty() || c.id == flow || a == victim {
				continue
			}
			if startWindow != uint32(c.window)+uint32(c.number)*MinSubflows &&
				c.number < bucket[victim].number {
				victim = a
			}
		}
		m.clearCell(&bucket[victim])
		initCell(&bucket[victim], &flow, startWindow, variance, mean)

	default:
		// Every resident run is still contiguous with its next expected
		// subflow. Replace the shortest one with probability decaying in the
		// number of windows it already covers.
		victim := 0
		for a := 1; a < len(bucket); a++ {
			if bucket[a].number < bucket[victim].number {
				victim = a
			}
		}
		covered := uint32(bucket[victim].number) * MinSubflows
		denom := float32(covered) - MinSubflows + 1
		if denom < 1 {
			denom = 1
		}
		if m.rng.Float32() <= 1/denom {
			m.clearCell(&bucket[victim])
			initCell(&bucket[victim], &flow, startWindow, variance, mean)
		}
	}
}

// Finalize flushes every cell through the eviction path. It is the single
// flush point of the pipeline and is idempotent.
func (m *SubflowMerger) Finalize() {
	for i := range m.buckets {
		for j := range m.buckets[i] {
			m.clearCell(&m.buckets[i][j])
		}
	}
}

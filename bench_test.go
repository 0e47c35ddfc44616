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
	"fmt"
	"math/rand"
	"testing"
)

// benchStream builds a deterministic mixed workload: a few steady flows that
// appear in every window plus a long tail of sporadic ones.
func benchStream(windows, steady, noise, perWindow int) []Packet {
	rng := rand.New(rand.NewSource(7))
	steadyFPs := make([]Fingerprint, steady)
	for i := range steadyFPs {
		steadyFPs[i] = FingerprintString(fmt.Sprintf("steady-%04d", i))
	}
	var out []Packet
	for w := 0; w < windows; w++ {
		for _, fp := range steadyFPs {
			for i := 0; i < perWindow; i++ {
				out = append(out, Packet{FlowID: fp, Window: uint32(w)})
			}
		}
		for i := 0; i < noise; i++ {
			fp := FingerprintString(fmt.Sprintf("noise-%05d", rng.Intn(4*noise)))
			out = append(out, Packet{FlowID: fp, Window: uint32(w)})
		}
	}
	return out
}

func BenchmarkSketchProcessPacket(b *testing.B) {
	stream := benchStream(64, 8, 512, 8)
	s := New(Options{Rand: rand.New(rand.NewSource(1))})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.ProcessPacket(stream[i%len(stream)])
	}
}

func BenchmarkContinuityFilter(b *testing.B) {
	f := NewContinuityFilter(DefaultStage1Memory)
	fp := FingerprintString("bench-flow")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.ProcessPacket(&fp, uint32(i))
	}
}

type discardSink struct{}

func (discardSink) ProcessSteadySubflow(Fingerprint, uint32, float32, float32) {}

func BenchmarkStabilityMonitor(b *testing.B) {
	m := NewStabilityMonitor(discardSink{}, DefaultStage2Memory)
	fp := FingerprintString("bench-flow")

	b.ReportAllocs()
	b.ResetTimer()
	w := uint32(0)
	for i := 0; i < b.N; i++ {
		if i%7 == 0 {
			w++
		}
		m.ProcessPotentialFlow(&fp, w)
	}
}

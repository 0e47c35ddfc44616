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

package sinks

import (
	"path/filepath"
	"testing"

	"placidsketch"
)

func TestReportFileSinkRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.jsonl")
	s, err := NewReportFileSink(path)
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}

	want := []placidsketch.StableFlowReport{
		{FlowID: placidsketch.FingerprintString("flow-a"), StartWindow: 10, EndWindow: 209, Subflows: 40, Mean: 7, Variance: 0.25},
		{FlowID: placidsketch.FingerprintString("flow-b"), StartWindow: 3, EndWindow: 302, Subflows: 60, Mean: 12.5, Variance: 1.75},
	}
	for _, r := range want {
		s.ReportStableFlow(r)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close sink: %v", err)
	}

	got, err := ReadAllReports(path)
	if err != nil {
		t.Fatalf("read reports: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("read %d reports, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("report %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestReportFileSinkAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.jsonl")

	for run := 0; run < 2; run++ {
		s, err := NewReportFileSink(path)
		if err != nil {
			t.Fatalf("open sink: %v", err)
		}
		s.ReportStableFlow(placidsketch.StableFlowReport{
			FlowID:      placidsketch.FingerprintString("flow"),
			StartWindow: uint32(run),
			Subflows:    40,
		})
		if err := s.Close(); err != nil {
			t.Fatalf("close sink: %v", err)
		}
	}

	got, err := ReadAllReports(path)
	if err != nil {
		t.Fatalf("read reports: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("appending runs produced %d reports, want 2", len(got))
	}
	if got[0].StartWindow != 0 || got[1].StartWindow != 1 {
		t.Fatalf("append order lost: %+v", got)
	}
}

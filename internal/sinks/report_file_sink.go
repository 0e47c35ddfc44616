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

// Package sinks provides host-side delivery of stable-flow reports.
package sinks

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"time"

	"placidsketch"
)

// ReportFileSink is a buffered JSONL sink for stable-flow reports. It is safe
// for concurrent use and optimized for append-only workloads. It implements
// placidsketch.Reporter.
type ReportFileSink struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string

	lastFlush time.Time
}

// NewReportFileSink opens (or creates) the file at path in append mode with a
// buffered writer. Call Close() when done.
func NewReportFileSink(path string) (*ReportFileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	s := &ReportFileSink{f: f, w: bufio.NewWriterSize(f, 1<<20 /*1MiB*/), path: path, lastFlush: time.Now()}
	return s, nil
}

// ReportStableFlow writes the report as one JSON line.
func (s *ReportFileSink) ReportStableFlow(r placidsketch.StableFlowReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	enc := json.NewEncoder(s.w)
	if err := enc.Encode(&r); err != nil {
		// best effort: on error, try to flush and retry once
		_ = s.w.Flush()
		_ = enc.Encode(&r)
	}
	// Flush periodically to bound data loss on crash.
	if time.Since(s.lastFlush) > 100*time.Millisecond {
		_ = s.w.Flush()
		s.lastFlush = time.Now()
	}
}

// Flush forces buffered data to be written to disk.
func (s *ReportFileSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFlush = time.Now()
	return s.w.Flush()
}

// Close flushes and closes the underlying file.
func (s *ReportFileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.w.Flush()
	return s.f.Close()
}

// ReadAllReports reads an entire report log as a slice. Intended for tools
// and replay, not the hot path.
func ReadAllReports(path string) ([]placidsketch.StableFlowReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []placidsketch.StableFlowReport
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1<<20), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var r placidsketch.StableFlowReport
		if err := json.Unmarshal(line, &r); err != nil {
			continue // tolerate torn tail lines from crashed runs
		}
		out = append(out, r)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

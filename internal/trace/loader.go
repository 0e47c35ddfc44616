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

// Package trace loads window-per-file CSV packet traces. Each .csv file in a
// directory is one time window; the window number is the file's 0-based
// position in the lexicographically sorted listing.
package trace

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"placidsketch"
)

// LoadDir loads every .csv file under dir and returns the packet stream in
// window order, plus the number of windows (files) seen. Line format: one
// header line is skipped; each non-empty line is tokenized by comma with the
// third field (between the 2nd and 3rd commas) as the flow fingerprint. A
// line with a single comma uses its second field; a line with no commas is
// itself the fingerprint.
func LoadDir(dir string) ([]placidsketch.Packet, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, fmt.Errorf("read trace dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && filepath.Ext(e.Name()) == ".csv" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	var packets []placidsketch.Packet
	for w, path := range files {
		if err := loadFile(path, uint32(w), &packets); err != nil {
			return nil, 0, fmt.Errorf("load %s: %w", path, err)
		}
	}
	return packets, len(files), nil
}

func loadFile(path string, window uint32, out *[]placidsketch.Packet) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1<<20), 1<<20)
	first := true
	for sc.Scan() {
		if first { // header line
			first = false
			continue
		}
		line := sc.Text()
		if line == "" {
			continue
		}
		fp := fingerprintField(line)
		if fp == "" {
			continue
		}
		*out = append(*out, placidsketch.Packet{
			FlowID: placidsketch.FingerprintString(fp),
			Window: window,
		})
	}
	return sc.Err()
}

// fingerprintField extracts the fingerprint column. The first field is the
// five-tuple (unused by the sketch); the fingerprint sits between the 2nd and
// 3rd commas when present.
func fingerprintField(line string) string {
	i := strings.IndexByte(line, ',')
	if i < 0 {
		return line
	}
	rest := line[i+1:]
	j := strings.IndexByte(rest, ',')
	if j < 0 {
		return rest
	}
	rest = rest[j+1:]
	if k := strings.IndexByte(rest, ','); k >= 0 {
		return rest[:k]
	}
	return rest
}

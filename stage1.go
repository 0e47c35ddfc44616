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

// Stage-1 bucket layout, packed into a single byte:
//
//	bits 0-3  continuity: saturating count (0..15) of consecutive windows in
//	          which the bucket saw arrivals
//	bit 4     arrival: parity (window mod 2) of the last window observed
//	bit 5     jump: promotion flag
//
// A bucket is empty iff the whole byte is zero.
const (
	s1ContinuityMask = 0x0F
	s1ContinuityMax  = 15
	s1ArrivalBit     = 1 << 4
	s1JumpBit        = 1 << 5
)

func s1Continuity(b byte) byte { return b & s1ContinuityMask }

func s1Arrival(b byte) byte {
	if b&s1ArrivalBit != 0 {
		return 1
	}
	return 0
}

func s1SetArrival(b byte, parity byte) byte {
	if parity != 0 {
		return b | s1ArrivalBit
	}
	return b &^ s1ArrivalBit
}

func s1SetContinuity(b, c byte) byte {
	return (b &^ s1ContinuityMask) | (c & s1ContinuityMask)
}

// ContinuityFilter is the first sketch stage: a multi-row table of one-byte
// buckets that promotes flows observed across enough consecutive windows.
// It answers a single question per packet — has this flow been continuously
// present long enough to be worth monitoring — without storing identifiers.
type ContinuityFilter struct {
	rows   [][]byte
	widths [Stage1Rows]uint32
}

// NewContinuityFilter sizes the filter from a byte budget split evenly across
// the rows; each bucket occupies exactly one byte. Budgets below one bucket
// per row are rounded up to one.
func NewContinuityFilter(memoryBytes int) *ContinuityFilter {
	perRow := memoryBytes / Stage1Rows
	if perRow < 1 {
		perRow = 1
	}
	f := &ContinuityFilter{rows: make([][]byte, Stage1Rows)}
	for i := range f.rows {
		f.rows[i] = make([]byte, perRow)
		f.widths[i] = uint32(perRow)
	}
	return f
}

func (f *ContinuityFilter) index(fp *Fingerprint, row uint32) uint32 {
	return bucketIndex(stage1RowHash(fp, row), f.widths[row])
}

// ProcessPacket records one arrival of flowID in window windowSeq and reports
// whether the flow is promoted to the stability monitor. Promotion happens
// the first time every mapped bucket saturates its continuity counter; after
// that, arrivals take the jump fast path and only refresh the parity bit.
func (f *ContinuityFilter) ProcessPacket(fp *Fingerprint, windowSeq uint32) bool {
	cur := byte(windowSeq % 2)

	var idx [Stage1Rows]uint32
	allJumped := true
	for i := uint32(0); i < Stage1Rows; i++ {
		idx[i] = f.index(fp, i)
		if f.rows[i][idx[i]]&s1JumpBit == 0 {
			allJumped = false
		}
	}

	if allJumped {
		for i := uint32(0); i < Stage1Rows; i++ {
			b := f.rows[i][idx[i]]
			f.rows[i][idx[i]] = s1SetArrival(b, cur)
		}
		return true
	}

	allSaturated := true
	for i := uint32(0); i < Stage1Rows; i++ {
		b := f.rows[i][idx[i]]
		switch {
		case b == 0:
			b = s1SetContinuity(b, 1)
			b = s1SetArrival(b, cur)
			allSaturated = false
		case s1Arrival(b) == cur:
			// Repeat arrival inside the same window: no progress.
			if s1Continuity(b) != s1ContinuityMax {
				allSaturated = false
			}
		default:
			if c := s1Continuity(b); c < s1ContinuityMax {
				b = s1SetContinuity(b, c+1)
			}
			b = s1SetArrival(b, cur)
			if s1Continuity(b) != s1ContinuityMax {
				allSaturated = false
			}
		}
		f.rows[i][idx[i]] = b
	}

	if allSaturated {
		for i := uint32(0); i < Stage1Rows; i++ {
			f.rows[i][idx[i]] |= s1JumpBit
		}
		return true
	}
	return false
}

// Sweep evicts every bucket whose last arrival parity does not match the
// given window, i.e. flows absent from the window that just closed. The
// pipeline calls it on each window transition and once more at finalize.
func (f *ContinuityFilter) Sweep(windowSeq uint32) {
	cur := byte(windowSeq % 2)
	for _, row := range f.rows {
		for j, b := range row {
			if b == 0 {
				continue
			}
			if s1Arrival(b) != cur {
				row[j] = 0
			}
		}
	}
}

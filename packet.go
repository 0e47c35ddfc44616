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

// Fingerprint is the fixed-width opaque flow identifier the sketch operates
// on. Hosts derive it from whatever identifies a flow (typically a hashed
// five-tuple); the sketch never interprets the bytes beyond equality and
// hashing. A fingerprint whose first byte is zero denotes "no flow" inside
// the merger, so hosts must not produce all-zero-prefixed fingerprints for
// real flows.
type Fingerprint [KeyLen]byte

// MakeFingerprint copies up to KeyLen bytes of b into a Fingerprint,
// NUL-padding the remainder. Longer inputs are truncated.
func MakeFingerprint(b []byte) Fingerprint {
	var fp Fingerprint
	copy(fp[:], b)
	return fp
}

// FingerprintString is a convenience for string-keyed hosts and tests.
func FingerprintString(s string) Fingerprint {
	var fp Fingerprint
	copy(fp[:], s)
	return fp
}

// Packet is the unit of ingestion: a flow fingerprint observed in a time
// window. Window numbers must be non-decreasing across the stream.
type Packet struct {
	FlowID Fingerprint
	Window uint32
}

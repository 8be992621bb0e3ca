/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package clock

import (
	"time"

	"github.com/stratumone/gpsntpd/protocol/ntp"
)

// Source is anything an NTP server can ask for the current time and the
// header fields that describe how trustworthy that time is.
type Source interface {
	// Now returns the current time as an NTP timestamp.
	Now() ntp.Timestamp
	// Stratum is the NTP stratum to advertise.
	Stratum() uint8
	// ReferenceID is the 4-byte reference identifier to advertise.
	ReferenceID() [4]byte
	// Precision is the NTP precision field, log2 seconds.
	Precision() int8
}

// SystemClock reports the host's wall clock. It has no external reference
// of its own and always advertises the stratum and reference identifier
// it was built with.
type SystemClock struct {
	stratum     uint8
	referenceID [4]byte
}

// NewSystemClock builds a SystemClock advertising the given stratum and
// reference identifier (padded/truncated to 4 bytes).
func NewSystemClock(stratum uint8, referenceID string) *SystemClock {
	var id [4]byte
	copy(id[:], referenceID+"\x00\x00\x00\x00")
	return &SystemClock{stratum: stratum, referenceID: id}
}

// Now implements Source.
func (c *SystemClock) Now() ntp.Timestamp {
	return ntp.FromTime(time.Now())
}

// Stratum implements Source.
func (c *SystemClock) Stratum() uint8 { return c.stratum }

// ReferenceID implements Source.
func (c *SystemClock) ReferenceID() [4]byte { return c.referenceID }

// Precision implements Source.
func (c *SystemClock) Precision() int8 { return -20 }

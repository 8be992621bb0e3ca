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

package security

import (
	"fmt"

	"github.com/stratumone/gpsntpd/protocol/ntp"
)

// ValidationError reports why an incoming packet was rejected before it
// ever reached the clock/response path.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// ValidateRequest checks that an incoming packet looks like a well-formed
// NTP client request: a plausible version, client mode, a non-zero
// transmit timestamp, and a stratum that isn't already claiming to be
// unsynchronized (>=16).
func ValidateRequest(p *ntp.Packet) error {
	if p.Version < 1 || p.Version > 4 {
		return &ValidationError{Reason: fmt.Sprintf("invalid NTP version: %d", p.Version)}
	}
	if p.Mode != ntp.ModeClient {
		return &ValidationError{Reason: "invalid NTP mode (expected client)"}
	}
	if p.TransmitTime == 0 {
		return &ValidationError{Reason: "zero transmit timestamp"}
	}
	if p.Stratum >= 16 {
		return &ValidationError{Reason: fmt.Sprintf("invalid stratum: %d", p.Stratum)}
	}
	return nil
}

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
	"sync"
	"time"

	"github.com/eclesh/welford"

	"github.com/stratumone/gpsntpd/protocol/ntp"
)

// ppsEwmaWeight is the weight given to a new PPS offset sample against
// the running average: offset = offset*0.9 + new*0.1.
const ppsEwmaWeight = 0.1

// ppsOffsetMaxAge is how long a PPS offset measurement is trusted before
// GpsDisciplinedClock falls back to NMEA-only extrapolation.
const ppsOffsetMaxAge = 5 * time.Second

// minSatellitesSynced is the minimum satellite count in the last GPS fix
// for GpsDisciplinedClock to consider itself synced. It is fixed; the
// configured min_satellites value is not read by this clock.
const minSatellitesSynced = 3

// gpsSync records the most recent NMEA-derived fix.
type gpsSync struct {
	timestamp  ntp.Timestamp
	receivedAt time.Time
	satellites uint8
}

// ppsOffset records the current EWMA-filtered PPS offset.
type ppsOffset struct {
	offsetSeconds float64
	measuredAt    time.Time
	sampleCount   uint32
}

// GpsDisciplinedClock is a Source fed by NMEA time-of-day sentences and a
// PPS edge detected on the GPS serial port's CTS line. It resolves the
// current time in three tiers: PPS-corrected system clock (sub-ms),
// NMEA-extrapolated system clock (~100ms), or a plain system-clock
// fallback when no GPS fix is fresh enough to trust.
type GpsDisciplinedClock struct {
	mu          sync.RWMutex
	fix         *gpsSync
	offset      *ppsOffset
	jitter      *welford.Stats

	system      *SystemClock
	syncTimeout time.Duration
}

// NewGpsDisciplinedClock builds a clock that falls back to an unsynced
// system clock once syncTimeout has elapsed since the last valid fix.
func NewGpsDisciplinedClock(syncTimeout time.Duration) *GpsDisciplinedClock {
	return &GpsDisciplinedClock{
		system:      NewSystemClock(16, "LOCL"),
		syncTimeout: syncTimeout,
		jitter:      welford.New(),
	}
}

// UpdateGpsTime records a new NMEA-derived fix. satelliteCount should be
// the most recently observed GGA satellites-in-use count, not a
// placeholder — RMC sentences carry no satellite count of their own.
func (c *GpsDisciplinedClock) UpdateGpsTime(gpsTime ntp.Timestamp, satelliteCount uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fix = &gpsSync{
		timestamp:  gpsTime,
		receivedAt: time.Now(),
		satellites: satelliteCount,
	}
}

// UpdatePpsOffset folds a new PPS-derived system/GPS offset measurement
// into the running EWMA. ppsInstant is when the PPS edge was observed;
// gpsSecondBoundary is the GPS-time whole second that edge marks.
func (c *GpsDisciplinedClock) UpdatePpsOffset(ppsInstant time.Time, gpsSecondBoundary ntp.Timestamp) {
	systemNow := c.system.Now()
	elapsedSincePps := time.Since(ppsInstant).Seconds()
	systemSecs := float64(systemNow.Seconds()) + float64(systemNow.Fraction())/(1<<32)
	systemAtPpsSecs := systemSecs - elapsedSincePps
	gpsAtPpsSecs := float64(gpsSecondBoundary.Seconds())
	sample := systemAtPpsSecs - gpsAtPpsSecs

	c.mu.Lock()
	defer c.mu.Unlock()
	c.jitter.Add(sample)
	if c.offset == nil {
		c.offset = &ppsOffset{offsetSeconds: sample, measuredAt: time.Now(), sampleCount: 1}
		return
	}
	c.offset.offsetSeconds = c.offset.offsetSeconds*(1-ppsEwmaWeight) + sample*ppsEwmaWeight
	c.offset.measuredAt = time.Now()
	c.offset.sampleCount++
}

// PpsOffsetSeconds returns the current PPS offset, if any measurement
// has been taken yet.
func (c *GpsDisciplinedClock) PpsOffsetSeconds() (offset float64, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.offset == nil {
		return 0, false
	}
	return c.offset.offsetSeconds, true
}

// JitterStddevSeconds reports the standard deviation of PPS offset
// samples seen so far, as a supplementary diagnostic alongside the EWMA
// offset that actually disciplines the clock.
func (c *GpsDisciplinedClock) JitterStddevSeconds() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.jitter.Stddev()
}

// IsSynced reports whether the last GPS fix is recent enough and carries
// enough satellites to be trusted.
func (c *GpsDisciplinedClock) IsSynced() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isSyncedLocked()
}

func (c *GpsDisciplinedClock) isSyncedLocked() bool {
	if c.fix == nil {
		return false
	}
	elapsed := time.Since(c.fix.receivedAt)
	return elapsed < c.syncTimeout && c.fix.satellites >= minSatellitesSynced
}

// calculateGpsTime resolves the current time in three tiers, per
// GpsDisciplinedClock's doc comment.
func (c *GpsDisciplinedClock) calculateGpsTime() (ntp.Timestamp, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.offset != nil && time.Since(c.offset.measuredAt) < ppsOffsetMaxAge {
		systemNow := c.system.Now()
		systemSecs := float64(systemNow.Seconds())
		systemFrac := float64(systemNow.Fraction()) / (1 << 32)
		systemTime := systemSecs + systemFrac

		gpsTime := systemTime - c.offset.offsetSeconds
		gpsSecs := uint32(gpsTime)
		gpsNanos := uint32((gpsTime - float64(gpsSecs)) * 1e9)
		return ntp.NewTimestamp(gpsSecs, gpsNanos), true
	}

	if c.fix != nil {
		elapsed := time.Since(c.fix.receivedAt)
		totalSecs := c.fix.timestamp.Seconds() + uint32(elapsed/time.Second)
		totalNanos := uint32(elapsed % time.Second)
		return ntp.NewTimestamp(totalSecs, totalNanos), true
	}

	return 0, false
}

// Now implements Source.
func (c *GpsDisciplinedClock) Now() ntp.Timestamp {
	if c.IsSynced() {
		if t, ok := c.calculateGpsTime(); ok {
			return t
		}
	}
	return c.system.Now()
}

// ReferenceID implements Source.
func (c *GpsDisciplinedClock) ReferenceID() [4]byte {
	if c.IsSynced() {
		return [4]byte{'G', 'P', 'S', 0}
	}
	return [4]byte{'L', 'O', 'C', 'L'}
}

// Stratum implements Source.
func (c *GpsDisciplinedClock) Stratum() uint8 {
	if c.IsSynced() {
		return 1
	}
	return 16
}

// Precision implements Source.
func (c *GpsDisciplinedClock) Precision() int8 {
	if c.IsSynced() {
		return -20
	}
	return c.system.Precision()
}

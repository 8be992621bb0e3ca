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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stratumone/gpsntpd/protocol/ntp"
)

func TestSystemClockMonotonic(t *testing.T) {
	c := NewSystemClock(2, "LOCL")
	ts1 := c.Now()
	time.Sleep(10 * time.Millisecond)
	ts2 := c.Now()
	assert.GreaterOrEqual(t, ts2.Seconds(), ts1.Seconds())
}

func TestGpsClockFallbackWhenUnsynced(t *testing.T) {
	c := NewGpsDisciplinedClock(10 * time.Second)
	assert.Equal(t, uint8(16), c.Stratum())
	assert.Equal(t, [4]byte{'L', 'O', 'C', 'L'}, c.ReferenceID())
	assert.False(t, c.IsSynced())
}

func TestGpsClockSyncedAfterFix(t *testing.T) {
	c := NewGpsDisciplinedClock(10 * time.Second)
	gpsTime := ntp.NewTimestamp(3900000000, 0)
	c.UpdateGpsTime(gpsTime, 8)

	assert.True(t, c.IsSynced())
	assert.Equal(t, uint8(1), c.Stratum())
	assert.Equal(t, [4]byte{'G', 'P', 'S', 0}, c.ReferenceID())
}

func TestGpsClockNotSyncedWithTooFewSatellites(t *testing.T) {
	c := NewGpsDisciplinedClock(10 * time.Second)
	c.UpdateGpsTime(ntp.NewTimestamp(3900000000, 0), 2)
	assert.False(t, c.IsSynced())
}

func TestGpsClockSyncExpiresAfterTimeout(t *testing.T) {
	c := NewGpsDisciplinedClock(10 * time.Millisecond)
	c.UpdateGpsTime(ntp.NewTimestamp(3900000000, 0), 8)
	assert.True(t, c.IsSynced())
	time.Sleep(20 * time.Millisecond)
	assert.False(t, c.IsSynced())
}

func TestPpsOffsetEwmaConverges(t *testing.T) {
	c := NewGpsDisciplinedClock(10 * time.Second)
	// Feed the same offset repeatedly; EWMA should converge towards it.
	// Every sample is taken against one PPS instant whose boundary is that
	// instant's whole second, so each sample is the instant's sub-second part.
	ppsInstant := time.Now()
	boundary := ntp.NewTimestamp(ntp.FromTime(ppsInstant).Seconds(), 0)
	want := float64(ppsInstant.Nanosecond()) / 1e9
	for i := 0; i < 50; i++ {
		c.UpdatePpsOffset(ppsInstant, boundary)
	}
	offset, ok := c.PpsOffsetSeconds()
	assert.True(t, ok)
	assert.InDelta(t, want, offset, 1e-3)
}

func TestPpsOffsetNoneBeforeFirstSample(t *testing.T) {
	c := NewGpsDisciplinedClock(10 * time.Second)
	_, ok := c.PpsOffsetSeconds()
	assert.False(t, ok)
}

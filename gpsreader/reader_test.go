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

package gpsreader

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumone/gpsntpd/clock"
	"github.com/stratumone/gpsntpd/stats"
)

func TestParseRMCValidFix(t *testing.T) {
	fix, ok, err := parseRMC("$GPRMC,123519.00,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2094, fix.When.Year())
	assert.Equal(t, time.Month(3), fix.When.Month())
	assert.Equal(t, 23, fix.When.Day())
	assert.Equal(t, 12, fix.When.Hour())
	assert.Equal(t, 35, fix.When.Minute())
	assert.Equal(t, 19, fix.When.Second())
}

func TestParseRMCInvalidFix(t *testing.T) {
	_, ok, err := parseRMC("$GPRMC,123519.00,V,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseRMCTooFewFields(t *testing.T) {
	_, ok, err := parseRMC("$GPRMC,123519.00,A")
	require.Error(t, err)
	assert.False(t, ok)
}

func TestParseGGASatellites(t *testing.T) {
	n, ok, err := parseGGASatellites("$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint8(8), n)
}

func TestParseGGASatellitesEmptyField(t *testing.T) {
	_, ok, err := parseGGASatellites("$GPGGA,123519,4807.038,N,01131.000,E,1,,0.9,545.4,M,46.9,M,,*47")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseGSV(t *testing.T) {
	constellation, sats, err := parseGSV("$GPGSV,3,1,11,03,03,111,00,04,15,270,00,06,01,010,00,13,06,292,00*74")
	require.NoError(t, err)
	assert.Equal(t, "GPS", constellation)
	require.Len(t, sats, 4)
	assert.Equal(t, 3, sats[0].PRN)
	assert.Equal(t, 111, sats[0].Azimuth)
	assert.Equal(t, "GPS", sats[0].Constellation)
}

func TestParseGSVUnknownTalker(t *testing.T) {
	_, _, err := parseGSV("$XXGSV,3,1,11,03,03,111,00*74")
	require.Error(t, err)
}

func TestMergeSatellitesReplacesByPRN(t *testing.T) {
	tracked := map[int]stats.SatelliteInfo{
		3: {PRN: 3, SNR: 10, Constellation: "GPS"},
	}
	mergeSatellites(tracked, []stats.SatelliteInfo{
		{PRN: 3, SNR: 20, Constellation: "GPS"},
		{PRN: 4, SNR: 15, Constellation: "GPS"},
	})
	assert.Len(t, tracked, 2)
	assert.Equal(t, 20, tracked[3].SNR)
	assert.Equal(t, 15, tracked[4].SNR)
}

func TestReaderHandleRMCUsesLastGGASatelliteCount(t *testing.T) {
	clk := clock.NewGpsDisciplinedClock(30 * time.Second)
	mgr := stats.NewManager()
	r := NewReader(Config{SerialPort: "/dev/null", BaudRate: 9600}, clk, mgr)

	r.handleGGA("$GPGGA,123519,4807.038,N,01131.000,E,1,07,0.9,545.4,M,46.9,M,,*47")
	r.handleRMC("$GPRMC,123519.00,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A")

	assert.True(t, clk.IsSynced())
	assert.True(t, r.haveLastGpsTime)
}

func TestReaderHandleRMCNotSyncedWithTooFewSatellites(t *testing.T) {
	clk := clock.NewGpsDisciplinedClock(30 * time.Second)
	mgr := stats.NewManager()
	r := NewReader(Config{SerialPort: "/dev/null", BaudRate: 9600}, clk, mgr)

	r.handleGGA("$GPGGA,123519,4807.038,N,01131.000,E,1,02,0.9,545.4,M,46.9,M,,*47")
	r.handleRMC("$GPRMC,123519.00,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A")

	assert.False(t, clk.IsSynced())
}

func TestDrainLinesHandlesPartialBuffers(t *testing.T) {
	clk := clock.NewGpsDisciplinedClock(30 * time.Second)
	mgr := stats.NewManager()
	r := NewReader(Config{SerialPort: "/dev/null", BaudRate: 9600}, clk, mgr)

	var b strings.Builder
	b.WriteString("$GPGGA,123519,4807.038,N,01131.000,E,1,09,0.9,545.4,M,46.9,M,,*47\r\n$GPRMC,123519")
	r.drainLines(&b)

	snap := mgr.Get()
	assert.Equal(t, 9, snap.GPS.Satellites)
	assert.Equal(t, uint64(1), snap.GPS.NMEASentences)
}


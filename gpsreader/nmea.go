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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stratumone/gpsntpd/stats"
)

// rmcFix is what a $--RMC sentence carries for clock discipline: the
// UTC time and calendar date of the fix, if the fix is marked valid.
type rmcFix struct {
	When time.Time
}

// parseRMC parses a $GPRMC/$GNRMC sentence. The two-digit year in field
// 9 is interpreted as 20YY; that's wrong after 2099, but NMEA gives us
// nothing better and every GPS receiver in the field makes the same
// assumption.
func parseRMC(line string) (rmcFix, bool, error) {
	fields := strings.Split(line, ",")
	if len(fields) < 10 {
		return rmcFix{}, false, fmt.Errorf("RMC sentence has %d fields, want >= 10", len(fields))
	}
	if fields[2] != "A" {
		// Receiver reports no valid fix yet; not an error, just not usable.
		return rmcFix{}, false, nil
	}

	timeStr := fields[1]
	dateStr := fields[9]
	if len(timeStr) < 6 || len(dateStr) != 6 {
		return rmcFix{}, false, fmt.Errorf("malformed RMC time/date fields: %q %q", timeStr, dateStr)
	}

	day, err := strconv.Atoi(dateStr[0:2])
	if err != nil {
		return rmcFix{}, false, fmt.Errorf("bad RMC day: %w", err)
	}
	month, err := strconv.Atoi(dateStr[2:4])
	if err != nil {
		return rmcFix{}, false, fmt.Errorf("bad RMC month: %w", err)
	}
	year, err := strconv.Atoi(dateStr[4:6])
	if err != nil {
		return rmcFix{}, false, fmt.Errorf("bad RMC year: %w", err)
	}

	hour, err := strconv.Atoi(timeStr[0:2])
	if err != nil {
		return rmcFix{}, false, fmt.Errorf("bad RMC hour: %w", err)
	}
	minute, err := strconv.Atoi(timeStr[2:4])
	if err != nil {
		return rmcFix{}, false, fmt.Errorf("bad RMC minute: %w", err)
	}
	second, err := strconv.Atoi(timeStr[4:6])
	if err != nil {
		return rmcFix{}, false, fmt.Errorf("bad RMC second: %w", err)
	}

	nanos := 0
	if dot := strings.IndexByte(timeStr, '.'); dot >= 0 && dot+1 < len(timeStr) {
		frac := timeStr[dot+1:]
		if v, err := strconv.Atoi(frac); err == nil {
			// NMEA fractional seconds are typically milliseconds.
			nanos = v * 1000000
		}
	}

	when := time.Date(2000+year, time.Month(month), day, hour, minute, second, nanos, time.UTC)
	return rmcFix{When: when}, true, nil
}

// parseGGASatellites parses the satellite-in-use count (field 7) from a
// $GPGGA/$GNGGA sentence.
func parseGGASatellites(line string) (uint8, bool, error) {
	fields := strings.Split(line, ",")
	if len(fields) < 8 {
		return 0, false, fmt.Errorf("GGA sentence has %d fields, want >= 8", len(fields))
	}
	if fields[7] == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(fields[7])
	if err != nil {
		return 0, false, fmt.Errorf("bad GGA satellite count: %w", err)
	}
	return uint8(n), true, nil
}

var gsvConstellations = map[string]string{
	"GPGSV": "GPS",
	"GLGSV": "GLONASS",
	"GAGSV": "Galileo",
	"GBGSV": "BeiDou",
	"GNGSV": "GNSS",
}

// parseGSV parses a $--GSV sentence, returning up to 4 satellites and
// the constellation name. Multiple GSV sentences must be merged by the
// caller, keyed by PRN, since a single constellation's satellite list
// is split across several sentences.
func parseGSV(line string) (constellation string, sats []stats.SatelliteInfo, err error) {
	comma := strings.IndexByte(line, ',')
	if comma < 0 || comma < 6 {
		return "", nil, fmt.Errorf("malformed GSV sentence: %q", line)
	}
	talker := line[1:comma]
	constellation, ok := gsvConstellations[talker]
	if !ok {
		return "", nil, fmt.Errorf("unrecognized GSV talker: %q", talker)
	}

	fields := strings.Split(line, ",")
	if len(fields) < 4 {
		return constellation, nil, fmt.Errorf("GSV sentence has %d fields, want >= 4", len(fields))
	}

	for i := 0; i < 4; i++ {
		base := 4 + i*4
		if base >= len(fields) {
			break
		}
		prnField := fields[base]
		if prnField == "" {
			continue
		}
		prn, err := strconv.Atoi(prnField)
		if err != nil || prn <= 0 {
			continue
		}

		elevation := atoiOrZero(get(fields, base+1))
		azimuth := atoiOrZero(get(fields, base+2))
		snrField := get(fields, base+3)
		if star := strings.IndexByte(snrField, '*'); star >= 0 {
			snrField = snrField[:star]
		}
		snr := atoiOrZero(snrField)

		sats = append(sats, stats.SatelliteInfo{
			PRN:           prn,
			Elevation:     elevation,
			Azimuth:       azimuth,
			SNR:           snr,
			Constellation: constellation,
		})
	}
	return constellation, sats, nil
}

func get(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return fields[i]
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// mergeSatellites folds freshly parsed satellites into the tracked-by-PRN
// set, replacing any prior entry for the same PRN.
func mergeSatellites(tracked map[int]stats.SatelliteInfo, fresh []stats.SatelliteInfo) {
	for _, s := range fresh {
		tracked[s.PRN] = s
	}
}

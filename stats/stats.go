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

// Package stats holds the server's shared, monitorable state: GPS fix
// quality, NTP traffic counters and the currently advertised clock
// parameters. Every NTP response writes to it and dashboards/scrapers
// read it concurrently, so updates and reads both go through a single
// RWMutex-protected snapshot.
package stats

import "sync"

// SatelliteInfo is one entry of the most recently parsed GSV constellation.
type SatelliteInfo struct {
	PRN          int    `json:"prn"`
	Elevation    int    `json:"elevation"`
	Azimuth      int    `json:"azimuth"`
	SNR          int    `json:"snr"`
	Constellation string `json:"constellation"`
}

// GPSStats describes the GPS/PPS reader's current state.
type GPSStats struct {
	Connected      bool     `json:"connected"`
	Satellites     int      `json:"satellites"`
	SignalQuality  int      `json:"signal_quality"`
	LastSyncSecs   *uint64  `json:"last_sync_secs"`
	NMEASentences  uint64   `json:"nmea_sentences"`
	PPSActive      bool     `json:"pps_active"`
	PPSCount       uint64   `json:"pps_count"`
	LastRxMs       uint64   `json:"last_rx_ms"`
	PPSOffset      *float64 `json:"pps_offset"`
}

// NTPStats describes server-side NTP traffic.
type NTPStats struct {
	RequestsTotal     uint64 `json:"requests_total"`
	RequestsPerSecond uint32 `json:"requests_per_second"`
	ActiveClients     uint64 `json:"active_clients"`
	LastTxMs          uint64 `json:"last_tx_ms"`
}

// ClockInfo describes the currently advertised clock parameters.
type ClockInfo struct {
	Stratum            uint8  `json:"stratum"`
	ReferenceID        string `json:"reference_id"`
	Precision          int8   `json:"precision"`
	CurrentTimestamp   uint64 `json:"current_timestamp"`
	CurrentFractionNs  uint32 `json:"current_fraction_ns"`
}

// ServerStats is a point-in-time snapshot of the whole daemon's state,
// as exposed to monitoring.
type ServerStats struct {
	GPS        GPSStats        `json:"gps"`
	NTP        NTPStats        `json:"ntp"`
	Clock      ClockInfo       `json:"clock"`
	Satellites []SatelliteInfo `json:"satellites"`
}

// Manager holds the canonical ServerStats behind a RWMutex and exposes
// narrow update closures so callers never need to juggle the lock
// themselves.
type Manager struct {
	mu    sync.RWMutex
	stats ServerStats
}

// NewManager builds a Manager with the same defaults the server starts
// advertising before its first GPS fix or NTP request.
func NewManager() *Manager {
	return &Manager{
		stats: ServerStats{
			Clock: ClockInfo{
				Stratum:     16,
				ReferenceID: "INIT",
				Precision:   -20,
			},
		},
	}
}

// Get returns a copy of the current snapshot.
func (m *Manager) Get() ServerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// UpdateGPS mutates the GPS sub-record under the write lock.
func (m *Manager) UpdateGPS(f func(*GPSStats)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f(&m.stats.GPS)
}

// UpdateNTP mutates the NTP sub-record under the write lock.
func (m *Manager) UpdateNTP(f func(*NTPStats)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f(&m.stats.NTP)
}

// UpdateClock mutates the clock sub-record under the write lock.
func (m *Manager) UpdateClock(f func(*ClockInfo)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f(&m.stats.Clock)
}

// SetSatellites replaces the tracked satellite list.
func (m *Manager) SetSatellites(sats []SatelliteInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Satellites = sats
}

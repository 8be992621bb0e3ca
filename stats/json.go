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

package stats

import (
	"encoding/json"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/stratumone/gpsntpd/protocol/ntp"
)

// HTTPExporter serves the shared Manager snapshot over plain HTTP/JSON,
// the way the teacher's JSONStats exposes flat counters on "/" — here
// generalized to the full ServerStats shape and two routes recovered
// from the original monitoring dashboard's REST API.
type HTTPExporter struct {
	Manager *Manager
}

// NewHTTPExporter builds an exporter backed by the given Manager.
func NewHTTPExporter(m *Manager) *HTTPExporter {
	return &HTTPExporter{Manager: m}
}

func (h *HTTPExporter) handleStats(w http.ResponseWriter, _ *http.Request) {
	js, err := json.Marshal(h.Manager.Get())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(js)
}

func (h *HTTPExporter) handleTime(w http.ResponseWriter, _ *http.Request) {
	snap := h.Manager.Get()
	now := ntp.NewTimestamp(uint32(snap.Clock.CurrentTimestamp), snap.Clock.CurrentFractionNs)
	resp := struct {
		Timestamp uint64 `json:"timestamp"`
		Seconds   uint32 `json:"seconds"`
		Fraction  uint32 `json:"fraction"`
	}{
		Timestamp: uint64(now),
		Seconds:   now.Seconds(),
		Fraction:  now.Fraction(),
	}
	js, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(js)
}

// Start registers routes and blocks serving HTTP on the given port.
// Like the teacher's JSONStats.Start, this is a passive reporter: it
// never needs Report() called on it.
func (h *HTTPExporter) Start(port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stats", h.handleStats)
	mux.HandleFunc("/api/time", h.handleTime)
	addr := fmt.Sprintf(":%d", port)
	log.Debugf("starting stats http server on %s", addr)
	return http.ListenAndServe(addr, mux)
}

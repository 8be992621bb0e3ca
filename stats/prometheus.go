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
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// PrometheusExporter periodically copies the Manager snapshot into
// Prometheus gauges and serves them on /metrics, following the shape of
// the teacher's sptp PrometheusExporter: a scrape-on-interval goroutine
// rather than updating gauges inline on the hot request path.
type PrometheusExporter struct {
	manager    *Manager
	listenPort int
	interval   time.Duration
	registry   *prometheus.Registry

	gpsSatellites   prometheus.Gauge
	gpsSignal       prometheus.Gauge
	gpsConnected    prometheus.Gauge
	ppsOffset       prometheus.Gauge
	ntpRequests     prometheus.Counter
	ntpRequestsRate prometheus.Gauge
	clockStratum    prometheus.Gauge
}

// NewPrometheusExporter builds an exporter that scrapes manager every
// interval and serves the result on listenPort.
func NewPrometheusExporter(manager *Manager, listenPort int, interval time.Duration) *PrometheusExporter {
	registry := prometheus.NewRegistry()
	e := &PrometheusExporter{
		manager:    manager,
		listenPort: listenPort,
		interval:   interval,
		registry:   registry,
		gpsSatellites: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gpsntpd_gps_satellites_in_view", Help: "Number of GPS satellites in the last fix.",
		}),
		gpsSignal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gpsntpd_gps_signal_quality", Help: "GPS signal quality indicator.",
		}),
		gpsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gpsntpd_gps_connected", Help: "Whether the GPS serial port is currently connected (1/0).",
		}),
		ppsOffset: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gpsntpd_clock_pps_offset_seconds", Help: "Current EWMA-filtered system/GPS PPS offset in seconds.",
		}),
		ntpRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gpsntpd_ntp_requests_total", Help: "Total NTP requests processed.",
		}),
		ntpRequestsRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gpsntpd_ntp_requests_per_second", Help: "NTP requests processed per second.",
		}),
		clockStratum: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gpsntpd_clock_stratum", Help: "Currently advertised NTP stratum.",
		}),
	}
	registry.MustRegister(e.gpsSatellites, e.gpsSignal, e.gpsConnected, e.ppsOffset, e.ntpRequests, e.ntpRequestsRate, e.clockStratum)
	return e
}

// Start launches the scrape loop and blocks serving /metrics.
func (e *PrometheusExporter) Start() error {
	go e.scrapeLoop()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))
	addr := fmt.Sprintf(":%d", e.listenPort)
	log.Debugf("starting prometheus exporter on %s", addr)
	return http.ListenAndServe(addr, mux)
}

func (e *PrometheusExporter) scrapeLoop() {
	var lastTotal uint64
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for range ticker.C {
		snap := e.manager.Get()
		e.gpsSatellites.Set(float64(snap.GPS.Satellites))
		e.gpsSignal.Set(float64(snap.GPS.SignalQuality))
		if snap.GPS.Connected {
			e.gpsConnected.Set(1)
		} else {
			e.gpsConnected.Set(0)
		}
		if snap.GPS.PPSOffset != nil {
			e.ppsOffset.Set(*snap.GPS.PPSOffset)
		}
		if snap.NTP.RequestsTotal > lastTotal {
			e.ntpRequests.Add(float64(snap.NTP.RequestsTotal - lastTotal))
		}
		lastTotal = snap.NTP.RequestsTotal
		e.ntpRequestsRate.Set(float64(snap.NTP.RequestsPerSecond))
		e.clockStratum.Set(float64(snap.Clock.Stratum))
	}
}

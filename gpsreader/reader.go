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

// Package gpsreader owns the GPS serial port: it parses NMEA sentences
// for time-of-day and satellite count, watches the CTS line for a PPS
// edge, and feeds both into a clock.GpsDisciplinedClock. Connection
// loss is expected (a GPS puck can be unplugged at any time) and is
// handled with an exponential backoff reconnect loop rather than a
// fatal error.
package gpsreader

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"github.com/stratumone/gpsntpd/clock"
	"github.com/stratumone/gpsntpd/protocol/ntp"
	"github.com/stratumone/gpsntpd/stats"
)

const (
	reconnectInitialDelay = 5 * time.Second
	reconnectMaxDelay     = 60 * time.Second
	readTimeout           = 100 * time.Millisecond
	satelliteReportPeriod = 2 * time.Second

	// ppsIntervalMin/Max bound what counts as a plausible 1 Hz PPS edge.
	ppsIntervalMin = 0.95
	ppsIntervalMax = 1.05
)

// Config configures the GPS serial reader.
type Config struct {
	SerialPort string
	BaudRate   int
	PPSEnabled bool
}

// Reader owns the serial port lifecycle: open, read, reconnect.
type Reader struct {
	cfg   Config
	clock *clock.GpsDisciplinedClock
	stats *stats.Manager

	lastGGASatellites uint8
	gsvTracked        map[int]stats.SatelliteInfo
	lastSatReport     time.Time

	lastPpsPulse    time.Time
	havePpsPulse    bool
	ctsWasHigh      bool
	ppsCount        uint64
	lastGpsTime     ntp.Timestamp
	haveLastGpsTime bool
}

// NewReader builds a Reader that disciplines clk and publishes its
// findings to mgr.
func NewReader(cfg Config, clk *clock.GpsDisciplinedClock, mgr *stats.Manager) *Reader {
	return &Reader{
		cfg:        cfg,
		clock:      clk,
		stats:      mgr,
		gsvTracked: make(map[int]stats.SatelliteInfo),
	}
}

// Run opens the serial port and reads from it until ctx is canceled,
// reconnecting with exponential backoff (capped at reconnectMaxDelay)
// whenever the port errors out or the device disappears.
func (r *Reader) Run(ctx context.Context) {
	delay := reconnectInitialDelay
	for {
		if ctx.Err() != nil {
			return
		}
		err := r.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Warnf("gpsreader: %v, reconnecting in %s", err, delay)
		}
		r.stats.UpdateGPS(func(g *stats.GPSStats) { g.Connected = false })

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}
}

func (r *Reader) runOnce(ctx context.Context) error {
	mode := &serial.Mode{
		BaudRate: r.cfg.BaudRate,
		DataBits: 8,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	}
	port, err := serial.Open(r.cfg.SerialPort, mode)
	if err != nil {
		return errors.Wrapf(err, "opening GPS serial port %s", r.cfg.SerialPort)
	}
	defer port.Close()

	if err := port.SetReadTimeout(readTimeout); err != nil {
		return errors.Wrap(err, "setting GPS serial read timeout")
	}
	_ = port.SetRTS(true)
	_ = port.SetDTR(true)

	log.Infof("gpsreader: connected to %s at %d baud", r.cfg.SerialPort, r.cfg.BaudRate)
	r.stats.UpdateGPS(func(g *stats.GPSStats) { g.Connected = true })

	buf := make([]byte, 4096)
	var pending strings.Builder

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := port.Read(buf)
		if err != nil {
			return errors.Wrap(err, "reading from GPS serial port")
		}
		if n > 0 {
			pending.Write(buf[:n])
			r.drainLines(&pending)
		}

		if r.cfg.PPSEnabled {
			r.pollPPS(port)
		}
	}
}

func (r *Reader) drainLines(pending *strings.Builder) {
	buffered := pending.String()
	for {
		idx := strings.IndexByte(buffered, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSpace(buffered[:idx])
		buffered = buffered[idx+1:]
		if line != "" {
			r.processSentence(line)
		}
	}
	pending.Reset()
	pending.WriteString(buffered)
}

func (r *Reader) processSentence(line string) {
	if len(line) < 6 || !strings.HasPrefix(line, "$") {
		return
	}
	r.stats.UpdateGPS(func(g *stats.GPSStats) {
		g.NMEASentences++
		g.LastRxMs = uint64(time.Now().UnixMilli())
	})

	switch {
	case strings.HasSuffix(line[:6], "RMC"):
		r.handleRMC(line)
	case strings.HasSuffix(line[:6], "GGA"):
		r.handleGGA(line)
	case strings.HasSuffix(line[:6], "GSV"):
		r.handleGSV(line)
	}
}

func (r *Reader) handleRMC(line string) {
	fix, ok, err := parseRMC(line)
	if err != nil {
		log.Debugf("gpsreader: bad RMC sentence: %v", err)
		return
	}
	if !ok {
		return
	}

	ts := ntp.FromTime(fix.When)
	// Use the most recently observed GGA satellite count, not a
	// placeholder: RMC itself carries no satellite count.
	r.clock.UpdateGpsTime(ts, r.lastGGASatellites)
	r.lastGpsTime = ts
	r.haveLastGpsTime = true

	r.stats.UpdateGPS(func(g *stats.GPSStats) {
		secs := uint64(fix.When.Unix())
		g.LastSyncSecs = &secs
	})
}

func (r *Reader) handleGGA(line string) {
	count, ok, err := parseGGASatellites(line)
	if err != nil {
		log.Debugf("gpsreader: bad GGA sentence: %v", err)
		return
	}
	if !ok {
		return
	}
	r.lastGGASatellites = count
	r.stats.UpdateGPS(func(g *stats.GPSStats) {
		g.Satellites = int(count)
		g.SignalQuality = int(count)
	})
}

func (r *Reader) handleGSV(line string) {
	_, sats, err := parseGSV(line)
	if err != nil {
		log.Debugf("gpsreader: bad GSV sentence: %v", err)
		return
	}
	mergeSatellites(r.gsvTracked, sats)

	if time.Since(r.lastSatReport) < satelliteReportPeriod {
		return
	}
	r.lastSatReport = time.Now()

	all := make([]stats.SatelliteInfo, 0, len(r.gsvTracked))
	for _, s := range r.gsvTracked {
		all = append(all, s)
	}
	r.stats.SetSatellites(all)
}

// pollPPS checks the CTS modem-status line for a rising edge and, if one
// lands within [0.95s, 1.05s] of the last one and a GPS fix is known,
// feeds it to the clock as a PPS offset sample.
func (r *Reader) pollPPS(port serial.Port) {
	bits, err := port.GetModemStatusBits()
	if err != nil {
		return
	}

	now := time.Now()
	cts := bits.CTS

	if !cts {
		r.ctsWasHigh = false
		return
	}
	if r.ctsWasHigh {
		// Already high; this isn't a rising edge.
		return
	}
	r.ctsWasHigh = true

	r.ppsCount++
	r.stats.UpdateGPS(func(g *stats.GPSStats) { g.PPSCount = r.ppsCount })

	if !r.havePpsPulse {
		r.havePpsPulse = true
		r.lastPpsPulse = now
		return
	}

	interval := now.Sub(r.lastPpsPulse).Seconds()
	r.lastPpsPulse = now

	if interval < ppsIntervalMin || interval > ppsIntervalMax {
		if r.ppsCount > 1 {
			log.Warnf("gpsreader: PPS interval out of range: %.3fs", interval)
		}
		r.stats.UpdateGPS(func(g *stats.GPSStats) { g.PPSActive = false })
		return
	}

	if !r.haveLastGpsTime {
		return
	}

	secondBoundary := ntp.NewTimestamp(r.lastGpsTime.Seconds()+1, 0)
	r.clock.UpdatePpsOffset(now, secondBoundary)

	r.stats.UpdateGPS(func(g *stats.GPSStats) {
		g.PPSActive = true
		if offset, ok := r.clock.PpsOffsetSeconds(); ok {
			g.PPSOffset = &offset
		}
	})
}

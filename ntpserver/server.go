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

// Package ntpserver implements the UDP listener that answers NTP client
// queries from the disciplined clock: bind a socket, capture a receive
// timestamp as early as possible, run admission control, and capture the
// transmit timestamp as late as possible before the reply goes out.
package ntpserver

import (
	"context"
	"net"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/stratumone/gpsntpd/clock"
	"github.com/stratumone/gpsntpd/protocol/ntp"
	"github.com/stratumone/gpsntpd/security"
	"github.com/stratumone/gpsntpd/stats"
)

const maxPacketSize = 128

// task is one received datagram, queued for a worker to answer.
type task struct {
	addr     net.Addr
	received ntp.Timestamp
	buf      []byte
	n        int
}

// Server answers NTP client requests on a single UDP socket, backed by
// a pool of worker goroutines the way the teacher's responder fans a
// single listener out over a bounded worker channel.
type Server struct {
	BindAddress string
	Workers     int
	Clock       clock.Source
	RateLimiter *security.RateLimiter
	IPFilter    *security.IPFilter
	Stats       *stats.Manager
	LogRequests bool

	conn  net.PacketConn
	tasks chan task
}

// NewServer builds a Server ready for ListenAndServe.
func NewServer(bindAddress string, workers int, clk clock.Source, rl *security.RateLimiter, ipf *security.IPFilter, mgr *stats.Manager) *Server {
	return &Server{
		BindAddress: bindAddress,
		Workers:     workers,
		Clock:       clk,
		RateLimiter: rl,
		IPFilter:    ipf,
		Stats:       mgr,
	}
}

// ListenAndServe binds the UDP socket, starts the worker pool, and reads
// datagrams until ctx is canceled or the socket errors out.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", s.BindAddress)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	s.conn = conn
	defer conn.Close()

	if s.Workers <= 0 {
		s.Workers = 1
	}
	s.tasks = make(chan task, s.Workers*4)

	log.Infof("ntpserver: listening on %s with %d workers", s.BindAddress, s.Workers)

	for i := 0; i < s.Workers; i++ {
		go s.startWorker(ctx)
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, maxPacketSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		// T2: capture the receive timestamp from the disciplined clock
		// itself, not the raw wall clock, so a GPS/PPS source's accuracy
		// actually reaches the timestamp clients see.
		received := s.Clock.Now()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warnf("ntpserver: read error: %v", err)
			continue
		}

		cp := make([]byte, n)
		copy(cp, buf[:n])

		select {
		case s.tasks <- task{addr: addr, received: received, buf: cp, n: n}:
		default:
			log.Warnf("ntpserver: worker queue full, dropping request from %s", addr)
		}
	}
}

func (s *Server) startWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-s.tasks:
			s.handle(t)
		}
	}
}

// handle runs admission control in the order the original's security
// module applies it (blacklist/whitelist first, since it's cheapest,
// then the rate limiter, then packet parsing) and, if the request
// survives, synthesizes and sends a reply.
func (s *Server) handle(t task) {
	s.Stats.UpdateNTP(func(n *stats.NTPStats) { n.RequestsTotal++ })

	host, _, err := net.SplitHostPort(t.addr.String())
	if err != nil {
		host = t.addr.String()
	}
	ip := net.ParseIP(host)

	if ip != nil && s.IPFilter != nil && !s.IPFilter.Allowed(ip) {
		log.Debugf("ntpserver: rejecting %s: not allowed by IP filter", host)
		return
	}
	if ip != nil && s.RateLimiter != nil && !s.RateLimiter.Allow(ip) {
		log.Debugf("ntpserver: rejecting %s: rate limited", host)
		return
	}

	request, err := ntp.Decode(t.buf[:t.n])
	if err != nil {
		log.Debugf("ntpserver: rejecting %s: %v", host, err)
		return
	}
	if err := security.ValidateRequest(request); err != nil {
		log.Debugf("ntpserver: rejecting %s: %v", host, err)
		return
	}

	if s.LogRequests {
		log.Infof("ntpserver: request from %s", host)
	}

	response := s.generateResponse(request, t.received)
	responseBytes := response.Encode()

	if _, err := s.conn.WriteTo(responseBytes, t.addr); err != nil {
		log.Infof("ntpserver: failed to respond to %s: %v", host, err)
		return
	}

	now := s.Clock.Now()
	refID := s.Clock.ReferenceID()
	s.Stats.UpdateClock(func(c *stats.ClockInfo) {
		c.Stratum = s.Clock.Stratum()
		c.ReferenceID = strings.TrimRight(string(refID[:]), "\x00")
		c.Precision = s.Clock.Precision()
		c.CurrentTimestamp = uint64(now.Seconds())
		c.CurrentFractionNs = now.Nanoseconds()
	})
	s.Stats.UpdateNTP(func(n *stats.NTPStats) {
		n.LastTxMs = uint64(time.Now().UnixMilli())
	})
}

// generateResponse builds the reply packet, using the receive timestamp
// (T2) captured from the clock source the instant the datagram arrived
// and a transmit timestamp (T3) captured from the same clock source as
// late as possible, immediately before encoding.
func (s *Server) generateResponse(request *ntp.Packet, received ntp.Timestamp) *ntp.Packet {
	response := ntp.NewServerResponse()
	response.Version = request.Version
	response.Mode = ntp.ModeServer
	response.Stratum = s.Clock.Stratum()
	response.Precision = s.Clock.Precision()
	refID := s.Clock.ReferenceID()
	response.ReferenceID = uint32(refID[0])<<24 | uint32(refID[1])<<16 | uint32(refID[2])<<8 | uint32(refID[3])
	response.Poll = request.Poll

	response.ReferenceTime = s.Clock.Now()
	response.OriginTime = request.TransmitTime
	response.ReceiveTime = received
	response.TransmitTime = s.Clock.Now()

	return response
}

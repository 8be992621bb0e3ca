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
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const cleanupInterval = 60 * time.Second
const inactiveThreshold = 60 * time.Second

type rateLimitState struct {
	requestCount int
	windowStart  time.Time
	lastRequest  time.Time
}

// RateLimiter enforces a fixed per-second request budget per source IP.
// It is intentionally NOT a token bucket: each IP's window resets in one
// jump a full second after it started, rather than leaking continuously.
type RateLimiter struct {
	maxRequestsPerSecond int

	mu          sync.Mutex
	limits      map[string]*rateLimitState
	lastCleanup time.Time
}

// NewRateLimiter builds a limiter admitting up to maxRequestsPerSecond
// requests per IP in each fixed one-second window, which opens at the
// first request seen after the previous window expired.
func NewRateLimiter(maxRequestsPerSecond int) *RateLimiter {
	return &RateLimiter{
		maxRequestsPerSecond: maxRequestsPerSecond,
		limits:               make(map[string]*rateLimitState),
		lastCleanup:          time.Now(),
	}
}

// Allow reports whether a request from ip is within the per-second
// budget. It waits for the limiter's lock and always decides from the
// per-IP counter; it has no fail-open path under lock contention.
func (r *RateLimiter) Allow(ip net.IP) bool {
	now := time.Now()
	key := ip.String()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.cleanupOldEntries(now)

	state, ok := r.limits[key]
	if !ok {
		state = &rateLimitState{requestCount: 0, windowStart: now, lastRequest: now}
		r.limits[key] = state
	}

	if now.Sub(state.windowStart) >= time.Second {
		state.requestCount = 1
		state.windowStart = now
		state.lastRequest = now
		return true
	}

	state.requestCount++
	state.lastRequest = now

	if state.requestCount > r.maxRequestsPerSecond {
		log.Debugf("rate limit exceeded for %s: %d requests/sec", ip, state.requestCount)
		return false
	}
	return true
}

// cleanupOldEntries drops IPs that haven't been seen in a while, no more
// often than once per cleanupInterval. Caller must hold r.mu.
func (r *RateLimiter) cleanupOldEntries(now time.Time) {
	if now.Sub(r.lastCleanup) < cleanupInterval {
		return
	}
	for k, state := range r.limits {
		if now.Sub(state.lastRequest) >= inactiveThreshold {
			delete(r.limits, k)
		}
	}
	r.lastCleanup = now
	log.Debugf("rate limiter cleanup: %d IPs tracked", len(r.limits))
}

// TrackedIPs returns the number of IPs currently tracked, for stats.
func (r *RateLimiter) TrackedIPs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limits)
}

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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumone/gpsntpd/protocol/ntp"
)

func TestRateLimiterAdmitsUpToLimit(t *testing.T) {
	limiter := NewRateLimiter(10)
	ip := net.ParseIP("127.0.0.1")

	for i := 0; i < 10; i++ {
		assert.True(t, limiter.Allow(ip))
	}
	assert.False(t, limiter.Allow(ip))
}

func TestRateLimiterTracksPerIP(t *testing.T) {
	limiter := NewRateLimiter(1)
	a := net.ParseIP("10.0.0.1")
	b := net.ParseIP("10.0.0.2")

	assert.True(t, limiter.Allow(a))
	assert.False(t, limiter.Allow(a))
	assert.True(t, limiter.Allow(b))
}

func TestIPFilterBlacklist(t *testing.T) {
	f := NewIPFilter(nil, []string{"192.168.1.100"})
	assert.False(t, f.Allowed(net.ParseIP("192.168.1.100")))
	assert.True(t, f.Allowed(net.ParseIP("192.168.1.101")))
}

func TestIPFilterWhitelist(t *testing.T) {
	f := NewIPFilter([]string{"192.168.1.100"}, nil)
	assert.True(t, f.Allowed(net.ParseIP("192.168.1.100")))
	assert.False(t, f.Allowed(net.ParseIP("192.168.1.101")))
}

func TestIPFilterBlacklistWinsOverWhitelist(t *testing.T) {
	f := NewIPFilter([]string{"10.0.0.1"}, []string{"10.0.0.1"})
	assert.False(t, f.Allowed(net.ParseIP("10.0.0.1")))
}

func TestValidateRequestRejectsBadVersion(t *testing.T) {
	p := &ntp.Packet{Version: 5, Mode: ntp.ModeClient, TransmitTime: 1}
	require.Error(t, ValidateRequest(p))
}

func TestValidateRequestRejectsNonClientMode(t *testing.T) {
	p := &ntp.Packet{Version: 4, Mode: ntp.ModeServer, TransmitTime: 1}
	require.Error(t, ValidateRequest(p))
}

func TestValidateRequestRejectsZeroTransmit(t *testing.T) {
	p := &ntp.Packet{Version: 4, Mode: ntp.ModeClient, TransmitTime: 0}
	require.Error(t, ValidateRequest(p))
}

func TestValidateRequestRejectsUnsyncedStratum(t *testing.T) {
	p := &ntp.Packet{Version: 4, Mode: ntp.ModeClient, TransmitTime: 1, Stratum: 16}
	require.Error(t, ValidateRequest(p))
}

func TestValidateRequestAcceptsWellFormedRequest(t *testing.T) {
	p := &ntp.Packet{Version: 4, Mode: ntp.ModeClient, TransmitTime: 1, Stratum: 0}
	assert.NoError(t, ValidateRequest(p))
}

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

	log "github.com/sirupsen/logrus"
)

// IPFilter is a static allow/deny list. The blacklist is checked first;
// an empty whitelist allows everything not blacklisted.
type IPFilter struct {
	whitelist []net.IP
	blacklist []net.IP
}

// NewIPFilter parses the configured whitelist/blacklist strings,
// silently dropping any entry that doesn't parse as an IP address.
func NewIPFilter(whitelist, blacklist []string) *IPFilter {
	return &IPFilter{
		whitelist: parseIPs(whitelist),
		blacklist: parseIPs(blacklist),
	}
}

func parseIPs(in []string) []net.IP {
	out := make([]net.IP, 0, len(in))
	for _, s := range in {
		if ip := net.ParseIP(s); ip != nil {
			out = append(out, ip)
		}
	}
	return out
}

func containsIP(list []net.IP, ip net.IP) bool {
	for _, e := range list {
		if e.Equal(ip) {
			return true
		}
	}
	return false
}

// Allowed reports whether ip may submit requests.
func (f *IPFilter) Allowed(ip net.IP) bool {
	if containsIP(f.blacklist, ip) {
		log.Debugf("IP %s blocked by blacklist", ip)
		return false
	}
	if len(f.whitelist) == 0 {
		return true
	}
	allowed := containsIP(f.whitelist, ip)
	if !allowed {
		log.Debugf("IP %s not in whitelist", ip)
	}
	return allowed
}

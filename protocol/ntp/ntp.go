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

package ntp

import "time"

// FromTime converts a time.Time into an NTP Timestamp.
func FromTime(t time.Time) Timestamp {
	sec := uint32(t.Unix() + ntpEpochOffset)
	return NewTimestamp(sec, uint32(t.Nanosecond()))
}

// ToTime converts an NTP Timestamp into a time.Time.
func (t Timestamp) ToTime() time.Time {
	secs := int64(t.Seconds()) - ntpEpochOffset
	return time.Unix(secs, int64(t.Nanoseconds()))
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

// AvgNetworkDelay uses the formula from RFC 5905 to estimate the average
// one-way network delay (half the round trip) from a client's four
// timestamps, in nanoseconds.
func AvgNetworkDelay(clientTransmitTime, serverReceiveTime, serverTransmitTime, clientReceiveTime time.Time) int64 {
	forwardPath := serverReceiveTime.Sub(clientTransmitTime).Nanoseconds()
	returnPath := clientReceiveTime.Sub(serverTransmitTime).Nanoseconds()
	return abs(forwardPath+returnPath) / 2
}

// CurrentRealTime returns the "true" time after adjusting for the
// estimated average network delay.
func CurrentRealTime(serverTransmitTime time.Time, avgNetworkDelay int64) time.Time {
	return serverTransmitTime.Add(time.Duration(avgNetworkDelay) * time.Nanosecond)
}

// CalculateOffset returns the offset between a local and a reference time.
func CalculateOffset(currentRealTime, currentLocalTime time.Time) int64 {
	return currentRealTime.UnixNano() - currentLocalTime.UnixNano()
}

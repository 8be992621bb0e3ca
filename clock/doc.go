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

/*
Package clock provides the time sources an NTP server can advertise.

SystemClock reports the host's wall clock at a fixed, caller-chosen stratum. GpsDisciplinedClock
combines the host clock with NMEA time-of-day and a PPS edge to produce a
Stratum-1-quality timestamp, falling back gracefully as GPS data ages.
*/
package clock

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

// Package ntptime converts between wall-clock seconds and the 64-bit NTP
// timestamp format used on the wire by TWAMP test and control packets.
package ntptime

import "time"

// TimeOffset is the number of seconds between the NTP epoch (1 Jan 1900 UTC)
// and the Unix epoch (1 Jan 1970 UTC).
const TimeOffset = 2208988800.0

// AllBits is the number of fractional-second ticks in a 32-bit NTP fraction
// field (2^32).
const AllBits = 4294967296.0

// Now returns the current wall-clock time as seconds since the Unix epoch,
// with sub-microsecond resolution. All TWAMP delay arithmetic in this
// codebase is done in float64 seconds; only the wire encoding is integer.
func Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// ToNTP encodes t (seconds since the Unix epoch) as a 64-bit NTP timestamp:
// 32-bit seconds since 1900-01-01 and a 32-bit binary fraction of a second.
func ToNTP(t float64) (sec uint32, frac uint32) {
	whole := floor(t)
	sec = uint32(floor(TimeOffset + t))
	frac = uint32(floor((t - whole) * AllBits))
	return sec, frac
}

// FromNTP decodes a 64-bit NTP timestamp back to seconds since the Unix
// epoch.
func FromNTP(sec, frac uint32) float64 {
	return float64(sec) - TimeOffset + float64(frac)/AllBits
}

func floor(v float64) float64 {
	i := int64(v)
	if v < 0 && float64(i) != v {
		i--
	}
	return float64(i)
}

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

package ntptime

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToFromNTPRoundTrip(t *testing.T) {
	cases := []float64{
		0,
		1000000000.5,
		Now(),
		1735689599.999999,
		946684800.123456,
	}
	for _, orig := range cases {
		sec, frac := ToNTP(orig)
		got := FromNTP(sec, frac)
		require.InDelta(t, orig, got, 1.0/AllBits*2, "round trip for %v", orig)
	}
}

func TestToNTPKnownValue(t *testing.T) {
	// 2000-01-01T00:00:00Z is 946684800 seconds after the Unix epoch.
	sec, frac := ToNTP(946684800)
	assert.Equal(t, uint32(946684800)+uint32(TimeOffset), sec)
	assert.Equal(t, uint32(0), frac)
}

func TestNowMonotonicResolution(t *testing.T) {
	a := Now()
	b := Now()
	assert.True(t, b >= a)
	assert.False(t, math.IsNaN(a))
}

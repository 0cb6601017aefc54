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
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulatorFirstSample(t *testing.T) {
	a := New()
	a.Add(10, 4, 6, 0, 0)
	snap := a.Snapshot(1)

	assert.Equal(t, 1, snap.Count)
	assert.Equal(t, 10.0, snap.MinRT)
	assert.Equal(t, 10.0, snap.MaxRT)
	assert.Equal(t, 10.0, snap.AvgRT)
	assert.Equal(t, 0.0, snap.JitterRT)
	assert.Equal(t, int64(0), snap.LossIB)
	assert.Equal(t, int64(0), snap.LossOB)
}

func TestAccumulatorJitterConvergesToConstantDelta(t *testing.T) {
	a := New()
	delta := 5.0
	last := 0.0
	for i := uint32(0); i < 2000; i++ {
		last += delta
		a.Add(last, last, last, i, i)
	}
	snap := a.Snapshot(2000)
	require.InDelta(t, delta, snap.JitterRT, 0.01)
	require.InDelta(t, delta, snap.JitterOB, 0.01)
	require.InDelta(t, delta, snap.JitterIB, 0.01)
}

func TestAccumulatorLossAccounting(t *testing.T) {
	a := New()
	a.Add(1, 1, 1, 0, 0)
	a.Add(1, 1, 1, 2, 2) // rseq jumped from 0 to 2: one reflector-side hole
	snap := a.Snapshot(3)

	assert.Equal(t, 2, snap.Count)
	assert.Equal(t, int64(0), snap.LossOB) // sseq == rseq here
	assert.Equal(t, int64(1), snap.LossIB) // rseq(2) - prior count(1) == 1
	assert.Equal(t, int64(1), snap.LossRT) // totalSent(3) - count(2)
}

func TestDumpZeroSamplesBanner(t *testing.T) {
	var buf bytes.Buffer
	a := New()
	a.Dump(&buf, 5)
	assert.Contains(t, buf.String(), "100% loss")
}

func TestDumpNonEmpty(t *testing.T) {
	var buf bytes.Buffer
	a := New()
	a.Add(1.5, 0.5, 1.0, 0, 0)
	a.Dump(&buf, 1)
	out := buf.String()
	assert.Contains(t, out, "Outbound")
	assert.Contains(t, out, "Inbound")
	assert.Contains(t, out, "Roundtrip")
	assert.Contains(t, out, "RFC1889")
}

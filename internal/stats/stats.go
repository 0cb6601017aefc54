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

// Package stats implements the streaming min/max/avg/jitter/loss
// accumulator fed by the Session Sender on every correlated reply, and
// renders the RFC-table dump at the end of a run.
package stats

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// direction holds the running aggregates for one of the three measured
// delays (outbound, inbound, round-trip).
type direction struct {
	min, max, sum, last, jitter float64
}

func (d *direction) seed(sample float64) {
	d.min = sample
	d.max = sample
	d.sum = sample
	d.last = sample
	d.jitter = 0
}

// update folds sample into the running aggregates. count is the number of
// samples accumulated *before* this one (i.e. Accumulator.count prior to
// increment), used to select the first-call/second-call/steady-state
// jitter formula per RFC 1889.
func (d *direction) update(sample float64, count int) {
	if sample < d.min {
		d.min = sample
	}
	if sample > d.max {
		d.max = sample
	}
	d.sum += sample

	switch count {
	case 1:
		d.jitter = abs(d.last - sample)
	default:
		d.jitter += (abs(d.last-sample) - d.jitter) / 16
	}
	d.last = sample
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Accumulator is the streaming per-session statistics accumulator described
// in spec.md §4.6. It is safe for concurrent use, matching the mutex-guarded
// counters idiom the teacher uses for its own stats types.
type Accumulator struct {
	mu sync.Mutex

	count int

	outbound  direction
	inbound   direction
	roundtrip direction

	lossOB int64
	lossIB int64
}

// New returns a fresh, empty Accumulator.
func New() *Accumulator {
	return &Accumulator{}
}

// Add folds one correlated (round-trip, outbound, inbound) sample into the
// accumulator, given the reflector sequence rseq and the echoed sender
// sequence sseq of the reply that produced it.
func (a *Accumulator) Add(roundTrip, outbound, inbound float64, rseq, sseq uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.count == 0 {
		a.outbound.seed(outbound)
		a.inbound.seed(inbound)
		a.roundtrip.seed(roundTrip)
		a.lossIB = int64(rseq)
		a.lossOB = int64(sseq) - int64(rseq)
	} else {
		a.outbound.update(outbound, a.count)
		a.inbound.update(inbound, a.count)
		a.roundtrip.update(roundTrip, a.count)
		a.lossIB = int64(rseq) - int64(a.count)
		a.lossOB = int64(sseq) - int64(rseq)
	}
	a.count++
}

// Count returns the number of samples accumulated so far.
func (a *Accumulator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Snapshot is a point-in-time copy of the accumulator suitable for
// rendering or exporting without holding the Accumulator's lock.
type Snapshot struct {
	Count int

	MinOB, MaxOB, AvgOB, JitterOB float64
	MinIB, MaxIB, AvgIB, JitterIB float64
	MinRT, MaxRT, AvgRT, JitterRT float64

	// LastRT is the most recently accumulated round-trip sample, for
	// exporters that want a current-value gauge rather than a running min/max.
	LastRT float64

	LossOB, LossIB, LossRT int64
	LossPctOB, LossPctIB, LossPctRT float64
}

// Snapshot computes a Snapshot given the total number of probes the sender
// actually transmitted (needed for the round-trip loss percentage, which
// isn't knowable until the run ends).
func (a *Accumulator) Snapshot(totalSent int) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Snapshot{Count: a.count, LossOB: a.lossOB, LossIB: a.lossIB}
	if a.count == 0 {
		return s
	}

	s.MinOB, s.MaxOB, s.JitterOB = a.outbound.min, a.outbound.max, a.outbound.jitter
	s.MinIB, s.MaxIB, s.JitterIB = a.inbound.min, a.inbound.max, a.inbound.jitter
	s.MinRT, s.MaxRT, s.JitterRT = a.roundtrip.min, a.roundtrip.max, a.roundtrip.jitter
	s.LastRT = a.roundtrip.last
	s.AvgOB = a.outbound.sum / float64(a.count)
	s.AvgIB = a.inbound.sum / float64(a.count)
	s.AvgRT = a.roundtrip.sum / float64(a.count)

	s.LossRT = int64(totalSent) - int64(a.count)
	if totalSent > 0 {
		s.LossPctOB = 100 * float64(s.LossOB) / float64(totalSent)
		s.LossPctIB = 100 * float64(s.LossIB) / float64(totalSent)
		s.LossPctRT = 100 * float64(s.LossRT) / float64(totalSent)
	}
	return s
}

// Dump renders the final statistics table to w, following the RFC1889
// jitter-algorithm banner of the original TWAMP client's output. A 100%
// loss run (count == 0) prints a banner instead of an empty table.
func (a *Accumulator) Dump(w io.Writer, totalSent int) {
	snap := a.Snapshot(totalSent)

	if snap.Count == 0 {
		fmt.Fprintln(w, color.RedString("%s", "NO STATS AVAILABLE (100% loss)"))
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Direction", "Min", "Max", "Avg", "Jitter", "Loss"})
	table.Append([]string{
		"Outbound",
		formatTime(snap.MinOB), formatTime(snap.MaxOB), formatTime(snap.AvgOB), formatTime(snap.JitterOB),
		fmt.Sprintf("%5.1f%%", snap.LossPctOB),
	})
	table.Append([]string{
		"Inbound",
		formatTime(snap.MinIB), formatTime(snap.MaxIB), formatTime(snap.AvgIB), formatTime(snap.JitterIB),
		fmt.Sprintf("%5.1f%%", snap.LossPctIB),
	})
	table.Append([]string{
		"Roundtrip",
		formatTime(snap.MinRT), formatTime(snap.MaxRT), formatTime(snap.AvgRT), formatTime(snap.JitterRT),
		fmt.Sprintf("%5.1f%%", snap.LossPctRT),
	})
	table.Render()
	fmt.Fprintln(w, "Jitter Algorithm [RFC1889]")
}

// formatTime renders a millisecond delay the way the original TWAMP client
// does: minutes/seconds/milliseconds/microseconds, whichever is most
// legible for the magnitude.
func formatTime(ms float64) string {
	a := abs(ms)
	switch {
	case a > 60000:
		return fmt.Sprintf("%7.1fmin", ms/60000)
	case a > 10000:
		return fmt.Sprintf("%7.1fsec", ms/1000)
	case a > 1000:
		return fmt.Sprintf("%7.2fsec", ms/1000)
	case a > 1:
		return fmt.Sprintf("%8.2fms", ms)
	default:
		return fmt.Sprintf("%8dus", int64(ms*1000))
	}
}

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

// Package sender implements the TWAMP-Light Session Sender: a scheduled
// probe-emission loop that correlates reflector replies by their echoed
// header and feeds round-trip/outbound/inbound delay samples into a
// statistics accumulator (RFC 5357 §4.2/§4.3 unauthenticated mode).
package sender

import (
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/twampy/twamp-go/internal/endpoint"
	"github.com/twampy/twamp-go/internal/netaddr"
	"github.com/twampy/twamp-go/internal/ntptime"
	"github.com/twampy/twamp-go/internal/stats"
	"github.com/twampy/twamp-go/internal/twampwire"
)

// replyWait is the extra time (beyond count*interval) the sender waits for
// the last probe's reply before giving up, per spec.md §5.
const replyWait = 5 * time.Second

// Metrics is the subset of stats.PrometheusExporter the sender drives.
type Metrics interface {
	IncSent()
	IncReceived()
	IncDropped()
	Observe(stats.Snapshot)
}

// Config configures a Sender.
type Config struct {
	LocalHost  string
	LocalPort  int
	RemoteHost string
	RemotePort int
	Family     netaddr.Family
	Options    endpoint.Options

	Count       int
	IntervalMs  int
	PadExplicit int // -1 means "use the IMIX default for the family"

	Metrics Metrics
}

// Sender owns one UDP socket, its send schedule, and the statistics
// accumulator fed by correlated replies.
type Sender struct {
	ep     *endpoint.Endpoint
	remote *net.UDPAddr
	cfg    Config
	padmix []int
	stats  *stats.Accumulator
}

// New resolves the remote endpoint, binds the local UDP socket, and returns
// a Sender ready to Run.
func New(cfg Config) (*Sender, error) {
	network := "udp"
	switch cfg.Family {
	case netaddr.IPv4:
		network = "udp4"
	case netaddr.IPv6:
		network = "udp6"
	}
	remote, err := net.ResolveUDPAddr(network, fmt.Sprintf("%s:%d", cfg.RemoteHost, cfg.RemotePort))
	if err != nil {
		return nil, fmt.Errorf("sender: resolve remote %s:%d: %w", cfg.RemoteHost, cfg.RemotePort, err)
	}

	ep, err := endpoint.Listen(cfg.LocalHost, cfg.LocalPort, cfg.Family, cfg.Options)
	if err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}

	isV6 := cfg.Family == netaddr.IPv6 || remote.IP.To4() == nil
	return &Sender{
		ep:     ep,
		remote: remote,
		cfg:    cfg,
		padmix: twampwire.Padmix(cfg.PadExplicit, isV6),
		stats:  stats.New(),
	}, nil
}

// Stats returns the accumulator the sender feeds as replies arrive.
func (s *Sender) Stats() *stats.Accumulator { return s.stats }

// LocalAddr returns the bound local address.
func (s *Sender) LocalAddr() *net.UDPAddr { return s.ep.LocalAddr() }

// Close stops the sender's I/O loop.
func (s *Sender) Close() error { return s.ep.Close() }

// Run drives the probe-emission schedule to completion: it emits Count
// probes spaced by IntervalMs milliseconds, feeds every correlated reply
// into the statistics accumulator, and returns once either all replies for
// the last probe have arrived or the overall deadline (count*interval+5s)
// elapses.
func (s *Sender) Run() error {
	count := s.cfg.Count
	interval := float64(s.cfg.IntervalMs) / 1000.0
	start := ntptime.Now()
	schedule := start
	endTime := start + float64(count)*interval + replyWait.Seconds()

	idx := uint32(0)
	buf := make([]byte, endpoint.RecvBufSize)

	for {
		done, err := s.drainReplies(buf, count)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		now := ntptime.Now()
		if now >= schedule && idx < uint32(count) {
			s.emit(idx, now)
			idx++
			schedule += interval
			now = ntptime.Now()
		}

		if now > endTime {
			log.Info("sender: receive timeout for last packet, giving up")
			return nil
		}

		waitUntil := endTime
		if idx < uint32(count) && schedule < waitUntil {
			waitUntil = schedule
		}
		if waitUntil <= now {
			continue
		}
		if err := s.ep.SetReadDeadline(asTime(waitUntil)); err != nil {
			return fmt.Errorf("sender: set read deadline: %w", err)
		}
		n, peer, err := s.ep.RecvFrom(buf)
		if err != nil {
			if endpoint.IsTimeout(err) {
				continue
			}
			if endpoint.IsClosedError(err) {
				return nil
			}
			log.Errorf("sender: read error: %v", err)
			continue
		}
		if s.handleReply(buf[:n], peer, count) {
			return nil
		}
	}
}

// drainReplies reads every reply already queued on the socket, folding each
// into the statistics accumulator; when none is queued it waits at most a
// millisecond. It returns done=true once a reply echoing the last probe
// index has been seen.
func (s *Sender) drainReplies(buf []byte, count int) (done bool, err error) {
	for {
		if err := s.ep.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
			return false, fmt.Errorf("sender: set read deadline: %w", err)
		}
		n, peer, rerr := s.ep.RecvFrom(buf)
		if rerr != nil {
			if endpoint.IsTimeout(rerr) {
				return false, nil
			}
			if endpoint.IsClosedError(rerr) {
				return true, nil
			}
			log.Errorf("sender: read error: %v", rerr)
			return false, nil
		}
		if s.handleReply(buf[:n], peer, count) {
			return true, nil
		}
	}
}

// handleReply parses and correlates one reflector reply. It returns true if
// this reply completes the run (echoes the last probe index).
func (s *Sender) handleReply(data []byte, peer *net.UDPAddr, count int) bool {
	t4 := ntptime.Now()
	if len(data) < twampwire.MinReplySize {
		log.Errorf("sender: short packet received from %s: %d bytes", peer, len(data))
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.IncDropped()
		}
		return false
	}
	reply, err := twampwire.ParseReply(data)
	if err != nil {
		log.Errorf("sender: %v", err)
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.IncDropped()
		}
		return false
	}

	outbound := clampNonNegative(1000 * (reply.T2 - reply.T1))
	inbound := clampNonNegative(1000 * (t4 - reply.T3))
	roundtrip := clampNonNegative(1000 * (t4 - reply.T1 + reply.T2 - reply.T3))

	log.Infof("sender: reply from %s [rseq=%d sseq=%d rtt=%.2fms outbound=%.2fms inbound=%.2fms]",
		peer, reply.Rseq, reply.Sseq, roundtrip, outbound, inbound)

	s.stats.Add(roundtrip, outbound, inbound, reply.Rseq, reply.Sseq)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.IncReceived()
		s.cfg.Metrics.Observe(s.stats.Snapshot(count))
	}

	return int(reply.Sseq)+1 == count
}

func (s *Sender) emit(idx uint32, t1 float64) {
	padLen := twampwire.PickPadding(s.padmix)
	probe := twampwire.BuildRequest(idx, t1, padLen)
	if err := s.ep.SendTo(probe, s.remote); err != nil {
		log.Errorf("sender: send to %s failed: %v", s.remote, err)
		return
	}
	log.Infof("sender: sent to %s [sseq=%d]", s.remote, idx)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.IncSent()
	}
}

func clampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func asTime(secondsSinceEpoch float64) time.Time {
	return time.Unix(0, int64(secondsSinceEpoch*float64(time.Second)))
}

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

// Package reflector implements the TWAMP-Light Session Reflector: a
// single-socket UDP loop that echoes timestamped replies to a Session
// Sender, maintaining one reflection sequence per peer tuple (RFC 5357
// §4.2/§4.3 unauthenticated mode).
package reflector

import (
	"fmt"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/twampy/twamp-go/internal/endpoint"
	"github.com/twampy/twamp-go/internal/netaddr"
	"github.com/twampy/twamp-go/internal/ntptime"
	"github.com/twampy/twamp-go/internal/twampwire"
)

// sessionTimeout is the idle window after which a peer's reflection
// sequence resets to 0 (spec.md §3).
const sessionTimeout = 30 * time.Second

// reapFactor bounds how long a stale peer entry is retained before the
// background sweep removes it, as a multiple of sessionTimeout.
const reapFactor = 10

// Metrics is the subset of stats.PrometheusExporter the reflector drives.
// Kept as an interface so tests don't need a live registry.
type Metrics interface {
	IncReceived()
	IncDropped()
}

// Config configures a Reflector.
type Config struct {
	Host        string
	Port        int
	Family      netaddr.Family
	Options     endpoint.Options
	PadExplicit int // -1 means "use the IMIX default for the family"
	// UsePadmix switches padding selection from the default symmetric-size
	// cache (spec.md §4.4 step 4, first-packet-wins) to drawing a fresh size
	// from padmix on every reply, matching the original TWAMP reflector's
	// unconditional random draw. Off by default.
	UsePadmix bool
	Metrics   Metrics
}

type peerState struct {
	nextSeq  uint32
	deadline time.Time
	lastSeen time.Time
	padLen   int
	padSet   bool
}

// Reflector owns one UDP socket and its per-peer reflection state.
type Reflector struct {
	ep     *endpoint.Endpoint
	cfg    Config
	padmix []int

	mu    sync.Mutex
	peers map[string]*peerState
}

// New binds the reflector's UDP endpoint and returns a Reflector ready to
// Run.
func New(cfg Config) (*Reflector, error) {
	ep, err := endpoint.Listen(cfg.Host, cfg.Port, cfg.Family, cfg.Options)
	if err != nil {
		return nil, fmt.Errorf("reflector: %w", err)
	}
	isV6 := cfg.Family == netaddr.IPv6
	return &Reflector{
		ep:     ep,
		cfg:    cfg,
		padmix: twampwire.Padmix(cfg.PadExplicit, isV6),
		peers:  make(map[string]*peerState),
	}, nil
}

// LocalAddr returns the bound local address.
func (r *Reflector) LocalAddr() *net.UDPAddr {
	return r.ep.LocalAddr()
}

// Close stops the reflector's I/O loop.
func (r *Reflector) Close() error {
	return r.ep.Close()
}

// Run services incoming probes until the endpoint is closed. It also runs
// a background sweep to bound the peer table's memory under scan-like
// traffic, per spec.md §5.
func (r *Reflector) Run() error {
	stopSweep := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.sweepLoop(stopSweep)
	}()
	defer func() {
		close(stopSweep)
		wg.Wait()
	}()

	buf := make([]byte, endpoint.RecvBufSize)
	for {
		n, peer, err := r.ep.RecvFrom(buf)
		if err != nil {
			if endpoint.IsClosedError(err) {
				log.Info("reflector: listener closed, exiting")
				return nil
			}
			log.Errorf("reflector: read error: %v", err)
			continue
		}
		t2 := ntptime.Now()
		r.handlePacket(buf[:n], peer, t2)
	}
}

func (r *Reflector) handlePacket(data []byte, peer *net.UDPAddr, t2 float64) {
	req, err := twampwire.ParseRequest(data)
	if err != nil {
		log.Debugf("reflector: dropping malformed request from %s: %v", peer, err)
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.IncDropped()
		}
		return
	}
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.IncReceived()
	}

	key := peer.String()
	now := time.Unix(0, int64(t2*float64(time.Second)))

	r.mu.Lock()
	st, ok := r.peers[key]
	reset := false
	switch {
	case !ok:
		st = &peerState{}
		r.peers[key] = st
		reset = true
		log.Infof("reflector: new peer %s, rseq:=0", key)
	case st.deadline.Before(now):
		reset = true
		log.Infof("reflector: session timeout for %s, rseq:=0", key)
	case req.Sseq == 0:
		reset = true
		log.Infof("reflector: peer %s sent sseq=0, rseq:=0", key)
	}

	var rseq uint32
	if reset {
		rseq = 0
	} else {
		rseq = st.nextSeq
	}

	var padLen int
	if r.cfg.UsePadmix {
		padLen = twampwire.PickPadding(r.padmix)
	} else {
		if reset || !st.padSet {
			st.padLen = symmetricPadLen(len(data))
			st.padSet = true
		}
		padLen = st.padLen
	}

	st.nextSeq = rseq + 1
	st.deadline = now.Add(sessionTimeout)
	st.lastSeen = now
	r.mu.Unlock()

	reply := twampwire.BuildReply(rseq, t2, req.Header, padLen)
	if err := r.ep.SendTo(reply, peer); err != nil {
		log.Errorf("reflector: send to %s failed: %v", peer, err)
	}
}

// symmetricPadLen implements the "first-packet-wins" symmetric-size cache:
// a flow's replies are padded to match the size of its first request, minus
// the reply header overhead, floored at 0.
func symmetricPadLen(requestLen int) int {
	n := requestLen - (twampwire.ReplyHeaderSize + twampwire.RequestHeaderSize)
	if n < 0 {
		return 0
	}
	return n
}

func (r *Reflector) sweepLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(sessionTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Reflector) sweep() {
	cutoff := time.Now().Add(-reapFactor * sessionTimeout)
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, st := range r.peers {
		if st.lastSeen.Before(cutoff) {
			delete(r.peers, k)
		}
	}
}

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

package reflector

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/twampy/twamp-go/internal/endpoint"
	"github.com/twampy/twamp-go/internal/netaddr"
	"github.com/twampy/twamp-go/internal/ntptime"
	"github.com/twampy/twamp-go/internal/twampwire"
)

func newTestReflector(t *testing.T) (*Reflector, func()) {
	t.Helper()
	r, err := New(Config{
		Host:        "127.0.0.1",
		Port:        0,
		Family:      netaddr.IPv4,
		PadExplicit: 0,
	})
	require.NoError(t, err)
	go func() { _ = r.Run() }()
	return r, func() { _ = r.Close() }
}

func sendAndRecv(t *testing.T, conn *net.UDPConn, to *net.UDPAddr, sseq uint32) twampwire.Reply {
	t.Helper()
	probe := twampwire.BuildRequest(sseq, ntptime.Now(), 0)
	_, err := conn.Write(probe)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, endpoint.RecvBufSize)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	reply, err := twampwire.ParseReply(buf[:n])
	require.NoError(t, err)
	return reply
}

func TestReflectorMonotoneSequencePerPeer(t *testing.T) {
	r, cleanup := newTestReflector(t)
	defer cleanup()

	conn, err := net.DialUDP("udp", nil, r.LocalAddr())
	require.NoError(t, err)
	defer conn.Close()

	rep0 := sendAndRecv(t, conn, r.LocalAddr(), 0)
	rep1 := sendAndRecv(t, conn, r.LocalAddr(), 1)
	rep2 := sendAndRecv(t, conn, r.LocalAddr(), 2)

	require.Equal(t, uint32(0), rep0.Rseq)
	require.Equal(t, uint32(1), rep1.Rseq)
	require.Equal(t, uint32(2), rep2.Rseq)
}

func TestReflectorResetsOnSseqZero(t *testing.T) {
	r, cleanup := newTestReflector(t)
	defer cleanup()

	conn, err := net.DialUDP("udp", nil, r.LocalAddr())
	require.NoError(t, err)
	defer conn.Close()

	_ = sendAndRecv(t, conn, r.LocalAddr(), 0)
	_ = sendAndRecv(t, conn, r.LocalAddr(), 1)
	rep := sendAndRecv(t, conn, r.LocalAddr(), 0)
	require.Equal(t, uint32(0), rep.Rseq)
}

func TestReflectorIndependentPeerSequences(t *testing.T) {
	r, cleanup := newTestReflector(t)
	defer cleanup()

	connA, err := net.DialUDP("udp", nil, r.LocalAddr())
	require.NoError(t, err)
	defer connA.Close()
	connB, err := net.DialUDP("udp", nil, r.LocalAddr())
	require.NoError(t, err)
	defer connB.Close()

	repA := sendAndRecv(t, connA, r.LocalAddr(), 0)
	repB := sendAndRecv(t, connB, r.LocalAddr(), 0)

	require.Equal(t, uint32(0), repA.Rseq)
	require.Equal(t, uint32(0), repB.Rseq)
}

func TestReflectorEchoesSenderHeader(t *testing.T) {
	r, cleanup := newTestReflector(t)
	defer cleanup()

	conn, err := net.DialUDP("udp", nil, r.LocalAddr())
	require.NoError(t, err)
	defer conn.Close()

	t1 := ntptime.Now()
	probe := twampwire.BuildRequest(0, t1, 0)
	_, err = conn.Write(probe)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, endpoint.RecvBufSize)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	reply, err := twampwire.ParseReply(buf[:n])
	require.NoError(t, err)

	require.InDelta(t, t1, reply.T1, 1e-6)
	require.Equal(t, uint32(0), reply.Sseq)
}

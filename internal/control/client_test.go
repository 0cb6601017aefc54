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

package control

import (
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

// Real RFC 5357 §3 octet counts for server-originated replies, used here
// instead of the Min*Size validation constants so the fake server behaves
// like an actual TWAMP server: sending a full frame, not just the prefix
// Client validates. A fake server that only ever wrote Min*Size bytes
// would pass even a Client that forgot to drain the rest of a real reply.
const (
	rfcGreetingSize      = 64 // Unused(12) + Modes(4) + Challenge(16) + Salt(16) + Count(4) + MBZ(12)
	rfcServerStartSize   = 48 // MBZ(15) + Accept(1) + Server-IV(16) + StartTime(8) + MBZ(8)
	rfcAcceptSessionSize = 32 // Accept(1) + MBZ(1) + Port(2) + SID(16) + MBZ(12)
	rfcStartAckSize      = 16 // shorter than the command it answers; exercises an undersized reply
)

// fakeServer is a minimal stand-in for a TWAMP server's control channel,
// scripted per test to exercise the Client's state machine.
type fakeServer struct {
	ln net.Listener
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return &fakeServer{ln: ln}
}

func (f *fakeServer) addr() (string, int) {
	a := f.ln.Addr().(*net.TCPAddr)
	return a.IP.String(), a.Port
}

func (f *fakeServer) close() { f.ln.Close() }

// acceptFullHandshake serves one connection through greeting, setup,
// session request, and start, always accepting.
func (f *fakeServer) acceptFullHandshake(t *testing.T) {
	t.Helper()
	go func() {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		greeting := make([]byte, rfcGreetingSize)
		greeting[15] = 1 // modes bit 0 set (unauthenticated)
		if _, err := conn.Write(greeting); err != nil {
			return
		}

		setup := make([]byte, SetupResponseSize)
		if _, err := io.ReadFull(conn, setup); err != nil {
			return
		}

		start := make([]byte, rfcServerStartSize)
		if _, err := conn.Write(start); err != nil {
			return
		}

		req := make([]byte, RequestSessionSize)
		if _, err := io.ReadFull(conn, req); err != nil {
			return
		}
		accept := make([]byte, rfcAcceptSessionSize)
		if _, err := conn.Write(accept); err != nil {
			return
		}

		startSessions := make([]byte, StartSessionsSize)
		if _, err := io.ReadFull(conn, startSessions); err != nil {
			return
		}
		startAck := make([]byte, rfcStartAckSize)
		if _, err := conn.Write(startAck); err != nil {
			return
		}

		stop := make([]byte, StopSessionsSize)
		_, _ = io.ReadFull(conn, stop)
	}()
}

func TestClientFullHandshakeSucceeds(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.close()
	srv.acceptFullHandshake(t)

	host, port := srv.addr()
	c, err := Dial(host, port, Options{})
	require.NoError(t, err)
	defer c.Close()
	require.Equal(t, StateGreeted, c.State())

	require.NoError(t, c.SetupResponse())
	require.Equal(t, StateReady, c.State())

	require.NoError(t, c.RequestSession(SessionRequest{
		IPVN:         4,
		SenderAddr:   net.ParseIP("127.0.0.1"),
		SenderPort:   20000,
		ReceiverAddr: net.ParseIP("127.0.0.1"),
		ReceiverPort: 20001,
	}))
	require.Equal(t, 1, c.NbrSessions())

	require.NoError(t, c.StartSessions())
	require.Equal(t, StateActive, c.State())

	require.NoError(t, c.StopSessions())
	require.Equal(t, 0, c.NbrSessions())
}

func TestClientRejectsGreetingWithoutUnauthMode(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.close()

	go func() {
		conn, err := srv.ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		greeting := make([]byte, rfcGreetingSize) // modes = 0
		_, _ = conn.Write(greeting)
	}()

	host, port := srv.addr()
	_, err := Dial(host, port, Options{})
	require.ErrorIs(t, err, ErrUnauthenticatedNotOffered)
}

func TestClientRejectsNonZeroServerStart(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.close()

	go func() {
		conn, err := srv.ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		greeting := make([]byte, rfcGreetingSize)
		greeting[15] = 1
		if _, err := conn.Write(greeting); err != nil {
			return
		}
		setup := make([]byte, SetupResponseSize)
		if _, err := io.ReadFull(conn, setup); err != nil {
			return
		}
		start := make([]byte, rfcServerStartSize)
		start[15] = 3 // nonzero accept code
		_, _ = conn.Write(start)
	}()

	host, port := srv.addr()
	c, err := Dial(host, port, Options{})
	require.NoError(t, err)
	defer c.Close()

	err = c.SetupResponse()
	require.Error(t, err)
}

func TestClientRequestSessionRejected(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.close()

	go func() {
		conn, err := srv.ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		greeting := make([]byte, rfcGreetingSize)
		greeting[15] = 1
		if _, err := conn.Write(greeting); err != nil {
			return
		}
		setup := make([]byte, SetupResponseSize)
		if _, err := io.ReadFull(conn, setup); err != nil {
			return
		}
		start := make([]byte, rfcServerStartSize)
		if _, err := conn.Write(start); err != nil {
			return
		}
		req := make([]byte, RequestSessionSize)
		if _, err := io.ReadFull(conn, req); err != nil {
			return
		}
		accept := make([]byte, rfcAcceptSessionSize)
		accept[0] = 1 // rejected
		_, _ = conn.Write(accept)
	}()

	host, port := srv.addr()
	c, err := Dial(host, port, Options{})
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.SetupResponse())

	err = c.RequestSession(SessionRequest{
		IPVN:         4,
		SenderAddr:   net.ParseIP("127.0.0.1"),
		ReceiverAddr: net.ParseIP("127.0.0.1"),
	})
	require.Error(t, err)
	require.Equal(t, 0, c.NbrSessions())
}

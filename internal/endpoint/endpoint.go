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

// Package endpoint implements the non-blocking UDP test socket shared by the
// Session Sender and Session Reflector: a bound UDP connection with TOS/TTL
// and (best-effort) don't-fragment options applied at creation time.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/twampy/twamp-go/internal/netaddr"
)

// RecvBufSize is the receive buffer size, large enough to hold a jumbo-frame
// padded TWAMP packet.
const RecvBufSize = 9216

// Options configures socket-level QoS markings and fragmentation behavior
// for a test endpoint.
type Options struct {
	TOS int  // IP_TOS / IPV6_TCLASS value, 0-255
	TTL int  // IP_TTL / IPV6_UNICAST_HOPS value, 1-128
	DF  bool // request the don't-fragment bit

	// DFRequired makes a failure to apply DF a fatal setup error instead of a
	// warning, per spec.md's "user passed --do-not-fragment explicitly" rule.
	DFRequired bool
}

// Endpoint is a bound UDP socket owned exclusively by one long-lived I/O
// loop (Session Sender or Session Reflector).
type Endpoint struct {
	conn    *net.UDPConn
	running bool
}

// Listen creates and binds a UDP socket for host:port, applying opts. An
// empty host with family netaddr.Unspecified binds to the wildcard address
// on whichever family the OS prefers.
func Listen(host string, port int, family netaddr.Family, opts Options) (*Endpoint, error) {
	network := "udp"
	switch family {
	case netaddr.IPv4:
		network = "udp4"
	case netaddr.IPv6:
		network = "udp6"
	}

	var ip net.IP
	if host != "" {
		ip = net.ParseIP(host)
		if ip == nil {
			return nil, fmt.Errorf("endpoint: invalid IP address %q", host)
		}
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}

	conn, err := lc.ListenPacket(context.Background(), network, fmt.Sprintf("%s:%d", hostOrWildcard(ip), port))
	if err != nil {
		return nil, fmt.Errorf("endpoint: listen on %s:%d failed: %w", host, port, err)
	}
	udpConn, ok := conn.(*net.UDPConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("endpoint: unexpected connection type %T", conn)
	}

	e := &Endpoint{conn: udpConn, running: true}

	sc, err := udpConn.SyscallConn()
	if err != nil {
		udpConn.Close()
		return nil, fmt.Errorf("endpoint: syscall conn: %w", err)
	}

	isV6 := family == netaddr.IPv6 || (ip != nil && ip.To4() == nil)
	var optErr error
	err = sc.Control(func(fd uintptr) {
		optErr = applyOptions(int(fd), isV6, opts)
	})
	if err != nil {
		udpConn.Close()
		return nil, fmt.Errorf("endpoint: syscall control: %w", err)
	}
	if optErr != nil {
		udpConn.Close()
		return nil, fmt.Errorf("endpoint: apply socket options: %w", optErr)
	}

	log.Debugf("endpoint: listening on %s", udpConn.LocalAddr())
	return e, nil
}

func hostOrWildcard(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

// SendTo writes data to peer. A send error is logged by the caller and does
// not close the endpoint; the owning loop is expected to continue.
func (e *Endpoint) SendTo(data []byte, peer *net.UDPAddr) error {
	_, err := e.conn.WriteToUDP(data, peer)
	return err
}

// RecvFrom blocks until a datagram arrives or the endpoint is closed.
func (e *Endpoint) RecvFrom(buf []byte) (int, *net.UDPAddr, error) {
	n, peer, err := e.conn.ReadFromUDP(buf)
	return n, peer, err
}

// LocalAddr returns the bound local address.
func (e *Endpoint) LocalAddr() *net.UDPAddr {
	return e.conn.LocalAddr().(*net.UDPAddr)
}

// SetReadDeadline bounds the next RecvFrom call, used by the Session Sender
// to implement its short drain and bounded scheduler wait without a
// separate select/poll syscall.
func (e *Endpoint) SetReadDeadline(t time.Time) error {
	return e.conn.SetReadDeadline(t)
}

// IsTimeout reports whether err is a read deadline expiring, as opposed to
// a real I/O fault or a closed socket.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Running reports whether Close has not yet been called.
func (e *Endpoint) Running() bool {
	return e.running
}

// Close flips the running flag and closes the socket, unblocking any
// goroutine parked in RecvFrom with a "closed network connection" error.
func (e *Endpoint) Close() error {
	e.running = false
	return e.conn.Close()
}

// IsClosedError reports whether err is the error RecvFrom/SendTo return
// because Close was called concurrently, as opposed to a genuine I/O fault.
func IsClosedError(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, unix.EBADF)
}

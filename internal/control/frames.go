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

// Package control implements the TWAMP TCP control-channel handshake (RFC
// 5357 §3): the fixed-frame Server Greeting / Setup Response / Server Start
// / Request-TW-Session / Accept-Session / Start-Sessions / Stop-Sessions
// exchange that negotiates a UDP test session with a TWAMP server.
package control

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/twampy/twamp-go/internal/ntptime"
)

// Outgoing frame sizes, all fixed per RFC 5357 §3 (by way of RFC 4656 §3,
// which defines the unextended control messages TWAMP reuses verbatim).
//
// Server-originated replies (Server Greeting, Server Start, Accept-Session,
// Start-Ack) are deliberately NOT read by a fixed size here. The control
// channel is a TCP byte stream with no message delimiters, and reading a
// hardcoded byte count that undershoots a real server's reply leaves the
// remainder sitting in the socket buffer, silently desynchronizing every
// read for the rest of the session. Client.readMessage instead does one
// bounded Read per message and validates only the documented prefix it
// actually needs, staying aligned with the peer's real reply length
// regardless of the exact frame size in play.
const (
	// MinGreetingSize is the minimum length needed to read the Modes field
	// at bytes 12-16.
	MinGreetingSize = 16
	SetupResponseSize = 164
	// MinServerStartSize is the minimum length needed to read the Accept
	// code at byte 15.
	MinServerStartSize = 16
	RequestSessionSize = 112
	// MinAcceptSessionSize is the minimum length needed to read the Accept
	// code at byte 0.
	MinAcceptSessionSize = 1
	StartSessionsSize = 32
	StopSessionsSize = 32

	// maxControlMessageSize bounds a single read of one server reply; no
	// RFC 5357 control message approaches this size.
	maxControlMessageSize = 9216

	// unauthModeBit is bit 0 of the Server Greeting's Modes field.
	unauthModeBit = 1 << 0
)

// ErrUnauthenticatedNotOffered is returned when a Server Greeting does not
// advertise unauthenticated mode, per spec.md's handling of S6.
var ErrUnauthenticatedNotOffered = fmt.Errorf("control: server does not offer unauthenticated mode")

// modesFromGreeting extracts the Modes bitmask from bytes 12..16 of a Server
// Greeting.
func modesFromGreeting(greeting []byte) (uint32, error) {
	if len(greeting) < MinGreetingSize {
		return 0, fmt.Errorf("control: server greeting too short: %d bytes", len(greeting))
	}
	return binary.BigEndian.Uint32(greeting[12:16]), nil
}

// validateGreeting checks that unauthenticated mode (bit 0) is offered.
func validateGreeting(greeting []byte) error {
	modes, err := modesFromGreeting(greeting)
	if err != nil {
		return err
	}
	if modes&unauthModeBit == 0 {
		return ErrUnauthenticatedNotOffered
	}
	return nil
}

// buildSetupResponse builds the fixed 164-byte Setup Response selecting
// unauthenticated mode (Mode=1), with all remaining security fields zeroed.
func buildSetupResponse() []byte {
	buf := make([]byte, SetupResponseSize)
	binary.BigEndian.PutUint32(buf[0:4], 1)
	return buf
}

// validateServerStart checks the accept code at byte 15 of a Server Start.
func validateServerStart(frame []byte) error {
	if len(frame) < MinServerStartSize {
		return fmt.Errorf("control: server start too short: %d bytes", len(frame))
	}
	if code := frame[15]; code != 0 {
		return fmt.Errorf("control: server start rejected, accept code %d", code)
	}
	return nil
}

// SessionRequest holds the parameters of one negotiated TWAMP-Light test
// session, used to build a Request-TW-Session frame.
type SessionRequest struct {
	IPVN         uint8 // 4 or 6
	SenderAddr   net.IP
	SenderPort   uint16
	ReceiverAddr net.IP
	ReceiverPort uint16
	PaddingLen   uint32
	// StartTime is seconds since the local epoch, 0 meaning "immediate".
	StartTime float64
	// Timeout is seconds, the reflector's session idle window; defaults to
	// 3s when zero.
	Timeout float64
	DSCP    uint8
}

// buildRequestSession encodes r per spec.md §4.7's Request-TW-Session
// layout, always using the RFC-correct long form (16-byte address fields
// for both IPv4 and IPv6) rather than the legacy short form some TWAMP
// implementations still emit.
func buildRequestSession(r SessionRequest) ([]byte, error) {
	buf := make([]byte, RequestSessionSize)
	buf[0] = 5 // Command: Request-TW-Session
	buf[1] = r.IPVN
	buf[2] = 0 // Conf-Sender
	buf[3] = 0 // Conf-Receiver
	binary.BigEndian.PutUint32(buf[4:8], 0)  // NumSlots
	binary.BigEndian.PutUint32(buf[8:12], 0) // NumPackets
	binary.BigEndian.PutUint16(buf[12:14], r.SenderPort)
	binary.BigEndian.PutUint16(buf[14:16], r.ReceiverPort)

	if err := putLongFormAddr(buf[16:32], r.SenderAddr); err != nil {
		return nil, fmt.Errorf("control: sender address: %w", err)
	}
	if err := putLongFormAddr(buf[32:48], r.ReceiverAddr); err != nil {
		return nil, fmt.Errorf("control: receiver address: %w", err)
	}
	// SID occupies [48:64], left zero: the server assigns it.

	binary.BigEndian.PutUint32(buf[64:68], r.PaddingLen)

	timeout := r.Timeout
	if timeout == 0 {
		timeout = 3.0
	}
	putNTP64(buf[68:76], r.StartTime)
	putNTP64(buf[76:84], timeout)

	binary.BigEndian.PutUint32(buf[84:88], uint32(r.DSCP)<<24)
	// MBZ occupies [88:96], HMAC occupies [96:112], both left zero.

	return buf, nil
}

// putLongFormAddr writes ip into a 16-byte field: the 4-byte IPv4 form
// zero-padded to 16 bytes for v4 addresses, or the raw 16-byte form for v6.
func putLongFormAddr(dst []byte, ip net.IP) error {
	if v4 := ip.To4(); v4 != nil {
		copy(dst, v4)
		return nil
	}
	v6 := ip.To16()
	if v6 == nil {
		return fmt.Errorf("invalid IP address %v", ip)
	}
	copy(dst, v6)
	return nil
}

// putNTP64 writes t as a 64-bit NTP timestamp (32-bit seconds || 32-bit
// fraction), big-endian.
func putNTP64(dst []byte, t float64) {
	sec, frac := ntptime.ToNTP(t)
	binary.BigEndian.PutUint32(dst[0:4], sec)
	binary.BigEndian.PutUint32(dst[4:8], frac)
}

// validateAcceptSession checks the accept code at byte 0 of an
// Accept-Session frame.
func validateAcceptSession(frame []byte) error {
	if len(frame) < MinAcceptSessionSize {
		return fmt.Errorf("control: accept-session too short: %d bytes", len(frame))
	}
	if code := frame[0]; code != 0 {
		return fmt.Errorf("control: session request rejected, accept code %d", code)
	}
	return nil
}

// buildStartSessions builds the fixed 32-byte Start-Sessions command.
func buildStartSessions() []byte {
	buf := make([]byte, StartSessionsSize)
	buf[0] = 2
	return buf
}

// buildStopSessions builds the fixed 32-byte Stop-Sessions command carrying
// the number of active sessions being torn down.
func buildStopSessions(sessionCount uint32) []byte {
	buf := make([]byte, StopSessionsSize)
	buf[0] = 3
	buf[1] = 0
	binary.BigEndian.PutUint16(buf[2:4], 0)
	binary.BigEndian.PutUint32(buf[4:8], sessionCount)
	return buf
}

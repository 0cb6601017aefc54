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
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
)

// State is the Control Client's position in the RFC 5357 §3 handshake.
type State int

// Handshake states, in the order a successful run passes through them.
const (
	StateIdle State = iota
	StateGreeted
	StateReady
	StateActive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateGreeted:
		return "GREETED"
	case StateReady:
		return "READY"
	case StateActive:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}

// Options configures the control channel's TCP socket.
type Options struct {
	TOS     int
	DialTimeout time.Duration
}

// Client drives the TCP control-channel state machine against one TWAMP
// server. It is not safe for concurrent use: the handshake is a strictly
// sequential request/response exchange run on the caller's goroutine, per
// spec.md §5.
type Client struct {
	conn net.Conn
	state State
	nbrSessions int
}

// Dial opens the TCP control connection to host:port and reads the Server
// Greeting, moving the client from IDLE to GREETED on success.
func Dial(host string, port int, opts Options) (*Client, error) {
	dialTimeout := opts.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 5 * time.Second
	}
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("control: dial %s: %w", addr, err)
	}

	if err := applyTOS(conn, opts.TOS); err != nil {
		log.Warnf("control: could not set TOS on control connection: %v", err)
	}

	c := &Client{conn: conn, state: StateIdle}
	if err := c.readGreeting(); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// State returns the client's current handshake state.
func (c *Client) State() State { return c.state }

// NbrSessions returns the number of sessions accepted since the last Stop.
func (c *Client) NbrSessions() int { return c.nbrSessions }

// Close closes the underlying TCP connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// readMessage reads whatever the peer has sent for one logical control
// message in a single Read call, rather than asserting an exact frame
// size: the control channel is a byte stream with no delimiters, and a
// fixed-size io.ReadFull either strands bytes in the socket buffer (if it
// reads fewer than the peer sent) or blocks forever (if it reads more).
func (c *Client) readMessage(label string) ([]byte, error) {
	buf := make([]byte, maxControlMessageSize)
	n, err := c.conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("control: read %s: %w", label, err)
	}
	return buf[:n], nil
}

func (c *Client) readGreeting() error {
	buf, err := c.readMessage("server greeting")
	if err != nil {
		return err
	}
	if err := validateGreeting(buf); err != nil {
		return err
	}
	log.Info("control: received server greeting, unauthenticated mode offered")
	c.state = StateGreeted
	return nil
}

// SetupResponse sends the Setup Response selecting unauthenticated mode and
// reads the Server Start, moving the client from GREETED to READY.
func (c *Client) SetupResponse() error {
	if c.state != StateGreeted {
		return fmt.Errorf("control: setup response sent from state %s, expected %s", c.state, StateGreeted)
	}
	if _, err := c.conn.Write(buildSetupResponse()); err != nil {
		return fmt.Errorf("control: send setup response: %w", err)
	}

	buf, err := c.readMessage("server start")
	if err != nil {
		return err
	}
	if err := validateServerStart(buf); err != nil {
		return err
	}
	log.Info("control: server start accepted")
	c.state = StateReady
	return nil
}

// RequestSession sends a Request-TW-Session frame for r and reads the
// Accept-Session response. On success it increments NbrSessions; the client
// remains in READY until StartSessions is called (RFC 5357 allows multiple
// Request-TW-Session exchanges before starting).
func (c *Client) RequestSession(r SessionRequest) error {
	if c.state != StateReady {
		return fmt.Errorf("control: request-tw-session sent from state %s, expected %s", c.state, StateReady)
	}
	frame, err := buildRequestSession(r)
	if err != nil {
		return err
	}
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("control: send request-tw-session: %w", err)
	}

	buf, err := c.readMessage("accept-session")
	if err != nil {
		return err
	}
	if err := validateAcceptSession(buf); err != nil {
		return err
	}
	c.nbrSessions++
	log.Infof("control: session accepted, nbrSessions=%d", c.nbrSessions)
	return nil
}

// StartSessions sends Start-Sessions and moves the client from READY to
// ACTIVE. A reply is read but not validated beyond being present, per
// spec.md §4.7.
func (c *Client) StartSessions() error {
	if c.state != StateReady {
		return fmt.Errorf("control: start-sessions sent from state %s, expected %s", c.state, StateReady)
	}
	if _, err := c.conn.Write(buildStartSessions()); err != nil {
		return fmt.Errorf("control: send start-sessions: %w", err)
	}

	if _, err := c.readMessage("start-ack"); err != nil {
		return err
	}
	log.Info("control: sessions started")
	c.state = StateActive
	return nil
}

// StopSessions sends Stop-Sessions carrying the number of active sessions
// and resets nbrSessions to 0. The server may close the connection
// immediately afterward; that is not treated as an error.
func (c *Client) StopSessions() error {
	if c.state != StateActive {
		return fmt.Errorf("control: stop-sessions sent from state %s, expected %s", c.state, StateActive)
	}
	if _, err := c.conn.Write(buildStopSessions(uint32(c.nbrSessions))); err != nil {
		return fmt.Errorf("control: send stop-sessions: %w", err)
	}
	log.Infof("control: stopped %d session(s)", c.nbrSessions)
	c.nbrSessions = 0
	return nil
}

// applyTOS sets the IP_TOS/IPV6_TCLASS marking on the control connection's
// socket if the platform's net.Conn exposes one.
func applyTOS(conn net.Conn, tos int) error {
	if tos == 0 {
		return nil
	}
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	sc, err := tcpConn.SyscallConn()
	if err != nil {
		return err
	}
	isV6 := false
	if addr, ok := tcpConn.RemoteAddr().(*net.TCPAddr); ok {
		isV6 = addr.IP.To4() == nil
	}
	var optErr error
	err = sc.Control(func(fd uintptr) {
		optErr = setTOS(int(fd), isV6, tos)
	})
	if err != nil {
		return err
	}
	return optErr
}

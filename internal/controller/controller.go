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

// Package controller composes a control.Client and a sender.Sender into
// full TWAMP: the client negotiates the session over TCP, then a Sender
// built from the negotiated endpoint descriptors runs the UDP test on the
// caller's goroutine; no other state passes between the two.
package controller

import (
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"

	"github.com/twampy/twamp-go/internal/control"
	"github.com/twampy/twamp-go/internal/endpoint"
	"github.com/twampy/twamp-go/internal/netaddr"
	"github.com/twampy/twamp-go/internal/sender"
	"github.com/twampy/twamp-go/internal/stats"
)

// Config configures a full controller run: control channel plus one
// TWAMP-Light test session.
type Config struct {
	LocalHost    string
	LocalPort    int
	RemoteHost   string
	RemotePort   int
	ControlPort  int
	Family       netaddr.Family
	Options      endpoint.Options
	ControlTOS   int
	Count        int
	IntervalMs   int
	PadExplicit  int
	Metrics      sender.Metrics
}

// Run negotiates a session against remoteHost:controlPort, then runs a
// Sender test between localHost:localPort and remoteHost:remotePort,
// returning the accumulated statistics.
func Run(cfg Config) (*stats.Accumulator, error) {
	controlPort := cfg.ControlPort
	if controlPort == 0 {
		controlPort = 862
	}

	client, err := control.Dial(cfg.RemoteHost, controlPort, control.Options{TOS: cfg.ControlTOS})
	if err != nil {
		return nil, fmt.Errorf("controller: control channel: %w", err)
	}
	defer client.Close()

	if err := client.SetupResponse(); err != nil {
		return nil, fmt.Errorf("controller: setup: %w", err)
	}

	ipvn := uint8(4)
	if cfg.Family == netaddr.IPv6 {
		ipvn = 6
	}
	remoteIP := net.ParseIP(cfg.RemoteHost)
	if remoteIP == nil {
		ips, err := net.LookupIP(cfg.RemoteHost)
		if err != nil || len(ips) == 0 {
			return nil, fmt.Errorf("controller: resolve %s: %w", cfg.RemoteHost, err)
		}
		remoteIP = ips[0]
	}
	localIP := net.ParseIP(cfg.LocalHost)
	if localIP == nil {
		localIP = net.IPv4zero
	}

	if err := client.RequestSession(control.SessionRequest{
		IPVN:         ipvn,
		SenderAddr:   localIP,
		SenderPort:   uint16(cfg.LocalPort),
		ReceiverAddr: remoteIP,
		ReceiverPort: uint16(cfg.RemotePort),
		PaddingLen:   uint32(maxInt(cfg.PadExplicit, 0)),
		DSCP:         uint8(cfg.Options.TOS >> 2),
	}); err != nil {
		return nil, fmt.Errorf("controller: request session: %w", err)
	}

	if err := client.StartSessions(); err != nil {
		return nil, fmt.Errorf("controller: start sessions: %w", err)
	}
	log.Info("controller: control channel active, starting test session")

	s, err := sender.New(sender.Config{
		LocalHost:   cfg.LocalHost,
		LocalPort:   cfg.LocalPort,
		RemoteHost:  cfg.RemoteHost,
		RemotePort:  cfg.RemotePort,
		Family:      cfg.Family,
		Options:     cfg.Options,
		Count:       cfg.Count,
		IntervalMs:  cfg.IntervalMs,
		PadExplicit: cfg.PadExplicit,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("controller: sender: %w", err)
	}
	defer s.Close()

	if err := s.Run(); err != nil {
		return nil, fmt.Errorf("controller: test run: %w", err)
	}

	if err := client.StopSessions(); err != nil {
		log.Warnf("controller: stop sessions: %v", err)
	}

	return s.Stats(), nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

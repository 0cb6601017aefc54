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

package endpoint

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

func applyOptions(fd int, isV6 bool, opts Options) error {
	if isV6 {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_TCLASS, opts.TOS); err != nil {
			return fmt.Errorf("set IPV6_TCLASS: %w", err)
		}
		if opts.TTL > 0 {
			if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_UNICAST_HOPS, opts.TTL); err != nil {
				return fmt.Errorf("set IPV6_UNICAST_HOPS: %w", err)
			}
		}
	} else {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TOS, opts.TOS); err != nil {
			return fmt.Errorf("set IP_TOS: %w", err)
		}
		if opts.TTL > 0 {
			if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TTL, opts.TTL); err != nil {
				return fmt.Errorf("set IP_TTL: %w", err)
			}
		}
	}

	if !opts.DF {
		return nil
	}

	// Linux: IP_MTU_DISCOVER = IP_PMTUDISC_DO sets the don't-fragment bit on
	// every outgoing datagram. There is no IPv6 equivalent to set here:
	// fragmentation of IPv6 datagrams in flight is already disallowed by the
	// protocol, so the option only applies to the v4 socket.
	if isV6 {
		return nil
	}
	err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_MTU_DISCOVER, unix.IP_PMTUDISC_DO)
	if err != nil {
		if opts.DFRequired {
			return fmt.Errorf("set IP_MTU_DISCOVER=IP_PMTUDISC_DO: %w", err)
		}
		log.Warningf("endpoint: could not set don't-fragment, continuing without it: %v", err)
	}
	return nil
}

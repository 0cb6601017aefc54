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

package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/twampy/twamp-go/internal/endpoint"
	"github.com/twampy/twamp-go/internal/netaddr"
)

// dscpNames maps the common DSCP class names to their 6-bit codepoint, for
// the --dscp NAME flag. TOS byte = codepoint << 2.
var dscpNames = map[string]int{
	"CS0": 0, "CS1": 8, "CS2": 16, "CS3": 24, "CS4": 32, "CS5": 40, "CS6": 48, "CS7": 56,
	"AF11": 10, "AF12": 12, "AF13": 14,
	"AF21": 18, "AF22": 20, "AF23": 22,
	"AF31": 26, "AF32": 28, "AF33": 30,
	"AF41": 34, "AF42": 36, "AF43": 38,
	"EF": 46,
}

// testFlags bundles the probe-tuning flags common to reflector, sender, and
// controller commands.
type testFlags struct {
	tos            string
	dscp           string
	ttl            int
	padding        int
	doNotFragment  bool
	count          int
	intervalMs     int
	metricsAddr    string
}

func registerTestFlags(c *cobra.Command, f *testFlags) {
	c.Flags().StringVar(&f.tos, "tos", "", "IP_TOS/IPV6_TCLASS value as hex, e.g. 0xB8")
	c.Flags().StringVar(&f.dscp, "dscp", "", "DSCP class name, e.g. EF, AF41, CS5 (overrides --tos)")
	c.Flags().IntVar(&f.ttl, "ttl", 64, "IP_TTL/IPV6_UNICAST_HOPS value (1-128)")
	c.Flags().IntVarP(&f.padding, "padding", "p", -1, "explicit zero-padding byte count; -1 uses the IMIX default mix")
	c.Flags().BoolVar(&f.doNotFragment, "do-not-fragment", false, "set the IP don't-fragment bit")
	c.Flags().IntVarP(&f.count, "count", "c", 100, "number of probes to send (1-9999)")
	c.Flags().IntVarP(&f.intervalMs, "interval", "i", 100, "probe interval in milliseconds (100-1000)")
	c.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address instead of printing a final dump")
}

// resolveTOS turns --tos/--dscp into a single TOS byte, preferring --dscp.
func (f *testFlags) resolveTOS() (int, error) {
	if f.dscp != "" {
		cp, ok := dscpNames[strings.ToUpper(f.dscp)]
		if !ok {
			return 0, fmt.Errorf("unknown DSCP class name %q", f.dscp)
		}
		return cp << 2, nil
	}
	if f.tos == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(strings.TrimPrefix(f.tos, "0x"), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid --tos value %q: %w", f.tos, err)
	}
	if v < 0 || v > 255 {
		return 0, fmt.Errorf("--tos value %q out of range 0x00-0xFF", f.tos)
	}
	return int(v), nil
}

func (f *testFlags) validate() error {
	if f.ttl < 1 || f.ttl > 128 {
		return fmt.Errorf("--ttl must be in 1-128, got %d", f.ttl)
	}
	if f.count < 1 || f.count > 9999 {
		return fmt.Errorf("--count must be in 1-9999, got %d", f.count)
	}
	if f.intervalMs < 100 || f.intervalMs > 1000 {
		return fmt.Errorf("--interval must be in 100-1000, got %d", f.intervalMs)
	}
	return nil
}

func (f *testFlags) endpointOptions() (endpoint.Options, error) {
	tos, err := f.resolveTOS()
	if err != nil {
		return endpoint.Options{}, err
	}
	return endpoint.Options{
		TOS:        tos,
		TTL:        f.ttl,
		DF:         f.doNotFragment,
		DFRequired: f.doNotFragment,
	}, nil
}

// parseAddr parses a positional "host:port" argument via internal/netaddr,
// reporting configuration errors the way spec.md §7 requires: fatal, before
// any socket is opened.
func parseAddr(arg string, defaultPort int) (netaddr.Addr, error) {
	a, err := netaddr.Parse(arg, defaultPort)
	if err != nil {
		return netaddr.Addr{}, fmt.Errorf("invalid address %q: %w", arg, err)
	}
	return a, nil
}

func familyFromAddr(a netaddr.Addr) netaddr.Family {
	return a.Family
}

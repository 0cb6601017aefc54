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
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/twampy/twamp-go/internal/netaddr"
	"github.com/twampy/twamp-go/internal/sender"
	"github.com/twampy/twamp-go/internal/stats"
)

// defaultSenderPort is the TWAMP-Light sender's default local UDP port,
// per spec.md §6.
const defaultSenderPort = 20000

var senderFlags testFlags

func init() {
	RootCmd.AddCommand(senderCmd)
	registerTestFlags(senderCmd, &senderFlags)
}

var senderCmd = &cobra.Command{
	Use:   "sender local:port remote:port",
	Short: "Run a TWAMP-Light sender",
	Args:  cobra.ExactArgs(2),
	Run: func(_ *cobra.Command, args []string) {
		ConfigureLogging()

		local, err := parseAddr(args[0], defaultSenderPort)
		if err != nil {
			log.Fatal(err)
		}
		remote, err := parseAddr(args[1], defaultReflectorPort)
		if err != nil {
			log.Fatal(err)
		}
		if err := senderFlags.validate(); err != nil {
			log.Fatal(err)
		}
		opts, err := senderFlags.endpointOptions()
		if err != nil {
			log.Fatal(err)
		}

		family := familyFromAddr(local)
		if family == netaddr.Unspecified {
			family = familyFromAddr(remote)
		}

		var metrics sender.Metrics
		if senderFlags.metricsAddr != "" {
			exporter := stats.NewPrometheusExporter("sender")
			metrics = exporter
			go func() {
				if err := exporter.Serve(senderFlags.metricsAddr); err != nil {
					log.Errorf("metrics server stopped: %v", err)
				}
			}()
		}

		s, err := sender.New(sender.Config{
			LocalHost:   local.Host,
			LocalPort:   local.Port,
			RemoteHost:  remote.Host,
			RemotePort:  remote.Port,
			Family:      family,
			Options:     opts,
			Count:       senderFlags.count,
			IntervalMs:  senderFlags.intervalMs,
			PadExplicit: senderFlags.padding,
			Metrics:     metrics,
		})
		if err != nil {
			log.Fatal(err)
		}
		defer s.Close()

		log.Infof("sender: probing %s:%d from %s", remote.Host, remote.Port, s.LocalAddr())
		if err := s.Run(); err != nil {
			log.Fatal(err)
		}

		if senderFlags.metricsAddr == "" {
			s.Stats().Dump(os.Stdout, senderFlags.count)
		}
	},
}

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

	"github.com/twampy/twamp-go/internal/controller"
	"github.com/twampy/twamp-go/internal/netaddr"
	"github.com/twampy/twamp-go/internal/sender"
	"github.com/twampy/twamp-go/internal/stats"
)

var controllerFlags testFlags
var controllerPortFlag int

func init() {
	RootCmd.AddCommand(controllerCmd)
	registerTestFlags(controllerCmd, &controllerFlags)
	controllerCmd.Flags().IntVar(&controllerPortFlag, "control-port", 862, "TCP control channel port on the remote server")
}

var controllerCmd = &cobra.Command{
	Use:   "controller local:port remote:port",
	Short: "Run full TWAMP: negotiate over the control channel, then send",
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
		if err := controllerFlags.validate(); err != nil {
			log.Fatal(err)
		}
		opts, err := controllerFlags.endpointOptions()
		if err != nil {
			log.Fatal(err)
		}

		family := familyFromAddr(local)
		if family == netaddr.Unspecified {
			family = familyFromAddr(remote)
		}

		var metrics sender.Metrics
		if controllerFlags.metricsAddr != "" {
			exporter := stats.NewPrometheusExporter("controller")
			metrics = exporter
			go func() {
				if err := exporter.Serve(controllerFlags.metricsAddr); err != nil {
					log.Errorf("metrics server stopped: %v", err)
				}
			}()
		}

		acc, err := controller.Run(controller.Config{
			LocalHost:   local.Host,
			LocalPort:   local.Port,
			RemoteHost:  remote.Host,
			RemotePort:  remote.Port,
			ControlPort: controllerPortFlag,
			Family:      family,
			Options:     opts,
			ControlTOS:  opts.TOS,
			Count:       controllerFlags.count,
			IntervalMs:  controllerFlags.intervalMs,
			PadExplicit: controllerFlags.padding,
			Metrics:     metrics,
		})
		if err != nil {
			log.Fatal(err)
		}

		if controllerFlags.metricsAddr == "" {
			acc.Dump(os.Stdout, controllerFlags.count)
		}
	},
}

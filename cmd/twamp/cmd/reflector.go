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
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/twampy/twamp-go/internal/reflector"
	"github.com/twampy/twamp-go/internal/stats"
)

// defaultReflectorPort is the TWAMP-Light receiver's default UDP port,
// per spec.md §6.
const defaultReflectorPort = 20001

var reflectorFlags testFlags
var reflectorPadmixFlag bool

func init() {
	RootCmd.AddCommand(reflectorCmd)
	registerTestFlags(reflectorCmd, &reflectorFlags)
	reflectorCmd.Flags().BoolVar(&reflectorPadmixFlag, "padmix", false, "draw a fresh padding size from the IMIX mix on every reply instead of the default symmetric per-flow cache")
}

var reflectorCmd = &cobra.Command{
	Use:   "reflector local:port",
	Short: "Run a TWAMP-Light reflector",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		ConfigureLogging()

		local, err := parseAddr(args[0], defaultReflectorPort)
		if err != nil {
			log.Fatal(err)
		}
		if err := reflectorFlags.validate(); err != nil {
			log.Fatal(err)
		}
		opts, err := reflectorFlags.endpointOptions()
		if err != nil {
			log.Fatal(err)
		}

		var metrics reflector.Metrics
		if reflectorFlags.metricsAddr != "" {
			exporter := stats.NewPrometheusExporter("reflector")
			metrics = exporter
			go func() {
				if err := exporter.Serve(reflectorFlags.metricsAddr); err != nil {
					log.Errorf("metrics server stopped: %v", err)
				}
			}()
		}

		r, err := reflector.New(reflector.Config{
			Host:        local.Host,
			Port:        local.Port,
			Family:      familyFromAddr(local),
			Options:     opts,
			PadExplicit: reflectorFlags.padding,
			UsePadmix:   reflectorPadmixFlag,
			Metrics:     metrics,
		})
		if err != nil {
			log.Fatal(err)
		}

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sig
			log.Info("reflector: received shutdown signal, closing")
			_ = r.Close()
		}()

		log.Infof("reflector: listening on %s", r.LocalAddr())
		if err := r.Run(); err != nil {
			log.Fatal(err)
		}
	},
}

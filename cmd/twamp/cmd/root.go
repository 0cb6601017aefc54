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
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// RootCmd is the twamp CLI's main entry point, exported so main can just
// call Execute.
var RootCmd = &cobra.Command{
	Use:   "twamp",
	Short: "TWAMP and TWAMP-Light network latency/jitter/loss prober",
}

var rootVerboseFlag bool
var rootQuietFlag bool
var rootLogFile string

func init() {
	RootCmd.PersistentFlags().BoolVarP(&rootVerboseFlag, "verbose", "v", false, "verbose output")
	RootCmd.PersistentFlags().BoolVarP(&rootQuietFlag, "quiet", "q", false, "suppress all but warning/error output")
	RootCmd.PersistentFlags().StringVar(&rootLogFile, "logfile", "", "write logs to this file instead of stderr")
}

// ConfigureLogging applies verbosity/quiet/logfile flags. Must be called by
// every subcommand before doing any work.
func ConfigureLogging() {
	switch {
	case rootVerboseFlag:
		log.SetLevel(log.DebugLevel)
	case rootQuietFlag:
		log.SetLevel(log.WarnLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}

	if rootLogFile != "" {
		f, err := os.OpenFile(rootLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Fatalf("failed to open log file %s: %v", rootLogFile, err)
		}
		log.SetOutput(f)
	}
}

// Execute runs the CLI, exiting non-zero on any subcommand error.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

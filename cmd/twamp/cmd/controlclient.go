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
	"net"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/twampy/twamp-go/internal/control"
	"github.com/twampy/twamp-go/internal/netaddr"
)

var controlClientPaddingFlag uint32
var controlClientTOSFlag string

func init() {
	RootCmd.AddCommand(controlClientCmd)
	controlClientCmd.Flags().Uint32Var(&controlClientPaddingFlag, "padding", 0, "padding length to request for the negotiated session")
	controlClientCmd.Flags().StringVar(&controlClientTOSFlag, "tos", "", "IP_TOS/IPV6_TCLASS value as hex, e.g. 0xB8")
}

// controlClientCmd exercises only the TCP control channel (spec.md §4.7),
// negotiating and immediately tearing down one session without running any
// UDP test traffic. Useful for validating a server's control-channel
// behavior in isolation, matching the "controlclient" CLI surface.
var controlClientCmd = &cobra.Command{
	Use:   "controlclient twamp-sender:port twamp-server:port",
	Short: "Run the TWAMP control channel only",
	Args:  cobra.ExactArgs(2),
	Run: func(_ *cobra.Command, args []string) {
		ConfigureLogging()

		sender, err := parseAddr(args[0], defaultSenderPort)
		if err != nil {
			log.Fatal(err)
		}
		server, err := parseAddr(args[1], 862)
		if err != nil {
			log.Fatal(err)
		}

		tos := 0
		if controlClientTOSFlag != "" {
			f := testFlags{tos: controlClientTOSFlag}
			tos, err = f.resolveTOS()
			if err != nil {
				log.Fatal(err)
			}
		}

		client, err := control.Dial(server.Host, server.Port, control.Options{TOS: tos})
		if err != nil {
			log.Fatal(err)
		}
		defer client.Close()

		if err := client.SetupResponse(); err != nil {
			log.Fatal(err)
		}

		ipvn := uint8(4)
		if sender.Family == netaddr.IPv6 {
			ipvn = 6
		}
		senderIP := net.ParseIP(sender.Host)
		if senderIP == nil {
			senderIP = net.IPv4zero
		}
		serverIP := net.ParseIP(server.Host)
		if serverIP == nil {
			serverIP = net.IPv4zero
		}

		if err := client.RequestSession(control.SessionRequest{
			IPVN:         ipvn,
			SenderAddr:   senderIP,
			SenderPort:   uint16(sender.Port),
			ReceiverAddr: serverIP,
			ReceiverPort: uint16(server.Port),
			PaddingLen:   controlClientPaddingFlag,
		}); err != nil {
			log.Fatal(err)
		}

		if err := client.StartSessions(); err != nil {
			log.Fatal(err)
		}
		log.Infof("controlclient: session active, nbrSessions=%d", client.NbrSessions())

		if err := client.StopSessions(); err != nil {
			log.Fatal(err)
		}
		log.Info("controlclient: session stopped cleanly")
	},
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/mixbot/pkg/mixproto"
)

var sendCmd = &cobra.Command{
	Use:   "send <payload>",
	Short: "Send one command frame and print the replies",
	Long: `Wrap payload in < > and send it, then print the acknowledgement.

The payload is sent verbatim, so any verb can be tested:
  mixbot send Mix,3,0.5    run pump 3 for half a second
  mixbot send Meas         ack, then an RGB reading
  mixbot send Hello        ack only

Surrounding < > are stripped if given. For Meas the RGB reading that
follows the acknowledgement is printed too.`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	payload := strings.TrimSuffix(strings.TrimPrefix(args[0], "<"), ">")
	parsed := mixproto.ParseCommand([]byte(payload))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	client, connInfo, err := OpenClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Sending: %s\n", mixproto.FormatCommand(parsed))

	if parsed.Verb == mixproto.VerbMeas {
		rgb, err := client.Measure(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Measured: %s\n", renderSwatch(rgb.Slice()))
		return nil
	}

	reply, err := client.Send(ctx, payload)
	if err != nil {
		return err
	}
	fmt.Print(mixproto.FormatReply(reply))
	return nil
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/mixbot/pkg/mixproto"
)

var (
	pingTimeout int
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure the command round trip with ack-only frames",
	Long: `Send <Ping,n> frames and wait for each acknowledgement.

The device acknowledges unknown verbs without acting on them, so this
exercises the link and the dispatcher without running pumps.

This is useful for verifying:
  - the connection (serial or WebSocket) is established
  - HTTP Basic authentication works
  - the device is dispatching frames
  - the acknowledgement echoes the frame

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 5, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	client, connInfo, err := OpenClient(cmd.Context())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer client.Close()

	fmt.Printf("Mixbot - Ping\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	success := 0
	var total time.Duration
	for i := 1; i <= pingCount; i++ {
		payload := fmt.Sprintf("Ping,%d", i)
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(pingTimeout)*time.Second)
		start := time.Now()
		reply, err := client.Send(ctx, payload)
		rtt := time.Since(start)
		cancel()

		switch {
		case err != nil:
			fmt.Printf("Ping %d: FAILED: %v\n", i, err)
		case reply.Message != payload:
			fmt.Printf("Ping %d: BAD ECHO %q\n", i, reply.Message)
		default:
			success++
			total += rtt
			fmt.Printf("Ping %d: %v (device time ~%s)\n", i, rtt.Round(time.Millisecond), mixproto.FormatTicks(reply.Ticks))
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d sent, %d received, %.0f%% loss\n",
		pingCount, success, float64(pingCount-success)*100/float64(max(pingCount, 1)))
	if success > 0 {
		fmt.Printf("Average round trip: %v\n", (total / time.Duration(success)).Round(time.Millisecond))
	}

	if success != pingCount {
		os.Exit(1)
	}
	return nil
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/mixbot/pkg/mixproto"
)

var readyWait int

var readyCmd = &cobra.Command{
	Use:   "ready",
	Short: "Test connection by waiting for the device ready banner",
	Long: `Wait for the <Arduino is ready> banner on the connection until timeout.

The device sends the banner once at start-up; opening the serial port of
most boards resets them, so it normally arrives within a couple of seconds.
Bytes and frames before the banner are ignored.

Exit codes:
  0 - Banner received before timeout
  1 - Timeout reached without receiving the banner
  2 - Connection error`,
	RunE: runReady,
}

func init() {
	rootCmd.AddCommand(readyCmd)
	readyCmd.Flags().IntVar(&readyWait, "timeout", 10, "Timeout in seconds to wait for the banner")
}

func runReady(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Mixbot - Ready Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", readyWait)
	fmt.Printf("Waiting for ready banner...\n\n")

	acc := mixproto.NewAccumulator(mixproto.HostCapacity)

	readyChan := make(chan *mixproto.Frame, 1)
	errChan := make(chan error, 1)

	go func() {
		buf := make([]byte, 128)
		skipped := 0
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}

			for i := 0; i < n; i++ {
				frame, _ := acc.DecodeByte(buf[i])
				if frame == nil {
					continue
				}
				reply, perr := mixproto.ParseReply(frame)
				if perr != nil || reply.Kind != mixproto.ReplyReady {
					skipped++
					continue
				}
				if skipped > 0 {
					fmt.Printf("(skipped %d frames before the banner)\n", skipped)
				}
				readyChan <- frame
				return
			}
		}
	}()

	select {
	case frame := <-readyChan:
		fmt.Printf("SUCCESS: Device ready\n")
		fmt.Printf("  Banner: %q\n", frame.String())
		fmt.Printf("  Received: %s\n", frame.Timestamp().Format("15:04:05.000"))
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(readyWait) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No ready banner received within %d seconds\n", readyWait)
		os.Exit(1)
	}

	return nil
}

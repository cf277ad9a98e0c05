// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/mixbot/pkg/mixproto"
)

var rawLogBytes bool

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display the reply stream in human-readable format",
	Long: `Continuously decode and display reply frames as they arrive.

Each frame is shown with its receive time, kind and decoded fields:
acknowledgements with the echoed command and device time, RGB readings
and the ready banner. With --bytes the raw received bytes are shown too.

Nothing is sent; pair this with another host on a shared WebSocket or run
it on the monitor tap of a serial line.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogBytes, "bytes", false, "Also print the raw bytes of every read")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Mixbot - Raw Reply Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	acc := mixproto.NewAccumulator(mixproto.HostCapacity)
	buf := make([]byte, 128)

	for {
		n, err := conn.Read(buf)
		if n > 0 && rawLogBytes {
			fmt.Printf("  bytes: %s\n", mixproto.FormatRaw(buf[:n]))
		}
		if err != nil {
			// A closed WebSocket or an unplugged device does not come back
			if errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF) {
				log.Printf("Connection closed")
				return nil
			}
			log.Printf("Read error: %v", err)
			continue
		}

		for i := 0; i < n; i++ {
			frame, ferr := acc.DecodeByte(buf[i])
			if frame == nil {
				continue
			}
			if ferr != nil {
				fmt.Printf("[ERROR] %v\n", ferr)
			}
			reply, err := mixproto.ParseReply(frame)
			if err != nil {
				fmt.Printf("[ERROR] %v: %q\n", err, frame.String())
				continue
			}
			fmt.Print(mixproto.FormatReply(reply))
		}
	}
}

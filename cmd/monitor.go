// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/mixbot/pkg/mixproto"
)

var (
	showAll         bool
	statsInterval   int
	useTUI          bool
	measureInterval time.Duration
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch the reply stream for errors and anomalies",
	Long: `Track reply errors, truncated frames and anomalous values with statistics.

Each reply is validated and the following are detected:
  - Truncated frames (longer than the host buffer)
  - Malformed acknowledgements and RGB results
  - Acknowledgement time running backwards (device reset or corruption)
  - RGB channels above 255

By default only problems are displayed. Use --show-all to display valid
replies too. With --measure-interval a measurement is requested
periodically so the link carries traffic; otherwise nothing is sent.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all replies (not just errors)")
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	monitorCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
	monitorCmd.Flags().DurationVar(&measureInterval, "measure-interval", 0, "Request a measurement this often (0 disables)")
}

// replyEvent is one decoded frame or decode failure seen by the monitor
type replyEvent struct {
	reply     *mixproto.Reply
	err       error
	anomalies []mixproto.ValidationError
}

// replyTap decodes a raw reply stream into events. Bytes before the first
// start marker are counted as noise instead of being reported.
type replyTap struct {
	acc          *mixproto.Accumulator
	validator    *mixproto.Validator
	synchronized bool
	skipped      int
}

func newReplyTap() *replyTap {
	return &replyTap{
		acc:       mixproto.NewAccumulator(mixproto.HostCapacity),
		validator: mixproto.NewValidator(),
	}
}

// Feed decodes data. synced is true when this call produced the first frame.
func (t *replyTap) Feed(data []byte) (events []replyEvent, synced bool) {
	for _, b := range data {
		if !t.synchronized && !t.acc.Open() && b != mixproto.StartMarker {
			t.skipped++
			continue
		}

		frame, ferr := t.acc.DecodeByte(b)
		if frame == nil {
			continue
		}
		if !t.synchronized {
			t.synchronized = true
			synced = true
		}

		reply, err := mixproto.ParseReply(frame)
		if err != nil {
			events = append(events, replyEvent{err: fmt.Errorf("%w: %q", err, frame.String())})
			continue
		}
		ev := replyEvent{reply: &reply, err: ferr}
		ev.anomalies = t.validator.Validate(reply)
		events = append(events, ev)
	}
	return events, synced
}

// startMeasuring writes a measurement request every interval until stop closes
func startMeasuring(w io.Writer, interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		return
	}
	frame := mixproto.MustEncodeFrame(mixproto.NewMeasCommand())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if _, err := w.Write(frame); err != nil {
					logger.Warn("measurement request failed", zap.Error(err))
					return
				}
			}
		}
	}()
}

func runMonitor(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	startMeasuring(conn, measureInterval, stop)

	if useTUI {
		return runTUIMode(conn, connInfo)
	}
	return runTextMode(conn, connInfo)
}

// readChunks forwards everything read from r until it fails permanently
func readChunks(r io.Reader, out chan<- []byte) {
	defer close(out)
	buf := make([]byte, 128)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			out <- data
		}
		if err != nil {
			if errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF) {
				return
			}
			logger.Warn("read error", zap.Error(err))
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, err)
	fmt.Printf("  >>> REPLY REJECTED <<<\n\n")
}

// printValidationErrors prints the anomalies found in a reply
func printValidationErrors(r *mixproto.Reply, anomalies []mixproto.ValidationError) {
	fmt.Printf("\033[1;33mVALIDATION ERROR:\033[0m %s", mixproto.FormatReply(*r))

	for i, a := range anomalies {
		switch a.Type {
		case mixproto.AnomalyTruncated:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, a.Message)
			fmt.Printf("    host buffer holds %d bytes\n", mixproto.HostCapacity-1)

		case mixproto.AnomalyTicksBackwards:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, a.Message)
			if prev, ok := a.Details["previous"].(uint32); ok {
				if cur, ok := a.Details["current"].(uint32); ok {
					fmt.Printf("    uptime: %s -> %s\n", mixproto.FormatTicks(prev), mixproto.FormatTicks(cur))
				}
			}

		case mixproto.AnomalyRGBOutOfRange:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, a.Message)
			fmt.Printf("    valid: 0 to %d\n", mixproto.MaxChannelValue)

		default:
			fmt.Printf("  Issue %d: %s\n", i+1, a.Message)
		}
	}
	fmt.Println()
}

// runTUIMode runs the monitor in TUI mode
func runTUIMode(conn Connection, connInfo string) error {
	m := initialModel(connInfo, statsInterval, showAll)
	p := tea.NewProgram(m)

	chunks := make(chan []byte, 10)
	go readChunks(conn, chunks)

	go func() {
		tap := newReplyTap()
		for data := range chunks {
			events, synced := tap.Feed(data)
			if synced {
				p.Send(syncMsg{invalidBytes: tap.skipped})
			}
			for _, ev := range events {
				p.Send(replyMsg(ev))
			}
		}
		p.Send(disconnectedMsg{})
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// runTextMode runs the monitor in text mode
func runTextMode(conn Connection, connInfo string) error {
	fmt.Printf("Mixbot - Reply Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All replies\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	tap := newReplyTap()
	stats := mixproto.NewStatistics()

	interval := time.Duration(statsInterval) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	statsTicker := time.NewTicker(interval)
	defer statsTicker.Stop()

	chunks := make(chan []byte, 10)
	go readChunks(conn, chunks)

	for {
		select {
		case data, ok := <-chunks:
			if !ok {
				fmt.Println()
				fmt.Print(stats.String())
				fmt.Printf("Connection closed\n")
				return nil
			}

			events, synced := tap.Feed(data)
			if synced {
				if tap.skipped > 0 {
					fmt.Printf("[SYNC] Synchronized after skipping %d bytes\n\n", tap.skipped)
				} else {
					fmt.Printf("[SYNC] Synchronized\n\n")
				}
			}

			for _, ev := range events {
				stats.UpdateReply(ev.reply, ev.err)
				switch {
				case ev.reply == nil:
					printDecodeError(ev.err)
				case len(ev.anomalies) > 0:
					printValidationErrors(ev.reply, ev.anomalies)
				case ev.reply.Kind == mixproto.ReplyReady:
					// Always shown: the device restarted
					fmt.Print(mixproto.FormatReply(*ev.reply))
				case showAll:
					fmt.Print(mixproto.FormatReply(*ev.reply))
				}
			}

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}

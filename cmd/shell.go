// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/mixbot/pkg/host"
	"github.com/Thermoquad/mixbot/pkg/mixlog"
	"github.com/Thermoquad/mixbot/pkg/mixproto"
)

const shellKey = "$mixer"

// mixShell is the state behind the interactive shell
type mixShell struct {
	client *host.Client
	pc     *host.PumpController
	log    *mixlog.Writer
}

var shellNoLog bool

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive shell for driving the device",
	Long: `Connect to the device and read commands interactively.

Type 'help' inside the shell for the command list. Mixes are logged to a
session file in controller.logDir unless --no-log is given. Ctrl+C
interrupts the running command; 'exit' leaves the shell.`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
	shellCmd.Flags().BoolVar(&shellNoLog, "no-log", false, "Do not write a session log")
}

func runShell(cmd *cobra.Command, args []string) error {
	client, connInfo, err := OpenClient(cmd.Context())
	if err != nil {
		return err
	}
	defer client.Close()

	ms := &mixShell{client: client}
	if !shellNoLog {
		ms.log, err = mixlog.Create(cfg.Controller.LogDir, mixlog.HardwarePrefix, time.Now())
		if err != nil {
			return err
		}
		defer ms.log.Close()
	}
	ms.pc, err = host.NewPumpController(client, cfg.HostController(), ms.log, logger)
	if err != nil {
		return err
	}

	sh := ishell.New()
	sh.Set(shellKey, ms)
	sh.SetPrompt("mixbot> ")
	for _, c := range shellCommands() {
		sh.AddCmd(c)
	}
	sh.Println("Mixbot shell - " + connInfo)
	sh.Run()
	return nil
}

func shellFrom(c *ishell.Context) *mixShell {
	return c.Get(shellKey).(*mixShell)
}

// withContext runs fn with a context cancelled by Ctrl+C and reports its error
func withContext(c *ishell.Context, fn func(ctx context.Context, ms *mixShell) error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := fn(ctx, shellFrom(c)); err != nil {
		c.Err(err)
	}
}

func parseFloatArg(c *ishell.Context, i int, name string) (float64, bool) {
	if len(c.Args) <= i {
		c.Err(fmt.Errorf("%s required", name))
		return 0, false
	}
	v, err := strconv.ParseFloat(c.Args[i], 64)
	if err != nil {
		c.Err(fmt.Errorf("invalid %s: %v", name, err))
		return 0, false
	}
	return v, true
}

func shellCommands() []*ishell.Cmd {
	return []*ishell.Cmd{
		{
			Name: "send",
			Help: "PAYLOAD - send a raw command frame",
			Func: func(c *ishell.Context) {
				if len(c.Args) < 1 {
					c.Err(fmt.Errorf("PAYLOAD required"))
					return
				}
				withContext(c, func(ctx context.Context, ms *mixShell) error {
					reply, err := ms.client.Send(ctx, strings.Join(c.Args, ","))
					if err != nil {
						return err
					}
					c.Print(mixproto.FormatReply(reply))
					return nil
				})
			},
		},
		{
			Name:    "measure",
			Aliases: []string{"meas"},
			Help:    "measure the color of the cell",
			Func: func(c *ishell.Context) {
				withContext(c, func(ctx context.Context, ms *mixShell) error {
					rgb, err := ms.pc.Measure(ctx)
					if err != nil {
						return err
					}
					c.Println(renderSwatch(rgb))
					return nil
				})
			},
		},
		{
			Name: "mix",
			Help: "R G B Y - mix, measure, log and reset",
			Func: func(c *ishell.Context) { shellMix(c, false) },
		},
		{
			Name: "target",
			Help: "R G B Y - mix and set as the target color",
			Func: func(c *ishell.Context) { shellMix(c, true) },
		},
		{
			Name: "purge",
			Help: "PUMP [SECONDS] - prime a pump hose",
			Func: func(c *ishell.Context) {
				if len(c.Args) < 1 {
					c.Err(fmt.Errorf("PUMP required"))
					return
				}
				var seconds float64
				if len(c.Args) > 1 {
					v, ok := parseFloatArg(c, 1, "SECONDS")
					if !ok {
						return
					}
					seconds = v
				}
				withContext(c, func(ctx context.Context, ms *mixShell) error {
					return ms.pc.PurgePump(ctx, strings.ToUpper(c.Args[0]), seconds)
				})
			},
		},
		{
			Name: "run",
			Help: "PUMP VOLUME - dispense a volume",
			Func: func(c *ishell.Context) {
				if len(c.Args) < 1 {
					c.Err(fmt.Errorf("PUMP required"))
					return
				}
				volume, ok := parseFloatArg(c, 1, "VOLUME")
				if !ok {
					return
				}
				withContext(c, func(ctx context.Context, ms *mixShell) error {
					return ms.pc.RunPump(ctx, strings.ToUpper(c.Args[0]), volume)
				})
			},
		},
		{
			Name: "flush",
			Help: "fill the cell with water",
			Func: func(c *ishell.Context) {
				withContext(c, func(ctx context.Context, ms *mixShell) error { return ms.pc.Flush(ctx) })
			},
		},
		{
			Name: "drain",
			Help: "[SECONDS] - empty the cell",
			Func: func(c *ishell.Context) {
				var seconds float64
				if len(c.Args) > 0 {
					v, ok := parseFloatArg(c, 0, "SECONDS")
					if !ok {
						return
					}
					seconds = v
				}
				withContext(c, func(ctx context.Context, ms *mixShell) error { return ms.pc.Drain(ctx, seconds) })
			},
		},
		{
			Name: "reset",
			Help: "drain, flush and drain the cell",
			Func: func(c *ishell.Context) {
				withContext(c, func(ctx context.Context, ms *mixShell) error { return ms.pc.Reset(ctx) })
			},
		},
		{
			Name: "stats",
			Help: "show reply statistics",
			Func: func(c *ishell.Context) {
				stats := shellFrom(c).client.Stats()
				c.Print(stats.String())
			},
		},
	}
}

func shellMix(c *ishell.Context, target bool) {
	if len(c.Args) != 4 {
		c.Err(fmt.Errorf("R G B Y required"))
		return
	}
	mixture, err := parseMixture(c.Args)
	if err != nil {
		c.Err(err)
		return
	}
	withContext(c, func(ctx context.Context, ms *mixShell) error {
		var color []float64
		var err error
		if target {
			color, err = ms.pc.ChangeTarget(ctx, mixture)
		} else {
			color, err = ms.pc.MixColor(ctx, mixture, false)
		}
		if err != nil {
			return err
		}
		c.Println(renderSwatch(color))
		return nil
	})
}

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

	"github.com/spf13/cobra"

	"github.com/Thermoquad/mixbot/pkg/host"
	"github.com/Thermoquad/mixbot/pkg/mixlog"
)

var pumpCmd = &cobra.Command{
	Use:   "pump",
	Short: "Run pumps and cell maintenance sequences",
	Long: `Run single pumps or the cell maintenance sequences.

Pumps are named R, G, B, Y (dyes), W (water) and D (drain); their pins and
calibration (run time = a * volume + b seconds) come from controller.pumps.`,
}

var pumpPurgeCmd = &cobra.Command{
	Use:   "purge <pump> [seconds]",
	Short: "Run a pump to prime its hose (default controller.purgeTime)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		seconds, err := optionalSeconds(args, 1)
		if err != nil {
			return err
		}
		return withPumpController(cmd, nil, func(ctx context.Context, pc *host.PumpController) error {
			return pc.PurgePump(ctx, strings.ToUpper(args[0]), seconds)
		})
	},
}

var pumpRunCmd = &cobra.Command{
	Use:   "run <pump> <volume>",
	Short: "Dispense a volume through a pump using its calibration",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		volume, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid volume %q: %w", args[1], err)
		}
		return withPumpController(cmd, nil, func(ctx context.Context, pc *host.PumpController) error {
			return pc.RunPump(ctx, strings.ToUpper(args[0]), volume)
		})
	},
}

var pumpFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Fill the test cell with water",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPumpController(cmd, nil, func(ctx context.Context, pc *host.PumpController) error {
			return pc.Flush(ctx)
		})
	},
}

var pumpDrainCmd = &cobra.Command{
	Use:   "drain [seconds]",
	Short: "Empty the test cell (default controller.drainTime)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		seconds, err := optionalSeconds(args, 0)
		if err != nil {
			return err
		}
		return withPumpController(cmd, nil, func(ctx context.Context, pc *host.PumpController) error {
			return pc.Drain(ctx, seconds)
		})
	},
}

var pumpResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drain, flush with water and drain again",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPumpController(cmd, nil, func(ctx context.Context, pc *host.PumpController) error {
			return pc.Reset(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(pumpCmd)
	pumpCmd.AddCommand(pumpPurgeCmd, pumpRunCmd, pumpFlushCmd, pumpDrainCmd, pumpResetCmd)
}

// optionalSeconds parses args[i] if present; zero selects the configured default
func optionalSeconds(args []string, i int) (float64, error) {
	if len(args) <= i {
		return 0, nil
	}
	v, err := strconv.ParseFloat(args[i], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", args[i], err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %g", v)
	}
	return v, nil
}

// withPumpController connects to the device and runs fn with a pump
// controller. log may be nil.
func withPumpController(cmd *cobra.Command, log *mixlog.Writer, fn func(context.Context, *host.PumpController) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	client, connInfo, err := OpenClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	fmt.Printf("Connection: %s\n", connInfo)

	pc, err := host.NewPumpController(client, cfg.HostController(), log, logger)
	if err != nil {
		return err
	}
	if err := fn(ctx, pc); err != nil {
		return err
	}
	fmt.Printf("Done.\n")
	return nil
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/mixbot/pkg/host"
	"github.com/Thermoquad/mixbot/pkg/mixlog"
)

var (
	mixTarget bool
	mixSilico bool
	mixNoLog  bool
	mixSeed   int64
)

var mixCmd = &cobra.Command{
	Use:   "mix <r> <g> <b> <y>",
	Short: "Mix a color from the four dyes and measure it",
	Long: `Mix red, green, blue and yellow dye in the given proportions, measure
the result and reset the cell.

Negative amounts count as zero and the mixture is scaled to fill the cell
(controller.cellVolume). Every mix is appended to a session log
(controller.logDir/log_DDMMYYYY_HHMMSS.cbor) unless --no-log is given.

With --target the mix becomes the target color of the session and is not
logged. With --silico no device is used: the color is computed from the
pure dye readings plus noise (controller.silicoNoise) and logged under
controller.silicoLogDir.`,
	Args: cobra.ExactArgs(4),
	RunE: runMix,
}

func init() {
	rootCmd.AddCommand(mixCmd)
	mixCmd.Flags().BoolVar(&mixTarget, "target", false, "Set the mix as the target color instead of logging it")
	mixCmd.Flags().BoolVar(&mixSilico, "silico", false, "Simulate the mix without a device")
	mixCmd.Flags().BoolVar(&mixNoLog, "no-log", false, "Do not write a session log")
	mixCmd.Flags().Int64Var(&mixSeed, "seed", 0, "Noise seed for --silico (0 uses the clock)")
}

func parseMixture(args []string) ([]float64, error) {
	mixture := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q for %s: %w", a, host.MixturePumps[i], err)
		}
		mixture[i] = v
	}
	return mixture, nil
}

func runMix(cmd *cobra.Command, args []string) error {
	mixture, err := parseMixture(args)
	if err != nil {
		return err
	}
	if _, err := host.NormalizeMixture(mixture); err != nil {
		return err
	}

	var log *mixlog.Writer
	if !mixNoLog && !mixTarget {
		dir, prefix := cfg.Controller.LogDir, mixlog.HardwarePrefix
		if mixSilico {
			dir, prefix = cfg.Controller.SilicoLogDir, mixlog.SilicoPrefix
		}
		log, err = mixlog.Create(dir, prefix, time.Now())
		if err != nil {
			return err
		}
		defer log.Close()
	}

	mixOnce := func(ctx context.Context, m host.Mixer) error {
		var color []float64
		var err error
		if mixTarget {
			color, err = m.ChangeTarget(ctx, mixture)
		} else {
			color, err = m.MixColor(ctx, mixture, false)
		}
		if err != nil {
			return err
		}
		fmt.Printf("Mixture [R G B Y]: %v\n", mixture)
		fmt.Printf("Measured: %s\n", renderSwatch(color))
		if log != nil {
			fmt.Printf("Logged to %s\n", log.Path())
		}
		return nil
	}

	if mixSilico {
		seed := mixSeed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return mixOnce(ctx, host.NewSilicoController(cfg.Controller.SilicoNoise, seed, log, logger))
	}

	return withPumpController(cmd, log, func(ctx context.Context, pc *host.PumpController) error {
		return mixOnce(ctx, pc)
	})
}

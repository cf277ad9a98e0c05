// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/mixbot/pkg/mixlog"
)

var logJSON bool

var logCmd = &cobra.Command{
	Use:   "log <file>",
	Short: "Print a mixing session log",
	Long: `Decode a session log written by 'mixbot mix' and print every record:
the mixture, the measured color and, when a target was set, the target and
the distance to it.`,
	Args: cobra.ExactArgs(1),
	RunE: runLog,
}

func init() {
	rootCmd.AddCommand(logCmd)
	logCmd.Flags().BoolVar(&logJSON, "json", false, "Print records as JSON lines")
}

func runLog(cmd *cobra.Command, args []string) error {
	records, err := mixlog.ReadFile(args[0])
	if err != nil {
		return err
	}

	if logJSON {
		for _, r := range records {
			out, err := json.Marshal(r)
			if err != nil {
				return err
			}
			fmt.Println(string(out))
		}
		return nil
	}

	fmt.Printf("Mixbot - Session Log\n")
	fmt.Printf("File: %s\n", args[0])
	fmt.Printf("Records: %d\n\n", len(records))

	for i, r := range records {
		fmt.Printf("#%d [%s] run %s\n", i+1, r.Time.Format("2006-01-02 15:04:05"), shortID(r.RunID))
		fmt.Printf("  Mixture: %s\n", formatFloats(r.Mixture))
		fmt.Printf("  Color:   %s\n", renderSwatch(r.Measurement))
		if r.HasTarget() {
			fmt.Printf("  Target:  %s (distance %.1f)\n", renderSwatch(r.TargetMeasurement), colorDistance(r.Measurement, r.TargetMeasurement))
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatFloats(v []float64) string {
	s := "["
	for i, f := range v {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%.3f", f)
	}
	return s + "]"
}

// colorDistance is the Euclidean distance between two RGB readings
func colorDistance(a, b []float64) float64 {
	var sum float64
	for i := 0; i < len(a) && i < len(b); i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

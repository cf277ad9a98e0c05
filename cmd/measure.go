// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/mixbot/pkg/host"
)

var measureJSON bool

var measureCmd = &cobra.Command{
	Use:   "measure",
	Short: "Measure the color of the test cell",
	Long: `Send <Meas> and print the averaged RGB reading of the cell.

The device lights the cell, waits for the sensor to settle, takes three
samples and replies with <RGB:r,g,b> about 1.3 seconds later.`,
	RunE: runMeasure,
}

func init() {
	rootCmd.AddCommand(measureCmd)
	measureCmd.Flags().BoolVar(&measureJSON, "json", false, "Print the reading as a JSON array")
}

func runMeasure(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	client, _, err := OpenClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	rgb, err := client.Measure(ctx)
	if err != nil {
		return err
	}

	if measureJSON {
		out, err := json.Marshal(rgb.Slice())
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	fmt.Println(renderSwatch(rgb.Slice()))
	return nil
}

// renderSwatch prints an RGB reading on a background of that color
func renderSwatch(rgb []float64) string {
	if len(rgb) < 3 {
		return fmt.Sprintf("%v", rgb)
	}
	r, g, b := rgb[0], rgb[1], rgb[2]
	hex := host.Hex(r, g, b)
	style := lipgloss.NewStyle().
		Background(lipgloss.Color(hex)).
		Foreground(lipgloss.Color(host.TextColor(r, g, b))).
		Padding(0, 2)
	return style.Render(fmt.Sprintf("R %3.0f  G %3.0f  B %3.0f  %s", r, g, b, hex))
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"
)

// autoPortDescriptions are the adapter descriptions picked by --auto
var autoPortDescriptions = []string{"USB Serial", "USB-Serial"}

// ErrNoUSBSerialPort is returned by --auto when no adapter matches
var ErrNoUSBSerialPort = errors.New("no USB serial port found, pass --port or pick one from 'mixbot ports'")

var portsAuto bool

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Long: `List the serial ports of this machine with their USB details.

With --auto only the port the host commands would pick is printed: the
first one whose description is "USB Serial" or "USB-Serial", which is how
the common USB-to-serial adapters on the mixing boards identify.

Exit codes:
  0 - Ports listed (or a port picked with --auto)
  1 - No ports found (or no USB serial port with --auto)
  2 - Enumeration failed`,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
	portsCmd.Flags().BoolVar(&portsAuto, "auto", false, "Print only the auto-detected USB serial port")
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Enumeration error: %v\n", err)
		os.Exit(2)
	}

	if portsAuto {
		name, err := pickSerialPort(ports)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		fmt.Println(name)
		return nil
	}

	fmt.Printf("Mixbot - Serial Ports\n\n")
	if len(ports) == 0 {
		fmt.Printf("No serial ports found.\n")
		os.Exit(1)
	}
	for _, p := range ports {
		fmt.Printf("%s\n", p.Name)
		if p.IsUSB {
			fmt.Printf("  Description: %s\n", portDescription(p))
			fmt.Printf("  Hardware ID: USB VID:PID=%s:%s SER=%s\n", p.VID, p.PID, p.SerialNumber)
		} else {
			fmt.Printf("  Description: n/a\n")
		}
	}
	return nil
}

// portDescription is the product string, as reported by the adapter
func portDescription(p *enumerator.PortDetails) string {
	if p.Product == "" {
		return "n/a"
	}
	return p.Product
}

// pickSerialPort returns the first port whose description names a USB
// serial adapter
func pickSerialPort(ports []*enumerator.PortDetails) (string, error) {
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		desc := portDescription(p)
		for _, want := range autoPortDescriptions {
			if desc == want {
				return p.Name, nil
			}
		}
	}
	return "", ErrNoUSBSerialPort
}

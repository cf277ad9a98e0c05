// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Mixbot - Color Mixing Robot
//
// A CLI tool that runs the mixing robot firmware on a simulated bench and
// drives it from the host side: pumps, measurements and mixing sessions.

package main

import (
	"os"

	"github.com/Thermoquad/mixbot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

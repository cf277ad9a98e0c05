// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"time"

	"github.com/Thermoquad/mixbot/pkg/firmware"
)

// Options configures a simulated bench
type Options struct {
	// Fluids maps pump pins to the fluid they move
	Fluids map[int]Fluid
	// FlowRate is the volume pumped per second of activation
	FlowRate float64
	// NoiseStd is the standard deviation of the sensor noise
	NoiseStd float64
	// Seed seeds the sensor noise; zero uses the current time
	Seed int64
	// Clock drives the pumps and the controller; nil uses a SystemClock
	Clock firmware.Clock
}

// DefaultFluids is the pump wiring of the standard bench
func DefaultFluids() map[int]Fluid {
	return map[int]Fluid{
		2: FluidRed,
		3: FluidGreen,
		4: FluidBlue,
		5: FluidYellow,
		6: FluidWater,
		7: FluidDrain,
	}
}

// DefaultOptions returns a noiseless bench with the standard wiring and
// a flow rate of one volume unit per second
func DefaultOptions() Options {
	return Options{
		Fluids:   DefaultFluids(),
		FlowRate: 1.0,
	}
}

// Bench is a complete set of simulated peripherals sharing one cell
type Bench struct {
	Clock     firmware.Clock
	Cell      *Cell
	Pumps     *Pumps
	Sensor    *Sensor
	Indicator *Indicator
}

// NewBench wires the simulated peripherals together
func NewBench(opts Options) *Bench {
	clock := opts.Clock
	if clock == nil {
		clock = NewSystemClock()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	fluids := opts.Fluids
	if fluids == nil {
		fluids = DefaultFluids()
	}

	cell := NewCell()
	return &Bench{
		Clock:     clock,
		Cell:      cell,
		Pumps:     NewPumps(clock, cell, fluids, opts.FlowRate),
		Sensor:    NewSensor(cell, opts.NoiseStd, seed),
		Indicator: NewIndicator(),
	}
}

// Hardware returns the bench as controller hardware
func (b *Bench) Hardware() firmware.Hardware {
	return firmware.Hardware{
		Actuator:  b.Pumps,
		Sensor:    b.Sensor,
		Indicator: b.Indicator,
		Clock:     b.Clock,
	}
}

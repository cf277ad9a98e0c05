// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"fmt"
	"strings"
	"sync"
)

// Fluid is what a pump moves
type Fluid int

const (
	FluidNone Fluid = iota
	FluidRed
	FluidGreen
	FluidBlue
	FluidYellow
	FluidWater
	FluidDrain
)

// String returns the single-letter pump name used in configuration
func (f Fluid) String() string {
	switch f {
	case FluidRed:
		return "R"
	case FluidGreen:
		return "G"
	case FluidBlue:
		return "B"
	case FluidYellow:
		return "Y"
	case FluidWater:
		return "W"
	case FluidDrain:
		return "D"
	default:
		return "-"
	}
}

// ParseFluid maps a pump name (R, G, B, Y, W, D) to a fluid
func ParseFluid(name string) (Fluid, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "R":
		return FluidRed, nil
	case "G":
		return FluidGreen, nil
	case "B":
		return FluidBlue, nil
	case "Y":
		return FluidYellow, nil
	case "W":
		return FluidWater, nil
	case "D":
		return FluidDrain, nil
	}
	return FluidNone, fmt.Errorf("unknown pump %q", name)
}

// Dyes are the mixable fluids, in mixture order
var Dyes = []Fluid{FluidRed, FluidGreen, FluidBlue, FluidYellow}

// Coefficients are the RGB readings of each pure dye
var Coefficients = map[Fluid][3]float64{
	FluidRed:    {255, 0, 0},
	FluidGreen:  {0, 255, 0},
	FluidBlue:   {0, 0, 255},
	FluidYellow: {255, 255, 0},
}

// MixColor returns the noiseless reading of a dye mixture given as
// fractions in Dyes order. Fractions need not be normalized; negative
// entries count as zero. An all-zero mixture reads black.
func MixColor(fractions [4]float64) [3]float64 {
	var total float64
	for i, f := range fractions {
		if f < 0 {
			fractions[i] = 0
			continue
		}
		total += f
	}
	var out [3]float64
	if total == 0 {
		return out
	}
	for i, dye := range Dyes {
		w := fractions[i] / total
		coef := Coefficients[dye]
		for ch := range out {
			out[ch] += w * coef[ch]
		}
	}
	return out
}

// Cell is the sample cell the pumps fill and the sensor reads
type Cell struct {
	mu      sync.Mutex
	volumes map[Fluid]float64
}

// NewCell creates an empty cell
func NewCell() *Cell {
	return &Cell{volumes: make(map[Fluid]float64)}
}

// Add pours volume of f into the cell. The drain empties it instead.
func (c *Cell) Add(f Fluid, volume float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch f {
	case FluidDrain:
		c.volumes = make(map[Fluid]float64)
	case FluidNone:
	default:
		if volume > 0 {
			c.volumes[f] += volume
		}
	}
}

// Volume returns the volume of f in the cell
func (c *Cell) Volume(f Fluid) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volumes[f]
}

// Total returns the total liquid volume
func (c *Cell) Total() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var t float64
	for _, v := range c.volumes {
		t += v
	}
	return t
}

// Color returns the noiseless reading of the cell. Dyes mix by volume and
// water does not tint. A cell holding only water reads white, an empty cell
// reads black.
func (c *Cell) Color() [3]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var fractions [4]float64
	var dye float64
	for i, f := range Dyes {
		fractions[i] = c.volumes[f]
		dye += c.volumes[f]
	}
	if dye == 0 {
		if c.volumes[FluidWater] > 0 {
			return [3]float64{255, 255, 255}
		}
		return [3]float64{}
	}
	return MixColor(fractions)
}

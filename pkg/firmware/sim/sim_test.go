// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMixColor(t *testing.T) {
	tests := []struct {
		name      string
		fractions [4]float64
		want      [3]float64
	}{
		{"pure red", [4]float64{1, 0, 0, 0}, [3]float64{255, 0, 0}},
		{"pure yellow", [4]float64{0, 0, 0, 2}, [3]float64{255, 255, 0}},
		{"red and blue", [4]float64{1, 0, 1, 0}, [3]float64{127.5, 0, 127.5}},
		{"negatives ignored", [4]float64{-1, 1, 0, 0}, [3]float64{0, 255, 0}},
		{"all zero", [4]float64{}, [3]float64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MixColor(tt.fractions)
			for i := range got {
				assert.InDelta(t, tt.want[i], got[i], 1e-9)
			}
		})
	}
}

func TestParseFluid(t *testing.T) {
	for _, f := range []Fluid{FluidRed, FluidGreen, FluidBlue, FluidYellow, FluidWater, FluidDrain} {
		got, err := ParseFluid(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
	got, err := ParseFluid(" w ")
	require.NoError(t, err)
	assert.Equal(t, FluidWater, got)

	_, err = ParseFluid("Q")
	assert.Error(t, err)
}

func TestCell(t *testing.T) {
	c := NewCell()
	assert.Equal(t, [3]float64{}, c.Color(), "empty cell reads black")

	c.Add(FluidWater, 10)
	assert.Equal(t, [3]float64{255, 255, 255}, c.Color(), "water reads white")

	c.Add(FluidBlue, 1)
	assert.Equal(t, [3]float64{0, 0, 255}, c.Color())
	assert.InDelta(t, 11, c.Total(), 1e-9)

	c.Add(FluidDrain, 0)
	assert.Zero(t, c.Total())
	assert.Zero(t, c.Volume(FluidBlue))
}

func TestPumps(t *testing.T) {
	clock := NewManualClock(0)
	cell := NewCell()
	p := NewPumps(clock, cell, DefaultFluids(), 2.0)

	assert.Error(t, p.ActivatePump(2), "unconfigured pin")

	require.NoError(t, p.ConfigureOutput(2))
	require.NoError(t, p.ActivatePump(2))
	assert.True(t, p.Active(2))

	clock.Advance(1500)
	require.NoError(t, p.DeactivatePump(2))
	assert.False(t, p.Active(2))
	assert.InDelta(t, 1.5, p.Dispensed(2), 1e-9)
	assert.InDelta(t, 3.0, cell.Volume(FluidRed), 1e-9)

	// Deactivating an idle pump records nothing.
	require.NoError(t, p.DeactivatePump(2))
	assert.Len(t, p.History(), 2)
}

func TestPumps_DrainEmptiesCell(t *testing.T) {
	clock := NewManualClock(0)
	cell := NewCell()
	p := NewPumps(clock, cell, DefaultFluids(), 1.0)
	cell.Add(FluidRed, 5)

	require.NoError(t, p.ConfigureOutput(7))
	require.NoError(t, p.ActivatePump(7))
	clock.Advance(100)
	require.NoError(t, p.DeactivatePump(7))
	assert.Zero(t, cell.Total())
}

func TestSensor(t *testing.T) {
	cell := NewCell()
	cell.Add(FluidGreen, 1)
	s := NewSensor(cell, 0, 1)

	_, _, _, err := s.RawRGB()
	assert.ErrorIs(t, err, ErrSensorNotStarted)

	require.NoError(t, s.Begin())
	r, g, b, err := s.RawRGB()
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 255, 0}, []float64{r, g, b})

	s.FailNext(1)
	_, _, _, err = s.RawRGB()
	assert.ErrorIs(t, err, ErrSensorRead)
	assert.Equal(t, 2, s.Reads())
}

func TestSensor_NoiseClipped(t *testing.T) {
	s := NewSensor(nil, 200, 42)
	require.NoError(t, s.Begin())
	s.SetFixed(&[3]float64{250, 5, 128})

	for i := 0; i < 200; i++ {
		r, g, b, err := s.RawRGB()
		require.NoError(t, err)
		for _, v := range []float64{r, g, b} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 255.0)
		}
	}
}

func TestIndicator(t *testing.T) {
	ind := NewIndicator()
	require.NoError(t, ind.Begin())
	assert.False(t, ind.Lit())

	require.NoError(t, ind.SetColor(3, 255, 255, 255))
	assert.True(t, ind.Lit())
	assert.Error(t, ind.SetColor(IndicatorLEDs, 1, 1, 1))

	require.NoError(t, ind.Off())
	assert.False(t, ind.Lit())
	assert.Equal(t, 1, ind.TimesLit())
}

func TestManualClockWraps(t *testing.T) {
	c := NewManualClock(0xFFFFFFFF)
	c.Advance(2)
	assert.Equal(t, uint32(1), c.Millis())
	c.Set(42)
	assert.Equal(t, uint32(42), c.Millis())
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"errors"
	"math"
	"math/rand"
	"sync"
)

// ErrSensorNotStarted is returned by RawRGB before Begin
var ErrSensorNotStarted = errors.New("sensor not started")

// ErrSensorRead is returned for injected read failures
var ErrSensorRead = errors.New("sensor read failed")

// Sensor reads the cell color with Gaussian noise clipped to [0, 255]
type Sensor struct {
	mu       sync.Mutex
	cell     *Cell
	noiseStd float64
	rng      *rand.Rand
	started  bool
	failNext int
	fixed    *[3]float64
	reads    int
}

// NewSensor creates a sensor looking at cell
func NewSensor(cell *Cell, noiseStd float64, seed int64) *Sensor {
	return &Sensor{
		cell:     cell,
		noiseStd: noiseStd,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Begin implements firmware.Sensor
func (s *Sensor) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

// RawRGB implements firmware.Sensor
func (s *Sensor) RawRGB() (float64, float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return 0, 0, 0, ErrSensorNotStarted
	}
	s.reads++
	if s.failNext > 0 {
		s.failNext--
		return 0, 0, 0, ErrSensorRead
	}

	var base [3]float64
	switch {
	case s.fixed != nil:
		base = *s.fixed
	case s.cell != nil:
		base = s.cell.Color()
	}

	var out [3]float64
	for i, v := range base {
		if s.noiseStd > 0 {
			v += s.rng.NormFloat64() * s.noiseStd
		}
		out[i] = math.Min(math.Max(v, 0), 255)
	}
	return out[0], out[1], out[2], nil
}

// FailNext makes the next n reads fail
func (s *Sensor) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// SetFixed makes the sensor report c (plus noise) regardless of the cell.
// A nil c reverts to reading the cell.
func (s *Sensor) SetFixed(c *[3]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixed = c
}

// Reads returns the number of read attempts since Begin
func (s *Sensor) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package firmware

import (
	"fmt"
	"time"
)

// Averaging selects how measurement samples are combined
type Averaging string

const (
	// AveragingMean divides the sum of the successful samples by their count
	AveragingMean Averaging = "mean"

	// AveragingLegacy reproduces the Arduino firmware's arithmetic: every
	// sample overwrites the accumulator, which is then doubled, so the
	// result is 2/3 of the last sample.
	AveragingLegacy Averaging = "legacy"
)

// Config holds the device parameters
type Config struct {
	// PumpPins are configured as outputs at start-up. Mix commands naming
	// any other pin are rejected.
	PumpPins []int

	// Measurement timing
	SettleTime     time.Duration
	SampleInterval time.Duration
	Cooldown       time.Duration
	Samples        int

	// Indicator
	IndicatorLEDs []int
	Brightness    uint8

	Averaging Averaging
}

// DefaultConfig returns the Arduino board configuration
func DefaultConfig() Config {
	return Config{
		PumpPins:       []int{2, 3, 4, 5, 6, 7, 8, 9},
		SettleTime:     500 * time.Millisecond,
		SampleInterval: 100 * time.Millisecond,
		Cooldown:       500 * time.Millisecond,
		Samples:        3,
		IndicatorLEDs:  []int{3, 4, 5, 6, 7, 8, 9},
		Brightness:     31,
		Averaging:      AveragingMean,
	}
}

// Validate checks the configuration for values the controller cannot run with
func (c Config) Validate() error {
	if len(c.PumpPins) == 0 {
		return fmt.Errorf("no pump pins configured")
	}
	for _, p := range c.PumpPins {
		if p < 0 {
			return fmt.Errorf("invalid pump pin %d", p)
		}
	}
	if c.Samples < 1 {
		return fmt.Errorf("samples must be at least 1, got %d", c.Samples)
	}
	if c.SettleTime < 0 || c.SampleInterval < 0 || c.Cooldown < 0 {
		return fmt.Errorf("measurement timings must not be negative")
	}
	switch c.Averaging {
	case AveragingMean, AveragingLegacy:
	default:
		return fmt.Errorf("unknown averaging mode %q (want %q or %q)", c.Averaging, AveragingMean, AveragingLegacy)
	}
	return nil
}

func millis(d time.Duration) uint32 {
	return uint32(d / time.Millisecond)
}

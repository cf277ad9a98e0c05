// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"fmt"
	"sync"
)

// IndicatorLEDs is the length of the simulated LED stick
const IndicatorLEDs = 10

// LED is one pixel of the stick
type LED struct {
	R, G, B uint8
}

// Indicator simulates the LED stick lighting the cell
type Indicator struct {
	mu         sync.Mutex
	started    bool
	brightness uint8
	leds       [IndicatorLEDs]LED
	onCount    int
}

// NewIndicator creates a dark indicator
func NewIndicator() *Indicator {
	return &Indicator{}
}

// Begin implements firmware.Indicator
func (ind *Indicator) Begin() error {
	ind.mu.Lock()
	defer ind.mu.Unlock()
	ind.started = true
	return nil
}

// SetBrightness implements firmware.Indicator
func (ind *Indicator) SetBrightness(level uint8) error {
	ind.mu.Lock()
	defer ind.mu.Unlock()
	ind.brightness = level
	return nil
}

// SetColor implements firmware.Indicator
func (ind *Indicator) SetColor(led int, r, g, b uint8) error {
	ind.mu.Lock()
	defer ind.mu.Unlock()

	if led < 0 || led >= IndicatorLEDs {
		return fmt.Errorf("led %d out of range [0, %d)", led, IndicatorLEDs)
	}
	wasLit := ind.lit()
	ind.leds[led] = LED{R: r, G: g, B: b}
	if !wasLit && ind.lit() {
		ind.onCount++
	}
	return nil
}

// Off implements firmware.Indicator
func (ind *Indicator) Off() error {
	ind.mu.Lock()
	defer ind.mu.Unlock()
	ind.leds = [IndicatorLEDs]LED{}
	return nil
}

// Lit reports whether any LED is on
func (ind *Indicator) Lit() bool {
	ind.mu.Lock()
	defer ind.mu.Unlock()
	return ind.lit()
}

// LED returns the color of led
func (ind *Indicator) LED(led int) LED {
	ind.mu.Lock()
	defer ind.mu.Unlock()
	if led < 0 || led >= IndicatorLEDs {
		return LED{}
	}
	return ind.leds[led]
}

// Brightness returns the last brightness set
func (ind *Indicator) Brightness() uint8 {
	ind.mu.Lock()
	defer ind.mu.Unlock()
	return ind.brightness
}

// TimesLit returns how often the stick went from dark to lit
func (ind *Indicator) TimesLit() int {
	ind.mu.Lock()
	defer ind.mu.Unlock()
	return ind.onCount
}

func (ind *Indicator) lit() bool {
	for _, l := range ind.leds {
		if l != (LED{}) {
			return true
		}
	}
	return false
}

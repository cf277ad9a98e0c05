// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sim provides simulated peripherals for the firmware controller:
// a wall or manual clock, pump relays feeding a sample cell, a color sensor
// reading that cell, and an LED indicator.
package sim

import (
	"sync"
	"time"
)

// SystemClock counts milliseconds since it was created, wrapping at 2^32
type SystemClock struct {
	start time.Time
}

// NewSystemClock creates a clock starting at zero
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Millis implements firmware.Clock
func (c *SystemClock) Millis() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

// ManualClock only moves when told to
type ManualClock struct {
	mu  sync.Mutex
	now uint32
}

// NewManualClock creates a clock reading start
func NewManualClock(start uint32) *ManualClock {
	return &ManualClock{now: start}
}

// Millis implements firmware.Clock
func (c *ManualClock) Millis() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by ms, wrapping like the hardware counter
func (c *ManualClock) Advance(ms uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += ms
}

// Set moves the clock to ms
func (c *ManualClock) Set(ms uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = ms
}

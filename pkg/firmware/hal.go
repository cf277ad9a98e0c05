// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package firmware implements the mixing robot's device-side controller.
//
// The controller is hardware agnostic: pumps, the color sensor, the LED
// indicator and the millisecond clock are reached through the interfaces in
// this file. Package sim provides simulated implementations so the same core
// can be served over a serial port or a WebSocket.
package firmware

import "github.com/Thermoquad/mixbot/pkg/mixproto"

// Actuator drives the pump relays.
// Implementations hide relay polarity: ActivatePump always starts the pump.
type Actuator interface {
	// ConfigureOutput makes pin a digital output in the inactive state
	ConfigureOutput(pin int) error

	// ActivatePump starts the pump wired to pin
	ActivatePump(pin int) error

	// DeactivatePump stops the pump wired to pin
	DeactivatePump(pin int) error
}

// Sensor is the color sensor
type Sensor interface {
	// Begin initializes the sensor and turns its own light off
	Begin() error

	// RawRGB takes one reading. Channels are non-negative.
	RawRGB() (r, g, b float64, err error)
}

// Indicator is the LED stick lighting the sample cell
type Indicator interface {
	Begin() error
	SetBrightness(level uint8) error
	SetColor(led int, r, g, b uint8) error
	Off() error
}

// Clock is a free-running millisecond counter. It wraps at 2^32.
type Clock interface {
	Millis() uint32
}

// ByteSource delivers received serial bytes without blocking
type ByteSource interface {
	// TryReadByte returns the next byte, or false if none is available
	TryReadByte() (byte, bool)
}

// Hardware bundles the peripherals the controller drives
type Hardware struct {
	Actuator  Actuator
	Sensor    Sensor
	Indicator Indicator
	Clock     Clock
}

// Observer receives controller events, e.g. for metrics export.
// Methods are called from the polling goroutine and must not block.
type Observer interface {
	FrameDispatched(cmd mixproto.Command, frameErr, argErr error)
	PumpChanged(pin int, active bool)
	MeasurementDone(color mixproto.RGB, failedSamples int)
	ReplySent(kind mixproto.ReplyKind)
}

type nopObserver struct{}

func (nopObserver) FrameDispatched(mixproto.Command, error, error) {}
func (nopObserver) PumpChanged(int, bool)                          {}
func (nopObserver) MeasurementDone(mixproto.RGB, int)              {}
func (nopObserver) ReplySent(mixproto.ReplyKind)                   {}

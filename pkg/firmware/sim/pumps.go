// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"fmt"
	"sync"

	"github.com/Thermoquad/mixbot/pkg/firmware"
)

// PumpEvent is one relay transition
type PumpEvent struct {
	Pin    int
	Active bool
	At     uint32
}

// Pumps simulates the relay board. A pump pours FlowRate volume units per
// second of activation into the cell.
type Pumps struct {
	mu         sync.Mutex
	clock      firmware.Clock
	cell       *Cell
	fluids     map[int]Fluid
	flowRate   float64
	configured map[int]bool
	active     map[int]uint32
	history    []PumpEvent
	dispensed  map[int]float64
}

// NewPumps creates a relay board. fluids maps pins to the fluid their pump
// moves; unmapped pins drive nothing.
func NewPumps(clock firmware.Clock, cell *Cell, fluids map[int]Fluid, flowRate float64) *Pumps {
	return &Pumps{
		clock:      clock,
		cell:       cell,
		fluids:     fluids,
		flowRate:   flowRate,
		configured: make(map[int]bool),
		active:     make(map[int]uint32),
		dispensed:  make(map[int]float64),
	}
}

// ConfigureOutput implements firmware.Actuator
func (p *Pumps) ConfigureOutput(pin int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.configured[pin] = true
	return nil
}

// ActivatePump implements firmware.Actuator
func (p *Pumps) ActivatePump(pin int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.configured[pin] {
		return fmt.Errorf("pin %d is not an output", pin)
	}
	now := p.clock.Millis()
	if _, on := p.active[pin]; !on {
		p.active[pin] = now
	}
	p.history = append(p.history, PumpEvent{Pin: pin, Active: true, At: now})
	return nil
}

// DeactivatePump implements firmware.Actuator
func (p *Pumps) DeactivatePump(pin int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.configured[pin] {
		return fmt.Errorf("pin %d is not an output", pin)
	}
	now := p.clock.Millis()
	if since, on := p.active[pin]; on {
		delete(p.active, pin)
		seconds := float64(now-since) / 1000
		p.dispensed[pin] += seconds
		if p.cell != nil {
			p.cell.Add(p.fluids[pin], seconds*p.flowRate)
		}
		p.history = append(p.history, PumpEvent{Pin: pin, Active: false, At: now})
	}
	return nil
}

// Active reports whether the pump on pin is running
func (p *Pumps) Active(pin int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, on := p.active[pin]
	return on
}

// Configured reports whether pin was configured as an output
func (p *Pumps) Configured(pin int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.configured[pin]
}

// Dispensed returns the total run time of the pump on pin, in seconds
func (p *Pumps) Dispensed(pin int) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dispensed[pin]
}

// History returns a copy of the relay transitions
func (p *Pumps) History() []PumpEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PumpEvent, len(p.history))
	copy(out, p.history)
	return out
}

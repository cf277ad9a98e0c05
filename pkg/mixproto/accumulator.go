// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mixproto

import "time"

// Accumulator implements the frame accumulation state machine.
//
// States are Idle and Open. A start marker always (re)opens a frame and
// discards partial content; an end marker closes an open frame. Bytes seen
// while Idle are ignored.
type Accumulator struct {
	state    int
	buffer   []byte
	length   int
	dropped  int
	ready    bool
	capacity int
}

// NewAccumulator creates an accumulator holding capacity-1 content bytes.
// Capacities below 2 are raised to 2.
func NewAccumulator(capacity int) *Accumulator {
	if capacity < 2 {
		capacity = 2
	}
	return &Accumulator{
		state:    stateIdle,
		buffer:   make([]byte, capacity),
		capacity: capacity,
	}
}

// NewDeviceAccumulator creates an accumulator sized like the device buffer
func NewDeviceAccumulator() *Accumulator {
	return NewAccumulator(Capacity)
}

// Reset returns the accumulator to Idle and discards partial content
func (a *Accumulator) Reset() {
	a.state = stateIdle
	a.length = 0
	a.dropped = 0
	a.ready = false
}

// Open reports whether a frame is currently being accumulated
func (a *Accumulator) Open() bool {
	return a.state == stateOpen
}

// Len returns the number of content bytes currently held
func (a *Accumulator) Len() int {
	return a.length
}

// Capacity returns the buffer capacity, terminator included
func (a *Accumulator) Capacity() int {
	return a.capacity
}

// Ready reports whether a frame was completed and not yet acknowledged.
// TakeReady clears the flag.
func (a *Accumulator) Ready() bool {
	return a.ready
}

// TakeReady returns the ready flag and clears it
func (a *Accumulator) TakeReady() bool {
	r := a.ready
	a.ready = false
	return r
}

// DecodeByte processes a single byte.
// Returns the completed frame when b closes one, nil otherwise.
// A truncated frame is returned together with a *FrameTooLongError.
func (a *Accumulator) DecodeByte(b byte) (*Frame, error) {
	var (
		frame *Frame
		err   error
	)

	// The order of these checks is significant: the end marker is handled
	// before buffering so it is never appended, and the start marker last so
	// it re-arms after any buffering.
	if b == EndMarker && a.state == stateOpen {
		a.state = stateIdle
		a.ready = true
		frame = &Frame{
			payload:   append([]byte(nil), a.buffer[:a.length]...),
			dropped:   a.dropped,
			timestamp: time.Now(),
		}
		if a.dropped > 0 {
			err = &FrameTooLongError{Capacity: a.capacity, Dropped: a.dropped}
		}
	}

	if a.state == stateOpen {
		a.buffer[a.length] = b
		a.length++
		if a.length == a.capacity {
			// Pin at capacity-1: the slot is reused by the next byte and
			// finally taken by the terminator.
			a.length = a.capacity - 1
			a.dropped++
		}
	}

	if b == StartMarker {
		a.length = 0
		a.dropped = 0
		a.state = stateOpen
	}

	return frame, err
}

// Feed decodes a byte slice and returns every completed frame, in order.
// Truncation errors are reported through onErr when it is not nil.
func (a *Accumulator) Feed(data []byte, onErr func(*Frame, error)) []*Frame {
	var frames []*Frame
	for _, b := range data {
		frame, err := a.DecodeByte(b)
		if err != nil && onErr != nil {
			onErr(frame, err)
		}
		if frame != nil {
			frames = append(frames, frame)
		}
	}
	return frames
}

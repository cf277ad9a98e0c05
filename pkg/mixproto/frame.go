// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mixproto

import (
	"errors"
	"fmt"
	"time"
)

// ErrFrameTooLong reports that a frame carried more content than the
// accumulator capacity. The frame is still completed, truncated.
var ErrFrameTooLong = errors.New("frame too long")

// FrameTooLongError carries the details of a truncated frame
type FrameTooLongError struct {
	Capacity int
	Dropped  int
}

// Error implements the error interface
func (e *FrameTooLongError) Error() string {
	return fmt.Sprintf("frame too long: kept %d bytes, dropped %d", e.Capacity-1, e.Dropped)
}

// Is makes errors.Is(err, ErrFrameTooLong) match
func (e *FrameTooLongError) Is(target error) bool {
	return target == ErrFrameTooLong
}

// Frame is a completed message, frozen at the end marker
type Frame struct {
	payload   []byte
	dropped   int
	timestamp time.Time
}

// NewFrame creates a frame from a payload (framing markers excluded)
func NewFrame(payload []byte) *Frame {
	p := make([]byte, len(payload))
	copy(p, payload)
	return &Frame{payload: p, timestamp: time.Now()}
}

// Payload returns the frame content without markers
func (f *Frame) Payload() []byte {
	return f.payload
}

// String returns the payload as text
func (f *Frame) String() string {
	return string(f.payload)
}

// Length returns the payload length
func (f *Frame) Length() int {
	return len(f.payload)
}

// Truncated reports whether content was dropped because of the capacity limit
func (f *Frame) Truncated() bool {
	return f.dropped > 0
}

// Dropped returns the number of content bytes that did not fit
func (f *Frame) Dropped() int {
	return f.dropped
}

// Timestamp returns the time the frame was completed
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

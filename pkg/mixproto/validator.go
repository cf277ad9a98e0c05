// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mixproto

import "fmt"

// AnomalyType represents different types of reply anomalies
type AnomalyType int

const (
	AnomalyTruncated AnomalyType = iota
	AnomalyTicksBackwards
	AnomalyRGBOutOfRange
	AnomalyEchoMismatch
)

// MaxChannelValue is the largest plausible averaged channel reading
const MaxChannelValue = 255

// ValidationError represents a reply validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// Validator checks a stream of replies for anomalies that decode fine but
// indicate a problem on the link or the device
type Validator struct {
	lastTicks    uint32
	haveTicks    bool
	expectedEcho string
}

// NewValidator creates a reply validator
func NewValidator() *Validator {
	return &Validator{}
}

// Expect sets the command payload the next acknowledgement should echo.
// An empty string disables the echo check.
func (v *Validator) Expect(payload string) {
	v.expectedEcho = payload
}

// Reset forgets the tick history, e.g. after the device rebooted
func (v *Validator) Reset() {
	v.haveTicks = false
	v.expectedEcho = ""
}

// Validate returns the anomalies found in r (empty if r is fine)
func (v *Validator) Validate(r Reply) []ValidationError {
	errors := []ValidationError{}

	if r.Frame != nil && r.Frame.Truncated() {
		errors = append(errors, ValidationError{
			Type:    AnomalyTruncated,
			Message: fmt.Sprintf("frame truncated, %d bytes dropped", r.Frame.Dropped()),
			Details: map[string]interface{}{"dropped": r.Frame.Dropped()},
		})
	}

	switch r.Kind {
	case ReplyReady:
		// The device restarted; its clock did too.
		v.Reset()

	case ReplyAck:
		if v.haveTicks && r.Ticks < v.lastTicks {
			errors = append(errors, ValidationError{
				Type:    AnomalyTicksBackwards,
				Message: fmt.Sprintf("ack time went backwards: %d -> %d", v.lastTicks, r.Ticks),
				Details: map[string]interface{}{"previous": v.lastTicks, "current": r.Ticks},
			})
		}
		v.lastTicks = r.Ticks
		v.haveTicks = true

		if v.expectedEcho != "" && r.Message != v.expectedEcho {
			errors = append(errors, ValidationError{
				Type:    AnomalyEchoMismatch,
				Message: fmt.Sprintf("ack echoed %q, expected %q", r.Message, v.expectedEcho),
				Details: map[string]interface{}{"received": r.Message, "expected": v.expectedEcho},
			})
		}
		v.expectedEcho = ""

	case ReplyRGB:
		channels := []struct {
			name string
			val  int
		}{{"red", r.Color.R}, {"green", r.Color.G}, {"blue", r.Color.B}}
		for _, ch := range channels {
			name, val := ch.name, ch.val
			if val > MaxChannelValue {
				errors = append(errors, ValidationError{
					Type:    AnomalyRGBOutOfRange,
					Message: fmt.Sprintf("%s channel out of range: %d", name, val),
					Details: map[string]interface{}{"channel": name, "value": val},
				})
			}
		}
	}

	return errors
}

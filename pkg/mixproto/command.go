// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mixproto

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Verb identifies the command kind
type Verb int

const (
	VerbUnknown Verb = iota
	VerbMix
	VerbMeas
)

// String returns the wire name of the verb
func (v Verb) String() string {
	switch v {
	case VerbMix:
		return VerbNameMix
	case VerbMeas:
		return VerbNameMeas
	default:
		return "Unknown"
	}
}

// ErrCommandArgumentInvalid is the root of every argument failure
var ErrCommandArgumentInvalid = errors.New("command argument invalid")

// ErrMissingArgument is returned when a positional argument is absent
var ErrMissingArgument = fmt.Errorf("%w: missing argument", ErrCommandArgumentInvalid)

// ArgumentError describes a rejected positional argument
type ArgumentError struct {
	Verb  string
	Index int
	Name  string
	Value string
	Err   error
}

// Error implements the error interface
func (e *ArgumentError) Error() string {
	if errors.Is(e.Err, ErrMissingArgument) {
		return fmt.Sprintf("%s: argument %d (%s) missing", e.Verb, e.Index, e.Name)
	}
	return fmt.Sprintf("%s: argument %d (%s) %q: %v", e.Verb, e.Index, e.Name, e.Value, e.Err)
}

// Unwrap returns the underlying cause
func (e *ArgumentError) Unwrap() error {
	return e.Err
}

// Command is the tokenized view of a completed frame
type Command struct {
	Raw  string
	Name string
	Verb Verb
	Args []string
}

// ParseCommand splits a frame payload on the delimiter.
// Empty tokens are skipped, so "Mix,,3" yields the arguments ["3"].
func ParseCommand(payload []byte) Command {
	raw := string(payload)
	tokens := tokenize(raw)

	cmd := Command{Raw: raw}
	if len(tokens) == 0 {
		return cmd
	}

	cmd.Name = tokens[0]
	cmd.Args = tokens[1:]
	switch cmd.Name {
	case VerbNameMix:
		cmd.Verb = VerbMix
	case VerbNameMeas:
		cmd.Verb = VerbMeas
	}
	return cmd
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == Delimiter })
}

// Arg returns the positional argument at index i (0 is the first after the verb)
func (c Command) Arg(i int) (string, bool) {
	if i < 0 || i >= len(c.Args) {
		return "", false
	}
	return c.Args[i], true
}

// PumpActuation is a transient request to run one pump for a duration
type PumpActuation struct {
	Pin     int
	Seconds float64
}

// Duration converts the requested run time to a time.Duration
func (p PumpActuation) Duration() time.Duration {
	return time.Duration(p.Seconds * float64(time.Second))
}

// Millis returns the run time in whole milliseconds, as the device delay does
func (p PumpActuation) Millis() uint32 {
	return uint32(p.Seconds * 1000)
}

// PumpActuation decodes the Mix arguments: pin, then duration in seconds.
// Returns an *ArgumentError wrapping ErrCommandArgumentInvalid on failure.
func (c Command) PumpActuation() (PumpActuation, error) {
	var act PumpActuation

	pinTok, ok := c.Arg(0)
	if !ok {
		return act, &ArgumentError{Verb: c.Name, Index: 0, Name: "pin", Err: ErrMissingArgument}
	}
	pin, err := strconv.Atoi(strings.TrimSpace(pinTok))
	if err != nil {
		return act, &ArgumentError{Verb: c.Name, Index: 0, Name: "pin", Value: pinTok,
			Err: fmt.Errorf("%w: not an integer", ErrCommandArgumentInvalid)}
	}
	if pin < 0 {
		return act, &ArgumentError{Verb: c.Name, Index: 0, Name: "pin", Value: pinTok,
			Err: fmt.Errorf("%w: negative pin", ErrCommandArgumentInvalid)}
	}

	durTok, ok := c.Arg(1)
	if !ok {
		return act, &ArgumentError{Verb: c.Name, Index: 1, Name: "duration", Err: ErrMissingArgument}
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(durTok), 64)
	if err != nil {
		return act, &ArgumentError{Verb: c.Name, Index: 1, Name: "duration", Value: durTok,
			Err: fmt.Errorf("%w: not a number", ErrCommandArgumentInvalid)}
	}
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return act, &ArgumentError{Verb: c.Name, Index: 1, Name: "duration", Value: durTok,
			Err: fmt.Errorf("%w: must be a finite non-negative number", ErrCommandArgumentInvalid)}
	}

	act.Pin = pin
	act.Seconds = seconds
	return act, nil
}

// ============================================================
// Command builders
// ============================================================

// EncodeFrame wraps a payload in framing markers.
// Returns an error when the payload would not fit the device buffer or
// contains a framing marker.
func EncodeFrame(payload string) ([]byte, error) {
	if len(payload) > MaxContent {
		return nil, fmt.Errorf("payload too large: %d bytes (max %d)", len(payload), MaxContent)
	}
	if strings.ContainsAny(payload, string([]byte{StartMarker, EndMarker})) {
		return nil, fmt.Errorf("payload contains a framing marker: %q", payload)
	}
	out := make([]byte, 0, len(payload)+2)
	out = append(out, StartMarker)
	out = append(out, payload...)
	out = append(out, EndMarker)
	return out, nil
}

// MustEncodeFrame is EncodeFrame that panics on error
func MustEncodeFrame(payload string) []byte {
	out, err := EncodeFrame(payload)
	if err != nil {
		panic(fmt.Sprintf("mixproto: encode error: %v", err))
	}
	return out
}

// NewMixCommand builds the payload for running pin for the given seconds
func NewMixCommand(pin int, seconds float64) string {
	return VerbNameMix + string(Delimiter) + strconv.Itoa(pin) + string(Delimiter) +
		strconv.FormatFloat(seconds, 'f', -1, 64)
}

// NewMeasCommand builds the payload for a color measurement
func NewMeasCommand() string {
	return VerbNameMeas
}

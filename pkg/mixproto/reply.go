// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mixproto

import (
	"fmt"
	"strconv"
	"strings"
)

// ReplyKind identifies a device-to-host frame
type ReplyKind int

const (
	ReplyUnknown ReplyKind = iota
	ReplyReady
	ReplyAck
	ReplyRGB
)

// String returns a human-readable kind name
func (k ReplyKind) String() string {
	switch k {
	case ReplyReady:
		return "READY"
	case ReplyAck:
		return "ACK"
	case ReplyRGB:
		return "RGB"
	default:
		return "UNKNOWN"
	}
}

// RGB is an averaged color measurement
type RGB struct {
	R, G, B int
}

// Slice returns the channels as float64 values
func (c RGB) Slice() []float64 {
	return []float64{float64(c.R), float64(c.G), float64(c.B)}
}

// Reply is a decoded device-to-host frame
type Reply struct {
	Kind    ReplyKind
	Message string // echoed command for ACK, raw payload otherwise
	Ticks   uint32 // ACK only
	Color   RGB    // RGB only
	Frame   *Frame
}

// Ticks converts a millisecond clock reading to reply ticks
func Ticks(millis uint32) uint32 {
	return millis >> TickShift
}

// EncodeAck builds the acknowledgement frame for message at millis
func EncodeAck(message string, millis uint32) []byte {
	return []byte(fmt.Sprintf("%c%s%s%s%d%c%s",
		StartMarker, ackPrefix, message, ackTimeSep, Ticks(millis), EndMarker, LineEnding))
}

// EncodeRGB builds the measurement result frame
func EncodeRGB(c RGB) []byte {
	return []byte(fmt.Sprintf("%c%s%d,%d,%d%c%s",
		StartMarker, rgbPrefix, c.R, c.G, c.B, EndMarker, LineEnding))
}

// EncodeReady builds the start-up banner
func EncodeReady() []byte {
	return []byte(string(StartMarker) + ReadyMessage + string(EndMarker) + LineEnding)
}

// ParseReply decodes a completed device-to-host frame.
// Unrecognized payloads decode as ReplyUnknown without error; malformed
// ACK or RGB payloads return an error.
func ParseReply(f *Frame) (Reply, error) {
	payload := f.String()
	r := Reply{Kind: ReplyUnknown, Message: payload, Frame: f}

	switch {
	case strings.Contains(payload, ReadyMessage):
		r.Kind = ReplyReady

	case strings.HasPrefix(payload, ackPrefix):
		idx := strings.LastIndex(payload, ackTimeSep)
		if idx < 0 {
			return r, fmt.Errorf("ack without time field: %q", payload)
		}
		ticks, err := strconv.ParseUint(payload[idx+len(ackTimeSep):], 10, 32)
		if err != nil {
			return r, fmt.Errorf("ack time field: %w", err)
		}
		r.Kind = ReplyAck
		r.Message = payload[len(ackPrefix):max(idx, len(ackPrefix))]
		r.Ticks = uint32(ticks)

	case strings.HasPrefix(payload, rgbPrefix):
		c, err := parseRGB(payload[len(rgbPrefix):])
		if err != nil {
			return r, err
		}
		r.Kind = ReplyRGB
		r.Color = c
	}

	return r, nil
}

func parseRGB(s string) (RGB, error) {
	parts := strings.Split(s, string(Delimiter))
	if len(parts) != 3 {
		return RGB{}, fmt.Errorf("rgb: expected 3 channels, got %d", len(parts))
	}
	var vals [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return RGB{}, fmt.Errorf("rgb channel %d: %w", i, err)
		}
		if v < 0 {
			return RGB{}, fmt.Errorf("rgb channel %d: negative value %d", i, v)
		}
		vals[i] = v
	}
	return RGB{R: vals[0], G: vals[1], B: vals[2]}, nil
}

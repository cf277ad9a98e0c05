// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mixproto implements the mixbot serial protocol.
//
// The protocol is plain ASCII framed by '<' and '>'. The host sends command
// frames such as <Mix,3,0.5> or <Meas>; the device answers every command with
// an acknowledgement frame (<Msg Mix,3,0.5 Time 42>) and, for measurements, a
// second frame carrying the averaged color (<RGB:120,80,33>).
//
// This package provides the byte-at-a-time frame accumulator shared by the
// device and the host, command tokenizing, reply encoding/decoding, and
// formatting helpers.
package mixproto

// Protocol framing bytes
const (
	StartMarker = '<'
	EndMarker   = '>'
	Delimiter   = ','
)

// Buffer sizes
const (
	// Capacity is the device receive buffer size, terminator included.
	Capacity = 40
	// MaxContent is the largest command payload the device keeps.
	MaxContent = Capacity - 1
	// HostCapacity is the receive buffer used by host-side decoders. Replies
	// echo the command and therefore outgrow the device buffer.
	HostCapacity = 256
)

// Serial line defaults
const (
	DefaultBaudRate = 9600
	LineEnding      = "\r\n"
)

// Command verbs
const (
	VerbNameMix  = "Mix"
	VerbNameMeas = "Meas"
)

// Reply prefixes
const (
	ReadyMessage = "Arduino is ready"
	ackPrefix    = "Msg "
	ackTimeSep   = " Time "
	rgbPrefix    = "RGB:"
)

// TickShift converts the device millisecond clock into reply ticks. 1<<9 ms
// is roughly half a second.
const TickShift = 9

// Accumulator states
const (
	stateIdle = iota
	stateOpen
)

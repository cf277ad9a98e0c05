// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mixproto

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks frame counts and error rates for either side of the link.
// It is not safe for concurrent use.
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Frame counters
	TotalFrames     uint64
	TruncatedFrames uint64

	// Device side: dispatched commands
	MixCommands     uint64
	MeasCommands    uint64
	UnknownCommands uint64
	ArgumentErrors  uint64

	// Host side: decoded replies
	AckReplies     uint64
	RGBReplies     uint64
	ReadyReplies   uint64
	UnknownReplies uint64
	DecodeErrors   uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// UpdateCommand records a frame dispatched on the device.
// frameErr is the accumulator error (truncation), argErr the argument
// decoding result.
func (s *Statistics) UpdateCommand(cmd Command, frameErr, argErr error) {
	s.TotalFrames++
	if errors.Is(frameErr, ErrFrameTooLong) {
		s.TruncatedFrames++
	}

	switch cmd.Verb {
	case VerbMix:
		s.MixCommands++
	case VerbMeas:
		s.MeasCommands++
	default:
		s.UnknownCommands++
	}

	if errors.Is(argErr, ErrCommandArgumentInvalid) {
		s.ArgumentErrors++
	}

	s.LastUpdateTime = time.Now()
}

// UpdateReply records a frame received on the host
func (s *Statistics) UpdateReply(r *Reply, err error) {
	s.TotalFrames++
	s.LastUpdateTime = time.Now()

	if errors.Is(err, ErrFrameTooLong) {
		s.TruncatedFrames++
		err = nil
	}
	if err != nil || r == nil {
		s.DecodeErrors++
		return
	}

	switch r.Kind {
	case ReplyAck:
		s.AckReplies++
	case ReplyRGB:
		s.RGBReplies++
	case ReplyReady:
		s.ReadyReplies++
	default:
		s.UnknownReplies++
	}
}

// Errors returns the total number of error conditions observed
func (s *Statistics) Errors() uint64 {
	return s.TruncatedFrames + s.ArgumentErrors + s.DecodeErrors
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var truncatedPercent, errorPercent float64
	if s.TotalFrames > 0 {
		truncatedPercent = float64(s.TruncatedFrames) * 100.0 / float64(s.TotalFrames)
		errorPercent = float64(s.Errors()) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	if s.TruncatedFrames > 0 {
		result += fmt.Sprintf("Truncated:       %8d (%.1f%%)\n", s.TruncatedFrames, truncatedPercent)
	}

	if s.MixCommands+s.MeasCommands+s.UnknownCommands > 0 {
		result += fmt.Sprintf("Mix Commands:    %8d\n", s.MixCommands)
		result += fmt.Sprintf("Meas Commands:   %8d\n", s.MeasCommands)
		result += fmt.Sprintf("Unknown Verbs:   %8d\n", s.UnknownCommands)
		if s.ArgumentErrors > 0 {
			result += fmt.Sprintf("  Bad Arguments:  %7d\n", s.ArgumentErrors)
		}
	}

	if s.AckReplies+s.RGBReplies+s.ReadyReplies+s.UnknownReplies+s.DecodeErrors > 0 {
		result += fmt.Sprintf("Acks:            %8d\n", s.AckReplies)
		result += fmt.Sprintf("RGB Results:     %8d\n", s.RGBReplies)
		if s.ReadyReplies > 0 {
			result += fmt.Sprintf("Ready Banners:   %8d\n", s.ReadyReplies)
		}
		if s.UnknownReplies > 0 {
			result += fmt.Sprintf("Other Frames:    %8d\n", s.UnknownReplies)
		}
		if s.DecodeErrors > 0 {
			result += fmt.Sprintf("Decode Errors:   %8d\n", s.DecodeErrors)
		}
	}

	result += fmt.Sprintf("Errors:          %8d (%.1f%%)\n", s.Errors(), errorPercent)
	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}

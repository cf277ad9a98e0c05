// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mixproto

import (
	"fmt"
	"strings"
)

// FormatReply formats a decoded reply into a human-readable line
func FormatReply(r Reply) string {
	timestamp := "--:--:--.---"
	if r.Frame != nil {
		timestamp = r.Frame.Timestamp().Format("15:04:05.000")
	}

	result := fmt.Sprintf("[%s] %s", timestamp, r.Kind)
	switch r.Kind {
	case ReplyAck:
		result += fmt.Sprintf(" %q ticks=%d (~%s)", r.Message, r.Ticks, FormatTicks(r.Ticks))
	case ReplyRGB:
		result += fmt.Sprintf(" R=%d G=%d B=%d", r.Color.R, r.Color.G, r.Color.B)
	case ReplyReady:
		result += " device ready"
	default:
		result += fmt.Sprintf(" %q", r.Message)
	}

	if r.Frame != nil && r.Frame.Truncated() {
		result += fmt.Sprintf(" (truncated, %d bytes dropped)", r.Frame.Dropped())
	}
	return result + "\n"
}

// FormatCommand formats a dispatched command for device-side logs
func FormatCommand(c Command) string {
	switch c.Verb {
	case VerbMix:
		act, err := c.PumpActuation()
		if err != nil {
			return fmt.Sprintf("MIX (invalid: %v)", err)
		}
		return fmt.Sprintf("MIX pin=%d duration=%gs", act.Pin, act.Seconds)
	case VerbMeas:
		return "MEAS"
	default:
		if c.Name == "" {
			return "UNKNOWN (empty)"
		}
		return fmt.Sprintf("UNKNOWN %q args=[%s]", c.Name, strings.Join(c.Args, " "))
	}
}

// FormatTicks converts reply ticks back into an approximate uptime.
// Each tick is 512 ms.
func FormatTicks(ticks uint32) string {
	return formatDuration(uint64(ticks) << TickShift)
}

// formatDuration converts milliseconds to human-readable duration
func formatDuration(ms uint64) string {
	seconds := ms / 1000
	if seconds == 0 {
		return fmt.Sprintf("%d ms", ms)
	}

	const (
		secondsPerMinute = 60
		secondsPerHour   = 60 * secondsPerMinute
		secondsPerDay    = 24 * secondsPerHour
	)

	days := seconds / secondsPerDay
	seconds %= secondsPerDay
	hours := seconds / secondsPerHour
	seconds %= secondsPerHour
	minutes := seconds / secondsPerMinute
	seconds %= secondsPerMinute

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", seconds))
	}
	return strings.Join(parts, " ")
}

// FormatRaw renders raw wire bytes with control characters escaped
func FormatRaw(data []byte) string {
	var b strings.Builder
	for _, c := range data {
		switch {
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\n':
			b.WriteString(`\n`)
		case c < 0x20 || c > 0x7E:
			fmt.Fprintf(&b, `\x%02X`, c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mixproto

import (
	"errors"
	"strings"
	"testing"
)

// feedString decodes s byte by byte and returns the payloads of every frame
func feedString(a *Accumulator, s string) []string {
	var out []string
	for i := 0; i < len(s); i++ {
		frame, _ := a.DecodeByte(s[i])
		if frame != nil {
			out = append(out, frame.String())
		}
	}
	return out
}

// ============================================================
// Accumulator Tests
// ============================================================

func TestAccumulator_SingleFrame(t *testing.T) {
	a := NewDeviceAccumulator()
	frames := feedString(a, "<Mix,3,0.5>")
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if frames[0] != "Mix,3,0.5" {
		t.Errorf("payload = %q, want %q", frames[0], "Mix,3,0.5")
	}
	if a.Open() {
		t.Error("accumulator should be idle after the end marker")
	}
	if !a.Ready() {
		t.Error("ready flag should be set after a completed frame")
	}
	if !a.TakeReady() || a.Ready() {
		t.Error("TakeReady should return true once and clear the flag")
	}
}

func TestAccumulator_Recognition(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty input", "", nil},
		{"no markers", "Mix,3,0.5", nil},
		{"end without start", "Meas>", nil},
		{"garbage before start", "xx\r\n<Meas>", []string{"Meas"}},
		{"bytes between frames ignored", "<Meas>junk<Foo>", []string{"Meas", "Foo"}},
		{"unterminated frame", "<Meas", nil},
		{"empty frame", "<>", []string{""}},
		{"stray end after frame", "<Meas>>", []string{"Meas"}},
		{"re-arm discards partial", "<Mi<Mix,2,1.0>", []string{"Mix,2,1.0"}},
		{"double start", "<<Meas>", []string{"Meas"}},
		{"three frames", "<A><B><C>", []string{"A", "B", "C"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := feedString(NewDeviceAccumulator(), tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d frames %q, want %d %q", len(got), got, len(tt.want), tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("frame %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestAccumulator_EndMarkerNeverAppended(t *testing.T) {
	a := NewDeviceAccumulator()
	feedString(a, "<ab")
	if a.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", a.Len())
	}
	frame, err := a.DecodeByte('>')
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.ContainsRune(frame.String(), EndMarker) {
		t.Errorf("end marker leaked into payload %q", frame.String())
	}
}

// ============================================================
// Truncation Tests
// ============================================================

func TestAccumulator_ExactCapacityNotTruncated(t *testing.T) {
	payload := strings.Repeat("a", MaxContent)
	a := NewDeviceAccumulator()

	var frame *Frame
	var err error
	for _, b := range []byte("<" + payload + ">") {
		frame, err = a.DecodeByte(b)
	}
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame == nil || frame.String() != payload {
		t.Fatalf("payload mismatch")
	}
	if frame.Truncated() {
		t.Error("frame at exact capacity should not be truncated")
	}
}

func TestAccumulator_Truncation(t *testing.T) {
	tests := []struct {
		name    string
		length  int
		dropped int
	}{
		{"one over", MaxContent + 1, 1},
		{"ten over", MaxContent + 10, 10},
		{"far over", 500, 500 - MaxContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := make([]byte, tt.length)
			for i := range payload {
				payload[i] = 'A' + byte(i%26)
			}

			a := NewDeviceAccumulator()
			var frame *Frame
			var err error
			for _, b := range append(append([]byte{'<'}, payload...), '>') {
				frame, err = a.DecodeByte(b)
			}

			if frame == nil {
				t.Fatal("truncated frame must still complete")
			}
			if !errors.Is(err, ErrFrameTooLong) {
				t.Fatalf("expected ErrFrameTooLong, got %v", err)
			}
			var tooLong *FrameTooLongError
			if !errors.As(err, &tooLong) || tooLong.Dropped != tt.dropped {
				t.Errorf("dropped = %v, want %d", err, tt.dropped)
			}
			if frame.Length() != Capacity-1 {
				t.Errorf("Length() = %d, want %d", frame.Length(), Capacity-1)
			}
			if frame.String() != string(payload[:Capacity-1]) {
				t.Errorf("payload should keep the first %d bytes", Capacity-1)
			}
			if frame.Dropped() != tt.dropped {
				t.Errorf("Dropped() = %d, want %d", frame.Dropped(), tt.dropped)
			}
		})
	}
}

func TestAccumulator_TruncationClearedByNextFrame(t *testing.T) {
	a := NewDeviceAccumulator()
	feedString(a, "<"+strings.Repeat("x", 100)+">")

	var err error
	var frame *Frame
	for _, b := range []byte("<Meas>") {
		frame, err = a.DecodeByte(b)
	}
	if err != nil {
		t.Errorf("second frame should not inherit truncation: %v", err)
	}
	if frame.Truncated() {
		t.Error("second frame reported truncated")
	}
}

func TestAccumulator_CustomCapacity(t *testing.T) {
	a := NewAccumulator(HostCapacity)
	long := "Msg " + strings.Repeat("x", 39) + " Time 123"
	frames := feedString(a, "<"+long+">")
	if len(frames) != 1 || frames[0] != long {
		t.Errorf("host accumulator should keep %d bytes, got %q", len(long), frames)
	}

	small := NewAccumulator(0)
	if small.Capacity() != 2 {
		t.Errorf("Capacity() = %d, want 2", small.Capacity())
	}
}

func TestAccumulator_FeedReportsErrors(t *testing.T) {
	a := NewDeviceAccumulator()
	var reported int
	frames := a.Feed([]byte("<Meas><"+strings.Repeat("y", 50)+">"), func(f *Frame, err error) {
		reported++
		if f == nil {
			t.Error("error callback should receive the truncated frame")
		}
	})
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if reported != 1 {
		t.Errorf("expected 1 reported error, got %d", reported)
	}
}

func TestAccumulator_Reset(t *testing.T) {
	a := NewDeviceAccumulator()
	feedString(a, "<Mix,1")
	a.Reset()
	if a.Open() || a.Len() != 0 {
		t.Error("Reset should return to idle with an empty buffer")
	}
	if frames := feedString(a, ">"); len(frames) != 0 {
		t.Error("end marker after Reset must not produce a frame")
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mixproto

import (
	"strings"
	"testing"
)

// ============================================================
// Statistics Tests
// ============================================================

func TestStatistics_Commands(t *testing.T) {
	s := NewStatistics()

	mix := ParseCommand([]byte("Mix,3,0.5"))
	_, argErr := mix.PumpActuation()
	s.UpdateCommand(mix, nil, argErr)

	bad := ParseCommand([]byte("Mix,x,1"))
	_, argErr = bad.PumpActuation()
	s.UpdateCommand(bad, nil, argErr)

	s.UpdateCommand(ParseCommand([]byte("Meas")), nil, nil)
	s.UpdateCommand(ParseCommand([]byte("Foo")), &FrameTooLongError{Capacity: Capacity, Dropped: 4}, nil)

	if s.TotalFrames != 4 {
		t.Errorf("TotalFrames = %d, want 4", s.TotalFrames)
	}
	if s.MixCommands != 2 || s.MeasCommands != 1 || s.UnknownCommands != 1 {
		t.Errorf("verb counters = %d/%d/%d", s.MixCommands, s.MeasCommands, s.UnknownCommands)
	}
	if s.ArgumentErrors != 1 {
		t.Errorf("ArgumentErrors = %d, want 1", s.ArgumentErrors)
	}
	if s.TruncatedFrames != 1 {
		t.Errorf("TruncatedFrames = %d, want 1", s.TruncatedFrames)
	}
	if s.Errors() != 2 {
		t.Errorf("Errors() = %d, want 2", s.Errors())
	}

	out := s.String()
	for _, want := range []string{"Total Frames:", "Mix Commands:", "Bad Arguments:", "Truncated:"} {
		if !strings.Contains(out, want) {
			t.Errorf("String() missing %q:\n%s", want, out)
		}
	}
}

func TestStatistics_Replies(t *testing.T) {
	s := NewStatistics()

	ack, _ := ParseReply(NewFrame([]byte("Msg Meas Time 4")))
	rgb, _ := ParseReply(NewFrame([]byte("RGB:1,2,3")))
	ready, _ := ParseReply(NewFrame([]byte(ReadyMessage)))
	other, _ := ParseReply(NewFrame([]byte("debug")))

	s.UpdateReply(&ack, nil)
	s.UpdateReply(&rgb, nil)
	s.UpdateReply(&ready, nil)
	s.UpdateReply(&other, nil)
	s.UpdateReply(&ack, &FrameTooLongError{Capacity: HostCapacity, Dropped: 1})
	s.UpdateReply(nil, ErrCommandArgumentInvalid)

	if s.AckReplies != 2 || s.RGBReplies != 1 || s.ReadyReplies != 1 || s.UnknownReplies != 1 {
		t.Errorf("reply counters = %d/%d/%d/%d", s.AckReplies, s.RGBReplies, s.ReadyReplies, s.UnknownReplies)
	}
	if s.TruncatedFrames != 1 || s.DecodeErrors != 1 {
		t.Errorf("truncated=%d decode=%d", s.TruncatedFrames, s.DecodeErrors)
	}

	s.Reset()
	if s.TotalFrames != 0 || s.AckReplies != 0 {
		t.Error("Reset should clear counters")
	}
}

// ============================================================
// Validator Tests
// ============================================================

func TestValidator_TicksBackwards(t *testing.T) {
	v := NewValidator()

	first, _ := ParseReply(NewFrame([]byte("Msg Meas Time 10")))
	second, _ := ParseReply(NewFrame([]byte("Msg Meas Time 4")))

	if errs := v.Validate(first); len(errs) != 0 {
		t.Fatalf("unexpected anomalies: %v", errs)
	}
	errs := v.Validate(second)
	if len(errs) != 1 || errs[0].Type != AnomalyTicksBackwards {
		t.Fatalf("expected ticks-backwards anomaly, got %v", errs)
	}

	// A ready banner means the device restarted.
	ready, _ := ParseReply(NewFrame([]byte(ReadyMessage)))
	v.Validate(ready)
	early, _ := ParseReply(NewFrame([]byte("Msg Meas Time 0")))
	if errs := v.Validate(early); len(errs) != 0 {
		t.Errorf("ticks should restart after ready banner: %v", errs)
	}
}

func TestValidator_EchoMismatch(t *testing.T) {
	v := NewValidator()
	v.Expect("Mix,3,0.5")

	ack, _ := ParseReply(NewFrame([]byte("Msg Mix,3,0. Time 1")))
	errs := v.Validate(ack)
	if len(errs) != 1 || errs[0].Type != AnomalyEchoMismatch {
		t.Fatalf("expected echo mismatch, got %v", errs)
	}

	// Expectation is consumed by the first ack.
	if errs := v.Validate(ack); len(errs) != 0 {
		t.Errorf("unexpected anomalies: %v", errs)
	}
}

func TestValidator_RGBOutOfRange(t *testing.T) {
	v := NewValidator()
	r, _ := ParseReply(NewFrame([]byte("RGB:300,12,999")))
	errs := v.Validate(r)
	if len(errs) != 2 {
		t.Fatalf("expected 2 anomalies, got %v", errs)
	}
	if errs[0].Details["channel"] != "red" || errs[1].Details["channel"] != "blue" {
		t.Errorf("unexpected channel order: %v", errs)
	}
}

func TestValidator_Truncated(t *testing.T) {
	v := NewValidator()
	a := NewDeviceAccumulator()
	frames := a.Feed([]byte("<"+strings.Repeat("z", 45)+">"), nil)
	r, _ := ParseReply(frames[0])
	errs := v.Validate(r)
	if len(errs) != 1 || errs[0].Type != AnomalyTruncated {
		t.Fatalf("expected truncation anomaly, got %v", errs)
	}
}

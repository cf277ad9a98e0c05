// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mixproto

import (
	"strings"
	"testing"
)

// decodeReplies runs wire bytes through a host accumulator and parses every frame
func decodeReplies(t *testing.T, wire []byte) []Reply {
	t.Helper()
	a := NewAccumulator(HostCapacity)
	var replies []Reply
	for _, f := range a.Feed(wire, nil) {
		r, err := ParseReply(f)
		if err != nil {
			t.Fatalf("ParseReply(%q): %v", f.String(), err)
		}
		replies = append(replies, r)
	}
	return replies
}

// ============================================================
// Encoding Tests
// ============================================================

func TestEncodeAck(t *testing.T) {
	tests := []struct {
		message string
		millis  uint32
		want    string
	}{
		{"Mix,3,0.5", 0, "<Msg Mix,3,0.5 Time 0>\r\n"},
		{"Meas", 511, "<Msg Meas Time 0>\r\n"},
		{"Meas", 512, "<Msg Meas Time 1>\r\n"},
		{"Foo,1,2", 10240, "<Msg Foo,1,2 Time 20>\r\n"},
		{"", 0xFFFFFFFF, "<Msg  Time 8388607>\r\n"},
	}

	for _, tt := range tests {
		if got := string(EncodeAck(tt.message, tt.millis)); got != tt.want {
			t.Errorf("EncodeAck(%q, %d) = %q, want %q", tt.message, tt.millis, got, tt.want)
		}
	}
}

func TestEncodeRGB(t *testing.T) {
	got := string(EncodeRGB(RGB{R: 120, G: 80, B: 3}))
	if got != "<RGB:120,80,3>\r\n" {
		t.Errorf("EncodeRGB = %q", got)
	}
}

func TestEncodeReady(t *testing.T) {
	if string(EncodeReady()) != "<Arduino is ready>\r\n" {
		t.Errorf("EncodeReady = %q", EncodeReady())
	}
}

func TestTicks(t *testing.T) {
	if Ticks(1024) != 2 {
		t.Errorf("Ticks(1024) = %d, want 2", Ticks(1024))
	}
}

// ============================================================
// Parsing Tests
// ============================================================

func TestParseReply_RoundTrip(t *testing.T) {
	var wire []byte
	wire = append(wire, EncodeReady()...)
	wire = append(wire, EncodeAck("Mix,3,0.5", 5120)...)
	wire = append(wire, EncodeAck("Meas", 6144)...)
	wire = append(wire, EncodeRGB(RGB{R: 10, G: 20, B: 30})...)

	replies := decodeReplies(t, wire)
	if len(replies) != 4 {
		t.Fatalf("expected 4 replies, got %d", len(replies))
	}

	if replies[0].Kind != ReplyReady {
		t.Errorf("reply 0 kind = %v, want READY", replies[0].Kind)
	}
	if replies[1].Kind != ReplyAck || replies[1].Message != "Mix,3,0.5" || replies[1].Ticks != 10 {
		t.Errorf("reply 1 = %+v", replies[1])
	}
	if replies[2].Kind != ReplyAck || replies[2].Message != "Meas" || replies[2].Ticks != 12 {
		t.Errorf("reply 2 = %+v", replies[2])
	}
	if replies[3].Kind != ReplyRGB || replies[3].Color != (RGB{R: 10, G: 20, B: 30}) {
		t.Errorf("reply 3 = %+v", replies[3])
	}
}

func TestParseReply_EchoContainingTime(t *testing.T) {
	replies := decodeReplies(t, EncodeAck("Foo Time 3", 1024))
	if len(replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(replies))
	}
	if replies[0].Message != "Foo Time 3" || replies[0].Ticks != 2 {
		t.Errorf("reply = %+v", replies[0])
	}
}

func TestParseReply_Unknown(t *testing.T) {
	r, err := ParseReply(NewFrame([]byte("hello")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Kind != ReplyUnknown || r.Message != "hello" {
		t.Errorf("reply = %+v", r)
	}
}

func TestParseReply_Malformed(t *testing.T) {
	tests := []string{
		"Msg Meas",
		"Msg Meas Time abc",
		"Msg Meas Time -1",
		"RGB:1,2",
		"RGB:1,2,x",
		"RGB:1,-2,3",
		"RGB:",
	}
	for _, payload := range tests {
		t.Run(payload, func(t *testing.T) {
			if _, err := ParseReply(NewFrame([]byte(payload))); err == nil {
				t.Errorf("expected error for %q", payload)
			}
		})
	}
}

func TestRGBSlice(t *testing.T) {
	s := RGB{R: 1, G: 2, B: 3}.Slice()
	if len(s) != 3 || s[0] != 1 || s[1] != 2 || s[2] != 3 {
		t.Errorf("Slice() = %v", s)
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatReply(t *testing.T) {
	replies := decodeReplies(t, append(EncodeAck("Meas", 2048), EncodeRGB(RGB{1, 2, 3})...))
	ack := FormatReply(replies[0])
	if !strings.Contains(ack, "ACK") || !strings.Contains(ack, `"Meas"`) || !strings.Contains(ack, "ticks=4") {
		t.Errorf("FormatReply(ack) = %q", ack)
	}
	rgb := FormatReply(replies[1])
	if !strings.Contains(rgb, "R=1 G=2 B=3") {
		t.Errorf("FormatReply(rgb) = %q", rgb)
	}
}

func TestFormatCommand(t *testing.T) {
	tests := []struct {
		payload string
		want    string
	}{
		{"Mix,3,0.5", "MIX pin=3 duration=0.5s"},
		{"Meas", "MEAS"},
		{"", "UNKNOWN (empty)"},
		{"Foo,1", `UNKNOWN "Foo" args=[1]`},
	}
	for _, tt := range tests {
		if got := FormatCommand(ParseCommand([]byte(tt.payload))); got != tt.want {
			t.Errorf("FormatCommand(%q) = %q, want %q", tt.payload, got, tt.want)
		}
	}
	if got := FormatCommand(ParseCommand([]byte("Mix,3"))); !strings.HasPrefix(got, "MIX (invalid") {
		t.Errorf("invalid mix formatted as %q", got)
	}
}

func TestFormatTicks(t *testing.T) {
	tests := []struct {
		ticks uint32
		want  string
	}{
		{0, "0 ms"},
		{1, "512 ms"},
		{2, "1s"},
		{240, "2m 2s"},
	}
	for _, tt := range tests {
		if got := FormatTicks(tt.ticks); got != tt.want {
			t.Errorf("FormatTicks(%d) = %q, want %q", tt.ticks, got, tt.want)
		}
	}
}

func TestFormatRaw(t *testing.T) {
	if got := FormatRaw([]byte("<Meas>\r\n\x01")); got != `<Meas>\r\n\x01` {
		t.Errorf("FormatRaw = %q", got)
	}
}

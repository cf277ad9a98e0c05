// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/mixbot/pkg/mixproto"
)

// value reads the current value of a single counter or gauge
func value(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	close(ch)
	m, ok := <-ch
	require.True(t, ok, "collector produced no metric")

	var pb dto.Metric
	require.NoError(t, m.Write(&pb))
	switch {
	case pb.Counter != nil:
		return pb.Counter.GetValue()
	case pb.Gauge != nil:
		return pb.Gauge.GetValue()
	}
	t.Fatalf("unsupported metric type")
	return 0
}

func TestDeviceMetrics_Events(t *testing.T) {
	reg := NewRegistry()
	m := NewDeviceMetrics(reg)

	m.FrameDispatched(mixproto.ParseCommand([]byte("Mix,3,0.5")), nil, nil)
	m.FrameDispatched(mixproto.ParseCommand([]byte("Mix,3")), nil, mixproto.ErrMissingArgument)
	m.FrameDispatched(mixproto.ParseCommand([]byte("Meas")), fmt.Errorf("wrapped: %w", mixproto.ErrFrameTooLong), nil)
	m.FrameDispatched(mixproto.ParseCommand([]byte("Foo")), nil, nil)

	assert.Equal(t, 2.0, value(t, m.Frames.WithLabelValues("Mix")))
	assert.Equal(t, 1.0, value(t, m.Frames.WithLabelValues("Meas")))
	assert.Equal(t, 1.0, value(t, m.Frames.WithLabelValues("Unknown")))
	assert.Equal(t, 1.0, value(t, m.FrameErrors.WithLabelValues("argument")))
	assert.Equal(t, 1.0, value(t, m.FrameErrors.WithLabelValues("truncated")))

	m.PumpChanged(3, true)
	assert.Equal(t, 1.0, value(t, m.PumpActive.WithLabelValues("3")))
	m.PumpChanged(3, false)
	assert.Equal(t, 0.0, value(t, m.PumpActive.WithLabelValues("3")))
	assert.Equal(t, 1.0, value(t, m.PumpStarts.WithLabelValues("3")))

	m.MeasurementDone(mixproto.RGB{R: 10, G: 20, B: 30}, 2)
	assert.Equal(t, 1.0, value(t, m.Measurements))
	assert.Equal(t, 2.0, value(t, m.FailedSamples))
	assert.Equal(t, 20.0, value(t, m.LastColor.WithLabelValues("green")))

	m.ReplySent(mixproto.ReplyAck)
	m.ReplySent(mixproto.ReplyAck)
	m.ReplySent(mixproto.ReplyRGB)
	assert.Equal(t, 2.0, value(t, m.Replies.WithLabelValues("ACK")))
	assert.Equal(t, 1.0, value(t, m.Replies.WithLabelValues("RGB")))
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	m := NewDeviceMetrics(reg)
	m.ReplySent(mixproto.ReplyReady)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `mixbot_replies_total{kind="READY"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

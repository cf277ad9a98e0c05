// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exports device activity to Prometheus
package metrics

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/mixbot/pkg/firmware"
	"github.com/Thermoquad/mixbot/pkg/mixproto"
)

// NewRegistry creates a registry with the Go and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the HTTP handler serving reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// DeviceMetrics counts controller events. It implements firmware.Observer.
type DeviceMetrics struct {
	Frames        *prometheus.CounterVec // labels: verb
	FrameErrors   *prometheus.CounterVec // labels: reason=truncated|argument
	Replies       *prometheus.CounterVec // labels: kind
	PumpActive    *prometheus.GaugeVec   // labels: pin
	PumpStarts    *prometheus.CounterVec // labels: pin
	Measurements  prometheus.Counter
	FailedSamples prometheus.Counter
	LastColor     *prometheus.GaugeVec // labels: channel
}

var _ firmware.Observer = (*DeviceMetrics)(nil)

// NewDeviceMetrics registers the device metrics on reg
func NewDeviceMetrics(reg prometheus.Registerer) *DeviceMetrics {
	m := &DeviceMetrics{
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mixbot_frames_total",
			Help: "Command frames dispatched, by verb.",
		}, []string{"verb"}),
		FrameErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mixbot_frame_errors_total",
			Help: "Dispatched frames that were truncated or had invalid arguments.",
		}, []string{"reason"}),
		Replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mixbot_replies_total",
			Help: "Reply frames sent, by kind.",
		}, []string{"kind"}),
		PumpActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mixbot_pump_active",
			Help: "1 while the pump on the pin runs.",
		}, []string{"pin"}),
		PumpStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mixbot_pump_starts_total",
			Help: "Pump activations, by pin.",
		}, []string{"pin"}),
		Measurements: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mixbot_measurements_total",
			Help: "Completed color measurements.",
		}),
		FailedSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mixbot_sensor_failed_samples_total",
			Help: "Sensor samples excluded from the average.",
		}),
		LastColor: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mixbot_last_color",
			Help: "Channels of the most recent measurement.",
		}, []string{"channel"}),
	}
	reg.MustRegister(m.Frames, m.FrameErrors, m.Replies, m.PumpActive, m.PumpStarts,
		m.Measurements, m.FailedSamples, m.LastColor)
	return m
}

// FrameDispatched implements firmware.Observer
func (m *DeviceMetrics) FrameDispatched(cmd mixproto.Command, frameErr, argErr error) {
	m.Frames.WithLabelValues(cmd.Verb.String()).Inc()
	if errors.Is(frameErr, mixproto.ErrFrameTooLong) {
		m.FrameErrors.WithLabelValues("truncated").Inc()
	}
	if argErr != nil {
		m.FrameErrors.WithLabelValues("argument").Inc()
	}
}

// PumpChanged implements firmware.Observer
func (m *DeviceMetrics) PumpChanged(pin int, active bool) {
	label := strconv.Itoa(pin)
	if active {
		m.PumpActive.WithLabelValues(label).Set(1)
		m.PumpStarts.WithLabelValues(label).Inc()
		return
	}
	m.PumpActive.WithLabelValues(label).Set(0)
}

// MeasurementDone implements firmware.Observer
func (m *DeviceMetrics) MeasurementDone(color mixproto.RGB, failedSamples int) {
	m.Measurements.Inc()
	m.FailedSamples.Add(float64(failedSamples))
	m.LastColor.WithLabelValues("red").Set(float64(color.R))
	m.LastColor.WithLabelValues("green").Set(float64(color.G))
	m.LastColor.WithLabelValues("blue").Set(float64(color.B))
}

// ReplySent implements firmware.Observer
func (m *DeviceMetrics) ReplySent(kind mixproto.ReplyKind) {
	m.Replies.WithLabelValues(kind.String()).Inc()
}

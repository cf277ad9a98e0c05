// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/Thermoquad/mixbot/internal/metrics"
)

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestHealthzReadyzMetrics(t *testing.T) {
	reg := metrics.NewRegistry()
	s := New(Options{
		Addr:           ":0",
		MetricsPath:    "/metrics",
		MetricsHandler: metrics.Handler(reg),
		ReadyFn:        func() bool { return true },
	})

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = serve(s, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")

	// No device handler, no device route
	rr = serve(s, httptest.NewRequest(http.MethodGet, "/serial", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestReadyzBusy(t *testing.T) {
	s := New(Options{ReadyFn: func() bool { return false }})

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "busy", rr.Body.String())
}

func TestDeviceRouteAuth(t *testing.T) {
	device := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	s := New(Options{
		DevicePath:    "/serial",
		DeviceHandler: device,
		Username:      "mixer",
		Password:      "s3cret",
		Logger:        zap.NewNop(),
	})

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/serial", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/serial", nil)
	req.SetBasicAuth("mixer", "wrong")
	assert.Equal(t, http.StatusUnauthorized, serve(s, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/serial", nil)
	req.SetBasicAuth("mixer", "s3cret")
	assert.Equal(t, http.StatusTeapot, serve(s, req).Code)
}

func TestDeviceRouteOpen(t *testing.T) {
	device := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	s := New(Options{DevicePath: "/ws", DeviceHandler: device})

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)
}

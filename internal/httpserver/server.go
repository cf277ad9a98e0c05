// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package httpserver serves the simulated device over HTTP: the WebSocket
// byte stream, health and readiness probes, and Prometheus metrics.
package httpserver

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Options configures the routes of a Server. Empty handlers skip their route.
type Options struct {
	Addr string

	DevicePath    string
	DeviceHandler http.Handler
	// Username and Password enable HTTP Basic auth on the device route
	Username string
	Password string

	MetricsPath    string
	MetricsHandler http.Handler

	// ReadyFn reports whether the device can take a client; nil means always
	ReadyFn func() bool

	Logger *zap.Logger
}

// Server wraps the gin engine and its HTTP server
type Server struct {
	srv *http.Server
}

// New builds the router and the HTTP server
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/readyz", func(c *gin.Context) {
		if opts.ReadyFn == nil || opts.ReadyFn() {
			c.String(http.StatusOK, "ready")
			return
		}
		c.String(http.StatusServiceUnavailable, "busy")
	})

	if opts.MetricsHandler != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(opts.MetricsHandler))
	}

	if opts.DeviceHandler != nil {
		path := opts.DevicePath
		if path == "" {
			path = "/serial"
		}
		handlers := []gin.HandlerFunc{}
		if opts.Username != "" {
			handlers = append(handlers, BasicAuth(opts.Username, opts.Password, logger))
		}
		handlers = append(handlers, gin.WrapH(opts.DeviceHandler))
		r.GET(path, handlers...)
	}

	// No write timeout: it would cut hijacked WebSocket connections.
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return &Server{srv: srv}
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves until Shutdown (blocking). http.ErrServerClosed is not an error.
func (s *Server) Start() error {
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// BasicAuth rejects requests without the given HTTP Basic credentials.
// Failed attempts are logged.
func BasicAuth(username, password string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, pass, ok := c.Request.BasicAuth()
		if ok &&
			subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1 &&
			subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1 {
			c.Next()
			return
		}

		logger.Warn("device auth failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("remote_addr", c.ClientIP()),
			zap.Bool("credentials_present", ok),
		)
		c.Header("WWW-Authenticate", `Basic realm="mixbot"`)
		c.AbortWithStatus(http.StatusUnauthorized)
	}
}

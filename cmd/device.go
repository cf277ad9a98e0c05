// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/mixbot/internal/httpserver"
	"github.com/Thermoquad/mixbot/internal/metrics"
	"github.com/Thermoquad/mixbot/pkg/firmware"
	"github.com/Thermoquad/mixbot/pkg/firmware/sim"
)

var (
	deviceListen      string
	deviceMetricsAddr string
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Run the device firmware against simulated hardware",
	Long: `Run the mixing robot firmware with simulated pumps, color sensor and
indicator LEDs.

The firmware speaks the same protocol as the real board:
  - <Mix,pin,seconds> runs a pump and acknowledges once it stopped
  - <Meas> acknowledges, measures for about 1.3 s and sends <RGB:r,g,b>
  - any other frame is acknowledged only

Transports:
  Serial:    --port /dev/pts/3 (e.g. one end of a socat pty pair)
  WebSocket: --listen :8080 serves one client at a time on websocket.path

Each WebSocket client gets a fresh firmware session starting with the
ready banner, like a board that resets when its port is opened. The
simulated cell keeps its contents across sessions.

The WebSocket server also answers /healthz, /readyz (503 while a client
is connected) and metrics.path. With --metrics-addr, metrics are served on
a separate address as well.

When --username and MIXBOT_PASSWORD are both set, the WebSocket route
requires HTTP Basic auth with those credentials.`,
	RunE: runDevice,
}

func init() {
	rootCmd.AddCommand(deviceCmd)
	deviceCmd.Flags().StringVar(&deviceListen, "listen", "", "Serve the device over WebSocket on this address")
	deviceCmd.Flags().StringVar(&deviceMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
}

func runDevice(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	observer := metrics.NewDeviceMetrics(reg)

	metricsAddr := deviceMetricsAddr
	if metricsAddr == "" {
		metricsAddr = cfg.Metrics.Addr
	}
	if metricsAddr != "" {
		srv := httpserver.New(httpserver.Options{
			Addr:           metricsAddr,
			MetricsPath:    cfg.Metrics.Path,
			MetricsHandler: metrics.Handler(reg),
			Logger:         logger,
		})
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer shutdownServer(srv)
		logger.Info("serving metrics", zap.String("addr", metricsAddr), zap.String("path", cfg.Metrics.Path))
	}

	bench := sim.NewBench(cfg.SimOptions())

	listen := deviceListen
	if listen == "" {
		listen = cfg.WebSocket.Listen
	}

	fmt.Printf("Mixbot - Simulated Device\n")
	switch {
	case listen != "":
		fmt.Printf("WebSocket: ws://%s%s\n", listen, cfg.WebSocket.Path)
		fmt.Printf("Press Ctrl+C to exit\n\n")
		return serveWebSocketDevice(ctx, listen, bench, observer, reg)

	case portName != "":
		conn, err := OpenSerialConnection(portName, baudRate)
		if err != nil {
			return err
		}
		fmt.Printf("Serial: %s @ %d baud\n", portName, baudRate)
		fmt.Printf("Press Ctrl+C to exit\n\n")
		err = runDeviceSession(ctx, conn, bench, observer)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	return fmt.Errorf("either --port or --listen must be specified")
}

// runDeviceSession runs one firmware instance on conn until the connection
// fails or ctx is cancelled. conn is closed on return.
func runDeviceSession(ctx context.Context, conn Connection, bench *sim.Bench, observer firmware.Observer) error {
	defer conn.Close()

	fifo := firmware.NewRxFIFO(cfg.Device.RxBufferSize)
	ctrl, err := firmware.NewController(cfg.Firmware(), bench.Hardware(), fifo, conn, logger)
	if err != nil {
		return err
	}
	ctrl.SetObserver(observer)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	recvErr := make(chan error, 1)
	go func() {
		err := firmware.Receive(ctx, conn, fifo)
		cancel()
		recvErr <- err
	}()

	if err := ctrl.Setup(); err != nil {
		return fmt.Errorf("device setup failed: %w", err)
	}

	runErr := ctrl.Run(ctx, cfg.Device.PollInterval)
	conn.Close()
	err = <-recvErr

	if dropped := fifo.Dropped(); dropped > 0 {
		logger.Warn("receive buffer overflowed", zap.Uint64("dropped_bytes", dropped))
	}
	stats := ctrl.Stats()
	logger.Info("device session ended",
		zap.Uint64("frames", stats.TotalFrames),
		zap.Uint64("mix", stats.MixCommands),
		zap.Uint64("meas", stats.MeasCommands))

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrConnectionClosed) {
		return err
	}
	return runErr
}

// serveWebSocketDevice accepts one WebSocket client at a time and runs a
// firmware session for each. Health, readiness and metrics share the server.
func serveWebSocketDevice(ctx context.Context, addr string, bench *sim.Bench, observer firmware.Observer, reg *prometheus.Registry) error {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	busy := make(chan struct{}, 1)

	device := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case busy <- struct{}{}:
			defer func() { <-busy }()
		default:
			http.Error(w, "device already has a client", http.StatusConflict)
			return
		}

		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		logger.Info("client connected", zap.String("remote", r.RemoteAddr))

		err = runDeviceSession(ctx, &WebSocketConnection{conn: wsConn}, bench, observer)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Info("client session closed", zap.String("remote", r.RemoteAddr), zap.Error(err))
			return
		}
		logger.Info("client disconnected", zap.String("remote", r.RemoteAddr))
	})

	opts := httpserver.Options{
		Addr:           addr,
		DevicePath:     cfg.WebSocket.Path,
		DeviceHandler:  device,
		MetricsPath:    cfg.Metrics.Path,
		MetricsHandler: metrics.Handler(reg),
		ReadyFn:        func() bool { return len(busy) == 0 },
		Logger:         logger,
	}
	// Clients authenticate with --username and MIXBOT_PASSWORD; the device
	// checks the same pair when both are set.
	if password := os.Getenv("MIXBOT_PASSWORD"); wsUsername != "" && password != "" {
		opts.Username = wsUsername
		opts.Password = password
		logger.Info("device requires basic auth", zap.String("username", wsUsername))
	}
	srv := httpserver.New(opts)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		shutdownServer(srv)
		return nil
	case err := <-errCh:
		return err
	}
}

func shutdownServer(srv *httpserver.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
}

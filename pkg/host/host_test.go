// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package host_test

import (
	"context"
	"errors"
	"io"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/mixbot/pkg/firmware"
	"github.com/Thermoquad/mixbot/pkg/firmware/sim"
	"github.com/Thermoquad/mixbot/pkg/host"
	"github.com/Thermoquad/mixbot/pkg/mixlog"
	"github.com/Thermoquad/mixbot/pkg/mixproto"
)

// fastDeviceConfig shortens the measurement so tests run in milliseconds
func fastDeviceConfig() firmware.Config {
	cfg := firmware.DefaultConfig()
	cfg.SettleTime = 5 * time.Millisecond
	cfg.SampleInterval = 2 * time.Millisecond
	cfg.Cooldown = 5 * time.Millisecond
	return cfg
}

// fastControllerConfig makes every pump run for hundredths of a second
func fastControllerConfig() host.ControllerConfig {
	cfg := host.DefaultControllerConfig()
	for name, p := range cfg.Pumps {
		p.A = 0.01
		cfg.Pumps[name] = p
	}
	cfg.DrainTime = 0.02
	cfg.PurgeTime = 0.02
	cfg.StepDelay = 0
	return cfg
}

// startDevice serves a simulated device on one end of an in-memory pipe and
// returns a ready client on the other end
func startDevice(t *testing.T) (*host.Client, *sim.Bench) {
	t.Helper()

	hostConn, devConn := net.Pipe()
	opts := sim.DefaultOptions()
	opts.Seed = 1
	bench := sim.NewBench(opts)
	fifo := firmware.NewRxFIFO(256)

	ctrl, err := firmware.NewController(fastDeviceConfig(), bench.Hardware(), fifo, devConn, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	client := host.NewClient(hostConn, host.Options{ReplyTimeout: 2 * time.Second})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = firmware.Receive(ctx, devConn, fifo)
	}()
	go func() {
		defer wg.Done()
		if err := ctrl.Setup(); err != nil {
			return
		}
		_ = ctrl.Run(ctx, time.Millisecond)
	}()

	t.Cleanup(func() {
		cancel()
		_ = hostConn.Close()
		_ = devConn.Close()
		wg.Wait()
	})

	readyCtx, readyCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer readyCancel()
	require.NoError(t, client.WaitReady(readyCtx))
	return client, bench
}

// ============================================================
// Client Tests
// ============================================================

func TestClient_UnknownCommandAck(t *testing.T) {
	client, bench := startDevice(t)

	reply, err := client.Send(context.Background(), "Foo,1,2")
	require.NoError(t, err)
	assert.Equal(t, mixproto.ReplyAck, reply.Kind)
	assert.Equal(t, "Foo,1,2", reply.Message)
	assert.Empty(t, bench.Pumps.History())
}

func TestClient_MixAckAfterPumpStops(t *testing.T) {
	client, bench := startDevice(t)

	reply, err := client.Mix(context.Background(), 3, 0.05)
	require.NoError(t, err)
	assert.Equal(t, "Mix,3,0.05", reply.Message)
	assert.False(t, bench.Pumps.Active(3), "ack arrives after the pump stopped")
	assert.InDelta(t, 0.05, bench.Pumps.Dispensed(3), 0.03)
}

func TestClient_Measure(t *testing.T) {
	client, bench := startDevice(t)
	bench.Sensor.SetFixed(&[3]float64{100, 150, 200})

	rgb, err := client.Measure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, mixproto.RGB{R: 100, G: 150, B: 200}, rgb)

	stats := client.Stats()
	assert.Equal(t, uint64(1), stats.AckReplies)
	assert.Equal(t, uint64(1), stats.RGBReplies)
	assert.Equal(t, uint64(1), stats.ReadyReplies)
}

func TestClient_RejectsOversizedPayload(t *testing.T) {
	client, _ := startDevice(t)
	_, err := client.Send(context.Background(), "Foo,0123456789012345678901234567890123456789")
	assert.Error(t, err)
}

func TestClient_Timeout(t *testing.T) {
	hostConn, devConn := net.Pipe()
	defer hostConn.Close()
	defer devConn.Close()
	go func() { _, _ = io.Copy(io.Discard, devConn) }()

	client := host.NewClient(hostConn, host.Options{ReplyTimeout: 50 * time.Millisecond})
	_, err := client.Send(context.Background(), "Meas")
	require.Error(t, err)
	assert.ErrorIs(t, err, host.ErrTimeout)
}

func TestClient_ConnectionClosed(t *testing.T) {
	hostConn, devConn := net.Pipe()
	defer hostConn.Close()

	client := host.NewClient(hostConn, host.DefaultOptions())
	require.NoError(t, devConn.Close())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := client.WaitReady(ctx)
	assert.ErrorIs(t, err, host.ErrClosed)
}

// ============================================================
// Pump Controller Tests
// ============================================================

func TestPumpController_MixColor(t *testing.T) {
	client, bench := startDevice(t)

	logPath := filepath.Join(t.TempDir(), "mix.cbor")
	w, err := mixlog.Open(logPath)
	require.NoError(t, err)

	pc, err := host.NewPumpController(client, fastControllerConfig(), w, nil)
	require.NoError(t, err)

	rgb, err := pc.MixColor(context.Background(), []float64{1, 1, -3, 0}, false)
	require.NoError(t, err)
	require.Len(t, rgb, 3)
	assert.InDelta(t, 127, rgb[0], 15)
	assert.InDelta(t, 127, rgb[1], 15)
	assert.Zero(t, rgb[2])

	// Reset leaves a drained cell.
	assert.Zero(t, bench.Cell.Total())
	assert.Zero(t, bench.Pumps.Dispensed(4), "blue was clipped to zero")
	assert.Greater(t, bench.Pumps.Dispensed(6), 0.0, "flush ran the water pump")

	require.NoError(t, w.Close())
	records, err := mixlog.ReadFile(logPath)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []float64{0.5, 0.5, 0, 0}, records[0].Mixture)
	assert.Equal(t, rgb, records[0].Measurement)
	assert.False(t, records[0].HasTarget())
}

func TestPumpController_ChangeTargetNotLogged(t *testing.T) {
	client, _ := startDevice(t)

	logPath := filepath.Join(t.TempDir(), "mix.cbor")
	w, err := mixlog.Open(logPath)
	require.NoError(t, err)

	pc, err := host.NewPumpController(client, fastControllerConfig(), w, nil)
	require.NoError(t, err)

	targetColor, err := pc.ChangeTarget(context.Background(), []float64{0, 0, 1, 0})
	require.NoError(t, err)
	mixture, color := pc.Target()
	assert.Equal(t, []float64{0, 0, 1, 0}, mixture)
	assert.Equal(t, targetColor, color)
	assert.Equal(t, 0, w.Count())

	_, err = pc.MixColor(context.Background(), []float64{0, 0, 1, 0}, false)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	records, err := mixlog.ReadFile(logPath)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].HasTarget())
	assert.Equal(t, targetColor, records[0].TargetMeasurement)
}

func TestPumpController_RunPumpSkipsNonPositive(t *testing.T) {
	client, bench := startDevice(t)

	cfg := fastControllerConfig()
	cfg.Pumps[host.PumpRed] = host.PumpConfig{Pin: 2, A: 0.01, B: -1}
	pc, err := host.NewPumpController(client, cfg, nil, nil)
	require.NoError(t, err)

	require.NoError(t, pc.RunPump(context.Background(), host.PumpRed, 15))
	require.NoError(t, pc.RunPump(context.Background(), host.PumpGreen, 0))
	require.NoError(t, pc.RunPump(context.Background(), host.PumpGreen, -2))
	assert.Empty(t, bench.Pumps.History())

	err = pc.RunPump(context.Background(), "Z", 1)
	assert.ErrorIs(t, err, host.ErrUnknownPump)
}

func TestPumpController_PurgeAndDrain(t *testing.T) {
	client, bench := startDevice(t)
	pc, err := host.NewPumpController(client, fastControllerConfig(), nil, nil)
	require.NoError(t, err)

	require.NoError(t, pc.PurgePump(context.Background(), host.PumpYellow, 0.03))
	assert.InDelta(t, 0.03, bench.Pumps.Dispensed(5), 0.03)
	assert.Greater(t, bench.Cell.Volume(sim.FluidYellow), 0.0)

	require.NoError(t, pc.Drain(context.Background(), 0))
	assert.Zero(t, bench.Cell.Total())
}

func TestPumpController_CancelledContext(t *testing.T) {
	client, _ := startDevice(t)
	cfg := fastControllerConfig()
	cfg.StepDelay = time.Hour
	pc, err := host.NewPumpController(client, cfg, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = pc.MixColor(ctx, []float64{1, 0, 0, 0}, false)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

// ============================================================
// Configuration and Helper Tests
// ============================================================

func TestNormalizeMixture(t *testing.T) {
	tests := []struct {
		name    string
		in      []float64
		want    []float64
		wantErr bool
	}{
		{"already normalized", []float64{0.25, 0.25, 0.25, 0.25}, []float64{0.25, 0.25, 0.25, 0.25}, false},
		{"scaled", []float64{2, 0, 0, 2}, []float64{0.5, 0, 0, 0.5}, false},
		{"negatives clipped", []float64{-1, 3, 1, 0}, []float64{0, 0.75, 0.25, 0}, false},
		{"all zero", []float64{0, 0, 0, 0}, nil, true},
		{"all negative", []float64{-1, -1, -1, -1}, nil, true},
		{"wrong length", []float64{1, 1, 1}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := host.NormalizeMixture(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDeltaSlice(t, tt.want, got, 1e-12)
		})
	}
	_, err := host.NormalizeMixture([]float64{0, 0, 0, 0})
	assert.ErrorIs(t, err, host.ErrEmptyMixture)
}

func TestPumpConfigRunTime(t *testing.T) {
	p := host.PumpConfig{Pin: 2, A: 0.8, B: 0.5}
	assert.InDelta(t, 12.5, p.RunTime(15), 1e-12)
}

func TestControllerConfigValidate(t *testing.T) {
	assert.NoError(t, host.DefaultControllerConfig().Validate())

	cfg := host.DefaultControllerConfig()
	delete(cfg.Pumps, host.PumpWater)
	assert.ErrorIs(t, cfg.Validate(), host.ErrUnknownPump)

	cfg = host.DefaultControllerConfig()
	cfg.CellVolume = 0
	assert.Error(t, cfg.Validate())
}

func TestColorHelpers(t *testing.T) {
	assert.InDelta(t, 1.0, host.Luminance(255, 255, 255), 1e-9)
	assert.Zero(t, host.Luminance(0, 0, 0))
	assert.Equal(t, "#000000", host.TextColor(255, 255, 0))
	assert.Equal(t, "#FFFFFF", host.TextColor(0, 0, 255))
	assert.Equal(t, "#FF8000", host.Hex(300, 127.6, -4))
}

// ============================================================
// Silico Controller Tests
// ============================================================

func TestSilicoController(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "silico.cbor")
	w, err := mixlog.Open(logPath)
	require.NoError(t, err)

	var mixer host.Mixer = host.NewSilicoController(0, 1, w, nil)

	target, err := mixer.ChangeTarget(context.Background(), []float64{0, 0, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, []float64{255, 255, 0}, target)

	got, err := mixer.MixColor(context.Background(), []float64{1, 0, 1, 0}, false)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{127.5, 0, 127.5}, got, 1e-9)

	require.NoError(t, w.Close())
	records, err := mixlog.ReadFile(logPath)
	require.NoError(t, err)
	require.Len(t, records, 1, "target changes are not logged")
	assert.Equal(t, []float64{255, 255, 0}, records[0].TargetMeasurement)
	assert.Equal(t, []float64{0, 0, 0, 1}, records[0].TargetMixture)
}

func TestSilicoController_NoiseClipped(t *testing.T) {
	s := host.NewSilicoController(500, 7, nil, nil)
	for i := 0; i < 100; i++ {
		got, err := s.MixColor(context.Background(), []float64{1, 1, 1, 1}, false)
		require.NoError(t, err)
		for _, v := range got {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 255.0)
		}
	}
}

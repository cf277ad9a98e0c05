// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/mixbot/pkg/firmware"
	"github.com/Thermoquad/mixbot/pkg/host"
)

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mixbot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9600, cfg.Serial.Baud)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "/serial", cfg.WebSocket.Path)
	assert.Equal(t, firmware.DefaultConfig(), cfg.Firmware())
	assert.Equal(t, time.Millisecond, cfg.Device.PollInterval)

	ctrl := cfg.HostController()
	assert.Equal(t, host.DefaultControllerConfig(), ctrl)

	opts := cfg.ClientOptions(nil)
	assert.Equal(t, host.DefaultReplyTimeout, opts.ReplyTimeout)
	assert.Equal(t, host.DefaultCommandInterval, opts.CommandInterval)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
serial:
  port: /dev/ttyUSB3
device:
  averaging: legacy
  settleTime: 50ms
controller:
  cellVolume: 20
  pumps:
    R: {pin: 10, a: 0.8, b: 0.1}
    G: {pin: 11, a: 1, b: 0}
    B: {pin: 12, a: 1, b: 0}
    Y: {pin: 13, a: 1, b: 0}
    W: {pin: 14, a: 1, b: 0}
    D: {pin: 15, a: 1, b: 0}
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/dev/ttyUSB3", cfg.Serial.Port)
	assert.Equal(t, firmware.AveragingLegacy, cfg.Firmware().Averaging)
	assert.Equal(t, 50*time.Millisecond, cfg.Firmware().SettleTime)
	assert.Equal(t, 100*time.Millisecond, cfg.Firmware().SampleInterval)

	ctrl := cfg.HostController()
	assert.Equal(t, 20.0, ctrl.CellVolume)
	assert.Equal(t, host.PumpConfig{Pin: 10, A: 0.8, B: 0.1}, ctrl.Pumps[host.PumpRed])
	assert.Equal(t, 15, ctrl.Pumps[host.PumpDrain].Pin)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("MIXBOT_SERIAL_BAUD", "115200")
	t.Setenv("MIXBOT_DEVICE_AVERAGING", "legacy")
	path := writeConfig(t, "serial:\n  baud: 19200\n")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 115200, cfg.Serial.Baud)
	assert.Equal(t, "legacy", cfg.Device.Averaging)
}

func TestLoad_ConfigFromEnv(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: debug\n")
	t.Setenv("MIXBOT_CONFIG", path)

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_FlagsWin(t *testing.T) {
	t.Setenv("MIXBOT_SERIAL_PORT", "/dev/from-env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.StringP("port", "p", "", "")
	flags.IntP("baud", "b", 9600, "")
	flags.String("url", "", "")
	require.NoError(t, flags.Parse([]string{"--port", "/dev/from-flag"}))

	cfg, err := Load(writeConfig(t, "serial:\n  baud: 57600\n"), flags)
	require.NoError(t, err)
	assert.Equal(t, "/dev/from-flag", cfg.Serial.Port)
	assert.Equal(t, 57600, cfg.Serial.Baud, "unset flags do not override the file")
	assert.Empty(t, cfg.WebSocket.URL)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"baud", func(c *Config) { c.Serial.Baud = 0 }},
		{"format", func(c *Config) { c.Logging.Format = "xml" }},
		{"averaging", func(c *Config) { c.Device.Averaging = "median" }},
		{"samples", func(c *Config) { c.Device.Samples = 0 }},
		{"poll interval", func(c *Config) { c.Device.PollInterval = 0 }},
		{"relative path", func(c *Config) { c.WebSocket.Path = "serial" }},
		{"route collision", func(c *Config) { c.WebSocket.Path = "/metrics" }},
		{"missing pump", func(c *Config) { delete(c.Controller.Pumps, host.PumpWater) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			cfg, err := Load("", nil)
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

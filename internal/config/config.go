// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads mixbot settings from a config file, MIXBOT_*
// environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Thermoquad/mixbot/pkg/firmware"
	"github.com/Thermoquad/mixbot/pkg/firmware/sim"
	"github.com/Thermoquad/mixbot/pkg/host"
)

// EnvPrefix prefixes every environment override, e.g. MIXBOT_SERIAL_BAUD
const EnvPrefix = "MIXBOT"

// SerialConfig selects the serial port
type SerialConfig struct {
	Port string `mapstructure:"port"`
	Baud int    `mapstructure:"baud"`
}

// WebSocketConfig configures the WebSocket client and the device server
type WebSocketConfig struct {
	URL         string `mapstructure:"url"`
	Username    string `mapstructure:"username"`
	NoSSLVerify bool   `mapstructure:"noSSLVerify"`
	Listen      string `mapstructure:"listen"`
	Path        string `mapstructure:"path"`
}

// LumberjackConfig configures log file rotation
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig configures the zap logger
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig configures the Prometheus endpoint of the device command
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
	Path string `mapstructure:"path"`
}

// DeviceConfig configures the firmware core
type DeviceConfig struct {
	PumpPins       []int         `mapstructure:"pumpPins"`
	SettleTime     time.Duration `mapstructure:"settleTime"`
	SampleInterval time.Duration `mapstructure:"sampleInterval"`
	Cooldown       time.Duration `mapstructure:"cooldown"`
	Samples        int           `mapstructure:"samples"`
	IndicatorLEDs  []int         `mapstructure:"indicatorLEDs"`
	Brightness     uint8         `mapstructure:"brightness"`
	Averaging      string        `mapstructure:"averaging"`
	PollInterval   time.Duration `mapstructure:"pollInterval"`
	RxBufferSize   int           `mapstructure:"rxBufferSize"`
}

// SimConfig configures the simulated bench
type SimConfig struct {
	FlowRate float64 `mapstructure:"flowRate"`
	NoiseStd float64 `mapstructure:"noiseStd"`
	Seed     int64   `mapstructure:"seed"`
}

// ControllerConfig configures the host-side pump sequences
type ControllerConfig struct {
	Pumps           map[string]host.PumpConfig `mapstructure:"pumps"`
	CellVolume      float64                    `mapstructure:"cellVolume"`
	DrainTime       float64                    `mapstructure:"drainTime"`
	PurgeTime       float64                    `mapstructure:"purgeTime"`
	StepDelay       time.Duration              `mapstructure:"stepDelay"`
	CommandInterval time.Duration              `mapstructure:"commandInterval"`
	ReplyTimeout    time.Duration              `mapstructure:"replyTimeout"`
	LogDir          string                     `mapstructure:"logDir"`
	SilicoLogDir    string                     `mapstructure:"silicoLogDir"`
	SilicoNoise     float64                    `mapstructure:"silicoNoise"`
}

// Config is the top-level configuration
type Config struct {
	Serial     SerialConfig     `mapstructure:"serial"`
	WebSocket  WebSocketConfig  `mapstructure:"websocket"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Device     DeviceConfig     `mapstructure:"device"`
	Sim        SimConfig        `mapstructure:"sim"`
	Controller ControllerConfig `mapstructure:"controller"`
}

// flagKeys maps config keys to the persistent CLI flags that override them
var flagKeys = map[string]string{
	"serial.port":           "port",
	"serial.baud":           "baud",
	"websocket.url":         "url",
	"websocket.username":    "username",
	"websocket.noSSLVerify": "no-ssl-verify",
	"logging.level":         "log-level",
}

// Load reads the configuration. An empty path falls back to MIXBOT_CONFIG,
// then to mixbot.{yaml,json,toml} in the working directory or
// ~/.config/mixbot; a missing default file is not an error. flags may be
// nil; flags that were set on the command line win over every other source.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/mixbot")
		}
		v.SetConfigName("mixbot")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Controller.Pumps = normalizePumps(cfg.Controller.Pumps)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baud", 9600)

	v.SetDefault("websocket.url", "")
	v.SetDefault("websocket.username", "")
	v.SetDefault("websocket.noSSLVerify", false)
	v.SetDefault("websocket.listen", "")
	v.SetDefault("websocket.path", "/serial")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 10)
	v.SetDefault("logging.file.maxBackups", 3)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", false)

	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.path", "/metrics")

	dev := firmware.DefaultConfig()
	v.SetDefault("device.pumpPins", dev.PumpPins)
	v.SetDefault("device.settleTime", dev.SettleTime.String())
	v.SetDefault("device.sampleInterval", dev.SampleInterval.String())
	v.SetDefault("device.cooldown", dev.Cooldown.String())
	v.SetDefault("device.samples", dev.Samples)
	v.SetDefault("device.indicatorLEDs", dev.IndicatorLEDs)
	v.SetDefault("device.brightness", dev.Brightness)
	v.SetDefault("device.averaging", string(dev.Averaging))
	v.SetDefault("device.pollInterval", "1ms")
	v.SetDefault("device.rxBufferSize", firmware.DefaultRxBufferSize)

	v.SetDefault("sim.flowRate", 1.0)
	v.SetDefault("sim.noiseStd", 2.0)
	v.SetDefault("sim.seed", 0)

	ctrl := host.DefaultControllerConfig()
	pumps := make(map[string]any, len(ctrl.Pumps))
	for name, p := range ctrl.Pumps {
		pumps[name] = map[string]any{"pin": p.Pin, "a": p.A, "b": p.B}
	}
	v.SetDefault("controller.pumps", pumps)
	v.SetDefault("controller.cellVolume", ctrl.CellVolume)
	v.SetDefault("controller.drainTime", ctrl.DrainTime)
	v.SetDefault("controller.purgeTime", ctrl.PurgeTime)
	v.SetDefault("controller.stepDelay", ctrl.StepDelay.String())
	v.SetDefault("controller.commandInterval", host.DefaultCommandInterval.String())
	v.SetDefault("controller.replyTimeout", host.DefaultReplyTimeout.String())
	v.SetDefault("controller.logDir", "logs")
	v.SetDefault("controller.silicoLogDir", "silicologs")
	v.SetDefault("controller.silicoNoise", 5.0)
}

// normalizePumps restores the upper-case pump names viper folds to lower case
func normalizePumps(pumps map[string]host.PumpConfig) map[string]host.PumpConfig {
	out := make(map[string]host.PumpConfig, len(pumps))
	for name, p := range pumps {
		out[strings.ToUpper(name)] = p
	}
	return out
}

// Validate checks every section the commands consume
func (c *Config) Validate() error {
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	if err := c.Firmware().Validate(); err != nil {
		return fmt.Errorf("device: %w", err)
	}
	if !strings.HasPrefix(c.WebSocket.Path, "/") || !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("websocket.path and metrics.path must start with /")
	}
	switch c.WebSocket.Path {
	case c.Metrics.Path, "/healthz", "/readyz":
		return fmt.Errorf("websocket.path %q collides with another device route", c.WebSocket.Path)
	}
	if c.Device.PollInterval <= 0 {
		return fmt.Errorf("device.pollInterval must be positive, got %s", c.Device.PollInterval)
	}
	if err := c.HostController().Validate(); err != nil {
		return fmt.Errorf("controller: %w", err)
	}
	return nil
}

// Firmware returns the firmware core configuration
func (c *Config) Firmware() firmware.Config {
	return firmware.Config{
		PumpPins:       append([]int(nil), c.Device.PumpPins...),
		SettleTime:     c.Device.SettleTime,
		SampleInterval: c.Device.SampleInterval,
		Cooldown:       c.Device.Cooldown,
		Samples:        c.Device.Samples,
		IndicatorLEDs:  append([]int(nil), c.Device.IndicatorLEDs...),
		Brightness:     c.Device.Brightness,
		Averaging:      firmware.Averaging(strings.ToLower(c.Device.Averaging)),
	}
}

// SimOptions returns the simulated bench options
func (c *Config) SimOptions() sim.Options {
	opts := sim.DefaultOptions()
	opts.FlowRate = c.Sim.FlowRate
	opts.NoiseStd = c.Sim.NoiseStd
	opts.Seed = c.Sim.Seed
	return opts
}

// HostController returns the pump sequence configuration
func (c *Config) HostController() host.ControllerConfig {
	pumps := make(map[string]host.PumpConfig, len(c.Controller.Pumps))
	for name, p := range c.Controller.Pumps {
		pumps[name] = p
	}
	return host.ControllerConfig{
		Pumps:      pumps,
		CellVolume: c.Controller.CellVolume,
		DrainTime:  c.Controller.DrainTime,
		PurgeTime:  c.Controller.PurgeTime,
		StepDelay:  c.Controller.StepDelay,
	}
}

// ClientOptions returns the host client options
func (c *Config) ClientOptions(logger *zap.Logger) host.Options {
	return host.Options{
		ReplyTimeout:    c.Controller.ReplyTimeout,
		CommandInterval: c.Controller.CommandInterval,
		Logger:          logger,
	}
}

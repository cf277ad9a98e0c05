// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/mixbot/pkg/mixlog"
)

// Pump names used by the sequences
const (
	PumpRed    = "R"
	PumpGreen  = "G"
	PumpBlue   = "B"
	PumpYellow = "Y"
	PumpWater  = "W"
	PumpDrain  = "D"
)

// MixturePumps are the dye pumps in mixture order
var MixturePumps = []string{PumpRed, PumpGreen, PumpBlue, PumpYellow}

// ErrUnknownPump is returned for pump names missing from the configuration
var ErrUnknownPump = errors.New("unknown pump")

// ErrEmptyMixture is returned when a mixture has no positive component
var ErrEmptyMixture = errors.New("mixture has no positive component")

// PumpConfig is the wiring and calibration of one pump.
// Running the pump for A*volume+B seconds dispenses volume.
type PumpConfig struct {
	Pin int     `mapstructure:"pin"`
	A   float64 `mapstructure:"a"`
	B   float64 `mapstructure:"b"`
}

// RunTime returns the pump time for volume
func (p PumpConfig) RunTime(volume float64) float64 {
	return p.A*volume + p.B
}

// ControllerConfig configures the pump sequences
type ControllerConfig struct {
	Pumps      map[string]PumpConfig
	CellVolume float64       // volume of the test cell
	DrainTime  float64       // seconds to empty the cell
	PurgeTime  float64       // seconds to prime a hose
	StepDelay  time.Duration // pause between sequence steps
}

// DefaultControllerConfig returns the standard bench configuration
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		Pumps: map[string]PumpConfig{
			PumpRed:    {Pin: 2, A: 1, B: 0},
			PumpGreen:  {Pin: 3, A: 1, B: 0},
			PumpBlue:   {Pin: 4, A: 1, B: 0},
			PumpYellow: {Pin: 5, A: 1, B: 0},
			PumpWater:  {Pin: 6, A: 1, B: 0},
			PumpDrain:  {Pin: 7, A: 1, B: 0},
		},
		CellVolume: 15.0,
		DrainTime:  15.0,
		PurgeTime:  10.0,
		StepDelay:  time.Second,
	}
}

// Validate checks that every pump the sequences use is configured
func (c ControllerConfig) Validate() error {
	var missing []string
	for _, name := range append(append([]string{}, MixturePumps...), PumpWater, PumpDrain) {
		if _, ok := c.Pumps[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: no configuration for %v", ErrUnknownPump, missing)
	}
	if c.CellVolume <= 0 {
		return fmt.Errorf("cell volume must be positive, got %g", c.CellVolume)
	}
	return nil
}

// Mixer mixes colors and measures them, on hardware or in simulation
type Mixer interface {
	// MixColor mixes the [R, G, B, Y] mixture and returns the measured RGB.
	// The result is logged unless changingTarget is set.
	MixColor(ctx context.Context, mixture []float64, changingTarget bool) ([]float64, error)

	// ChangeTarget mixes mixture and stores it as the target color
	ChangeTarget(ctx context.Context, mixture []float64) ([]float64, error)

	// Target returns the current target mixture and color (nil if unset)
	Target() (mixture, color []float64)
}

// NormalizeMixture clips negative components to zero and scales the
// mixture to sum to one. It requires exactly four components.
func NormalizeMixture(mixture []float64) ([]float64, error) {
	if len(mixture) != len(MixturePumps) {
		return nil, fmt.Errorf("mixture needs %d components (R, G, B, Y), got %d", len(MixturePumps), len(mixture))
	}
	out := make([]float64, len(mixture))
	var sum float64
	for i, v := range mixture {
		if v > 0 {
			out[i] = v
			sum += v
		}
	}
	if sum == 0 {
		return nil, ErrEmptyMixture
	}
	for i := range out {
		out[i] /= sum
	}
	return out, nil
}

// target holds the target shared by both Mixer implementations
type target struct {
	mixture []float64
	color   []float64
}

func (t *target) Target() ([]float64, []float64) {
	return t.mixture, t.color
}

func (t *target) record(mixture, measurement []float64) mixlog.Record {
	return mixlog.Record{
		Mixture:           mixture,
		Measurement:       measurement,
		TargetMixture:     t.mixture,
		TargetMeasurement: t.color,
	}
}

// PumpController runs mixing sequences on a connected device
type PumpController struct {
	target
	client *Client
	cfg    ControllerConfig
	log    *mixlog.Writer
	logger *zap.Logger
}

// NewPumpController creates a controller. log may be nil to disable the
// mixing log.
func NewPumpController(client *Client, cfg ControllerConfig, log *mixlog.Writer, logger *zap.Logger) (*PumpController, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PumpController{
		client: client,
		cfg:    cfg,
		log:    log,
		logger: logger,
	}, nil
}

// Client returns the underlying device client
func (pc *PumpController) Client() *Client {
	return pc.client
}

func (pc *PumpController) pump(name string) (PumpConfig, error) {
	p, ok := pc.cfg.Pumps[name]
	if !ok {
		return PumpConfig{}, fmt.Errorf("%w: %q", ErrUnknownPump, name)
	}
	return p, nil
}

func (pc *PumpController) pause(ctx context.Context) error {
	if pc.cfg.StepDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(pc.cfg.StepDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Measure takes a color measurement
func (pc *PumpController) Measure(ctx context.Context) ([]float64, error) {
	rgb, err := pc.client.Measure(ctx)
	if err != nil {
		return nil, err
	}
	return rgb.Slice(), nil
}

// PurgePump runs a pump for seconds to prime its hose. A non-positive
// duration uses the configured purge time.
func (pc *PumpController) PurgePump(ctx context.Context, name string, seconds float64) error {
	p, err := pc.pump(name)
	if err != nil {
		return err
	}
	if seconds <= 0 {
		seconds = pc.cfg.PurgeTime
	}
	pc.logger.Info("purging pump", zap.String("pump", name), zap.Float64("seconds", seconds))
	_, err = pc.client.Mix(ctx, p.Pin, seconds)
	return err
}

// RunPump dispenses volume through a pump using its calibration. Nothing is
// sent when the volume or the resulting run time is not positive.
func (pc *PumpController) RunPump(ctx context.Context, name string, volume float64) error {
	p, err := pc.pump(name)
	if err != nil {
		return err
	}
	if volume <= 0 {
		return nil
	}
	seconds := p.RunTime(volume)
	if seconds <= 0 {
		pc.logger.Debug("skipping pump with non-positive run time",
			zap.String("pump", name), zap.Float64("volume", volume), zap.Float64("seconds", seconds))
		return nil
	}
	pc.logger.Debug("running pump",
		zap.String("pump", name),
		zap.Float64("volume", volume),
		zap.Float64("seconds", seconds))
	_, err = pc.client.Mix(ctx, p.Pin, seconds)
	return err
}

// Flush fills the test cell with water
func (pc *PumpController) Flush(ctx context.Context) error {
	return pc.RunPump(ctx, PumpWater, pc.cfg.CellVolume)
}

// Drain empties the test cell. A non-positive duration uses the configured
// drain time.
func (pc *PumpController) Drain(ctx context.Context, seconds float64) error {
	if seconds <= 0 {
		seconds = pc.cfg.DrainTime
	}
	return pc.PurgePump(ctx, PumpDrain, seconds)
}

// Reset drains, flushes and drains again, leaving a clean cell
func (pc *PumpController) Reset(ctx context.Context) error {
	steps := []func(context.Context) error{
		func(ctx context.Context) error { return pc.Drain(ctx, 0) },
		pc.Flush,
		func(ctx context.Context) error { return pc.Drain(ctx, 0) },
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		if err := pc.pause(ctx); err != nil {
			return err
		}
	}
	return nil
}

// MixColor implements Mixer. The mixture is normalized and scaled to the
// cell volume; the dye pumps run in R, G, B, Y order, the cell is measured
// and then reset.
func (pc *PumpController) MixColor(ctx context.Context, mixture []float64, changingTarget bool) ([]float64, error) {
	fractions, err := NormalizeMixture(mixture)
	if err != nil {
		return nil, err
	}

	for i, name := range MixturePumps {
		if i > 0 {
			if err := pc.pause(ctx); err != nil {
				return nil, err
			}
		}
		if err := pc.RunPump(ctx, name, fractions[i]*pc.cfg.CellVolume); err != nil {
			return nil, fmt.Errorf("dispensing %s: %w", name, err)
		}
	}
	if err := pc.pause(ctx); err != nil {
		return nil, err
	}

	measurement, err := pc.Measure(ctx)
	if err != nil {
		return nil, err
	}

	if err := pc.pause(ctx); err != nil {
		return nil, err
	}
	if err := pc.Reset(ctx); err != nil {
		return nil, err
	}

	pc.logger.Info("color mixed",
		zap.Float64s("mixture", fractions),
		zap.Float64s("measurement", measurement))

	if !changingTarget && pc.log != nil {
		if err := pc.log.Append(pc.record(fractions, measurement)); err != nil {
			return measurement, err
		}
	}
	return measurement, nil
}

// ChangeTarget implements Mixer
func (pc *PumpController) ChangeTarget(ctx context.Context, mixture []float64) ([]float64, error) {
	color, err := pc.MixColor(ctx, mixture, true)
	if err != nil {
		return nil, err
	}
	pc.target.mixture = append([]float64(nil), mixture...)
	pc.target.color = color
	pc.logger.Info("target changed",
		zap.Float64s("target_color", color),
		zap.Float64s("target_mixture", mixture))
	return color, nil
}

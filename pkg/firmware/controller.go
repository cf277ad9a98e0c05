// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package firmware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Thermoquad/mixbot/pkg/mixproto"
	"go.uber.org/zap"
)

// ErrPinNotConfigured is returned for Mix commands naming a pin that is not
// a configured pump output
var ErrPinNotConfigured = fmt.Errorf("%w: pin is not a configured output", mixproto.ErrCommandArgumentInvalid)

// ErrDurationTooLong is returned for pump durations the wrapping clock
// cannot time
var ErrDurationTooLong = fmt.Errorf("%w: duration too long", mixproto.ErrCommandArgumentInvalid)

// MaxPumpMillis is the longest pump run the controller accepts
const MaxPumpMillis = 1<<31 - 1

// DefaultPollsPerTick bounds the bytes Run consumes per tick
const DefaultPollsPerTick = 64

// Controller is the device main loop: it accumulates frames from the
// serial input, dispatches commands, runs pump and measurement jobs and
// writes replies. All protocol state is owned by the goroutine calling Poll.
type Controller struct {
	cfg      Config
	hw       Hardware
	in       ByteSource
	out      io.Writer
	logger   *zap.Logger
	observer Observer

	acc     *mixproto.Accumulator
	pins    map[int]bool
	job     job
	last    string // last dispatched payload, echoed in acks
	started bool

	statsMu sync.Mutex
	stats   *mixproto.Statistics
}

// NewController creates a controller. Setup must be called before Poll.
func NewController(cfg Config, hw Hardware, in ByteSource, out io.Writer, logger *zap.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid device config: %w", err)
	}
	if hw.Actuator == nil || hw.Sensor == nil || hw.Indicator == nil || hw.Clock == nil {
		return nil, errors.New("incomplete hardware: actuator, sensor, indicator and clock are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pins := make(map[int]bool, len(cfg.PumpPins))
	for _, p := range cfg.PumpPins {
		pins[p] = true
	}

	return &Controller{
		cfg:      cfg,
		hw:       hw,
		in:       in,
		out:      out,
		logger:   logger,
		observer: nopObserver{},
		acc:      mixproto.NewDeviceAccumulator(),
		pins:     pins,
		stats:    mixproto.NewStatistics(),
	}, nil
}

// SetObserver registers o for controller events. Call before Run.
func (c *Controller) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	c.observer = o
}

// Setup announces the device and initializes the hardware: the ready banner
// is sent first, then every pump pin is configured as an inactive output,
// then the sensor and the indicator are started. Any hardware failure is
// fatal.
func (c *Controller) Setup() error {
	if err := c.write(mixproto.EncodeReady(), mixproto.ReplyReady); err != nil {
		return fmt.Errorf("failed to send ready banner: %w", err)
	}

	for _, pin := range c.cfg.PumpPins {
		if err := c.hw.Actuator.ConfigureOutput(pin); err != nil {
			return fmt.Errorf("failed to configure pump pin %d: %w", pin, err)
		}
		if err := c.hw.Actuator.DeactivatePump(pin); err != nil {
			return fmt.Errorf("failed to deactivate pump pin %d: %w", pin, err)
		}
	}

	if err := c.hw.Indicator.Begin(); err != nil {
		return fmt.Errorf("failed to start indicator: %w", err)
	}
	if err := c.hw.Sensor.Begin(); err != nil {
		return fmt.Errorf("failed to start color sensor: %w", err)
	}

	if c.cfg.Averaging == AveragingLegacy {
		c.logger.Warn("legacy averaging selected: measurements report 2/3 of the last sample")
	}

	c.started = true
	c.logger.Info("device ready",
		zap.Ints("pump_pins", c.cfg.PumpPins),
		zap.String("averaging", string(c.cfg.Averaging)))
	return nil
}

// Poll performs one step of the main loop. While a job is running it only
// advances the job; otherwise it reads at most one byte and dispatches the
// frame that byte completes. Returns an error only if a reply could not be
// written.
func (c *Controller) Poll() error {
	if !c.started {
		return errors.New("controller not set up")
	}

	now := c.hw.Clock.Millis()

	if c.job != nil {
		return c.stepJob(now)
	}

	b, ok := c.in.TryReadByte()
	if !ok {
		return nil
	}

	frame, err := c.acc.DecodeByte(b)
	if frame == nil {
		return nil
	}
	return c.dispatch(frame, err, now)
}

// Run polls until ctx is done or a reply cannot be written. Each tick polls
// up to DefaultPollsPerTick times, stopping early when a job starts.
func (c *Controller) Run(ctx context.Context, tick time.Duration) error {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for i := 0; i < DefaultPollsPerTick; i++ {
				if err := c.Poll(); err != nil {
					return err
				}
				if c.job != nil {
					break
				}
			}
		}
	}
}

// Busy reports whether a pump or measurement job is in progress
func (c *Controller) Busy() bool {
	return c.job != nil
}

// State returns the current job state
func (c *Controller) State() JobState {
	if c.job == nil {
		return JobIdle
	}
	return c.job.state()
}

// Stats returns a snapshot of the dispatch statistics
func (c *Controller) Stats() mixproto.Statistics {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return *c.stats
}

func (c *Controller) stepJob(now uint32) error {
	done, err := c.job.step(c, now)
	if done {
		c.job = nil
	}
	return err
}

// startJob installs j and runs its first step in the same poll, so a
// zero-length pump run completes immediately
func (c *Controller) startJob(j job, now uint32) error {
	c.job = j
	return c.stepJob(now)
}

// ============================================================
// Dispatch
// ============================================================

func (c *Controller) dispatch(frame *mixproto.Frame, frameErr error, now uint32) error {
	cmd := mixproto.ParseCommand(frame.Payload())
	c.last = cmd.Raw

	if frameErr != nil {
		c.logger.Warn("command frame truncated",
			zap.String("payload", cmd.Raw),
			zap.Error(frameErr))
	}

	var argErr error
	var act mixproto.PumpActuation
	if cmd.Verb == mixproto.VerbMix {
		act, argErr = c.pumpActuation(cmd)
	}

	c.statsMu.Lock()
	c.stats.UpdateCommand(cmd, frameErr, argErr)
	c.statsMu.Unlock()
	c.observer.FrameDispatched(cmd, frameErr, argErr)

	c.logger.Debug("command received", zap.String("command", mixproto.FormatCommand(cmd)))

	switch cmd.Verb {
	case mixproto.VerbMix:
		if argErr != nil {
			c.logger.Warn("mix command rejected",
				zap.String("payload", cmd.Raw),
				zap.Error(argErr))
			return c.replyAck(now)
		}
		return c.startPump(act, now)

	case mixproto.VerbMeas:
		if err := c.replyAck(now); err != nil {
			return err
		}
		return c.startJob(&measureJob{}, now)

	default:
		c.logger.Debug("unknown command acknowledged", zap.String("verb", cmd.Name))
		return c.replyAck(now)
	}
}

// pumpActuation decodes the Mix arguments and checks them against the
// device configuration
func (c *Controller) pumpActuation(cmd mixproto.Command) (mixproto.PumpActuation, error) {
	act, err := cmd.PumpActuation()
	if err != nil {
		return act, err
	}
	if !c.pins[act.Pin] {
		pinTok, _ := cmd.Arg(0)
		return act, &mixproto.ArgumentError{Verb: cmd.Name, Index: 0, Name: "pin", Value: pinTok, Err: ErrPinNotConfigured}
	}
	if act.Seconds*1000 > MaxPumpMillis {
		durTok, _ := cmd.Arg(1)
		return act, &mixproto.ArgumentError{Verb: cmd.Name, Index: 1, Name: "duration", Value: durTok, Err: ErrDurationTooLong}
	}
	return act, nil
}

func (c *Controller) startPump(act mixproto.PumpActuation, now uint32) error {
	if err := c.hw.Actuator.ActivatePump(act.Pin); err != nil {
		// The hold and the acknowledgement still happen.
		c.logger.Error("failed to start pump", zap.Int("pin", act.Pin), zap.Error(err))
	}
	c.observer.PumpChanged(act.Pin, true)
	c.logger.Debug("pump started",
		zap.Int("pin", act.Pin),
		zap.Float64("seconds", act.Seconds))

	return c.startJob(&pumpJob{
		pin:       act.Pin,
		started:   now,
		deadline:  now + act.Millis(),
		ackMillis: now,
	}, now)
}

// ============================================================
// Replies
// ============================================================

// replyAck acknowledges the last dispatched command. It does nothing if
// the command was already acknowledged.
func (c *Controller) replyAck(millis uint32) error {
	if !c.acc.TakeReady() {
		return nil
	}
	return c.write(mixproto.EncodeAck(c.last, millis), mixproto.ReplyAck)
}

func (c *Controller) replyRGB(color mixproto.RGB) error {
	return c.write(mixproto.EncodeRGB(color), mixproto.ReplyRGB)
}

func (c *Controller) write(data []byte, kind mixproto.ReplyKind) error {
	if _, err := c.out.Write(data); err != nil {
		return fmt.Errorf("failed to write %s reply: %w", kind, err)
	}
	c.observer.ReplySent(kind)
	return nil
}

// ============================================================
// Indicator
// ============================================================

func (c *Controller) lightOn() {
	ind := c.hw.Indicator
	if err := ind.Off(); err != nil {
		c.logger.Error("indicator off failed", zap.Error(err))
	}
	if err := ind.SetBrightness(c.cfg.Brightness); err != nil {
		c.logger.Error("indicator brightness failed", zap.Error(err))
	}
	for _, led := range c.cfg.IndicatorLEDs {
		if err := ind.SetColor(led, 255, 255, 255); err != nil {
			c.logger.Error("indicator color failed", zap.Int("led", led), zap.Error(err))
		}
	}
}

func (c *Controller) lightOff() {
	if err := c.hw.Indicator.Off(); err != nil {
		c.logger.Error("indicator off failed", zap.Error(err))
	}
}

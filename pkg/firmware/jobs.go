// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package firmware

import (
	"math"

	"github.com/Thermoquad/mixbot/pkg/mixproto"
	"go.uber.org/zap"
)

// JobState is the controller activity on top of the frame accumulator
type JobState int

const (
	JobIdle JobState = iota
	JobPumpRunning
	JobMeasuring
)

// String returns a human-readable job state
func (s JobState) String() string {
	switch s {
	case JobPumpRunning:
		return "PUMP_RUNNING"
	case JobMeasuring:
		return "MEASURING"
	default:
		return "IDLE"
	}
}

// job is a long-running command advanced by Poll.
// step returns true once the job has finished and emitted its replies.
type job interface {
	state() JobState
	step(c *Controller, now uint32) (bool, error)
}

// expired reports whether deadline has been reached on a wrapping clock.
// Valid for deadlines less than 2^31 ms ahead.
func expired(now, deadline uint32) bool {
	return int32(now-deadline) >= 0
}

// ============================================================
// Pump job
// ============================================================

// pumpJob holds one pump on until its deadline, then acknowledges the command
type pumpJob struct {
	pin       int
	started   uint32
	deadline  uint32
	ackMillis uint32
}

func (j *pumpJob) state() JobState { return JobPumpRunning }

func (j *pumpJob) step(c *Controller, now uint32) (bool, error) {
	if !expired(now, j.deadline) {
		return false, nil
	}

	if err := c.hw.Actuator.DeactivatePump(j.pin); err != nil {
		c.logger.Error("failed to stop pump", zap.Int("pin", j.pin), zap.Error(err))
	}
	c.observer.PumpChanged(j.pin, false)
	c.logger.Debug("pump stopped",
		zap.Int("pin", j.pin),
		zap.Uint32("ran_ms", now-j.started))

	return true, c.replyAck(j.ackMillis)
}

// ============================================================
// Measurement job
// ============================================================

type measurePhase int

const (
	phaseLightOn measurePhase = iota
	phaseSettle
	phaseSampling
	phaseCooldown
)

type sample struct {
	r, g, b float64
}

// measureJob lights the cell, waits for it to settle, takes the configured
// number of samples, cools down, turns the light off and reports the average
type measureJob struct {
	phase    measurePhase
	deadline uint32
	taken    int
	failed   int
	samples  []sample
}

func (j *measureJob) state() JobState { return JobMeasuring }

func (j *measureJob) step(c *Controller, now uint32) (bool, error) {
	switch j.phase {
	case phaseLightOn:
		c.lightOn()
		j.deadline = now + millis(c.cfg.SettleTime)
		j.phase = phaseSettle
		return false, nil

	case phaseSettle:
		if !expired(now, j.deadline) {
			return false, nil
		}
		j.takeSample(c)
		j.deadline = now + millis(c.cfg.SampleInterval)
		j.phase = phaseSampling
		return false, nil

	case phaseSampling:
		if !expired(now, j.deadline) {
			return false, nil
		}
		if j.taken < c.cfg.Samples {
			j.takeSample(c)
			j.deadline = now + millis(c.cfg.SampleInterval)
			return false, nil
		}
		j.deadline = now + millis(c.cfg.Cooldown)
		j.phase = phaseCooldown
		return false, nil

	case phaseCooldown:
		if !expired(now, j.deadline) {
			return false, nil
		}
		c.lightOff()

		color := average(j.samples, c.cfg.Averaging)
		if j.failed > 0 {
			c.logger.Warn("measurement samples failed",
				zap.Int("failed", j.failed),
				zap.Int("samples", c.cfg.Samples))
		}
		c.observer.MeasurementDone(color, j.failed)
		return true, c.replyRGB(color)
	}
	return true, nil
}

func (j *measureJob) takeSample(c *Controller) {
	j.taken++
	r, g, b, err := c.hw.Sensor.RawRGB()
	if err != nil {
		j.failed++
		c.logger.Error("sensor read failed", zap.Int("sample", j.taken), zap.Error(err))
		return
	}
	j.samples = append(j.samples, sample{r: r, g: g, b: b})
}

// average combines samples into the reported color. Failed samples are not
// part of samples; with no samples at all the result is black.
func average(samples []sample, mode Averaging) mixproto.RGB {
	if len(samples) == 0 {
		return mixproto.RGB{}
	}

	var r, g, b float64
	switch mode {
	case AveragingLegacy:
		last := samples[len(samples)-1]
		r, g, b = (last.r+last.r)/3.0, (last.g+last.g)/3.0, (last.b+last.b)/3.0
	default:
		for _, s := range samples {
			r += s.r
			g += s.g
			b += s.b
		}
		n := float64(len(samples))
		r, g, b = r/n, g/n, b/n
	}

	return mixproto.RGB{R: channel(r), G: channel(g), B: channel(b)}
}

// channel truncates toward zero like a C int cast and clamps at zero
func channel(v float64) int {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	return int(v)
}

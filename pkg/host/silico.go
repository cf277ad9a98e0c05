// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package host

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/Thermoquad/mixbot/pkg/firmware/sim"
	"github.com/Thermoquad/mixbot/pkg/mixlog"
)

// SilicoController is a Mixer without hardware: the measured color is the
// mixture applied to the pure dye readings, plus Gaussian noise, clipped to
// [0, 255]
type SilicoController struct {
	target
	mu       sync.Mutex
	noiseStd float64
	rng      *rand.Rand
	log      *mixlog.Writer
	logger   *zap.Logger
}

// NewSilicoController creates a simulated mixer. log may be nil.
func NewSilicoController(noiseStd float64, seed int64, log *mixlog.Writer, logger *zap.Logger) *SilicoController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SilicoController{
		noiseStd: noiseStd,
		rng:      rand.New(rand.NewSource(seed)),
		log:      log,
		logger:   logger,
	}
}

// MixColor implements Mixer
func (s *SilicoController) MixColor(ctx context.Context, mixture []float64, changingTarget bool) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fractions, err := NormalizeMixture(mixture)
	if err != nil {
		return nil, err
	}

	var f [4]float64
	copy(f[:], fractions)
	mixed := sim.MixColor(f)

	s.mu.Lock()
	color := make([]float64, len(mixed))
	for i, v := range mixed {
		if s.noiseStd > 0 {
			v += s.rng.NormFloat64() * s.noiseStd
		}
		color[i] = math.Min(math.Max(v, 0), 255)
	}
	s.mu.Unlock()

	s.logger.Debug("silico color mixed",
		zap.Float64s("mixture", fractions),
		zap.Float64s("measurement", color))

	if !changingTarget && s.log != nil {
		if err := s.log.Append(s.record(fractions, color)); err != nil {
			return color, err
		}
	}
	return color, nil
}

// ChangeTarget implements Mixer
func (s *SilicoController) ChangeTarget(ctx context.Context, mixture []float64) ([]float64, error) {
	color, err := s.MixColor(ctx, mixture, true)
	if err != nil {
		return nil, err
	}
	s.target.mixture = append([]float64(nil), mixture...)
	s.target.color = color
	s.logger.Info("silico target changed",
		zap.Float64s("target_color", color),
		zap.Float64s("target_mixture", mixture))
	return color, nil
}

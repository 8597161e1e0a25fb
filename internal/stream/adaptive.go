// Package stream chunks large inputs and feeds them through translation,
// with an adaptive feedback controller picking chunk sizes from observed
// per-chunk latency.
package stream

import (
	"pseudoflow/internal/config"
)

// Decision is the externally observable outcome of one feedback update.
type Decision string

const (
	DecisionIncrease Decision = "inc"
	DecisionDecrease Decision = "dec"
	DecisionNoop     Decision = "noop"
)

// AdaptiveChunkSizer is a pure feedback controller: an EMA of observed
// latency is compared against a target, and the chunk size moves by a
// fixed step when the deviation leaves the hysteresis band. A cooldown
// after each resize prevents oscillation from transient spikes. Not safe
// for concurrent use; each stream owns its own sizer.
type AdaptiveChunkSizer struct {
	minSize int
	maxSize int
	current int

	targetMs      float64
	alpha         float64
	hysteresisPct float64
	stepPct       float64

	cooldownChunks    int
	cooldownRemaining int

	ema         float64
	emaSeeded   bool
	initialized bool

	tokenRateEma    float64
	tokenRateSeeded bool
}

// NewAdaptiveChunkSizer builds a sizer from streaming configuration. A
// positive initial size starts the controller immediately; otherwise the
// first GetNextChunkSize calls report the caller's default until feedback
// arrives.
func NewAdaptiveChunkSizer(cfg config.StreamingConfig) *AdaptiveChunkSizer {
	s := &AdaptiveChunkSizer{
		minSize:        cfg.MinSize,
		maxSize:        cfg.MaxSize,
		targetMs:       cfg.TargetMs,
		alpha:          cfg.Alpha,
		hysteresisPct:  cfg.HysteresisPct,
		stepPct:        cfg.StepPct,
		cooldownChunks: cfg.CooldownChunks,
	}
	if cfg.InitialSize > 0 {
		s.current = s.clamp(cfg.InitialSize)
		s.initialized = true
	}
	return s
}

// GetNextChunkSize returns the controller's current size, or defaultSize
// while uninitialized.
func (s *AdaptiveChunkSizer) GetNextChunkSize(defaultSize int) int {
	if !s.initialized {
		return defaultSize
	}
	return s.current
}

// CurrentSize returns the controller's size, 0 while uninitialized.
func (s *AdaptiveChunkSizer) CurrentSize() int {
	if !s.initialized {
		return 0
	}
	return s.current
}

// EMA returns the smoothed latency, 0 before any feedback.
func (s *AdaptiveChunkSizer) EMA() float64 { return s.ema }

// UpdateFeedback folds one chunk observation into the controller and
// returns the resize decision. queueUtilization in [0, 1] and
// modelTokensPerSecond, when positive, damp growth (backpressure) but
// never override the cooldown or hysteresis invariants.
func (s *AdaptiveChunkSizer) UpdateFeedback(lastChunkLen int, observedLatencyMs, queueUtilization, modelTokensPerSecond float64) Decision {
	if !s.emaSeeded {
		s.ema = observedLatencyMs
		s.emaSeeded = true
	} else {
		s.ema = s.alpha*observedLatencyMs + (1-s.alpha)*s.ema
	}

	if modelTokensPerSecond > 0 {
		if !s.tokenRateSeeded {
			s.tokenRateEma = modelTokensPerSecond
			s.tokenRateSeeded = true
		} else {
			s.tokenRateEma = s.alpha*modelTokensPerSecond + (1-s.alpha)*s.tokenRateEma
		}
	}

	if !s.initialized {
		s.current = s.clamp(lastChunkLen)
		s.initialized = true
	}

	if s.cooldownRemaining > 0 {
		s.cooldownRemaining--
		return DecisionNoop
	}

	if s.targetMs <= 0 {
		return DecisionNoop
	}
	deviation := (s.ema - s.targetMs) / s.targetMs

	switch {
	case deviation > s.hysteresisPct:
		// Too slow: shrink.
		next := s.clamp(s.current - s.step())
		if next == s.current {
			return DecisionNoop
		}
		s.current = next
		s.cooldownRemaining = s.cooldownChunks
		return DecisionDecrease

	case deviation < -s.hysteresisPct:
		// Too fast: grow, damped by backpressure. A collapsed model token
		// rate (under half the smoothed rate) vetoes growth outright.
		if s.tokenRateSeeded && modelTokensPerSecond > 0 &&
			modelTokensPerSecond < 0.5*s.tokenRateEma {
			return DecisionNoop
		}
		step := s.step()
		if queueUtilization > 0 {
			step = int(float64(step) * (1 - clampUnit(queueUtilization)))
		}
		if step <= 0 {
			return DecisionNoop
		}
		next := s.clamp(s.current + step)
		if next == s.current {
			return DecisionNoop
		}
		s.current = next
		s.cooldownRemaining = s.cooldownChunks
		return DecisionIncrease
	}
	return DecisionNoop
}

func (s *AdaptiveChunkSizer) step() int {
	step := int(float64(s.current) * s.stepPct)
	if step < 1 {
		step = 1
	}
	return step
}

func (s *AdaptiveChunkSizer) clamp(size int) int {
	if s.minSize > 0 && size < s.minSize {
		return s.minSize
	}
	if s.maxSize > 0 && size > s.maxSize {
		return s.maxSize
	}
	return size
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

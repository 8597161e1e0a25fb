package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pseudoflow/internal/config"
)

func sizerConfig() config.StreamingConfig {
	return config.DefaultConfig().Streaming
}

func TestInitialSizeReturnedOnceInitialized(t *testing.T) {
	s := NewAdaptiveChunkSizer(sizerConfig())
	assert.Equal(t, 500, s.GetNextChunkSize(1234))
}

func TestUninitializedReturnsDefault(t *testing.T) {
	cfg := sizerConfig()
	cfg.InitialSize = 0
	s := NewAdaptiveChunkSizer(cfg)

	assert.Equal(t, 1234, s.GetNextChunkSize(1234))

	s.UpdateFeedback(300, 600, 0, 0)
	assert.Equal(t, 300, s.GetNextChunkSize(1234), "first feedback initializes from the chunk length")
}

func TestShrinkWhenTooSlow(t *testing.T) {
	s := NewAdaptiveChunkSizer(sizerConfig())

	d := s.UpdateFeedback(500, 2000, 0, 0)
	assert.Equal(t, DecisionDecrease, d)
	assert.Equal(t, 400, s.CurrentSize(), "20%% step down from 500")
}

func TestGrowWhenTooFast(t *testing.T) {
	s := NewAdaptiveChunkSizer(sizerConfig())

	d := s.UpdateFeedback(500, 100, 0, 0)
	assert.Equal(t, DecisionIncrease, d)
	assert.Equal(t, 600, s.CurrentSize())
}

func TestCooldownSuppressesResizes(t *testing.T) {
	s := NewAdaptiveChunkSizer(sizerConfig())

	assert.Equal(t, DecisionDecrease, s.UpdateFeedback(500, 2000, 0, 0))
	for i := 0; i < 3; i++ {
		assert.Equal(t, DecisionNoop, s.UpdateFeedback(400, 2000, 0, 0),
			"update %d during cooldown must not resize", i+1)
		assert.Equal(t, 400, s.CurrentSize())
	}
	// Cooldown lapsed; the persistent overshoot acts again.
	assert.Equal(t, DecisionDecrease, s.UpdateFeedback(400, 2000, 0, 0))
	assert.Equal(t, 320, s.CurrentSize())
}

func TestClampAtMinIsNoop(t *testing.T) {
	cfg := sizerConfig()
	cfg.InitialSize = cfg.MinSize
	s := NewAdaptiveChunkSizer(cfg)

	d := s.UpdateFeedback(200, 5000, 0, 0)
	assert.Equal(t, DecisionNoop, d, "already at min: no further shrink")
	assert.Equal(t, cfg.MinSize, s.CurrentSize())
}

func TestClampAtMax(t *testing.T) {
	cfg := sizerConfig()
	cfg.InitialSize = cfg.MaxSize
	s := NewAdaptiveChunkSizer(cfg)

	d := s.UpdateFeedback(2000, 1, 0, 0)
	assert.Equal(t, DecisionNoop, d)
	assert.Equal(t, cfg.MaxSize, s.CurrentSize())
}

func TestStabilizesAtTarget(t *testing.T) {
	s := NewAdaptiveChunkSizer(sizerConfig())

	for i := 0; i < 50; i++ {
		d := s.UpdateFeedback(500, 600, 0, 0)
		assert.Equal(t, DecisionNoop, d, "on-target latency must never resize (update %d)", i)
		assert.Equal(t, 500, s.CurrentSize())
	}
}

func TestConvergesAfterDisturbance(t *testing.T) {
	s := NewAdaptiveChunkSizer(sizerConfig())

	// One slow spike, then steady on-target feedback.
	s.UpdateFeedback(500, 3000, 0, 0)
	size := s.CurrentSize()

	var last Decision
	for i := 0; i < 60; i++ {
		last = s.UpdateFeedback(size, 600, 0, 0)
		size = s.CurrentSize()
	}
	assert.Equal(t, DecisionNoop, last, "sizer settles once EMA returns inside the band")
}

func TestBackpressureDampsGrowth(t *testing.T) {
	s := NewAdaptiveChunkSizer(sizerConfig())

	d := s.UpdateFeedback(500, 100, 1.0, 0)
	assert.Equal(t, DecisionNoop, d, "full queue suppresses growth entirely")
	assert.Equal(t, 500, s.CurrentSize())
}

func TestBackpressureNeverForcesShrink(t *testing.T) {
	s := NewAdaptiveChunkSizer(sizerConfig())

	d := s.UpdateFeedback(500, 600, 1.0, 0)
	assert.Equal(t, DecisionNoop, d)
	assert.Equal(t, 500, s.CurrentSize(), "backpressure alone never changes the size")
}

func TestTokenRateCollapseVetoesGrowth(t *testing.T) {
	cfg := sizerConfig()
	cfg.CooldownChunks = 0
	s := NewAdaptiveChunkSizer(cfg)

	// Establish a healthy token rate while on target.
	for i := 0; i < 5; i++ {
		s.UpdateFeedback(500, 600, 0, 100)
	}

	// First fast sample only drags the EMA to the band edge; the second
	// leaves the band with the token rate collapsed.
	s.UpdateFeedback(500, 1, 0, 10)
	d := s.UpdateFeedback(500, 1, 0, 10)
	assert.Equal(t, DecisionNoop, d, "collapsed token rate suppresses growth")

	d = s.UpdateFeedback(500, 1, 0, 100)
	assert.Equal(t, DecisionIncrease, d, "recovered token rate allows growth again")
}

func TestBackpressureRespectsCooldown(t *testing.T) {
	s := NewAdaptiveChunkSizer(sizerConfig())

	assert.Equal(t, DecisionDecrease, s.UpdateFeedback(500, 2000, 0, 0))
	d := s.UpdateFeedback(400, 1, 0, 0)
	assert.Equal(t, DecisionNoop, d, "cooldown holds even with a strong grow signal")
}

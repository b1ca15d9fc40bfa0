package logits

import (
	"math/rand"
	"time"
)

// SamplerConfig configures the behaviour of a Sampler.
type SamplerConfig struct {
	// Seed for the random source. Zero seeds from the clock.
	Seed     int64
	Strategy Strategy
}

// Sampler applies one Strategy across the steps of a single generation and
// carries the state that evolves between steps.
type Sampler struct {
	rng      *rand.Rand
	strategy Strategy
	mu       float32
	cands    Candidates
}

// NewSampler returns a sampler ready for the first step of a generation.
// A nil strategy behaves as None.
func NewSampler(cfg SamplerConfig) *Sampler {
	if cfg.Strategy == nil {
		cfg.Strategy = None{}
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &Sampler{
		rng:      rand.New(rand.NewSource(seed)),
		strategy: cfg.Strategy,
	}
	if m, ok := cfg.Strategy.(MirostatV2); ok {
		s.mu = m.InitialMu()
	}
	return s
}

// Sample draws one token id from logits. The logits slice is not modified.
func (s *Sampler) Sample(logits []float32) int32 {
	if len(logits) == 0 {
		panic("logits: sample from empty distribution")
	}
	s.cands.Reset(logits)
	return s.strategy.sample(&s.cands, s.rng, &s.mu)
}

// Mu returns the current Mirostat threshold. It is zero for other strategies.
func (s *Sampler) Mu() float32 { return s.mu }

func (s *Sampler) Strategy() Strategy { return s.strategy }

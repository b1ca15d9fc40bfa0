package logits

import (
	"fmt"
	"math/rand"
)

// Strategy selects one token from a candidate distribution. The set of
// strategies is closed; values are immutable and safe to copy. Per-generation
// state (the Mirostat target) lives in the Sampler, not here.
type Strategy interface {
	sample(c *Candidates, rng *rand.Rand, mu *float32) int32
	fmt.Stringer
}

// None samples from the unmodified distribution.
type None struct{}

// Temperature rescales logits by T before sampling.
type Temperature struct {
	T float32
}

// TopP samples from the nucleus whose cumulative probability reaches P.
type TopP struct {
	P       float32
	MinKeep int
}

// TopK samples from the K most likely candidates.
type TopK struct {
	K       int
	MinKeep int
}

// MirostatV2 targets a per-token surprise of Tau, adjusting its threshold
// with learning rate Eta.
type MirostatV2 struct {
	Tau float32
	Eta float32
}

func (None) sample(c *Candidates, rng *rand.Rand, _ *float32) int32 {
	return c.At(c.draw(rng)).ID
}

func (s Temperature) sample(c *Candidates, rng *rand.Rand, _ *float32) int32 {
	c.Temperature(s.T)
	return c.At(c.draw(rng)).ID
}

func (s TopP) sample(c *Candidates, rng *rand.Rand, _ *float32) int32 {
	c.TopP(s.P, s.MinKeep)
	return c.At(c.draw(rng)).ID
}

func (s TopK) sample(c *Candidates, rng *rand.Rand, _ *float32) int32 {
	c.TopK(s.K, s.MinKeep)
	return c.At(c.draw(rng)).ID
}

func (s MirostatV2) sample(c *Candidates, rng *rand.Rand, mu *float32) int32 {
	c.Softmax()
	// Keep the leading candidates whose surprise does not exceed mu.
	keep := len(c.data)
	for i := range c.data {
		if c.Surprise(i) > float64(*mu) {
			keep = i
			break
		}
	}
	c.data = c.data[:max(keep, 1)]

	idx := c.draw(rng)
	observed := c.Surprise(idx)
	*mu -= s.Eta * (float32(observed) - s.Tau)
	return c.At(idx).ID
}

// InitialMu is the Mirostat threshold at the start of a generation.
func (s MirostatV2) InitialMu() float32 { return 2 * s.Tau }

func (None) String() string { return "none" }

func (s Temperature) String() string { return fmt.Sprintf("temperature(t=%g)", s.T) }

func (s TopP) String() string { return fmt.Sprintf("top_p(p=%g, min_keep=%d)", s.P, s.MinKeep) }

func (s TopK) String() string { return fmt.Sprintf("top_k(k=%d, min_keep=%d)", s.K, s.MinKeep) }

func (s MirostatV2) String() string { return fmt.Sprintf("mirostat_v2(tau=%g, eta=%g)", s.Tau, s.Eta) }

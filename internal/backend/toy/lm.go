// Package toy is a tiny deterministic byte-level language model. It has the
// same surface as a native backend and keeps a positional cache, which makes
// it useful for tests and for exercising the CLI without model weights.
package toy

import "math/rand"

// Vocabulary layout: ids 0-255 are raw bytes, followed by two control tokens.
const (
	BOS       = 256
	EOS       = 257
	VocabSize = 258
)

// Config tunes the toy model. Zero values select defaults.
type Config struct {
	Seed   int64
	Hidden int
	// EOSBase and EOSSlope set the end-of-sequence logit bias as
	// EOSBase + EOSSlope*position, so longer sequences end sooner.
	EOSBase  float32
	EOSSlope float32
}

func (c Config) withDefaults() Config {
	if c.Hidden <= 0 {
		c.Hidden = 16
	}
	if c.EOSBase == 0 {
		c.EOSBase = -10
	}
	if c.EOSSlope == 0 {
		c.EOSSlope = 0.05
	}
	return c
}

// LM holds an embedding table, a projection back to vocabulary logits, and
// a bias vector. Each Forward call looks at a single token and its position.
type LM struct {
	Vocab  int
	Hidden int

	Emb  []float32 // [Vocab x Hidden]
	W    []float32 // [Hidden x Vocab]
	Bias []float32 // [Vocab]

	eosBase  float32
	eosSlope float32
}

// NewLM builds a model with weights drawn deterministically from cfg.Seed.
// Printable ASCII and newline are favoured so samples read as text.
func NewLM(cfg Config) *LM {
	cfg = cfg.withDefaults()
	m := &LM{
		Vocab:    VocabSize,
		Hidden:   cfg.Hidden,
		Emb:      make([]float32, VocabSize*cfg.Hidden),
		W:        make([]float32, cfg.Hidden*VocabSize),
		Bias:     make([]float32, VocabSize),
		eosBase:  cfg.EOSBase,
		eosSlope: cfg.EOSSlope,
	}
	fillRand(m.Emb, cfg.Seed+11)
	fillRand(m.W, cfg.Seed+23)
	for i := range m.Bias {
		switch {
		case i == '\n' || (i >= 0x20 && i < 0x7f):
			m.Bias[i] = 0
		default:
			m.Bias[i] = -8
		}
	}
	m.Bias[BOS] = -20
	return m
}

// Forward returns fresh logits over the vocabulary for tok at pos.
// Out-of-range tokens wrap modulo the vocabulary.
func (m *LM) Forward(tok Token, pos int) []float32 {
	t := int(tok) % m.Vocab
	if t < 0 {
		t += m.Vocab
	}
	h := m.Emb[t*m.Hidden : (t+1)*m.Hidden]
	logits := make([]float32, m.Vocab)
	for j := 0; j < m.Vocab; j++ {
		var sum float32
		for i := 0; i < m.Hidden; i++ {
			sum += h[i] * m.W[i*m.Vocab+j]
		}
		logits[j] = sum + m.Bias[j]
	}
	logits[EOS] += m.eosBase + m.eosSlope*float32(pos)
	return logits
}

func fillRand(dst []float32, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for i := range dst {
		dst[i] = (rng.Float32() - 0.5) * 2
	}
}

package toy

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/samcharles93/parlor/internal/backend"
)

// Token mirrors backend.Token.
type Token = backend.Token

var (
	errClosed       = errors.New("toy: model closed")
	errInvalidUTF8  = errors.New("toy: input is not valid UTF-8")
	errEmptyBatch   = errors.New("toy: empty batch")
	errContextFull  = errors.New("toy: context is full")
	errNoLogits     = errors.New("toy: no logits for batch entry")
	errCacheCleared = errors.New("toy: logits unavailable after cache clear")
)

func init() {
	backend.Register(backend.Toy, func(p backend.ModelParams) (backend.Model, error) {
		return New(Config{Seed: p.Seed}), nil
	})
}

// Model implements backend.Model over an LM.
type Model struct {
	lm     *LM
	closed bool
}

func New(cfg Config) *Model {
	return &Model{lm: NewLM(cfg)}
}

// Tokenize maps every byte of text to its own token.
func (m *Model) Tokenize(text string, addBOS bool) ([]Token, error) {
	if m.closed {
		return nil, errClosed
	}
	if !utf8.ValidString(text) {
		return nil, errInvalidUTF8
	}
	out := make([]Token, 0, len(text)+1)
	if addBOS {
		out = append(out, BOS)
	}
	for i := 0; i < len(text); i++ {
		out = append(out, Token(text[i]))
	}
	return out, nil
}

func (m *Model) TokenBytes(tok Token) ([]byte, error) {
	switch {
	case tok >= 0 && tok < 256:
		return []byte{byte(tok)}, nil
	case tok == BOS:
		return []byte("<s>"), nil
	case tok == EOS:
		return []byte("</s>"), nil
	default:
		return nil, fmt.Errorf("toy: token %d out of range", tok)
	}
}

func (m *Model) EOS() Token { return EOS }

func (m *Model) VocabSize() int { return VocabSize }

func (m *Model) NewContext(p backend.ContextParams) (backend.Context, error) {
	if m.closed {
		return nil, errClosed
	}
	if p.ContextSize <= 0 || p.BatchSize <= 0 {
		return nil, fmt.Errorf("toy: invalid context params %+v", p)
	}
	return &Context{
		lm:      m.lm,
		ctxSize: p.ContextSize,
		batch:   min(p.BatchSize, p.ContextSize),
	}, nil
}

func (m *Model) Close() error {
	m.closed = true
	return nil
}

// Context keeps the positions seen so far and the logits of the last pass.
type Context struct {
	lm      *LM
	ctxSize int
	batch   int
	cache   []Token
	logits  [][]float32
}

func (c *Context) BatchSize() int { return c.batch }

func (c *Context) ClearCache() error {
	c.cache = c.cache[:0]
	c.logits = nil
	return nil
}

// Decode requires positions to continue the cache exactly; replayed or
// skipped positions are rejected the way a real KV cache would corrupt.
func (c *Context) Decode(b *backend.Batch) error {
	if b.Len() == 0 {
		return errEmptyBatch
	}
	if b.Len() > c.batch {
		return fmt.Errorf("toy: batch of %d exceeds capacity %d", b.Len(), c.batch)
	}
	c.logits = make([][]float32, b.Len())
	for i, tok := range b.Tokens {
		pos := int(b.Pos[i])
		if pos != len(c.cache) {
			c.logits = nil
			return fmt.Errorf("toy: position %d out of sequence (cache holds %d)", pos, len(c.cache))
		}
		if len(c.cache) >= c.ctxSize {
			c.logits = nil
			return errContextFull
		}
		c.cache = append(c.cache, tok)
		if b.Output[i] {
			c.logits[i] = c.lm.Forward(tok, pos)
		}
	}
	return nil
}

func (c *Context) Logits(i int) ([]float32, error) {
	if c.logits == nil {
		return nil, errCacheCleared
	}
	if i < 0 || i >= len(c.logits) || c.logits[i] == nil {
		return nil, fmt.Errorf("%w %d", errNoLogits, i)
	}
	return c.logits[i], nil
}

// Cached reports how many positions the cache holds.
func (c *Context) Cached() int { return len(c.cache) }

func (c *Context) Close() error {
	c.cache = nil
	c.logits = nil
	return nil
}

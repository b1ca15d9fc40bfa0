package inference

import (
	"errors"
	"time"

	"github.com/samcharles93/parlor/internal/backend"
)

const fakeEOS backend.Token = 99

// scriptModel tokenizes every prompt to a fixed number of tokens and emits
// a fixed token script, one entry per forward pass that asks for logits.
type scriptModel struct {
	promptLen   int
	script      []backend.Token
	pieces      map[backend.Token][]byte
	tokenizeErr error
	lastPrompt  string
	closed      bool
	ctx         *scriptContext
	failDecode  int
}

func (m *scriptModel) Tokenize(text string, addBOS bool) ([]backend.Token, error) {
	m.lastPrompt = text
	if m.tokenizeErr != nil {
		return nil, m.tokenizeErr
	}
	out := make([]backend.Token, m.promptLen)
	for i := range out {
		out[i] = backend.Token(i + 1)
	}
	return out, nil
}

func (m *scriptModel) TokenBytes(tok backend.Token) ([]byte, error) {
	if b, ok := m.pieces[tok]; ok {
		return b, nil
	}
	return []byte{byte('a' + tok)}, nil
}

func (m *scriptModel) EOS() backend.Token { return fakeEOS }

func (m *scriptModel) VocabSize() int { return 100 }

func (m *scriptModel) NewContext(p backend.ContextParams) (backend.Context, error) {
	m.ctx = &scriptContext{model: m, capacity: p.BatchSize, failAt: m.failDecode}
	return m.ctx, nil
}

func (m *scriptModel) Close() error {
	m.closed = true
	return nil
}

type decodeCall struct {
	Tokens []backend.Token
	Pos    []int32
	Output []bool
}

type scriptContext struct {
	model    *scriptModel
	capacity int
	calls    []decodeCall
	cached   int
	emitted  int
	outputs  []bool
	// failAt makes the n-th Decode call (1-based) fail once.
	failAt int
	clears int
	closed bool
}

var errInjected = errors.New("injected decode failure")

func (c *scriptContext) BatchSize() int { return c.capacity }

func (c *scriptContext) ClearCache() error {
	c.cached = 0
	c.clears++
	return nil
}

func (c *scriptContext) Decode(b *backend.Batch) error {
	call := decodeCall{
		Tokens: append([]backend.Token(nil), b.Tokens...),
		Pos:    append([]int32(nil), b.Pos...),
		Output: append([]bool(nil), b.Output...),
	}
	c.calls = append(c.calls, call)
	if c.failAt > 0 && len(c.calls) == c.failAt {
		c.failAt = 0
		return errInjected
	}
	for _, p := range b.Pos {
		if int(p) != c.cached {
			return errors.New("position out of sequence")
		}
		c.cached++
	}
	c.outputs = call.Output
	return nil
}

func (c *scriptContext) Logits(i int) ([]float32, error) {
	if i < 0 || i >= len(c.outputs) || !c.outputs[i] {
		return nil, errors.New("no logits requested")
	}
	lg := make([]float32, c.model.VocabSize())
	tok := fakeEOS
	if c.emitted < len(c.model.script) {
		tok = c.model.script[c.emitted]
	}
	c.emitted++
	lg[tok] = 100
	return lg, nil
}

func (c *scriptContext) Close() error {
	c.closed = true
	return nil
}

type recordingObserver struct {
	promptTokens, promptFlushes int
	passes                      map[Phase]int
	outcomes                    []Outcome
}

func (o *recordingObserver) PromptIngested(tokens, flushes int) {
	o.promptTokens, o.promptFlushes = tokens, flushes
}

func (o *recordingObserver) ForwardPass(phase Phase, _ int, _ time.Duration) {
	if o.passes == nil {
		o.passes = map[Phase]int{}
	}
	o.passes[phase]++
}

func (o *recordingObserver) GenerationDone(outcome Outcome, _ int, _ time.Duration) {
	o.outcomes = append(o.outcomes, outcome)
}

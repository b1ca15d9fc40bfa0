package inference

import (
	"errors"
	"time"

	"github.com/samcharles93/parlor/internal/backend"
	"github.com/samcharles93/parlor/internal/conversation"
	"github.com/samcharles93/parlor/internal/logger"
	"github.com/samcharles93/parlor/internal/logits"
	"github.com/samcharles93/parlor/internal/prompt"
	"github.com/samcharles93/parlor/internal/textdec"
)

// Options configures a Session.
type Options struct {
	Template prompt.Template
	Context  backend.ContextParams
	// Seed feeds each generation's sampler. Zero seeds from the clock.
	Seed     int64
	Logger   logger.Logger
	Observer Observer
}

type sessionState uint8

const (
	// stateStale: the cache does not hold a freshly reset conversation.
	stateStale sessionState = iota
	// statePrimed: a reset succeeded and the final prompt token is buffered.
	statePrimed
	// stateStreaming: a Stream owns the session.
	stateStreaming
)

// Session owns one native context, its batch buffer and position cursor,
// and the incremental decoder for the current generation. A Session is not
// safe for concurrent use; at most one Stream holds it at a time.
type Session struct {
	model *backend.Shared
	ctx   backend.Context
	tmpl  prompt.Template
	batch *backend.Batch
	dec   *textdec.Decoder
	seed  int64
	log   logger.Logger
	obs   Observer

	nCur   int
	state  sessionState
	active *Stream

	promptTokens int
	flushes      int
	closed       bool
}

// NewSession creates a context on the shared model and takes a reference
// to it for the lifetime of the session.
func NewSession(model *backend.Shared, opts Options) (*Session, error) {
	ref, err := model.Acquire()
	if err != nil {
		return nil, err
	}
	ctx, err := ref.Model().NewContext(opts.Context)
	if err != nil {
		return nil, errors.Join(&BackendError{Op: "new context", Err: err}, ref.Release())
	}
	s := &Session{
		model: ref,
		ctx:   ctx,
		tmpl:  opts.Template,
		batch: backend.NewBatch(ctx.BatchSize()),
		dec:   textdec.New(),
		seed:  opts.Seed,
		log:   opts.Logger,
		obs:   opts.Observer,
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.obs == nil {
		s.obs = nopObserver{}
	}
	return s, nil
}

// Cursor returns the number of positions registered since the last reset.
func (s *Session) Cursor() int { return s.nCur }

// Buffered returns how many entries wait in the batch buffer.
func (s *Session) Buffered() int { return s.batch.Len() }

// Reset clears the cache and primes it with the encoded conversation. The
// final prompt token stays buffered for the first step.
func (s *Session) Reset(turns []conversation.Turn) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.state == stateStreaming {
		return ErrSessionBusy
	}
	return s.reset(turns)
}

// Start opens a stream over a primed session.
func (s *Session) Start(strategy logits.Strategy) (*Stream, error) {
	switch {
	case s.closed:
		return nil, ErrSessionClosed
	case s.state == stateStreaming:
		return nil, ErrSessionBusy
	case s.state != statePrimed:
		return nil, ErrNotReady
	}
	st := newStream(s, strategy)
	s.state = stateStreaming
	s.active = st
	return st, nil
}

// Generate resets the session with turns and opens a stream.
func (s *Session) Generate(turns []conversation.Turn, strategy logits.Strategy) (*Stream, error) {
	if err := s.Reset(turns); err != nil {
		return nil, err
	}
	return s.Start(strategy)
}

// Close releases the context and the session's model reference. An active
// stream is cancelled first.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	if s.active != nil {
		s.active.Close()
	}
	s.closed = true
	return errors.Join(s.ctx.Close(), s.model.Release())
}

func (s *Session) reset(turns []conversation.Turn) error {
	s.state = stateStale
	s.batch.Clear()
	s.nCur = 0
	s.dec.Reset()
	s.flushes = 0
	s.promptTokens = 0
	if err := s.ctx.ClearCache(); err != nil {
		return &BackendError{Op: "clear cache", Err: err}
	}

	text := s.tmpl.Encode(turns)
	s.log.Debug("encoded prompt", "turns", len(turns), "prompt", text)

	tokens, err := s.model.Model().Tokenize(text, true)
	if err != nil {
		return &TokenizeError{Err: err}
	}
	if len(tokens) == 0 {
		return &TokenizeError{Err: ErrEmptyPrompt}
	}
	if err := s.ingest(tokens); err != nil {
		return err
	}
	s.promptTokens = len(tokens)
	s.obs.PromptIngested(len(tokens), s.flushes)
	s.log.Debug("prompt ingested", "tokens", len(tokens), "flushes", s.flushes, "buffered", s.batch.Len())
	s.state = statePrimed
	return nil
}

// ingest stages tokens at consecutive positions. A full buffer is flushed
// unless the token just added is the last one: the last token must remain
// buffered so the first step decodes it and gets its logits.
func (s *Session) ingest(tokens []backend.Token) error {
	last := len(tokens) - 1
	for i, tok := range tokens {
		if err := s.batch.Add(tok, int32(s.nCur), i == last); err != nil {
			s.batch.Clear()
			return &BackendError{Op: "batch add", Err: err}
		}
		s.nCur++
		if s.batch.Full() && i != last {
			if err := s.forward(PhasePrompt); err != nil {
				return err
			}
			s.batch.Clear()
			s.flushes++
		}
	}
	return nil
}

func (s *Session) forward(phase Phase) error {
	n := s.batch.Len()
	start := time.Now()
	if err := s.ctx.Decode(s.batch); err != nil {
		s.batch.Clear()
		s.state = stateStale
		return &BackendError{Op: "decode", Err: err}
	}
	s.obs.ForwardPass(phase, n, time.Since(start))
	return nil
}

// step decodes the buffered entries, samples the next token and buffers it
// at the cursor. It reports ok=false once the model emits end-of-sequence.
func (s *Session) step(sampler *logits.Sampler) (string, bool, error) {
	n := s.batch.Len()
	if n == 0 {
		s.state = stateStale
		return "", false, ErrNotReady
	}
	if err := s.forward(PhaseGenerate); err != nil {
		return "", false, err
	}
	lg, err := s.ctx.Logits(n - 1)
	if err != nil {
		return "", false, s.fail("logits", err)
	}
	tok := sampler.Sample(lg)

	s.batch.Clear()
	if err := s.batch.Add(tok, int32(s.nCur), true); err != nil {
		return "", false, s.fail("batch add", err)
	}
	s.nCur++

	model := s.model.Model()
	if tok == model.EOS() {
		return "", false, nil
	}
	raw, err := model.TokenBytes(tok)
	if err != nil {
		return "", false, s.fail("token bytes", err)
	}
	return s.dec.Write(raw), true, nil
}

func (s *Session) fail(op string, err error) error {
	s.batch.Clear()
	s.state = stateStale
	return &BackendError{Op: op, Err: err}
}

// release returns the session to the stale state once a stream ends.
func (s *Session) release(st *Stream) {
	if s.active != st {
		return
	}
	s.active = nil
	s.state = stateStale
}

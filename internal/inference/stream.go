package inference

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/parlor/internal/logger"
	"github.com/samcharles93/parlor/internal/logits"
)

// Stats summarises one generation.
type Stats struct {
	PromptTokens    int
	PromptFlushes   int
	TokensGenerated int
	Duration        time.Duration
	TPS             float64
}

// Stream pulls text fragments from a session one sampled token at a time.
// It holds the session exclusively until it ends: at end-of-sequence, on
// error, or when the caller closes it.
type Stream struct {
	s       *Session
	sampler *logits.Sampler
	id      string
	log     logger.Logger

	text    strings.Builder
	tail    string
	start   time.Time
	stats   Stats
	done    bool
	outcome Outcome
}

func newStream(s *Session, strategy logits.Strategy) *Stream {
	id := uuid.NewString()
	st := &Stream{
		s:       s,
		sampler: logits.NewSampler(logits.SamplerConfig{Seed: s.seed, Strategy: strategy}),
		id:      id,
		log:     s.log.With("generation", id),
		start:   time.Now(),
		stats: Stats{
			PromptTokens:  s.promptTokens,
			PromptFlushes: s.flushes,
		},
	}
	st.log.Debug("generation started", "strategy", st.sampler.Strategy().String(), "cursor", s.nCur)
	return st
}

// Next performs one step. It returns a fragment and true while the model
// keeps producing; the fragment may be empty while a multi-byte character
// is incomplete. At end-of-sequence it returns false with a nil error.
func (st *Stream) Next() (string, bool, error) {
	if st.done {
		if st.outcome == OutcomeEOS {
			return "", false, nil
		}
		return "", false, ErrStreamClosed
	}
	frag, ok, err := st.s.step(st.sampler)
	if err != nil {
		st.finish(OutcomeError)
		st.log.Error("generation failed", "error", err)
		return "", false, err
	}
	if !ok {
		st.tail = st.s.dec.Flush()
		st.finish(OutcomeEOS)
		return "", false, nil
	}
	st.stats.TokensGenerated++
	st.text.WriteString(frag)
	return frag, true, nil
}

// Stop ends the stream after the caller matched a stop marker.
func (st *Stream) Stop() { st.end(OutcomeStop) }

// Close cancels the stream. Partial output stays available through Text.
func (st *Stream) Close() { st.end(OutcomeCancelled) }

func (st *Stream) end(o Outcome) {
	if st.done {
		return
	}
	st.finish(o)
}

func (st *Stream) finish(o Outcome) {
	st.done = true
	st.outcome = o
	st.stats.Duration = time.Since(st.start)
	if secs := st.stats.Duration.Seconds(); secs > 0 {
		st.stats.TPS = float64(st.stats.TokensGenerated) / secs
	}
	st.s.release(st)
	st.s.obs.GenerationDone(o, st.stats.TokensGenerated, st.stats.Duration)
	st.log.Debug("generation finished",
		"outcome", string(o),
		"tokens", st.stats.TokensGenerated,
		"duration", st.stats.Duration,
		"cursor", st.s.nCur,
	)
}

// Text returns everything produced so far. After end-of-sequence it also
// includes any undecodable trailing bytes rendered as U+FFFD.
func (st *Stream) Text() string { return st.text.String() + st.tail }

// Tail returns the bytes the decoder still held at end-of-sequence,
// rendered as U+FFFD. It is empty until the stream ends.
func (st *Stream) Tail() string { return st.tail }

// Mu returns the current Mirostat threshold, or zero for other strategies.
func (st *Stream) Mu() float32 { return st.sampler.Mu() }

// Done reports whether the stream has ended and how.
func (st *Stream) Done() (Outcome, bool) { return st.outcome, st.done }

func (st *Stream) Stats() Stats {
	s := st.stats
	if !st.done {
		s.Duration = time.Since(st.start)
	}
	return s
}

// ID identifies the generation in logs.
func (st *Stream) ID() string { return st.id }

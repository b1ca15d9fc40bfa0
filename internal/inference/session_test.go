package inference

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/samcharles93/parlor/internal/backend"
	"github.com/samcharles93/parlor/internal/backend/toy"
	"github.com/samcharles93/parlor/internal/conversation"
	"github.com/samcharles93/parlor/internal/logits"
	"github.com/samcharles93/parlor/internal/prompt"
)

var testTemplate = prompt.Template{
	HeaderPrefix: "<|",
	HeaderSuffix: "|>",
	EndOfContent: "\n",
	Stops:        []string{"<|end|>"},
}

var greedy = logits.TopK{K: 1, MinKeep: 1}

func newScriptSession(t *testing.T, m *scriptModel, capacity int) (*Session, *backend.Shared) {
	t.Helper()
	shared := backend.Share(m)
	s, err := NewSession(shared, Options{
		Template: testTemplate,
		Context:  backend.ContextParams{ContextSize: 256, BatchSize: capacity},
		Seed:     1,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, shared
}

func userTurns(msg string) []conversation.Turn {
	return []conversation.Turn{{Role: conversation.User, Message: msg}}
}

func TestResetFlushSchedule(t *testing.T) {
	t.Parallel()
	m := &scriptModel{promptLen: 9}
	s, _ := newScriptSession(t, m, 4)

	if err := s.Reset(userTurns("hi")); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	want := []decodeCall{
		{Tokens: []backend.Token{1, 2, 3, 4}, Pos: []int32{0, 1, 2, 3}, Output: []bool{false, false, false, false}},
		{Tokens: []backend.Token{5, 6, 7, 8}, Pos: []int32{4, 5, 6, 7}, Output: []bool{false, false, false, false}},
	}
	if diff := cmp.Diff(want, m.ctx.calls); diff != "" {
		t.Fatalf("unexpected flushes (-want +got):\n%s", diff)
	}
	if s.Buffered() != 1 {
		t.Fatalf("expected the final token to stay buffered, got %d entries", s.Buffered())
	}
	if s.Cursor() != 9 {
		t.Fatalf("expected cursor 9, got %d", s.Cursor())
	}
	if m.lastPrompt != "<|user|>hi\n<|assistant|>" {
		t.Fatalf("unexpected encoded prompt %q", m.lastPrompt)
	}

	st, err := s.Start(greedy)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer st.Close()
	if _, _, err := st.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	first := m.ctx.calls[2]
	if diff := cmp.Diff(decodeCall{Tokens: []backend.Token{9}, Pos: []int32{8}, Output: []bool{true}}, first); diff != "" {
		t.Fatalf("first step should decode the buffered prompt token (-want +got):\n%s", diff)
	}
}

func TestResetExactMultipleDefersLastBatch(t *testing.T) {
	t.Parallel()
	m := &scriptModel{promptLen: 8}
	s, _ := newScriptSession(t, m, 4)
	if err := s.Reset(userTurns("x")); err != nil {
		t.Fatal(err)
	}
	if len(m.ctx.calls) != 1 {
		t.Fatalf("expected 1 flush, got %d", len(m.ctx.calls))
	}
	if s.Buffered() != 4 {
		t.Fatalf("expected a full buffered batch, got %d", s.Buffered())
	}
}

func TestStreamStepsAndCursor(t *testing.T) {
	t.Parallel()
	m := &scriptModel{promptLen: 3, script: []backend.Token{5, 6, fakeEOS}}
	s, _ := newScriptSession(t, m, 8)

	st, err := s.Generate(userTurns("hi"), greedy)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	var frags []string
	for {
		frag, ok, err := st.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		frags = append(frags, frag)
		if s.Cursor() != 3+len(frags) {
			t.Fatalf("cursor %d after %d tokens", s.Cursor(), len(frags))
		}
	}
	if diff := cmp.Diff([]string{"f", "g"}, frags); diff != "" {
		t.Fatalf("unexpected fragments (-want +got):\n%s", diff)
	}
	if st.Text() != "fg" {
		t.Fatalf("expected text fg, got %q", st.Text())
	}
	if s.Cursor() != 6 {
		t.Fatalf("EOS should still be registered at the cursor, got %d", s.Cursor())
	}
	if outcome, done := st.Done(); !done || outcome != OutcomeEOS {
		t.Fatalf("expected eos outcome, got %v %v", outcome, done)
	}
	if _, ok, err := st.Next(); ok || err != nil {
		t.Fatalf("exhausted stream should keep reporting end, got %v %v", ok, err)
	}
	if stats := st.Stats(); stats.TokensGenerated != 2 || stats.PromptTokens != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestStreamReassemblesSplitCharacters(t *testing.T) {
	t.Parallel()
	m := &scriptModel{
		promptLen: 2,
		script:    []backend.Token{1, 2, fakeEOS},
		pieces:    map[backend.Token][]byte{1: {0xe2}, 2: {0x82, 0xac}},
	}
	s, _ := newScriptSession(t, m, 8)
	st, err := s.Generate(nil, greedy)
	if err != nil {
		t.Fatal(err)
	}
	frag, ok, err := st.Next()
	if err != nil || !ok || frag != "" {
		t.Fatalf("first half of a character should yield an empty fragment, got %q %v %v", frag, ok, err)
	}
	frag, ok, err = st.Next()
	if err != nil || !ok || frag != "€" {
		t.Fatalf("expected euro sign, got %q %v %v", frag, ok, err)
	}
}

func TestStreamTextIncludesUndecodableTail(t *testing.T) {
	t.Parallel()
	m := &scriptModel{
		promptLen: 2,
		script:    []backend.Token{1, fakeEOS},
		pieces:    map[backend.Token][]byte{1: {'o', 'k', 0xe2}},
	}
	s, _ := newScriptSession(t, m, 8)
	st, _ := s.Generate(nil, greedy)
	for {
		_, ok, err := st.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
	}
	if !strings.HasPrefix(st.Text(), "ok") || !strings.HasSuffix(st.Text(), "�") {
		t.Fatalf("expected flushed tail, got %q", st.Text())
	}
}

func TestExclusiveStream(t *testing.T) {
	t.Parallel()
	m := &scriptModel{promptLen: 2, script: []backend.Token{4, 4, 4}}
	s, _ := newScriptSession(t, m, 8)

	st, err := s.Generate(userTurns("a"), greedy)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Generate(userTurns("b"), greedy); !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy, got %v", err)
	}
	if err := s.Reset(userTurns("b")); !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy from Reset, got %v", err)
	}
	st.Close()
	if _, _, err := st.Next(); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("expected ErrStreamClosed, got %v", err)
	}
	if _, err := s.Start(greedy); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady without a reset, got %v", err)
	}
	st2, err := s.Generate(userTurns("b"), greedy)
	if err != nil {
		t.Fatalf("Generate after close: %v", err)
	}
	st2.Close()
}

func TestMirostatMuAtStart(t *testing.T) {
	t.Parallel()
	m := &scriptModel{promptLen: 2, script: []backend.Token{3}}
	s, _ := newScriptSession(t, m, 8)
	st, err := s.Generate(nil, logits.MirostatV2{Tau: 4.0, Eta: 0.1})
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	if st.Mu() != 8.0 {
		t.Fatalf("expected mu 8.0 before the first step, got %v", st.Mu())
	}
}

func TestTokenizeError(t *testing.T) {
	t.Parallel()
	cause := errors.New("bad input")
	m := &scriptModel{promptLen: 2, tokenizeErr: cause}
	s, _ := newScriptSession(t, m, 8)

	_, err := s.Generate(userTurns("x"), greedy)
	var tokErr *TokenizeError
	if !errors.As(err, &tokErr) || !errors.Is(err, cause) {
		t.Fatalf("expected TokenizeError wrapping cause, got %v", err)
	}
	if s.Cursor() != 0 || s.Buffered() != 0 {
		t.Fatalf("expected cleared state, cursor %d buffered %d", s.Cursor(), s.Buffered())
	}

	m.tokenizeErr = nil
	if err := s.Reset(userTurns("x")); err != nil {
		t.Fatalf("Reset after tokenize error: %v", err)
	}
}

func TestEmptyPrompt(t *testing.T) {
	t.Parallel()
	m := &scriptModel{promptLen: 0}
	s, _ := newScriptSession(t, m, 8)
	err := s.Reset(nil)
	if !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}
	var tokErr *TokenizeError
	if !errors.As(err, &tokErr) {
		t.Fatalf("expected TokenizeError, got %T", err)
	}
}

func TestBackendErrorDuringIngest(t *testing.T) {
	t.Parallel()
	m := &scriptModel{promptLen: 9, failDecode: 1}
	s, _ := newScriptSession(t, m, 4)

	err := s.Reset(userTurns("x"))
	var beErr *BackendError
	if !errors.As(err, &beErr) || !errors.Is(err, errInjected) {
		t.Fatalf("expected BackendError, got %v", err)
	}
	if s.Buffered() != 0 {
		t.Fatalf("batch must be cleared on error, got %d entries", s.Buffered())
	}
	if _, err := s.Start(greedy); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if err := s.Reset(userTurns("x")); err != nil {
		t.Fatalf("Reset should recover: %v", err)
	}
}

func TestBackendErrorDuringStep(t *testing.T) {
	t.Parallel()
	// Prompt fits in one batch, so the first Decode is the first step.
	m := &scriptModel{promptLen: 2, script: []backend.Token{4, 5}, failDecode: 2}
	obs := &recordingObserver{}
	shared := backend.Share(m)
	s, err := NewSession(shared, Options{
		Template: testTemplate,
		Context:  backend.ContextParams{ContextSize: 64, BatchSize: 8},
		Observer: obs,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	st, err := s.Generate(userTurns("x"), greedy)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok, err := st.Next(); !ok || err != nil {
		t.Fatalf("first step should succeed, got %v %v", ok, err)
	}
	_, ok, err := st.Next()
	var beErr *BackendError
	if ok || !errors.As(err, &beErr) {
		t.Fatalf("expected BackendError on second step, got %v %v", ok, err)
	}
	if s.Buffered() != 0 {
		t.Fatalf("batch must be cleared on error, got %d", s.Buffered())
	}
	if _, _, err := st.Next(); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("failed stream should be closed, got %v", err)
	}
	if len(obs.outcomes) != 1 || obs.outcomes[0] != OutcomeError {
		t.Fatalf("expected one error outcome, got %v", obs.outcomes)
	}
	if _, err := s.Generate(userTurns("x"), greedy); err != nil {
		t.Fatalf("Generate after reset should work: %v", err)
	}
}

func TestObserverCounts(t *testing.T) {
	t.Parallel()
	m := &scriptModel{promptLen: 9, script: []backend.Token{2, fakeEOS}}
	obs := &recordingObserver{}
	s, err := NewSession(backend.Share(m), Options{
		Template: testTemplate,
		Context:  backend.ContextParams{ContextSize: 64, BatchSize: 4},
		Observer: obs,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	st, _ := s.Generate(nil, greedy)
	for {
		if _, ok, _ := st.Next(); !ok {
			break
		}
	}
	if obs.promptTokens != 9 || obs.promptFlushes != 2 {
		t.Fatalf("unexpected prompt report %d/%d", obs.promptTokens, obs.promptFlushes)
	}
	if obs.passes[PhasePrompt] != 2 || obs.passes[PhaseGenerate] != 2 {
		t.Fatalf("unexpected forward passes %v", obs.passes)
	}
	if len(obs.outcomes) != 1 || obs.outcomes[0] != OutcomeEOS {
		t.Fatalf("unexpected outcomes %v", obs.outcomes)
	}
}

func TestStopOutcome(t *testing.T) {
	t.Parallel()
	m := &scriptModel{promptLen: 2, script: []backend.Token{1, 1, 1}}
	obs := &recordingObserver{}
	s, _ := NewSession(backend.Share(m), Options{
		Template: testTemplate,
		Context:  backend.ContextParams{ContextSize: 64, BatchSize: 4},
		Observer: obs,
	})
	defer s.Close()
	st, _ := s.Generate(nil, greedy)
	st.Next()
	st.Stop()
	st.Close()
	if len(obs.outcomes) != 1 || obs.outcomes[0] != OutcomeStop {
		t.Fatalf("expected a single stop outcome, got %v", obs.outcomes)
	}
}

func TestSessionHoldsModelReference(t *testing.T) {
	t.Parallel()
	m := &scriptModel{promptLen: 2}
	shared := backend.Share(m)
	s, err := NewSession(shared, Options{Context: backend.ContextParams{ContextSize: 16, BatchSize: 4}})
	if err != nil {
		t.Fatal(err)
	}
	if shared.Refs() != 2 {
		t.Fatalf("expected session to hold a reference, refs=%d", shared.Refs())
	}
	if err := shared.Release(); err != nil {
		t.Fatal(err)
	}
	if m.closed {
		t.Fatal("model closed while a session still uses it")
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if !m.closed || !m.ctx.closed {
		t.Fatal("expected context and model closed after the last reference")
	}
	if err := s.Reset(nil); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func collect(t *testing.T, st *Stream, limit int) string {
	t.Helper()
	for i := 0; i < limit; i++ {
		_, ok, err := st.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
	}
	return st.Text()
}

func TestCancelThenResetIsIndependent(t *testing.T) {
	t.Parallel()
	opts := Options{
		Template: testTemplate,
		Context:  backend.ContextParams{ContextSize: 512, BatchSize: 16},
		Seed:     42,
	}
	strategy := logits.Temperature{T: 0.8}
	second := []conversation.Turn{
		{Role: conversation.System, Message: "be terse"},
		{Role: conversation.User, Message: "hello there"},
	}

	s, err := NewSession(backend.Share(toy.New(toy.Config{Seed: 7})), opts)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	st, err := s.Generate(userTurns("something else entirely"), strategy)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if _, _, err := st.Next(); err != nil {
			t.Fatal(err)
		}
	}
	st.Close()

	st, err = s.Generate(second, strategy)
	if err != nil {
		t.Fatal(err)
	}
	promptLen := len(testTemplate.Encode(second)) + 1
	if s.Cursor() != promptLen {
		t.Fatalf("expected cursor %d after reset, got %d", promptLen, s.Cursor())
	}
	got := collect(t, st, 40)
	st.Close()

	fresh, err := NewSession(backend.Share(toy.New(toy.Config{Seed: 7})), opts)
	if err != nil {
		t.Fatal(err)
	}
	defer fresh.Close()
	ref, err := fresh.Generate(second, strategy)
	if err != nil {
		t.Fatal(err)
	}
	want := collect(t, ref, 40)

	if got != want {
		t.Fatalf("output depends on the cancelled generation:\n got %q\nwant %q", got, want)
	}
}

package main

import (
	"bytes"
	"sync"
	"testing"
)

// lockedBuffer lets the smooth flusher write while the test reads.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestParseStreamMode(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in      string
		want    StreamMode
		wantErr bool
	}{
		{"", StreamInstant, false},
		{"instant", StreamInstant, false},
		{" Smooth ", StreamSmooth, false},
		{"QUIET", StreamQuiet, false},
		{"typewriter", "", true},
	}
	for _, tc := range cases {
		got, err := ParseStreamMode(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseStreamMode(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Fatalf("ParseStreamMode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestStreamWriterInstant(t *testing.T) {
	t.Parallel()
	var out lockedBuffer
	w := NewStreamWriter(&out, StreamInstant)
	w.Write("Hel")
	if got := out.String(); got != "Hel" {
		t.Fatalf("after first write = %q", got)
	}
	w.Write("lo")
	if got := w.Close(); got != "Hello" {
		t.Fatalf("Close = %q", got)
	}
	if got := out.String(); got != "Hello" {
		t.Fatalf("output = %q", got)
	}
}

func TestStreamWriterQuiet(t *testing.T) {
	t.Parallel()
	var out lockedBuffer
	w := NewStreamWriter(&out, StreamQuiet)
	w.Write("one ")
	w.Write("two")
	if got := out.String(); got != "" {
		t.Fatalf("quiet mode wrote before Close: %q", got)
	}
	w.Close()
	if got := out.String(); got != "one two" {
		t.Fatalf("output = %q", got)
	}
}

func TestStreamWriterSmoothFlushesEverything(t *testing.T) {
	t.Parallel()
	var out lockedBuffer
	w := NewStreamWriter(&out, StreamSmooth)
	want := "the quick brown fox jumps over the lazy dog"
	for _, r := range want {
		w.Write(string(r))
	}
	if got := w.Close(); got != want {
		t.Fatalf("Close = %q", got)
	}
	if got := out.String(); got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
	// Writes after Close are dropped.
	w.Write("!")
	if got := out.String(); got != want {
		t.Fatalf("output after close = %q", got)
	}
}

package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

type StreamMode string

const (
	StreamInstant StreamMode = "instant"
	StreamSmooth  StreamMode = "smooth"
	StreamQuiet   StreamMode = "quiet"
)

func ParseStreamMode(s string) (StreamMode, error) {
	switch m := StreamMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return StreamInstant, nil
	case StreamInstant, StreamSmooth, StreamQuiet:
		return m, nil
	default:
		return "", fmt.Errorf("unknown stream mode %q (expected instant, smooth, or quiet)", s)
	}
}

// StreamWriter prints reply fragments as they arrive.
//
// instant writes every fragment straight through, smooth batches fragments
// into a few words or one flush interval, and quiet prints the whole reply
// on Close.
type StreamWriter struct {
	mode StreamMode
	out  *bufio.Writer

	mu        sync.Mutex
	batch     strings.Builder
	text      strings.Builder
	lastFlush time.Time
	interval  time.Duration
	words     int
	closed    bool

	stop chan struct{}
	done chan struct{}
}

func NewStreamWriter(w io.Writer, mode StreamMode) *StreamWriter {
	sw := &StreamWriter{
		mode:      mode,
		out:       bufio.NewWriterSize(w, 4096),
		lastFlush: time.Now(),
		interval:  50 * time.Millisecond,
		words:     5,
	}
	if mode == StreamSmooth {
		sw.stop = make(chan struct{})
		sw.done = make(chan struct{})
		go sw.flusher()
	}
	return sw
}

// Write queues one fragment.
func (w *StreamWriter) Write(fragment string) {
	if fragment == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.text.WriteString(fragment)

	switch w.mode {
	case StreamQuiet:
	case StreamSmooth:
		w.batch.WriteString(fragment)
		if len(strings.Fields(w.batch.String())) >= w.words || time.Since(w.lastFlush) >= w.interval {
			w.flushBatch()
		}
	default:
		_, _ = w.out.WriteString(fragment)
		_ = w.out.Flush()
	}
}

// Close writes anything still pending, stops the background flusher and
// returns the full text written.
func (w *StreamWriter) Close() string {
	if w.stop != nil {
		close(w.stop)
		<-w.done
		w.stop = nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		switch w.mode {
		case StreamQuiet:
			_, _ = w.out.WriteString(w.text.String())
		case StreamSmooth:
			w.flushBatch()
		}
		_ = w.out.Flush()
	}
	return w.text.String()
}

// flushBatch writes the pending batch. Callers hold mu.
func (w *StreamWriter) flushBatch() {
	if w.batch.Len() > 0 {
		_, _ = w.out.WriteString(w.batch.String())
		_ = w.out.Flush()
		w.batch.Reset()
	}
	w.lastFlush = time.Now()
}

func (w *StreamWriter) flusher() {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.mu.Lock()
			if time.Since(w.lastFlush) >= w.interval {
				w.flushBatch()
			}
			w.mu.Unlock()
		}
	}
}

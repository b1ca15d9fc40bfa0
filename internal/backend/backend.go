// Package backend defines the native inference surface the decoding engine
// drives: tokenization, token rendering, and positioned forward passes over
// a per-context cache.
package backend

import (
	"errors"
	"fmt"
	"strings"
)

// Token is an opaque vocabulary id.
type Token = int32

const (
	Llama = "llama"
	Toy   = "toy"
)

var (
	// ErrBatchFull is returned when adding to a batch at capacity.
	ErrBatchFull = errors.New("batch is full")
	// ErrUnavailable marks a backend that was not compiled into this binary.
	ErrUnavailable = errors.New("backend unavailable in this build")
)

// ModelParams describes how to load a model.
type ModelParams struct {
	Path      string
	GPULayers int
	Seed      int64
}

// ContextParams sizes a context created from a model.
type ContextParams struct {
	// ContextSize is the maximum number of cached positions.
	ContextSize int
	// BatchSize is the maximum number of tokens per forward pass.
	BatchSize int
	Threads   int
}

// Model is a loaded, read-only model. It is safe to create several
// contexts from one model.
type Model interface {
	// Tokenize converts text to token ids, optionally prefixed with BOS.
	Tokenize(text string, addBOS bool) ([]Token, error)
	// TokenBytes returns the raw bytes a token renders to. Control tokens
	// render to their literal text.
	TokenBytes(tok Token) ([]byte, error)
	EOS() Token
	VocabSize() int
	NewContext(p ContextParams) (Context, error)
	Close() error
}

// Context owns the positional cache for one sequence.
type Context interface {
	// BatchSize is the capacity C of a single forward pass.
	BatchSize() int
	// ClearCache drops every cached position.
	ClearCache() error
	// Decode runs a forward pass over the batch, extending the cache.
	Decode(b *Batch) error
	// Logits returns the vocabulary logits produced for batch entry i of
	// the most recent Decode. The entry must have requested output.
	Logits(i int) ([]float32, error)
	Close() error
}

// Normalize validates a backend name. Empty selects llama.
func Normalize(name string) (string, error) {
	b := strings.ToLower(strings.TrimSpace(name))
	if b == "" {
		return Llama, nil
	}
	switch b {
	case Llama, Toy:
		return b, nil
	default:
		return "", fmt.Errorf("unknown backend %q (expected llama or toy)", name)
	}
}

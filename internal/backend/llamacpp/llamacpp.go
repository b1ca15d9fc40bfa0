//go:build llama

// Package llamacpp binds the backend interfaces to llama.cpp through cgo.
// Build with -tags llama and CGO_CFLAGS/CGO_LDFLAGS pointing at a llama.cpp
// build that provides llama.h and libllama.
package llamacpp

/*
#cgo LDFLAGS: -lllama -lggml -lggml-base
#include <stdlib.h>
#include "llama.h"

static void parlor_batch_set(struct llama_batch *b, int i, llama_token tok, llama_pos pos, int8_t out) {
	b->token[i] = tok;
	b->pos[i] = pos;
	b->n_seq_id[i] = 1;
	b->seq_id[i][0] = 0;
	b->logits[i] = out;
}
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/samcharles93/parlor/internal/backend"
)

var initOnce sync.Once

func init() {
	backend.Register(backend.Llama, Open)
}

// Model wraps a llama_model and its vocabulary.
type Model struct {
	model  *C.struct_llama_model
	vocab  *C.struct_llama_vocab
	nVocab int
}

// Open loads a GGUF model file.
func Open(p backend.ModelParams) (backend.Model, error) {
	if p.Path == "" {
		return nil, errors.New("llama: empty model path")
	}
	initOnce.Do(func() { C.llama_backend_init() })

	params := C.llama_model_default_params()
	params.n_gpu_layers = C.int32_t(p.GPULayers)

	cPath := C.CString(p.Path)
	defer C.free(unsafe.Pointer(cPath))

	m := C.llama_model_load_from_file(cPath, params)
	if m == nil {
		return nil, fmt.Errorf("llama: failed to load model %s", p.Path)
	}
	vocab := C.llama_model_get_vocab(m)
	return &Model{
		model:  m,
		vocab:  vocab,
		nVocab: int(C.llama_vocab_n_tokens(vocab)),
	}, nil
}

func (m *Model) Tokenize(text string, addBOS bool) ([]backend.Token, error) {
	cText := C.CString(text)
	defer C.free(unsafe.Pointer(cText))

	n := len(text) + 2
	for {
		buf := make([]C.llama_token, n)
		got := C.llama_tokenize(m.vocab, cText, C.int32_t(len(text)), &buf[0], C.int32_t(n), C.bool(addBOS), C.bool(true))
		if got < 0 {
			if int(-got) <= n {
				return nil, fmt.Errorf("llama: tokenize failed (%d)", int(got))
			}
			n = int(-got)
			continue
		}
		out := make([]backend.Token, int(got))
		for i := range out {
			out[i] = backend.Token(buf[i])
		}
		return out, nil
	}
}

func (m *Model) TokenBytes(tok backend.Token) ([]byte, error) {
	buf := make([]byte, 32)
	for {
		n := C.llama_token_to_piece(m.vocab, C.llama_token(tok), (*C.char)(unsafe.Pointer(&buf[0])), C.int32_t(len(buf)), 0, C.bool(true))
		if n < 0 {
			buf = make([]byte, int(-n))
			continue
		}
		return buf[:int(n)], nil
	}
}

func (m *Model) EOS() backend.Token { return backend.Token(C.llama_vocab_eos(m.vocab)) }

func (m *Model) VocabSize() int { return m.nVocab }

func (m *Model) NewContext(p backend.ContextParams) (backend.Context, error) {
	params := C.llama_context_default_params()
	params.n_ctx = C.uint32_t(p.ContextSize)
	params.n_batch = C.uint32_t(p.BatchSize)
	if p.Threads > 0 {
		params.n_threads = C.int32_t(p.Threads)
		params.n_threads_batch = C.int32_t(p.Threads)
	}
	ctx := C.llama_init_from_model(m.model, params)
	if ctx == nil {
		return nil, errors.New("llama: failed to create context")
	}
	nBatch := int(C.llama_n_batch(ctx))
	return &Context{
		ctx:    ctx,
		batch:  C.llama_batch_init(C.int32_t(nBatch), 0, 1),
		nBatch: nBatch,
		nVocab: m.nVocab,
	}, nil
}

func (m *Model) Close() error {
	if m.model != nil {
		C.llama_model_free(m.model)
		m.model = nil
	}
	return nil
}

// Context wraps a llama_context and a reusable native batch.
type Context struct {
	ctx    *C.struct_llama_context
	batch  C.struct_llama_batch
	nBatch int
	nVocab int
	// outputs maps batch index to whether logits were requested.
	outputs []bool
}

func (c *Context) BatchSize() int { return c.nBatch }

func (c *Context) ClearCache() error {
	C.llama_memory_clear(C.llama_get_memory(c.ctx), C.bool(true))
	c.outputs = c.outputs[:0]
	return nil
}

func (c *Context) Decode(b *backend.Batch) error {
	if b.Len() == 0 {
		return errors.New("llama: empty batch")
	}
	if b.Len() > c.nBatch {
		return fmt.Errorf("llama: batch of %d exceeds capacity %d", b.Len(), c.nBatch)
	}
	c.outputs = append(c.outputs[:0], b.Output...)
	for i, tok := range b.Tokens {
		var out C.int8_t
		if b.Output[i] {
			out = 1
		}
		C.parlor_batch_set(&c.batch, C.int(i), C.llama_token(tok), C.llama_pos(b.Pos[i]), out)
	}
	c.batch.n_tokens = C.int32_t(b.Len())

	switch rc := C.llama_decode(c.ctx, c.batch); {
	case rc == 1:
		return errors.New("llama: no KV slot available for batch")
	case rc != 0:
		return fmt.Errorf("llama: decode failed (%d)", int(rc))
	}
	return nil
}

func (c *Context) Logits(i int) ([]float32, error) {
	if i < 0 || i >= len(c.outputs) || !c.outputs[i] {
		return nil, fmt.Errorf("llama: no logits for batch entry %d", i)
	}
	p := C.llama_get_logits_ith(c.ctx, C.int32_t(i))
	if p == nil {
		return nil, fmt.Errorf("llama: logits unavailable for batch entry %d", i)
	}
	src := unsafe.Slice((*float32)(unsafe.Pointer(p)), c.nVocab)
	out := make([]float32, c.nVocab)
	copy(out, src)
	return out, nil
}

func (c *Context) Close() error {
	if c.ctx != nil {
		C.llama_batch_free(c.batch)
		C.llama_free(c.ctx)
		c.ctx = nil
	}
	return nil
}

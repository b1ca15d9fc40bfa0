//go:build !llama

// Package llamacpp binds the backend interfaces to llama.cpp through cgo.
// This build was compiled without the llama tag, so the backend is only
// registered as unavailable.
package llamacpp

import (
	"fmt"

	"github.com/samcharles93/parlor/internal/backend"
)

const unavailableReason = "rebuild with -tags llama"

func init() {
	backend.RegisterUnavailable(backend.Llama, unavailableReason)
}

// Open always fails in builds without llama.cpp.
func Open(p backend.ModelParams) (backend.Model, error) {
	return nil, fmt.Errorf("llama (%s): %w", unavailableReason, backend.ErrUnavailable)
}

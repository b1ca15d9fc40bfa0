package backend

import (
	"errors"
	"sync"
)

var errReleased = errors.New("model handle already released")

// Shared is a reference-counted handle to a Model. Every holder, including
// the creator, calls Release exactly once; the model closes when the last
// reference goes.
type Shared struct {
	mu    sync.Mutex
	model Model
	refs  int
}

// Share wraps m with a reference count of one owned by the caller.
func Share(m Model) *Shared {
	return &Shared{model: m, refs: 1}
}

// Acquire adds a reference and returns the handle.
func (s *Shared) Acquire() (*Shared, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs == 0 {
		return nil, errReleased
	}
	s.refs++
	return s, nil
}

// Release drops a reference, closing the model when none remain.
func (s *Shared) Release() error {
	s.mu.Lock()
	if s.refs == 0 {
		s.mu.Unlock()
		return errReleased
	}
	s.refs--
	last := s.refs == 0
	s.mu.Unlock()
	if last {
		return s.model.Close()
	}
	return nil
}

// Model returns the wrapped model. Valid while the caller holds a reference.
func (s *Shared) Model() Model { return s.model }

// Refs reports the current reference count.
func (s *Shared) Refs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

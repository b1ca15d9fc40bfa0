package backend

import (
	"fmt"
	"sort"
	"sync"
)

// Opener loads a model for a registered backend.
type Opener func(p ModelParams) (Model, error)

// entry is a registered backend. A nil open means the backend is known but
// was not compiled in; reason says how to get it.
type entry struct {
	open   Opener
	reason string
}

var (
	registryMu sync.RWMutex
	registry   = map[string]entry{}
)

// Register makes an opener available under name. Backends call it from init.
func Register(name string, open Opener) {
	register(name, entry{open: open})
}

// RegisterUnavailable records a backend that this build cannot open, so
// Open and the version report can explain why.
func RegisterUnavailable(name, reason string) {
	register(name, entry{reason: reason})
}

func register(name string, e entry) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("backend: duplicate registration for " + name)
	}
	registry[name] = e
}

// Open loads a model with the named backend.
func Open(name string, p ModelParams) (Model, error) {
	n, err := Normalize(name)
	if err != nil {
		return nil, err
	}
	registryMu.RLock()
	e, ok := registry[n]
	registryMu.RUnlock()
	switch {
	case !ok:
		return nil, fmt.Errorf("backend %q: %w", n, ErrUnavailable)
	case e.open == nil:
		return nil, fmt.Errorf("backend %q (%s): %w", n, e.reason, ErrUnavailable)
	}
	return e.open(p)
}

// Available lists the backends this build can open.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n, e := range registry {
		if e.open != nil {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// Unavailable maps backends known to this build but not compiled in to the
// reason they cannot be opened.
func Unavailable() map[string]string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := map[string]string{}
	for n, e := range registry {
		if e.open == nil {
			out[n] = e.reason
		}
	}
	return out
}

package inference

import "errors"

var (
	// ErrSessionBusy is returned when a stream still holds the session.
	ErrSessionBusy = errors.New("session is in use by an active stream")
	// ErrNotReady is returned when generation is requested without a fresh
	// reset, including after a failed step.
	ErrNotReady = errors.New("session must be reset before generating")
	// ErrSessionClosed is returned after Session.Close.
	ErrSessionClosed = errors.New("session is closed")
	// ErrStreamClosed is returned when pulling from a closed stream.
	ErrStreamClosed = errors.New("stream is closed")
	// ErrEmptyPrompt is wrapped in a TokenizeError when the prompt produced
	// no tokens.
	ErrEmptyPrompt = errors.New("prompt produced no tokens")
)

// TokenizeError reports that conversation text could not be tokenized.
// The session is left cleared and can be reset again.
type TokenizeError struct {
	Err error
}

func (e *TokenizeError) Error() string { return "tokenize prompt: " + e.Err.Error() }

func (e *TokenizeError) Unwrap() error { return e.Err }

// BackendError reports a failed native operation. The current generation is
// over and the session must be reset before reuse.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string { return "backend " + e.Op + ": " + e.Err.Error() }

func (e *BackendError) Unwrap() error { return e.Err }

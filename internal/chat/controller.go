// Package chat drives a decoding session on behalf of a user interface: it
// owns the conversation, appends generated fragments to the open assistant
// turn, trims stop markers and keeps partial text when cancelled.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/samcharles93/parlor/internal/conversation"
	"github.com/samcharles93/parlor/internal/inference"
	"github.com/samcharles93/parlor/internal/logits"
	"github.com/samcharles93/parlor/internal/prompt"
)

// EventKind distinguishes Start, Chunk and End events.
type EventKind uint8

const (
	EventStart EventKind = iota
	EventChunk
	EventEnd
)

// Event reports generation progress to a UI.
type Event struct {
	Kind EventKind
	// Text is newly displayable output. It withholds a trailing run that
	// could still become a stop marker.
	Text string
	// Message is the open assistant turn's full text after this event.
	Message string
	Reason  inference.Outcome
	Stats   inference.Stats
	Err     error
}

var (
	ErrBusy = errors.New("a generation is already running")
	ErrIdle = errors.New("no generation is running")
)

// Generator is the part of a decoding session the controller needs.
type Generator interface {
	Generate(turns []conversation.Turn, strategy logits.Strategy) (*inference.Stream, error)
}

// Controller is not safe for concurrent use except for Cancel, which may be
// called from any goroutine.
type Controller struct {
	gen      Generator
	tmpl     prompt.Template
	strategy logits.Strategy
	conv     *conversation.Conversation

	stream  *inference.Stream
	turn    int
	emitted int
	cancel  atomic.Bool
}

func New(gen Generator, tmpl prompt.Template, strategy logits.Strategy, conv *conversation.Conversation) *Controller {
	if conv == nil {
		conv = &conversation.Conversation{}
	}
	return &Controller{gen: gen, tmpl: tmpl, strategy: strategy, conv: conv}
}

// Conversation returns the live conversation. Do not modify it while Busy.
func (c *Controller) Conversation() *conversation.Conversation { return c.conv }

// Busy reports whether a generation is in progress.
func (c *Controller) Busy() bool { return c.stream != nil }

// Submit appends a user turn. Blank input is ignored.
func (c *Controller) Submit(text string) error {
	if c.Busy() {
		return ErrBusy
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	c.conv.Append(conversation.User, text)
	return nil
}

// Rewrite replaces the text of the trailing assistant turn, creating one if
// needed. The next Start continues from the rewritten text.
func (c *Controller) Rewrite(text string) error {
	if c.Busy() {
		return ErrBusy
	}
	c.conv.OpenAssistant().Message = text
	return nil
}

// Replace swaps in a new conversation, for example after reloading it from
// disk.
func (c *Controller) Replace(conv conversation.Conversation) error {
	if c.Busy() {
		return ErrBusy
	}
	*c.conv = conv
	return nil
}

// Start opens (or reuses) the trailing assistant turn and begins generating
// into it. If the session cannot start, an assistant turn opened here is
// removed again so the conversation is left as it was.
//
// Start does not clear a pending Cancel: a cancel requested after
// ClearCancel stops the generation at its first step.
func (c *Controller) Start() (Event, error) {
	if c.Busy() {
		return Event{}, ErrBusy
	}
	before := c.conv.Len()
	open := c.conv.OpenAssistant()
	c.turn = c.conv.Len() - 1
	c.emitted = len(open.Message)

	st, err := c.gen.Generate(c.conv.Turns, c.strategy)
	if err != nil {
		msg := open.Message
		c.conv.Turns = c.conv.Turns[:before]
		return Event{Kind: EventEnd, Message: msg, Reason: inference.OutcomeError, Err: err}, err
	}
	c.stream = st
	return Event{Kind: EventStart, Message: open.Message}, nil
}

// Cancel asks the running (or about to start) generation to stop before its
// next step.
func (c *Controller) Cancel() { c.cancel.Store(true) }

// ClearCancel drops any stale cancel request. Call it on the goroutine that
// schedules Start, before scheduling it.
func (c *Controller) ClearCancel() { c.cancel.Store(false) }

// Pump advances the generation by one token.
func (c *Controller) Pump() (Event, error) {
	if c.stream == nil {
		return Event{}, ErrIdle
	}
	turn := &c.conv.Turns[c.turn]
	if c.cancel.Swap(false) {
		c.stream.Close()
		return c.finish(inference.OutcomeCancelled, nil), nil
	}

	frag, ok, err := c.stream.Next()
	if err != nil {
		return c.finish(inference.OutcomeError, err), err
	}
	if !ok {
		turn.Message += c.stream.Tail()
		return c.finish(inference.OutcomeEOS, nil), nil
	}

	turn.Message += frag
	if trimmed, matched := c.tmpl.TrimStop(turn.Message); matched {
		turn.Message = trimmed
		c.stream.Stop()
		return c.finish(inference.OutcomeStop, nil), nil
	}
	return Event{Kind: EventChunk, Text: c.safeDelta(turn.Message), Message: turn.Message}, nil
}

// Run drives a whole generation, calling emit for every event with text and
// for the final End event. Cancelling ctx stops generation between steps.
func (c *Controller) Run(ctx context.Context, emit func(Event)) (Event, error) {
	c.ClearCancel()
	ev, err := c.Start()
	if err != nil {
		return ev, err
	}
	emit(ev)
	for {
		if ctx.Err() != nil {
			c.Cancel()
		}
		ev, err := c.Pump()
		if ev.Kind == EventEnd || ev.Text != "" {
			emit(ev)
		}
		if ev.Kind == EventEnd {
			return ev, err
		}
	}
}

func (c *Controller) finish(reason inference.Outcome, err error) Event {
	msg := c.conv.Turns[c.turn].Message
	ev := Event{
		Kind:    EventEnd,
		Message: msg,
		Reason:  reason,
		Stats:   c.stream.Stats(),
		Err:     err,
	}
	if c.emitted < len(msg) {
		ev.Text = msg[c.emitted:]
	}
	c.stream = nil
	return ev
}

// safeDelta returns the not-yet-emitted part of msg that can no longer turn
// into a stop marker.
func (c *Controller) safeDelta(msg string) string {
	safe := len(msg) - c.holdback(msg)
	if safe <= c.emitted {
		return ""
	}
	delta := msg[c.emitted:safe]
	c.emitted = safe
	return delta
}

// holdback is the length of the longest suffix of msg that is a proper
// prefix of some stop marker.
func (c *Controller) holdback(msg string) int {
	longest := 0
	for _, stop := range c.tmpl.Stops {
		for n := min(len(stop)-1, len(msg)); n > longest; n-- {
			if strings.HasSuffix(msg, stop[:n]) {
				longest = n
				break
			}
		}
	}
	return longest
}

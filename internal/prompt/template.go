// Package prompt turns a conversation into model input text and recognises
// stop markers in generated text.
package prompt

import (
	"strings"

	"github.com/samcharles93/parlor/internal/conversation"
)

// Template describes how turns are framed for a particular model family.
// A turn is rendered as HeaderPrefix + role + HeaderSuffix + message, and
// consecutive turns are separated by EndOfContent.
type Template struct {
	HeaderPrefix string   `json:"header_prefix" yaml:"header_prefix" toml:"header_prefix"`
	HeaderSuffix string   `json:"header_suffix" yaml:"header_suffix" toml:"header_suffix"`
	EndOfContent string   `json:"end_of_content" yaml:"end_of_content" toml:"end_of_content"`
	Stops        []string `json:"stops" yaml:"stops" toml:"stops"`
}

// Encode renders turns into a single prompt string. When the last turn is
// not from the assistant (or there are no turns) an empty assistant header
// is appended so the model continues as the assistant.
func (t Template) Encode(turns []conversation.Turn) string {
	var b strings.Builder
	last := conversation.System
	for _, turn := range turns {
		if b.Len() > 0 {
			b.WriteString(t.EndOfContent)
		}
		t.writeHeader(&b, turn.Role)
		b.WriteString(turn.Message)
		last = turn.Role
	}
	if last != conversation.Assistant {
		if b.Len() > 0 {
			b.WriteString(t.EndOfContent)
		}
		t.writeHeader(&b, conversation.Assistant)
	}
	return b.String()
}

func (t Template) writeHeader(b *strings.Builder, role conversation.Role) {
	b.WriteString(t.HeaderPrefix)
	b.WriteString(role.String())
	b.WriteString(t.HeaderSuffix)
}

// TrimStop checks the stop markers in order. On the first marker that text
// ends with, it returns text without that marker and true.
func (t Template) TrimStop(text string) (string, bool) {
	for _, stop := range t.Stops {
		if stop == "" {
			continue
		}
		if trimmed, ok := strings.CutSuffix(text, stop); ok {
			return trimmed, true
		}
	}
	return text, false
}

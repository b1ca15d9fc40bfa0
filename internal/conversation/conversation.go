// Package conversation holds the role-tagged turn list that prompts are built
// from, and reads and writes it to disk.
package conversation

import (
	"fmt"
	"strings"
)

// Role identifies who authored a turn.
type Role string

const (
	System    Role = "system"
	User      Role = "user"
	Assistant Role = "assistant"
)

// ParseRole maps a canonical lowercase role name to a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case System, User, Assistant:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q (expected system, user, or assistant)", s)
	}
}

func (r Role) String() string { return string(r) }

func (r Role) MarshalText() ([]byte, error) {
	if _, err := ParseRole(string(r)); err != nil {
		return nil, err
	}
	return []byte(r), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Turn is one role-tagged message.
type Turn struct {
	Role    Role   `json:"role" yaml:"role" toml:"role"`
	Message string `json:"message" yaml:"message" toml:"message"`
}

// Conversation is an ordered list of turns. Order defines dialogue order.
type Conversation struct {
	Turns []Turn
}

// Append adds a turn at the end of the conversation.
func (c *Conversation) Append(role Role, message string) {
	c.Turns = append(c.Turns, Turn{Role: role, Message: message})
}

// Last returns the most recent turn, or nil for an empty conversation.
func (c *Conversation) Last() *Turn {
	if len(c.Turns) == 0 {
		return nil
	}
	return &c.Turns[len(c.Turns)-1]
}

// OpenAssistant makes sure the conversation ends with an assistant turn and
// returns it. An existing trailing assistant turn is reused so that
// generation continues its text.
func (c *Conversation) OpenAssistant() *Turn {
	if last := c.Last(); last != nil && last.Role == Assistant {
		return last
	}
	c.Append(Assistant, "")
	return c.Last()
}

// Clone returns a deep copy safe to hand to another goroutine.
func (c Conversation) Clone() Conversation {
	turns := make([]Turn, len(c.Turns))
	copy(turns, c.Turns)
	return Conversation{Turns: turns}
}

func (c Conversation) Len() int { return len(c.Turns) }

package conversation

import (
	"fmt"

	"github.com/samcharles93/parlor/internal/fileformat"
)

// document is the on-disk shape: one named collection of turns.
type document struct {
	Content []Turn `json:"content" yaml:"content" toml:"content"`
}

// Load reads a conversation file. The codec is chosen from the extension.
func Load(path string) (Conversation, error) {
	var doc document
	if err := fileformat.ReadFile(path, &doc); err != nil {
		return Conversation{}, fmt.Errorf("load conversation: %w", err)
	}
	for i, t := range doc.Content {
		if t.Role == "" {
			return Conversation{}, fmt.Errorf("load conversation: turn %d has no role", i)
		}
	}
	return Conversation{Turns: doc.Content}, nil
}

// Save writes the conversation to path, replacing any existing file.
func Save(path string, c Conversation) error {
	turns := c.Turns
	if turns == nil {
		turns = []Turn{}
	}
	if err := fileformat.WriteFile(path, document{Content: turns}); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

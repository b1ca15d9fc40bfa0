package backend

import "fmt"

// Batch stages (token, position) pairs for one forward pass. Entries with
// Output set produce logits.
type Batch struct {
	Tokens []Token
	Pos    []int32
	Output []bool
	cap    int
}

// NewBatch allocates a batch holding at most capacity entries.
func NewBatch(capacity int) *Batch {
	if capacity <= 0 {
		panic(fmt.Sprintf("backend: invalid batch capacity %d", capacity))
	}
	return &Batch{
		Tokens: make([]Token, 0, capacity),
		Pos:    make([]int32, 0, capacity),
		Output: make([]bool, 0, capacity),
		cap:    capacity,
	}
}

// Add appends one entry.
func (b *Batch) Add(tok Token, pos int32, output bool) error {
	if len(b.Tokens) >= b.cap {
		return ErrBatchFull
	}
	b.Tokens = append(b.Tokens, tok)
	b.Pos = append(b.Pos, pos)
	b.Output = append(b.Output, output)
	return nil
}

// Clear empties the batch, keeping its storage.
func (b *Batch) Clear() {
	b.Tokens = b.Tokens[:0]
	b.Pos = b.Pos[:0]
	b.Output = b.Output[:0]
}

func (b *Batch) Len() int { return len(b.Tokens) }

func (b *Batch) Cap() int { return b.cap }

func (b *Batch) Full() bool { return len(b.Tokens) >= b.cap }

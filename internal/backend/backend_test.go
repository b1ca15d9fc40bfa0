package backend

import (
	"errors"
	"testing"
)

type closeCounter struct {
	Model
	closed int
}

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func TestSharedClosesOnLastRelease(t *testing.T) {
	t.Parallel()
	m := &closeCounter{}
	s := Share(m)
	if _, err := s.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if s.Refs() != 2 {
		t.Fatalf("expected 2 refs, got %d", s.Refs())
	}
	if err := s.Release(); err != nil {
		t.Fatal(err)
	}
	if m.closed != 0 {
		t.Fatal("model closed while still referenced")
	}
	if err := s.Release(); err != nil {
		t.Fatal(err)
	}
	if m.closed != 1 {
		t.Fatalf("expected one close, got %d", m.closed)
	}
	if err := s.Release(); err == nil {
		t.Fatal("expected error releasing a dead handle")
	}
	if _, err := s.Acquire(); err == nil {
		t.Fatal("expected error acquiring a dead handle")
	}
}

func TestBatchCapacity(t *testing.T) {
	t.Parallel()
	b := NewBatch(2)
	if err := b.Add(1, 0, false); err != nil {
		t.Fatal(err)
	}
	if err := b.Add(2, 1, true); err != nil {
		t.Fatal(err)
	}
	if !b.Full() || b.Len() != 2 {
		t.Fatalf("expected full batch of 2, got len %d", b.Len())
	}
	if err := b.Add(3, 2, false); !errors.Is(err, ErrBatchFull) {
		t.Fatalf("expected ErrBatchFull, got %v", err)
	}
	b.Clear()
	if b.Len() != 0 || b.Cap() != 2 {
		t.Fatalf("expected empty batch with cap 2, got len %d cap %d", b.Len(), b.Cap())
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want string
		err  bool
	}{
		{"", Llama, false},
		{"LLAMA", Llama, false},
		{" toy ", Toy, false},
		{"cuda", "", true},
	}
	for _, tc := range cases {
		got, err := Normalize(tc.in)
		if (err != nil) != tc.err || got != tc.want {
			t.Errorf("Normalize(%q) = %q, %v", tc.in, got, err)
		}
	}
}

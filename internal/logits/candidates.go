package logits

import (
	"cmp"
	"math"
	"math/rand"
	"slices"
)

// Candidate is one vocabulary entry in a sampling distribution.
type Candidate struct {
	ID    int32
	Logit float32
	P     float32
}

// Candidates is a mutable view over the vocabulary for one sampling step.
// Filters shrink it in place; probabilities are only meaningful after
// Softmax.
type Candidates struct {
	data   []Candidate
	sorted bool
}

// NewCandidates builds a candidate array from a logits vector.
func NewCandidates(logits []float32) *Candidates {
	c := &Candidates{}
	c.Reset(logits)
	return c
}

// Reset refills the array from logits, reusing storage.
func (c *Candidates) Reset(logits []float32) {
	if cap(c.data) < len(logits) {
		c.data = make([]Candidate, len(logits))
	}
	c.data = c.data[:len(logits)]
	for i, l := range logits {
		c.data[i] = Candidate{ID: int32(i), Logit: l}
	}
	c.sorted = false
}

func (c *Candidates) Len() int { return len(c.data) }

func (c *Candidates) At(i int) Candidate { return c.data[i] }

func (c *Candidates) sortByLogit() {
	if c.sorted {
		return
	}
	slices.SortStableFunc(c.data, func(a, b Candidate) int {
		return cmp.Compare(b.Logit, a.Logit)
	})
	c.sorted = true
}

// Softmax sorts candidates by descending logit and fills P.
func (c *Candidates) Softmax() {
	if len(c.data) == 0 {
		return
	}
	c.sortByLogit()
	maxv := c.data[0].Logit
	var sum float64
	for i := range c.data {
		e := math.Exp(float64(c.data[i].Logit - maxv))
		c.data[i].P = float32(e)
		sum += e
	}
	inv := 1.0 / sum
	for i := range c.data {
		c.data[i].P = float32(float64(c.data[i].P) * inv)
	}
}

// Temperature divides every logit by t. A non-positive t keeps only the most
// likely candidate.
func (c *Candidates) Temperature(t float32) {
	if len(c.data) == 0 {
		return
	}
	if t <= 0 {
		c.sortByLogit()
		c.data = c.data[:1]
		return
	}
	inv := 1 / t
	for i := range c.data {
		c.data[i].Logit *= inv
	}
}

// TopK keeps the max(k, minKeep) highest-logit candidates. A non-positive k
// keeps everything.
func (c *Candidates) TopK(k, minKeep int) {
	n := len(c.data)
	if k <= 0 {
		k = n
	}
	k = min(max(k, minKeep), n)
	if k == n {
		return
	}
	if !c.sorted && k <= 128 {
		c.selectTop(k)
		return
	}
	c.sortByLogit()
	c.data = c.data[:k]
}

// selectTop moves the k largest logits to the front in descending order
// with an insertion pass. O(V*K), fine for small K.
func (c *Candidates) selectTop(k int) {
	top := make([]Candidate, 0, k+1)
	for _, cand := range c.data {
		pos := len(top)
		for pos > 0 && top[pos-1].Logit < cand.Logit {
			pos--
		}
		if pos >= k {
			continue
		}
		top = append(top, Candidate{})
		copy(top[pos+1:], top[pos:])
		top[pos] = cand
		if len(top) > k {
			top = top[:k]
		}
	}
	c.data = append(c.data[:0], top...)
	c.sorted = true
}

// TopP keeps the smallest prefix, by descending probability, whose
// cumulative probability reaches p, but never fewer than minKeep entries.
func (c *Candidates) TopP(p float32, minKeep int) {
	if p >= 1 || len(c.data) == 0 {
		return
	}
	c.Softmax()
	cut := len(c.data)
	var cum float64
	for i := range c.data {
		cum += float64(c.data[i].P)
		if cum >= float64(p) && i+1 >= minKeep {
			cut = i + 1
			break
		}
	}
	c.data = c.data[:cut]
}

// Surprise returns -log2(p) for candidate i.
func (c *Candidates) Surprise(i int) float64 {
	return -math.Log2(float64(c.data[i].P))
}

// draw normalises the remaining candidates and picks an index with
// probability proportional to P.
func (c *Candidates) draw(rng *rand.Rand) int {
	c.Softmax()
	r := rng.Float64()
	var cum float64
	for i := range c.data {
		cum += float64(c.data[i].P)
		if r < cum {
			return i
		}
	}
	return len(c.data) - 1
}

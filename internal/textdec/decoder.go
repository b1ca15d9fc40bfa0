// Package textdec reassembles UTF-8 text from byte chunks that may split
// multi-byte characters.
package textdec

import (
	"errors"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decoder accepts byte chunks and returns only fully decoded text. Incomplete
// trailing sequences are held until the next chunk; invalid bytes decode to
// U+FFFD.
type Decoder struct {
	t       transform.Transformer
	pending []byte
	buf     []byte
}

// New returns a Decoder with empty state.
func New() *Decoder {
	return &Decoder{
		t:   unicode.UTF8.NewDecoder(),
		buf: make([]byte, 256),
	}
}

// Reset drops any buffered partial sequence.
func (d *Decoder) Reset() {
	d.t.Reset()
	d.pending = d.pending[:0]
}

// Pending reports how many bytes are held back waiting for completion.
func (d *Decoder) Pending() int { return len(d.pending) }

// Write decodes p together with any previously held bytes.
func (d *Decoder) Write(p []byte) string {
	if len(p) == 0 {
		return ""
	}
	src := make([]byte, 0, len(d.pending)+len(p))
	src = append(src, d.pending...)
	src = append(src, p...)
	out, rest := d.transform(src, false)
	d.pending = append(d.pending[:0], rest...)
	return out
}

// Flush decodes whatever is held back, replacing an incomplete sequence
// with U+FFFD, and leaves the decoder empty.
func (d *Decoder) Flush() string {
	if len(d.pending) == 0 {
		return ""
	}
	src := d.pending
	d.pending = nil
	out, _ := d.transform(src, true)
	d.t.Reset()
	return out
}

func (d *Decoder) transform(src []byte, atEOF bool) (string, []byte) {
	var out []byte
	for {
		nDst, nSrc, err := d.t.Transform(d.buf, src, atEOF)
		out = append(out, d.buf[:nDst]...)
		src = src[nSrc:]
		switch {
		case errors.Is(err, transform.ErrShortDst):
			if nSrc == 0 && nDst == 0 {
				d.buf = make([]byte, 2*len(d.buf))
			}
			continue
		case errors.Is(err, transform.ErrShortSrc):
			return string(out), src
		case err != nil:
			// The UTF-8 decoder substitutes invalid input, so this is unreachable
			// in practice; surface the raw bytes rather than dropping them.
			return string(append(out, src...)), nil
		}
		return string(out), src
	}
}

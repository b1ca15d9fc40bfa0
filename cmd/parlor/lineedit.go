package main

import (
	"strings"
	"unicode/utf8"
)

type editResult uint8

const (
	editContinue editResult = iota
	editSubmit
	editInterrupt
	editEOF
)

// lineEditor is the terminal-independent half of the REPL line editor: it
// consumes raw input bytes and keeps the line, cursor and history. The
// platform half puts the terminal in raw mode and redraws.
type lineEditor struct {
	line   []rune
	cursor int

	history  []string
	histPos  int
	browsing bool
	draft    []rune

	esc     int
	escBuf  strings.Builder
	partial []byte
}

func newLineEditor() *lineEditor { return &lineEditor{} }

// begin starts a fresh line.
func (e *lineEditor) begin() {
	e.line = e.line[:0]
	e.cursor = 0
	e.histPos = len(e.history)
	e.browsing = false
	e.draft = nil
	e.esc = 0
	e.partial = e.partial[:0]
}

func (e *lineEditor) String() string { return string(e.line) }

// submit records the line in history and returns it.
func (e *lineEditor) submit() string {
	out := string(e.line)
	if strings.TrimSpace(out) != "" {
		if n := len(e.history); n == 0 || e.history[n-1] != out {
			e.history = append(e.history, out)
		}
	}
	return out
}

func (e *lineEditor) feed(b byte) editResult {
	if e.esc != 0 {
		e.feedEscape(b)
		return editContinue
	}
	if len(e.partial) > 0 || b >= utf8.RuneSelf {
		e.partial = append(e.partial, b)
		if utf8.FullRune(e.partial) {
			r, _ := utf8.DecodeRune(e.partial)
			e.partial = e.partial[:0]
			e.insert(r)
		}
		return editContinue
	}

	switch b {
	case 27:
		e.esc = 1
	case '\r', '\n':
		return editSubmit
	case 3: // Ctrl+C
		return editInterrupt
	case 4: // Ctrl+D
		if len(e.line) == 0 {
			return editEOF
		}
		e.deleteAt(e.cursor)
	case 127, 8:
		if e.cursor > 0 {
			e.cursor--
			e.deleteAt(e.cursor)
		}
	case 1: // Ctrl+A
		e.cursor = 0
	case 5: // Ctrl+E
		e.cursor = len(e.line)
	case 11: // Ctrl+K
		e.line = e.line[:e.cursor]
	case 21: // Ctrl+U
		e.line = append(e.line[:0], e.line[e.cursor:]...)
		e.cursor = 0
	case 23: // Ctrl+W
		e.deleteWordBack()
	default:
		if b >= 32 {
			e.insert(rune(b))
		}
	}
	return editContinue
}

func (e *lineEditor) feedEscape(b byte) {
	switch e.esc {
	case 1:
		e.esc = 0
		switch b {
		case '[', 'O':
			e.esc = 2
			e.escBuf.Reset()
		case 'b', 'B':
			e.wordLeft()
		case 'f', 'F':
			e.wordRight()
		case 127:
			e.deleteWordBack()
		}
	case 2:
		e.escBuf.WriteByte(b)
		if (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == '~' {
			e.esc = 0
			e.csi(e.escBuf.String())
		}
	}
}

func (e *lineEditor) csi(seq string) {
	switch seq {
	case "A":
		e.historyPrev()
	case "B":
		e.historyNext()
	case "C":
		if e.cursor < len(e.line) {
			e.cursor++
		}
	case "D":
		if e.cursor > 0 {
			e.cursor--
		}
	case "H", "1~":
		e.cursor = 0
	case "F", "4~":
		e.cursor = len(e.line)
	case "3~":
		e.deleteAt(e.cursor)
	case "1;5D", "5D":
		e.wordLeft()
	case "1;5C", "5C":
		e.wordRight()
	case "3;5~":
		e.deleteWordForward()
	}
}

func (e *lineEditor) insert(r rune) {
	e.line = append(e.line, 0)
	copy(e.line[e.cursor+1:], e.line[e.cursor:])
	e.line[e.cursor] = r
	e.cursor++
}

func (e *lineEditor) deleteAt(i int) {
	if i < 0 || i >= len(e.line) {
		return
	}
	e.line = append(e.line[:i], e.line[i+1:]...)
}

func isBlank(r rune) bool { return r == ' ' || r == '\t' }

func (e *lineEditor) wordStart() int {
	i := e.cursor
	for i > 0 && isBlank(e.line[i-1]) {
		i--
	}
	for i > 0 && !isBlank(e.line[i-1]) {
		i--
	}
	return i
}

func (e *lineEditor) wordEnd() int {
	i := e.cursor
	for i < len(e.line) && isBlank(e.line[i]) {
		i++
	}
	for i < len(e.line) && !isBlank(e.line[i]) {
		i++
	}
	return i
}

func (e *lineEditor) wordLeft()  { e.cursor = e.wordStart() }
func (e *lineEditor) wordRight() { e.cursor = e.wordEnd() }

func (e *lineEditor) deleteWordBack() {
	start := e.wordStart()
	e.line = append(e.line[:start], e.line[e.cursor:]...)
	e.cursor = start
}

func (e *lineEditor) deleteWordForward() {
	end := e.wordEnd()
	e.line = append(e.line[:e.cursor], e.line[end:]...)
}

func (e *lineEditor) historyPrev() {
	if len(e.history) == 0 {
		return
	}
	if !e.browsing {
		e.draft = append([]rune(nil), e.line...)
		e.browsing = true
		e.histPos = len(e.history)
	}
	if e.histPos > 0 {
		e.histPos--
		e.setLine(e.history[e.histPos])
	}
}

func (e *lineEditor) historyNext() {
	if !e.browsing {
		return
	}
	if e.histPos < len(e.history)-1 {
		e.histPos++
		e.setLine(e.history[e.histPos])
		return
	}
	e.histPos = len(e.history)
	e.line = append(e.line[:0], e.draft...)
	e.cursor = len(e.line)
	e.browsing = false
}

func (e *lineEditor) setLine(s string) {
	e.line = append(e.line[:0], []rune(s)...)
	e.cursor = len(e.line)
}

func trimTrailingNewline(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}

//go:build linux

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

var (
	editor      = newLineEditor()
	stdinReader = bufio.NewReader(os.Stdin)
)

// readInteractiveLine reads one line with editing and history when stdin is
// a terminal, and a plain line otherwise. Ctrl+C and Ctrl+D on an empty line
// return io.EOF.
func readInteractiveLine(prompt string) (string, error) {
	if !stdinIsTTY() {
		return readPlainLine()
	}

	fd := int(os.Stdin.Fd())
	oldState, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return "", err
	}
	raw := *oldState
	raw.Lflag &^= unix.ICANON | unix.ECHO
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return "", err
	}
	defer func() {
		_ = unix.IoctlSetTermios(fd, unix.TCSETS, oldState)
	}()

	editor.begin()
	fmt.Print(prompt)
	var buf [16]byte
	for {
		n, err := os.Stdin.Read(buf[:])
		if err != nil {
			return "", err
		}
		for _, b := range buf[:n] {
			switch editor.feed(b) {
			case editSubmit:
				fmt.Print("\r\n")
				return editor.submit(), nil
			case editInterrupt:
				fmt.Print("^C\r\n")
				return "", io.EOF
			case editEOF:
				fmt.Print("\r\n")
				return "", io.EOF
			}
		}
		redraw(prompt)
	}
}

func redraw(prompt string) {
	fmt.Printf("\r%s%s\x1b[K", prompt, editor.String())
	if editor.cursor < len(editor.line) {
		fmt.Printf("\r%s%s", prompt, string(editor.line[:editor.cursor]))
	}
}

func readPlainLine() (string, error) {
	s, err := stdinReader.ReadString('\n')
	if err == io.EOF && s != "" {
		err = nil
	}
	if err != nil {
		return "", err
	}
	return trimTrailingNewline(s), nil
}

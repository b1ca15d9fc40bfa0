package main

import (
	"os"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/samcharles93/parlor/internal/conversation"
)

func newTestTUI(t *testing.T) *tuiModel {
	t.Helper()
	a := newTestApp(t)
	t.Cleanup(a.closeAndReport)
	m := newTUIModel(a)
	m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return m
}

func TestTUISubmitThenCancel(t *testing.T) {
	t.Parallel()
	m := newTestTUI(t)
	m.input.SetValue("hello there")
	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter}); cmd == nil {
		t.Fatal("expected a command to start generating")
	}
	if !m.generating {
		t.Fatal("expected generating after Enter")
	}
	if m.input.Value() != "" {
		t.Fatalf("input not cleared: %q", m.input.Value())
	}
	if len(m.turns) != 2 || m.turns[1].Role != conversation.Assistant {
		t.Fatalf("expected user turn plus open assistant turn, got %+v", m.turns)
	}

	// Drive the generation by hand: start, cancel, pump.
	_, next := m.Update(m.startCmd()())
	if next == nil {
		t.Fatal("expected a pump command after start")
	}
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m.Update(next())

	if m.generating {
		t.Fatal("still generating after cancellation")
	}
	if !strings.HasPrefix(m.status, "cancelled") {
		t.Fatalf("status = %q", m.status)
	}
	conv := m.app.ctrl.Conversation()
	if conv.Len() != 2 || conv.Turns[0].Message != "hello there" {
		t.Fatalf("conversation = %+v", conv.Turns)
	}
}

func TestTUIEnterIgnoredWhileGenerating(t *testing.T) {
	t.Parallel()
	m := newTestTUI(t)
	m.input.SetValue("first")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m.input.SetValue("second")
	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Fatal("Enter while generating should do nothing")
	}
	if m.input.Value() != "second" {
		t.Fatalf("input changed while generating: %q", m.input.Value())
	}
}

func TestTUIRewriteFlow(t *testing.T) {
	t.Parallel()
	m := newTestTUI(t)

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	if m.editing {
		t.Fatal("rewrite should need an assistant turn")
	}

	if err := m.app.ctrl.Rewrite("draft reply"); err != nil {
		t.Fatal(err)
	}
	m.syncTurns()
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	if !m.editing || m.input.Value() != "draft reply" {
		t.Fatalf("editing=%v input=%q", m.editing, m.input.Value())
	}

	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.editing || m.input.Value() != "" {
		t.Fatalf("Esc should cancel the rewrite, editing=%v input=%q", m.editing, m.input.Value())
	}

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	m.input.SetValue("better reply")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !m.generating {
		t.Fatal("submitting a rewrite should continue generation")
	}
	if got := m.turns[m.live].Message; got != "better reply" {
		t.Fatalf("live turn = %q", got)
	}
}

func TestTUISaveAndReload(t *testing.T) {
	t.Parallel()
	m := newTestTUI(t)
	if err := m.app.ctrl.Rewrite("kept"); err != nil {
		t.Fatal(err)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	if m.err != nil {
		t.Fatalf("save: %v", m.err)
	}
	if _, err := os.Stat(m.app.proj.PromptsPath()); err != nil {
		t.Fatalf("prompts file not written: %v", err)
	}

	if err := m.app.ctrl.Rewrite("discarded"); err != nil {
		t.Fatal(err)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyF5})
	if m.err != nil {
		t.Fatalf("reload: %v", m.err)
	}
	if len(m.turns) != 1 || m.turns[0].Message != "kept" {
		t.Fatalf("turns after reload = %+v", m.turns)
	}
	if !strings.Contains(m.View(), "kept") {
		t.Fatal("view should render the reloaded conversation")
	}
}

func TestTUIEscapeTwiceQuits(t *testing.T) {
	t.Parallel()
	m := newTestTUI(t)
	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc}); cmd != nil {
		t.Fatal("first Esc should only arm quitting")
	}
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil {
		t.Fatal("second Esc should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg")
	}
}

func TestTUICancelBeforeStartIsKept(t *testing.T) {
	t.Parallel()
	m := newTestTUI(t)
	m.input.SetValue("hello")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	// Ctrl+C lands before the start command has run.
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})

	_, next := m.Update(m.startCmd()())
	if next == nil {
		t.Fatal("expected a pump command after start")
	}
	m.Update(next())
	if m.generating {
		t.Fatal("still generating after cancellation")
	}
	if !strings.HasPrefix(m.status, "cancelled") {
		t.Fatalf("status = %q", m.status)
	}
	if got := m.app.ctrl.Conversation().Last().Message; got != "" {
		t.Fatalf("expected no generated text, got %q", got)
	}
}

func TestTUIShutdownStopsSteps(t *testing.T) {
	t.Parallel()
	m := newTestTUI(t)
	m.input.SetValue("hello")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	_, next := m.Update(m.startCmd()())

	m.shutdown()
	if msg := next(); msg != nil {
		t.Fatalf("pump ran after shutdown: %#v", msg)
	}
	if msg := m.startCmd()(); msg != nil {
		t.Fatalf("start ran after shutdown: %#v", msg)
	}
}

func TestStepGuardWaitsForRunningStep(t *testing.T) {
	t.Parallel()
	var g stepGuard
	entered := make(chan struct{})
	release := make(chan struct{})
	go g.run(func() tea.Msg {
		close(entered)
		<-release
		return nil
	})
	<-entered

	shut := make(chan struct{})
	go func() {
		g.shut()
		close(shut)
	}()
	select {
	case <-shut:
		t.Fatal("shut returned while a step was running")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-shut

	if msg := g.run(func() tea.Msg { return genMsg{} }); msg != nil {
		t.Fatal("step ran after shut")
	}
}

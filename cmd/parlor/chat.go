package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/parlor/internal/chat"
	"github.com/samcharles93/parlor/internal/conversation"
	"github.com/samcharles93/parlor/internal/inference"
)

const replHelp = `Commands:
  /help             show this help
  /history          print the conversation
  /continue         generate more text for the last assistant turn
  /retry            discard the last assistant reply and generate again
  /rewrite <text>   replace the last assistant reply, then /continue from it
  /save             write the conversation to the prompts file
  /reload           discard unsaved changes and reload the prompts file
  /exit             quit (also Ctrl+D)
Ctrl+C while a reply is streaming stops it and keeps the partial text.`

func chatCmd() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Chat with the project's model in a line-oriented REPL",
		Flags: append(sessionFlags(), outputFlags()...),
		Action: func(ctx context.Context, c *cli.Command) error {
			mode, err := ParseStreamMode(streamMode)
			if err != nil {
				return exitErr(err)
			}
			a, err := openApp(c)
			if err != nil {
				return exitErr(err)
			}
			defer a.closeAndReport()

			r := &repl{app: a, mode: mode, out: os.Stdout, errOut: os.Stderr}
			if err := r.run(ctx); err != nil {
				return exitErr(err)
			}
			return nil
		},
	}
}

type repl struct {
	app    *app
	mode   StreamMode
	out    io.Writer
	errOut io.Writer
}

func (r *repl) run(ctx context.Context) error {
	conv := r.app.ctrl.Conversation()
	if conv.Len() > 0 {
		printTranscript(r.out, *conv)
	}
	_, _ = fmt.Fprintln(r.errOut, "Type /help for commands, /exit to quit.")

	for {
		line, err := readInteractiveLine("> ")
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		quit, err := r.handle(ctx, strings.TrimSpace(line))
		if err != nil {
			_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

// handle runs one REPL input. Plain text becomes a user turn and starts a
// reply.
func (r *repl) handle(ctx context.Context, line string) (quit bool, err error) {
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		if err := r.app.ctrl.Submit(line); err != nil {
			return false, err
		}
		return false, r.reply(ctx)
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(cmd) {
	case "/exit", "/quit":
		return true, nil
	case "/help":
		_, _ = fmt.Fprintln(r.out, replHelp)
	case "/history":
		printTranscript(r.out, *r.app.ctrl.Conversation())
	case "/save":
		if err := r.app.save(); err != nil {
			return false, err
		}
		_, _ = fmt.Fprintf(r.errOut, "saved %s\n", r.app.proj.PromptsPath())
	case "/reload":
		if err := r.app.reload(); err != nil {
			return false, err
		}
		printTranscript(r.out, *r.app.ctrl.Conversation())
	case "/continue":
		return false, r.reply(ctx)
	case "/retry":
		if last := r.app.ctrl.Conversation().Last(); last == nil || last.Role != conversation.Assistant {
			return false, errors.New("no assistant reply to retry")
		}
		if err := r.app.ctrl.Rewrite(""); err != nil {
			return false, err
		}
		return false, r.reply(ctx)
	case "/rewrite":
		if arg == "" {
			return false, errors.New("usage: /rewrite <text>")
		}
		if err := r.app.ctrl.Rewrite(arg); err != nil {
			return false, err
		}
		_, _ = fmt.Fprintln(r.errOut, "assistant reply replaced; /continue to extend it")
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", cmd)
	}
	return false, nil
}

// reply streams one assistant turn. Ctrl+C stops it between tokens.
func (r *repl) reply(ctx context.Context) error {
	genCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	sw := NewStreamWriter(r.out, r.mode)
	end, err := r.app.ctrl.Run(genCtx, func(ev chat.Event) {
		if ev.Kind == chat.EventStart {
			sw.Write(ev.Message)
			return
		}
		sw.Write(ev.Text)
	})
	sw.Close()
	_, _ = fmt.Fprintln(r.out)
	if end.Reason == inference.OutcomeCancelled {
		_, _ = fmt.Fprintln(r.errOut, "(interrupted)")
	}
	if err == nil {
		printStats(r.errOut, end)
	}
	return err
}

func printStats(w io.Writer, ev chat.Event) {
	s := ev.Stats
	_, _ = fmt.Fprintf(w, "[%s] %d tokens in %s (%.2f tok/s), prompt %d tokens in %d flushes\n",
		ev.Reason, s.TokensGenerated, s.Duration.Round(time.Millisecond), s.TPS, s.PromptTokens, s.PromptFlushes)
}

func printTranscript(w io.Writer, conv conversation.Conversation) {
	for _, t := range conv.Turns {
		_, _ = fmt.Fprintf(w, "[%s]\n%s\n\n", t.Role, t.Message)
	}
}

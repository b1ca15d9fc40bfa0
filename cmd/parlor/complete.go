package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/parlor/internal/chat"
	"github.com/samcharles93/parlor/internal/inference"
)

func completeCmd() *cli.Command {
	var (
		message string
		save    bool
		stats   bool
	)
	return &cli.Command{
		Name:      "complete",
		Usage:     "Generate one assistant reply for the project's conversation and exit",
		ArgsUsage: "[message]",
		Flags: append(append(sessionFlags(), outputFlags()...),
			&cli.StringFlag{
				Name:        "message",
				Aliases:     []string{"m"},
				Usage:       "user message to append before generating (read from stdin when piped)",
				Destination: &message,
			},
			&cli.BoolFlag{
				Name:        "save",
				Usage:       "write the conversation, including the reply, back to the prompts file",
				Destination: &save,
			},
			&cli.BoolFlag{
				Name:        "stats",
				Usage:       "print generation statistics to stderr",
				Destination: &stats,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			mode, err := ParseStreamMode(streamMode)
			if err != nil {
				return exitErr(err)
			}
			if message == "" && c.Args().Present() {
				message = strings.Join(c.Args().Slice(), " ")
			}
			if message == "" && !stdinIsTTY() {
				b, err := io.ReadAll(os.Stdin)
				if err != nil {
					return exitErr(fmt.Errorf("read stdin: %w", err))
				}
				message = string(b)
			}

			a, err := openApp(c)
			if err != nil {
				return exitErr(err)
			}
			defer a.closeAndReport()

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
			defer stop()
			end, err := complete(ctx, a, message, NewStreamWriter(os.Stdout, mode))
			if err != nil {
				return exitErr(err)
			}
			if stats {
				printStats(os.Stderr, end)
			}
			if save {
				if err := a.save(); err != nil {
					return exitErr(err)
				}
			}
			return nil
		},
	}
}

var errNothingToComplete = errors.New("conversation is empty; pass a message")

// complete appends message as a user turn (when non-blank) and streams one
// reply into sw.
func complete(ctx context.Context, a *app, message string, sw *StreamWriter) (chat.Event, error) {
	if err := a.ctrl.Submit(strings.TrimSpace(message)); err != nil {
		return chat.Event{}, err
	}
	if a.ctrl.Conversation().Len() == 0 {
		return chat.Event{}, errNothingToComplete
	}
	end, err := a.ctrl.Run(ctx, func(ev chat.Event) { sw.Write(ev.Text) })
	sw.Write("\n")
	sw.Close()
	if err != nil {
		return end, err
	}
	if end.Reason == inference.OutcomeCancelled {
		a.log.Warn("generation interrupted", "tokens", end.Stats.TokensGenerated)
	}
	return end, nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/parlor/internal/backend"
	"github.com/samcharles93/parlor/internal/version"
)

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			info := version.Resolve()
			fmt.Printf("version:    %s\n", info.Version)
			if info.Commit != "" {
				fmt.Printf("commit:     %s\n", info.Commit)
			}
			if info.BuildTime != "" {
				fmt.Printf("build time: %s\n", info.BuildTime)
			}
			printBackends(os.Stdout)
			return nil
		},
	}
}

// printBackends lists the backends this build can open, then those it
// knows about but cannot.
func printBackends(w io.Writer) {
	_, _ = fmt.Fprintf(w, "backends:   %s\n", strings.Join(backend.Available(), ", "))
	missing := backend.Unavailable()
	names := make([]string, 0, len(missing))
	for n := range missing {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		_, _ = fmt.Fprintf(w, "            %s unavailable (%s)\n", n, missing[n])
	}
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/parlor/internal/conversation"
	"github.com/samcharles93/parlor/internal/project"
	"github.com/samcharles93/parlor/internal/prompt"
)

// sampleTurns illustrate a template's framing in `parlor templates <name>`.
var sampleTurns = []conversation.Turn{
	{Role: conversation.System, Message: "You are a helpful assistant."},
	{Role: conversation.User, Message: "Hello!"},
}

func templatesCmd() *cli.Command {
	return &cli.Command{
		Name:      "templates",
		Usage:     "List prompt templates, or show one with an example encoding",
		ArgsUsage: "[name]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "project",
				Aliases:     []string{"p"},
				Usage:       "also list templates defined in this project file",
				Destination: &projectPath,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			custom := map[string]prompt.Template{}
			if c.IsSet("project") {
				proj, err := project.Load(projectPath)
				if err != nil {
					return exitErr(err)
				}
				custom = proj.Templates
			}
			if name := c.Args().First(); name != "" {
				t, ok := lookupTemplate(custom, name)
				if !ok {
					return exitErr(fmt.Errorf("unknown template %q", name))
				}
				describeTemplate(os.Stdout, name, t)
				return nil
			}
			listTemplates(os.Stdout, custom)
			return nil
		},
	}
}

func lookupTemplate(custom map[string]prompt.Template, name string) (prompt.Template, bool) {
	if t, ok := custom[name]; ok {
		return t, true
	}
	return prompt.Builtin(name)
}

func listTemplates(w io.Writer, custom map[string]prompt.Template) {
	for _, name := range prompt.Names() {
		suffix := ""
		if _, ok := custom[name]; ok {
			suffix = " (overridden by project)"
		}
		_, _ = fmt.Fprintf(w, "%s\tbuilt-in%s\n", name, suffix)
	}
	names := make([]string, 0, len(custom))
	for name := range custom {
		if _, builtin := prompt.Builtin(name); !builtin {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		_, _ = fmt.Fprintf(w, "%s\tproject\n", name)
	}
}

func describeTemplate(w io.Writer, name string, t prompt.Template) {
	_, _ = fmt.Fprintf(w, "name:           %s\n", name)
	_, _ = fmt.Fprintf(w, "header_prefix:  %q\n", t.HeaderPrefix)
	_, _ = fmt.Fprintf(w, "header_suffix:  %q\n", t.HeaderSuffix)
	_, _ = fmt.Fprintf(w, "end_of_content: %q\n", t.EndOfContent)
	quoted := make([]string, len(t.Stops))
	for i, s := range t.Stops {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	_, _ = fmt.Fprintf(w, "stops:          [%s]\n", strings.Join(quoted, ", "))
	_, _ = fmt.Fprintf(w, "\nexample:\n%s\n", t.Encode(sampleTurns))
}

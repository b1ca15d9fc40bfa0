package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/samcharles93/parlor/internal/prompt"
)

func TestListTemplates(t *testing.T) {
	t.Parallel()
	custom := map[string]prompt.Template{
		"alpaca": {HeaderPrefix: "### ", HeaderSuffix: ":\n", EndOfContent: "\n\n"},
		"chatml": {HeaderPrefix: "<<", HeaderSuffix: ">>"},
	}
	var out bytes.Buffer
	listTemplates(&out, custom)
	got := out.String()
	for _, want := range []string{
		"chatml\tbuilt-in (overridden by project)\n",
		"gemma\tbuilt-in\n",
		"llama3\tbuilt-in\n",
		"alpaca\tproject\n",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in:\n%s", want, got)
		}
	}
}

func TestLookupTemplatePrefersProject(t *testing.T) {
	t.Parallel()
	custom := map[string]prompt.Template{"chatml": {HeaderPrefix: "<<"}}
	tmpl, ok := lookupTemplate(custom, "chatml")
	if !ok || tmpl.HeaderPrefix != "<<" {
		t.Fatalf("lookupTemplate = %+v, %v", tmpl, ok)
	}
	if _, ok := lookupTemplate(custom, "gemma"); !ok {
		t.Fatal("expected built-in fallback")
	}
	if _, ok := lookupTemplate(custom, "missing"); ok {
		t.Fatal("expected unknown template to be missing")
	}
}

func TestDescribeTemplate(t *testing.T) {
	t.Parallel()
	tmpl, _ := prompt.Builtin("chatml")
	var out bytes.Buffer
	describeTemplate(&out, "chatml", tmpl)
	got := out.String()
	for _, want := range []string{
		`header_prefix:  "<|im_start|>"`,
		`stops:          ["<|im_end|>", "<|im_start|>"]`,
		"<|im_start|>user\nHello!<|im_end|>\n<|im_start|>assistant\n",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in:\n%s", want, got)
		}
	}
}

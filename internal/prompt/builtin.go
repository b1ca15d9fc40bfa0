package prompt

import (
	"slices"
	"strings"
)

var builtins = map[string]Template{
	"chatml": {
		HeaderPrefix: "<|im_start|>",
		HeaderSuffix: "\n",
		EndOfContent: "<|im_end|>\n",
		Stops:        []string{"<|im_end|>", "<|im_start|>"},
	},
	"llama3": {
		HeaderPrefix: "<|start_header_id|>",
		HeaderSuffix: "<|end_header_id|>\n\n",
		EndOfContent: "<|eot_id|>",
		Stops:        []string{"<|eot_id|>", "<|end_of_text|>"},
	},
	"gemma": {
		HeaderPrefix: "<start_of_turn>",
		HeaderSuffix: "\n",
		EndOfContent: "<end_of_turn>\n",
		Stops:        []string{"<end_of_turn>"},
	},
}

// Builtin returns a copy of a named preset template.
func Builtin(name string) (Template, bool) {
	t, ok := builtins[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Template{}, false
	}
	t.Stops = slices.Clone(t.Stops)
	return t, true
}

// Names lists the preset template names in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

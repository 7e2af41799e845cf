package summarize

import (
	"fmt"
	"strings"

	"github.com/kbhalerao/codesmriti/internal/chunker"
)

const systemPrompt = "You are a code documentation assistant. Describe code " +
	"precisely in plain prose. Never use markdown formatting, headings, or " +
	"bullet lists. Never include code in your answer."

func symbolPrompt(chunk *chunker.Chunk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize this %s in at most 3 sentences.\n\n", chunk.Kind)
	if chunk.Signature != "" {
		fmt.Fprintf(&b, "Signature: %s\n", chunk.Signature)
	}
	if chunk.Docstring != "" {
		fmt.Fprintf(&b, "Docstring: %s\n", chunk.Docstring)
	}
	if len(chunk.Decorators) > 0 {
		fmt.Fprintf(&b, "Decorators: %s\n", strings.Join(chunk.Decorators, ", "))
	}
	fmt.Fprintf(&b, "\nCode:\n%s\n", chunk.Source)
	return b.String()
}

func filePrompt(path string, meta *chunker.Chunk, body string, symbols []Child) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the source file %q in at most 8 sentences. "+
		"Describe its purpose and main responsibilities.\n\n", path)

	if meta != nil {
		if meta.Docstring != "" {
			fmt.Fprintf(&b, "Module docstring: %s\n", meta.Docstring)
		}
		fmt.Fprintf(&b, "Top-level functions: %d, classes: %d\n", meta.FunctionCount, meta.ClassCount)
	}

	switch {
	case body != "":
		fmt.Fprintf(&b, "\nFile body:\n%s\n", body)
	case meta != nil:
		fmt.Fprintf(&b, "\nFile head:\n%s\n", meta.Source)
	}

	if len(symbols) > 0 {
		b.WriteString("\nSymbol summaries in source order:\n")
		for _, s := range symbols {
			fmt.Fprintf(&b, "- %s: %s\n", s.Name, s.Text)
		}
	}
	return b.String()
}

func modulePrompt(path string, files []Child) string {
	label := path
	if label == "" {
		label = "(repository root)"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the folder %s in at most 8 sentences, based on "+
		"its file summaries. Describe what the folder as a whole provides.\n\n", label)
	for _, f := range files {
		fmt.Fprintf(&b, "- %s: %s\n", f.Name, f.Text)
	}
	return b.String()
}

func repoPrompt(repoID string, modules []Child) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the repository %q in at most 12 sentences, based "+
		"on its top-level module summaries. State the system's purpose, main "+
		"components, and how they fit together.\n\n", repoID)
	for _, m := range modules {
		name := m.Name
		if name == "" {
			name = "(root)"
		}
		fmt.Fprintf(&b, "- %s: %s\n", name, m.Text)
	}
	return b.String()
}

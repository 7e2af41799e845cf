// Package ui renders CLI output: styled when attached to a terminal,
// plain text when piped.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/kbhalerao/codesmriti/internal/search"
)

// Color palette, 256-color indices.
const (
	colorAccent = "75"  // blue accent for identifiers
	colorGray   = "245" // secondary text
	colorGreen  = "78"  // success
	colorRed    = "196" // errors
)

// Styles holds the render styles.
type Styles struct {
	Title lipgloss.Style
	ID    lipgloss.Style
	Score lipgloss.Style
	Dim   lipgloss.Style
	Good  lipgloss.Style
	Bad   lipgloss.Style
}

// Renderer writes human-facing output.
type Renderer struct {
	out    io.Writer
	styled bool
	styles Styles
}

// NewRenderer builds a renderer for out, styling only when out is a
// terminal.
func NewRenderer(out io.Writer) *Renderer {
	styled := false
	if f, ok := out.(*os.File); ok {
		styled = isatty.IsTerminal(f.Fd())
	}
	return &Renderer{
		out:    out,
		styled: styled,
		styles: Styles{
			Title: lipgloss.NewStyle().Bold(true),
			ID:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorAccent)),
			Score: lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
			Dim:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
			Good:  lipgloss.NewStyle().Foreground(lipgloss.Color(colorGreen)),
			Bad:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)),
		},
	}
}

func (r *Renderer) render(style lipgloss.Style, s string) string {
	if !r.styled {
		return s
	}
	return style.Render(s)
}

// Hits renders search results.
func (r *Renderer) Hits(hits []*search.Hit) {
	if len(hits) == 0 {
		fmt.Fprintln(r.out, "no results")
		return
	}

	for i, h := range hits {
		d := h.Document
		label := d.Path
		if d.SymbolName != "" {
			label = fmt.Sprintf("%s:%d %s", d.Path, d.StartLine, d.SymbolName)
		}
		if label == "" {
			label = d.RepoID
		}

		fmt.Fprintf(r.out, "%2d. %s %s\n", i+1,
			r.render(r.styles.ID, label),
			r.render(r.styles.Score, fmt.Sprintf("(%.3f)", h.Score)))

		summary := strings.TrimSpace(d.SummaryText)
		for _, line := range wrap(summary, 96) {
			fmt.Fprintf(r.out, "    %s\n", line)
		}
	}
}

// Summary renders an ingestion outcome line.
func (r *Renderer) Summary(files, chunks, upserted, deleted, skipped int) {
	fmt.Fprintf(r.out, "%s %d files, %d chunks, %d upserts, %d deleted, %d skipped\n",
		r.render(r.styles.Good, "done:"), files, chunks, upserted, deleted, skipped)
}

// Error renders an error line.
func (r *Renderer) Error(err error) {
	fmt.Fprintf(r.out, "%s %v\n", r.render(r.styles.Bad, "error:"), err)
}

// wrap splits text into lines of at most width runes at word
// boundaries.
func wrap(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	current := words[0]
	for _, w := range words[1:] {
		if len(current)+1+len(w) > width {
			lines = append(lines, current)
			current = w
			continue
		}
		current += " " + w
	}
	return append(lines, current)
}

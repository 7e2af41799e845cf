package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kbhalerao/codesmriti/internal/document"
	"github.com/kbhalerao/codesmriti/internal/search"
)

func TestHitsPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)

	r.Hits([]*search.Hit{{
		Score: 0.97,
		Document: &document.Document{
			Path:        "util.py",
			SymbolName:  "sub",
			StartLine:   6,
			SummaryText: "Subtracts the second number from the first.",
		},
	}})

	out := buf.String()
	assert.Contains(t, out, "util.py:6 sub")
	assert.Contains(t, out, "(0.970)")
	assert.Contains(t, out, "Subtracts the second number")
	assert.NotContains(t, out, "\x1b[", "no ANSI codes when not a terminal")
}

func TestHitsEmpty(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(&buf).Hits(nil)
	assert.Equal(t, "no results\n", buf.String())
}

func TestRepoLevelHitUsesRepoID(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(&buf).Hits([]*search.Hit{{
		Score: 0.5,
		Document: &document.Document{
			RepoID:      "owner/repo",
			SummaryText: "A repository summary.",
		},
	}})
	assert.Contains(t, buf.String(), "owner/repo")
}

func TestWrap(t *testing.T) {
	lines := wrap(strings.Repeat("word ", 40), 20)
	for _, l := range lines {
		assert.LessOrEqual(t, len(l), 20)
	}
	assert.Nil(t, wrap("", 20))
	assert.Equal(t, []string{"single"}, wrap("single", 20))
}

func TestSummaryLine(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(&buf).Summary(3, 12, 15, 1, 2)
	assert.Contains(t, buf.String(), "3 files, 12 chunks, 15 upserts, 1 deleted, 2 skipped")
}

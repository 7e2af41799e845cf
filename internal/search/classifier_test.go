package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyLevels(t *testing.T) {
	tests := []struct {
		query string
		want  Level
	}{
		{"find function parse_config", LevelSymbol},
		{"where is the function that normalizes vectors", LevelSymbol},
		{"implementation of the reconciler", LevelSymbol},
		{"encode_query", LevelSymbol},
		{"Parser.parse()", LevelSymbol},

		{"how does ingestion work", LevelFile},
		{"explain the retry logic", LevelFile},
		{"what happens when a file is deleted", LevelFile},

		{"overall architecture of the storage layer", LevelDoc},
		{"high level design of the pipeline", LevelDoc},
		{"documentation for the embedding module", LevelDoc},

		{"overview", LevelRepo},
		{"what does this repo do", LevelRepo},
		{"what is this project about", LevelRepo},

		// Ambiguous defaults to file.
		{"vector normalization", LevelFile},
		{"", LevelFile},
		{"retry backoff timeouts errors handling", LevelFile},
	}

	c := NewIntentClassifier()
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Classify(tt.query), "query %q", tt.query)
	}
}

func TestClassifyCaches(t *testing.T) {
	c := NewIntentClassifier()
	first := c.Classify("How Does The Walker Work")
	second := c.Classify("how does the walker work")
	assert.Equal(t, first, second)
}

func TestLevelDocType(t *testing.T) {
	assert.Equal(t, "symbol_index", string(LevelSymbol.DocType()))
	assert.Equal(t, "file_index", string(LevelFile.DocType()))
	assert.Equal(t, "module_summary", string(LevelModule.DocType()))
	assert.Equal(t, "module_summary", string(LevelDoc.DocType()))
	assert.Equal(t, "repo_summary", string(LevelRepo.DocType()))
	assert.False(t, Level("chunk").Valid())
}

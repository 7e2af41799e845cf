package search

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// classifierCacheSize bounds the intent cache; queries repeat heavily
// in interactive sessions.
const classifierCacheSize = 10000

// IntentClassifier maps free-form queries to a default level when the
// caller does not supply one. It is keyword-heuristic by design; the
// default for ambiguous queries is the file level.
type IntentClassifier struct {
	cache *lru.Cache[string, Level]
}

// NewIntentClassifier creates the classifier.
func NewIntentClassifier() *IntentClassifier {
	cache, _ := lru.New[string, Level](classifierCacheSize)
	return &IntentClassifier{cache: cache}
}

// symbol-seeking markers: the user names a callable or asks where one is.
var symbolMarkers = []string{
	"find function", "find method", "find class", "function called",
	"method called", "class called", "function named", "method named",
	"class named", "definition of", "where is the function",
	"where is the method", "implementation of",
}

// file-level markers: the user asks how something works.
var fileMarkers = []string{
	"how does", "how do", "how is", "explain", "walk through",
	"what happens when",
}

// conceptual markers route to module/doc summaries.
var conceptMarkers = []string{
	"architecture", "design", "concept", "overall", "high level",
	"high-level", "responsibilities", "documentation", "docs for",
	"purpose of the", "what is the role",
}

// overview markers route to the repo roll-up.
var repoMarkers = []string{
	"overview", "what does this repo", "what does the repo",
	"what is this repository", "summarize the repo",
	"summarise the repo", "about this project", "what is this project",
}

// Classify returns the level for a query. Results are cached on the
// normalized query text.
func (c *IntentClassifier) Classify(query string) Level {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" {
		return LevelFile
	}

	if level, ok := c.cache.Get(normalized); ok {
		return level
	}

	level := classify(normalized)
	c.cache.Add(normalized, level)
	return level
}

func classify(q string) Level {
	for _, m := range repoMarkers {
		if strings.Contains(q, m) {
			return LevelRepo
		}
	}
	for _, m := range symbolMarkers {
		if strings.Contains(q, m) {
			return LevelSymbol
		}
	}
	for _, m := range conceptMarkers {
		if strings.Contains(q, m) {
			return LevelDoc
		}
	}
	for _, m := range fileMarkers {
		if strings.Contains(q, m) {
			return LevelFile
		}
	}

	// One or two tokens where a token holds '_', '(', ')' or '.' read
	// like a symbol name (snake_case, calls, dotted paths).
	if fields := strings.Fields(q); len(fields) <= 2 {
		for _, f := range fields {
			if strings.ContainsAny(f, "_().") {
				return LevelSymbol
			}
		}
	}

	// Ambiguous queries default to the file level.
	return LevelFile
}

package walker

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// builtinJunkPatterns match build outputs, dependency stores, minified
// assets, lockfiles, generated code, and source maps. The skip policy
// is fail-closed: anything matching is never ingested.
var builtinJunkPatterns = []string{
	// Dependency stores and build outputs.
	"**/node_modules/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/.git/**",
	"**/dist/**",
	"**/build/**",
	"**/target/**",
	"**/.venv/**",
	"**/venv/**",
	"**/.next/**",
	"**/.tox/**",
	"**/*.egg-info/**",

	// Minified assets and maps.
	"**/*.min.js",
	"**/*.min.css",
	"**/*.map",

	// Lockfiles.
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/Cargo.lock",
	"**/poetry.lock",
	"**/uv.lock",
	"**/go.sum",
	"**/Gemfile.lock",

	// Generated code.
	"**/*_pb2.py",
	"**/*.pb.go",
	"**/*_generated.go",
	"**/*.gen.go",
}

// skipDirNames prune whole subtrees during traversal before any file
// pattern matching runs.
var skipDirNames = map[string]struct{}{
	".git":         {},
	"node_modules": {},
	"vendor":       {},
	"__pycache__":  {},
	"dist":         {},
	"build":        {},
	"target":       {},
	".venv":        {},
	"venv":         {},
	".next":        {},
	".tox":         {},
	".idea":        {},
	".vscode":      {},
}

// SkipReason explains why a file was not ingested.
type SkipReason string

const (
	SkipJunkPattern SkipReason = "junk_pattern"
	SkipTooLarge    SkipReason = "too_large"
	SkipNoLanguage  SkipReason = "no_language"
	SkipTooShort    SkipReason = "too_short"
)

// shouldSkipDir reports whether a directory subtree is pruned outright.
func shouldSkipDir(name string) bool {
	_, ok := skipDirNames[name]
	return ok
}

// matchesJunk reports whether relPath matches any built-in or
// configured junk pattern.
func matchesJunk(relPath string, extra []string) bool {
	normalized := filepath.ToSlash(relPath)
	for _, pattern := range builtinJunkPatterns {
		if ok, err := doublestar.Match(pattern, normalized); err == nil && ok {
			return true
		}
	}
	for _, pattern := range extra {
		pattern = filepath.ToSlash(pattern)
		if ok, err := doublestar.Match(pattern, normalized); err == nil && ok {
			return true
		}
		if ok, err := doublestar.Match(pattern, filepath.Base(normalized)); err == nil && ok {
			return true
		}
	}
	return false
}

// strippedLength returns the content length after whitespace strip.
func strippedLength(content []byte) int {
	return len(strings.TrimSpace(string(content)))
}

package walker

import (
	"path/filepath"
	"strings"
)

// languageMap maps file extensions to languages with recognized parsers
// or whole-file handling. Files outside this map are skipped.
var languageMap = map[string]string{
	".go":    "go",
	".py":    "python",
	".pyi":   "python",
	".js":    "javascript",
	".mjs":   "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "tsx",
	".rb":    "ruby",
	".rs":    "rust",
	".java":  "java",
	".kt":    "kotlin",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cc":    "cpp",
	".cs":    "csharp",
	".php":   "php",
	".scala": "scala",
	".swift": "swift",
	".ex":    "elixir",
	".exs":   "elixir",
	".lua":   "lua",
	".sh":    "shell",
	".bash":  "shell",
	".sql":   "sql",
	".md":    "markdown",
	".rst":   "rst",
}

// DetectLanguage returns the language for a path, empty when the
// extension is not recognized.
func DetectLanguage(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	return languageMap[ext]
}

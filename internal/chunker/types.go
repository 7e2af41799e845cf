// Package chunker turns retained files into streams of raw chunks:
// one metadata chunk per file, then a whole-file chunk, one chunk per
// extracted symbol, or both, based on estimated token count and parser
// availability.
package chunker

import "context"

// Chunk-shaping defaults.
const (
	// TokensPerByte is the rough token estimate used for the
	// whole-file threshold decision.
	TokensPerByte = 0.75

	// DefaultFileTokenThreshold separates whole-file from per-symbol
	// chunking.
	DefaultFileTokenThreshold = 6000

	// MetadataMaxLines and MetadataMaxBytes cap the metadata chunk.
	MetadataMaxLines = 200
	MetadataMaxBytes = 4 * 1024
)

// Kind is the chunk kind.
type Kind string

const (
	// KindMetadata is the per-file metadata chunk, always emitted first.
	KindMetadata Kind = "metadata"

	// KindWholeFile carries the entire file body.
	KindWholeFile Kind = "whole_file"

	// KindFunction is a top-level function chunk.
	KindFunction Kind = "function"

	// KindClassHeader is a class signature + docstring chunk.
	KindClassHeader Kind = "class_header"

	// KindMethod is one method of a class.
	KindMethod Kind = "method"
)

// Chunk is one source span. It lives only inside the pipeline; chunks
// become at most one document each and are never persisted raw.
type Chunk struct {
	Path     string
	Language string

	// StartLine and EndLine are 1-indexed, inclusive.
	StartLine int
	EndLine   int

	Kind Kind

	// Name is the symbol name for symbol chunks (canonical for
	// methods: "Class.method").
	Name string

	// ParentSymbol names the enclosing class for methods and nested
	// classes.
	ParentSymbol string

	// Signature is the declaration line without the body.
	Signature string

	Docstring  string
	Decorators []string
	Parameters []string

	// Source is the raw code slice backing this chunk.
	Source string

	// FunctionCount and ClassCount are set on metadata chunks only.
	FunctionCount int
	ClassCount    int

	// TruncatedTokens notes truncation of the whole-file body at the
	// token threshold (metadata chunks only).
	TruncatedTokens int
}

// FileChunks groups all chunks of a single file, in emission order.
type FileChunks struct {
	Path      string
	Language  string
	LineCount int
	Size      int64

	// Content is retained for hashing; the pipeline drops it after
	// the reconciler decides the file's fate.
	Content []byte

	Chunks []*Chunk

	// ParseDegraded is set when the syntax tree was unavailable or
	// incomplete and the file fell back to whole-file chunking.
	ParseDegraded bool
}

// Chunker splits one file into chunks. Implementations are registered
// per language; files without a parser degrade to whole-file behavior.
type Chunker interface {
	Chunk(ctx context.Context, path, language string, content []byte) (*FileChunks, error)
}

// EstimateTokens approximates the token count of a byte length.
func EstimateTokens(byteLen int) int {
	return int(TokensPerByte * float64(byteLen))
}

package chunker

import (
	"context"
	"strings"

	"github.com/kbhalerao/codesmriti/internal/document"
)

// Options configures the code chunker.
type Options struct {
	// FileTokenThreshold separates whole-file from per-symbol chunking.
	FileTokenThreshold int

	// MinSymbolLines drops symbols below this source span; their code
	// still reaches the file summary through the metadata chunk.
	MinSymbolLines int
}

// CodeChunker is the syntax-tree chunker. One instance is not safe for
// concurrent use; the pipeline creates one per parse worker.
type CodeChunker struct {
	parser   *Parser
	registry *LanguageRegistry
	options  Options
}

// New creates a chunker over the default language registry.
func New(opts Options) *CodeChunker {
	return NewWithRegistry(NewLanguageRegistry(), opts)
}

// NewWithRegistry creates a chunker over a custom registry.
func NewWithRegistry(registry *LanguageRegistry, opts Options) *CodeChunker {
	if opts.FileTokenThreshold <= 0 {
		opts.FileTokenThreshold = DefaultFileTokenThreshold
	}
	if opts.MinSymbolLines <= 0 {
		opts.MinSymbolLines = 5
	}
	return &CodeChunker{
		parser:   NewParser(registry),
		registry: registry,
		options:  opts,
	}
}

// Close releases parser resources.
func (c *CodeChunker) Close() {
	c.parser.Close()
}

var _ Chunker = (*CodeChunker)(nil)

// Chunk emits, in order: the metadata chunk, then a whole-file chunk,
// symbol chunks, or both, depending on size and parser availability.
func (c *CodeChunker) Chunk(ctx context.Context, path, language string, content []byte) (*FileChunks, error) {
	fc := &FileChunks{
		Path:      path,
		Language:  language,
		LineCount: countLines(content),
		Size:      int64(len(content)),
		Content:   content,
	}

	estTokens := EstimateTokens(len(content))
	supported := c.registry.Supported(language)

	var tree *Tree
	if supported {
		parsed, err := c.parser.Parse(ctx, content, language)
		if err != nil || parsed.Root == nil || parsed.Root.HasError {
			// A failed parse or an incomplete tree (syntax errors
			// anywhere) degrades the whole file.
			fc.ParseDegraded = true
		} else {
			tree = parsed
		}
	}

	meta := c.metadataChunk(path, language, content, tree)

	if tree == nil {
		// No parser, or parse failure: whole-file regardless of size,
		// truncated at the token threshold.
		body, truncated := truncateAtTokens(content, c.options.FileTokenThreshold)
		if truncated {
			meta.TruncatedTokens = c.options.FileTokenThreshold
		}
		fc.Chunks = append(fc.Chunks, meta, c.wholeFileChunk(path, language, body, fc.LineCount))
		return fc, nil
	}

	// Parsed files always yield their symbol chunks. Small files (and
	// files without qualifying symbols) also carry the whole-file body
	// as summary context.
	symbols := c.symbolChunks(path, language, tree)
	fc.Chunks = append(fc.Chunks, meta)
	if estTokens < c.options.FileTokenThreshold || len(symbols) == 0 {
		body, truncated := truncateAtTokens(content, c.options.FileTokenThreshold)
		if truncated {
			meta.TruncatedTokens = c.options.FileTokenThreshold
		}
		fc.Chunks = append(fc.Chunks, c.wholeFileChunk(path, language, body, fc.LineCount))
	}
	fc.Chunks = append(fc.Chunks, symbols...)

	return fc, nil
}

// metadataChunk builds the always-first chunk: capped head of the file,
// symbol counts, and the module docstring when present.
func (c *CodeChunker) metadataChunk(path, language string, content []byte, tree *Tree) *Chunk {
	head := headOfFile(content, MetadataMaxLines, MetadataMaxBytes)

	chunk := &Chunk{
		Path:      path,
		Language:  language,
		Kind:      KindMetadata,
		StartLine: 1,
		EndLine:   countLines(head),
		Source:    string(head),
	}

	if tree != nil {
		spec, _ := c.registry.Spec(language)
		ext := &extractor{spec: spec, source: tree.Source}
		for _, sym := range ext.topLevel(tree) {
			switch sym.kind {
			case KindFunction:
				chunk.FunctionCount++
			case KindClassHeader:
				chunk.ClassCount++
			}
		}
		chunk.Docstring = moduleDocstring(tree, spec)
	}

	return chunk
}

func (c *CodeChunker) wholeFileChunk(path, language string, content []byte, lineCount int) *Chunk {
	return &Chunk{
		Path:      path,
		Language:  language,
		Kind:      KindWholeFile,
		StartLine: 1,
		EndLine:   lineCount,
		Source:    string(content),
	}
}

// symbolChunks converts extracted symbols to chunks, applying the
// minimum-span rule to every symbol, class headers included.
func (c *CodeChunker) symbolChunks(path, language string, tree *Tree) []*Chunk {
	spec, _ := c.registry.Spec(language)
	ext := &extractor{spec: spec, source: tree.Source}

	var chunks []*Chunk
	for _, sym := range ext.topLevel(tree) {
		if sym.node.LineSpan() < c.options.MinSymbolLines {
			continue
		}

		chunk := &Chunk{
			Path:         path,
			Language:     language,
			Kind:         sym.kind,
			StartLine:    sym.node.StartLine(),
			EndLine:      sym.node.EndLine(),
			Name:         document.CanonicalSymbolName(sym.parentSymbol, sym.name),
			ParentSymbol: sym.parentSymbol,
			Signature:    sym.signature,
			Docstring:    sym.docstring,
			Decorators:   sym.decorators,
			Parameters:   sym.parameters,
		}

		if sym.kind == KindClassHeader {
			// Header chunks carry only signature and docstring, not the
			// full class body; the line span stays the class's span.
			chunk.Source = sym.signature
			if sym.docstring != "" {
				chunk.Source += "\n" + sym.docstring
			}
		} else {
			chunk.Source = sym.node.Content(tree.Source)
		}

		chunks = append(chunks, chunk)
	}
	return chunks
}

// moduleDocstring returns the Python module docstring when present.
func moduleDocstring(tree *Tree, spec *LanguageSpec) string {
	if spec == nil || spec.Name != "python" || tree.Root == nil || len(tree.Root.Children) == 0 {
		return ""
	}
	first := tree.Root.Children[0]
	if first.Type != "expression_statement" {
		return ""
	}
	str := first.ChildByType("string")
	if str == nil {
		return ""
	}
	return cleanDocstring(str.Content(tree.Source))
}

// headOfFile caps the metadata excerpt at maxLines lines and maxBytes
// bytes, whichever is hit first.
func headOfFile(content []byte, maxLines, maxBytes int) []byte {
	if len(content) > maxBytes {
		content = content[:maxBytes]
	}
	lines := 0
	for i, b := range content {
		if b == '\n' {
			lines++
			if lines >= maxLines {
				return content[:i+1]
			}
		}
	}
	return content
}

// truncateAtTokens clips content at the byte position matching the
// token budget, backed off to a whitespace boundary.
func truncateAtTokens(content []byte, maxTokens int) ([]byte, bool) {
	maxBytes := int(float64(maxTokens) / TokensPerByte)
	if len(content) <= maxBytes {
		return content, false
	}
	clipped := content[:maxBytes]
	if idx := strings.LastIndexAny(string(clipped), " \t\n"); idx > 0 {
		clipped = clipped[:idx]
	}
	return clipped, true
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := 0
	for _, b := range content {
		if b == '\n' {
			n++
		}
	}
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}

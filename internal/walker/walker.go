// Package walker enumerates ingestable files in a repository checkout.
// It applies the fail-closed skip policy and streams results through a
// bounded channel, so memory stays bounded by the buffer size plus
// parallelism, times the file size cap, regardless of repository size.
package walker

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// File is one retained file with its content loaded.
type File struct {
	// Path is relative to the repository root, slash-separated.
	Path     string
	AbsPath  string
	Language string
	Size     int64
	Content  []byte
	// LineCount is the number of newline-terminated lines.
	LineCount int
}

// Skip records a file rejected by the skip policy.
type Skip struct {
	Path   string
	Reason SkipReason
}

// Result is one walker emission: exactly one of File, Skip, Err is set.
type Result struct {
	File *File
	Skip *Skip
	Err  error
}

// Options configures a walk.
type Options struct {
	// RootDir is the repository checkout root.
	RootDir string

	// JunkPatterns extends the built-in junk globs.
	JunkPatterns []string

	// MaxFileBytes is the hard size cap (default 1 MiB).
	MaxFileBytes int64

	// MinFileBytes is the minimum stripped content length (default 100).
	MinFileBytes int

	// Parallelism is the number of concurrent file readers (default 10).
	Parallelism int

	// BufferSize bounds the result channel (default 256).
	BufferSize int
}

const (
	defaultMaxFileBytes = 1 << 20
	defaultMinFileBytes = 100
	defaultParallelism  = 10
	defaultBufferSize   = 256
)

// Walk streams files under opts.RootDir. The returned channel closes
// when the walk completes or ctx is cancelled.
func Walk(ctx context.Context, opts Options) (<-chan Result, error) {
	absRoot, err := filepath.Abs(opts.RootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", absRoot)
	}

	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = defaultMaxFileBytes
	}
	if opts.MinFileBytes <= 0 {
		opts.MinFileBytes = defaultMinFileBytes
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = defaultParallelism
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}

	results := make(chan Result, opts.BufferSize)
	paths := make(chan candidate, opts.Parallelism)

	go func() {
		defer close(results)

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			defer close(paths)
			return enumerate(gctx, absRoot, opts, paths, results)
		})

		for i := 0; i < opts.Parallelism; i++ {
			g.Go(func() error {
				return readFiles(gctx, opts, paths, results)
			})
		}

		if err := g.Wait(); err != nil && ctx.Err() == nil {
			select {
			case results <- Result{Err: err}:
			case <-ctx.Done():
			}
		}
	}()

	return results, nil
}

type candidate struct {
	relPath string
	absPath string
	size    int64
}

// enumerate walks the tree, applying directory pruning and the
// path-level skip checks. Content-level checks happen in readFiles.
func enumerate(ctx context.Context, absRoot string, opts Options, out chan<- candidate, results chan<- Result) error {
	return filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			slog.Debug("walk error, skipping entry", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}

		relPath, relErr := filepath.Rel(absRoot, path)
		if relErr != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if relPath != "." && shouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks are never followed.
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		if matchesJunk(relPath, opts.JunkPatterns) {
			return emitSkip(ctx, results, relPath, SkipJunkPattern)
		}

		if DetectLanguage(relPath) == "" {
			return emitSkip(ctx, results, relPath, SkipNoLanguage)
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		if info.Size() > opts.MaxFileBytes {
			return emitSkip(ctx, results, relPath, SkipTooLarge)
		}

		select {
		case out <- candidate{relPath: relPath, absPath: path, size: info.Size()}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// readFiles loads candidate content and applies content-level checks.
func readFiles(ctx context.Context, opts Options, in <-chan candidate, results chan<- Result) error {
	for c := range in {
		content, err := os.ReadFile(c.absPath)
		if err != nil {
			slog.Warn("failed to read file", slog.String("path", c.relPath), slog.String("error", err.Error()))
			continue
		}

		if strippedLength(content) < opts.MinFileBytes {
			if err := emitSkip(ctx, results, c.relPath, SkipTooShort); err != nil {
				return err
			}
			continue
		}

		file := &File{
			Path:      c.relPath,
			AbsPath:   c.absPath,
			Language:  DetectLanguage(c.relPath),
			Size:      c.size,
			Content:   content,
			LineCount: countLines(content),
		}

		select {
		case results <- Result{File: file}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func emitSkip(ctx context.Context, results chan<- Result, path string, reason SkipReason) error {
	select {
	case results <- Result{Skip: &Skip{Path: path, Reason: reason}}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := bytes.Count(content, []byte{'\n'})
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}

// Package gitrepo reads repository working trees: blob hashes for
// change detection and on-demand source fetch for search results.
// Documents never store raw source; this package is the only read path
// back to it.
package gitrepo

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// BlobHash returns the Git blob hash of content, identical to what
// `git hash-object` prints. This is the file_commit stored on
// file_index documents.
func BlobHash(content []byte) string {
	return plumbing.ComputeHash(plumbing.BlobObject, content).String()
}

// ContentHash is the fallback commit for non-git checkouts. The prefix
// keeps it from ever colliding with a real blob hash.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return "raw:" + hex.EncodeToString(sum[:])
}

// Checkout is an on-disk repository working tree.
type Checkout struct {
	root  string
	isGit bool
}

// Open validates the checkout root. The directory does not need to be
// a git repository; outside git, file commits are "raw:"-prefixed
// SHA-256 hashes of the content.
func Open(root string) (*Checkout, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve checkout root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat checkout root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("checkout root is not a directory: %s", absRoot)
	}

	_, gitErr := git.PlainOpen(absRoot)
	return &Checkout{root: absRoot, isGit: gitErr == nil}, nil
}

// Root returns the absolute checkout root.
func (c *Checkout) Root() string { return c.root }

// HeadCommit returns the HEAD commit hash, empty for non-git checkouts.
func (c *Checkout) HeadCommit() string {
	if !c.isGit {
		return ""
	}
	repo, err := git.PlainOpen(c.root)
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	return head.Hash().String()
}

// CommitFor hashes content as this checkout's file commit: the Git
// blob hash inside a git repository, the prefixed content hash for
// plain directories.
func (c *Checkout) CommitFor(content []byte) string {
	if c.isGit {
		return BlobHash(content)
	}
	return ContentHash(content)
}

// FileCommit hashes one file's current content.
func (c *Checkout) FileCommit(relPath string) (string, error) {
	abs, err := c.resolve(relPath)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", relPath, err)
	}
	return c.CommitFor(content), nil
}

// FileSlice is the result of an on-demand source fetch.
type FileSlice struct {
	Code       string
	TotalLines int
	Language   string
	Truncated  bool
}

// ReadSlice reads a line range of a file, clipped at byteCap bytes.
// startLine and endLine are 1-indexed and inclusive; zero values mean
// the whole file.
func (c *Checkout) ReadSlice(relPath string, startLine, endLine, byteCap int) (*FileSlice, error) {
	abs, err := c.resolve(relPath)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", relPath, err)
	}

	lines := strings.Split(string(content), "\n")
	total := len(lines)
	if total > 0 && lines[total-1] == "" {
		total--
	}

	if startLine <= 0 {
		startLine = 1
	}
	if endLine <= 0 || endLine > total {
		endLine = total
	}
	if startLine > total {
		return &FileSlice{TotalLines: total}, nil
	}

	code := strings.Join(lines[startLine-1:endLine], "\n")

	truncated := false
	if byteCap > 0 && len(code) > byteCap {
		clipped := code[:byteCap]
		if idx := strings.LastIndexByte(clipped, '\n'); idx > 0 {
			clipped = clipped[:idx]
		}
		code = clipped
		truncated = true
	}

	return &FileSlice{
		Code:       code,
		TotalLines: total,
		Truncated:  truncated,
	}, nil
}

// resolve joins relPath under the root and rejects escapes.
func (c *Checkout) resolve(relPath string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(relPath))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("path escapes checkout: %q", relPath)
	}
	return filepath.Join(c.root, cleaned), nil
}

// Package summarize produces one natural-language summary per document,
// bottom-up: symbols, then files, then modules, then the repository.
// The pipeline never stalls on summarization; after the retry budget is
// spent it emits a mechanical placeholder flagged as degraded.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kbhalerao/codesmriti/internal/chunker"
	"github.com/kbhalerao/codesmriti/internal/errors"
)

// Summary is the explicit result shape: text plus a degradation flag
// instead of an error that could stall the pipeline.
type Summary struct {
	Text     string
	Degraded bool
}

// Aggregate is a parent-level summary with its truncation record.
type Aggregate struct {
	Summary
	Truncated bool
}

// Output token ceilings per level; roughly 40 tokens per sentence.
const (
	symbolMaxTokens = 160
	fileMaxTokens   = 400
	moduleMaxTokens = 400
	repoMaxTokens   = 600
)

// Config tunes the summarizer.
type Config struct {
	// InputBudgetTokens caps child-summary input per parent call.
	InputBudgetTokens int

	// MaxRetries, BackoffBase, BackoffCap shape the LLM retry policy.
	MaxRetries  int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Summarizer drives the per-level LLM calls. It is safe for concurrent
// use, though the ingestion pipeline runs it as a single stage to
// respect LLM rate limits.
type Summarizer struct {
	llm     LLM
	counter *TokenCounter
	config  Config
}

// New creates a summarizer.
func New(llm LLM, cfg Config) *Summarizer {
	if cfg.InputBudgetTokens <= 0 {
		cfg.InputBudgetTokens = 3000
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 30 * time.Second
	}
	return &Summarizer{
		llm:     llm,
		counter: NewTokenCounter(),
		config:  cfg,
	}
}

// Symbol summarizes one symbol chunk in at most 3 sentences.
func (s *Summarizer) Symbol(ctx context.Context, chunk *chunker.Chunk) Summary {
	return s.complete(ctx, symbolPrompt(chunk), symbolMaxTokens, func() string {
		return mechanicalSymbolSummary(chunk)
	})
}

// File summarizes one file from its metadata chunk, the whole-file
// body when the chunker emitted one, and the symbol summaries in
// source order.
func (s *Summarizer) File(ctx context.Context, path string, meta *chunker.Chunk, body string, symbols []Child) Aggregate {
	fitted, truncated := fitToBudget(s.counter, symbols, s.config.InputBudgetTokens)
	summary := s.complete(ctx, filePrompt(path, meta, body, fitted), fileMaxTokens, func() string {
		return mechanicalFileSummary(path, meta, symbols)
	})
	return Aggregate{Summary: summary, Truncated: truncated}
}

// Module summarizes a folder after all of its files completed.
func (s *Summarizer) Module(ctx context.Context, path string, files []Child) Aggregate {
	fitted, truncated := fitToBudget(s.counter, files, s.config.InputBudgetTokens)
	summary := s.complete(ctx, modulePrompt(path, fitted), moduleMaxTokens, func() string {
		return mechanicalChildListSummary("Folder "+displayPath(path), files)
	})
	return Aggregate{Summary: summary, Truncated: truncated}
}

// Repo summarizes the repository from its top-level module summaries.
func (s *Summarizer) Repo(ctx context.Context, repoID string, modules []Child) Aggregate {
	fitted, truncated := fitToBudget(s.counter, modules, s.config.InputBudgetTokens)
	summary := s.complete(ctx, repoPrompt(repoID, fitted), repoMaxTokens, func() string {
		return mechanicalChildListSummary("Repository "+repoID, modules)
	})
	return Aggregate{Summary: summary, Truncated: truncated}
}

// complete runs one LLM call under the retry policy, mapping failure to
// the degraded fallback.
func (s *Summarizer) complete(ctx context.Context, prompt string, maxTokens int, fallback func() string) Summary {
	retry := errors.RetryConfig{
		MaxRetries:   s.config.MaxRetries - 1,
		InitialDelay: s.config.BackoffBase,
		MaxDelay:     s.config.BackoffCap,
		Multiplier:   2.0,
	}

	text, err := errors.RetryWithResult(ctx, retry, func() (string, error) {
		return s.llm.Complete(ctx, systemPrompt, prompt, maxTokens)
	})
	if err != nil {
		slog.Warn("summarization degraded after retries", slog.String("error", err.Error()))
		return Summary{Text: fallback(), Degraded: true}
	}

	text = strings.TrimSpace(text)
	if !hasProse(text) {
		// Markdown-only or empty output carries no usable summary.
		return Summary{Text: fallback(), Degraded: true}
	}
	return Summary{Text: text}
}

// hasProse reports whether text contains at least one prose sentence
// after markdown scaffolding is stripped.
func hasProse(text string) bool {
	letters := 0
	inFence := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence || trimmed == "" {
			continue
		}
		trimmed = strings.TrimLeft(trimmed, "#*->|`~ \t")
		for _, r := range trimmed {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				letters++
			}
		}
	}
	return letters >= 10
}

// mechanicalSymbolSummary derives a placeholder from the chunk metadata.
func mechanicalSymbolSummary(chunk *chunker.Chunk) string {
	kind := string(chunk.Kind)
	if chunk.Kind == chunker.KindClassHeader {
		kind = "class"
	}
	text := fmt.Sprintf("%s %s in %s", capitalize(kind), chunk.Name, chunk.Path)
	if chunk.Signature != "" {
		text += ", declared as " + chunk.Signature
	}
	if chunk.Docstring != "" {
		text += ". " + firstSentence(chunk.Docstring)
	}
	return text + "."
}

func mechanicalFileSummary(path string, meta *chunker.Chunk, symbols []Child) string {
	text := fmt.Sprintf("Source file %s", path)
	if meta != nil && (meta.FunctionCount > 0 || meta.ClassCount > 0) {
		text += fmt.Sprintf(" with %d top-level functions and %d classes", meta.FunctionCount, meta.ClassCount)
	}
	if len(symbols) > 0 {
		names := make([]string, 0, len(symbols))
		for _, s := range symbols {
			names = append(names, s.Name)
		}
		text += ", defining " + strings.Join(names, ", ")
	}
	return text + "."
}

func mechanicalChildListSummary(label string, children []Child) string {
	if len(children) == 0 {
		return label + " with no summarized children."
	}
	names := make([]string, 0, len(children))
	for _, c := range children {
		name := c.Name
		if name == "" {
			name = "(root)"
		}
		names = append(names, name)
	}
	return fmt.Sprintf("%s containing %s.", label, strings.Join(names, ", "))
}

func displayPath(path string) string {
	if path == "" {
		return "(root)"
	}
	return path
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func firstSentence(text string) string {
	if idx := strings.IndexAny(text, ".\n"); idx > 0 {
		return strings.TrimSpace(text[:idx])
	}
	return strings.TrimSpace(text)
}

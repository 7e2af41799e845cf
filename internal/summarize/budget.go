package summarize

import (
	"sort"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens with tiktoken's cl100k_base encoding,
// falling back to a bytes/4 estimate if the encoding cannot load.
type TokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTokenCounter creates a lazy counter; the encoding loads on first use.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{}
}

// Count returns the token count of text.
func (t *TokenCounter) Count(text string) int {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			t.enc = enc
		}
	})
	if t.enc == nil {
		return len(text) / 4
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Child is one child summary feeding a parent aggregation.
type Child struct {
	// Name orders children: file path, module path, or symbol name.
	Name string

	// Text is the child's summary.
	Text string
}

// counter abstracts token counting so the budget logic is testable
// with a deterministic implementation.
type counter interface {
	Count(text string) int
}

// fitToBudget orders children lexicographically by name and, when the
// concatenation exceeds the token budget, keeps the first half and last
// half of the list, dropping from the middle until it fits. The drop
// order is deterministic; the caller records truncation on the parent.
func fitToBudget(counter counter, children []Child, budgetTokens int) ([]Child, bool) {
	total := 0
	for _, c := range children {
		total += counter.Count(c.Text)
	}
	if total <= budgetTokens {
		// Within budget the caller's order (source order for symbols)
		// is preserved.
		return children, false
	}

	ordered := make([]Child, len(children))
	copy(ordered, children)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })

	truncated := false
	for total > budgetTokens && len(ordered) > 1 {
		mid := len(ordered) / 2
		total -= counter.Count(ordered[mid].Text)
		ordered = append(ordered[:mid], ordered[mid+1:]...)
		truncated = true
	}
	return ordered, truncated
}

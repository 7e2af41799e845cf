package embed

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/kbhalerao/codesmriti/internal/errors"
)

// Encoder is the pipeline boundary over an Embedder. It applies the
// document/query prefixes, whitespace-boundary truncation, batching,
// and the unit-vector invariant. The underlying embedder is serialized
// so batches stay coherent; input preparation runs on the caller side.
type Encoder struct {
	embedder     Embedder
	batchSize    int
	maxItemBytes int

	encodeMu sync.Mutex
}

// EncoderConfig tunes the encoder.
type EncoderConfig struct {
	BatchSize    int
	MaxItemBytes int
}

// NewEncoder wraps an embedder.
func NewEncoder(embedder Embedder, cfg EncoderConfig) *Encoder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxItemBytes <= 0 {
		cfg.MaxItemBytes = DefaultMaxItemBytes
	}
	return &Encoder{
		embedder:     embedder,
		batchSize:    cfg.BatchSize,
		maxItemBytes: cfg.MaxItemBytes,
	}
}

// Dimensions returns the fixed vector length.
func (e *Encoder) Dimensions() int { return e.embedder.Dimensions() }

// EncodeDocuments encodes summary texts for storage. Vectors are
// returned in input order, all unit length.
func (e *Encoder) EncodeDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	prepared := make([]string, len(texts))
	for i, t := range texts {
		prepared[i] = DocumentPrefix + truncateAtWhitespace(t, e.maxItemBytes)
	}
	return e.encodeAll(ctx, prepared)
}

// EncodeQuery encodes one query through the parallel query path.
func (e *Encoder) EncodeQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.encodeAll(ctx, []string{QueryPrefix + truncateAtWhitespace(text, e.maxItemBytes)})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// encodeAll runs batches through the single serialized embedder and
// normalizes every output at the boundary.
func (e *Encoder) encodeAll(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	dims := e.embedder.Dimensions()

	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		e.encodeMu.Lock()
		vectors, err := e.embedder.EmbedBatch(ctx, texts[start:end])
		e.encodeMu.Unlock()
		if err != nil {
			return nil, err
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("embedder returned %d vectors for %d inputs", len(vectors), end-start)
		}

		for i, v := range vectors {
			if len(v) != dims {
				return nil, errors.New(errors.ErrCodeDimensionMismatch,
					fmt.Sprintf("vector %d has %d dims, want %d", start+i, len(v), dims), nil)
			}
			v = Normalize(v)
			if n := norm(v); math.Abs(n-1) > 1e-3 {
				return nil, errors.New(errors.ErrCodeNonUnitEmbedding,
					fmt.Sprintf("vector %d norm %.6f after normalization", start+i, n), nil)
			}
			out = append(out, v)
		}
	}

	return out, nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// truncateAtWhitespace clips text beyond maxBytes at the last
// whitespace before the cap.
func truncateAtWhitespace(text string, maxBytes int) string {
	if len(text) <= maxBytes {
		return text
	}
	clipped := text[:maxBytes]
	if idx := strings.LastIndexAny(clipped, " \t\n"); idx > 0 {
		clipped = clipped[:idx]
	}
	return clipped
}

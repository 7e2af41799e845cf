// Package embed transforms summary text into unit vectors. Every
// vector leaving this package is explicitly L2-normalized regardless of
// what the backing model returns, which makes backend substitution safe.
package embed

import (
	"context"
	"math"
)

const (
	// DocumentPrefix is prepended to every stored-document input.
	DocumentPrefix = "search_document: "

	// QueryPrefix is prepended to every query-side input.
	QueryPrefix = "search_query: "

	// DefaultBatchSize is the encode batch size.
	DefaultBatchSize = 128

	// DefaultMaxItemBytes truncates any single input beyond this, at a
	// whitespace boundary.
	DefaultMaxItemBytes = 6 * 1024

	// DefaultDimensions is the fixed vector dimensionality.
	DefaultDimensions = 768
)

// Embedder is the raw embedding backend, in-process or HTTP.
type Embedder interface {
	// EmbedBatch encodes texts in order; one vector per input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the backend's vector length.
	Dimensions() int

	// ModelName identifies the model.
	ModelName() string

	// Close releases resources.
	Close() error
}

// Normalize scales a vector to unit length in place and returns it.
// Zero vectors are returned unchanged.
func Normalize(v []float32) []float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	for i, x := range v {
		v[i] = float32(float64(x) / magnitude)
	}
	return v
}

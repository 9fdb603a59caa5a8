package embeddings

import (
	"context"
	"hash/fnv"
	"math"
)

// StaticProvider produces deterministic embeddings derived from the input
// text. It needs no network or API key, which makes it useful for local
// development and tests: identical texts always map to identical vectors.
type StaticProvider struct {
	dimension int
}

// NewStaticProvider creates a static provider with the given dimension.
// A zero dimension falls back to the default.
func NewStaticProvider(dimension int) *StaticProvider {
	if dimension <= 0 {
		dimension = defaultDimension
	}
	return &StaticProvider{dimension: dimension}
}

// EmbedDocuments generates embeddings for multiple texts.
func (p *StaticProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = p.vector(text)
	}
	return out, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *StaticProvider) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	return p.vector(text), nil
}

// vector derives a normalized pseudo-random vector from the text hash.
func (p *StaticProvider) vector(text string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, p.dimension)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		// Spread components over [-1, 1) so unrelated texts are dissimilar.
		vec[i] = float32(int64(seed>>32))/float32(math.MaxInt32) - 1
		norm += float64(vec[i]) * float64(vec[i])
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// Dimension returns the embedding dimension.
func (p *StaticProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op.
func (p *StaticProvider) Close() error {
	return nil
}

// Ensure StaticProvider implements Provider.
var _ Provider = (*StaticProvider)(nil)

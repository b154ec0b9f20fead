// Package embedtest provides a deterministic embed.Provider for tests.
package embedtest

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/abdul-hamid-achik/vecstash/internal/embed"
)

// FakeProvider derives vectors from text. Vectors set in Vectors take
// precedence so tests can place texts at known points.
type FakeProvider struct {
	mu      sync.Mutex
	Dims    int
	Vectors map[string][]float32
	// Err, when set, is returned wrapped in a ProviderError
	Err error

	EmbedCalls int
	BatchCalls int
}

// New creates a FakeProvider producing dims-dimensional vectors.
func New(dims int) *FakeProvider {
	return &FakeProvider{Dims: dims, Vectors: map[string][]float32{}}
}

func (f *FakeProvider) vector(text string) []float32 {
	if v, ok := f.Vectors[text]; ok {
		return append([]float32(nil), v...)
	}
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()
	vec := make([]float32, f.Dims)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(seed>>40) / float32(1<<24)
	}
	return vec
}

func (f *FakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.EmbedCalls++
	if f.Err != nil {
		return nil, embed.NewProviderError("fake", "embed", f.Err)
	}
	if text == "" {
		return nil, embed.ErrEmptyText
	}
	return f.vector(text), nil
}

func (f *FakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BatchCalls++
	if f.Err != nil {
		return nil, embed.NewProviderError("fake", "embedBatch", f.Err)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f *FakeProvider) Model() string   { return "fake-embedding" }
func (f *FakeProvider) Dimensions() int { return f.Dims }

func (f *FakeProvider) Ping(ctx context.Context) error {
	if f.Err != nil {
		return embed.NewProviderError("fake", "ping", f.Err)
	}
	return nil
}

// Calls returns the total number of embedding requests.
func (f *FakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.EmbedCalls + f.BatchCalls
}

package embedding

import (
	"context"
	"math"
)

// MockBackend is a deterministic backend for tests: the vector is derived
// from the text hash, so the same text always embeds identically.
type MockBackend struct {
	dimensions int
}

// NewMockBackend returns a mock backend with the given dimensions.
func NewMockBackend(dimensions int) *MockBackend {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockBackend{dimensions: dimensions}
}

// Name returns the model name.
func (b *MockBackend) Name() string { return ModelMock }

// Embed returns a deterministic unit vector derived from the text hash.
func (b *MockBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	h := HashString(text)
	vec := make([]float32, b.dimensions)
	for i := 0; i < b.dimensions; i++ {
		vec[i] = float32(math.Sin(float64(h*(i+1)))*0.1 + 0.01)
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}
	if sum > 0 {
		norm := 1.0 / math.Sqrt(sum)
		for i := range vec {
			vec[i] *= float32(norm)
		}
	}
	return vec, nil
}

// Dimensions returns the embedding dimension.
func (b *MockBackend) Dimensions() int { return b.dimensions }

// Close is a no-op.
func (b *MockBackend) Close() error { return nil }

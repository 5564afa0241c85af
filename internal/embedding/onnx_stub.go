//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"fmt"
)

// LocalBackend stub when built without CGO (see onnx.go for the real one).
type LocalBackend struct{}

// NewLocalBackend returns ErrModelUnavailable when built without CGO.
func NewLocalBackend(_ string, _, _ int) (*LocalBackend, error) {
	return nil, fmt.Errorf("%w: sentence-transformers requires CGO_ENABLED=1 and onnxruntime", ErrModelUnavailable)
}

// Name returns the registry name for this backend.
func (b *LocalBackend) Name() string { return ModelSentenceTransformers }

// Embed always fails on the stub.
func (b *LocalBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("%w: built without CGO", ErrModelUnavailable)
}

// Dimensions returns zero on the stub.
func (b *LocalBackend) Dimensions() int { return 0 }

// Close is a no-op.
func (b *LocalBackend) Close() error { return nil }

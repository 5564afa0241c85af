// Package embedding generates document embeddings through named backends
// with a content-hash cache in front.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrModelUnavailable is returned when a requested model name has no
// registered or configured backend.
var ErrModelUnavailable = errors.New("embedding model unavailable")

// Known backend names.
const (
	ModelOpenAI               = "openai"
	ModelGoogle               = "google"
	ModelSentenceTransformers = "sentence-transformers"
	ModelMock                 = "mock"
)

// Backend produces vector embeddings for text.
type Backend interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Close() error
}

// Registry holds the configured backends by model name.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register adds a backend under its name, replacing any previous one.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.Name()] = b
}

// Get returns the backend for model, or ErrModelUnavailable.
func (r *Registry) Get(model string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[model]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrModelUnavailable, model)
	}
	return b, nil
}

// Models returns the registered model names, sorted.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes all registered backends, returning the first error.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, b := range r.backends {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.backends = make(map[string]Backend)
	return firstErr
}

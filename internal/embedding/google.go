package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GoogleBackend embeds text through the Gemini embedding API.
type GoogleBackend struct {
	client     *genai.Client
	model      string
	dimensions int32
}

// NewGoogleBackend creates the backend. model defaults to
// gemini-embedding-001 when empty; dimensions defaults to 768.
func NewGoogleBackend(ctx context.Context, apiKey, model string, dimensions int) (*GoogleBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: google API key not configured", ErrModelUnavailable)
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	if dimensions <= 0 {
		dimensions = 768
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GoogleBackend{client: client, model: model, dimensions: int32(dimensions)}, nil
}

// Name returns the registry name for this backend.
func (b *GoogleBackend) Name() string { return ModelGoogle }

// Embed returns the embedding for text.
func (b *GoogleBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	dims := b.dimensions
	result, err := b.client.Models.EmbedContent(ctx, b.model, genai.Text(text), &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
		TaskType:             "RETRIEVAL_DOCUMENT",
	})
	if err != nil {
		return nil, fmt.Errorf("google embeddings: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("google embeddings: empty response")
	}
	return result.Embeddings[0].Values, nil
}

// Dimensions returns the embedding dimension.
func (b *GoogleBackend) Dimensions() int { return int(b.dimensions) }

// Close is a no-op; the genai client holds no resources needing release.
func (b *GoogleBackend) Close() error { return nil }

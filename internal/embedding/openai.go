package embedding

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// openaiDimensions maps OpenAI embedding models to their vector sizes.
var openaiDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIBackend embeds text through the OpenAI embeddings API.
type OpenAIBackend struct {
	client     openai.Client
	model      string
	dimensions int
}

// NewOpenAIBackend creates the backend. model defaults to
// text-embedding-3-small when empty.
func NewOpenAIBackend(apiKey, model string) (*OpenAIBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: openai API key not configured", ErrModelUnavailable)
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	dims, ok := openaiDimensions[model]
	if !ok {
		dims = 1536
	}
	return &OpenAIBackend{
		client:     openai.NewClient(option.WithAPIKey(apiKey)),
		model:      model,
		dimensions: dims,
	}, nil
}

// Name returns the registry name for this backend.
func (b *OpenAIBackend) Name() string { return ModelOpenAI }

// Embed returns the embedding for text.
func (b *OpenAIBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := b.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(b.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings: empty response")
	}
	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Dimensions returns the embedding dimension.
func (b *OpenAIBackend) Dimensions() int { return b.dimensions }

// Close is a no-op; the client holds no persistent connection.
func (b *OpenAIBackend) Close() error { return nil }

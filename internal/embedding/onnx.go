//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/yomitori/pkg/utils"
)

// LocalBackend runs a sentence-transformers ONNX model in-process. Requires
// CGO and the onnxruntime shared library.
type LocalBackend struct {
	session    *ort.AdvancedSession
	dimensions int
	maxTokens  int
	tokenizer  Tokenizer
	// Tensors are pre-allocated once; Run() reuses them under the lock.
	inputIDsTensor      *ort.Tensor[int64]
	attentionMaskTensor *ort.Tensor[int64]
	tokenTypeIDsTensor  *ort.Tensor[int64]
	outputTensor        *ort.Tensor[float32]
	mu                  sync.Mutex
}

// NewLocalBackend creates the ONNX backend for the model at modelPath.
func NewLocalBackend(modelPath string, dimensions, maxTokens int) (*LocalBackend, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("initialize ONNX runtime: %w", err)
	}

	tokenizer := &SimpleTokenizer{}
	inputIDs, attentionMask, tokenTypeIDs := tokenizer.Tokenize("", maxTokens)

	inputIDsTensor, err := ort.NewTensor(ort.NewShape(1, int64(maxTokens)), inputIDs)
	if err != nil {
		return nil, fmt.Errorf("create input_ids tensor: %w", err)
	}
	attentionMaskTensor, err := ort.NewTensor(ort.NewShape(1, int64(maxTokens)), attentionMask)
	if err != nil {
		inputIDsTensor.Destroy()
		return nil, fmt.Errorf("create attention_mask tensor: %w", err)
	}
	tokenTypeIDsTensor, err := ort.NewTensor(ort.NewShape(1, int64(maxTokens)), tokenTypeIDs)
	if err != nil {
		inputIDsTensor.Destroy()
		attentionMaskTensor.Destroy()
		return nil, fmt.Errorf("create token_type_ids tensor: %w", err)
	}
	outputData := make([]float32, dimensions)
	outputTensor, err := ort.NewTensor(ort.NewShape(1, int64(dimensions)), outputData)
	if err != nil {
		inputIDsTensor.Destroy()
		attentionMaskTensor.Destroy()
		tokenTypeIDsTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"output"},
		[]ort.ArbitraryTensor{inputIDsTensor, attentionMaskTensor, tokenTypeIDsTensor},
		[]ort.ArbitraryTensor{outputTensor},
		nil,
	)
	if err != nil {
		inputIDsTensor.Destroy()
		attentionMaskTensor.Destroy()
		tokenTypeIDsTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create ONNX session: %w", err)
	}

	return &LocalBackend{
		session:             session,
		dimensions:          dimensions,
		maxTokens:           maxTokens,
		tokenizer:           tokenizer,
		inputIDsTensor:      inputIDsTensor,
		attentionMaskTensor: attentionMaskTensor,
		tokenTypeIDsTensor:  tokenTypeIDsTensor,
		outputTensor:        outputTensor,
	}, nil
}

// Name returns the registry name for this backend.
func (b *LocalBackend) Name() string { return ModelSentenceTransformers }

// Embed runs inference for text and returns the L2-normalized vector.
func (b *LocalBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	inputIDs, attentionMask, tokenTypeIDs := b.tokenizer.Tokenize(text, b.maxTokens)
	copy(b.inputIDsTensor.GetData(), inputIDs)
	copy(b.attentionMaskTensor.GetData(), attentionMask)
	copy(b.tokenTypeIDsTensor.GetData(), tokenTypeIDs)

	if err := b.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	outputData := b.outputTensor.GetData()
	vec := make([]float32, b.dimensions)
	copy(vec, outputData[:b.dimensions])
	utils.NormalizeL2(vec)
	return vec, nil
}

// Dimensions returns the embedding dimension.
func (b *LocalBackend) Dimensions() int { return b.dimensions }

// Close destroys the session and tensors.
func (b *LocalBackend) Close() error {
	var err error
	if b.session != nil {
		err = b.session.Destroy()
		b.session = nil
	}
	if b.inputIDsTensor != nil {
		_ = b.inputIDsTensor.Destroy()
		b.inputIDsTensor = nil
	}
	if b.attentionMaskTensor != nil {
		_ = b.attentionMaskTensor.Destroy()
		b.attentionMaskTensor = nil
	}
	if b.tokenTypeIDsTensor != nil {
		_ = b.tokenTypeIDsTensor.Destroy()
		b.tokenTypeIDsTensor = nil
	}
	if b.outputTensor != nil {
		_ = b.outputTensor.Destroy()
		b.outputTensor = nil
	}
	return err
}

package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// MockEmbedder is a deterministic ai.Embedder for unit tests. Each text
// maps to a fixed vector via Vectors; unknown texts fall back to
// Default, or fail if Default is nil.
//
// Err forces every call to fail; Delay blocks before responding so
// timeout paths can be exercised.
type MockEmbedder struct {
	Vectors map[string][]float32
	Default []float32
	Err     error
	Delay   time.Duration

	// Calls counts Embed invocations, for asserting that cheap paths
	// never reach the embedder.
	Calls int
}

func (m *MockEmbedder) Name() string { return "mock-embedder" }

func (m *MockEmbedder) Register(_ api.Registry) {}

func (m *MockEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	embeddings := make([]*ai.Embedding, len(req.Input))
	for i, doc := range req.Input {
		text := ""
		if len(doc.Content) > 0 {
			text = doc.Content[0].Text
		}
		vec, ok := m.Vectors[text]
		if !ok {
			if m.Default == nil {
				return nil, fmt.Errorf("no mock vector for %q", text)
			}
			vec = m.Default
		}
		embeddings[i] = &ai.Embedding{Embedding: vec}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

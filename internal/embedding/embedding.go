// Package embedding bridges the external embedding service (a Genkit
// ai.Embedder) to the rest of the pipeline and provides the vector math
// shared by the resolver and the miner.
//
// The embedding dimensionality is fixed at 384 throughout the system; a
// mismatch is a configuration fault, not a runtime case to recover from.
package embedding

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"google.golang.org/genai"
)

// Dimension is the fixed embedding dimensionality assumed by the
// pgvector schema and all in-process vector math.
const Dimension int32 = 384

// Text embeds a single text and returns its vector.
//
// Gemini embedding models output larger vectors by default; the output is
// truncated to Dimension via OutputDimensionality (Matryoshka
// representation), matching the vector(384) columns.
func Text(ctx context.Context, embedder ai.Embedder, text string) ([]float32, error) {
	dim := Dimension
	resp, err := embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return resp.Embeddings[0].Embedding, nil
}

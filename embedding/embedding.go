// Package embedding turns text into fixed-length vectors and compares them.
//
// The coordination layer treats embedding generation as an external
// collaborator: Embedder is the narrow contract, and two implementations are
// provided. Hash is deterministic and local; OpenAI calls any service that
// speaks the OpenAI embeddings API.
package embedding

import (
	"context"
	"math"
)

// Embedder produces the embedding of a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Func adapts a function to the Embedder interface.
type Func func(ctx context.Context, text string) ([]float64, error)

func (f Func) Embed(ctx context.Context, text string) ([]float64, error) {
	return f(ctx, text)
}

// Cosine returns dot(a,b) / (|a| * |b|). A zero-magnitude vector on either
// side yields 0. Vectors of different length are compared over their common
// prefix.
func Cosine(a, b []float64) float64 {
	n := min(len(a), len(b))

	var dot, normA, normB float64
	for i := range n {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

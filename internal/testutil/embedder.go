package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// BagEmbedder is a deterministic ai.Embedder for tests. It hashes whitespace
// separated tokens into dimension buckets and L2-normalizes the result, so
// texts with the same token multiset embed to the same unit vector while
// unrelated texts land far apart. No network, no model weights.
type BagEmbedder struct {
	Dim int
}

// NewBagEmbedder returns a BagEmbedder producing vectors of the given
// dimension.
func NewBagEmbedder(dim int) *BagEmbedder {
	return &BagEmbedder{Dim: dim}
}

func (e *BagEmbedder) Name() string {
	return "testutil/bag-embedder"
}

func (e *BagEmbedder) Register(_ api.Registry) {
	// No-op for testing
}

func (e *BagEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	embeddings := make([]*ai.Embedding, len(req.Input))
	for i, doc := range req.Input {
		var text strings.Builder
		for _, part := range doc.Content {
			text.WriteString(part.Text)
		}
		embeddings[i] = &ai.Embedding{Embedding: e.vector(text.String())}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

func (e *BagEmbedder) vector(text string) []float32 {
	vec := make([]float32, e.Dim)
	for _, token := range strings.Fields(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vec[int(h.Sum32())%e.Dim]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// Empty text embeds to a fixed unit vector rather than the zero
		// vector, which has no defined direction.
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

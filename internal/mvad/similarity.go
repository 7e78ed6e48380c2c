package mvad

import (
	"fmt"
	"math"
)

// similarityEps bounds the norm product from below, as torch's
// cosine_similarity does.
const similarityEps = 1e-8

// cosineSimilarity returns a·b / max(|a||b|, eps).
func cosineSimilarity(a, b Embedding) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	return dot / math.Max(math.Sqrt(na)*math.Sqrt(nb), similarityEps)
}

// checkDims verifies all embeddings share one dimension.
func checkDims(embs []Embedding) error {
	if len(embs) == 0 {
		return nil
	}
	dim := len(embs[0])
	for i, e := range embs {
		if len(e) != dim {
			return fmt.Errorf("%w: embedding %d has dimension %d, want %d", ErrMisaligned, i, len(e), dim)
		}
	}
	return nil
}

// ones returns an all-ones embedding of dimension n.
func ones(n int) Embedding {
	e := make(Embedding, n)
	for i := range e {
		e[i] = 1
	}
	return e
}

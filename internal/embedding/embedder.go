package embedding

import (
	"fmt"
	"math"
	"strings"

	"vidrag/internal/domain"
)

// Preparer is implemented by embedders that must see the corpus before they
// can embed (e.g. TF-IDF).
type Preparer interface {
	Prepare(corpus []string) error
}

// Normalize prepares text for embedding: newlines become spaces and the
// result is trimmed.
func Normalize(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
}

// Check rejects empty or non-finite vectors and, when dim > 0, vectors of
// the wrong length.
func Check(vec []float32, dim int) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector", domain.ErrEmbedding)
	}
	if dim > 0 && len(vec) != dim {
		return fmt.Errorf("%w: got %d dimensions, want %d", domain.ErrEmbedding, len(vec), dim)
	}
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite component", domain.ErrEmbedding)
		}
	}
	return nil
}

package domain

import "context"

// Embedder converts free text into a fixed-length numeric vector.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index is the vector similarity store that holds every indexed chunk.
// Fetch omits ids it does not know; callers treat absence like NullID.
type Index interface {
	Upsert(ctx context.Context, records []Record) error
	Query(ctx context.Context, vector []float32, topK int) ([]Hit, error)
	Fetch(ctx context.Context, ids []string) (map[string]Record, error)
}

// Chunker splits a video transcript into linked chunks.
type Chunker interface {
	Chunk(video Video) (Chunks, error)
}

// Completer is the black-box text completion service that answers with the
// retrieved context.
type Completer interface {
	Name() string
	Complete(ctx context.Context, messages []Message) (string, error)
}

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmbedding is returned when an embedding call fails or yields a
	// malformed vector.
	ErrEmbedding = errors.New("embedding failed")
	// ErrRetrievalUnavailable is returned when the embedder or the index
	// cannot serve a retrieval.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	// ErrMalformedChunkReference marks a neighbour id that has no record.
	ErrMalformedChunkReference = errors.New("malformed chunk reference")
)

// Pipeline stages reported by StageError.
const (
	StageEmbed    = "embed"
	StageQuery    = "query"
	StageFetch    = "fetch"
	StageUpsert   = "upsert"
	StageChunk    = "chunk"
	StageComplete = "complete"
)

// StageError tags a failure with the pipeline stage it came from.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// Stage returns the stage recorded in err, or "" if err carries none.
func Stage(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

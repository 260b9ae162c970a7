package domain

import "fmt"

// Chunks is the ordered chunk sequence of one video. The projections below
// are aligned by index for bulk loading into an Index.
type Chunks []Chunk

// Transcripts returns the text of every chunk.
func (cs Chunks) Transcripts() []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Transcript
	}
	return out
}

// IDs returns the id of every chunk.
func (cs Chunks) IDs() []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

// Metadatas returns the stored metadata of every chunk, transcript included.
func (cs Chunks) Metadatas(video Video) []Metadata {
	out := make([]Metadata, len(cs))
	for i, c := range cs {
		out[i] = Metadata{
			VideoID:    video.ID,
			Timestamp:  c.Timestamp,
			Title:      video.Title,
			Created:    video.Created,
			Prev:       encodeRef(c.Prev),
			Next:       encodeRef(c.Next),
			Transcript: c.Transcript,
		}
	}
	return out
}

// Relink rewrites Prev and Next so that each chunk points at its neighbours
// in cs. Used after chunks have been dropped from a sequence.
func (cs Chunks) Relink() {
	for i := range cs {
		cs[i].Prev, cs[i].Next = "", ""
		if i > 0 {
			cs[i].Prev = cs[i-1].ID
		}
		if i+1 < len(cs) {
			cs[i].Next = cs[i+1].ID
		}
	}
}

// Records zips chunks with their vectors.
func (cs Chunks) Records(video Video, vectors [][]float32) ([]Record, error) {
	if len(vectors) != len(cs) {
		return nil, fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(cs), len(vectors))
	}
	metas := cs.Metadatas(video)
	out := make([]Record, len(cs))
	for i, c := range cs {
		out[i] = Record{ID: c.ID, Vector: vectors[i], Metadata: metas[i]}
	}
	return out, nil
}

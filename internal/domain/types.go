package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// NullID marks "no such chunk" wherever a stored neighbour reference is
// required. It can never be produced by ChunkID.
const NullID = "\x00"

// DefaultWindow is the chunk duration in seconds.
const DefaultWindow = 30

// ChunkID derives the content-addressed id of the chunk starting at
// timestamp inside the given video.
func ChunkID(videoID string, timestamp int) string {
	sum := sha256.Sum256([]byte(videoID + strconv.Itoa(timestamp)))
	return hex.EncodeToString(sum[:])
}

// IsNull reports whether id refers to no chunk.
func IsNull(id string) bool { return id == "" || id == NullID }

// Line is one time-coded line of a transcript.
type Line struct {
	Start    float64 `json:"start" yaml:"start"`
	Duration float64 `json:"duration,omitempty" yaml:"duration,omitempty"`
	Text     string  `json:"text" yaml:"text"`
}

// Video is a source video with its transcript.
type Video struct {
	ID      string
	Title   string
	Created string
	Window  int
	Lines   []Line
}

// Chunk is a fixed-duration slice of a video transcript. Prev and Next are
// empty when the chunk is first or last in its video.
type Chunk struct {
	ID         string `json:"id"`
	Transcript string `json:"transcript"`
	Timestamp  int    `json:"timestamp"`
	Prev       string `json:"prev,omitempty"`
	Next       string `json:"next,omitempty"`
}

// Metadata is stored next to each vector in the index. Prev and Next hold
// NullID when there is no neighbour.
type Metadata struct {
	VideoID    string `json:"video_id"`
	Timestamp  int    `json:"timestamp"`
	Title      string `json:"title"`
	Created    string `json:"created"`
	Prev       string `json:"prev"`
	Next       string `json:"next"`
	Transcript string `json:"transcript"`
}

// PrevID returns the previous chunk id, if any.
func (m Metadata) PrevID() (string, bool) { return m.Prev, !IsNull(m.Prev) }

// NextID returns the next chunk id, if any.
func (m Metadata) NextID() (string, bool) { return m.Next, !IsNull(m.Next) }

// Record is one indexed chunk.
type Record struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// Hit is a similarity match returned by Index.Query.
type Hit struct {
	ID       string
	Score    float32
	Metadata Metadata
}

// ContextGroup is a retrieved chunk together with its temporal neighbours.
// A nil neighbour means the center is first or last in its video.
type ContextGroup struct {
	Prev   *Metadata
	Center Metadata
	Next   *Metadata
}

// Slots returns the group as [prev, center, next].
func (g ContextGroup) Slots() []*Metadata {
	center := g.Center
	return []*Metadata{g.Prev, &center, g.Next}
}

// Citation maps an ordinal used in generated text to a source URL.
type Citation struct {
	Ordinal int    `json:"ordinal"`
	URL     string `json:"url"`
}

// Message is one turn of a conversation handed to a Completer.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// encodeRef converts an optional chunk id into its stored form.
func encodeRef(id string) string {
	if id == "" {
		return NullID
	}
	return id
}

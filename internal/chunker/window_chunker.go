package chunker

import (
	"errors"
	"sort"
	"strings"

	"vidrag/internal/domain"
)

// WindowChunker splits a transcript into fixed-duration windows and links
// consecutive windows of the same video.
type WindowChunker struct {
	window       int
	boundaryOnly bool
}

// Option configures a WindowChunker.
type Option func(*WindowChunker)

// WithWindow sets the default window in seconds. Videos may override it.
func WithWindow(seconds int) Option {
	return func(c *WindowChunker) {
		if seconds > 0 {
			c.window = seconds
		}
	}
}

// WithBoundaryOnly makes the chunker emit chunks only when a line crosses a
// window boundary. The trailing buffer is then dropped unless the video has
// produced no chunk at all.
func WithBoundaryOnly() Option {
	return func(c *WindowChunker) { c.boundaryOnly = true }
}

func NewWindowChunker(opts ...Option) *WindowChunker {
	c := &WindowChunker{window: domain.DefaultWindow}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chunk walks the video's lines in start order and returns its linked chunks.
func (c *WindowChunker) Chunk(video domain.Video) (domain.Chunks, error) {
	if strings.TrimSpace(video.ID) == "" {
		return nil, errors.New("video id is required")
	}
	window := float64(c.window)
	if video.Window > 0 {
		window = float64(video.Window)
	}
	lines := make([]domain.Line, len(video.Lines))
	copy(lines, video.Lines)
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Start < lines[j].Start })

	b := builder{videoID: video.ID}
	end := window
	for _, line := range lines {
		if line.Start >= end {
			b.flush()
			end = line.Start + window
		}
		b.add(line)
	}

	switch {
	case len(b.chunks) == 0 && end > window:
		// All lines start past the first window; keep their real start.
		b.flush()
	case len(b.chunks) == 0:
		// Shorter than one window, or no lines at all.
		b.solo()
	case !c.boundaryOnly:
		b.flush()
	}
	return b.chunks, nil
}

// builder accumulates buffered lines and links chunks as they are closed.
type builder struct {
	videoID string
	chunks  domain.Chunks
	texts   []string
	first   float64
}

func (b *builder) add(line domain.Line) {
	if len(b.texts) == 0 {
		b.first = line.Start
	}
	b.texts = append(b.texts, line.Text)
}

func (b *builder) flush() {
	if len(b.texts) == 0 {
		return
	}
	b.push(int(b.first))
}

func (b *builder) solo() {
	b.push(0)
}

func (b *builder) push(timestamp int) {
	chunk := domain.Chunk{
		ID:         domain.ChunkID(b.videoID, timestamp),
		Transcript: strings.Join(b.texts, " "),
		Timestamp:  timestamp,
	}
	if n := len(b.chunks); n > 0 {
		chunk.Prev = b.chunks[n-1].ID
		b.chunks[n-1].Next = chunk.ID
	}
	b.chunks = append(b.chunks, chunk)
	b.texts = b.texts[:0]
}

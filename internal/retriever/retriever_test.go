package retriever

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"vidrag/internal/chunker"
	"vidrag/internal/domain"
	"vidrag/internal/logger"
	"vidrag/internal/vectorstore/memory"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f fakeEmbedder) Name() string   { return "fake" }
func (f fakeEmbedder) Dimension() int { return len(f.vec) }
func (f fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return f.vec, f.err
}

// stubIndex returns canned hits and serves Fetch from a map.
type stubIndex struct {
	mu       sync.Mutex
	hits     []domain.Hit
	records  map[string]domain.Record
	queryErr error
	fetchErr error
	fetched  [][]string
}

func (s *stubIndex) Upsert(context.Context, []domain.Record) error { return nil }

func (s *stubIndex) Query(context.Context, []float32, int) ([]domain.Hit, error) {
	return s.hits, s.queryErr
}

func (s *stubIndex) Fetch(_ context.Context, ids []string) (map[string]domain.Record, error) {
	s.mu.Lock()
	s.fetched = append(s.fetched, ids)
	s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	out := make(map[string]domain.Record)
	for _, id := range ids {
		if r, ok := s.records[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func meta(ts int, prev, next, text string) domain.Metadata {
	return domain.Metadata{VideoID: "vid", Timestamp: ts, Prev: prev, Next: next, Transcript: text}
}

// indexVideo chunks a video into a memory store, embedding every chunk with
// the same vector except the one at hot, which gets the query vector.
func indexVideo(t *testing.T, video domain.Video, hot int) *memory.Storage {
	t.Helper()
	chunks, err := chunker.NewWindowChunker().Chunk(video)
	require.NoError(t, err)
	vectors := make([][]float32, len(chunks))
	for i := range chunks {
		vectors[i] = []float32{0, 1}
		if i == hot {
			vectors[i] = []float32{1, 0}
		}
	}
	records, err := chunks.Records(video, vectors)
	require.NoError(t, err)
	store := memory.NewStorage()
	require.NoError(t, store.Init(context.Background(), 2))
	require.NoError(t, store.Upsert(context.Background(), records))
	return store
}

func TestQuery_FirstChunkHasNullPrev(t *testing.T) {
	video := domain.Video{ID: "vid", Lines: []domain.Line{
		{Start: 0, Text: "intro"},
		{Start: 31, Text: "middle"},
		{Start: 62, Text: "outro"},
	}}
	store := indexVideo(t, video, 0)
	r := New(fakeEmbedder{vec: []float32{1, 0}}, store)

	groups, err := r.Query(context.Background(), "what is the intro", 1)
	require.NoError(t, err)
	require.Len(t, groups, 1)

	g := groups[0]
	assert.Nil(t, g.Prev)
	assert.Equal(t, "intro", g.Center.Transcript)
	require.NotNil(t, g.Next)
	assert.Equal(t, "middle", g.Next.Transcript)
	assert.Equal(t, 31, g.Next.Timestamp)
}

func TestQuery_MiddleChunkHasBothNeighbours(t *testing.T) {
	video := domain.Video{ID: "vid", Lines: []domain.Line{
		{Start: 0, Text: "a"},
		{Start: 30, Text: "b"},
		{Start: 60, Text: "c"},
	}}
	store := indexVideo(t, video, 1)
	groups, err := New(fakeEmbedder{vec: []float32{1, 0}}, store).Query(context.Background(), "b?", 1)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	slots := groups[0].Slots()
	require.NotNil(t, slots[0])
	require.NotNil(t, slots[2])
	assert.Equal(t, []string{"a", "b", "c"}, []string{slots[0].Transcript, slots[1].Transcript, slots[2].Transcript})
}

func TestQuery_KeepsRankingOrder(t *testing.T) {
	idx := &stubIndex{records: map[string]domain.Record{}}
	for i, text := range []string{"best", "second", "third", "fourth"} {
		id := domain.ChunkID("vid", i*30)
		m := meta(i*30, domain.NullID, domain.NullID, text)
		idx.hits = append(idx.hits, domain.Hit{ID: id, Metadata: m})
		idx.records[id] = domain.Record{ID: id, Metadata: m}
	}
	groups, err := New(fakeEmbedder{vec: []float32{1}}, idx, WithConcurrency(3)).Query(context.Background(), "q", 4)
	require.NoError(t, err)
	require.Len(t, groups, 4)
	for i, want := range []string{"best", "second", "third", "fourth"} {
		assert.Equal(t, want, groups[i].Center.Transcript)
	}
}

func TestQuery_FetchSkipsNullIDs(t *testing.T) {
	idx := &stubIndex{
		hits:    []domain.Hit{{ID: "c", Metadata: meta(0, domain.NullID, "n", "center")}},
		records: map[string]domain.Record{"c": {ID: "c", Metadata: meta(0, domain.NullID, "n", "center")}, "n": {ID: "n", Metadata: meta(30, "c", domain.NullID, "next")}},
	}
	_, err := New(fakeEmbedder{vec: []float32{1}}, idx).Query(context.Background(), "q", 1)
	require.NoError(t, err)
	require.Len(t, idx.fetched, 1)
	assert.Equal(t, []string{"c", "n"}, idx.fetched[0])
}

func TestQuery_DanglingReferenceDegrades(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger.Set(zap.New(core))
	defer logger.Set(zap.NewNop())

	center := meta(30, "gone", "n", "center")
	idx := &stubIndex{
		hits: []domain.Hit{{ID: "c", Metadata: center}},
		records: map[string]domain.Record{
			"c": {ID: "c", Metadata: center},
			"n": {ID: "n", Metadata: meta(60, "c", domain.NullID, "next")},
		},
	}
	groups, err := New(fakeEmbedder{vec: []float32{1}}, idx).Query(context.Background(), "q", 1)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Nil(t, groups[0].Prev)
	require.NotNil(t, groups[0].Next)
	assert.Equal(t, "next", groups[0].Next.Transcript)

	entries := logs.FilterMessage("dangling neighbour reference").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "gone", entries[0].ContextMap()["id"])
}

func TestQuery_MissingCenterFallsBackToHit(t *testing.T) {
	idx := &stubIndex{
		hits:    []domain.Hit{{ID: "c", Metadata: meta(0, domain.NullID, domain.NullID, "from hit")}},
		records: map[string]domain.Record{},
	}
	groups, err := New(fakeEmbedder{vec: []float32{1}}, idx).Query(context.Background(), "q", 1)
	require.NoError(t, err)
	assert.Equal(t, "from hit", groups[0].Center.Transcript)
}

func TestQuery_StageErrors(t *testing.T) {
	upstream := errors.New("upstream down")
	hit := []domain.Hit{{ID: "c", Metadata: meta(0, domain.NullID, domain.NullID, "x")}}

	tests := []struct {
		name      string
		embedder  fakeEmbedder
		index     *stubIndex
		stage     string
		embedding bool
	}{
		{"embed", fakeEmbedder{err: domain.ErrEmbedding}, &stubIndex{}, domain.StageEmbed, true},
		{"query", fakeEmbedder{vec: []float32{1}}, &stubIndex{queryErr: upstream}, domain.StageQuery, false},
		{"fetch", fakeEmbedder{vec: []float32{1}}, &stubIndex{hits: hit, fetchErr: upstream}, domain.StageFetch, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups, err := New(tt.embedder, tt.index).Query(context.Background(), "q", 3)
			require.Error(t, err)
			assert.Nil(t, groups)
			assert.Equal(t, tt.stage, domain.Stage(err))
			assert.ErrorIs(t, err, domain.ErrRetrievalUnavailable)
			assert.Equal(t, tt.embedding, errors.Is(err, domain.ErrEmbedding))
			if !tt.embedding {
				assert.ErrorIs(t, err, upstream)
			}
		})
	}
}

func TestQuery_NoHits(t *testing.T) {
	groups, err := New(fakeEmbedder{vec: []float32{1}}, &stubIndex{}).Query(context.Background(), "q", 3)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

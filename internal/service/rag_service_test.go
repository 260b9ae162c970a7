package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidrag/internal/chunker"
	"vidrag/internal/domain"
	"vidrag/internal/embedding/tfidf"
	"vidrag/internal/llm/extractive"
	"vidrag/internal/vectorstore/memory"
)

type recordingCompleter struct {
	mu    sync.Mutex
	reply string
	err   error
	got   []domain.Message
}

func (c *recordingCompleter) Name() string { return "recording" }

func (c *recordingCompleter) Complete(_ context.Context, msgs []domain.Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = msgs
	return c.reply, c.err
}

// failingEmbedder fails for texts containing "poison".
type failingEmbedder struct{}

func (failingEmbedder) Name() string   { return "failing" }
func (failingEmbedder) Dimension() int { return 2 }
func (failingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if strings.Contains(text, "poison") {
		return nil, domain.ErrEmbedding
	}
	return []float32{1, float32(len(text))}, nil
}

func corpus() []domain.Video {
	return []domain.Video{
		{ID: "energy", Title: "Energy policy", Lines: []domain.Line{
			{Start: 0, Text: "Welcome back everyone."},
			{Start: 31, Text: "Nuclear power is the cleanest energy we have."},
			{Start: 62, Text: "Thanks for watching."},
		}},
		{ID: "pets", Title: "Pets", Lines: []domain.Line{
			{Start: 0, Text: "Dogs are loyal companions."},
			{Start: 40, Text: "Cats prefer their independence."},
		}},
	}
}

func newOffline(t *testing.T, completer domain.Completer) (*RAGService, *memory.Storage) {
	t.Helper()
	store := memory.NewStorage()
	svc := NewRAGService(chunker.NewWindowChunker(), tfidf.NewEmbedder(), store, completer, Options{TopK: 1, Workers: 2})
	report, err := svc.IndexVideos(context.Background(), corpus())
	require.NoError(t, err)
	require.NoError(t, report.Err())
	return svc, store
}

func TestIndexVideos_Report(t *testing.T) {
	_, store := newOffline(t, nil)
	assert.Equal(t, 5, store.Len())
}

func TestIndexVideos_RecordsPerVideoFailures(t *testing.T) {
	store := memory.NewStorage()
	svc := NewRAGService(chunker.NewWindowChunker(), failingEmbedder{}, store, nil, Options{})
	videos := []domain.Video{
		{ID: "ok", Lines: []domain.Line{{Start: 0, Text: "fine"}, {Start: 30, Text: "also fine"}}},
		{ID: "bad", Lines: []domain.Line{{Start: 0, Text: "poison"}}},
		{ID: "", Lines: []domain.Line{{Start: 0, Text: "no id"}}},
		{ID: "blank", Lines: []domain.Line{{Start: 0, Text: "   "}}},
	}
	report, err := svc.IndexVideos(context.Background(), videos)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Videos)
	assert.Equal(t, 2, report.Chunks)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Failures, 2)
	assert.Equal(t, domain.StageEmbed, domain.Stage(report.Failures["bad"]))
	assert.ErrorIs(t, report.Failures["bad"], domain.ErrEmbedding)
	assert.Equal(t, domain.StageChunk, domain.Stage(report.Failures[""]))
	assert.Error(t, report.Err())
	assert.Equal(t, 2, store.Len())
}

func TestIndexVideos_BlankChunkKeepsLinksResolvable(t *testing.T) {
	store := memory.NewStorage()
	svc := NewRAGService(chunker.NewWindowChunker(), tfidf.NewEmbedder(), store, nil, Options{})
	video := domain.Video{ID: "talk", Title: "Talk", Lines: []domain.Line{
		{Start: 0, Text: "Nuclear reactors split atoms."},
		{Start: 40, Text: "   "},
		{Start: 80, Text: "Solar panels convert sunlight."},
	}}
	report, err := svc.IndexVideos(context.Background(), []domain.Video{video})
	require.NoError(t, err)
	require.NoError(t, report.Err())
	assert.Equal(t, 2, report.Chunks)
	assert.Equal(t, 1, report.Skipped)

	first, last := domain.ChunkID("talk", 0), domain.ChunkID("talk", 80)
	stored, err := store.Fetch(context.Background(), []string{first, last})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for id, rec := range stored {
		for _, ref := range []string{rec.Metadata.Prev, rec.Metadata.Next} {
			if domain.IsNull(ref) {
				continue
			}
			got, err := store.Fetch(context.Background(), []string{ref})
			require.NoError(t, err)
			assert.Contains(t, got, ref, "chunk %s links to missing %s", id, ref)
		}
	}
	assert.Equal(t, last, stored[first].Metadata.Next)
	assert.Equal(t, first, stored[last].Metadata.Prev)

	groups, err := svc.Search(context.Background(), "nuclear reactors", 1)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.NotNil(t, groups[0].Next)
	assert.Equal(t, 80, groups[0].Next.Timestamp)
	assert.Nil(t, groups[0].Prev)
}

func TestSearch_ExpandsNeighbours(t *testing.T) {
	svc, _ := newOffline(t, nil)
	groups, err := svc.Search(context.Background(), "nuclear power energy", 1)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	g := groups[0]
	assert.Equal(t, "energy", g.Center.VideoID)
	assert.Equal(t, 31, g.Center.Timestamp)
	require.NotNil(t, g.Prev)
	require.NotNil(t, g.Next)
	assert.Equal(t, "Welcome back everyone.", g.Prev.Transcript)
	assert.Equal(t, "Thanks for watching.", g.Next.Transcript)

	_, err = svc.Search(context.Background(), "  ", 1)
	assert.Error(t, err)
}

func TestAsk_OfflinePipeline(t *testing.T) {
	svc, _ := newOffline(t, extractive.NewCompleter(1))
	answer, err := svc.Ask(context.Background(), "What about nuclear energy?", nil)
	require.NoError(t, err)

	assert.Contains(t, answer.Text, "**(1)**")
	assert.Equal(t, []domain.Citation{{Ordinal: 1, URL: "https://www.youtube.com/watch?v=energy&t=31"}}, answer.Citations)
	assert.True(t, strings.HasPrefix(answer.Context, "(1): Welcome back everyone.\n"))
	assert.Len(t, answer.Groups, 1)
}

func TestAsk_OnlyReferencedCitations(t *testing.T) {
	completer := &recordingCompleter{reply: "Loyal friends (2)."}
	store := memory.NewStorage()
	svc := NewRAGService(chunker.NewWindowChunker(), tfidf.NewEmbedder(), store, completer, Options{
		TopK:            3,
		CitationBaseURL: "https://example.test/watch",
		Persona:         Persona{Name: "Sam", Who: "a student", Language: "French", Length: 50},
	})
	_, err := svc.IndexVideos(context.Background(), corpus())
	require.NoError(t, err)

	history := []domain.Message{{Role: domain.RoleUser, Content: "hello"}, {Role: domain.RoleAssistant, Content: "hi"}}
	answer, err := svc.Ask(context.Background(), "dogs companions", history)
	require.NoError(t, err)
	require.Len(t, answer.Groups, 3)
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, 2, answer.Citations[0].Ordinal)
	assert.True(t, strings.HasPrefix(answer.Citations[0].URL, "https://example.test/watch?v="))

	msgs := completer.got
	require.Len(t, msgs, 5)
	assert.Equal(t, domain.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "Pretend you are Sam.")
	assert.Contains(t, msgs[0].Content, `"a student"`)
	assert.Contains(t, msgs[0].Content, "Respond to me in French.")
	assert.Contains(t, msgs[0].Content, "Limit your response to 50 words.")
	assert.Equal(t, history, msgs[1:3])
	assert.Equal(t, "Quotes:\n"+answer.Context, msgs[3].Content)
	assert.Equal(t, domain.Message{Role: domain.RoleUser, Content: "dogs companions"}, msgs[4])
}

func TestAsk_CompleterFailureIsStageTagged(t *testing.T) {
	upstream := errors.New("rate limited")
	svc, _ := newOffline(t, &recordingCompleter{err: upstream})
	_, err := svc.Ask(context.Background(), "nuclear", nil)
	require.Error(t, err)
	assert.Equal(t, domain.StageComplete, domain.Stage(err))
	assert.ErrorIs(t, err, upstream)
}

func TestAsk_RequiresCompleter(t *testing.T) {
	svc, _ := newOffline(t, nil)
	_, err := svc.Ask(context.Background(), "nuclear", nil)
	assert.Error(t, err)
}

func TestPersona_Defaults(t *testing.T) {
	prompt := Persona{}.SystemPrompt()
	assert.Contains(t, prompt, "Limit your response to 100 words.")
	assert.Contains(t, prompt, "Respond to me in English.")
	assert.NotContains(t, prompt, "User Profile")
}

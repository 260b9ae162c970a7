package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"vidrag/internal/citation"
	"vidrag/internal/domain"
	"vidrag/internal/embedding"
	"vidrag/internal/logger"
	"vidrag/internal/retriever"
	"vidrag/internal/vectorstore"
)

// Store is the index the service writes to. Init is called once, with the
// dimension of the first embedded chunk, before the first upsert.
type Store interface {
	domain.Index
	Init(ctx context.Context, dimension int) error
}

type Options struct {
	TopK            int
	Concurrency     int
	Workers         int
	CitationBaseURL string
	Persona         Persona
}

// Answer is a generated reply with the citations it actually references.
type Answer struct {
	Text      string
	Citations []domain.Citation
	Context   string
	Groups    []domain.ContextGroup
}

// IndexReport summarises a batch indexing run.
type IndexReport struct {
	Videos   int
	Chunks   int
	Skipped  int
	Failures map[string]error
}

// Err joins the per-video failures, or returns nil.
func (r IndexReport) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for id, err := range r.Failures {
		errs = append(errs, fmt.Errorf("video %s: %w", id, err))
	}
	return errors.Join(errs...)
}

type RAGService struct {
	chunker   domain.Chunker
	embedder  domain.Embedder
	store     Store
	retriever *retriever.Retriever
	completer domain.Completer
	opts      Options

	initMu      sync.Mutex
	initialized bool
}

// NewRAGService wires the pipeline. completer may be nil for retrieval-only use.
func NewRAGService(chunker domain.Chunker, embedder domain.Embedder, store Store, completer domain.Completer, opts Options) *RAGService {
	if opts.TopK <= 0 {
		opts.TopK = vectorstore.DefaultTopK
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &RAGService{
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		retriever: retriever.New(embedder, store, retriever.WithConcurrency(opts.Concurrency)),
		completer: completer,
		opts:      opts,
	}
}

type job struct {
	video  domain.Video
	chunks domain.Chunks
}

// IndexVideos chunks, embeds and upserts every video. Videos are processed in
// parallel; a failing video is recorded in the report and does not stop the
// others.
func (s *RAGService) IndexVideos(ctx context.Context, videos []domain.Video) (IndexReport, error) {
	report := IndexReport{Failures: make(map[string]error)}
	jobs := make([]job, 0, len(videos))
	var corpus []string
	for _, v := range videos {
		chunks, err := s.chunker.Chunk(v)
		if err != nil {
			report.Failures[v.ID] = &domain.StageError{Stage: domain.StageChunk, Err: err}
			continue
		}
		jobs = append(jobs, job{video: v, chunks: chunks})
		for _, t := range chunks.Transcripts() {
			if strings.TrimSpace(t) != "" {
				corpus = append(corpus, t)
			}
		}
	}
	if p, ok := s.embedder.(embedding.Preparer); ok && len(corpus) > 0 {
		if err := p.Prepare(corpus); err != nil {
			return report, &domain.StageError{Stage: domain.StageEmbed, Err: err}
		}
	}

	pool, err := ants.NewPool(s.opts.Workers, ants.WithPanicHandler(func(p any) {
		logger.Errorw("indexing worker panic recovered", "panic", p)
	}))
	if err != nil {
		return report, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	record := func(id string, indexed, skipped int, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.Failures[id] = err
			return
		}
		report.Videos++
		report.Chunks += indexed
		report.Skipped += skipped
	}
	for _, j := range jobs {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			indexed, skipped, err := s.indexVideo(ctx, j)
			if err != nil {
				logger.Warnw("video indexing failed", "video", j.video.ID, "stage", domain.Stage(err), "error", err)
			} else {
				logger.Infow("video indexed", "video", j.video.ID, "chunks", indexed, "skipped", skipped)
			}
			record(j.video.ID, indexed, skipped, err)
		})
		if err != nil {
			wg.Done()
			record(j.video.ID, 0, 0, fmt.Errorf("submit: %w", err))
		}
	}
	wg.Wait()
	return report, ctx.Err()
}

// indexVideo embeds the chunks of one video in transcript order and upserts
// them in one batch. Blank chunks are skipped and their neighbours linked to
// each other instead.
func (s *RAGService) indexVideo(ctx context.Context, j job) (int, int, error) {
	kept := make(domain.Chunks, 0, len(j.chunks))
	vectors := make([][]float32, 0, len(j.chunks))
	skipped := 0
	for _, c := range j.chunks {
		if strings.TrimSpace(c.Transcript) == "" {
			skipped++
			continue
		}
		vec, err := s.embedder.Embed(ctx, c.Transcript)
		if err != nil {
			return 0, 0, &domain.StageError{Stage: domain.StageEmbed, Err: err}
		}
		kept = append(kept, c)
		vectors = append(vectors, vec)
	}
	if len(kept) == 0 {
		return 0, skipped, nil
	}
	if skipped > 0 {
		kept.Relink()
	}
	records, err := kept.Records(j.video, vectors)
	if err != nil {
		return 0, 0, &domain.StageError{Stage: domain.StageUpsert, Err: err}
	}
	if err := s.ensureInit(ctx, len(vectors[0])); err != nil {
		return 0, 0, &domain.StageError{Stage: domain.StageUpsert, Err: err}
	}
	if err := s.store.Upsert(ctx, records); err != nil {
		return 0, 0, &domain.StageError{Stage: domain.StageUpsert, Err: err}
	}
	return len(records), skipped, nil
}

func (s *RAGService) ensureInit(ctx context.Context, dimension int) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.initialized {
		return nil
	}
	if err := s.store.Init(ctx, dimension); err != nil {
		return err
	}
	s.initialized = true
	return nil
}

// Search returns the top k context groups for question without generating.
func (s *RAGService) Search(ctx context.Context, question string, k int) ([]domain.ContextGroup, error) {
	if strings.TrimSpace(question) == "" {
		return nil, errors.New("empty question")
	}
	if k <= 0 {
		k = s.opts.TopK
	}
	return s.retriever.Query(ctx, question, k)
}

// Ask retrieves context for question, generates an answer with the
// completer and keeps only the citations the answer references.
func (s *RAGService) Ask(ctx context.Context, question string, history []domain.Message) (Answer, error) {
	if s.completer == nil {
		return Answer{}, errors.New("no completer configured")
	}
	groups, err := s.Search(ctx, question, s.opts.TopK)
	if err != nil {
		return Answer{}, err
	}
	contextText := citation.FormatContext(groups)
	all := citation.DeriveCitations(groups, s.opts.CitationBaseURL)

	msgs := BuildMessages(s.opts.Persona, history, contextText, question)
	text, err := s.completer.Complete(ctx, msgs)
	if err != nil {
		return Answer{}, &domain.StageError{Stage: domain.StageComplete, Err: err}
	}
	answer := Answer{
		Text:      text,
		Citations: citation.Resolve(text, all),
		Context:   contextText,
		Groups:    groups,
	}
	logger.Debugw("answered", "groups", len(groups), "cited", len(answer.Citations), "completer", s.completer.Name())
	return answer, nil
}

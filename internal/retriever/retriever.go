// Package retriever expands similarity hits into context groups: each hit
// is returned together with the chunks immediately before and after it.
package retriever

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"vidrag/internal/domain"
	"vidrag/internal/logger"
	"vidrag/internal/vectorstore"
)

// DefaultConcurrency bounds neighbour fetches per query.
const DefaultConcurrency = 4

type Retriever struct {
	embedder    domain.Embedder
	index       domain.Index
	concurrency int
}

type Option func(*Retriever)

// WithConcurrency sets how many neighbour fetches run at once.
func WithConcurrency(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func New(embedder domain.Embedder, index domain.Index, opts ...Option) *Retriever {
	r := &Retriever{embedder: embedder, index: index, concurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Query returns up to k context groups for text, best match first.
func (r *Retriever) Query(ctx context.Context, text string, k int) ([]domain.ContextGroup, error) {
	if k <= 0 {
		k = vectorstore.DefaultTopK
	}
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, &domain.StageError{Stage: domain.StageEmbed, Err: fmt.Errorf("%w: %w", domain.ErrRetrievalUnavailable, err)}
	}
	hits, err := r.index.Query(ctx, vec, k)
	if err != nil {
		return nil, &domain.StageError{Stage: domain.StageQuery, Err: fmt.Errorf("%w: %w", domain.ErrRetrievalUnavailable, err)}
	}
	logger.Debugw("index query", "k", k, "hits", len(hits))

	groups := make([]domain.ContextGroup, len(hits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, hit := range hits {
		g.Go(func() error {
			group, err := r.expand(gctx, hit)
			if err != nil {
				return err
			}
			groups[i] = group
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &domain.StageError{Stage: domain.StageFetch, Err: fmt.Errorf("%w: %w", domain.ErrRetrievalUnavailable, err)}
	}
	return groups, nil
}

// expand fetches [prev, center, next] for one hit.
func (r *Retriever) expand(ctx context.Context, hit domain.Hit) (domain.ContextGroup, error) {
	prevID, hasPrev := hit.Metadata.PrevID()
	nextID, hasNext := hit.Metadata.NextID()

	ids := make([]string, 0, 3)
	if hasPrev {
		ids = append(ids, prevID)
	}
	ids = append(ids, hit.ID)
	if hasNext {
		ids = append(ids, nextID)
	}

	found, err := r.index.Fetch(ctx, ids)
	if err != nil {
		return domain.ContextGroup{}, err
	}

	group := domain.ContextGroup{Center: hit.Metadata}
	if rec, ok := found[hit.ID]; ok {
		group.Center = rec.Metadata
	} else {
		logger.Warnw("center chunk missing from fetch, using query metadata",
			"error", domain.ErrMalformedChunkReference, "id", hit.ID)
	}
	if hasPrev {
		group.Prev = lookup(found, prevID, hit.ID, "prev")
	}
	if hasNext {
		group.Next = lookup(found, nextID, hit.ID, "next")
	}
	return group, nil
}

func lookup(found map[string]domain.Record, id, center, slot string) *domain.Metadata {
	rec, ok := found[id]
	if !ok {
		logger.Warnw("dangling neighbour reference",
			"error", domain.ErrMalformedChunkReference, "id", id, "center", center, "slot", slot)
		return nil
	}
	meta := rec.Metadata
	return &meta
}

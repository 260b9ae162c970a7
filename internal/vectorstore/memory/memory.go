package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"vidrag/internal/domain"
	"vidrag/internal/vectorstore"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
// Records live in a map keyed by chunk id; order remembers first insertion so
// ranking ties are deterministic.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	records   map[string]domain.Record
	order     []string
}

func NewStorage() *Storage {
	return &Storage{records: make(map[string]domain.Record)}
}

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.records = make(map[string]domain.Record)
	s.order = nil
	return nil
}

func (s *Storage) Upsert(_ context.Context, records []domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if r.ID == "" {
			return errors.New("record without id")
		}
		if s.dimension > 0 && len(r.Vector) != s.dimension {
			return fmt.Errorf("vector dimension mismatch: got %d, want %d", len(r.Vector), s.dimension)
		}
	}
	for _, r := range records {
		if _, ok := s.records[r.ID]; !ok {
			s.order = append(s.order, r.ID)
		}
		s.records[r.ID] = r
	}
	return nil
}

func (s *Storage) Query(_ context.Context, vector []float32, topK int) ([]domain.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		topK = vectorstore.DefaultTopK
	}
	scores := make([]float32, len(s.order))
	for i, id := range s.order {
		scores[i] = vectorstore.Cosine(s.records[id].Vector, vector)
	}
	idxs := vectorstore.TopK(scores, topK)
	hits := make([]domain.Hit, 0, len(idxs))
	for _, j := range idxs {
		r := s.records[s.order[j]]
		hits = append(hits, domain.Hit{ID: r.ID, Score: scores[j], Metadata: r.Metadata})
	}
	return hits, nil
}

func (s *Storage) Fetch(_ context.Context, ids []string) (map[string]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.Record, len(ids))
	for _, id := range ids {
		if r, ok := s.records[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

// Len returns the number of stored records.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *Storage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]domain.Record)
	s.order = nil
	return nil
}

func (s *Storage) Close() error { return nil }

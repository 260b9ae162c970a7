// Package bolt is a single-file persistent vector store on bbolt. Search is a
// brute-force cosine scan, which suits a local index of a few thousand chunks.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.etcd.io/bbolt"

	"vidrag/internal/domain"
	"vidrag/internal/vectorstore"
)

var (
	bucketRecords = []byte("records")
	bucketOrder   = []byte("order")
	bucketMeta    = []byte("meta")
	keyDimension  = []byte("dimension")
)

type Storage struct {
	db *bbolt.DB
}

type Config struct {
	Path    string
	Timeout time.Duration
}

// Open opens or creates the store at cfg.Path.
func Open(cfg Config) (*Storage, error) {
	if cfg.Path == "" {
		return nil, errors.New("bolt: empty path")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	db, err := bbolt.Open(cfg.Path, 0600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", cfg.Path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketRecords, bucketOrder, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Storage{db: db}, nil
}

// Init records the vector dimension. Reopening with a different dimension
// is an error until the store is cleared.
func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if raw := b.Get(keyDimension); raw != nil {
			existing, err := strconv.Atoi(string(raw))
			if err != nil {
				return err
			}
			if k, _ := tx.Bucket(bucketRecords).Cursor().First(); existing != dimension && k != nil {
				return fmt.Errorf("bolt: store holds %d-dimensional vectors, embedder produces %d", existing, dimension)
			}
		}
		return b.Put(keyDimension, []byte(strconv.Itoa(dimension)))
	})
}

func (s *Storage) dimension(tx *bbolt.Tx) int {
	n, _ := strconv.Atoi(string(tx.Bucket(bucketMeta).Get(keyDimension)))
	return n
}

type stored struct {
	Vector   []float32       `json:"vector"`
	Metadata domain.Metadata `json:"metadata"`
}

func (s *Storage) Upsert(_ context.Context, records []domain.Record) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		dim := s.dimension(tx)
		recs := tx.Bucket(bucketRecords)
		order := tx.Bucket(bucketOrder)
		for _, r := range records {
			if r.ID == "" {
				return errors.New("record without id")
			}
			if dim > 0 && len(r.Vector) != dim {
				return fmt.Errorf("vector dimension mismatch: got %d, want %d", len(r.Vector), dim)
			}
			data, err := json.Marshal(stored{Vector: r.Vector, Metadata: r.Metadata})
			if err != nil {
				return err
			}
			if recs.Get([]byte(r.ID)) == nil {
				seq, err := order.NextSequence()
				if err != nil {
					return err
				}
				if err := order.Put(seqKey(seq), []byte(r.ID)); err != nil {
					return err
				}
			}
			if err := recs.Put([]byte(r.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Storage) Query(_ context.Context, vector []float32, topK int) ([]domain.Hit, error) {
	if topK <= 0 {
		topK = vectorstore.DefaultTopK
	}
	var (
		hits   []domain.Hit
		scores []float32
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		recs := tx.Bucket(bucketRecords)
		// insertion order keeps ties deterministic
		return tx.Bucket(bucketOrder).ForEach(func(_, id []byte) error {
			var st stored
			if err := json.Unmarshal(recs.Get(id), &st); err != nil {
				return fmt.Errorf("bolt: decode %s: %w", id, err)
			}
			score := vectorstore.Cosine(st.Vector, vector)
			hits = append(hits, domain.Hit{ID: string(id), Score: score, Metadata: st.Metadata})
			scores = append(scores, score)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	idxs := vectorstore.TopK(scores, topK)
	out := make([]domain.Hit, len(idxs))
	for i, j := range idxs {
		out[i] = hits[j]
	}
	return out, nil
}

func (s *Storage) Fetch(_ context.Context, ids []string) (map[string]domain.Record, error) {
	out := make(map[string]domain.Record, len(ids))
	err := s.db.View(func(tx *bbolt.Tx) error {
		recs := tx.Bucket(bucketRecords)
		for _, id := range ids {
			data := recs.Get([]byte(id))
			if data == nil {
				continue
			}
			var st stored
			if err := json.Unmarshal(data, &st); err != nil {
				return fmt.Errorf("bolt: decode %s: %w", id, err)
			}
			out[id] = domain.Record{ID: id, Vector: st.Vector, Metadata: st.Metadata}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Len returns the number of stored records.
func (s *Storage) Len() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketRecords).Stats().KeyN
		return nil
	})
	return n, err
}

func (s *Storage) Clear(_ context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketRecords, bucketOrder, bucketMeta} {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

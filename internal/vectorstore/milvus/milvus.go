package milvus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"vidrag/internal/domain"
	"vidrag/internal/vectorstore"
)

const (
	fieldID         = "id"
	fieldEmbedding  = "embedding"
	fieldVideoID    = "video_id"
	fieldTimestamp  = "timestamp"
	fieldTitle      = "title"
	fieldCreated    = "created"
	fieldPrev       = "prev"
	fieldNext       = "next"
	fieldTranscript = "transcript"
)

var outputFields = []string{fieldID, fieldVideoID, fieldTimestamp, fieldTitle, fieldCreated, fieldPrev, fieldNext, fieldTranscript}

type Config struct {
	Address    string
	Username   string
	Password   string
	Database   string
	Collection string
	Timeout    time.Duration
}

// Storage keeps chunks in a Milvus collection keyed by chunk id.
type Storage struct {
	client     *milvusclient.Client
	collection string
	dimension  int
	loaded     atomic.Bool
}

// New connects to Milvus.
func New(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.Collection == "" {
		return nil, errors.New("milvus: empty collection name")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}
	return &Storage{client: c, collection: cfg.Collection}, nil
}

// Init creates the collection and its index when missing, then loads it.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.dimension = dimension

	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(s.collection))
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !exists {
		if err := s.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(s.collection, schema(s.collection, dimension))); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		idx := index.NewIvfFlatIndex(entity.COSINE, 128)
		task, err := s.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(s.collection, fieldEmbedding, idx))
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
		if err := task.Await(ctx); err != nil {
			return fmt.Errorf("failed to wait for index creation: %w", err)
		}
	}

	s.loaded.Store(false)
	return s.load(ctx)
}

// load makes the collection searchable. Query-only processes never call
// Init, so search and fetch load on first use.
func (s *Storage) load(ctx context.Context) error {
	if s.loaded.Load() {
		return nil
	}
	loadTask, err := s.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(s.collection))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for collection loading: %w", err)
	}
	s.loaded.Store(true)
	return nil
}

func schema(name string, dimension int) *entity.Schema {
	varchar := func(name string, max int64) *entity.Field {
		return entity.NewField().WithName(name).WithDataType(entity.FieldTypeVarChar).WithMaxLength(max)
	}
	return entity.NewSchema().
		WithName(name).
		WithDescription("video transcript chunks").
		WithField(varchar(fieldID, 64).WithIsPrimaryKey(true)).
		WithField(entity.NewField().WithName(fieldEmbedding).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(dimension))).
		WithField(varchar(fieldVideoID, 64)).
		WithField(entity.NewField().WithName(fieldTimestamp).WithDataType(entity.FieldTypeInt64)).
		WithField(varchar(fieldTitle, 1024)).
		WithField(varchar(fieldCreated, 64)).
		WithField(varchar(fieldPrev, 64)).
		WithField(varchar(fieldNext, 64)).
		WithField(varchar(fieldTranscript, 65535))
}

func (s *Storage) Upsert(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	cols, err := columns(records, s.dimension)
	if err != nil {
		return err
	}
	if _, err := s.client.Upsert(ctx, milvusclient.NewColumnBasedInsertOption(s.collection, cols...)); err != nil {
		return fmt.Errorf("failed to upsert into milvus: %w", err)
	}
	// Flush so neighbours are fetchable right after indexing.
	task, err := s.client.Flush(ctx, milvusclient.NewFlushOption(s.collection))
	if err != nil {
		return fmt.Errorf("failed to flush collection: %w", err)
	}
	if err := task.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for flush: %w", err)
	}
	return nil
}

func (s *Storage) Query(ctx context.Context, vector []float32, topK int) ([]domain.Hit, error) {
	if topK <= 0 {
		topK = vectorstore.DefaultTopK
	}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	results, err := s.client.Search(ctx, milvusclient.NewSearchOption(
		s.collection,
		topK,
		[]entity.Vector{entity.FloatVector(vector)},
	).WithANNSField(fieldEmbedding).
		WithSearchParam("nprobe", "16").
		WithOutputFields(outputFields...))
	if err != nil {
		return nil, fmt.Errorf("failed to search milvus: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	rows, err := parseRows(results[0].Fields, results[0].ResultCount)
	if err != nil {
		return nil, err
	}
	hits := make([]domain.Hit, len(rows))
	for i, r := range rows {
		hits[i] = domain.Hit{ID: r.ID, Score: results[0].Scores[i], Metadata: r.Metadata}
	}
	return hits, nil
}

func (s *Storage) Fetch(ctx context.Context, ids []string) (map[string]domain.Record, error) {
	out := make(map[string]domain.Record, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	rs, err := s.client.Query(ctx, milvusclient.NewQueryOption(s.collection).
		WithFilter(idFilter(ids)).
		WithOutputFields(outputFields...))
	if err != nil {
		return nil, fmt.Errorf("failed to query milvus: %w", err)
	}
	rows, err := parseRows(rs.Fields, rs.ResultCount)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.ID] = r
	}
	return out, nil
}

// Clear drops the collection and recreates it with the current dimension.
func (s *Storage) Clear(ctx context.Context) error {
	if err := s.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(s.collection)); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	s.loaded.Store(false)
	if s.dimension == 0 {
		return nil
	}
	return s.Init(ctx, s.dimension)
}

func (s *Storage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Close(ctx)
}

func columns(records []domain.Record, dimension int) ([]column.Column, error) {
	n := len(records)
	var (
		ids         = make([]string, n)
		vectors     = make([][]float32, n)
		videoIDs    = make([]string, n)
		timestamps  = make([]int64, n)
		titles      = make([]string, n)
		created     = make([]string, n)
		prevs       = make([]string, n)
		nexts       = make([]string, n)
		transcripts = make([]string, n)
	)
	if dimension == 0 {
		dimension = len(records[0].Vector)
	}
	for i, r := range records {
		if len(r.Vector) != dimension {
			return nil, fmt.Errorf("vector dimension mismatch: got %d, want %d", len(r.Vector), dimension)
		}
		m := r.Metadata
		ids[i] = r.ID
		vectors[i] = r.Vector
		videoIDs[i] = m.VideoID
		timestamps[i] = int64(m.Timestamp)
		titles[i] = m.Title
		created[i] = m.Created
		prevs[i] = storeRef(m.Prev)
		nexts[i] = storeRef(m.Next)
		transcripts[i] = m.Transcript
	}
	return []column.Column{
		column.NewColumnVarChar(fieldID, ids),
		column.NewColumnFloatVector(fieldEmbedding, dimension, vectors),
		column.NewColumnVarChar(fieldVideoID, videoIDs),
		column.NewColumnInt64(fieldTimestamp, timestamps),
		column.NewColumnVarChar(fieldTitle, titles),
		column.NewColumnVarChar(fieldCreated, created),
		column.NewColumnVarChar(fieldPrev, prevs),
		column.NewColumnVarChar(fieldNext, nexts),
		column.NewColumnVarChar(fieldTranscript, transcripts),
	}, nil
}

func parseRows(fields []column.Column, n int) ([]domain.Record, error) {
	rows := make([]domain.Record, n)
	for _, field := range fields {
		switch col := field.(type) {
		case *column.ColumnVarChar:
			data := col.Data()
			if len(data) < n {
				return nil, fmt.Errorf("milvus: column %s has %d rows, want %d", col.Name(), len(data), n)
			}
			for i := 0; i < n; i++ {
				m := &rows[i].Metadata
				switch col.Name() {
				case fieldID:
					rows[i].ID = data[i]
				case fieldVideoID:
					m.VideoID = data[i]
				case fieldTitle:
					m.Title = data[i]
				case fieldCreated:
					m.Created = data[i]
				case fieldPrev:
					m.Prev = loadRef(data[i])
				case fieldNext:
					m.Next = loadRef(data[i])
				case fieldTranscript:
					m.Transcript = data[i]
				}
			}
		case *column.ColumnInt64:
			data := col.Data()
			if col.Name() != fieldTimestamp {
				continue
			}
			if len(data) < n {
				return nil, fmt.Errorf("milvus: column %s has %d rows, want %d", col.Name(), len(data), n)
			}
			for i := 0; i < n; i++ {
				rows[i].Metadata.Timestamp = int(data[i])
			}
		}
	}
	return rows, nil
}

// Milvus VarChar fields hold no NUL bytes; a missing neighbour is stored
// as the empty string.
func storeRef(id string) string {
	if domain.IsNull(id) {
		return ""
	}
	return id
}

func loadRef(v string) string {
	if v == "" {
		return domain.NullID
	}
	return v
}

func idFilter(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = strconv.Quote(id)
	}
	return fieldID + " in [" + strings.Join(quoted, ", ") + "]"
}

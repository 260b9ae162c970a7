package vectorstore

import (
	"context"

	"vidrag/internal/domain"
)

// Storage persists vectors with their chunk metadata and supports similarity
// search and lookup by chunk id.
type Storage interface {
	domain.Index
	Init(ctx context.Context, dimension int) error
	Clear(ctx context.Context) error
	Close() error
}

// DefaultTopK is used when a query asks for k <= 0.
const DefaultTopK = 5

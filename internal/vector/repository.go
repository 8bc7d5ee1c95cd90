package vector

import (
	"context"
	"errors"
)

// PayloadContent is the payload key holding a document's text.
const PayloadContent = "content"

// Document is a piece of text with its embedding and payload, ready to upsert.
type Document struct {
	ID      string
	Content string
	Vector  []float32
	Payload map[string]any
}

// SearchResult is a single match from a similarity search or a scan.
// Score is 0 for scanned points.
type SearchResult struct {
	ID      string
	Score   float32
	Content string
	Payload map[string]any
}

// Filter restricts a search or scan to points whose payload fields equal the
// given values. Supported value types are string, bool and int.
type Filter map[string]any

// ErrUnsupportedFilter is returned for filter values of other types.
var ErrUnsupportedFilter = errors.New("vector: unsupported filter value type")

// Repository provides vector storage and similarity search over named
// collections.
type Repository interface {
	// EnsureCollection creates a cosine collection of the given dimension if absent.
	EnsureCollection(ctx context.Context, collection string, dim int) error
	// DeleteCollection drops a collection and its points. Missing collections are ignored.
	DeleteCollection(ctx context.Context, collection string) error
	// Upsert inserts or replaces documents by ID.
	Upsert(ctx context.Context, collection string, docs []Document) error
	// Search finds the limit most similar documents matching filter (nil = all).
	Search(ctx context.Context, collection string, vector []float32, limit int, filter Filter) ([]SearchResult, error)
	// Scroll returns up to limit documents matching filter without ranking.
	Scroll(ctx context.Context, collection string, filter Filter, limit int) ([]SearchResult, error)
	// Count returns the number of points in collection (0 if it does not exist).
	Count(ctx context.Context, collection string) (int, error)
	// Close releases resources.
	Close() error
}

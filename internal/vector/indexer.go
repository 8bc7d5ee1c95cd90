package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Embedder turns texts into vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Indexer embeds documents and upserts them into one collection.
type Indexer struct {
	embedder   Embedder
	repo       Repository
	collection string
}

// NewIndexer creates an Indexer.
func NewIndexer(embedder Embedder, repo Repository, collection string) *Indexer {
	return &Indexer{embedder: embedder, repo: repo, collection: collection}
}

// Index embeds the content of every document that has no vector yet and
// upserts all of them in one batch. Documents without an ID get a fresh
// UUID and a nil payload becomes an empty map. It returns the stored IDs in
// input order.
func (ix *Indexer) Index(ctx context.Context, docs []Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	var pending []int
	var texts []string
	for i := range docs {
		if docs[i].Vector == nil {
			pending = append(pending, i)
			texts = append(texts, docs[i].Content)
		}
	}
	if len(texts) > 0 {
		vectors, err := ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding: %w", err)
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(texts))
		}
		for j, i := range pending {
			docs[i].Vector = vectors[j]
		}
	}

	ids := make([]string, len(docs))
	for i := range docs {
		if docs[i].ID == "" {
			docs[i].ID = uuid.NewString()
		}
		if docs[i].Payload == nil {
			docs[i].Payload = map[string]any{}
		}
		ids[i] = docs[i].ID
	}
	if err := ix.repo.Upsert(ctx, ix.collection, docs); err != nil {
		return nil, fmt.Errorf("upsert %s: %w", ix.collection, err)
	}
	return ids, nil
}

package knowledge

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/efebarandurmaz/medrag/internal/embedding"
	"github.com/efebarandurmaz/medrag/internal/vector"
)

// DefaultCollection holds knowledge documents.
const DefaultCollection = "medical_knowledge"

var idNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("medrag/knowledge"))

// Source supplies the documents to load.
type Source func() ([]Document, error)

// Loader embeds knowledge documents into one collection.
type Loader struct {
	repo       vector.Repository
	embedder   embedding.Provider
	collection string
	source     Source
	logger     *zap.Logger
}

// NewLoader creates a Loader. A nil source uses the embedded dataset.
func NewLoader(repo vector.Repository, embedder embedding.Provider, collection string, source Source, logger *zap.Logger) *Loader {
	if collection == "" {
		collection = DefaultCollection
	}
	if source == nil {
		source = Default
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{repo: repo, embedder: embedder, collection: collection, source: source, logger: logger}
}

// Collection returns the collection name.
func (l *Loader) Collection() string { return l.collection }

// Count returns the number of loaded documents.
func (l *Loader) Count(ctx context.Context) (int, error) {
	return l.repo.Count(ctx, l.collection)
}

// Reload replaces the collection with the current source documents and
// returns how many were added.
func (l *Loader) Reload(ctx context.Context) (int, error) {
	docs, err := l.source()
	if err != nil {
		return 0, err
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	// The previous dataset stays in place when embedding fails.
	vecs, err := l.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding knowledge base: %w", err)
	}
	if len(vecs) != len(docs) {
		return 0, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vecs), len(docs))
	}

	points := make([]vector.Document, len(docs))
	for i, d := range docs {
		points[i] = vector.Document{
			ID:      uuid.NewSHA1(idNamespace, []byte(fmt.Sprintf("%d:%s", i, d.Content))).String(),
			Content: d.Content,
			Vector:  vecs[i],
			Payload: d.Payload(),
		}
	}

	if err := l.repo.DeleteCollection(ctx, l.collection); err != nil {
		return 0, err
	}
	if err := l.repo.EnsureCollection(ctx, l.collection, l.embedder.Dimensions()); err != nil {
		return 0, err
	}
	if _, err := vector.NewIndexer(l.embedder, l.repo, l.collection).Index(ctx, points); err != nil {
		return 0, err
	}
	l.logger.Info("knowledge base loaded", zap.String("collection", l.collection), zap.Int("documents", len(points)))
	return len(points), nil
}

// EnsureLoaded reloads when the collection is empty. It reports the document
// count after the call and whether a load happened.
func (l *Loader) EnsureLoaded(ctx context.Context) (int, bool, error) {
	n, err := l.Count(ctx)
	if err != nil {
		return 0, false, err
	}
	if n > 0 {
		return n, false, nil
	}
	n, err = l.Reload(ctx)
	return n, err == nil, err
}

package history

import (
	"context"
	"fmt"

	"github.com/efebarandurmaz/medrag/internal/embedding"
	"github.com/efebarandurmaz/medrag/internal/observability"
	"github.com/efebarandurmaz/medrag/internal/vector"
)

// DefaultCollection holds patient history records.
const DefaultCollection = "patient_history"

// Store persists and retrieves records in one vector collection.
type Store struct {
	repo       vector.Repository
	embedder   embedding.Provider
	indexer    *vector.Indexer
	collection string
}

// NewStore creates a Store over collection (DefaultCollection when empty).
func NewStore(repo vector.Repository, embedder embedding.Provider, collection string) *Store {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Store{
		repo:       repo,
		embedder:   embedder,
		indexer:    vector.NewIndexer(embedder, repo, collection),
		collection: collection,
	}
}

// Collection returns the collection name.
func (s *Store) Collection() string { return s.collection }

// Save embeds the record digest and upserts the record under its id.
func (s *Store) Save(ctx context.Context, rec Record) error {
	doc := vector.Document{
		ID:      rec.ID,
		Content: rec.Content,
		Payload: rec.Payload(),
	}
	if _, err := s.indexer.Index(ctx, []vector.Document{doc}); err != nil {
		return fmt.Errorf("storing record %s: %w", rec.ID, err)
	}
	return nil
}

// Similar returns the patient's records closest to text, with similarity set.
func (s *Store) Similar(ctx context.Context, patientID, text string, limit int) ([]ScoredItem, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding symptoms: %w", err)
	}
	ctx, span := observability.StartRetrievalSpan(ctx, s.collection, limit)
	defer span.End()
	results, err := s.repo.Search(ctx, s.collection, vec, limit, vector.Filter{KeyPatientID: patientID})
	observability.RecordError(span, err)
	if err != nil {
		return nil, fmt.Errorf("searching history: %w", err)
	}
	observability.RecordRetrievalResult(span, len(results))
	items := make([]ScoredItem, len(results))
	for i, res := range results {
		items[i] = ScoredItem{Record: RecordFromResult(res), Similarity: float64(res.Score)}
	}
	return items, nil
}

// Chronic scans the patient's chronic records. Similarity is 0.
func (s *Store) Chronic(ctx context.Context, patientID string, limit int) ([]ScoredItem, error) {
	ctx, span := observability.StartRetrievalSpan(ctx, s.collection, limit)
	defer span.End()
	results, err := s.repo.Scroll(ctx, s.collection, vector.Filter{
		KeyPatientID: patientID,
		KeyIsChronic: true,
	}, limit)
	observability.RecordError(span, err)
	if err != nil {
		return nil, fmt.Errorf("scanning chronic history: %w", err)
	}
	observability.RecordRetrievalResult(span, len(results))
	items := make([]ScoredItem, len(results))
	for i, res := range results {
		items[i] = ScoredItem{Record: RecordFromResult(res)}
	}
	return items, nil
}

// All returns up to limit of the patient's records in store order.
func (s *Store) All(ctx context.Context, patientID string, limit int) ([]Record, error) {
	results, err := s.repo.Scroll(ctx, s.collection, vector.Filter{KeyPatientID: patientID}, limit)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	out := make([]Record, len(results))
	for i, res := range results {
		out[i] = RecordFromResult(res)
	}
	return out, nil
}

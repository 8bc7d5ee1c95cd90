// Package memory is an in-process vector.Repository using brute-force cosine
// similarity. It backs tests and server-less runs.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/efebarandurmaz/medrag/internal/vector"
)

type point struct {
	doc vector.Document
	seq int
}

type collection struct {
	dim    int
	points map[string]*point
	seq    int
}

// Store implements vector.Repository in memory.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// New creates an empty Store.
func New() *Store {
	return &Store{collections: make(map[string]*collection)}
}

// EnsureCollection creates the collection if absent.
func (s *Store) EnsureCollection(_ context.Context, name string, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		s.collections[name] = &collection{dim: dim, points: make(map[string]*point)}
	}
	return nil
}

// DeleteCollection drops the collection.
func (s *Store) DeleteCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	return nil
}

// Upsert inserts or replaces documents. Missing collections are created with
// the dimension of the first vector.
func (s *Store) Upsert(_ context.Context, name string, docs []vector.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[name]
	if !ok {
		dim := 0
		if len(docs) > 0 {
			dim = len(docs[0].Vector)
		}
		c = &collection{dim: dim, points: make(map[string]*point)}
		s.collections[name] = c
	}
	for _, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("memory: document without id")
		}
		if c.dim > 0 && len(d.Vector) != c.dim {
			return fmt.Errorf("memory: vector dimension %d, collection %q expects %d", len(d.Vector), name, c.dim)
		}
		stored := d
		stored.Vector = append([]float32(nil), d.Vector...)
		stored.Payload = copyPayload(d.Payload)
		if existing, ok := c.points[d.ID]; ok {
			existing.doc = stored
			continue
		}
		c.points[d.ID] = &point{doc: stored, seq: c.seq}
		c.seq++
	}
	return nil
}

// Search ranks matching points by cosine similarity. Equal scores keep
// insertion order.
func (s *Store) Search(_ context.Context, name string, vec []float32, limit int, filter vector.Filter) ([]vector.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[name]
	if !ok || limit <= 0 {
		return []vector.SearchResult{}, nil
	}
	if err := checkFilter(filter); err != nil {
		return nil, err
	}

	matched := c.ordered(filter)
	scores := make(map[string]float32, len(matched))
	for _, p := range matched {
		scores[p.doc.ID] = cosine(vec, p.doc.Vector)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return scores[matched[i].doc.ID] > scores[matched[j].doc.ID]
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]vector.SearchResult, len(matched))
	for i, p := range matched {
		out[i] = toResult(p.doc, scores[p.doc.ID])
	}
	return out, nil
}

// Scroll returns matching points in insertion order.
func (s *Store) Scroll(_ context.Context, name string, filter vector.Filter, limit int) ([]vector.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[name]
	if !ok || limit <= 0 {
		return []vector.SearchResult{}, nil
	}
	if err := checkFilter(filter); err != nil {
		return nil, err
	}

	matched := c.ordered(filter)
	if len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]vector.SearchResult, len(matched))
	for i, p := range matched {
		out[i] = toResult(p.doc, 0)
	}
	return out, nil
}

// Count returns the number of points in the collection.
func (s *Store) Count(_ context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return 0, nil
	}
	return len(c.points), nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (c *collection) ordered(filter vector.Filter) []*point {
	out := make([]*point, 0, len(c.points))
	for _, p := range c.points {
		if filter.Matches(p.doc.Payload) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func checkFilter(f vector.Filter) error {
	for k, v := range f {
		switch v.(type) {
		case string, bool, int:
		default:
			return fmt.Errorf("%w: %s=%T", vector.ErrUnsupportedFilter, k, v)
		}
	}
	return nil
}

func toResult(d vector.Document, score float32) vector.SearchResult {
	return vector.SearchResult{
		ID:      d.ID,
		Score:   score,
		Content: d.Content,
		Payload: copyPayload(d.Payload),
	}
}

func copyPayload(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

var _ vector.Repository = (*Store)(nil)

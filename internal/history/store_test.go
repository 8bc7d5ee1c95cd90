package history

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/efebarandurmaz/medrag/internal/embedding"
	"github.com/efebarandurmaz/medrag/internal/vector"
	"github.com/efebarandurmaz/medrag/internal/vector/memory"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	repo := memory.New()
	if err := repo.EnsureCollection(context.Background(), DefaultCollection, 64); err != nil {
		t.Fatal(err)
	}
	return NewStore(repo, embedding.NewHashEmbedder(64), "")
}

func save(t *testing.T, s *Store, patient string, ex Extraction, date string, id string) Record {
	t.Helper()
	ex.Date = &date
	b := NewBuilder(WithClock(clock), WithIDGenerator(func() string { return id }))
	rec, err := b.Build(patient, &ex, "raw "+id)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	return rec
}

func TestStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	want := save(t, s, "p1", Extraction{Diagnosis: []string{"Asthma"}, Medicines: []string{"Salbutamol"}, IsChronic: true}, "2025-05-20", "r1")

	got, err := s.All(context.Background(), "p1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d", len(got))
	}
	r := got[0]
	if r.ID != want.ID || r.Content != want.Content || r.Date != "2025-05-20" || !r.IsChronic {
		t.Errorf("record = %+v", r)
	}
	if r.DateTS == nil || *r.DateTS != *want.DateTS {
		t.Errorf("date_ts = %v, want %v", r.DateTS, *want.DateTS)
	}
	if len(r.Diagnosis) != 1 || r.Diagnosis[0] != "Asthma" || r.RawText != "raw r1" {
		t.Errorf("record = %+v", r)
	}
}

func TestStoreFiltersByPatient(t *testing.T) {
	s := newTestStore(t)
	save(t, s, "p1", Extraction{Diagnosis: []string{"Asthma"}, IsChronic: true}, "2025-05-20", "r1")
	save(t, s, "p2", Extraction{Diagnosis: []string{"Asthma"}, IsChronic: true}, "2025-05-20", "r2")

	similar, err := s.Similar(context.Background(), "p1", "asthma", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(similar) != 1 || similar[0].PatientID != "p1" {
		t.Errorf("similar = %+v", similar)
	}
	if similar[0].Similarity <= 0 {
		t.Errorf("similarity = %v", similar[0].Similarity)
	}

	chronic, err := s.Chronic(context.Background(), "p2", 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(chronic) != 1 || chronic[0].ID != "r2" || chronic[0].Similarity != 0 {
		t.Errorf("chronic = %+v", chronic)
	}
}

func TestRetrieverEvidence(t *testing.T) {
	s := newTestStore(t)
	save(t, s, "p1", Extraction{Diagnosis: []string{"Asthma"}, Medicines: []string{"Salbutamol"}, IsChronic: true}, "2025-05-22", "asthma")
	save(t, s, "p1", Extraction{Diagnosis: []string{"Fever", "Cough"}, Medicines: []string{"Paracetamol"}}, "2024-11-13", "fever")
	for i := 0; i < 10; i++ {
		save(t, s, "p1", Extraction{Diagnosis: []string{fmt.Sprintf("Sprain %d", i)}}, "2023-01-01", fmt.Sprintf("old%d", i))
	}

	r := NewRetriever(s, NewScorer(180, clock), RetrieverConfig{TopK: 6})
	items, err := r.Evidence(context.Background(), "p1", "fever and cough", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) > 6 {
		t.Fatalf("len = %d exceeds top k", len(items))
	}
	if items[0].ID != "asthma" {
		t.Errorf("chronic fresh record should lead, got %v", ids(items))
	}
	seen := map[string]bool{}
	for _, it := range items {
		if seen[it.ID] {
			t.Errorf("duplicate %s in %v", it.ID, ids(items))
		}
		seen[it.ID] = true
	}
	if !seen["fever"] {
		t.Errorf("matching record missing from %v", ids(items))
	}
}

func TestRetrieverEmptyHistory(t *testing.T) {
	r := NewRetriever(newTestStore(t), NewScorer(180, clock), RetrieverConfig{})
	items, err := r.Evidence(context.Background(), "nobody", "fever", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Errorf("items = %v", ids(items))
	}
}

func TestRetrieverRequiresPatient(t *testing.T) {
	r := NewRetriever(newTestStore(t), NewScorer(180, clock), RetrieverConfig{})
	var ie *InputError
	if _, err := r.Evidence(context.Background(), "", "fever", 3); !errors.As(err, &ie) {
		t.Errorf("err = %v", err)
	}
}

type failingRepo struct {
	vector.Repository
	err error
}

func (f failingRepo) Search(context.Context, string, []float32, int, vector.Filter) ([]vector.SearchResult, error) {
	return nil, f.err
}

func TestRetrieverSurfacesStoreErrors(t *testing.T) {
	boom := errors.New("qdrant down")
	s := NewStore(failingRepo{err: boom}, embedding.NewHashEmbedder(8), "")
	r := NewRetriever(s, NewScorer(180, clock), RetrieverConfig{})
	if _, err := r.Evidence(context.Background(), "p1", "fever", 3); !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
}

func TestRecordKey(t *testing.T) {
	withID := Record{ID: "abc", Content: "x"}
	if withID.Key() != "abc" {
		t.Errorf("key = %q", withID.Key())
	}
	a := Record{PatientID: "p1", Content: "x"}
	b := Record{PatientID: "p1", Content: "x"}
	c := Record{PatientID: "p1", Content: "y"}
	if a.Key() != b.Key() || a.Key() == c.Key() {
		t.Error("digest keys should follow content")
	}
}

func TestRecordFromResultFallsBackToPointID(t *testing.T) {
	r := RecordFromResult(vector.SearchResult{ID: "pt-1", Content: "c", Payload: map[string]any{
		KeyPatientID: "p1",
		KeyIsChronic: "true",
		KeyDateTS:    int64(1700000000),
		KeyDiagnosis: []any{"Asthma"},
	}})
	if r.ID != "pt-1" || !r.IsChronic || r.DateTS == nil || *r.DateTS != 1700000000 {
		t.Errorf("record = %+v", r)
	}
	if len(r.Diagnosis) != 1 || r.Medicines == nil {
		t.Errorf("lists = %#v %#v", r.Diagnosis, r.Medicines)
	}
}

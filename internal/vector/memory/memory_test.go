package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/efebarandurmaz/medrag/internal/vector"
)

func seed(t *testing.T) *Store {
	t.Helper()
	s := New()
	ctx := context.Background()
	if err := s.EnsureCollection(ctx, "h", 2); err != nil {
		t.Fatal(err)
	}
	docs := []vector.Document{
		{ID: "a", Content: "alpha", Vector: []float32{1, 0}, Payload: map[string]any{"patient_id": "p1", "is_chronic": true}},
		{ID: "b", Content: "beta", Vector: []float32{0, 1}, Payload: map[string]any{"patient_id": "p1", "is_chronic": false}},
		{ID: "c", Content: "gamma", Vector: []float32{1, 1}, Payload: map[string]any{"patient_id": "p2", "is_chronic": true}},
	}
	if err := s.Upsert(ctx, "h", docs); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSearchRanksByCosine(t *testing.T) {
	s := seed(t)
	res, err := s.Search(context.Background(), "h", []float32{1, 0}, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 3 {
		t.Fatalf("len = %d", len(res))
	}
	if res[0].ID != "a" || res[1].ID != "c" || res[2].ID != "b" {
		t.Errorf("order = %s %s %s", res[0].ID, res[1].ID, res[2].ID)
	}
	if res[0].Score < 0.999 {
		t.Errorf("score = %f", res[0].Score)
	}
	if res[0].Content != "alpha" {
		t.Errorf("content = %q", res[0].Content)
	}
}

func TestSearchFilterAndLimit(t *testing.T) {
	s := seed(t)
	res, err := s.Search(context.Background(), "h", []float32{1, 0}, 1, vector.Filter{"patient_id": "p1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].ID != "a" {
		t.Fatalf("res = %+v", res)
	}
}

func TestSearchTiesKeepInsertionOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.Upsert(ctx, "k", []vector.Document{
		{ID: "x", Vector: []float32{1, 0}},
		{ID: "y", Vector: []float32{1, 0}},
		{ID: "z", Vector: []float32{1, 0}},
	})
	for i := 0; i < 5; i++ {
		res, _ := s.Search(ctx, "k", []float32{1, 0}, 3, nil)
		if res[0].ID != "x" || res[1].ID != "y" || res[2].ID != "z" {
			t.Fatalf("unstable order: %v", res)
		}
	}
}

func TestScrollReturnsZeroScores(t *testing.T) {
	s := seed(t)
	res, err := s.Scroll(context.Background(), "h", vector.Filter{"patient_id": "p1", "is_chronic": true}, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].ID != "a" || res[0].Score != 0 {
		t.Fatalf("res = %+v", res)
	}
}

func TestUpsertReplacesByID(t *testing.T) {
	s := seed(t)
	ctx := context.Background()
	if err := s.Upsert(ctx, "h", []vector.Document{{ID: "a", Content: "alpha2", Vector: []float32{1, 0}}}); err != nil {
		t.Fatal(err)
	}
	n, _ := s.Count(ctx, "h")
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
	res, _ := s.Scroll(ctx, "h", nil, 1)
	if res[0].Content != "alpha2" {
		t.Errorf("content = %q", res[0].Content)
	}
}

func TestUpsertDimensionMismatch(t *testing.T) {
	s := seed(t)
	err := s.Upsert(context.Background(), "h", []vector.Document{{ID: "d", Vector: []float32{1, 0, 0}}})
	if err == nil {
		t.Fatal("expected dimension error")
	}
}

func TestUnknownCollection(t *testing.T) {
	s := New()
	ctx := context.Background()
	n, err := s.Count(ctx, "missing")
	if err != nil || n != 0 {
		t.Fatalf("Count = %d, %v", n, err)
	}
	res, err := s.Search(ctx, "missing", []float32{1}, 3, nil)
	if err != nil || len(res) != 0 {
		t.Fatalf("Search = %v, %v", res, err)
	}
}

func TestUnsupportedFilter(t *testing.T) {
	s := seed(t)
	_, err := s.Scroll(context.Background(), "h", vector.Filter{"x": 1.5}, 10)
	if !errors.Is(err, vector.ErrUnsupportedFilter) {
		t.Fatalf("err = %v", err)
	}
}

func TestPayloadIsCopied(t *testing.T) {
	s := seed(t)
	res, _ := s.Scroll(context.Background(), "h", nil, 1)
	res[0].Payload["patient_id"] = "mutated"
	again, _ := s.Scroll(context.Background(), "h", nil, 1)
	if again[0].Payload["patient_id"] != "p1" {
		t.Error("stored payload was mutated through a result")
	}
}

func TestDeleteCollection(t *testing.T) {
	s := seed(t)
	ctx := context.Background()
	if err := s.DeleteCollection(ctx, "h"); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.Count(ctx, "h"); n != 0 {
		t.Errorf("count after delete = %d", n)
	}
	if err := s.DeleteCollection(ctx, "h"); err != nil {
		t.Errorf("deleting missing collection: %v", err)
	}
}

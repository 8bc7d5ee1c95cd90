package qdrant

import (
	"errors"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"

	"github.com/efebarandurmaz/medrag/internal/vector"
)

func TestPayloadRoundTrip(t *testing.T) {
	fields := map[string]any{
		"patient_id": "p1",
		"is_chronic": true,
		"date_ts":    int64(1700000000),
		"diagnosis":  []string{"Asthma", "Rhinitis"},
		"score":      0.5,
		"meta":       map[string]any{"condition": "Flu"},
		"missing":    nil,
	}
	payload, err := toPayload("digest", fields)
	if err != nil {
		t.Fatal(err)
	}
	if payload[vector.PayloadContent].GetStringValue() != "digest" {
		t.Fatal("content not stored")
	}

	content, back := fromPayload(payload)
	if content != "digest" {
		t.Errorf("content = %q", content)
	}
	if back["patient_id"] != "p1" || back["is_chronic"] != true {
		t.Errorf("scalars = %v", back)
	}
	if back["date_ts"] != int64(1700000000) {
		t.Errorf("date_ts = %#v", back["date_ts"])
	}
	diag := vector.Strings(back["diagnosis"])
	if len(diag) != 2 || diag[0] != "Asthma" {
		t.Errorf("diagnosis = %v", diag)
	}
	meta, ok := back["meta"].(map[string]any)
	if !ok || meta["condition"] != "Flu" {
		t.Errorf("meta = %#v", back["meta"])
	}
	if back["missing"] != nil {
		t.Errorf("missing = %#v", back["missing"])
	}
	if _, ok := back[vector.PayloadContent]; ok {
		t.Error("content leaked into fields")
	}
}

func TestToValueUnsupported(t *testing.T) {
	if _, err := toPayload("", map[string]any{"ch": make(chan int)}); err == nil {
		t.Fatal("expected error")
	}
}

func TestToFilter(t *testing.T) {
	f, err := toFilter(vector.Filter{"patient_id": "p1", "is_chronic": true})
	if err != nil {
		t.Fatal(err)
	}
	if len(f.GetMust()) != 2 {
		t.Fatalf("must = %d", len(f.GetMust()))
	}
	first := f.GetMust()[0].GetField()
	if first.GetKey() != "is_chronic" || !first.GetMatch().GetBoolean() {
		t.Errorf("first = %v", first)
	}
	second := f.GetMust()[1].GetField()
	if second.GetKey() != "patient_id" || second.GetMatch().GetKeyword() != "p1" {
		t.Errorf("second = %v", second)
	}

	empty, err := toFilter(nil)
	if err != nil || empty != nil {
		t.Errorf("empty = %v, %v", empty, err)
	}

	if _, err := toFilter(vector.Filter{"x": 1.5}); !errors.Is(err, vector.ErrUnsupportedFilter) {
		t.Errorf("err = %v", err)
	}
}

func TestPointID(t *testing.T) {
	if got := pointID(&pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: "abc"}}); got != "abc" {
		t.Errorf("uuid = %q", got)
	}
	if got := pointID(&pb.PointId{PointIdOptions: &pb.PointId_Num{Num: 42}}); got != "42" {
		t.Errorf("num = %q", got)
	}
}

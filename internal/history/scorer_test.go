package history

import (
	"math"
	"testing"
	"time"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func daysAgo(d float64) *float64 {
	ts := float64(fixedNow.Unix()) - d*86400
	return &ts
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestScore(t *testing.T) {
	s := NewScorer(180, clock)
	tests := []struct {
		name    string
		sim     float64
		chronic bool
		ts      *float64
		want    float64
	}{
		{"no date", 0.4, false, nil, 0.4},
		{"chronic no date", 0.4, true, nil, 1.4},
		{"fresh", 0.5, false, daysAgo(10), 1.0},
		{"exactly 30 days", 0.5, false, daysAgo(30), 1.0},
		{"recent", 0.5, false, daysAgo(100), 0.7},
		{"exactly 180 days", 0.5, false, daysAgo(180), 0.7},
		{"stale", 0.5, false, daysAgo(181), 0.3},
		{"scan item stale chronic", 0, true, daysAgo(400), 0.8},
		{"future date counts as fresh", 0.1, false, daysAgo(-5), 0.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Score(tt.sim, tt.chronic, tt.ts); !approx(got, tt.want) {
				t.Errorf("Score = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreRecentDaysThreshold(t *testing.T) {
	s := NewScorer(90, clock)
	if got := s.Score(0, false, daysAgo(100)); !approx(got, -0.2) {
		t.Errorf("100 days with 90 day window = %v, want -0.2", got)
	}
	if NewScorer(0, nil).recentDays != DefaultRecentDays {
		t.Error("zero window should default")
	}
}

func TestChronicBoostDominatesRecency(t *testing.T) {
	s := NewScorer(180, clock)
	for _, age := range []float64{0, 15, 31, 179, 181, 365, 3650} {
		for _, sim := range []float64{0, 0.3, 0.99} {
			if got := s.Score(sim, true, daysAgo(age)); got < sim+1.0-0.2-1e-9 {
				t.Errorf("chronic age=%v sim=%v: %v < %v", age, sim, got, sim+0.8)
			}
		}
	}
}

func TestFreshRecordsFloor(t *testing.T) {
	s := NewScorer(180, clock)
	for _, age := range []float64{0, 1, 29.9, 30} {
		for _, chronic := range []bool{false, true} {
			if got := s.Score(0.25, chronic, daysAgo(age)); got < 0.25+0.5-1e-9 {
				t.Errorf("age=%v chronic=%v: %v < 0.75", age, chronic, got)
			}
		}
	}
}

func TestScoreDriftsWithClock(t *testing.T) {
	ts := daysAgo(25)
	now := fixedNow
	s := NewScorer(180, func() time.Time { return now })
	if got := s.Score(0, false, ts); !approx(got, 0.5) {
		t.Fatalf("fresh = %v", got)
	}
	now = now.Add(10 * 24 * time.Hour)
	if got := s.Score(0, false, ts); !approx(got, 0.2) {
		t.Errorf("after 10 more days = %v, want 0.2", got)
	}
}

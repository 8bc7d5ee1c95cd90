package history

import "time"

// DefaultRecentDays bounds the "recent" recency band.
const DefaultRecentDays = 180

const (
	chronicBoost  = 1.0
	freshBoost    = 0.5
	recentBoost   = 0.2
	stalePenalty  = -0.2
	freshDays     = 30
	secondsPerDay = 86400
)

// Scorer ranks history items by similarity, chronicity and recency.
type Scorer struct {
	recentDays float64
	now        func() time.Time
}

// NewScorer creates a Scorer. recentDays <= 0 uses DefaultRecentDays; a nil
// clock uses time.Now.
func NewScorer(recentDays int, now func() time.Time) *Scorer {
	if recentDays <= 0 {
		recentDays = DefaultRecentDays
	}
	if now == nil {
		now = time.Now
	}
	return &Scorer{recentDays: float64(recentDays), now: now}
}

// Score computes the rank score of one item. similarity is 0 for items found
// by scan.
func (s *Scorer) Score(similarity float64, isChronic bool, dateTS *float64) float64 {
	score := similarity
	if isChronic {
		score += chronicBoost
	}
	if dateTS != nil {
		nowTS := float64(s.now().UnixNano()) / 1e9
		ageDays := (nowTS - *dateTS) / secondsPerDay
		switch {
		case ageDays <= freshDays:
			score += freshBoost
		case ageDays <= s.recentDays:
			score += recentBoost
		default:
			score += stalePenalty
		}
	}
	return score
}

// Rank sets RankScore on every item.
func (s *Scorer) Rank(items []ScoredItem) {
	for i := range items {
		items[i].RankScore = s.Score(items[i].Similarity, items[i].IsChronic, items[i].DateTS)
	}
}

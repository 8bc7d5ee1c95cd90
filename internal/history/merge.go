package history

import "sort"

// DefaultTopK is the number of history items presented to the model.
const DefaultTopK = 6

// Merge joins similarity results with chronic-scan results, drops items whose
// Key was already seen, ranks them with scorer and returns at most topK items
// by descending rank score. Equal scores keep join order.
func Merge(similar, chronic []ScoredItem, scorer *Scorer, topK int) []ScoredItem {
	if topK <= 0 {
		return []ScoredItem{}
	}
	seen := make(map[string]struct{}, len(similar)+len(chronic))
	merged := make([]ScoredItem, 0, len(similar)+len(chronic))
	for _, group := range [][]ScoredItem{similar, chronic} {
		for _, it := range group {
			k := it.Key()
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			merged = append(merged, it)
		}
	}

	scorer.Rank(merged)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].RankScore > merged[j].RankScore
	})
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged
}

package search

import (
	"sort"

	"github.com/chronograph-io/chronograph/pkg/utils"
)

func sortByScoreDesc[T any](items []T, score func(T) float64) {
	sort.SliceStable(items, func(i, j int) bool { return score(items[i]) > score(items[j]) })
}

// fuseRRF combines ranked id lists with reciprocal rank fusion. Each
// list contributes 1/(k + rank) per id, rank counted from 1; ids absent
// from a list contribute nothing for it. Larger k flattens the
// difference between adjacent ranks.
func fuseRRF(rankConstant int, lists ...[]string) map[string]float64 {
	scores := make(map[string]float64)
	for _, list := range lists {
		for rank, id := range list {
			scores[id] += 1.0 / float64(rankConstant+rank+1)
		}
	}
	return scores
}

// rankedIDs orders the fused score map by descending score, ties broken
// by id for determinism.
func rankedIDs(scores map[string]float64) []string {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids
}

// mmrCandidate is one item eligible for diversity re-ordering.
type mmrCandidate struct {
	ID        string
	Relevance float64
	Embedding []float32
}

// reorderMMR re-orders candidates by maximal marginal relevance:
// each step picks the candidate maximizing
//
//	lambda*relevance - (1-lambda)*max_similarity_to_selected
//
// Candidates without embeddings are penalized only by what the
// similarity term can see, so they keep their relevance order among
// themselves.
func reorderMMR(candidates []mmrCandidate, lambda float64) []string {
	remaining := make([]mmrCandidate, len(candidates))
	copy(remaining, candidates)

	selected := make([]string, 0, len(candidates))
	var chosen []mmrCandidate

	for len(remaining) > 0 {
		bestIdx, bestScore := 0, -1.0
		for i, c := range remaining {
			maxSim := 0.0
			if len(c.Embedding) > 0 {
				for _, s := range chosen {
					if sim := utils.CosineSimilarity(c.Embedding, s.Embedding); sim > maxSim {
						maxSim = sim
					}
				}
			}
			score := lambda*c.Relevance - (1-lambda)*maxSim
			if i == 0 || score > bestScore {
				bestIdx, bestScore = i, score
			}
		}
		pick := remaining[bestIdx]
		selected = append(selected, pick.ID)
		chosen = append(chosen, pick)
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

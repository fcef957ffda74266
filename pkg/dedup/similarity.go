package dedup

import (
	"sort"
	"strings"

	"github.com/chronograph-io/chronograph/pkg/types"
	"github.com/chronograph-io/chronograph/pkg/utils"
)

// Candidate is one prefilter hit: an existing entity with its name
// similarity to the new entity.
type Candidate struct {
	Node  *types.Node
	Score float64
}

// NameScore combines the name signals into a single score in [0, 1]:
// exact normalized match is 1, containment and matching initials give a
// strong floor, and edit distance covers the rest.
func NameScore(a, b string) float64 {
	na, nb := utils.NormalizeName(a), utils.NormalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	score := utils.NameSimilarity(na, nb)
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		score = maxf(score, 0.8)
	}
	// "J. Smith" vs "John Smith": initials line up and they share a
	// token.
	if utils.Initials(na) == utils.Initials(nb) && sharesToken(na, nb) {
		score = maxf(score, 0.7)
	}
	return score
}

func sharesToken(a, b string) bool {
	tokens := make(map[string]bool)
	for _, tok := range utils.Tokenize(a) {
		if len(tok) > 1 {
			tokens[tok] = true
		}
	}
	for _, tok := range utils.Tokenize(b) {
		if tokens[tok] {
			return true
		}
	}
	return false
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Shortlist scores name against every existing entity and returns the
// top candidates at or above threshold, best first.
func Shortlist(name string, existing []*types.Node, threshold float64, size int) []Candidate {
	candidates := make([]Candidate, 0, len(existing))
	for _, node := range existing {
		score := NameScore(name, node.Name)
		if score >= threshold {
			candidates = append(candidates, Candidate{Node: node, Score: score})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if size > 0 && len(candidates) > size {
		candidates = candidates[:size]
	}
	return candidates
}

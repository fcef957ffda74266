package search

import (
	"math"

	"github.com/chronograph-io/chronograph/pkg/utils"
)

// BM25 parameters. k1 tempers term-frequency saturation, b tempers
// length normalization; the values are the standard Okapi defaults.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// bm25Corpus scores a query against a small in-memory candidate corpus.
// Candidates come pre-filtered from the store, so corpus statistics are
// computed over the candidate set rather than the whole group.
type bm25Corpus struct {
	docs      [][]string
	docFreq   map[string]int
	avgLength float64
}

func newBM25Corpus(texts []string) *bm25Corpus {
	corpus := &bm25Corpus{docFreq: make(map[string]int)}
	total := 0
	for _, text := range texts {
		tokens := utils.Tokenize(text)
		corpus.docs = append(corpus.docs, tokens)
		total += len(tokens)
		seen := make(map[string]bool)
		for _, tok := range tokens {
			if !seen[tok] {
				corpus.docFreq[tok]++
				seen[tok] = true
			}
		}
	}
	if len(texts) > 0 {
		corpus.avgLength = float64(total) / float64(len(texts))
	}
	return corpus
}

// score computes the BM25 score of the query against document i.
func (c *bm25Corpus) score(query string, i int) float64 {
	doc := c.docs[i]
	if len(doc) == 0 || c.avgLength == 0 {
		return 0
	}
	termFreq := make(map[string]int, len(doc))
	for _, tok := range doc {
		termFreq[tok]++
	}

	n := float64(len(c.docs))
	lengthNorm := bm25K1 * (1 - bm25B + bm25B*float64(len(doc))/c.avgLength)

	var score float64
	for _, term := range utils.Tokenize(query) {
		tf := float64(termFreq[term])
		if tf == 0 {
			continue
		}
		df := float64(c.docFreq[term])
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		score += idf * tf * (bm25K1 + 1) / (tf + lengthNorm)
	}
	return score
}

// rankBM25 returns candidate indexes ordered by descending BM25 score,
// dropping zero-score candidates.
func rankBM25(query string, texts []string) []int {
	corpus := newBM25Corpus(texts)
	type scored struct {
		index int
		score float64
	}
	var ranked []scored
	for i := range texts {
		if s := corpus.score(query, i); s > 0 {
			ranked = append(ranked, scored{i, s})
		}
	}
	sortByScoreDesc(ranked, func(s scored) float64 { return s.score })
	out := make([]int, len(ranked))
	for i, s := range ranked {
		out[i] = s.index
	}
	return out
}

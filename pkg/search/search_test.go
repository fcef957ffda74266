package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronograph-io/chronograph/pkg/driver"
	"github.com/chronograph-io/chronograph/pkg/reranker"
	"github.com/chronograph-io/chronograph/pkg/types"
)

func TestFuseRRFRewardsOverlap(t *testing.T) {
	scores := fuseRRF(60,
		[]string{"both", "semantic-only"},
		[]string{"both", "lexical-only"},
	)

	assert.Greater(t, scores["both"], scores["semantic-only"])
	assert.Greater(t, scores["both"], scores["lexical-only"])
}

func TestFuseRRFRankMonotonic(t *testing.T) {
	scores := fuseRRF(60, []string{"first", "second", "third"})
	assert.Greater(t, scores["first"], scores["second"])
	assert.Greater(t, scores["second"], scores["third"])
}

func TestRankedIDsDeterministicTieBreak(t *testing.T) {
	scores := map[string]float64{"b": 1, "a": 1, "c": 2}
	assert.Equal(t, []string{"c", "a", "b"}, rankedIDs(scores))
}

func TestReorderMMRPenalizesNearDuplicates(t *testing.T) {
	// Two near-identical top candidates and one distinct candidate: MMR
	// should interleave the distinct one ahead of the duplicate.
	candidates := []mmrCandidate{
		{ID: "top", Relevance: 1.0, Embedding: []float32{1, 0}},
		{ID: "duplicate", Relevance: 0.95, Embedding: []float32{1, 0}},
		{ID: "distinct", Relevance: 0.6, Embedding: []float32{0, 1}},
	}

	order := reorderMMR(candidates, 0.5)
	require.Equal(t, "top", order[0])
	assert.Equal(t, "distinct", order[1])
	assert.Equal(t, "duplicate", order[2])
}

func TestBM25RanksMatchingTerms(t *testing.T) {
	texts := []string{
		"the quick brown fox",
		"graph databases store temporal facts",
		"temporal reasoning over temporal graphs",
	}
	order := rankBM25("temporal graph", texts)
	require.NotEmpty(t, order)
	assert.NotContains(t, order, 0, "document without query terms excluded")
	assert.Equal(t, 1, order[0], "document matching both query terms ranks first")
}

// fixedEmbedder returns a canned vector per known text and a fallback
// otherwise.
type fixedEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if vec, ok := f.vectors[text]; ok {
		return vec, nil
	}
	return []float32{0, 0, 1}, nil
}

func (f *fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fixedEmbedder) Dimensions() int { return 3 }
func (f *fixedEmbedder) Close() error    { return nil }

type failingReranker struct{}

func (failingReranker) Rank(ctx context.Context, query string, passages []reranker.Passage) ([]reranker.RankedPassage, error) {
	return nil, errors.New("cross-encoder down")
}
func (failingReranker) Close() error { return nil }

func seedGraph(t *testing.T) (driver.GraphDriver, *types.Node) {
	t.Helper()
	store, err := driver.NewBadgerDriver("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	alice := types.NewEntityNode("Alice Chen", "g", []string{"Person"})
	alice.Summary = "Engineer working on temporal graphs"
	alice.NameEmbedding = []float32{1, 0, 0}
	acme := types.NewEntityNode("Acme", "g", []string{"Organization"})
	acme.Summary = "A software company"
	acme.NameEmbedding = []float32{0, 1, 0}
	require.NoError(t, store.UpsertNodes(ctx, []*types.Node{alice, acme}))

	edge := types.NewEdge("g", alice.UUID, acme.UUID, "WORKS_AT",
		"Alice Chen works at Acme on temporal graphs",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	edge.FactEmbedding = []float32{1, 0, 0}
	require.NoError(t, store.UpsertEdge(ctx, edge))

	return store, alice
}

func TestEngineHybridSearch(t *testing.T) {
	store, alice := seedGraph(t)
	embed := &fixedEmbedder{vectors: map[string][]float32{
		"temporal graphs": {1, 0, 0},
	}}
	engine := NewEngine(store, embed, nil, Config{}, nil)

	results, err := engine.Search(context.Background(), "temporal graphs", &types.SearchConfig{
		GroupIDs:     []string{"g"},
		IncludeNodes: true,
		IncludeEdges: true,
	})
	require.NoError(t, err)

	require.NotEmpty(t, results.Nodes)
	assert.Equal(t, alice.UUID, results.Nodes[0].UUID,
		"entity hit by both semantic and lexical retrieval wins fusion")
	require.NotEmpty(t, results.Edges)
	assert.False(t, results.Degraded)
}

func TestEngineTraversalMethod(t *testing.T) {
	store, alice := seedGraph(t)
	engine := NewEngine(store, &fixedEmbedder{}, nil, Config{}, nil)

	results, err := engine.Search(context.Background(), "software company", &types.SearchConfig{
		GroupIDs:       []string{"g"},
		CenterNodeUUID: alice.UUID,
		IncludeNodes:   true,
	})
	require.NoError(t, err)

	found := false
	for _, node := range results.Nodes {
		if node.Name == "Acme" {
			found = true
		}
	}
	assert.True(t, found, "neighbor of the center node retrieved by traversal")
}

func TestEngineDegradesWhenEmbedderFails(t *testing.T) {
	store, _ := seedGraph(t)
	engine := NewEngine(store, &fixedEmbedder{err: errors.New("quota exhausted")}, nil, Config{}, nil)

	results, err := engine.Search(context.Background(), "temporal graphs", &types.SearchConfig{
		GroupIDs: []string{"g"},
	})
	require.NoError(t, err)

	assert.True(t, results.Degraded)
	assert.NotEmpty(t, results.Warnings)
	assert.NotEmpty(t, results.Nodes, "lexical retrieval still serves results")
}

func TestEngineDegradesWhenRerankFails(t *testing.T) {
	store, _ := seedGraph(t)
	embed := &fixedEmbedder{vectors: map[string][]float32{"temporal graphs": {1, 0, 0}}}
	engine := NewEngine(store, embed, failingReranker{}, Config{}, nil)

	results, err := engine.Search(context.Background(), "temporal graphs", &types.SearchConfig{
		GroupIDs: []string{"g"},
		Rerank:   true,
	})
	require.NoError(t, err)

	assert.True(t, results.Degraded)
	assert.NotEmpty(t, results.Nodes, "fused order survives rerank failure")
}

func TestEngineTimeRangeFiltersEdges(t *testing.T) {
	store, _ := seedGraph(t)
	embed := &fixedEmbedder{vectors: map[string][]float32{"temporal graphs": {1, 0, 0}}}
	engine := NewEngine(store, embed, nil, Config{}, nil)

	// The seeded edge became valid in 2024; a range entirely before that
	// must exclude it.
	results, err := engine.Search(context.Background(), "temporal graphs", &types.SearchConfig{
		GroupIDs: []string{"g"},
		TimeRange: &types.TimeRange{
			Start: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	})
	require.NoError(t, err)
	assert.Empty(t, results.Edges)
}

func TestEngineRejectsEmptyQueryAndGroups(t *testing.T) {
	store, _ := seedGraph(t)
	engine := NewEngine(store, &fixedEmbedder{}, nil, Config{}, nil)

	_, err := engine.Search(context.Background(), "", &types.SearchConfig{GroupIDs: []string{"g"}})
	assert.Error(t, err)

	_, err = engine.Search(context.Background(), "query", &types.SearchConfig{})
	assert.Error(t, err)
}

package community

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronograph-io/chronograph/pkg/driver"
	"github.com/chronograph-io/chronograph/pkg/types"
)

func edge(source, target string) *types.Edge {
	return types.NewEdge("g", source, target, "RELATES", "fact", time.Now())
}

func TestPropagateTwoCliques(t *testing.T) {
	// Two triangles joined by nothing must end up as two clusters.
	nodes := []string{"a1", "a2", "a3", "b1", "b2", "b3"}
	edges := []*types.Edge{
		edge("a1", "a2"), edge("a2", "a3"), edge("a1", "a3"),
		edge("b1", "b2"), edge("b2", "b3"), edge("b1", "b3"),
	}

	graph := NewGraph(nodes, edges)
	labels := graph.Propagate(100)
	clusters := Clusters(labels, 2)

	require.Len(t, clusters, 2)
	assert.Equal(t, []string{"a1", "a2", "a3"}, clusters[0])
	assert.Equal(t, []string{"b1", "b2", "b3"}, clusters[1])
}

func TestPropagateDeterministic(t *testing.T) {
	nodes := []string{"a", "b", "c", "d"}
	edges := []*types.Edge{edge("a", "b"), edge("c", "d"), edge("b", "c")}

	first := NewGraph(nodes, edges).Propagate(100)
	second := NewGraph(nodes, edges).Propagate(100)
	assert.Equal(t, first, second)
}

func TestClustersDropsSmall(t *testing.T) {
	labels := map[string]string{"a": "x", "b": "x", "lone": "lone"}
	clusters := Clusters(labels, 2)
	require.Len(t, clusters, 1)
	assert.Equal(t, []string{"a", "b"}, clusters[0])
}

func TestGraphSkipsUnknownAndSelfEdges(t *testing.T) {
	graph := NewGraph([]string{"a", "b"}, []*types.Edge{
		edge("a", "a"),
		edge("a", "missing"),
		edge("a", "b"),
	})
	assert.Equal(t, map[string]int{"b": 1}, graph.Neighbors("a"))
}

func TestRankByDegreeHubFirst(t *testing.T) {
	// Star: hub touches every spoke, spokes touch only the hub.
	nodes := []string{"hub", "s1", "s2", "s3"}
	edges := []*types.Edge{
		edge("hub", "s1"), edge("hub", "s2"), edge("hub", "s3"),
	}
	graph := NewGraph(nodes, edges)

	ranked := rankByDegree([]string{"s1", "s2", "s3", "hub"}, graph)
	assert.Equal(t, "hub", ranked[0], "most connected member leads the sample")
	assert.Equal(t, []string{"s1", "s2", "s3"}, ranked[1:], "equal degrees keep uuid order")
}

func TestRankByDegreeWeighted(t *testing.T) {
	// Parallel edges weigh more than a single edge.
	nodes := []string{"a", "b", "c"}
	edges := []*types.Edge{
		edge("a", "b"), edge("a", "b"), edge("b", "c"),
	}
	graph := NewGraph(nodes, edges)

	ranked := rankByDegree([]string{"a", "b", "c"}, graph)
	assert.Equal(t, []string{"b", "a", "c"}, ranked)
}

func seedStore(t *testing.T) (driver.GraphDriver, []*types.Node) {
	t.Helper()
	store, err := driver.NewBadgerDriver("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	names := []string{"Alice", "Bob", "Carol", "Dave"}
	nodes := make([]*types.Node, len(names))
	for i, name := range names {
		nodes[i] = types.NewEntityNode(name, "g", nil)
	}
	require.NoError(t, store.UpsertNodes(ctx, nodes))

	// Alice-Bob and Carol-Dave form two pairs.
	require.NoError(t, store.UpsertEdge(ctx, edge(nodes[0].UUID, nodes[1].UUID)))
	require.NoError(t, store.UpsertEdge(ctx, edge(nodes[2].UUID, nodes[3].UUID)))
	return store, nodes
}

func TestDetectorBuildTemplatedFallback(t *testing.T) {
	store, _ := seedStore(t)
	detector := NewDetector(store, nil, Config{}, nil)

	communities, err := detector.Build(context.Background(), "g")
	require.NoError(t, err)
	require.Len(t, communities, 2)
	assert.Equal(t, "Community of 2 entities", communities[0].Name)
	assert.Contains(t, communities[0].Summary, "2 related entities")

	stored, err := store.GetNodesByGroup(context.Background(), "g", types.CommunityNodeType)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestDetectorBuildReplacesPrevious(t *testing.T) {
	store, _ := seedStore(t)
	detector := NewDetector(store, nil, Config{}, nil)
	ctx := context.Background()

	_, err := detector.Build(ctx, "g")
	require.NoError(t, err)
	_, err = detector.Build(ctx, "g")
	require.NoError(t, err)

	stored, err := store.GetNodesByGroup(ctx, "g", types.CommunityNodeType)
	require.NoError(t, err)
	assert.Len(t, stored, 2, "rebuild replaces rather than accumulates")
}

func TestDetectorUpdateAssignsToModalCommunity(t *testing.T) {
	store, nodes := seedStore(t)
	detector := NewDetector(store, nil, Config{}, nil)
	ctx := context.Background()

	_, err := detector.Build(ctx, "g")
	require.NoError(t, err)

	// A new entity tied twice to the Alice-Bob pair joins their
	// community.
	eve := types.NewEntityNode("Eve", "g", nil)
	require.NoError(t, store.UpsertNode(ctx, eve))
	require.NoError(t, store.UpsertEdge(ctx, edge(eve.UUID, nodes[0].UUID)))
	require.NoError(t, store.UpsertEdge(ctx, edge(eve.UUID, nodes[1].UUID)))

	updated, err := detector.Update(ctx, "g", []string{eve.UUID})
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Contains(t, updated[0].Members, eve.UUID)
	assert.Contains(t, updated[0].Members, nodes[0].UUID)
}

func TestDetectorUpdateUnconnectedStaysOut(t *testing.T) {
	store, _ := seedStore(t)
	detector := NewDetector(store, nil, Config{}, nil)
	ctx := context.Background()

	_, err := detector.Build(ctx, "g")
	require.NoError(t, err)

	loner := types.NewEntityNode("Loner", "g", nil)
	require.NoError(t, store.UpsertNode(ctx, loner))

	updated, err := detector.Update(ctx, "g", []string{loner.UUID})
	require.NoError(t, err)
	assert.Empty(t, updated)
}

// Package community groups entities into clusters with label
// propagation over the relationship graph and maintains one community
// node per cluster, summarized by the language-model capability when it
// is available.
package community

import (
	"sort"

	"github.com/chronograph-io/chronograph/pkg/types"
)

// Graph is the undirected weighted projection of one group's entities.
// Edge weights count parallel relationship edges between a pair.
type Graph struct {
	adjacency map[string]map[string]int
}

// NewGraph builds the projection from entity uuids and relationship
// edges. Edges referencing unknown nodes or looping onto one node are
// skipped.
func NewGraph(nodeUUIDs []string, edges []*types.Edge) *Graph {
	g := &Graph{adjacency: make(map[string]map[string]int, len(nodeUUIDs))}
	for _, id := range nodeUUIDs {
		g.adjacency[id] = make(map[string]int)
	}
	for _, edge := range edges {
		if edge.SourceID == edge.TargetID {
			continue
		}
		if _, ok := g.adjacency[edge.SourceID]; !ok {
			continue
		}
		if _, ok := g.adjacency[edge.TargetID]; !ok {
			continue
		}
		g.adjacency[edge.SourceID][edge.TargetID]++
		g.adjacency[edge.TargetID][edge.SourceID]++
	}
	return g
}

// Neighbors returns the weighted adjacency of one node.
func (g *Graph) Neighbors(uuid string) map[string]int {
	return g.adjacency[uuid]
}

// Propagate runs synchronous label propagation for at most
// maxIterations rounds and returns the final label per node. Nodes
// start labeled by their own uuid; each round every node adopts the
// label with the highest total edge weight among its neighbors, ties
// broken by the smallest label so runs are deterministic. The loop
// stops early once a round changes nothing.
func (g *Graph) Propagate(maxIterations int) map[string]string {
	labels := make(map[string]string, len(g.adjacency))
	order := make([]string, 0, len(g.adjacency))
	for id := range g.adjacency {
		labels[id] = id
		order = append(order, id)
	}
	sort.Strings(order)

	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for _, id := range order {
			best := dominantLabel(g.adjacency[id], labels, labels[id])
			if best != labels[id] {
				labels[id] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return labels
}

// dominantLabel picks the neighbor label with the greatest total
// weight; the current label wins ties at equal weight, otherwise the
// lexicographically smallest label wins.
func dominantLabel(neighbors map[string]int, labels map[string]string, current string) string {
	if len(neighbors) == 0 {
		return current
	}
	weights := make(map[string]int, len(neighbors))
	for neighbor, weight := range neighbors {
		weights[labels[neighbor]] += weight
	}

	best, bestWeight := current, weights[current]
	for label, weight := range weights {
		if weight > bestWeight || (weight == bestWeight && label < best) {
			best, bestWeight = label, weight
		}
	}
	return best
}

// Clusters converts a label assignment into member lists, dropping
// clusters smaller than minSize. Members are sorted for determinism.
func Clusters(labels map[string]string, minSize int) [][]string {
	byLabel := make(map[string][]string)
	for id, label := range labels {
		byLabel[label] = append(byLabel[label], id)
	}

	var clusters [][]string
	for _, members := range byLabel {
		if len(members) < minSize {
			continue
		}
		sort.Strings(members)
		clusters = append(clusters, members)
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i][0] < clusters[j][0] })
	return clusters
}

package search

import (
	"context"

	"github.com/chronograph-io/chronograph/pkg/driver"
)

// traverse runs a breadth-first walk from the center entity up to
// maxHops, scoring each reached node by 1/(1+hops) so nearer entities
// rank higher. The center itself is excluded from results.
func traverse(ctx context.Context, store driver.GraphDriver, groupID, center string, maxHops int) (map[string]float64, error) {
	scores := make(map[string]float64)
	visited := map[string]bool{center: true}
	frontier := []string{center}

	for hop := 1; hop <= maxHops && len(frontier) > 0; hop++ {
		var next []string
		for _, nodeUUID := range frontier {
			neighbors, err := store.GetNodeNeighbors(ctx, groupID, nodeUUID)
			if err != nil {
				return nil, err
			}
			for _, neighbor := range neighbors {
				if visited[neighbor.NodeUUID] {
					continue
				}
				visited[neighbor.NodeUUID] = true
				scores[neighbor.NodeUUID] = 1.0 / float64(1+hop)
				next = append(next, neighbor.NodeUUID)
			}
		}
		frontier = next
	}
	return scores, nil
}

// traversalRanking converts hop scores into a ranked id list, nearest
// first, ties broken by id.
func traversalRanking(scores map[string]float64) []string {
	return rankedIDs(scores)
}

package community

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/chronograph-io/chronograph/pkg/driver"
	"github.com/chronograph-io/chronograph/pkg/llm"
	"github.com/chronograph-io/chronograph/pkg/prompts"
	"github.com/chronograph-io/chronograph/pkg/types"
)

// Config tunes detection.
type Config struct {
	// MinSize drops clusters with fewer members.
	MinSize int
	// MaxIterations bounds label propagation.
	MaxIterations int
	// SummaryMembers caps how many members the summary call sees.
	SummaryMembers int
}

// Detector builds and incrementally maintains community nodes for a
// group. The model call for naming is best-effort; a failed call falls
// back to a templated name and summary.
type Detector struct {
	store  driver.GraphDriver
	llm    llm.Client
	config Config
	logger *slog.Logger
}

// NewDetector builds a detector. llm may be nil; communities then get
// templated summaries only.
func NewDetector(store driver.GraphDriver, client llm.Client, config Config, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MinSize <= 0 {
		config.MinSize = 2
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = 100
	}
	if config.SummaryMembers <= 0 {
		config.SummaryMembers = 10
	}
	return &Detector{store: store, llm: client, config: config, logger: logger}
}

// Build runs full detection for the group and replaces its community
// nodes with the result.
func (d *Detector) Build(ctx context.Context, groupID string) ([]*types.Node, error) {
	entities, err := d.store.GetNodesByGroup(ctx, groupID, types.EntityNodeType)
	if err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}
	edges, err := d.store.GetEdgesByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("load edges: %w", err)
	}

	byUUID := make(map[string]*types.Node, len(entities))
	uuids := make([]string, 0, len(entities))
	for _, node := range entities {
		byUUID[node.UUID] = node
		uuids = append(uuids, node.UUID)
	}

	graph := NewGraph(uuids, edges)
	labels := graph.Propagate(d.config.MaxIterations)
	clusters := Clusters(labels, d.config.MinSize)

	communities := make([]*types.Node, 0, len(clusters))
	for _, members := range clusters {
		name, summary := d.describe(ctx, rankByDegree(members, graph), byUUID)
		community := types.NewCommunityNode(name, groupID, 0, members)
		community.Summary = summary
		communities = append(communities, community)
	}

	if err := d.store.ReplaceCommunities(ctx, groupID, communities); err != nil {
		return nil, fmt.Errorf("replace communities: %w", err)
	}
	return communities, nil
}

// Update folds newly created entities into the existing communities:
// each one joins the community holding the plurality of its neighbors.
// Entities with no neighboring community stay unassigned until the next
// full Build. When no communities exist yet, Update runs a full Build.
func (d *Detector) Update(ctx context.Context, groupID string, newNodeUUIDs []string) ([]*types.Node, error) {
	if len(newNodeUUIDs) == 0 {
		return nil, nil
	}
	communities, err := d.store.GetNodesByGroup(ctx, groupID, types.CommunityNodeType)
	if err != nil {
		return nil, fmt.Errorf("load communities: %w", err)
	}
	if len(communities) == 0 {
		return d.Build(ctx, groupID)
	}

	memberOf := make(map[string]*types.Node)
	for _, community := range communities {
		for _, member := range community.Members {
			memberOf[member] = community
		}
	}

	changed := make(map[string]*types.Node)
	for _, uuid := range newNodeUUIDs {
		if _, ok := memberOf[uuid]; ok {
			continue
		}
		neighbors, err := d.store.GetNodeNeighbors(ctx, groupID, uuid)
		if err != nil {
			return nil, fmt.Errorf("load neighbors: %w", err)
		}

		votes := make(map[*types.Node]int)
		for _, neighbor := range neighbors {
			if community, ok := memberOf[neighbor.NodeUUID]; ok {
				votes[community] += neighbor.EdgeCount
			}
		}
		winner := modalCommunity(votes)
		if winner == nil {
			continue
		}
		winner.Members = append(winner.Members, uuid)
		sort.Strings(winner.Members)
		memberOf[uuid] = winner
		changed[winner.UUID] = winner
	}

	updated := make([]*types.Node, 0, len(changed))
	for _, community := range changed {
		if err := d.store.UpsertNode(ctx, community); err != nil {
			return nil, fmt.Errorf("update community: %w", err)
		}
		updated = append(updated, community)
	}
	return updated, nil
}

// modalCommunity picks the community with the most weighted votes, ties
// broken by uuid for determinism.
func modalCommunity(votes map[*types.Node]int) *types.Node {
	var winner *types.Node
	best := 0
	for community, count := range votes {
		if count > best || (count == best && winner != nil && community.UUID < winner.UUID) {
			winner, best = community, count
		}
	}
	return winner
}

// rankByDegree orders cluster members by weighted degree, descending,
// so a truncated sample keeps the most connected entities. Ties break
// by uuid for determinism.
func rankByDegree(members []string, graph *Graph) []string {
	degree := make(map[string]int, len(members))
	for _, uuid := range members {
		total := 0
		for _, weight := range graph.Neighbors(uuid) {
			total += weight
		}
		degree[uuid] = total
	}
	ranked := make([]string, len(members))
	copy(ranked, members)
	sort.Slice(ranked, func(i, j int) bool {
		if degree[ranked[i]] != degree[ranked[j]] {
			return degree[ranked[i]] > degree[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})
	return ranked
}

// describe names a cluster. The model sees the highest-degree members;
// on any failure the templated fallback keeps ingestion moving.
func (d *Detector) describe(ctx context.Context, members []string, byUUID map[string]*types.Node) (string, string) {
	fallbackName := fmt.Sprintf("Community of %d entities", len(members))
	fallbackSummary := fmt.Sprintf("A cluster of %d related entities.", len(members))
	if d.llm == nil {
		return fallbackName, fallbackSummary
	}

	sample := make([]*types.Node, 0, d.config.SummaryMembers)
	for _, uuid := range members {
		if node, ok := byUUID[uuid]; ok {
			sample = append(sample, node)
		}
		if len(sample) >= d.config.SummaryMembers {
			break
		}
	}
	if len(sample) == 0 {
		return fallbackName, fallbackSummary
	}

	var out struct {
		Name    string `json:"name"`
		Summary string `json:"summary"`
	}
	if err := d.llm.ChatStructured(ctx, prompts.SummarizeCommunity(sample), &out); err != nil || out.Name == "" {
		d.logger.Warn("community summary failed, using templated fallback", "error", err)
		return fallbackName, fallbackSummary
	}
	if out.Summary == "" {
		out.Summary = fallbackSummary
	}
	return out.Name, out.Summary
}

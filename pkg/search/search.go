// Package search implements hybrid retrieval over the graph: semantic
// similarity, BM25 lexical scoring, and breadth-first graph traversal
// run in parallel, their rankings fused with reciprocal rank fusion,
// optionally diversified with maximal marginal relevance and re-ordered
// by the cross-encoder capability. The cross-encoder is best-effort:
// when it fails the fused order is returned with Degraded set.
package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chronograph-io/chronograph/pkg/driver"
	"github.com/chronograph-io/chronograph/pkg/embedder"
	"github.com/chronograph-io/chronograph/pkg/reranker"
	"github.com/chronograph-io/chronograph/pkg/types"
	"github.com/chronograph-io/chronograph/pkg/utils"
)

// Config carries the engine-level tunables; per-query knobs live in
// types.SearchConfig.
type Config struct {
	// RankConstant is the k in reciprocal rank fusion.
	RankConstant int
	// MMRLambda balances relevance against diversity in [0, 1].
	MMRLambda float64
	// RetrievalDepth is how many candidates each method fetches before
	// fusion.
	RetrievalDepth int
}

// Engine runs hybrid searches. The reranker is optional.
type Engine struct {
	store    driver.GraphDriver
	embedder embedder.Client
	reranker reranker.Client
	config   Config
	logger   *slog.Logger
}

// NewEngine builds a search engine. reranker may be nil; rerank
// requests then degrade to the fused order.
func NewEngine(store driver.GraphDriver, embed embedder.Client, rerank reranker.Client, config Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if config.RankConstant <= 0 {
		config.RankConstant = 60
	}
	if config.MMRLambda <= 0 {
		config.MMRLambda = 0.5
	}
	if config.RetrievalDepth <= 0 {
		config.RetrievalDepth = 20
	}
	return &Engine{store: store, embedder: embed, reranker: rerank, config: config, logger: logger}
}

// candidates accumulates per-method rankings plus the objects behind
// the ids.
type candidates struct {
	nodeLists [][]string
	edgeLists [][]string
	nodes     map[string]*types.Node
	edges     map[string]*types.Edge
}

func newCandidates() *candidates {
	return &candidates{
		nodes: make(map[string]*types.Node),
		edges: make(map[string]*types.Edge),
	}
}

func (c *candidates) addNodeList(nodes []*types.Node) {
	ids := make([]string, 0, len(nodes))
	for _, node := range nodes {
		ids = append(ids, node.UUID)
		if _, ok := c.nodes[node.UUID]; !ok {
			c.nodes[node.UUID] = node
		}
	}
	c.nodeLists = append(c.nodeLists, ids)
}

func (c *candidates) addEdgeList(edges []*types.Edge) {
	ids := make([]string, 0, len(edges))
	for _, edge := range edges {
		ids = append(ids, edge.UUID)
		if _, ok := c.edges[edge.UUID]; !ok {
			c.edges[edge.UUID] = edge
		}
	}
	c.edgeLists = append(c.edgeLists, ids)
}

// Search runs one hybrid search across the configured groups.
func (e *Engine) Search(ctx context.Context, query string, config *types.SearchConfig) (*types.SearchResults, error) {
	config = config.WithDefaults()
	if query == "" {
		return nil, fmt.Errorf("search: empty query")
	}
	if len(config.GroupIDs) == 0 {
		return nil, fmt.Errorf("search: at least one group id required")
	}

	results := &types.SearchResults{Query: query}
	cands := newCandidates()

	// Query embedding feeds the semantic method; losing it degrades the
	// search to the remaining methods rather than failing it.
	var queryEmbedding []float32
	if e.embedder != nil {
		vec, err := e.embedder.Embed(ctx, query)
		if err != nil {
			e.logger.Warn("query embedding failed, semantic retrieval skipped", "error", err)
			results.Degraded = true
			results.Warnings = append(results.Warnings, "semantic retrieval unavailable: "+err.Error())
		} else {
			queryEmbedding = vec
		}
	}

	type retrieved struct {
		nodes []*types.Node
		edges []*types.Edge
	}
	var fns []func() (retrieved, error)
	depth := e.config.RetrievalDepth

	if len(queryEmbedding) > 0 {
		fns = append(fns, func() (retrieved, error) {
			var out retrieved
			for _, groupID := range config.GroupIDs {
				nodes, err := e.store.SearchNodesByEmbedding(ctx, queryEmbedding, groupID, depth)
				if err != nil {
					return out, err
				}
				edges, err := e.store.SearchEdgesByEmbedding(ctx, queryEmbedding, groupID, depth)
				if err != nil {
					return out, err
				}
				out.nodes = append(out.nodes, nodes...)
				out.edges = append(out.edges, edges...)
			}
			return out, nil
		})
	}

	fns = append(fns, func() (retrieved, error) {
		var out retrieved
		for _, groupID := range config.GroupIDs {
			nodes, err := e.store.SearchNodes(ctx, query, groupID, depth*2)
			if err != nil {
				return out, err
			}
			edges, err := e.store.SearchEdges(ctx, query, groupID, depth*2)
			if err != nil {
				return out, err
			}
			out.nodes = append(out.nodes, rankNodesBM25(query, nodes, depth)...)
			out.edges = append(out.edges, rankEdgesBM25(query, edges, depth)...)
		}
		return out, nil
	})

	if config.CenterNodeUUID != "" {
		fns = append(fns, func() (retrieved, error) {
			var out retrieved
			for _, groupID := range config.GroupIDs {
				scores, err := traverse(ctx, e.store, groupID, config.CenterNodeUUID, config.MaxHops)
				if err != nil {
					return out, err
				}
				if len(scores) == 0 {
					continue
				}
				nodes, err := e.store.GetNodes(ctx, traversalRanking(scores), groupID)
				if err != nil {
					return out, err
				}
				// GetNodes loses ranking order; restore it.
				byID := make(map[string]*types.Node, len(nodes))
				for _, node := range nodes {
					byID[node.UUID] = node
				}
				for _, id := range traversalRanking(scores) {
					if node, ok := byID[id]; ok {
						out.nodes = append(out.nodes, node)
					}
				}
			}
			return out, nil
		})
	}

	retrievals, errs := utils.GatherResults(ctx, len(fns), fns...)
	if err := utils.FirstError(errs); err != nil {
		return nil, fmt.Errorf("search retrieval: %w", err)
	}
	for _, ret := range retrievals {
		cands.addNodeList(ret.nodes)
		cands.addEdgeList(ret.edges)
	}

	if config.IncludeNodes {
		e.rankNodes(ctx, query, config, cands, results)
	}
	if config.IncludeEdges {
		e.rankEdges(ctx, query, config, cands, results)
	}
	return results, nil
}

func rankNodesBM25(query string, nodes []*types.Node, limit int) []*types.Node {
	texts := make([]string, len(nodes))
	for i, node := range nodes {
		texts[i] = node.Name + " " + node.Summary
	}
	var ranked []*types.Node
	for _, idx := range rankBM25(query, texts) {
		ranked = append(ranked, nodes[idx])
		if limit > 0 && len(ranked) >= limit {
			break
		}
	}
	return ranked
}

func rankEdgesBM25(query string, edges []*types.Edge, limit int) []*types.Edge {
	texts := make([]string, len(edges))
	for i, edge := range edges {
		texts[i] = edge.Fact
	}
	var ranked []*types.Edge
	for _, idx := range rankBM25(query, texts) {
		ranked = append(ranked, edges[idx])
		if limit > 0 && len(ranked) >= limit {
			break
		}
	}
	return ranked
}

func (e *Engine) rankNodes(ctx context.Context, query string, config *types.SearchConfig, cands *candidates, results *types.SearchResults) {
	scores := fuseRRF(e.config.RankConstant, cands.nodeLists...)
	order := rankedIDs(scores)

	if config.UseMMR && len(order) > 1 {
		mmrCands := make([]mmrCandidate, 0, len(order))
		for _, id := range order {
			node := cands.nodes[id]
			mmrCands = append(mmrCands, mmrCandidate{ID: id, Relevance: scores[id], Embedding: node.NameEmbedding})
		}
		order = reorderMMR(mmrCands, e.config.MMRLambda)
	}

	if config.Rerank {
		order = e.rerank(ctx, query, order, config.RerankDepth, results, func(id string) string {
			node := cands.nodes[id]
			return node.Name + ": " + node.Summary
		})
	}

	for _, id := range order {
		if len(results.Nodes) >= config.Limit {
			break
		}
		results.Nodes = append(results.Nodes, cands.nodes[id])
		results.Scores = append(results.Scores, scores[id])
	}
}

func (e *Engine) rankEdges(ctx context.Context, query string, config *types.SearchConfig, cands *candidates, results *types.SearchResults) {
	scores := fuseRRF(e.config.RankConstant, cands.edgeLists...)
	order := rankedIDs(scores)

	if config.TimeRange != nil {
		filtered := order[:0]
		for _, id := range order {
			if edgeOverlapsRange(cands.edges[id], config.TimeRange) {
				filtered = append(filtered, id)
			}
		}
		order = filtered
	}

	if config.Rerank {
		order = e.rerank(ctx, query, order, config.RerankDepth, results, func(id string) string {
			return cands.edges[id].Fact
		})
	}

	count := 0
	for _, id := range order {
		if count >= config.Limit {
			break
		}
		results.Edges = append(results.Edges, cands.edges[id])
		count++
	}
}

// edgeOverlapsRange reports whether the edge's validity interval
// intersects the requested range.
func edgeOverlapsRange(edge *types.Edge, tr *types.TimeRange) bool {
	if !tr.End.IsZero() && !edge.ValidAt.Before(tr.End) {
		return false
	}
	if edge.InvalidAt != nil && !tr.Start.IsZero() && !edge.InvalidAt.After(tr.Start) {
		return false
	}
	return true
}

// rerank sends the top candidates to the cross-encoder. Any failure
// keeps the incoming order and marks the results degraded.
func (e *Engine) rerank(ctx context.Context, query string, order []string, depth int, results *types.SearchResults, text func(string) string) []string {
	if e.reranker == nil {
		results.Degraded = true
		results.Warnings = append(results.Warnings, "reranker not configured")
		return order
	}
	head := order
	if depth > 0 && len(head) > depth {
		head = head[:depth]
	}
	if len(head) == 0 {
		return order
	}

	passages := make([]reranker.Passage, len(head))
	for i, id := range head {
		passages[i] = reranker.Passage{ID: id, Text: text(id)}
	}
	ranked, err := e.reranker.Rank(ctx, query, passages)
	if err != nil {
		e.logger.Warn("rerank failed, keeping fused order", "error", err)
		results.Degraded = true
		results.Warnings = append(results.Warnings, "rerank unavailable: "+err.Error())
		return order
	}

	reordered := make([]string, 0, len(order))
	for _, r := range ranked {
		reordered = append(reordered, r.ID)
	}
	reordered = append(reordered, order[len(head):]...)
	return reordered
}

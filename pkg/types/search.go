package types

import "time"

// SearchConfig tunes one hybrid search invocation. The zero value plus
// WithDefaults gives a reasonable search.
type SearchConfig struct {
	// Limit caps the number of returned results.
	Limit int
	// GroupIDs restricts the namespaces searched.
	GroupIDs []string
	// CenterNodeUUID, when set, enables the graph-traversal retrieval
	// method anchored at that entity.
	CenterNodeUUID string
	// MaxHops bounds traversal distance from the center node.
	MaxHops int
	// UseMMR re-orders fused results for diversity.
	UseMMR bool
	// Rerank applies the cross-encoder capability to the top candidates.
	Rerank bool
	// RerankDepth bounds how many fused candidates are sent to the
	// cross-encoder.
	RerankDepth int
	// IncludeNodes / IncludeEdges select the result kinds.
	IncludeNodes bool
	IncludeEdges bool
	// TimeRange filters edges to those valid within the range.
	TimeRange *TimeRange
}

// WithDefaults returns a copy with zero fields replaced by defaults.
func (c *SearchConfig) WithDefaults() *SearchConfig {
	out := SearchConfig{IncludeNodes: true, IncludeEdges: true}
	if c != nil {
		out = *c
	}
	if out.Limit <= 0 {
		out.Limit = 10
	}
	if out.MaxHops <= 0 {
		out.MaxHops = 3
	}
	if out.RerankDepth <= 0 {
		out.RerankDepth = 100
	}
	if !out.IncludeNodes && !out.IncludeEdges {
		out.IncludeNodes = true
		out.IncludeEdges = true
	}
	return &out
}

// TimeRange bounds a temporal filter.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// SearchResults is the unified ranked output of a hybrid search.
// Degraded is set when a non-critical stage (reranking) failed and the
// results fell back to the pre-rerank order.
type SearchResults struct {
	Query    string    `json:"query"`
	Nodes    []*Node   `json:"nodes,omitempty"`
	Edges    []*Edge   `json:"edges,omitempty"`
	Scores   []float64 `json:"scores,omitempty"`
	Degraded bool      `json:"degraded,omitempty"`
	Warnings []string  `json:"warnings,omitempty"`
}

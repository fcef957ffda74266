package types

import "time"

// AddEpisodeResults is the caller-visible outcome of one successful
// pipeline run.
type AddEpisodeResults struct {
	// Episode is the persisted episodic node.
	Episode *Node `json:"episode"`
	// Nodes are the entity nodes created or updated by this episode.
	Nodes []*Node `json:"nodes"`
	// Edges are the relationship edges created by this episode.
	Edges []*Edge `json:"edges"`
	// InvalidatedEdges are pre-existing edges closed by this episode.
	InvalidatedEdges []*Edge `json:"invalidated_edges,omitempty"`
	// Communities are community nodes rebuilt after this episode.
	Communities []*Node `json:"communities,omitempty"`

	// CreatedNodeCount counts brand-new entities; MergedNodeCount counts
	// candidates resolved to existing entities.
	CreatedNodeCount int `json:"created_node_count"`
	MergedNodeCount  int `json:"merged_node_count"`

	// Warnings carries data-quality degradations (dedup judgment
	// failures, unresolved temporal conflicts) that did not fail the run.
	Warnings []string `json:"warnings,omitempty"`

	ProcessingTime time.Duration `json:"processing_time"`
}

// AddBulkResults aggregates the outcomes of a batch submission.
type AddBulkResults struct {
	Results []*AddEpisodeResults `json:"results"`
	// Failed maps episode uuid to the error string for episodes whose
	// pipeline run failed.
	Failed map[string]string `json:"failed,omitempty"`
}

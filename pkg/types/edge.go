package types

import (
	"time"

	"github.com/google/uuid"
)

// Edge is a directed, named relationship between two entity nodes.
//
// Temporal fields follow the bi-temporal model: CreatedAt is transaction
// time (when the system learned the fact); ValidAt/InvalidAt bound the
// interval during which the fact held in the real world. A nil InvalidAt
// means the fact is still considered true ("open"). Once an edge is
// closed it is never mutated again except to append InvalidatedBy
// provenance.
type Edge struct {
	UUID      string    `json:"uuid"`
	GroupID   string    `json:"group_id"`
	SourceID  string    `json:"source_node_uuid"`
	TargetID  string    `json:"target_node_uuid"`
	Name      string    `json:"name"`
	Fact      string    `json:"fact"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ValidAt       time.Time  `json:"valid_at"`
	InvalidAt     *time.Time `json:"invalid_at,omitempty"`
	InvalidatedBy []string   `json:"invalidated_by,omitempty"`

	FactEmbedding []float32 `json:"fact_embedding,omitempty"`
	EpisodeIDs    []string  `json:"episode_ids,omitempty"`
}

// Validate checks the fields required for any edge.
func (e *Edge) Validate() error {
	if e.GroupID == "" {
		return ErrEmptyGroupID
	}
	if e.SourceID == "" || e.TargetID == "" {
		return ErrEdgeEndpoints
	}
	if e.Name == "" {
		return ErrEmptyName
	}
	return nil
}

// IsOpen reports whether the edge has no real-world end time yet.
func (e *Edge) IsOpen() bool {
	return e.InvalidAt == nil
}

// ValidDuring reports whether the edge's validity interval covers ts,
// i.e. valid_at <= ts < (invalid_at or +infinity).
func (e *Edge) ValidDuring(ts time.Time) bool {
	if e.ValidAt.After(ts) {
		return false
	}
	if e.InvalidAt == nil {
		return true
	}
	return ts.Before(*e.InvalidAt)
}

// Close marks the edge invalid as of ts, recording the uuid of the edge
// that superseded it. Closing an already-closed edge only appends
// provenance; the original InvalidAt is preserved.
func (e *Edge) Close(ts time.Time, supersededBy string) {
	if e.InvalidAt == nil {
		t := ts
		e.InvalidAt = &t
	}
	e.AddInvalidatedBy(supersededBy)
	e.UpdatedAt = time.Now().UTC()
}

// AddInvalidatedBy appends invalidation provenance if absent.
func (e *Edge) AddInvalidatedBy(id string) {
	for _, existing := range e.InvalidatedBy {
		if existing == id {
			return
		}
	}
	e.InvalidatedBy = append(e.InvalidatedBy, id)
}

// AddEpisodeID appends an episode uuid to the provenance set if absent.
func (e *Edge) AddEpisodeID(episodeID string) {
	for _, id := range e.EpisodeIDs {
		if id == episodeID {
			return
		}
	}
	e.EpisodeIDs = append(e.EpisodeIDs, episodeID)
}

// NewEdge builds an open edge with a fresh uuid. ValidAt defaults to the
// creation instant when the caller passes the zero time.
func NewEdge(groupID, sourceID, targetID, name, fact string, validAt time.Time) *Edge {
	now := time.Now().UTC()
	if validAt.IsZero() {
		validAt = now
	}
	return &Edge{
		UUID:      uuid.New().String(),
		GroupID:   groupID,
		SourceID:  sourceID,
		TargetID:  targetID,
		Name:      name,
		Fact:      fact,
		CreatedAt: now,
		UpdatedAt: now,
		ValidAt:   validAt,
	}
}

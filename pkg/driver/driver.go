// Package driver abstracts graph persistence behind a single interface
// with two backends: an embedded Badger store for single-process use and
// a Neo4j store for shared deployments. All operations are scoped to a
// group id; no query ever crosses group boundaries.
package driver

import (
	"context"
	"errors"
	"time"

	"github.com/chronograph-io/chronograph/pkg/types"
)

// Provider identifies the backing database of a driver.
type Provider string

const (
	ProviderBadger Provider = "badger"
	ProviderNeo4j  Provider = "neo4j"
)

// ErrNotFound is returned when a node or edge does not exist in the
// caller's group.
var ErrNotFound = errors.New("driver: not found")

// Batch is the unit of atomic persistence. Everything in one batch is
// written in a single backend transaction; a failure leaves the store
// untouched. Edge upserts cover both new edges and edges re-written
// with a closed validity interval.
type Batch struct {
	Nodes []*types.Node
	Edges []*types.Edge
}

// Empty reports whether the batch carries no writes.
func (b *Batch) Empty() bool {
	return len(b.Nodes) == 0 && len(b.Edges) == 0
}

// GraphDriver is the persistence contract shared by all backends.
type GraphDriver interface {
	// UpsertNode creates or fully replaces a node.
	UpsertNode(ctx context.Context, node *types.Node) error

	// UpsertNodes creates or replaces multiple nodes atomically.
	UpsertNodes(ctx context.Context, nodes []*types.Node) error

	// GetNode retrieves a node by uuid, or ErrNotFound.
	GetNode(ctx context.Context, uuid, groupID string) (*types.Node, error)

	// GetNodes retrieves the subset of the given uuids that exist.
	GetNodes(ctx context.Context, uuids []string, groupID string) ([]*types.Node, error)

	// GetNodesByGroup retrieves every node of one type in a group.
	GetNodesByGroup(ctx context.Context, groupID string, nodeType types.NodeType) ([]*types.Node, error)

	// UpsertEdge creates or fully replaces an edge.
	UpsertEdge(ctx context.Context, edge *types.Edge) error

	// GetEdge retrieves an edge by uuid, or ErrNotFound.
	GetEdge(ctx context.Context, uuid, groupID string) (*types.Edge, error)

	// GetEdgesByGroup retrieves every relationship edge in a group.
	GetEdgesByGroup(ctx context.Context, groupID string) ([]*types.Edge, error)

	// GetEdgesBetween retrieves edges between two nodes in either
	// direction.
	GetEdgesBetween(ctx context.Context, groupID, nodeA, nodeB string) ([]*types.Edge, error)

	// GetEdgesForNode retrieves every edge touching the node.
	GetEdgesForNode(ctx context.Context, groupID, nodeUUID string) ([]*types.Edge, error)

	// GetEdgesAt retrieves the edges whose validity interval covers ts,
	// the point-in-time view of the group.
	GetEdgesAt(ctx context.Context, groupID string, ts time.Time) ([]*types.Edge, error)

	// GetNodeNeighbors returns the adjacency of one entity node over
	// relationship edges, with parallel-edge counts.
	GetNodeNeighbors(ctx context.Context, groupID, nodeUUID string) ([]types.Neighbor, error)

	// RecentEpisodes returns up to limit episodic nodes with reference
	// time at or before ts, most recent first.
	RecentEpisodes(ctx context.Context, groupID string, ts time.Time, limit int) ([]*types.Node, error)

	// SearchNodesByEmbedding returns entity nodes ranked by cosine
	// similarity of their name embedding to the query embedding.
	SearchNodesByEmbedding(ctx context.Context, embedding []float32, groupID string, limit int) ([]*types.Node, error)

	// SearchEdgesByEmbedding returns edges ranked by cosine similarity
	// of their fact embedding to the query embedding.
	SearchEdgesByEmbedding(ctx context.Context, embedding []float32, groupID string, limit int) ([]*types.Edge, error)

	// SearchNodes returns entity nodes whose name or summary contains
	// any token of the query. Lexical scoring is the caller's concern.
	SearchNodes(ctx context.Context, query, groupID string, limit int) ([]*types.Node, error)

	// SearchEdges returns edges whose fact contains any token of the
	// query.
	SearchEdges(ctx context.Context, query, groupID string, limit int) ([]*types.Edge, error)

	// ApplyBatch writes all nodes and edges of the batch in one
	// transaction.
	ApplyBatch(ctx context.Context, groupID string, batch *Batch) error

	// ReplaceCommunities atomically replaces the community nodes of a
	// group with the given set.
	ReplaceCommunities(ctx context.Context, groupID string, communities []*types.Node) error

	// RemoveEpisode deletes an episodic node and removes it from the
	// provenance of nodes and edges, deleting those whose provenance
	// becomes empty.
	RemoveEpisode(ctx context.Context, groupID, episodeUUID string) error

	// DeleteGroup removes every node and edge in the group.
	DeleteGroup(ctx context.Context, groupID string) error

	// CreateIndices creates backend indexes. Safe to call repeatedly.
	CreateIndices(ctx context.Context) error

	// Provider identifies the backend.
	Provider() Provider

	// Close releases backend resources.
	Close() error
}

package types

import (
	"time"

	"github.com/google/uuid"
)

// NodeType discriminates the kinds of nodes stored in the graph.
type NodeType string

const (
	// EntityNodeType is a deduplicated real-world entity.
	EntityNodeType NodeType = "entity"
	// EpisodicNodeType is the persisted form of an ingested episode.
	EpisodicNodeType NodeType = "episodic"
	// CommunityNodeType is a cluster label over a set of entities.
	CommunityNodeType NodeType = "community"
)

// Node represents a node in the knowledge graph. A single struct covers
// entity, episodic, and community nodes, discriminated by Type; the
// per-kind fields are tagged omitempty and left zero for other kinds.
type Node struct {
	UUID      string    `json:"uuid"`
	Name      string    `json:"name"`
	Type      NodeType  `json:"type"`
	GroupID   string    `json:"group_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Entity fields.
	Labels        []string       `json:"labels,omitempty"`
	Summary       string         `json:"summary,omitempty"`
	Attributes    map[string]any `json:"attributes,omitempty"`
	NameEmbedding []float32      `json:"name_embedding,omitempty"`

	// Episodic fields.
	Content   string      `json:"content,omitempty"`
	Source    string      `json:"source,omitempty"`
	SourceTag EpisodeKind `json:"source_tag,omitempty"`
	Reference time.Time   `json:"reference,omitempty"`

	// Community fields.
	Level   int      `json:"level,omitempty"`
	Members []string `json:"members,omitempty"`

	// EpisodeIDs is the provenance set: every episode that contributed
	// evidence to this node.
	EpisodeIDs []string `json:"episode_ids,omitempty"`
}

// Validate checks the fields required for any node.
func (n *Node) Validate() error {
	if n.Name == "" {
		return ErrEmptyName
	}
	if n.GroupID == "" {
		return ErrEmptyGroupID
	}
	return nil
}

// ValidateForCreate additionally requires a UUID.
func (n *Node) ValidateForCreate() error {
	if n.UUID == "" {
		return ErrEmptyUUID
	}
	return n.Validate()
}

// PrimaryLabel returns the first type label, or "Entity" when none is set.
func (n *Node) PrimaryLabel() string {
	if len(n.Labels) > 0 {
		return n.Labels[0]
	}
	return "Entity"
}

// HasLabel reports whether the node carries the given type label.
func (n *Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// AddEpisodeID appends an episode uuid to the provenance set if absent.
func (n *Node) AddEpisodeID(episodeID string) {
	for _, id := range n.EpisodeIDs {
		if id == episodeID {
			return
		}
	}
	n.EpisodeIDs = append(n.EpisodeIDs, episodeID)
}

// NewEntityNode builds an entity node with a fresh uuid.
func NewEntityNode(name, groupID string, labels []string) *Node {
	now := time.Now().UTC()
	return &Node{
		UUID:      uuid.New().String(),
		Name:      name,
		Type:      EntityNodeType,
		GroupID:   groupID,
		Labels:    labels,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewCommunityNode builds a community node with a fresh uuid.
func NewCommunityNode(name, groupID string, level int, members []string) *Node {
	now := time.Now().UTC()
	return &Node{
		UUID:      uuid.New().String(),
		Name:      name,
		Type:      CommunityNodeType,
		GroupID:   groupID,
		Level:     level,
		Members:   members,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Neighbor is one adjacency entry in the entity projection used by graph
// traversal and community detection. EdgeCount weights the connection.
type Neighbor struct {
	NodeUUID  string `json:"node_uuid"`
	EdgeCount int    `json:"edge_count"`
}

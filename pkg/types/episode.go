package types

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Validation errors shared across the package.
var (
	ErrEmptyName       = errors.New("name cannot be empty")
	ErrEmptyGroupID    = errors.New("group_id cannot be empty")
	ErrEmptyUUID       = errors.New("uuid cannot be empty")
	ErrEmptyContent    = errors.New("content cannot be empty")
	ErrContentTooLarge = errors.New("content exceeds maximum size")
	ErrBadGroupID      = errors.New("group_id must match ^[A-Za-z0-9_-]+$")
	ErrEdgeEndpoints   = errors.New("edge requires source and target node uuids")
	ErrInvalidLimit    = errors.New("limit must be positive")
)

var groupIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidGroupID reports whether s is an acceptable namespace identifier.
func ValidGroupID(s string) bool {
	return groupIDPattern.MatchString(s)
}

// EpisodeKind tags the source shape of an episode.
type EpisodeKind string

const (
	// MessageEpisode is a conversational turn.
	MessageEpisode EpisodeKind = "message"
	// TextEpisode is unstructured document text.
	TextEpisode EpisodeKind = "text"
	// JSONEpisode is a structured payload serialized as text.
	JSONEpisode EpisodeKind = "json"
)

// Episode is one immutable unit of raw input submitted for ingestion.
// It is created once, never mutated, and referenced by every node and
// edge it contributed to.
type Episode struct {
	UUID      string      `json:"uuid"`
	Name      string      `json:"name"`
	Content   string      `json:"content"`
	Source    string      `json:"source"`
	Kind      EpisodeKind `json:"kind"`
	GroupID   string      `json:"group_id"`
	Reference time.Time   `json:"reference"`
	CreatedAt time.Time   `json:"created_at"`
}

// Validate checks the episode against the ingestion boundary rules:
// a well-formed namespace and a non-empty body no larger than maxBytes
// (0 means unbounded).
func (e *Episode) Validate(maxBytes int) error {
	if !ValidGroupID(e.GroupID) {
		return ErrBadGroupID
	}
	if e.Content == "" {
		return ErrEmptyContent
	}
	if maxBytes > 0 && len(e.Content) > maxBytes {
		return ErrContentTooLarge
	}
	return nil
}

// Node converts the episode into its persisted episodic-node form.
// Unnamed episodes get a name derived from the group and reference
// time; the node name is required by the store.
func (e *Episode) Node() *Node {
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	ref := e.Reference
	if ref.IsZero() {
		ref = created
	}
	name := e.Name
	if name == "" {
		name = fmt.Sprintf("%s-episode-%s", e.GroupID, ref.UTC().Format("20060102T150405Z"))
	}
	return &Node{
		UUID:      e.UUID,
		Name:      name,
		Type:      EpisodicNodeType,
		GroupID:   e.GroupID,
		Content:   e.Content,
		Source:    e.Source,
		SourceTag: e.Kind,
		Reference: ref,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

package types

import (
	"fmt"
	"time"
)

// ExtractedEntity is a candidate entity proposed by the extraction
// capability before deduplication.
type ExtractedEntity struct {
	Name       string         `json:"name"`
	Label      string         `json:"label"`
	Summary    string         `json:"summary,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// ExtractedRelationship is a candidate relationship proposed by the
// extraction capability. Source and target reference candidate entities
// by name; resolution rewrites them to canonical node uuids.
type ExtractedRelationship struct {
	Source  string     `json:"source_entity"`
	Target  string     `json:"target_entity"`
	Name    string     `json:"name"`
	Fact    string     `json:"fact"`
	ValidAt *time.Time `json:"valid_at,omitempty"`
}

// ExtractionResult is the full payload returned by one extraction call.
type ExtractionResult struct {
	Entities      []ExtractedEntity       `json:"entities"`
	Relationships []ExtractedRelationship `json:"relationships"`
}

// ReflexionResult is the answer to "did the first pass miss any
// obviously-named entities". An empty MissedEntities terminates the
// reflexion loop.
type ReflexionResult struct {
	MissedEntities []string `json:"missed_entities"`
}

// DuplicateVerdict is the model judgment for one dedup shortlist: either
// the uuid of the matching existing entity, or empty meaning "new".
type DuplicateVerdict struct {
	MatchUUID string `json:"match_uuid"`
}

// ContradictionVerdict is the model judgment over a new fact and one
// existing open fact: contradiction closes the older edge, corroboration
// leaves both as-is (the new edge still merges provenance).
type ContradictionVerdict struct {
	Contradicts bool `json:"contradicts"`
}

// AttributeKind enumerates the value kinds an entity-type schema can
// declare for attributes.
type AttributeKind string

const (
	AttributeString AttributeKind = "string"
	AttributeNumber AttributeKind = "number"
	AttributeBool   AttributeKind = "bool"
	AttributeTime   AttributeKind = "time"
)

// EntityTypeSchema declares an entity type label and the attribute keys
// it accepts. Attributes are validated at the ingestion boundary; keys
// not declared in the schema are dropped with a warning rather than
// stored unchecked.
type EntityTypeSchema struct {
	Label       string                   `json:"label" yaml:"label"`
	Description string                   `json:"description,omitempty" yaml:"description,omitempty"`
	Attributes  map[string]AttributeKind `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// ValidateAttributes filters attrs down to schema-declared keys with
// values of the declared kind. It returns the accepted map and the list
// of rejected keys.
func (s *EntityTypeSchema) ValidateAttributes(attrs map[string]any) (map[string]any, []string) {
	if len(attrs) == 0 {
		return nil, nil
	}
	accepted := make(map[string]any, len(attrs))
	var rejected []string
	for key, value := range attrs {
		kind, declared := s.Attributes[key]
		if !declared || !attributeKindMatches(kind, value) {
			rejected = append(rejected, key)
			continue
		}
		accepted[key] = value
	}
	if len(accepted) == 0 {
		accepted = nil
	}
	return accepted, rejected
}

func attributeKindMatches(kind AttributeKind, value any) bool {
	switch kind {
	case AttributeString:
		_, ok := value.(string)
		return ok
	case AttributeNumber:
		switch value.(type) {
		case int, int32, int64, float32, float64:
			return true
		}
		return false
	case AttributeBool:
		_, ok := value.(bool)
		return ok
	case AttributeTime:
		switch v := value.(type) {
		case time.Time:
			return true
		case string:
			_, err := time.Parse(time.RFC3339, v)
			return err == nil
		}
		return false
	}
	return false
}

// SchemaSet indexes entity-type schemas by label.
type SchemaSet map[string]*EntityTypeSchema

// Lookup returns the schema for a label, or nil when undeclared.
func (s SchemaSet) Lookup(label string) *EntityTypeSchema {
	if s == nil {
		return nil
	}
	return s[label]
}

// Labels returns the declared labels, for inclusion in extraction prompts.
func (s SchemaSet) Labels() []string {
	labels := make([]string, 0, len(s))
	for label := range s {
		labels = append(labels, label)
	}
	return labels
}

// Describe renders the schema set as prompt-ready text.
func (s SchemaSet) Describe() string {
	out := ""
	for label, schema := range s {
		out += fmt.Sprintf("- %s: %s\n", label, schema.Description)
	}
	return out
}

package types

import (
	"testing"
	"time"
)

func TestEdgeValidDuring(t *testing.T) {
	t1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(48 * time.Hour)

	open := NewEdge("g", "a", "b", "WORKS_AT", "a works at b", t1)
	if !open.ValidDuring(t1) {
		t.Error("open edge should be valid at its own valid_at")
	}
	if !open.ValidDuring(t2.Add(time.Hour)) {
		t.Error("open edge should be valid arbitrarily far in the future")
	}
	if open.ValidDuring(t1.Add(-time.Second)) {
		t.Error("edge should not be valid before valid_at")
	}

	closed := NewEdge("g", "a", "b", "WORKS_AT", "a works at b", t1)
	closed.Close(t2, "successor-uuid")
	if closed.IsOpen() {
		t.Fatal("Close should clear the open state")
	}
	if !closed.ValidDuring(t1.Add(time.Hour)) {
		t.Error("closed edge should remain valid inside its interval")
	}
	if closed.ValidDuring(t2) {
		t.Error("interval is half-open; invalid_at itself is excluded")
	}
}

func TestEdgeCloseIsAppendOnly(t *testing.T) {
	t1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	t3 := t1.Add(2 * time.Hour)

	e := NewEdge("g", "a", "b", "VP_OF", "a is vp of b", t1)
	e.Close(t2, "first")
	e.Close(t3, "second")
	e.Close(t3, "second") // duplicate provenance is ignored

	if !e.InvalidAt.Equal(t2) {
		t.Errorf("InvalidAt = %v, want the first close time %v", e.InvalidAt, t2)
	}
	if len(e.InvalidatedBy) != 2 {
		t.Errorf("InvalidatedBy = %v, want two distinct entries", e.InvalidatedBy)
	}
}

func TestEdgeValidate(t *testing.T) {
	e := NewEdge("g", "a", "b", "KNOWS", "a knows b", time.Time{})
	if err := e.Validate(); err != nil {
		t.Fatalf("valid edge rejected: %v", err)
	}
	if e.ValidAt.IsZero() {
		t.Error("zero valid_at should default to creation time")
	}

	e.SourceID = ""
	if err := e.Validate(); err != ErrEdgeEndpoints {
		t.Errorf("missing endpoint: got %v, want ErrEdgeEndpoints", err)
	}
}

func TestEpisodeValidate(t *testing.T) {
	ep := &Episode{GroupID: "team_a", Content: "hello"}
	if err := ep.Validate(0); err != nil {
		t.Fatalf("valid episode rejected: %v", err)
	}
	ep.GroupID = "bad group!"
	if err := ep.Validate(0); err != ErrBadGroupID {
		t.Errorf("bad namespace: got %v, want ErrBadGroupID", err)
	}
	ep.GroupID = "ok"
	ep.Content = ""
	if err := ep.Validate(0); err != ErrEmptyContent {
		t.Errorf("empty content: got %v, want ErrEmptyContent", err)
	}
	ep.Content = "0123456789"
	if err := ep.Validate(5); err != ErrContentTooLarge {
		t.Errorf("oversized content: got %v, want ErrContentTooLarge", err)
	}
}

func TestSchemaValidateAttributes(t *testing.T) {
	schema := &EntityTypeSchema{
		Label: "Person",
		Attributes: map[string]AttributeKind{
			"title":      AttributeString,
			"age":        AttributeNumber,
			"active":     AttributeBool,
			"start_date": AttributeTime,
		},
	}

	accepted, rejected := schema.ValidateAttributes(map[string]any{
		"title":      "VP of Sales",
		"age":        42,
		"active":     true,
		"start_date": "2025-03-01T00:00:00Z",
		"undeclared": "x",
		"age_wrong":  "not a number",
	})

	if len(accepted) != 4 {
		t.Errorf("accepted = %v, want 4 entries", accepted)
	}
	if len(rejected) != 2 {
		t.Errorf("rejected = %v, want 2 entries", rejected)
	}
}

package dedup

import (
	"context"
	"log/slog"

	"github.com/chronograph-io/chronograph/pkg/llm"
	"github.com/chronograph-io/chronograph/pkg/prompts"
	"github.com/chronograph-io/chronograph/pkg/types"
	"github.com/chronograph-io/chronograph/pkg/utils"
)

// Config tunes the prefilter.
type Config struct {
	// PrefilterThreshold is the minimum name score for an existing
	// entity to reach the shortlist.
	PrefilterThreshold float64
	// ShortlistSize caps how many candidates the judgment call sees.
	ShortlistSize int
}

// Resolver decides, for each extracted entity, whether it is a new node
// or a duplicate of an existing one.
type Resolver struct {
	llm    llm.Client
	logger *slog.Logger
	config Config
}

// NewResolver builds a resolver. A nil logger falls back to the default.
func NewResolver(client llm.Client, config Config, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{llm: client, logger: logger, config: config}
}

// Resolution is the outcome of resolving one extraction batch.
type Resolution struct {
	// ByName maps each extracted entity's normalized name to its
	// canonical node, for relationship endpoint resolution.
	ByName map[string]*types.Node
	// Created are brand-new entity nodes.
	Created []*types.Node
	// Merged are existing nodes that absorbed a duplicate.
	Merged []*types.Node
}

// Resolve matches the extracted entities against the existing entities
// of the same group. Extracted nodes must be fresh entity nodes with
// uuids assigned; episodeContent gives the judgment call context.
//
// A failed or ambiguous judgment counts as "new entity": a spurious
// duplicate corrupts two entities, a spurious split only splits one.
func (r *Resolver) Resolve(ctx context.Context, extracted, existing []*types.Node, episodeContent string) (*Resolution, error) {
	uf := NewUnionFind()
	byUUID := make(map[string]*types.Node, len(extracted)+len(existing))
	existingSet := make(map[string]bool, len(existing))
	for _, node := range existing {
		byUUID[node.UUID] = node
		existingSet[node.UUID] = true
		uf.Add(node.UUID)
	}

	// Collapse exact normalized names inside the batch before any
	// judgment call.
	seen := make(map[string]string)
	for _, node := range extracted {
		byUUID[node.UUID] = node
		uf.Add(node.UUID)
		key := utils.NormalizeName(node.Name)
		if prior, ok := seen[key]; ok {
			uf.Union(prior, node.UUID)
			continue
		}
		seen[key] = node.UUID
	}

	for key, uuid := range seen {
		node := byUUID[uuid]
		shortlist := Shortlist(node.Name, sameTypeOnly(node, existing), r.config.PrefilterThreshold, r.config.ShortlistSize)
		if len(shortlist) == 0 {
			continue
		}
		if best := shortlist[0]; utils.NormalizeName(best.Node.Name) == key {
			uf.Union(best.Node.UUID, uuid)
			continue
		}

		match := r.judge(ctx, node, shortlist, episodeContent)
		if match != "" {
			uf.Union(match, uuid)
		}
	}

	return r.materialize(ctx, uf, byUUID, existingSet, extracted)
}

// sameTypeOnly keeps the existing entities whose type labels are
// compatible with the candidate's: a shared label, or no declared
// labels on either side. A Person and an Organization with the same
// name never reach the shortlist.
func sameTypeOnly(candidate *types.Node, existing []*types.Node) []*types.Node {
	if len(candidate.Labels) == 0 {
		return existing
	}
	scoped := make([]*types.Node, 0, len(existing))
	for _, node := range existing {
		if len(node.Labels) == 0 {
			scoped = append(scoped, node)
			continue
		}
		for _, label := range candidate.Labels {
			if node.HasLabel(label) {
				scoped = append(scoped, node)
				break
			}
		}
	}
	return scoped
}

// judge asks the model for a verdict over the shortlist; returns the
// matched existing uuid or "" for new.
func (r *Resolver) judge(ctx context.Context, node *types.Node, shortlist []Candidate, episodeContent string) string {
	nodes := make([]*types.Node, len(shortlist))
	valid := make(map[string]bool, len(shortlist))
	for i, c := range shortlist {
		nodes[i] = c.Node
		valid[c.Node.UUID] = true
	}

	var verdict types.DuplicateVerdict
	messages := prompts.JudgeDuplicate(node, nodes, episodeContent)
	if err := r.llm.ChatStructured(ctx, messages, &verdict); err != nil {
		r.logger.Warn("duplicate judgment failed, treating as new entity",
			"entity", node.Name, "error", err)
		return ""
	}
	if verdict.MatchUUID == "" {
		return ""
	}
	if !valid[verdict.MatchUUID] {
		r.logger.Warn("duplicate judgment returned uuid outside shortlist, treating as new entity",
			"entity", node.Name, "uuid", verdict.MatchUUID)
		return ""
	}
	return verdict.MatchUUID
}

// materialize turns union-find sets into canonical nodes, merging field
// content from every member.
func (r *Resolver) materialize(ctx context.Context, uf *UnionFind, byUUID map[string]*types.Node, existingSet map[string]bool, extracted []*types.Node) (*Resolution, error) {
	resolution := &Resolution{ByName: make(map[string]*types.Node)}
	canonical := make(map[string]*types.Node)

	for _, members := range uf.Sets() {
		// The canonical node is the oldest existing member, or the
		// first extracted member when the set is all new.
		var target *types.Node
		hasExisting := false
		for _, uuid := range members {
			node := byUUID[uuid]
			if existingSet[uuid] {
				if !hasExisting || node.CreatedAt.Before(target.CreatedAt) {
					target = node
					hasExisting = true
				}
			} else if !hasExisting && target == nil {
				target = node
			}
		}
		if target == nil {
			continue
		}

		merged := false
		for _, uuid := range members {
			if uuid == target.UUID || existingSet[uuid] {
				continue
			}
			r.mergeInto(ctx, target, byUUID[uuid])
			merged = true
		}

		for _, uuid := range members {
			canonical[uuid] = target
		}
		if hasExisting {
			if merged {
				resolution.Merged = append(resolution.Merged, target)
			}
		} else {
			resolution.Created = append(resolution.Created, target)
		}
	}

	for _, node := range extracted {
		resolution.ByName[utils.NormalizeName(node.Name)] = canonical[node.UUID]
	}
	return resolution, nil
}

// mergeInto folds a duplicate's content into the canonical node.
func (r *Resolver) mergeInto(ctx context.Context, target, dup *types.Node) {
	for _, label := range dup.Labels {
		if !target.HasLabel(label) {
			target.Labels = append(target.Labels, label)
		}
	}
	if target.Attributes == nil && len(dup.Attributes) > 0 {
		target.Attributes = make(map[string]any, len(dup.Attributes))
	}
	for key, value := range dup.Attributes {
		if _, ok := target.Attributes[key]; !ok {
			target.Attributes[key] = value
		}
	}
	for _, id := range dup.EpisodeIDs {
		target.AddEpisodeID(id)
	}
	target.Summary = r.mergeSummaries(ctx, target.Name, target.Summary, dup.Summary)
}

// mergeSummaries combines two summaries, asking the model only when
// both carry distinct content. On failure the existing summary wins.
func (r *Resolver) mergeSummaries(ctx context.Context, name, existing, incoming string) string {
	switch {
	case incoming == "" || incoming == existing:
		return existing
	case existing == "":
		return incoming
	}

	var out struct {
		Summary string `json:"summary"`
	}
	messages := prompts.MergeSummaries(name, existing, incoming)
	if err := r.llm.ChatStructured(ctx, messages, &out); err != nil || out.Summary == "" {
		r.logger.Warn("summary merge failed, keeping existing summary", "entity", name, "error", err)
		return existing
	}
	return out.Summary
}

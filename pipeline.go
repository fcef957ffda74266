package chronograph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chronograph-io/chronograph/pkg/audit"
	"github.com/chronograph-io/chronograph/pkg/dedup"
	"github.com/chronograph-io/chronograph/pkg/driver"
	"github.com/chronograph-io/chronograph/pkg/prompts"
	"github.com/chronograph-io/chronograph/pkg/types"
	"github.com/chronograph-io/chronograph/pkg/utils"
)

// AddEpisode runs the ingestion pipeline for one episode and blocks
// until it is persisted or failed. Episodes of one group run strictly
// one at a time, in submission order; different groups proceed in
// parallel. Persistence is all-or-nothing: a failure at any stage
// leaves the store exactly as it was.
func (c *Client) AddEpisode(ctx context.Context, episode *types.Episode) (*types.AddEpisodeResults, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	if !types.ValidGroupID(episode.GroupID) {
		return nil, pipelineErr(StageReceived, KindInvalidNamespace, types.ErrBadGroupID)
	}
	if err := episode.Validate(c.config.Pipeline.MaxEpisodeBytes); err != nil {
		return nil, pipelineErr(StageReceived, KindInvalidEpisode, err)
	}
	if episode.UUID == "" {
		episode.UUID = uuid.New().String()
	}
	if episode.CreatedAt.IsZero() {
		episode.CreatedAt = time.Now().UTC()
	}

	lock := c.groupLock(episode.GroupID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	results, err := c.runPipeline(ctx, episode)
	c.recordAudit(episode, results, err, time.Since(start))
	if err != nil {
		c.logger.Error("episode failed", "episode", episode.UUID, "group", episode.GroupID, "error", err)
		return nil, err
	}
	results.ProcessingTime = time.Since(start)
	c.logger.Info("episode persisted",
		"episode", episode.UUID,
		"group", episode.GroupID,
		"entities", len(results.Nodes),
		"edges", len(results.Edges),
		"invalidated", len(results.InvalidatedEdges),
		"duration", results.ProcessingTime)
	return results, nil
}

// AddEpisodeBulk submits episodes in order. One failed episode does not
// stop the rest; failures are reported per episode uuid.
func (c *Client) AddEpisodeBulk(ctx context.Context, episodes []*types.Episode) (*types.AddBulkResults, error) {
	bulk := &types.AddBulkResults{}
	for _, episode := range episodes {
		result, err := c.AddEpisode(ctx, episode)
		if err != nil {
			if bulk.Failed == nil {
				bulk.Failed = make(map[string]string)
			}
			key := episode.UUID
			if key == "" {
				key = episode.Name
			}
			bulk.Failed[key] = err.Error()
			continue
		}
		bulk.Results = append(bulk.Results, result)
	}
	return bulk, nil
}

func (c *Client) runPipeline(ctx context.Context, episode *types.Episode) (*types.AddEpisodeResults, error) {
	episodeNode := episode.Node()
	results := &types.AddEpisodeResults{Episode: episodeNode}

	previous, err := c.store.RecentEpisodes(ctx, episode.GroupID, episodeNode.Reference, c.config.Pipeline.ContextWindow)
	if err != nil {
		return nil, pipelineErr(StageExtracting, KindStoreUnavailable, err)
	}

	extraction, warnings, err := c.extract(ctx, episodeNode, previous)
	if err != nil {
		return nil, err
	}
	results.Warnings = append(results.Warnings, warnings...)

	candidates, warnings := c.buildCandidates(episode, extraction.Entities)
	results.Warnings = append(results.Warnings, warnings...)

	existing, err := c.store.GetNodesByGroup(ctx, episode.GroupID, types.EntityNodeType)
	if err != nil {
		return nil, pipelineErr(StageResolving, KindStoreUnavailable, err)
	}
	resolution, err := c.resolver.Resolve(ctx, candidates, existing, episode.Content)
	if err != nil {
		return nil, pipelineErr(StageResolving, KindCapabilityUnavailable, err)
	}
	results.CreatedNodeCount = len(resolution.Created)
	results.MergedNodeCount = len(resolution.Merged)

	newEdges, warnings := c.buildEdges(episode, extraction.Relationships, resolution)
	results.Warnings = append(results.Warnings, warnings...)

	if err := c.embedBatch(ctx, resolution, newEdges); err != nil {
		return nil, pipelineErr(StageResolving, KindCapabilityUnavailable, err)
	}

	batch := &driver.Batch{Nodes: []*types.Node{episodeNode}}
	for _, node := range resolution.Created {
		node.AddEpisodeID(episode.UUID)
		batch.Nodes = append(batch.Nodes, node)
		results.Nodes = append(results.Nodes, node)
	}
	for _, node := range resolution.Merged {
		node.AddEpisodeID(episode.UUID)
		node.UpdatedAt = time.Now().UTC()
		batch.Nodes = append(batch.Nodes, node)
		results.Nodes = append(results.Nodes, node)
	}

	kept, invalidated, touched, warnings := c.invalidate(ctx, episode, newEdges)
	results.Warnings = append(results.Warnings, warnings...)
	results.Edges = kept
	results.InvalidatedEdges = invalidated
	batch.Edges = append(batch.Edges, kept...)
	batch.Edges = append(batch.Edges, invalidated...)
	batch.Edges = append(batch.Edges, touched...)

	if err := c.store.ApplyBatch(ctx, episode.GroupID, batch); err != nil {
		return nil, pipelineErr(StagePersisted, KindStoreUnavailable, err)
	}

	if c.config.Pipeline.UpdateCommunities && len(resolution.Created) > 0 {
		created := make([]string, len(resolution.Created))
		for i, node := range resolution.Created {
			created[i] = node.UUID
		}
		communities, err := c.detector.Update(ctx, episode.GroupID, created)
		if err != nil {
			c.logger.Warn("community update failed", "episode", episode.UUID, "error", err)
			results.Warnings = append(results.Warnings, "community update failed: "+err.Error())
		} else {
			results.Communities = communities
		}
	}
	return results, nil
}

// extract runs the extraction call with a bounded reflexion loop: after
// each pass the model reviews its own output for missed entities and,
// if any, extraction reruns with those names as hints. Reflexion is
// advisory; its failure never fails the episode.
func (c *Client) extract(ctx context.Context, episodeNode *types.Node, previous []*types.Node) (*types.ExtractionResult, []string, error) {
	var warnings []string
	combined := &types.ExtractionResult{}
	entityIdx := make(map[string]int)
	relationKeys := make(map[string]bool)

	var hints []string
	attempts := c.config.Pipeline.MaxExtractionAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		var pass types.ExtractionResult
		messages := prompts.ExtractEntities(episodeNode, previous, c.schemas, hints)
		if err := c.llm.ChatStructured(ctx, messages, &pass); err != nil {
			return nil, nil, pipelineErr(StageExtracting, KindCapabilityUnavailable, err)
		}
		mergeExtraction(combined, &pass, entityIdx, relationKeys)

		if attempt == attempts {
			break
		}
		names := make([]string, len(combined.Entities))
		for i, entity := range combined.Entities {
			names[i] = entity.Name
		}
		var reflexion types.ReflexionResult
		if err := c.llm.ChatStructured(ctx, prompts.Reflexion(episodeNode, names), &reflexion); err != nil {
			c.logger.Warn("reflexion failed, accepting extraction as-is", "error", err)
			warnings = append(warnings, "reflexion unavailable: "+err.Error())
			break
		}
		if len(reflexion.MissedEntities) == 0 {
			break
		}
		hints = reflexion.MissedEntities
	}
	return combined, warnings, nil
}

// mergeExtraction folds one extraction pass into the accumulated
// result, keyed by normalized entity name and by relationship triple.
func mergeExtraction(combined, pass *types.ExtractionResult, entityIdx map[string]int, relationKeys map[string]bool) {
	for _, entity := range pass.Entities {
		key := utils.NormalizeName(entity.Name)
		if key == "" {
			continue
		}
		if i, ok := entityIdx[key]; ok {
			if combined.Entities[i].Summary == "" {
				combined.Entities[i].Summary = entity.Summary
			}
			continue
		}
		entityIdx[key] = len(combined.Entities)
		combined.Entities = append(combined.Entities, entity)
	}
	for _, rel := range pass.Relationships {
		key := utils.NormalizeName(rel.Source) + "|" + utils.NormalizeName(rel.Name) + "|" + utils.NormalizeName(rel.Target)
		if relationKeys[key] {
			continue
		}
		relationKeys[key] = true
		combined.Relationships = append(combined.Relationships, rel)
	}
}

// buildCandidates converts extracted entities into fresh nodes,
// enforcing entity-type schemas when declared: undeclared labels are
// dropped and undeclared or mistyped attributes are rejected with a
// warning rather than stored unchecked.
func (c *Client) buildCandidates(episode *types.Episode, entities []types.ExtractedEntity) ([]*types.Node, []string) {
	var warnings []string
	nodes := make([]*types.Node, 0, len(entities))
	for _, entity := range entities {
		if entity.Name == "" {
			continue
		}
		var labels []string
		attrs := entity.Attributes
		if entity.Label != "" {
			schema := c.schemas.Lookup(entity.Label)
			switch {
			case schema != nil:
				labels = []string{entity.Label}
				accepted, rejected := schema.ValidateAttributes(attrs)
				attrs = accepted
				for _, key := range rejected {
					warnings = append(warnings, fmt.Sprintf("entity %q: attribute %q rejected by schema %s", entity.Name, key, entity.Label))
				}
			case len(c.schemas) == 0:
				labels = []string{entity.Label}
			default:
				warnings = append(warnings, fmt.Sprintf("entity %q: undeclared label %q dropped", entity.Name, entity.Label))
				attrs = nil
			}
		}

		node := types.NewEntityNode(entity.Name, episode.GroupID, labels)
		node.Summary = entity.Summary
		node.Attributes = attrs
		node.AddEpisodeID(episode.UUID)
		nodes = append(nodes, node)
	}
	return nodes, warnings
}

// buildEdges rewrites extracted relationships onto canonical entity
// uuids. Relationships naming an entity the extraction pass did not
// produce are dropped with a warning.
func (c *Client) buildEdges(episode *types.Episode, relationships []types.ExtractedRelationship, resolution *dedup.Resolution) ([]*types.Edge, []string) {
	var warnings []string
	edges := make([]*types.Edge, 0, len(relationships))
	for _, rel := range relationships {
		source := resolution.ByName[utils.NormalizeName(rel.Source)]
		target := resolution.ByName[utils.NormalizeName(rel.Target)]
		if source == nil || target == nil {
			warnings = append(warnings, fmt.Sprintf("relationship %s dropped: unresolved endpoint %q or %q", rel.Name, rel.Source, rel.Target))
			continue
		}
		if source.UUID == target.UUID {
			continue
		}

		validAt := episode.Reference
		if rel.ValidAt != nil {
			validAt = *rel.ValidAt
		}
		edge := types.NewEdge(episode.GroupID, source.UUID, target.UUID, rel.Name, rel.Fact, validAt)
		edge.AddEpisodeID(episode.UUID)
		edges = append(edges, edge)
	}
	return edges, warnings
}

// embedBatch fills name embeddings for new and merged entities and fact
// embeddings for new edges in one batch call.
func (c *Client) embedBatch(ctx context.Context, resolution *dedup.Resolution, edges []*types.Edge) error {
	var texts []string
	var assign []func([]float32)

	for _, node := range append(append([]*types.Node{}, resolution.Created...), resolution.Merged...) {
		node := node
		texts = append(texts, node.Name)
		assign = append(assign, func(vec []float32) { node.NameEmbedding = vec })
	}
	for _, edge := range edges {
		edge := edge
		texts = append(texts, edge.Fact)
		assign = append(assign, func(vec []float32) { edge.FactEmbedding = vec })
	}
	if len(texts) == 0 {
		return nil
	}

	vectors, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed batch: %w", err)
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("embed batch returned %d vectors for %d texts", len(vectors), len(texts))
	}
	for i, vec := range vectors {
		assign[i](vec)
	}
	return nil
}

// invalidate reconciles each new edge against the open edges already
// recorded between the same entity pair. Restatements of an open fact,
// exact or judged corroborating under the same relation name, merge
// provenance into the existing edge so a (source, target, name) triple
// never carries two open edges; contradictions close the edge that
// became false, on whichever side is older. A failed judgment leaves
// both edges open with a warning: an unresolved conflict is recoverable,
// a wrong invalidation is not.
func (c *Client) invalidate(ctx context.Context, episode *types.Episode, newEdges []*types.Edge) (kept, invalidated, touched []*types.Edge, warnings []string) {
	threshold := c.config.Pipeline.RelationOverlapThreshold

	for _, edge := range newEdges {
		existing, err := c.store.GetEdgesBetween(ctx, episode.GroupID, edge.SourceID, edge.TargetID)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("edge %s: could not load prior edges: %v", edge.Name, err))
			kept = append(kept, edge)
			continue
		}
		// Edges persisted earlier in this same episode batch count too.
		existing = append(existing, kept...)

		duplicate := false
		for _, prior := range existing {
			if prior.UUID == edge.UUID {
				continue
			}
			overlaps, sameName := c.relationOverlap(edge, prior, threshold)
			if !overlaps || !prior.IsOpen() {
				continue
			}

			if sameName && prior.Fact == edge.Fact {
				prior.AddEpisodeID(episode.UUID)
				touched = append(touched, prior)
				duplicate = true
				break
			}

			var verdict types.ContradictionVerdict
			if err := c.llm.ChatStructured(ctx, prompts.JudgeContradiction(edge, prior), &verdict); err != nil {
				warnings = append(warnings, fmt.Sprintf("temporal conflict between %q and %q unresolved: %v", edge.Fact, prior.Fact, err))
				continue
			}
			if !verdict.Contradicts {
				if sameName {
					// A corroborating paraphrase under the same relation
					// name restates the open fact; a second open edge for
					// the triple would break temporal exclusivity.
					prior.AddEpisodeID(episode.UUID)
					touched = append(touched, prior)
					duplicate = true
					break
				}
				continue
			}

			if !prior.ValidAt.After(edge.ValidAt) {
				prior.Close(edge.ValidAt, edge.UUID)
				invalidated = append(invalidated, prior)
			} else {
				// Retroactive ingestion: the new fact was already
				// superseded by what the graph knows.
				edge.Close(prior.ValidAt, prior.UUID)
			}
		}
		if !duplicate {
			kept = append(kept, edge)
		}
	}
	return kept, invalidated, touched, warnings
}

// relationOverlap reports whether two edges describe the same relation:
// either the same normalized name, or distinct names whose fact
// embeddings are closer than threshold.
func (c *Client) relationOverlap(a, b *types.Edge, threshold float64) (overlaps, sameName bool) {
	if a.SourceID != b.SourceID || a.TargetID != b.TargetID {
		return false, false
	}
	if utils.NormalizeName(a.Name) == utils.NormalizeName(b.Name) {
		return true, true
	}
	if len(a.FactEmbedding) == 0 || len(b.FactEmbedding) == 0 {
		return false, false
	}
	return utils.CosineSimilarity(a.FactEmbedding, b.FactEmbedding) >= threshold, false
}

func (c *Client) recordAudit(episode *types.Episode, results *types.AddEpisodeResults, err error, elapsed time.Duration) {
	if c.auditor == nil {
		return
	}
	record := audit.Record{
		EpisodeUUID: episode.UUID,
		GroupID:     episode.GroupID,
		Stage:       string(StagePersisted),
		Succeeded:   err == nil,
		DurationMS:  elapsed.Milliseconds(),
	}
	if err != nil {
		record.Stage = string(StageFailed)
		record.Error = err.Error()
		var perr *PipelineError
		if errors.As(err, &perr) {
			record.Stage = string(perr.Stage)
		}
	}
	if results != nil {
		record.EntityCount = int32(len(results.Nodes))
		record.EdgeCount = int32(len(results.Edges))
		record.InvalidatedCount = int32(len(results.InvalidatedEdges))
		record.CreatedNodes = int32(results.CreatedNodeCount)
		record.MergedNodes = int32(results.MergedNodeCount)
		record.WarningCount = int32(len(results.Warnings))
	}
	c.auditor.Append(record)
}

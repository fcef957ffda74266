package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/chronograph-io/chronograph/pkg/types"
)

// Neo4jDriver is the shared-deployment backend. Nodes carry a label per
// node type plus any entity-type labels; relationship edges are RELATES_TO
// relationships keyed by uuid.
type Neo4jDriver struct {
	client     neo4j.DriverWithContext
	database   string
	dimensions int
	logger     *slog.Logger
}

// Neo4jConfig parameterizes the Neo4j connection.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
	// VectorDimensions is the width of the stored embeddings; the vector
	// indexes are declared with it. Defaults to 1536.
	VectorDimensions int
}

// NewNeo4jDriver connects to a Neo4j instance.
func NewNeo4jDriver(config Neo4jConfig, logger *slog.Logger) (*Neo4jDriver, error) {
	client, err := neo4j.NewDriverWithContext(config.URI, neo4j.BasicAuth(config.Username, config.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if config.Database == "" {
		config.Database = "neo4j"
	}
	if config.VectorDimensions <= 0 {
		config.VectorDimensions = 1536
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Neo4jDriver{client: client, database: config.Database, dimensions: config.VectorDimensions, logger: logger}, nil
}

func (d *Neo4jDriver) session(ctx context.Context) neo4j.SessionWithContext {
	return d.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: d.database})
}

func typeLabel(nodeType types.NodeType) string {
	switch nodeType {
	case types.EpisodicNodeType:
		return "Episodic"
	case types.CommunityNodeType:
		return "Community"
	default:
		return "Entity"
	}
}

// nodeProperties flattens a node for SET n += $props. Nested values
// (attributes, members, provenance) are stored as JSON strings because
// Neo4j properties cannot hold maps.
func nodeProperties(node *types.Node) (map[string]any, error) {
	props := map[string]any{
		"uuid":       node.UUID,
		"name":       node.Name,
		"type":       string(node.Type),
		"group_id":   node.GroupID,
		"created_at": node.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": node.UpdatedAt.Format(time.RFC3339Nano),
		"summary":    node.Summary,
		"content":    node.Content,
		"source":     node.Source,
		"source_tag": string(node.SourceTag),
		"level":      node.Level,
	}
	if !node.Reference.IsZero() {
		props["reference"] = node.Reference.Format(time.RFC3339Nano)
	}
	if len(node.Labels) > 0 {
		props["labels"] = toAnySlice(node.Labels)
	}
	if len(node.Members) > 0 {
		props["members"] = toAnySlice(node.Members)
	}
	if len(node.EpisodeIDs) > 0 {
		props["episode_ids"] = toAnySlice(node.EpisodeIDs)
	}
	if len(node.NameEmbedding) > 0 {
		props["name_embedding"] = embeddingToAny(node.NameEmbedding)
	}
	if len(node.Attributes) > 0 {
		raw, err := json.Marshal(node.Attributes)
		if err != nil {
			return nil, fmt.Errorf("marshal node attributes: %w", err)
		}
		props["attributes"] = string(raw)
	}
	return props, nil
}

func edgeProperties(edge *types.Edge) map[string]any {
	props := map[string]any{
		"uuid":       edge.UUID,
		"group_id":   edge.GroupID,
		"name":       edge.Name,
		"fact":       edge.Fact,
		"created_at": edge.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": edge.UpdatedAt.Format(time.RFC3339Nano),
		"valid_at":   edge.ValidAt.Format(time.RFC3339Nano),
	}
	if edge.InvalidAt != nil {
		props["invalid_at"] = edge.InvalidAt.Format(time.RFC3339Nano)
	}
	if len(edge.InvalidatedBy) > 0 {
		props["invalidated_by"] = toAnySlice(edge.InvalidatedBy)
	}
	if len(edge.EpisodeIDs) > 0 {
		props["episode_ids"] = toAnySlice(edge.EpisodeIDs)
	}
	if len(edge.FactEmbedding) > 0 {
		props["fact_embedding"] = embeddingToAny(edge.FactEmbedding)
	}
	return props
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func embeddingToAny(embedding []float32) []any {
	out := make([]any, len(embedding))
	for i, v := range embedding {
		out[i] = float64(v)
	}
	return out
}

func nodeFromProperties(props map[string]any) *types.Node {
	node := &types.Node{
		UUID:      stringProp(props, "uuid"),
		Name:      stringProp(props, "name"),
		Type:      types.NodeType(stringProp(props, "type")),
		GroupID:   stringProp(props, "group_id"),
		Summary:   stringProp(props, "summary"),
		Content:   stringProp(props, "content"),
		Source:    stringProp(props, "source"),
		SourceTag: types.EpisodeKind(stringProp(props, "source_tag")),
		CreatedAt: timeProp(props, "created_at"),
		UpdatedAt: timeProp(props, "updated_at"),
		Reference: timeProp(props, "reference"),
	}
	if level, ok := props["level"].(int64); ok {
		node.Level = int(level)
	}
	node.Labels = stringSliceProp(props, "labels")
	node.Members = stringSliceProp(props, "members")
	node.EpisodeIDs = stringSliceProp(props, "episode_ids")
	node.NameEmbedding = embeddingProp(props, "name_embedding")
	if raw := stringProp(props, "attributes"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &node.Attributes)
	}
	return node
}

func edgeFromProperties(props map[string]any, sourceID, targetID string) *types.Edge {
	edge := &types.Edge{
		UUID:      stringProp(props, "uuid"),
		GroupID:   stringProp(props, "group_id"),
		SourceID:  sourceID,
		TargetID:  targetID,
		Name:      stringProp(props, "name"),
		Fact:      stringProp(props, "fact"),
		CreatedAt: timeProp(props, "created_at"),
		UpdatedAt: timeProp(props, "updated_at"),
		ValidAt:   timeProp(props, "valid_at"),
	}
	if invalid := timeProp(props, "invalid_at"); !invalid.IsZero() {
		edge.InvalidAt = &invalid
	}
	edge.InvalidatedBy = stringSliceProp(props, "invalidated_by")
	edge.EpisodeIDs = stringSliceProp(props, "episode_ids")
	edge.FactEmbedding = embeddingProp(props, "fact_embedding")
	return edge
}

func stringProp(props map[string]any, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}

func timeProp(props map[string]any, key string) time.Time {
	switch v := props[key].(type) {
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err == nil {
			return t
		}
	case dbtype.Time:
		return v.Time()
	case time.Time:
		return v
	}
	return time.Time{}
}

func stringSliceProp(props map[string]any, key string) []string {
	raw, ok := props[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func embeddingProp(props map[string]any, key string) []float32 {
	raw, ok := props[key].([]any)
	if !ok {
		return nil
	}
	out := make([]float32, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(float64); ok {
			out = append(out, float32(f))
		}
	}
	return out
}

func (d *Neo4jDriver) UpsertNode(ctx context.Context, node *types.Node) error {
	return d.UpsertNodes(ctx, []*types.Node{node})
}

func (d *Neo4jDriver) UpsertNodes(ctx context.Context, nodes []*types.Node) error {
	session := d.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, node := range nodes {
			if err := node.ValidateForCreate(); err != nil {
				return nil, err
			}
			if err := upsertNodeTx(ctx, tx, node); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func upsertNodeTx(ctx context.Context, tx neo4j.ManagedTransaction, node *types.Node) error {
	props, err := nodeProperties(node)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		MERGE (n:%s {uuid: $uuid, group_id: $group_id})
		SET n += $props
	`, typeLabel(node.Type))
	_, err = tx.Run(ctx, query, map[string]any{
		"uuid":     node.UUID,
		"group_id": node.GroupID,
		"props":    props,
	})
	return err
}

func (d *Neo4jDriver) GetNode(ctx context.Context, uuid, groupID string) (*types.Node, error) {
	nodes, err := d.readNodes(ctx, `
		MATCH (n {uuid: $uuid, group_id: $group_id})
		RETURN n
	`, map[string]any{"uuid": uuid, "group_id": groupID})
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, ErrNotFound
	}
	return nodes[0], nil
}

func (d *Neo4jDriver) GetNodes(ctx context.Context, uuids []string, groupID string) ([]*types.Node, error) {
	return d.readNodes(ctx, `
		MATCH (n {group_id: $group_id})
		WHERE n.uuid IN $uuids
		RETURN n
	`, map[string]any{"uuids": uuids, "group_id": groupID})
}

func (d *Neo4jDriver) GetNodesByGroup(ctx context.Context, groupID string, nodeType types.NodeType) ([]*types.Node, error) {
	query := fmt.Sprintf(`
		MATCH (n:%s {group_id: $group_id})
		RETURN n
	`, typeLabel(nodeType))
	return d.readNodes(ctx, query, map[string]any{"group_id": groupID})
}

// readNodes runs a read query whose first return column is a node.
func (d *Neo4jDriver) readNodes(ctx context.Context, query string, params map[string]any) ([]*types.Node, error) {
	session := d.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		var nodes []*types.Node
		for res.Next(ctx) {
			value, found := res.Record().Get("n")
			if !found {
				continue
			}
			dbNode, ok := value.(dbtype.Node)
			if !ok {
				return nil, fmt.Errorf("unexpected node record type %T", value)
			}
			nodes = append(nodes, nodeFromProperties(dbNode.Props))
		}
		return nodes, res.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]*types.Node), nil
}

func (d *Neo4jDriver) UpsertEdge(ctx context.Context, edge *types.Edge) error {
	session := d.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, upsertEdgeTx(ctx, tx, edge)
	})
	return err
}

func upsertEdgeTx(ctx context.Context, tx neo4j.ManagedTransaction, edge *types.Edge) error {
	if err := edge.Validate(); err != nil {
		return err
	}
	query := `
		MATCH (a {uuid: $source, group_id: $group_id})
		MATCH (b {uuid: $target, group_id: $group_id})
		MERGE (a)-[r:RELATES_TO {uuid: $uuid}]->(b)
		SET r += $props
	`
	_, err := tx.Run(ctx, query, map[string]any{
		"source":   edge.SourceID,
		"target":   edge.TargetID,
		"group_id": edge.GroupID,
		"uuid":     edge.UUID,
		"props":    edgeProperties(edge),
	})
	return err
}

// readEdges runs a read query returning (r, source, target) columns.
func (d *Neo4jDriver) readEdges(ctx context.Context, query string, params map[string]any) ([]*types.Edge, error) {
	session := d.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		var edges []*types.Edge
		for res.Next(ctx) {
			record := res.Record()
			value, found := record.Get("r")
			if !found {
				continue
			}
			rel, ok := value.(dbtype.Relationship)
			if !ok {
				return nil, fmt.Errorf("unexpected edge record type %T", value)
			}
			source, _ := record.Get("source")
			target, _ := record.Get("target")
			sourceID, _ := source.(string)
			targetID, _ := target.(string)
			edges = append(edges, edgeFromProperties(rel.Props, sourceID, targetID))
		}
		return edges, res.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]*types.Edge), nil
}

func (d *Neo4jDriver) GetEdge(ctx context.Context, uuid, groupID string) (*types.Edge, error) {
	edges, err := d.readEdges(ctx, `
		MATCH (a)-[r:RELATES_TO {uuid: $uuid, group_id: $group_id}]->(b)
		RETURN r, a.uuid AS source, b.uuid AS target
	`, map[string]any{"uuid": uuid, "group_id": groupID})
	if err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return nil, ErrNotFound
	}
	return edges[0], nil
}

func (d *Neo4jDriver) GetEdgesByGroup(ctx context.Context, groupID string) ([]*types.Edge, error) {
	return d.readEdges(ctx, `
		MATCH (a)-[r:RELATES_TO {group_id: $group_id}]->(b)
		RETURN r, a.uuid AS source, b.uuid AS target
	`, map[string]any{"group_id": groupID})
}

func (d *Neo4jDriver) GetEdgesBetween(ctx context.Context, groupID, nodeA, nodeB string) ([]*types.Edge, error) {
	return d.readEdges(ctx, `
		MATCH (a {group_id: $group_id})-[r:RELATES_TO]-(b {group_id: $group_id})
		WHERE a.uuid = $node_a AND b.uuid = $node_b
		RETURN DISTINCT r, startNode(r).uuid AS source, endNode(r).uuid AS target
	`, map[string]any{"group_id": groupID, "node_a": nodeA, "node_b": nodeB})
}

func (d *Neo4jDriver) GetEdgesForNode(ctx context.Context, groupID, nodeUUID string) ([]*types.Edge, error) {
	return d.readEdges(ctx, `
		MATCH (a {uuid: $uuid, group_id: $group_id})-[r:RELATES_TO]-(b)
		RETURN DISTINCT r, startNode(r).uuid AS source, endNode(r).uuid AS target
	`, map[string]any{"uuid": nodeUUID, "group_id": groupID})
}

func (d *Neo4jDriver) GetEdgesAt(ctx context.Context, groupID string, ts time.Time) ([]*types.Edge, error) {
	return d.readEdges(ctx, `
		MATCH (a)-[r:RELATES_TO {group_id: $group_id}]->(b)
		WHERE r.valid_at <= $ts AND (r.invalid_at IS NULL OR r.invalid_at > $ts)
		RETURN r, a.uuid AS source, b.uuid AS target
	`, map[string]any{"group_id": groupID, "ts": ts.Format(time.RFC3339Nano)})
}

func (d *Neo4jDriver) GetNodeNeighbors(ctx context.Context, groupID, nodeUUID string) ([]types.Neighbor, error) {
	session := d.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (a {uuid: $uuid, group_id: $group_id})-[r:RELATES_TO]-(b)
			RETURN b.uuid AS neighbor, count(r) AS edge_count
			ORDER BY neighbor
		`, map[string]any{"uuid": nodeUUID, "group_id": groupID})
		if err != nil {
			return nil, err
		}
		var neighbors []types.Neighbor
		for res.Next(ctx) {
			record := res.Record()
			id, _ := record.Get("neighbor")
			count, _ := record.Get("edge_count")
			neighborID, _ := id.(string)
			edgeCount, _ := count.(int64)
			neighbors = append(neighbors, types.Neighbor{NodeUUID: neighborID, EdgeCount: int(edgeCount)})
		}
		return neighbors, res.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]types.Neighbor), nil
}

func (d *Neo4jDriver) RecentEpisodes(ctx context.Context, groupID string, ts time.Time, limit int) ([]*types.Node, error) {
	return d.readNodes(ctx, `
		MATCH (n:Episodic {group_id: $group_id})
		WHERE n.reference <= $ts
		RETURN n
		ORDER BY n.reference DESC
		LIMIT $limit
	`, map[string]any{"group_id": groupID, "ts": ts.Format(time.RFC3339Nano), "limit": limit})
}

func (d *Neo4jDriver) SearchNodesByEmbedding(ctx context.Context, embedding []float32, groupID string, limit int) ([]*types.Node, error) {
	return d.readNodes(ctx, `
		CALL db.index.vector.queryNodes('entity_name_embedding', $limit, $embedding)
		YIELD node AS n, score
		WHERE n.group_id = $group_id
		RETURN n
	`, map[string]any{"embedding": embeddingToAny(embedding), "group_id": groupID, "limit": limit})
}

func (d *Neo4jDriver) SearchEdgesByEmbedding(ctx context.Context, embedding []float32, groupID string, limit int) ([]*types.Edge, error) {
	return d.readEdges(ctx, `
		CALL db.index.vector.queryRelationships('edge_fact_embedding', $limit, $embedding)
		YIELD relationship AS r, score
		WHERE r.group_id = $group_id
		RETURN r, startNode(r).uuid AS source, endNode(r).uuid AS target
	`, map[string]any{"embedding": embeddingToAny(embedding), "group_id": groupID, "limit": limit})
}

func (d *Neo4jDriver) SearchNodes(ctx context.Context, query, groupID string, limit int) ([]*types.Node, error) {
	return d.readNodes(ctx, `
		CALL db.index.fulltext.queryNodes('entity_name_and_summary', $query)
		YIELD node AS n, score
		WHERE n.group_id = $group_id
		RETURN n
		LIMIT $limit
	`, map[string]any{"query": query, "group_id": groupID, "limit": limit})
}

func (d *Neo4jDriver) SearchEdges(ctx context.Context, query, groupID string, limit int) ([]*types.Edge, error) {
	return d.readEdges(ctx, `
		CALL db.index.fulltext.queryRelationships('edge_fact_text', $query)
		YIELD relationship AS r, score
		WHERE r.group_id = $group_id
		RETURN r, startNode(r).uuid AS source, endNode(r).uuid AS target
		LIMIT $limit
	`, map[string]any{"query": query, "group_id": groupID, "limit": limit})
}

func (d *Neo4jDriver) ApplyBatch(ctx context.Context, groupID string, batch *Batch) error {
	if batch.Empty() {
		return nil
	}
	session := d.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, node := range batch.Nodes {
			if err := node.ValidateForCreate(); err != nil {
				return nil, err
			}
			if node.GroupID != groupID {
				return nil, fmt.Errorf("batch node %s belongs to group %q, not %q", node.UUID, node.GroupID, groupID)
			}
			if err := upsertNodeTx(ctx, tx, node); err != nil {
				return nil, err
			}
		}
		for _, edge := range batch.Edges {
			if edge.GroupID != groupID {
				return nil, fmt.Errorf("batch edge %s belongs to group %q, not %q", edge.UUID, edge.GroupID, groupID)
			}
			if err := upsertEdgeTx(ctx, tx, edge); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (d *Neo4jDriver) ReplaceCommunities(ctx context.Context, groupID string, communities []*types.Node) error {
	session := d.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MATCH (c:Community {group_id: $group_id})
			DETACH DELETE c
		`, map[string]any{"group_id": groupID})
		if err != nil {
			return nil, err
		}
		for _, community := range communities {
			if err := upsertNodeTx(ctx, tx, community); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (d *Neo4jDriver) RemoveEpisode(ctx context.Context, groupID, episodeUUID string) error {
	session := d.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// Drop the episode from provenance lists, then delete whatever
		// has no supporting episode left.
		queries := []string{
			`MATCH (n:Entity {group_id: $group_id})
			 WHERE $episode IN n.episode_ids
			 SET n.episode_ids = [id IN n.episode_ids WHERE id <> $episode]`,
			`MATCH ()-[r:RELATES_TO {group_id: $group_id}]-()
			 WHERE $episode IN r.episode_ids
			 SET r.episode_ids = [id IN r.episode_ids WHERE id <> $episode]`,
			`MATCH ()-[r:RELATES_TO {group_id: $group_id}]-()
			 WHERE size(coalesce(r.episode_ids, [])) = 0
			 DELETE r`,
			`MATCH (n:Entity {group_id: $group_id})
			 WHERE size(coalesce(n.episode_ids, [])) = 0
			 DETACH DELETE n`,
			`MATCH (e:Episodic {uuid: $episode, group_id: $group_id})
			 DETACH DELETE e`,
		}
		params := map[string]any{"group_id": groupID, "episode": episodeUUID}
		for _, query := range queries {
			if _, err := tx.Run(ctx, query, params); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (d *Neo4jDriver) DeleteGroup(ctx context.Context, groupID string) error {
	session := d.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MATCH (n {group_id: $group_id})
			DETACH DELETE n
		`, map[string]any{"group_id": groupID})
		return nil, err
	})
	return err
}

// indexStatements lists the schema DDL CreateIndices applies, including
// the vector indexes the embedding searches query.
func (d *Neo4jDriver) indexStatements() []string {
	return []string{
		`CREATE CONSTRAINT entity_uuid IF NOT EXISTS FOR (n:Entity) REQUIRE n.uuid IS UNIQUE`,
		`CREATE CONSTRAINT episodic_uuid IF NOT EXISTS FOR (n:Episodic) REQUIRE n.uuid IS UNIQUE`,
		`CREATE CONSTRAINT community_uuid IF NOT EXISTS FOR (n:Community) REQUIRE n.uuid IS UNIQUE`,
		`CREATE INDEX entity_group IF NOT EXISTS FOR (n:Entity) ON (n.group_id)`,
		`CREATE INDEX episodic_reference IF NOT EXISTS FOR (n:Episodic) ON (n.group_id, n.reference)`,
		`CREATE FULLTEXT INDEX entity_name_and_summary IF NOT EXISTS
		 FOR (n:Entity) ON EACH [n.name, n.summary]`,
		`CREATE FULLTEXT INDEX edge_fact_text IF NOT EXISTS
		 FOR ()-[r:RELATES_TO]-() ON EACH [r.fact, r.name]`,
		fmt.Sprintf(`CREATE VECTOR INDEX entity_name_embedding IF NOT EXISTS
		 FOR (n:Entity) ON (n.name_embedding)
		 OPTIONS {indexConfig: {`+"`vector.dimensions`"+`: %d, `+"`vector.similarity_function`"+`: 'cosine'}}`, d.dimensions),
		fmt.Sprintf(`CREATE VECTOR INDEX edge_fact_embedding IF NOT EXISTS
		 FOR ()-[r:RELATES_TO]-() ON (r.fact_embedding)
		 OPTIONS {indexConfig: {`+"`vector.dimensions`"+`: %d, `+"`vector.similarity_function`"+`: 'cosine'}}`, d.dimensions),
	}
}

func (d *Neo4jDriver) CreateIndices(ctx context.Context) error {
	session := d.session(ctx)
	defer session.Close(ctx)

	for _, statement := range d.indexStatements() {
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			_, err := tx.Run(ctx, statement, nil)
			return nil, err
		})
		if err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

func (d *Neo4jDriver) Provider() Provider { return ProviderNeo4j }

func (d *Neo4jDriver) Close() error {
	return d.client.Close(context.Background())
}

var _ GraphDriver = (*Neo4jDriver)(nil)

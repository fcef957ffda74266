package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/chronograph-io/chronograph/pkg/types"
	"github.com/chronograph-io/chronograph/pkg/utils"
)

// Key layout. Everything is group-prefixed so that scans, deletes, and
// searches stay inside one group's keyspace.
//
//	n:<group>:<uuid>  node JSON
//	e:<group>:<uuid>  edge JSON
const (
	nodePrefix = "n:"
	edgePrefix = "e:"
)

// BadgerDriver is the embedded backend. Retrieval walks group-scoped
// prefix scans and ranks in memory, which holds up well at the
// single-process scale this backend targets.
type BadgerDriver struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewBadgerDriver opens (or creates) a Badger store at path. An empty
// path opens an in-memory store, used by tests.
func NewBadgerDriver(path string, logger *slog.Logger) (*BadgerDriver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &BadgerDriver{db: db, logger: logger}, nil
}

func nodeKey(groupID, uuid string) []byte {
	return []byte(nodePrefix + groupID + ":" + uuid)
}

func edgeKey(groupID, uuid string) []byte {
	return []byte(edgePrefix + groupID + ":" + uuid)
}

func setJSON(txn *badger.Txn, key []byte, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return txn.Set(key, raw)
}

func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		return err
	}
	return item.Value(func(raw []byte) error {
		return json.Unmarshal(raw, out)
	})
}

// scanPrefix invokes fn with each decoded value under the prefix.
func scanPrefix[T any](txn *badger.Txn, prefix []byte, fn func(*T) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		var value T
		err := it.Item().Value(func(raw []byte) error {
			return json.Unmarshal(raw, &value)
		})
		if err != nil {
			return err
		}
		if err := fn(&value); err != nil {
			return err
		}
	}
	return nil
}

func (d *BadgerDriver) UpsertNode(ctx context.Context, node *types.Node) error {
	if err := node.ValidateForCreate(); err != nil {
		return err
	}
	return d.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, nodeKey(node.GroupID, node.UUID), node)
	})
}

func (d *BadgerDriver) UpsertNodes(ctx context.Context, nodes []*types.Node) error {
	return d.db.Update(func(txn *badger.Txn) error {
		for _, node := range nodes {
			if err := node.ValidateForCreate(); err != nil {
				return err
			}
			if err := setJSON(txn, nodeKey(node.GroupID, node.UUID), node); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *BadgerDriver) GetNode(ctx context.Context, uuid, groupID string) (*types.Node, error) {
	var node types.Node
	err := d.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, nodeKey(groupID, uuid), &node)
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (d *BadgerDriver) GetNodes(ctx context.Context, uuids []string, groupID string) ([]*types.Node, error) {
	nodes := make([]*types.Node, 0, len(uuids))
	err := d.db.View(func(txn *badger.Txn) error {
		for _, id := range uuids {
			var node types.Node
			if err := getJSON(txn, nodeKey(groupID, id), &node); err != nil {
				if err == ErrNotFound {
					continue
				}
				return err
			}
			nodes = append(nodes, &node)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

func (d *BadgerDriver) GetNodesByGroup(ctx context.Context, groupID string, nodeType types.NodeType) ([]*types.Node, error) {
	var nodes []*types.Node
	err := d.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, []byte(nodePrefix+groupID+":"), func(node *types.Node) error {
			if node.Type == nodeType {
				nodes = append(nodes, node)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

func (d *BadgerDriver) UpsertEdge(ctx context.Context, edge *types.Edge) error {
	if err := edge.Validate(); err != nil {
		return err
	}
	return d.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, edgeKey(edge.GroupID, edge.UUID), edge)
	})
}

func (d *BadgerDriver) GetEdge(ctx context.Context, uuid, groupID string) (*types.Edge, error) {
	var edge types.Edge
	err := d.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, edgeKey(groupID, uuid), &edge)
	})
	if err != nil {
		return nil, err
	}
	return &edge, nil
}

func (d *BadgerDriver) GetEdgesByGroup(ctx context.Context, groupID string) ([]*types.Edge, error) {
	var edges []*types.Edge
	err := d.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, []byte(edgePrefix+groupID+":"), func(edge *types.Edge) error {
			edges = append(edges, edge)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return edges, nil
}

func (d *BadgerDriver) GetEdgesBetween(ctx context.Context, groupID, nodeA, nodeB string) ([]*types.Edge, error) {
	all, err := d.GetEdgesByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	var edges []*types.Edge
	for _, e := range all {
		if (e.SourceID == nodeA && e.TargetID == nodeB) || (e.SourceID == nodeB && e.TargetID == nodeA) {
			edges = append(edges, e)
		}
	}
	return edges, nil
}

func (d *BadgerDriver) GetEdgesForNode(ctx context.Context, groupID, nodeUUID string) ([]*types.Edge, error) {
	all, err := d.GetEdgesByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	var edges []*types.Edge
	for _, e := range all {
		if e.SourceID == nodeUUID || e.TargetID == nodeUUID {
			edges = append(edges, e)
		}
	}
	return edges, nil
}

func (d *BadgerDriver) GetEdgesAt(ctx context.Context, groupID string, ts time.Time) ([]*types.Edge, error) {
	all, err := d.GetEdgesByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	var edges []*types.Edge
	for _, e := range all {
		if e.ValidDuring(ts) {
			edges = append(edges, e)
		}
	}
	return edges, nil
}

func (d *BadgerDriver) GetNodeNeighbors(ctx context.Context, groupID, nodeUUID string) ([]types.Neighbor, error) {
	edges, err := d.GetEdgesForNode(ctx, groupID, nodeUUID)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, e := range edges {
		other := e.SourceID
		if other == nodeUUID {
			other = e.TargetID
		}
		if other == nodeUUID {
			continue
		}
		counts[other]++
	}
	neighbors := make([]types.Neighbor, 0, len(counts))
	for id, count := range counts {
		neighbors = append(neighbors, types.Neighbor{NodeUUID: id, EdgeCount: count})
	}
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].NodeUUID < neighbors[j].NodeUUID })
	return neighbors, nil
}

func (d *BadgerDriver) RecentEpisodes(ctx context.Context, groupID string, ts time.Time, limit int) ([]*types.Node, error) {
	episodes, err := d.GetNodesByGroup(ctx, groupID, types.EpisodicNodeType)
	if err != nil {
		return nil, err
	}
	filtered := episodes[:0]
	for _, ep := range episodes {
		if !ep.Reference.After(ts) {
			filtered = append(filtered, ep)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Reference.After(filtered[j].Reference) })
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

func (d *BadgerDriver) SearchNodesByEmbedding(ctx context.Context, embedding []float32, groupID string, limit int) ([]*types.Node, error) {
	nodes, err := d.GetNodesByGroup(ctx, groupID, types.EntityNodeType)
	if err != nil {
		return nil, err
	}
	type scored struct {
		node  *types.Node
		score float64
	}
	candidates := make([]scored, 0, len(nodes))
	for _, node := range nodes {
		if len(node.NameEmbedding) == 0 {
			continue
		}
		candidates = append(candidates, scored{node, utils.CosineSimilarity(embedding, node.NameEmbedding)})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]*types.Node, len(candidates))
	for i, c := range candidates {
		out[i] = c.node
	}
	return out, nil
}

func (d *BadgerDriver) SearchEdgesByEmbedding(ctx context.Context, embedding []float32, groupID string, limit int) ([]*types.Edge, error) {
	edges, err := d.GetEdgesByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	type scored struct {
		edge  *types.Edge
		score float64
	}
	candidates := make([]scored, 0, len(edges))
	for _, edge := range edges {
		if len(edge.FactEmbedding) == 0 {
			continue
		}
		candidates = append(candidates, scored{edge, utils.CosineSimilarity(embedding, edge.FactEmbedding)})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]*types.Edge, len(candidates))
	for i, c := range candidates {
		out[i] = c.edge
	}
	return out, nil
}

func (d *BadgerDriver) SearchNodes(ctx context.Context, query, groupID string, limit int) ([]*types.Node, error) {
	tokens := utils.Tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	nodes, err := d.GetNodesByGroup(ctx, groupID, types.EntityNodeType)
	if err != nil {
		return nil, err
	}
	var matches []*types.Node
	for _, node := range nodes {
		haystack := strings.ToLower(node.Name + " " + node.Summary)
		for _, tok := range tokens {
			if strings.Contains(haystack, tok) {
				matches = append(matches, node)
				break
			}
		}
		if limit > 0 && len(matches) >= limit {
			break
		}
	}
	return matches, nil
}

func (d *BadgerDriver) SearchEdges(ctx context.Context, query, groupID string, limit int) ([]*types.Edge, error) {
	tokens := utils.Tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	edges, err := d.GetEdgesByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	var matches []*types.Edge
	for _, edge := range edges {
		haystack := strings.ToLower(edge.Fact + " " + edge.Name)
		for _, tok := range tokens {
			if strings.Contains(haystack, tok) {
				matches = append(matches, edge)
				break
			}
		}
		if limit > 0 && len(matches) >= limit {
			break
		}
	}
	return matches, nil
}

func (d *BadgerDriver) ApplyBatch(ctx context.Context, groupID string, batch *Batch) error {
	if batch.Empty() {
		return nil
	}
	return d.db.Update(func(txn *badger.Txn) error {
		for _, node := range batch.Nodes {
			if err := node.ValidateForCreate(); err != nil {
				return err
			}
			if node.GroupID != groupID {
				return fmt.Errorf("batch node %s belongs to group %q, not %q", node.UUID, node.GroupID, groupID)
			}
			if err := setJSON(txn, nodeKey(groupID, node.UUID), node); err != nil {
				return err
			}
		}
		for _, edge := range batch.Edges {
			if err := edge.Validate(); err != nil {
				return err
			}
			if edge.GroupID != groupID {
				return fmt.Errorf("batch edge %s belongs to group %q, not %q", edge.UUID, edge.GroupID, groupID)
			}
			if err := setJSON(txn, edgeKey(groupID, edge.UUID), edge); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *BadgerDriver) ReplaceCommunities(ctx context.Context, groupID string, communities []*types.Node) error {
	return d.db.Update(func(txn *badger.Txn) error {
		var stale [][]byte
		err := scanKeys(txn, []byte(nodePrefix+groupID+":"), func(key []byte, node *types.Node) error {
			if node.Type == types.CommunityNodeType {
				stale = append(stale, key)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		for _, community := range communities {
			if err := setJSON(txn, nodeKey(groupID, community.UUID), community); err != nil {
				return err
			}
		}
		return nil
	})
}

// scanKeys is scanPrefix with access to the key, for delete passes.
func scanKeys[T any](txn *badger.Txn, prefix []byte, fn func(key []byte, value *T) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		var value T
		err := item.Value(func(raw []byte) error {
			return json.Unmarshal(raw, &value)
		})
		if err != nil {
			return err
		}
		if err := fn(key, &value); err != nil {
			return err
		}
	}
	return nil
}

func (d *BadgerDriver) RemoveEpisode(ctx context.Context, groupID, episodeUUID string) error {
	return d.db.Update(func(txn *badger.Txn) error {
		var episode types.Node
		if err := getJSON(txn, nodeKey(groupID, episodeUUID), &episode); err != nil {
			return err
		}
		if episode.Type != types.EpisodicNodeType {
			return fmt.Errorf("node %s is not an episode", episodeUUID)
		}

		orphaned := make(map[string]bool)
		var rewriteNodes []*types.Node
		var dropNodes [][]byte
		err := scanKeys(txn, []byte(nodePrefix+groupID+":"), func(key []byte, node *types.Node) error {
			if node.Type != types.EntityNodeType || !removeProvenance(&node.EpisodeIDs, episodeUUID) {
				return nil
			}
			if len(node.EpisodeIDs) == 0 {
				orphaned[node.UUID] = true
				dropNodes = append(dropNodes, key)
				return nil
			}
			rewriteNodes = append(rewriteNodes, node)
			return nil
		})
		if err != nil {
			return err
		}

		var rewriteEdges []*types.Edge
		var dropEdges [][]byte
		err = scanKeys(txn, []byte(edgePrefix+groupID+":"), func(key []byte, edge *types.Edge) error {
			touched := removeProvenance(&edge.EpisodeIDs, episodeUUID)
			if len(edge.EpisodeIDs) == 0 || orphaned[edge.SourceID] || orphaned[edge.TargetID] {
				dropEdges = append(dropEdges, key)
				return nil
			}
			if touched {
				rewriteEdges = append(rewriteEdges, edge)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, key := range append(dropNodes, dropEdges...) {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		for _, node := range rewriteNodes {
			if err := setJSON(txn, nodeKey(groupID, node.UUID), node); err != nil {
				return err
			}
		}
		for _, edge := range rewriteEdges {
			if err := setJSON(txn, edgeKey(groupID, edge.UUID), edge); err != nil {
				return err
			}
		}
		return txn.Delete(nodeKey(groupID, episodeUUID))
	})
}

// removeProvenance deletes id from ids in place, reporting whether it
// was present.
func removeProvenance(ids *[]string, id string) bool {
	for i, existing := range *ids {
		if existing == id {
			*ids = append((*ids)[:i], (*ids)[i+1:]...)
			return true
		}
	}
	return false
}

func (d *BadgerDriver) DeleteGroup(ctx context.Context, groupID string) error {
	prefixes := [][]byte{
		[]byte(nodePrefix + groupID + ":"),
		[]byte(edgePrefix + groupID + ":"),
	}
	return d.db.Update(func(txn *badger.Txn) error {
		for _, prefix := range prefixes {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			opts.PrefetchValues = false
			it := txn.NewIterator(opts)
			var keys [][]byte
			for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
			it.Close()
			for _, key := range keys {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// CreateIndices is a no-op: the embedded backend ranks over prefix
// scans and needs no secondary indexes.
func (d *BadgerDriver) CreateIndices(ctx context.Context) error { return nil }

func (d *BadgerDriver) Provider() Provider { return ProviderBadger }

func (d *BadgerDriver) Close() error {
	return d.db.Close()
}

var _ GraphDriver = (*BadgerDriver)(nil)

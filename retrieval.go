package chronograph

import (
	"context"
	"time"

	"github.com/chronograph-io/chronograph/pkg/types"
)

// Search runs a hybrid search across the configured groups.
func (c *Client) Search(ctx context.Context, query string, config *types.SearchConfig) (*types.SearchResults, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	searchCfg := config.WithDefaults()
	if searchCfg.MaxHops <= 0 || searchCfg.MaxHops > c.config.Search.MaxHops {
		searchCfg.MaxHops = c.config.Search.MaxHops
	}
	if searchCfg.RerankDepth <= 0 {
		searchCfg.RerankDepth = c.config.Search.RerankDepth
	}
	return c.searcher.Search(ctx, query, searchCfg)
}

// GetNode retrieves an entity, episodic, or community node by uuid.
func (c *Client) GetNode(ctx context.Context, uuid, groupID string) (*types.Node, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	return c.store.GetNode(ctx, uuid, groupID)
}

// GetEdge retrieves a relationship edge by uuid.
func (c *Client) GetEdge(ctx context.Context, uuid, groupID string) (*types.Edge, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	return c.store.GetEdge(ctx, uuid, groupID)
}

// GetEpisodes returns up to limit episodes with reference time at or
// before ts, most recent first.
func (c *Client) GetEpisodes(ctx context.Context, groupID string, ts time.Time, limit int) ([]*types.Node, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return c.store.RecentEpisodes(ctx, groupID, ts, limit)
}

// Snapshot returns the point-in-time view of the group: the edges that
// were valid at ts plus the entity nodes they connect. Entities carry
// no validity interval of their own, so the endpoints of the valid
// edges are the entities of the view.
func (c *Client) Snapshot(ctx context.Context, groupID string, ts time.Time) ([]*types.Node, []*types.Edge, error) {
	if c.isClosed() {
		return nil, nil, ErrClosed
	}
	edges, err := c.store.GetEdgesAt(ctx, groupID, ts)
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[string]bool, len(edges)*2)
	uuids := make([]string, 0, len(edges)*2)
	for _, edge := range edges {
		for _, id := range []string{edge.SourceID, edge.TargetID} {
			if !seen[id] {
				seen[id] = true
				uuids = append(uuids, id)
			}
		}
	}
	if len(uuids) == 0 {
		return nil, edges, nil
	}
	nodes, err := c.store.GetNodes(ctx, uuids, groupID)
	if err != nil {
		return nil, nil, err
	}
	return nodes, edges, nil
}

// GetCommunities returns the group's community nodes.
func (c *Client) GetCommunities(ctx context.Context, groupID string) ([]*types.Node, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	return c.store.GetNodesByGroup(ctx, groupID, types.CommunityNodeType)
}

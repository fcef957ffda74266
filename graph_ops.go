package chronograph

import (
	"context"

	"github.com/chronograph-io/chronograph/pkg/types"
)

// RemoveEpisode deletes an episode and retracts its contribution:
// entities and edges supported only by this episode are deleted,
// shared ones lose this episode from their provenance.
func (c *Client) RemoveEpisode(ctx context.Context, groupID, episodeUUID string) error {
	if c.isClosed() {
		return ErrClosed
	}
	lock := c.groupLock(groupID)
	lock.Lock()
	defer lock.Unlock()
	return c.store.RemoveEpisode(ctx, groupID, episodeUUID)
}

// DeleteGroup removes everything in a namespace.
func (c *Client) DeleteGroup(ctx context.Context, groupID string) error {
	if c.isClosed() {
		return ErrClosed
	}
	if !types.ValidGroupID(groupID) {
		return pipelineErr(StageReceived, KindInvalidNamespace, types.ErrBadGroupID)
	}
	lock := c.groupLock(groupID)
	lock.Lock()
	defer lock.Unlock()
	return c.store.DeleteGroup(ctx, groupID)
}

// BuildCommunities runs full community detection for a group and
// replaces its community nodes.
func (c *Client) BuildCommunities(ctx context.Context, groupID string) ([]*types.Node, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	lock := c.groupLock(groupID)
	lock.Lock()
	defer lock.Unlock()
	return c.detector.Build(ctx, groupID)
}

// CreateIndices creates backend indexes; call once at deploy time for
// the Neo4j backend.
func (c *Client) CreateIndices(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.store.CreateIndices(ctx)
}

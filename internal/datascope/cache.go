package datascope

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	subtreeVersionKey = "datascope:subtree:version"
	// InvalidationChannel announces department tree version bumps to
	// subscribers holding their own copies of the tree.
	InvalidationChannel = "datascope.bump"
)

// SubtreeCache memoises GetSubtree results in Redis. Entries are keyed by a
// global version so a single Invalidate drops every cached subtree.
type SubtreeCache struct {
	client *redis.Client
	next   DepartmentRepository
	ttl    time.Duration
}

// NewSubtreeCache wraps next with a Redis cache.
func NewSubtreeCache(client *redis.Client, next DepartmentRepository, ttl time.Duration) *SubtreeCache {
	return &SubtreeCache{client: client, next: next, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *SubtreeCache) Version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, subtreeVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		// SETNX so a concurrent Invalidate is not overwritten
		if err := c.client.SetNX(ctx, subtreeVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, subtreeVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// GetSubtree serves from cache or loads through the wrapped repository.
func (c *SubtreeCache) GetSubtree(ctx context.Context, deptID int64) ([]int64, error) {
	if c.client == nil {
		return c.next.GetSubtree(ctx, deptID)
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return c.next.GetSubtree(ctx, deptID)
	}
	key := subtreeKey(deptID, ver)
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var ids []int64
		if err := json.Unmarshal(payload, &ids); err == nil {
			return ids, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return c.next.GetSubtree(ctx, deptID)
	}

	ids, err := c.next.GetSubtree(ctx, deptID)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	// a failed write only costs the next caller a repository round trip
	_ = c.client.Set(ctx, key, raw, c.ttl).Err()
	return ids, nil
}

// Invalidate bumps the version after a department tree mutation and notifies
// other instances.
func (c *SubtreeCache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, subtreeVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, InvalidationChannel, strconv.FormatInt(ver, 10)).Err()
}

func subtreeKey(deptID, version int64) string {
	return "datascope:subtree:" + strconv.FormatInt(deptID, 10) + ":" + strconv.FormatInt(version, 10)
}

var _ DepartmentRepository = (*SubtreeCache)(nil)

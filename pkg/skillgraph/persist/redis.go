package persist

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/randalmurphal/skillgraph/pkg/skillgraph/graph"
)

// maxTxRetries bounds optimistic transaction retries when a watched key
// changes between WATCH and EXEC.
const maxTxRetries = 10

// RedisStore persists projects as Redis hashes. Each project lives at
// "<prefix>:project:<id>" with fields version, updated_at and data; the set
// "<prefix>:projects" indexes project IDs.
//
// Saves run in a WATCH/MULTI transaction so the version check and the write
// are atomic across processes.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing client. The store owns the client and
// closes it on Close.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "skillgraph"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// NewRedisStoreFromURL connects to the Redis server at url and verifies the
// connection.
func NewRedisStoreFromURL(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisStore(client, prefix), nil
}

func (r *RedisStore) projectKey(projectID string) string {
	return fmt.Sprintf("%s:project:%s", r.prefix, projectID)
}

func (r *RedisStore) indexKey() string {
	return r.prefix + ":projects"
}

// LoadGraph implements graph.Persistence.
func (r *RedisStore) LoadGraph(ctx context.Context, projectID string) (graph.Document, error) {
	vals, err := r.client.HMGet(ctx, r.projectKey(projectID), "version", "data").Result()
	if err != nil {
		if errors.Is(err, redis.ErrClosed) {
			return graph.Document{}, ErrStoreClosed
		}
		return graph.Document{}, fmt.Errorf("load project: %w", err)
	}
	if vals[0] == nil || vals[1] == nil {
		return graph.Document{}, notFound(projectID)
	}

	var version int64
	if _, err := fmt.Sscan(vals[0].(string), &version); err != nil {
		return graph.Document{}, fmt.Errorf("load project: bad version: %w", err)
	}
	return decode([]byte(vals[1].(string)), version)
}

// SaveGraph implements graph.Persistence.
func (r *RedisStore) SaveGraph(ctx context.Context, projectID string, doc graph.Document, baseVersion int64) (int64, error) {
	return r.save(ctx, projectID, doc, &baseVersion)
}

// ForceSave implements graph.Persistence.
func (r *RedisStore) ForceSave(ctx context.Context, projectID string, doc graph.Document) (int64, error) {
	return r.save(ctx, projectID, doc, nil)
}

func (r *RedisStore) save(ctx context.Context, projectID string, doc graph.Document, base *int64) (int64, error) {
	data, err := encode(doc)
	if err != nil {
		return 0, err
	}
	key := r.projectKey(projectID)

	var next int64
	txf := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, "version").Int64()
		if errors.Is(err, redis.Nil) {
			current = 0
		} else if err != nil {
			return err
		}
		if base != nil && *base != current {
			return conflict(projectID, *base, current)
		}
		next = current + 1

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				"version", next,
				"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
				"data", data,
			)
			pipe.SAdd(ctx, r.indexKey(), projectID)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err = r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			var ce *graph.ConflictError
			if errors.As(err, &ce) {
				return 0, err
			}
			if errors.Is(err, redis.ErrClosed) {
				return 0, ErrStoreClosed
			}
			return 0, fmt.Errorf("save project: %w", err)
		}
		return next, nil
	}
	return 0, fmt.Errorf("save project %s: too many concurrent writers", projectID)
}

// ListProjects implements Store.
func (r *RedisStore) ListProjects(ctx context.Context) ([]ProjectInfo, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	slices.Sort(ids)

	infos := make([]ProjectInfo, 0, len(ids))
	for _, id := range ids {
		vals, err := r.client.HMGet(ctx, r.projectKey(id), "version", "updated_at").Result()
		if err != nil {
			return nil, fmt.Errorf("list projects: %w", err)
		}
		if vals[0] == nil {
			continue
		}
		info := ProjectInfo{ID: id}
		if _, err := fmt.Sscan(vals[0].(string), &info.Version); err != nil {
			return nil, fmt.Errorf("list projects: bad version for %s: %w", id, err)
		}
		if s, ok := vals[1].(string); ok {
			info.UpdatedAt, _ = time.Parse(time.RFC3339Nano, s)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// DeleteProject implements Store.
func (r *RedisStore) DeleteProject(ctx context.Context, projectID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.projectKey(projectID))
		pipe.SRem(ctx, r.indexKey(), projectID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

// Close implements Store.
func (r *RedisStore) Close() error {
	if err := r.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}

// Package redisstore wraps a Redis client used as the backend for the
// shared remote canonical POI pool: places that have already been resolved by
// any bundle engine instance anywhere are cached here by
// "osm:<type>:<id>", so a tile top-up can check the shared pool before
// falling through to Overpass.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"
)

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithMinIdleConns(n int) Option {
	return func(o *redis.Options) { o.MinIdleConns = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.ReadTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.WriteTimeout = d }
}

// Recorder observes cache-op outcomes. internal/metrics.RemotePoolMetrics
// implements this; a nil Recorder is a silent no-op so the client works
// without a metrics provider wired in (e.g. in tests).
type Recorder interface {
	ObserveOp(op string, err error, seconds float64)
	AddHits(n int)
	AddMisses(n int)
}

type Client struct {
	rdb *redis.Client
	rec Recorder
}

// New dials the remote pool's Redis instance. rec may be nil.
func New(ctx context.Context, addr string, rec Recorder, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     64,
		MinIdleConns: 4,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)

	start := time.Now()
	err := rdb.Ping(ctx).Err()
	observe(rec, "ping", err, time.Since(start).Seconds())
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{rdb: rdb, rec: rec}, nil
}

func observe(rec Recorder, op string, err error, seconds float64) {
	if rec != nil {
		rec.ObserveOp(op, err, seconds)
	}
}

// MGet returns a map of found keys to their values.
func (c *Client) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	start := time.Now()
	if len(keys) == 0 {
		observe(c.rec, "mget", nil, time.Since(start).Seconds())
		return map[string][]byte{}, nil
	}

	vals, err := c.rdb.MGet(ctx, keys...).Result()
	observe(c.rec, "mget", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("redis MGET %d keys: %w", len(keys), err)
	}

	out := make(map[string][]byte, len(vals))
	hits := 0
	for i, v := range vals {
		if v == nil {
			continue // missing key
		}
		hits++
		switch t := v.(type) {
		case string:
			out[keys[i]] = []byte(t)
		case []byte:
			out[keys[i]] = t
		default:
			out[keys[i]] = fmt.Append(nil, t)
		}
	}
	if c.rec != nil {
		if miss := len(keys) - hits; hits > 0 {
			c.rec.AddHits(hits)
			if miss > 0 {
				c.rec.AddMisses(miss)
			}
		} else if len(keys) > 0 {
			c.rec.AddMisses(len(keys))
		}
	}
	return out, nil
}

func (c *Client) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	start := time.Now()
	err := c.rdb.Set(ctx, key, val, ttl).Err()
	observe(c.rec, "set", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis SET %q: %w", key, err)
	}
	return nil
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	start := time.Now()
	err := c.rdb.Del(ctx, keys...).Err()
	observe(c.rec, "del", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis DEL %d keys: %w", len(keys), err)
	}
	return nil
}

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}

func (c *Client) MSetWithTTL(
	ctx context.Context,
	kv map[string][]byte,
	ttl time.Duration,
) error {
	start := time.Now()
	if len(kv) == 0 {
		observe(c.rec, "mset", nil, time.Since(start).Seconds())
		return nil
	}

	_, err := c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for k, v := range kv {
			if err := p.Set(ctx, k, v, ttl).Err(); err != nil {
				return fmt.Errorf("redis MSET pipeline SET %q: %w", k, err)
			}
		}
		return nil
	})

	observe(c.rec, "mset", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis MSET %d keys (pipeline): %w", len(kv), err)
	}
	return nil
}

// SMembersUnion returns the union of members across the given tile-keyed
// sets, used to look up every osm:type:id reference known for a set of
// tiles without a round trip per tile.
func (c *Client) SMembersUnion(ctx context.Context, setKeys []string) ([]string, error) {
	start := time.Now()
	if len(setKeys) == 0 {
		return nil, nil
	}
	vals, err := c.rdb.SUnion(ctx, setKeys...).Result()
	observe(c.rec, "sunion", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("redis SUNION %d keys: %w", len(setKeys), err)
	}
	return vals, nil
}

// SAdd adds members to a tile-membership set and refreshes its TTL.
func (c *Client) SAdd(ctx context.Context, setKey string, ttl time.Duration, members ...string) error {
	start := time.Now()
	if len(members) == 0 {
		return nil
	}
	_, err := c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		anyMembers := make([]any, len(members))
		for i, m := range members {
			anyMembers[i] = m
		}
		if err := p.SAdd(ctx, setKey, anyMembers...).Err(); err != nil {
			return err
		}
		return p.Expire(ctx, setKey, ttl).Err()
	})
	observe(c.rec, "sadd", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis SADD %q: %w", setKey, err)
	}
	return nil
}

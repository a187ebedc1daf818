// Package directory implements the relay's client for the external
// key-value store that maps a user id to the peer-listener address of the
// node currently hosting that user. It is the only piece of the directory
// contract this repository owns; the store itself is Redis, reached
// through github.com/redis/go-redis/v9.
package directory

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Client wraps a *redis.Client with a mutex. go-redis already pools
// connections and is safe for concurrent use on its own; the mutex is kept
// to serialize SET/GET/DEL the way a single shared connection would, per
// this system's shared-resource policy for the directory. It is not a
// correctness requirement of the driver.
type Client struct {
	mu     sync.Mutex
	rdb    *redis.Client
	logger zerolog.Logger
}

// New returns a directory client against the Redis instance at addr
// (host:port).
func New(addr string, logger zerolog.Logger) *Client {
	return &Client{
		rdb:    redis.NewClient(&redis.Options{Addr: addr}),
		logger: logger,
	}
}

// Get returns the peer-listener address registered for userID. Any error,
// including a genuine cache miss (redis.Nil), is treated as "absent" — the
// directory's error policy never distinguishes "not found" from "store
// unreachable" at the call site.
func (c *Client) Get(ctx context.Context, userID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	addr, err := c.rdb.Get(ctx, userID).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug().Err(err).Str("user", userID).Msg("directory get failed")
		}
		return "", false
	}
	return addr, true
}

// Set advertises userID as hosted at addr, with no expiry. Errors are
// returned; the calling session logs them and carries on, so a failed
// advertisement degrades routing for that user without taking down the
// session that triggered it.
func (c *Client) Set(ctx context.Context, userID, addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.rdb.Set(ctx, userID, addr, 0).Err(); err != nil {
		return err
	}
	return nil
}

// Del removes userID's directory entry. Errors are logged by the caller
// and otherwise ignored — a stale entry just makes one future lookup
// briefly wrong, which peer-forward's best-effort delivery already
// tolerates.
func (c *Client) Del(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.rdb.Del(ctx, userID).Err(); err != nil {
		return err
	}
	return nil
}

// Ping verifies the Redis connection is reachable. Used once at node
// startup: a directory-connect failure in cluster mode is one of the two
// node-wide fatal conditions this system recognizes.
func (c *Client) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rdb.Ping(ctx).Err()
}

// Close releases the underlying Redis connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

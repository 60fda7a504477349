// Package cachetest provides an in-process stand-in for the Redis client.
package cachetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Client keeps values in a map. Expirations are recorded but not enforced.
type Client struct {
	mu   sync.Mutex
	data map[string]string
	ttl  map[string]time.Duration

	// Err, when set, is returned by every command.
	Err error
}

func NewClient() *Client {
	return &Client{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (c *Client) Get(_ context.Context, key string) *redis.StringCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return redis.NewStringResult("", c.Err)
	}
	v, ok := c.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (c *Client) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return redis.NewStatusResult("", c.Err)
	}
	switch v := value.(type) {
	case []byte:
		c.data[key] = string(v)
	case string:
		c.data[key] = v
	default:
		c.data[key] = fmt.Sprint(v)
	}
	c.ttl[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (c *Client) Del(_ context.Context, keys ...string) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return redis.NewIntResult(0, c.Err)
	}
	var n int64
	for _, k := range keys {
		if _, ok := c.data[k]; ok {
			delete(c.data, k)
			delete(c.ttl, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

// TTL returns the expiration the key was last written with.
func (c *Client) TTL(key string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.ttl[key]
	return d, ok
}

// Len returns the number of stored keys.
func (c *Client) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

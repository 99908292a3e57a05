// Package cache keeps upstream weather payloads in a two-tier cache: an
// in-process LRU in front of Redis. Fetcher plugs it in between the query
// facade and the HTTP transport.
package cache

import (
	"context"
	"time"
)

type Interface interface {
	MGet(ctx context.Context, keys []string) (map[string][]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// KeyIndex remembers the payload keys filled for a set of H3 cells.
type KeyIndex interface {
	Add(ctx context.Context, cells []string, key string) error
}

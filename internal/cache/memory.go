package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Memory is a size-bounded LRU with a per entry expiry.
type Memory struct {
	lru *lru.Cache[string, memEntry]
	now func() time.Time
}

type memEntry struct {
	val     []byte
	expires time.Time
}

var _ Interface = (*Memory)(nil)

func NewMemory(size int) (*Memory, error) {
	if size <= 0 {
		return nil, fmt.Errorf("memory cache size must be positive, got %d", size)
	}
	c, err := lru.New[string, memEntry](size)
	if err != nil {
		return nil, fmt.Errorf("lru: %w", err)
	}
	return &Memory{lru: c, now: time.Now}, nil
}

func (m *Memory) MGet(_ context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	n := m.now()
	for _, k := range keys {
		e, ok := m.lru.Get(k)
		if !ok {
			continue
		}
		if !n.Before(e.expires) {
			m.lru.Remove(k)
			continue
		}
		out[k] = e.val
	}
	return out, nil
}

func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl <= 0 {
		m.lru.Remove(key)
		return nil
	}
	m.lru.Add(key, memEntry{val: val, expires: m.now().Add(ttl)})
	return nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.lru.Remove(k)
	}
	return nil
}

func (m *Memory) Len() int { return m.lru.Len() }

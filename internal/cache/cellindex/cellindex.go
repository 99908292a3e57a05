// Package cellindex maps H3 cells to the payload keys cached for them, so an
// area whose data changed can be invalidated without scanning the cache.
package cellindex

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/mohammed-shakir/meteo-query/internal/cache"
	"github.com/mohammed-shakir/meteo-query/internal/cache/keys"
)

// DefaultRes is the finest resolution index entries are kept at.
const DefaultRes = 5

// DefaultMaxKeys caps one entry; the oldest keys fall off first.
const DefaultMaxKeys = 512

// Lineager expands a cell into the index nodes it is recorded under.
type Lineager interface {
	Lineage(cell string, maxRes int) ([]string, error)
}

// Index stores one JSON list of keys per cell node in a cache.Interface.
// Updates are read-merge-write and not atomic; a lost update leaves a key that
// simply expires with its own TTL.
type Index struct {
	store   cache.Interface
	lin     Lineager
	res     int
	ttl     time.Duration
	maxKeys int
}

var _ cache.KeyIndex = (*Index)(nil)

// New builds an index whose entries live for ttl, which should be at least the
// longest payload TTL.
func New(store cache.Interface, lin Lineager, res int, ttl time.Duration) (*Index, error) {
	if store == nil || lin == nil {
		return nil, fmt.Errorf("cellindex: store and lineager are required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cellindex: ttl must be positive")
	}
	if res < 0 || res > 15 {
		res = DefaultRes
	}
	return &Index{store: store, lin: lin, res: res, ttl: ttl, maxKeys: DefaultMaxKeys}, nil
}

// Add records key under every node of every cell's lineage.
func (ix *Index) Add(ctx context.Context, cells []string, key string) error {
	nodes, err := ix.nodes(cells)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return nil
	}
	current, err := ix.load(ctx, nodes)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		list := appendUnique(current[n], key)
		if len(list) > ix.maxKeys {
			list = list[len(list)-ix.maxKeys:]
		}
		b, err := json.Marshal(list)
		if err != nil {
			return fmt.Errorf("cellindex encode: %w", err)
		}
		if err := ix.store.Set(ctx, keys.CellIndexKey(n), b, ix.ttl); err != nil {
			return fmt.Errorf("cellindex set %s: %w", n, err)
		}
	}
	return nil
}

// Keys returns every recorded key whose cells overlap any of cells, sorted.
func (ix *Index) Keys(ctx context.Context, cells []string) ([]string, error) {
	nodes, err := ix.nodes(cells)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	current, err := ix.load(ctx, nodes)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var out []string
	for _, list := range current {
		for _, k := range list {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Forget removes the index entries of exactly these cells (no lineage).
func (ix *Index) Forget(ctx context.Context, cells []string) error {
	if len(cells) == 0 {
		return nil
	}
	ks := make([]string, 0, len(cells))
	for _, c := range cells {
		ks = append(ks, keys.CellIndexKey(c))
	}
	if err := ix.store.Del(ctx, ks...); err != nil {
		return fmt.Errorf("cellindex del: %w", err)
	}
	return nil
}

func (ix *Index) nodes(cells []string) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, c := range cells {
		lin, err := ix.lin.Lineage(c, ix.res)
		if err != nil {
			return nil, fmt.Errorf("cellindex lineage %s: %w", c, err)
		}
		for _, n := range lin {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	return out, nil
}

func (ix *Index) load(ctx context.Context, nodes []string) (map[string][]string, error) {
	ks := make([]string, len(nodes))
	for i, n := range nodes {
		ks[i] = keys.CellIndexKey(n)
	}
	raw, err := ix.store.MGet(ctx, ks)
	if err != nil {
		return nil, fmt.Errorf("cellindex mget: %w", err)
	}
	out := make(map[string][]string, len(raw))
	for i, n := range nodes {
		b, ok := raw[ks[i]]
		if !ok || len(b) == 0 {
			continue
		}
		var list []string
		if err := json.Unmarshal(b, &list); err != nil {
			// a corrupt entry is rebuilt by the next Add
			continue
		}
		out[n] = list
	}
	return out, nil
}

func appendUnique(list []string, key string) []string {
	for _, k := range list {
		if k == key {
			return list
		}
	}
	return append(list, key)
}

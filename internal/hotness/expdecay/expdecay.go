// Package expdecay implements an exponential decay model for hotness scores.
package expdecay

import (
	"math"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/meteo-query/internal/hotness"
)

const numShards = 64

// DefaultMaxCells caps how many cells a tracker remembers.
const DefaultMaxCells = 64 * 1024

type Tracker struct {
	HalfLife time.Duration

	now      func() time.Time
	shardCap int

	shards [numShards]shard
}

type shard struct {
	mu sync.RWMutex
	m  map[string]*counter
}

type counter struct {
	score float64
	last  time.Time
}

var _ hotness.Interface = (*Tracker)(nil)

// New returns a tracker whose scores halve every halfLife. maxCells <= 0
// selects DefaultMaxCells; once a shard is full the coldest cell in it is
// forgotten to make room.
func New(halfLife time.Duration, maxCells int) *Tracker {
	if halfLife <= 0 {
		halfLife = time.Minute
	}
	if maxCells <= 0 {
		maxCells = DefaultMaxCells
	}
	t := &Tracker{
		HalfLife: halfLife,
		now:      time.Now,
		shardCap: max(1, maxCells/numShards),
	}
	for i := range t.shards {
		t.shards[i].m = make(map[string]*counter)
	}
	return t
}

// WithClock replaces the time source and returns t.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

func (t *Tracker) Inc(cell string) {
	if cell == "" {
		return
	}
	s := t.pick(cell)
	n := t.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.m[cell]
	if c == nil {
		if len(s.m) >= t.shardCap {
			t.evictColdest(s, n)
		}
		s.m[cell] = &counter{score: 1, last: n}
		return
	}
	dt := n.Sub(c.last).Seconds()
	c.score = decay(c.score, dt, t.HalfLife.Seconds()) + 1.0
	c.last = n
}

func (t *Tracker) Score(cell string) float64 {
	if cell == "" {
		return 0
	}
	s := t.pick(cell)
	n := t.now()

	s.mu.RLock()
	c := s.m[cell]
	if c == nil {
		s.mu.RUnlock()
		return 0
	}
	score, last := c.score, c.last
	s.mu.RUnlock()

	return decay(score, n.Sub(last).Seconds(), t.HalfLife.Seconds())
}

// MaxScore returns the highest current score among cells.
func (t *Tracker) MaxScore(cells []string) float64 {
	best := 0.0
	for _, c := range cells {
		best = math.Max(best, t.Score(c))
	}
	return best
}

func (t *Tracker) Reset(cells ...string) {
	for _, cell := range cells {
		if cell == "" {
			continue
		}
		s := t.pick(cell)
		s.mu.Lock()
		delete(s.m, cell)
		s.mu.Unlock()
	}
}

// evictColdest drops the lowest scoring cell of s. Caller holds s.mu.
func (t *Tracker) evictColdest(s *shard, n time.Time) {
	var (
		victim string
		lowest = math.Inf(1)
	)
	for k, c := range s.m {
		if sc := decay(c.score, n.Sub(c.last).Seconds(), t.HalfLife.Seconds()); sc < lowest {
			victim, lowest = k, sc
		}
	}
	delete(s.m, victim)
}

func decay(score, dt, halfLife float64) float64 {
	if score == 0 || dt <= 0 || halfLife <= 0 {
		return score
	}
	lambda := math.Ln2 / halfLife
	return score * math.Exp(-lambda*dt)
}

func (t *Tracker) pick(cell string) *shard {
	h := xxhash.Sum64String(cell)
	idx := h & (uint64(len(t.shards)) - 1)
	return &t.shards[idx]
}

func (t *Tracker) Size() int {
	total := 0
	for i := range t.shards {
		t.shards[i].mu.RLock()
		total += len(t.shards[i].m)
		t.shards[i].mu.RUnlock()
	}
	return total
}

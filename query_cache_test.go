package depot

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCacheConfig() QueryCacheConfig {
	cfg := DefaultConfig().QueryCache
	cfg.EnableAdaptive = false
	return cfg
}

// countingBuild returns a BuildFunc that records how often each descriptor
// was built.
func countingBuild(builds map[QueryDescriptor]int) BuildFunc {
	return func(d QueryDescriptor) (*QueryResult, error) {
		builds[d]++
		return &QueryResult{Entities: []EntityHandle{{ID: uint32(d.Required), Generation: 1}}}, nil
	}
}

func TestQueryCacheHitMiss(t *testing.T) {
	c, err := NewQueryCache(testCacheConfig(), zerolog.Nop())
	require.NoError(t, err)
	builds := make(map[QueryDescriptor]int)
	d := NewQueryDescriptor(SignatureOf(1), 0)

	first, err := c.Execute(d, countingBuild(builds))
	require.NoError(t, err)
	second, err := c.Execute(d, countingBuild(builds))
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, builds[d])
	s := c.Stats()
	assert.Equal(t, uint64(2), s.Queries)
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.Equal(t, uint64(1), s.BloomRejects, "first lookup is rejected by the bloom filter")
	assert.InDelta(t, 0.5, s.HitRatio, 1e-9)
	assert.Equal(t, uint64(2), second.Accesses())

	peek, ok := c.Peek(d)
	assert.True(t, ok)
	assert.Same(t, first, peek)
	assert.Equal(t, uint64(2), peek.Accesses(), "peek does not count")
}

func TestQueryCacheInvalidate(t *testing.T) {
	c, err := NewQueryCache(testCacheConfig(), zerolog.Nop())
	require.NoError(t, err)
	builds := make(map[QueryDescriptor]int)

	posOnly := NewQueryDescriptor(SignatureOf(1), 0)
	velOnly := NewQueryDescriptor(SignatureOf(2), 0)
	posNoVel := NewQueryDescriptor(SignatureOf(1), SignatureOf(2))
	for _, d := range []QueryDescriptor{posOnly, velOnly, posNoVel} {
		_, err := c.Execute(d, countingBuild(builds))
		require.NoError(t, err)
	}
	require.Equal(t, 3, c.Len())

	// a change to component 2 affects queries requiring or excluding it
	assert.Equal(t, 2, c.Invalidate(SignatureOf(2)))
	_, ok := c.Peek(posOnly)
	assert.True(t, ok)
	_, ok = c.Peek(velOnly)
	assert.False(t, ok)
	assert.Zero(t, c.Invalidate(0))

	// an archetype {1,3} gaining members affects the queries it matches
	_, _ = c.Execute(posNoVel, countingBuild(builds))
	assert.Equal(t, 2, c.InvalidateMatching(SignatureOf(1, 3)))
	assert.Zero(t, c.Len())
	assert.Equal(t, uint64(4), c.Stats().Invalidations)
}

func TestQueryCachePromotion(t *testing.T) {
	cfg := testCacheConfig()
	cfg.HotSize, cfg.MinHotSize, cfg.WarmSize, cfg.MaxCachedQueries = 1, 1, 4, 5
	cfg.PromoteThreshold = 2
	c, err := NewQueryCache(cfg, zerolog.Nop())
	require.NoError(t, err)
	clock := time.Unix(0, 0)
	c.now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}
	builds := make(map[QueryDescriptor]int)

	d1 := NewQueryDescriptor(SignatureOf(1), 0)
	d2 := NewQueryDescriptor(SignatureOf(2), 0)
	_, _ = c.Execute(d1, countingBuild(builds))
	_, _ = c.Execute(d2, countingBuild(builds))
	s := c.Stats()
	assert.Equal(t, 1, s.HotSize)
	assert.Equal(t, 1, s.WarmSize)

	// the second access of d2 crosses the threshold
	_, _ = c.Execute(d2, countingBuild(builds))
	s = c.Stats()
	assert.Equal(t, uint64(1), s.Promotions)
	assert.Equal(t, 1, s.HotSize)
	assert.Equal(t, 1, s.WarmSize)
	_, inHot := c.hot[d2]
	assert.True(t, inHot)
	_, inWarm := c.warm.Peek(d1)
	assert.True(t, inWarm, "promotion demotes the least recently used hot entry")
	assert.Equal(t, 1, builds[d1])
	assert.Equal(t, 1, builds[d2])
}

func TestQueryCacheWarmEviction(t *testing.T) {
	cfg := testCacheConfig()
	cfg.HotSize, cfg.MinHotSize, cfg.WarmSize, cfg.MaxCachedQueries = 1, 1, 2, 3
	c, err := NewQueryCache(cfg, zerolog.Nop())
	require.NoError(t, err)
	builds := make(map[QueryDescriptor]int)

	for id := range ComponentID(4) {
		_, err := c.Execute(NewQueryDescriptor(SignatureOf(id), 0), countingBuild(builds))
		require.NoError(t, err)
	}
	s := c.Stats()
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, uint64(1), s.Evictions)
}

func TestQueryCacheAdapt(t *testing.T) {
	cfg := testCacheConfig()
	cfg.HotSize, cfg.MinHotSize, cfg.MaxCachedQueries = 4, 1, 64
	cfg.WarmSize = 8
	c, err := NewQueryCache(cfg, zerolog.Nop())
	require.NoError(t, err)
	builds := make(map[QueryDescriptor]int)

	// only misses: the hot tier grows
	for id := range ComponentID(4) {
		_, _ = c.Execute(NewQueryDescriptor(SignatureOf(id), 0), countingBuild(builds))
	}
	c.Adapt()
	assert.Equal(t, 5, c.Stats().HotCapacity)

	// nearly only hits on a mostly empty tier: it shrinks
	c.Clear()
	d := NewQueryDescriptor(SignatureOf(9), 0)
	for range 101 {
		_, _ = c.Execute(d, countingBuild(builds))
	}
	c.Adapt()
	assert.Equal(t, 4, c.Stats().HotCapacity)
}

func TestQueryCacheAdaptiveInterval(t *testing.T) {
	cfg := DefaultConfig().QueryCache
	cfg.AdaptInterval = 4
	c, err := NewQueryCache(cfg, zerolog.Nop())
	require.NoError(t, err)
	builds := make(map[QueryDescriptor]int)
	for id := range ComponentID(4) {
		_, _ = c.Execute(NewQueryDescriptor(SignatureOf(id), 0), countingBuild(builds))
	}
	assert.Greater(t, c.Stats().HotCapacity, cfg.HotSize)
}

func TestQueryCacheOptimize(t *testing.T) {
	cfg := testCacheConfig()
	cfg.EntryTTL = time.Second
	cfg.BloomBits, cfg.BloomHashes = 64, 4
	c, err := NewQueryCache(cfg, zerolog.Nop())
	require.NoError(t, err)
	clock := time.Unix(100, 0)
	c.now = func() time.Time { return clock }
	builds := make(map[QueryDescriptor]int)

	for id := range ComponentID(40) {
		_, _ = c.Execute(NewQueryDescriptor(SignatureOf(id), 0), countingBuild(builds))
	}
	require.Equal(t, 40, c.Len())
	assert.Greater(t, c.Stats().BloomFPRate, bloomRebuildFPRate)

	clock = clock.Add(2 * time.Second)
	c.Optimize()
	s := c.Stats()
	assert.Zero(t, c.Len())
	assert.Equal(t, uint64(40), s.Expired)
	assert.Equal(t, uint64(1), s.BloomRebuilds)
	assert.Zero(t, s.BloomFPRate)
}

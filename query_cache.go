package depot

import (
	"math"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	bloomfilter "github.com/holiman/bloomfilter/v2"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// bloomRebuildFPRate is the estimated false positive rate above which
// Optimize rebuilds the bloom filter from the live entries.
const bloomRebuildFPRate = 0.3

// BuildFunc computes the result of a query on a cache miss.
type BuildFunc func(QueryDescriptor) (*QueryResult, error)

// QueryCacheStats is a snapshot of cache counters.
type QueryCacheStats struct {
	Queries       uint64
	Hits          uint64
	Misses        uint64
	BloomRejects  uint64
	Promotions    uint64
	Evictions     uint64
	Invalidations uint64
	Expired       uint64
	BloomRebuilds uint64
	HotSize       int
	HotCapacity   int
	WarmSize      int
	HitRatio      float64
	BloomFPRate   float64
	MemoryBytes   uintptr
}

// QueryCache is a two-tier cache of query results. The hot tier is a bounded
// map evicting by last access into the warm tier, an LRU. A bloom filter over
// descriptor hashes short-circuits lookups of queries never cached.
type QueryCache struct {
	guard      guard
	cfg        QueryCacheConfig
	hot        map[QueryDescriptor]*QueryResult
	hotCap     int
	warm       *lru.Cache[QueryDescriptor, *QueryResult]
	bloom      *bloomfilter.Filter
	bloomN     uint64
	stats      QueryCacheStats
	window     uint64 // lookups since the last resize
	windowHits uint64
	log        zerolog.Logger
	now        func() time.Time
}

func NewQueryCache(cfg QueryCacheConfig, log zerolog.Logger) (*QueryCache, error) {
	warm, err := lru.New[QueryDescriptor, *QueryResult](cfg.WarmSize)
	if err != nil {
		return nil, eris.Wrap(err, "failed to create warm query tier")
	}
	c := &QueryCache{
		guard:  newGuard(cfg.ThreadSafe),
		cfg:    cfg,
		hot:    make(map[QueryDescriptor]*QueryResult, cfg.HotSize),
		hotCap: cfg.HotSize,
		warm:   warm,
		log:    log.With().Str("system", "query_cache").Logger(),
		now:    time.Now,
	}
	if cfg.EnableBloom {
		if c.bloom, err = bloomfilter.New(cfg.BloomBits, cfg.BloomHashes); err != nil {
			return nil, eris.Wrap(err, "failed to create query bloom filter")
		}
	}
	return c, nil
}

// Execute returns the cached result for desc, building and caching it with
// build on a miss.
func (c *QueryCache) Execute(desc QueryDescriptor, build BuildFunc) (*QueryResult, error) {
	c.guard.Lock()
	defer c.guard.Unlock()
	c.stats.Queries++
	c.window++
	defer c.maybeAdapt()

	if c.bloom != nil && !c.bloom.ContainsHash(desc.hash) {
		c.stats.BloomRejects++
		c.stats.Misses++
		return c.buildAndStore(desc, build)
	}
	if res, ok := c.lookup(desc); ok {
		c.stats.Hits++
		c.windowHits++
		return res, nil
	}
	c.stats.Misses++
	return c.buildAndStore(desc, build)
}

// Peek returns the cached result for desc without counting an access.
func (c *QueryCache) Peek(desc QueryDescriptor) (*QueryResult, bool) {
	c.guard.RLock()
	defer c.guard.RUnlock()
	if res, ok := c.hot[desc]; ok {
		return res, true
	}
	return c.warm.Peek(desc)
}

func (c *QueryCache) lookup(desc QueryDescriptor) (*QueryResult, bool) {
	now := c.now()
	if res, ok := c.hot[desc]; ok {
		res.touch(now)
		return res, true
	}
	res, ok := c.warm.Get(desc)
	if !ok {
		return nil, false
	}
	res.touch(now)
	if res.accesses >= c.cfg.PromoteThreshold {
		c.warm.Remove(desc)
		c.insertHot(desc, res)
		c.stats.Promotions++
	}
	return res, true
}

func (c *QueryCache) buildAndStore(desc QueryDescriptor, build BuildFunc) (*QueryResult, error) {
	res, err := build(desc)
	if err != nil {
		return nil, err
	}
	now := c.now()
	res.CreatedAt = now
	res.touch(now)
	if len(c.hot) < c.hotCap {
		c.hot[desc] = res
	} else {
		c.insertWarm(desc, res)
	}
	if c.bloom != nil {
		c.bloom.AddHash(desc.hash)
		c.bloomN++
	}
	return res, nil
}

// insertHot places res in the hot tier, demoting the least recently used hot
// entry when full.
func (c *QueryCache) insertHot(desc QueryDescriptor, res *QueryResult) {
	for len(c.hot) >= c.hotCap {
		c.demoteLRU()
	}
	c.hot[desc] = res
}

func (c *QueryCache) demoteLRU() {
	var (
		victim QueryDescriptor
		oldest *QueryResult
	)
	for d, r := range c.hot {
		if oldest == nil || r.lastAccess.Before(oldest.lastAccess) {
			victim, oldest = d, r
		}
	}
	if oldest == nil {
		return
	}
	delete(c.hot, victim)
	c.insertWarm(victim, oldest)
}

func (c *QueryCache) insertWarm(desc QueryDescriptor, res *QueryResult) {
	if c.warm.Add(desc, res) {
		c.stats.Evictions++
	}
}

// Invalidate drops every entry whose required or excluded set intersects
// changed. It returns the number of entries dropped.
func (c *QueryCache) Invalidate(changed Signature) int {
	if changed == 0 {
		return 0
	}
	return c.invalidate(func(d QueryDescriptor) bool { return d.touches(changed) })
}

// InvalidateMatching drops every entry whose result includes archetypes with
// signature sig. It is used when an archetype gains or loses members and when
// a new archetype appears.
func (c *QueryCache) InvalidateMatching(sig Signature) int {
	return c.invalidate(func(d QueryDescriptor) bool { return d.Matches(sig) })
}

func (c *QueryCache) invalidate(stale func(QueryDescriptor) bool) int {
	c.guard.Lock()
	defer c.guard.Unlock()
	n := 0
	for d := range c.hot {
		if stale(d) {
			delete(c.hot, d)
			n++
		}
	}
	for _, d := range c.warm.Keys() {
		if stale(d) {
			c.warm.Remove(d)
			n++
		}
	}
	c.stats.Invalidations += uint64(n)
	return n
}

// Adapt resizes the hot tier from the hit ratio observed since the previous
// call.
func (c *QueryCache) Adapt() {
	c.guard.Lock()
	defer c.guard.Unlock()
	c.adapt()
}

func (c *QueryCache) maybeAdapt() {
	if c.cfg.EnableAdaptive && c.cfg.AdaptInterval > 0 && c.window >= c.cfg.AdaptInterval {
		c.adapt()
	}
}

func (c *QueryCache) adapt() {
	if c.window == 0 {
		return
	}
	ratio := float64(c.windowHits) / float64(c.window)
	c.window, c.windowHits = 0, 0

	prev := c.hotCap
	switch {
	case ratio < c.cfg.TargetHitRatio:
		limit := max(c.cfg.MaxCachedQueries/4, c.cfg.MinHotSize)
		c.hotCap = min(max(c.hotCap*12/10, c.hotCap+1), limit)
	case ratio > 0.95 && len(c.hot) < c.hotCap/2:
		c.hotCap = max(c.hotCap*9/10, c.cfg.MinHotSize)
		for len(c.hot) > c.hotCap {
			c.demoteLRU()
		}
	}
	if c.hotCap != prev {
		c.log.Debug().
			Float64("hit_ratio", ratio).
			Int("from", prev).
			Int("to", c.hotCap).
			Msg("resized hot query tier")
	}
}

// Optimize expires entries older than EntryTTL, adapts the hot tier and
// rebuilds the bloom filter when its false positive estimate is too high.
func (c *QueryCache) Optimize() {
	c.guard.Lock()
	defer c.guard.Unlock()
	if ttl := c.cfg.EntryTTL; ttl > 0 {
		now := c.now()
		for d, r := range c.hot {
			if now.Sub(r.lastAccess) > ttl {
				delete(c.hot, d)
				c.stats.Expired++
			}
		}
		for _, d := range c.warm.Keys() {
			if r, ok := c.warm.Peek(d); ok && now.Sub(r.lastAccess) > ttl {
				c.warm.Remove(d)
				c.stats.Expired++
			}
		}
	}
	c.adapt()
	if c.bloom != nil && c.bloomFPRate() > bloomRebuildFPRate {
		c.rebuildBloom()
	}
}

// bloomFPRate estimates (1 - e^(-kn/m))^k.
func (c *QueryCache) bloomFPRate() float64 {
	if c.bloom == nil || c.bloomN == 0 {
		return 0
	}
	k, m, n := float64(c.cfg.BloomHashes), float64(c.cfg.BloomBits), float64(c.bloomN)
	return math.Pow(1-math.Exp(-k*n/m), k)
}

func (c *QueryCache) rebuildBloom() {
	fresh, err := bloomfilter.New(c.cfg.BloomBits, c.cfg.BloomHashes)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to rebuild query bloom filter")
		return
	}
	c.bloomN = 0
	for d := range c.hot {
		fresh.AddHash(d.hash)
		c.bloomN++
	}
	for _, d := range c.warm.Keys() {
		fresh.AddHash(d.hash)
		c.bloomN++
	}
	c.bloom = fresh
	c.stats.BloomRebuilds++
	c.log.Debug().Uint64("entries", c.bloomN).Msg("rebuilt query bloom filter")
}

// Clear drops every entry and resets the bloom filter.
func (c *QueryCache) Clear() {
	c.guard.Lock()
	defer c.guard.Unlock()
	clear(c.hot)
	c.warm.Purge()
	if c.bloom != nil {
		c.rebuildBloom()
	}
}

func (c *QueryCache) Len() int {
	c.guard.RLock()
	defer c.guard.RUnlock()
	return len(c.hot) + c.warm.Len()
}

func (c *QueryCache) Stats() QueryCacheStats {
	c.guard.RLock()
	defer c.guard.RUnlock()
	s := c.stats
	s.HotSize = len(c.hot)
	s.HotCapacity = c.hotCap
	s.WarmSize = c.warm.Len()
	if s.Queries > 0 {
		s.HitRatio = float64(s.Hits) / float64(s.Queries)
	}
	s.BloomFPRate = c.bloomFPRate()
	for _, r := range c.hot {
		s.MemoryBytes += r.memoryUsage()
	}
	for _, d := range c.warm.Keys() {
		if r, ok := c.warm.Peek(d); ok {
			s.MemoryBytes += r.memoryUsage()
		}
	}
	return s
}

package depot

import (
	"github.com/TheBitDrifter/depot/internal/statsd"
)

// RegistryStats aggregates the counters of every subsystem.
type RegistryStats struct {
	ID            string          `json:"id"`
	Components    int             `json:"components"`
	Pool          PoolStats       `json:"pool"`
	Archetypes    ManagerStats    `json:"archetypes"`
	Cache         QueryCacheStats `json:"cache"`
	HotComponents []string        `json:"hot_components"`
	Pending       int             `json:"pending"`
}

func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := RegistryStats{
		ID:         r.id.String(),
		Components: r.components.len(),
		Pool:       r.pool.Stats(),
		Archetypes: r.archetypes.Stats(),
		Pending:    r.pool.queue.Len(),
	}
	if r.cache != nil {
		s.Cache = r.cache.Stats()
	}
	for id := range r.tracker.Hot().Components() {
		if info := r.components.byComponentID(id); info != nil {
			s.HotComponents = append(s.HotComponents, info.name)
		}
	}
	return s
}

// EmitMetrics reports the Stats snapshot as statsd gauges.
func (r *Registry) EmitMetrics() RegistryStats {
	s := r.Stats()
	tag := "registry:" + s.ID
	statsd.Gauge("entities.live", float64(s.Pool.Live), tag)
	statsd.Gauge("entities.free_ids", float64(s.Pool.FreeIDs), tag)
	statsd.Gauge("archetypes", float64(s.Archetypes.Archetypes), tag)
	statsd.Gauge("chunks", float64(s.Archetypes.Chunks), tag)
	statsd.Gauge("memory_bytes", float64(s.Archetypes.MemoryBytes), tag)
	statsd.Gauge("query_cache.entries", float64(s.Cache.HotSize+s.Cache.WarmSize), tag)
	statsd.Gauge("query_cache.hits", float64(s.Cache.Hits), tag)
	statsd.Gauge("query_cache.misses", float64(s.Cache.Misses), tag)
	statsd.Gauge("query_cache.hit_ratio", s.Cache.HitRatio, tag)
	statsd.Gauge("query_cache.invalidations", float64(s.Cache.Invalidations), tag)
	return s
}

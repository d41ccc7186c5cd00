package depot

import (
	"github.com/rs/zerolog"
)

func loadComponentIntoArrayLogger(info *componentInfo, arrayLogger *zerolog.Array) *zerolog.Array {
	dictLogger := zerolog.Dict()
	dictLogger = dictLogger.Int("component_id", int(info.id))
	dictLogger = dictLogger.Str("component_name", info.name)
	dictLogger = dictLogger.Int("chunk_capacity", info.layout.Capacity)
	return arrayLogger.Dict(dictLogger)
}

func (r *Registry) loadComponentsToEvent(event *zerolog.Event) *zerolog.Event {
	arrayLogger := zerolog.Arr()
	total := 0
	for id := range MaxComponents {
		if info := r.components.byComponentID(ComponentID(id)); info != nil {
			arrayLogger = loadComponentIntoArrayLogger(info, arrayLogger)
			total++
		}
	}
	event.Int("total_components", total)
	return event.Array("components", arrayLogger)
}

func (r *Registry) loadArchetypesToEvent(event *zerolog.Event) *zerolog.Event {
	arrayLogger := zerolog.Arr()
	for _, a := range r.archetypes.All() {
		s := a.Stats()
		arrayLogger = arrayLogger.Dict(zerolog.Dict().
			Uint32("archetype_id", uint32(s.ID)).
			Stringer("signature", s.Signature).
			Int("entities", s.Entities).
			Int("chunks", s.Chunks))
	}
	event.Int("total_archetypes", r.archetypes.Len())
	return event.Array("archetypes", arrayLogger)
}

// LogComponents logs every component registered with r.
func (r *Registry) LogComponents(level zerolog.Level) {
	r.loadComponentsToEvent(r.log.WithLevel(level)).Send()
}

// LogArchetypes logs every archetype with its population.
func (r *Registry) LogArchetypes(level zerolog.Level) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.loadArchetypesToEvent(r.log.WithLevel(level)).Send()
}

// LogEntity logs e's archetype and components.
func (r *Registry) LogEntity(level zerolog.Level, e EntityHandle) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	event := r.log.WithLevel(level).Stringer("entity", e)
	arch, err := r.archetypeOf(e)
	if err != nil {
		event.Err(err).Send()
		return
	}
	arrayLogger := zerolog.Arr()
	for _, id := range arch.Components() {
		arrayLogger = loadComponentIntoArrayLogger(r.components.byComponentID(id), arrayLogger)
	}
	event.Array("components", arrayLogger).
		Uint32("archetype_id", uint32(arch.id)).
		Send()
}

// LogStats logs the Stats snapshot.
func (r *Registry) LogStats(level zerolog.Level) {
	s := r.Stats()
	r.log.WithLevel(level).
		Int("entities", s.Pool.Live).
		Int("peak_entities", s.Pool.Peak).
		Uint64("recycled", s.Pool.Recycled).
		Int("archetypes", s.Archetypes.Archetypes).
		Int("chunks", s.Archetypes.Chunks).
		Uint64("memory_bytes", uint64(s.Archetypes.MemoryBytes)).
		Dict("query_cache", zerolog.Dict().
			Uint64("queries", s.Cache.Queries).
			Float64("hit_ratio", s.Cache.HitRatio).
			Int("hot", s.Cache.HotSize).
			Int("warm", s.Cache.WarmSize).
			Uint64("invalidations", s.Cache.Invalidations)).
		Strs("hot_components", s.HotComponents).
		Msg("registry stats")
}

package depot

import (
	"slices"
	"strconv"

	"github.com/google/uuid"
	"github.com/kamstrup/intmap"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/TheBitDrifter/depot/internal/statsd"
)

// Registry is the entry point of the package: it owns the entity pool, the
// archetypes and their chunks, and the query cache, and keeps them consistent
// across structural changes.
//
// A Registry can be locked (see Lock). While locked, structural calls fail
// with LockedRegistryError and Enqueue* calls are buffered until the last
// Unlock.
type Registry struct {
	id         uuid.UUID
	cfg        Config
	mu         guard
	log        zerolog.Logger
	components *componentRegistry
	archetypes *ArchetypeManager
	pool       *EntityPool
	cache      *QueryCache
	tracker    *AccessTracker
	locations  *intmap.Map[uint32, ArchetypeID]
	hooks      hooks
	locks      int
}

func newRegistry(cfg Config) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, eris.Wrap(err, "invalid registry config")
	}
	if cfg.ThreadSafe {
		cfg.QueryCache.ThreadSafe = true
	}
	id := uuid.New()
	log := cfg.logger().With().Str("registry", id.String()).Logger()
	r := &Registry{
		id:         id,
		cfg:        cfg,
		mu:         newGuard(cfg.ThreadSafe),
		log:        log,
		components: newComponentRegistry(cfg.Chunk),
		pool:       NewEntityPool(cfg.EntityPool, log),
		locations:  intmap.New[uint32, ArchetypeID](cfg.EntityPool.InitialCapacity),
	}
	r.archetypes = newArchetypeManager(cfg, r.components, log)
	if cfg.QueryCache.Enabled {
		cache, err := NewQueryCache(cfg.QueryCache, log)
		if err != nil {
			return nil, err
		}
		r.cache = cache
		r.archetypes.onCreate = func(a *Archetype) {
			cache.InvalidateMatching(a.sig.Mask)
		}
	}
	r.tracker = NewAccessTracker(cfg.Chunk.HotThreshold, func(cid ComponentID) {
		name := strconv.Itoa(int(cid))
		if info := r.components.byComponentID(cid); info != nil {
			name = info.name
		}
		r.log.Debug().Str("component", name).Msg("component became hot")
		statsd.Count("component.hot", 1, "component:"+name)
	})
	r.log.Debug().
		Bool("thread_safe", cfg.ThreadSafe).
		Bool("query_cache", cfg.QueryCache.Enabled).
		Msg("registry created")
	return r, nil
}

// ID is the unique id of this registry instance, as used in its logs.
func (r *Registry) ID() string {
	return r.id.String()
}

func (r *Registry) Config() Config {
	return r.cfg
}

func (r *Registry) Archetypes() *ArchetypeManager {
	return r.archetypes
}

func (r *Registry) Pool() *EntityPool {
	return r.pool
}

// Cache returns the query cache, or nil when caching is disabled.
func (r *Registry) Cache() *QueryCache {
	return r.cache
}

func (r *Registry) Tracker() *AccessTracker {
	return r.tracker
}

// RegisterComponents assigns ids to components ahead of first use.
func (r *Registry) RegisterComponents(components ...Component) error {
	_, err := r.components.signatureOf(components...)
	return err
}

// ComponentID returns the id c has in this registry, registering c on first
// use.
func (r *Registry) ComponentID(c Component) (ComponentID, error) {
	info, err := r.components.resolve(c)
	if err != nil {
		return 0, err
	}
	return info.id, nil
}

// SignatureOf returns the signature of components in this registry.
func (r *Registry) SignatureOf(components ...Component) (Signature, error) {
	return r.components.signatureOf(components...)
}

// CreateEntity creates one entity carrying zero values of components.
func (r *Registry) CreateEntity(components ...Component) (EntityHandle, error) {
	handles, err := r.CreateEntities(1, components...)
	if err != nil {
		return NilEntity, err
	}
	return handles[0], nil
}

// CreateEntities creates n entities carrying zero values of components. Either
// all n are created or none.
func (r *Registry) CreateEntities(n int, components ...Component) ([]EntityHandle, error) {
	var events eventBuffer
	r.mu.Lock()
	handles, err := r.createEntities(n, components, &events)
	r.mu.Unlock()
	r.emit(events)
	return handles, err
}

func (r *Registry) createEntities(n int, components []Component, events *eventBuffer) ([]EntityHandle, error) {
	if r.locks > 0 {
		return nil, LockedRegistryError{}
	}
	if n <= 0 {
		return nil, nil
	}
	sig, err := r.components.signatureOf(components...)
	if err != nil {
		return nil, err
	}
	archID, err := r.archetypes.GetOrCreate(sig)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to get archetype for %v", sig)
	}
	arch := r.archetypes.get(archID)
	handles, err := r.pool.CreateBatch(n)
	if err != nil {
		return nil, err
	}
	for i, e := range handles {
		if err := arch.add(e); err != nil {
			for _, done := range handles[:i] {
				arch.remove(done)
				r.locations.Del(done.ID)
			}
			r.pool.DestroyBatch(handles)
			return nil, eris.Wrapf(err, "failed to store %d entities in archetype %d", n, archID)
		}
		r.locations.Put(e.ID, archID)
	}
	if r.cache != nil {
		r.cache.InvalidateMatching(sig)
	}
	for _, e := range handles {
		events.created(e)
	}
	return handles, nil
}

// DestroyEntity removes e and every entity e owns (transitively).
func (r *Registry) DestroyEntity(e EntityHandle) error {
	var events eventBuffer
	r.mu.Lock()
	err := r.destroyChecked(e, &events)
	r.mu.Unlock()
	r.emit(events)
	return err
}

func (r *Registry) destroyChecked(e EntityHandle, events *eventBuffer) error {
	if r.locks > 0 {
		return LockedRegistryError{}
	}
	if !r.pool.IsAlive(e) {
		return InvalidEntityError{Entity: e}
	}
	r.destroyEntity(e, events)
	return nil
}

// DestroyEntities destroys every live handle and returns how many entities
// were destroyed, owned entities included. Dead handles are skipped.
func (r *Registry) DestroyEntities(entities ...EntityHandle) (int, error) {
	var events eventBuffer
	r.mu.Lock()
	if r.locks > 0 {
		r.mu.Unlock()
		return 0, LockedRegistryError{}
	}
	for _, e := range entities {
		if r.pool.IsAlive(e) {
			r.destroyEntity(e, &events)
		}
	}
	r.mu.Unlock()
	r.emit(events)
	return events.destroyedCount(), nil
}

// destroyEntity requires e to be alive. Order: archetype and chunks, then
// relationships, generation and free queue (in the pool), then owned entities.
func (r *Registry) destroyEntity(e EntityHandle, events *eventBuffer) {
	owned := r.pool.related(e, RelOwns)
	if archID, ok := r.locations.Get(e.ID); ok {
		arch := r.archetypes.get(archID)
		arch.remove(e)
		r.locations.Del(e.ID)
		if r.cache != nil {
			r.cache.InvalidateMatching(arch.sig.Mask)
		}
	}
	r.pool.Destroy(e)
	events.destroyed(e)
	for _, o := range owned {
		if r.pool.IsAlive(o) {
			r.destroyEntity(o, events)
		}
	}
}

func (r *Registry) IsAlive(e EntityHandle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pool.IsAlive(e)
}

// Signature returns the component signature of e.
func (r *Registry) Signature(e EntityHandle) (Signature, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	arch, err := r.archetypeOf(e)
	if err != nil {
		return 0, err
	}
	return arch.sig.Mask, nil
}

// ArchetypeOf returns the archetype e lives in.
func (r *Registry) ArchetypeOf(e EntityHandle) (*Archetype, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.archetypeOf(e)
}

func (r *Registry) archetypeOf(e EntityHandle) (*Archetype, error) {
	if !r.pool.IsAlive(e) {
		return nil, InvalidEntityError{Entity: e}
	}
	archID, ok := r.locations.Get(e.ID)
	if !ok {
		return nil, InvalidEntityError{Entity: e}
	}
	return r.archetypes.get(archID), nil
}

// AddComponent adds c to e with value (a T, a *T, or nil for the zero value).
func (r *Registry) AddComponent(e EntityHandle, c Component, value any) error {
	var events eventBuffer
	r.mu.Lock()
	err := r.changeComponent(e, c, true, value, &events)
	r.mu.Unlock()
	r.emit(events)
	return err
}

func (r *Registry) RemoveComponent(e EntityHandle, c Component) error {
	var events eventBuffer
	r.mu.Lock()
	err := r.changeComponent(e, c, false, nil, &events)
	r.mu.Unlock()
	r.emit(events)
	return err
}

func (r *Registry) HasComponent(e EntityHandle, c Component) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.components.lookup(c)
	if !ok {
		return false
	}
	arch, err := r.archetypeOf(e)
	if err != nil {
		return false
	}
	return arch.Has(info.id)
}

// ComponentValue returns a copy of e's value of c.
func (r *Registry) ComponentValue(e EntityHandle, c Component) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	col, info, err := r.column(e, c)
	if err != nil {
		return nil, err
	}
	v, ok := col.value(e)
	if !ok {
		return nil, MissingComponentError{Entity: e, Component: info.name}
	}
	r.tracker.Record(info.id)
	return v, nil
}

// column returns the storage holding e's value of c.
func (r *Registry) column(e EntityHandle, c Component) (componentStorage, *componentInfo, error) {
	arch, err := r.archetypeOf(e)
	if err != nil {
		return nil, nil, err
	}
	info, ok := r.components.lookup(c)
	if !ok || !arch.Has(info.id) {
		return nil, nil, MissingComponentError{Entity: e, Component: c.describe().name}
	}
	return arch.column(info.id), info, nil
}

func (r *Registry) changeComponent(e EntityHandle, c Component, add bool, value any, events *eventBuffer) error {
	if r.locks > 0 {
		return LockedRegistryError{}
	}
	var info *componentInfo
	if add {
		var err error
		if info, err = r.components.resolve(c); err != nil {
			return err
		}
	} else {
		var ok bool
		if info, ok = r.components.lookup(c); !ok {
			if !r.pool.IsAlive(e) {
				return InvalidEntityError{Entity: e}
			}
			return MissingComponentError{Entity: e, Component: c.describe().name}
		}
	}
	change, err := r.transition(e, info, add, value)
	if err != nil {
		return err
	}
	events.changed(change)
	return nil
}

// transition moves e to the archetype with info's bit set (add) or cleared,
// under the caller's write lock so no reader sees e half moved.
func (r *Registry) transition(e EntityHandle, info *componentInfo, add bool, value any) (StructuralChange, error) {
	change := StructuralChange{Entity: e, Component: info.id, Added: add}
	from, err := r.archetypeOf(e)
	if err != nil {
		return change, err
	}
	if add && from.Has(info.id) {
		return change, DuplicateComponentError{Entity: e, Component: info.name}
	}
	if !add && !from.Has(info.id) {
		return change, MissingComponentError{Entity: e, Component: info.name}
	}
	toID, err := r.archetypes.target(from.id, info.id, add)
	if err != nil {
		return change, eris.Wrapf(err, "failed to resolve target archetype for %s", info.name)
	}
	to := r.archetypes.get(toID)
	if err := from.moveTo(e, to); err != nil {
		return change, err
	}
	if add {
		if err := to.column(info.id).insertValue(e, value); err != nil {
			if undo := to.moveTo(e, from); undo != nil {
				r.log.Error().Err(undo).Stringer("entity", e).Msg("failed to roll back component add")
			}
			return change, eris.Wrapf(err, "failed to add %s to %v", info.name, e)
		}
	}
	r.locations.Put(e.ID, toID)
	if r.cache != nil {
		r.cache.Invalidate(bit(info.id))
	}
	change.From, change.To = from.id, toID
	return change, nil
}

// Relate adds a relationship between two live entities.
func (r *Registry) Relate(from, to EntityHandle, typ RelationshipType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pool.Relate(from, to, typ, 1)
}

func (r *Registry) Unrelate(from, to EntityHandle, typ RelationshipType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pool.Unrelate(from, to, typ)
}

// SetParent makes parent the parent of child. A child has at most one parent.
func (r *Registry) SetParent(child, parent EntityHandle) error {
	return r.Relate(parent, child, RelParent)
}

// Own makes owner own owned: destroying owner destroys owned.
func (r *Registry) Own(owner, owned EntityHandle) error {
	return r.Relate(owner, owned, RelOwns)
}

func (r *Registry) Relationships(e EntityHandle) []Relationship {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pool.Relationships(e)
}

func (r *Registry) Parent(e EntityHandle) (EntityHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pool.Parent(e)
}

// Children returns the entities e is the parent of.
func (r *Registry) Children(e EntityHandle) []EntityHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.pool.IsAlive(e) {
		return nil
	}
	return slices.Clone(r.pool.related(e, RelParent))
}

// Optimize runs periodic maintenance: query cache expiry and resizing, and
// pruning of unused templates. It returns the number of templates pruned.
func (r *Registry) Optimize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cache != nil {
		r.cache.Optimize()
	}
	return r.pool.PruneTemplates()
}

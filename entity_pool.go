package depot

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

type entitySlot struct {
	generation uint32
	alive      bool
}

// idQueue is a FIFO of freed entity ids.
type idQueue struct {
	items []uint32
	head  int
}

func (q *idQueue) push(id uint32) {
	q.items = append(q.items, id)
}

func (q *idQueue) pop() uint32 {
	id := q.items[q.head]
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 1024 && q.head*2 > len(q.items) {
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}
	return id
}

func (q *idQueue) len() int {
	return len(q.items) - q.head
}

// PoolStats counts entity pool activity.
type PoolStats struct {
	Live          int
	Peak          int
	Created       uint64
	Destroyed     uint64
	Recycled      uint64
	FreeIDs       int
	Relationships int
	Templates     int
	Instantiated  uint64
	BulkFlushes   uint64
	BulkOps       uint64
}

// EntityPool issues, validates and recycles entity handles and keeps the
// relationships and templates attached to them.
type EntityPool struct {
	guard         guard
	cfg           EntityPoolConfig
	slots         []entitySlot
	free          idQueue
	live          int
	relationships *relationshipIndex
	templates     *SimpleCache[*EntityTemplate]
	queue         *opQueue
	stats         PoolStats
	log           zerolog.Logger
}

func NewEntityPool(cfg EntityPoolConfig, log zerolog.Logger) *EntityPool {
	return &EntityPool{
		guard:         newGuard(cfg.ThreadSafe),
		cfg:           cfg,
		slots:         make([]entitySlot, 0, cfg.InitialCapacity),
		relationships: newRelationshipIndex(),
		templates:     newSimpleCache[*EntityTemplate](cfg.TemplateCacheSize),
		queue:         newOpQueue(),
		log:           log.With().Str("system", "entity_pool").Logger(),
	}
}

func (p *EntityPool) Create() (EntityHandle, error) {
	p.guard.Lock()
	defer p.guard.Unlock()
	if p.live >= p.cfg.MaxEntities {
		return NilEntity, p.capacityError(1)
	}
	return p.create(), nil
}

// CreateBatch creates n entities, or none when n would exceed MaxEntities.
func (p *EntityPool) CreateBatch(n int) ([]EntityHandle, error) {
	p.guard.Lock()
	defer p.guard.Unlock()
	if n <= 0 {
		return nil, nil
	}
	if p.live+n > p.cfg.MaxEntities {
		return nil, p.capacityError(n)
	}
	handles := make([]EntityHandle, n)
	for i := range handles {
		handles[i] = p.create()
	}
	return handles, nil
}

// CreateFromTemplate creates an entity and counts a use of tpl. Component
// values are applied by the registry.
func (p *EntityPool) CreateFromTemplate(tpl *EntityTemplate) (EntityHandle, error) {
	p.guard.Lock()
	defer p.guard.Unlock()
	if p.live >= p.cfg.MaxEntities {
		return NilEntity, p.capacityError(1)
	}
	tpl.uses++
	p.stats.Instantiated++
	return p.create(), nil
}

func (p *EntityPool) capacityError(n int) error {
	p.log.Error().
		Int("live", p.live).
		Int("requested", n).
		Int("max_entities", p.cfg.MaxEntities).
		Msg("entity limit reached")
	return eris.Wrapf(ErrCapacityExceeded, "cannot create %d entities: %d of %d alive", n, p.live, p.cfg.MaxEntities)
}

func (p *EntityPool) create() EntityHandle {
	var e EntityHandle
	if p.cfg.EnableRecycling && p.free.len() > p.cfg.RecycleThreshold {
		id := p.free.pop()
		slot := &p.slots[id]
		slot.alive = true
		e = EntityHandle{ID: id, Generation: slot.generation}
		p.stats.Recycled++
	} else {
		if uint64(len(p.slots)) >= math.MaxUint32 {
			// every id has been issued; fall back to the free queue
			id := p.free.pop()
			p.slots[id].alive = true
			e = EntityHandle{ID: id, Generation: p.slots[id].generation}
			p.stats.Recycled++
		} else {
			e = EntityHandle{ID: uint32(len(p.slots)), Generation: 1}
			p.slots = append(p.slots, entitySlot{generation: 1, alive: true})
		}
	}
	p.live++
	p.stats.Created++
	if p.live > p.stats.Peak {
		p.stats.Peak = p.live
	}
	return e
}

// Destroy invalidates e: relationships touching it are dropped, its generation
// is bumped and its id joins the free queue. It reports whether e was alive.
func (p *EntityPool) Destroy(e EntityHandle) bool {
	p.guard.Lock()
	defer p.guard.Unlock()
	return p.destroy(e)
}

func (p *EntityPool) DestroyBatch(entities []EntityHandle) int {
	p.guard.Lock()
	defer p.guard.Unlock()
	n := 0
	for _, e := range entities {
		if p.destroy(e) {
			n++
		}
	}
	return n
}

func (p *EntityPool) destroy(e EntityHandle) bool {
	if !p.isAlive(e) {
		return false
	}
	p.relationships.removeEntity(e.ID)
	slot := &p.slots[e.ID]
	slot.alive = false
	slot.generation = nextGeneration(slot.generation)
	p.free.push(e.ID)
	p.live--
	p.stats.Destroyed++
	return true
}

func (p *EntityPool) IsAlive(e EntityHandle) bool {
	p.guard.RLock()
	defer p.guard.RUnlock()
	return p.isAlive(e)
}

func (p *EntityPool) isAlive(e EntityHandle) bool {
	if int(e.ID) >= len(p.slots) {
		return false
	}
	slot := p.slots[e.ID]
	return slot.alive && slot.generation == e.Generation
}

// Validate reports liveness for each handle.
func (p *EntityPool) Validate(entities []EntityHandle) []bool {
	p.guard.RLock()
	defer p.guard.RUnlock()
	alive := make([]bool, len(entities))
	for i, e := range entities {
		alive[i] = p.isAlive(e)
	}
	return alive
}

func (p *EntityPool) Live() int {
	p.guard.RLock()
	defer p.guard.RUnlock()
	return p.live
}

// Relate adds a relationship. Both endpoints must be alive, duplicates and
// self relationships are rejected, and an entity has at most one parent.
func (p *EntityPool) Relate(from, to EntityHandle, typ RelationshipType, strength uint32) error {
	p.guard.Lock()
	defer p.guard.Unlock()
	if !p.cfg.EnableRelationships {
		return RelationshipError{From: from, To: to, Type: typ, Reason: "relationships are disabled"}
	}
	if !p.isAlive(from) {
		return InvalidEntityError{Entity: from}
	}
	if !p.isAlive(to) {
		return InvalidEntityError{Entity: to}
	}
	if from == to {
		return RelationshipError{From: from, To: to, Type: typ, Reason: "self relationship"}
	}
	if p.relationships.has(from, to, typ) {
		return RelationshipError{From: from, To: to, Type: typ, Reason: "already exists"}
	}
	if typ == RelParent {
		if parent, ok := p.relationships.parentOf(to); ok {
			return RelationshipError{From: from, To: to, Type: typ, Reason: "child already has parent " + parent.String()}
		}
	}
	p.relationships.add(Relationship{From: from, To: to, Type: typ, Strength: strength})
	return nil
}

func (p *EntityPool) Unrelate(from, to EntityHandle, typ RelationshipType) bool {
	p.guard.Lock()
	defer p.guard.Unlock()
	return p.relationships.remove(from, to, typ)
}

// Relationships returns the relationships whose source is e.
func (p *EntityPool) Relationships(e EntityHandle) []Relationship {
	p.guard.RLock()
	defer p.guard.RUnlock()
	if !p.isAlive(e) {
		return nil
	}
	rels := p.relationships.from(e.ID)
	out := make([]Relationship, len(rels))
	copy(out, rels)
	return out
}

// Incoming returns the relationships whose target is e.
func (p *EntityPool) Incoming(e EntityHandle) []Relationship {
	p.guard.RLock()
	defer p.guard.RUnlock()
	if !p.isAlive(e) {
		return nil
	}
	return p.relationships.to(e.ID)
}

func (p *EntityPool) Parent(e EntityHandle) (EntityHandle, bool) {
	p.guard.RLock()
	defer p.guard.RUnlock()
	if !p.isAlive(e) {
		return NilEntity, false
	}
	return p.relationships.parentOf(e)
}

// related returns the targets of e's relationships of type typ.
func (p *EntityPool) related(e EntityHandle, typ RelationshipType) []EntityHandle {
	p.guard.RLock()
	defer p.guard.RUnlock()
	var out []EntityHandle
	for _, r := range p.relationships.from(e.ID) {
		if r.Type == typ {
			out = append(out, r.To)
		}
	}
	return out
}

// RegisterTemplate stores tpl under its name.
func (p *EntityPool) RegisterTemplate(tpl *EntityTemplate) error {
	p.guard.Lock()
	defer p.guard.Unlock()
	if _, err := p.templates.Register(tpl.Name, tpl); err != nil {
		return eris.Wrapf(err, "failed to register template %q", tpl.Name)
	}
	return nil
}

func (p *EntityPool) Template(name string) (*EntityTemplate, bool) {
	p.guard.RLock()
	defer p.guard.RUnlock()
	tpl, ok := p.templates.Get(name)
	if !ok {
		return nil, false
	}
	return *tpl, true
}

// RemoveTemplate drops the template registered as name together with every
// template derived from it, and returns the removed names.
func (p *EntityPool) RemoveTemplate(name string) []string {
	p.guard.Lock()
	defer p.guard.Unlock()
	if _, ok := p.templates.GetIndex(name); !ok {
		return nil
	}
	removed := []string{name}
	seen := map[string]bool{name: true}
	for i := 0; i < len(removed); i++ {
		for j, key := range p.templates.Keys() {
			if !seen[key] && (*p.templates.GetItem(j)).Base == removed[i] {
				seen[key] = true
				removed = append(removed, key)
			}
		}
	}
	for _, key := range removed {
		p.templates.Remove(key)
	}
	return removed
}

// PruneTemplates drops templates unused since the previous prune and resets
// the use counters of the rest.
func (p *EntityPool) PruneTemplates() int {
	p.guard.Lock()
	defer p.guard.Unlock()
	var unused []string
	for i, name := range p.templates.Keys() {
		tpl := *p.templates.GetItem(i)
		if tpl.uses == 0 {
			unused = append(unused, name)
		}
		tpl.uses = 0
	}
	for _, name := range unused {
		p.templates.Remove(name)
	}
	if len(unused) > 0 {
		p.log.Debug().Strs("templates", unused).Msg("pruned unused templates")
	}
	return len(unused)
}

func (p *EntityPool) recordFlush(ops int) {
	p.guard.Lock()
	defer p.guard.Unlock()
	p.stats.BulkFlushes++
	p.stats.BulkOps += uint64(ops)
}

func (p *EntityPool) Stats() PoolStats {
	p.guard.RLock()
	defer p.guard.RUnlock()
	s := p.stats
	s.Live = p.live
	s.FreeIDs = p.free.len()
	s.Relationships = p.relationships.count
	s.Templates = p.templates.Len()
	return s
}

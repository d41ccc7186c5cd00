package depot

// EntityHook observes entity creation or destruction.
type EntityHook func(EntityHandle)

// StructuralChange describes one component add or remove.
type StructuralChange struct {
	Entity    EntityHandle
	From      ArchetypeID
	To        ArchetypeID
	Component ComponentID
	Added     bool
}

// ChangeHook observes component adds and removes.
type ChangeHook func(StructuralChange)

type hooks struct {
	created   []EntityHook
	destroyed []EntityHook
	changed   []ChangeHook
}

// OnEntityCreated registers fn to run after entities are created. Hooks run after the
// registry lock is released and may call back into the registry.
func (r *Registry) OnEntityCreated(fn EntityHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks.created = append(r.hooks.created, fn)
}

// OnEntityDestroyed registers fn to run after entities are destroyed, owned entities
// included.
func (r *Registry) OnEntityDestroyed(fn EntityHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks.destroyed = append(r.hooks.destroyed, fn)
}

func (r *Registry) OnStructuralChange(fn ChangeHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks.changed = append(r.hooks.changed, fn)
}

type eventKind uint8

const (
	eventCreated eventKind = iota
	eventDestroyed
	eventChanged
)

type event struct {
	kind   eventKind
	entity EntityHandle
	change StructuralChange
}

// eventBuffer collects events while the registry lock is held.
type eventBuffer struct {
	events []event
}

func (b *eventBuffer) created(e EntityHandle) {
	b.events = append(b.events, event{kind: eventCreated, entity: e})
}

func (b *eventBuffer) destroyed(e EntityHandle) {
	b.events = append(b.events, event{kind: eventDestroyed, entity: e})
}

func (b *eventBuffer) changed(c StructuralChange) {
	b.events = append(b.events, event{kind: eventChanged, entity: c.Entity, change: c})
}

func (b *eventBuffer) destroyedCount() int {
	n := 0
	for _, ev := range b.events {
		if ev.kind == eventDestroyed {
			n++
		}
	}
	return n
}

// emit runs the registered hooks for events. It must be called without the
// registry lock held.
func (r *Registry) emit(events eventBuffer) {
	if len(events.events) == 0 {
		return
	}
	r.mu.RLock()
	h := r.hooks
	r.mu.RUnlock()
	for _, ev := range events.events {
		switch ev.kind {
		case eventCreated:
			for _, fn := range h.created {
				fn(ev.entity)
			}
		case eventDestroyed:
			for _, fn := range h.destroyed {
				fn(ev.entity)
			}
		case eventChanged:
			for _, fn := range h.changed {
				fn(ev.change)
			}
		}
	}
}

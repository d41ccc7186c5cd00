package depot

import (
	"github.com/rotisserie/eris"
)

// IDIn returns the id the component has in r, registering it on first use.
func (c AccessibleComponent[T]) IDIn(r *Registry) (ComponentID, error) {
	return r.ComponentID(c)
}

// Add attaches the component to e with value v.
func (c AccessibleComponent[T]) Add(r *Registry, e EntityHandle, v T) error {
	return r.AddComponent(e, c, v)
}

func (c AccessibleComponent[T]) Remove(r *Registry, e EntityHandle) error {
	return r.RemoveComponent(e, c)
}

func (c AccessibleComponent[T]) Has(r *Registry, e EntityHandle) bool {
	return r.HasComponent(e, c)
}

// Get returns a pointer to e's value. The pointer is valid until the next
// structural change to e's archetype.
func (c AccessibleComponent[T]) Get(r *Registry, e EntityHandle) (*T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	col, info, err := r.column(e, c)
	if err != nil {
		return nil, err
	}
	cs, ok := col.(*chunkSet[T])
	if !ok {
		return nil, eris.Wrapf(ErrComponentType, "column of %s holds %T", info.name, col)
	}
	p, ok := cs.get(e)
	if !ok {
		return nil, MissingComponentError{Entity: e, Component: info.name}
	}
	r.tracker.Record(info.id)
	return p, nil
}

func (c AccessibleComponent[T]) TryGet(r *Registry, e EntityHandle) (*T, bool) {
	p, err := c.Get(r, e)
	return p, err == nil
}

// Set overwrites e's existing value.
func (c AccessibleComponent[T]) Set(r *Registry, e EntityHandle, v T) error {
	p, err := c.Get(r, e)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// GetFromCursor retrieves the component value of the entity at the cursor
// position, or nil when its archetype lacks the component.
func (c AccessibleComponent[T]) GetFromCursor(cursor *Cursor) *T {
	cs := c.cursorColumn(cursor)
	if cs == nil {
		return nil
	}
	p, _ := cs.get(cursor.CurrentEntity())
	return p
}

// GetFromCursorSafe reports whether the archetype at the cursor position has
// the component and returns the value when it does.
func (c AccessibleComponent[T]) GetFromCursorSafe(cursor *Cursor) (bool, *T) {
	p := c.GetFromCursor(cursor)
	return p != nil, p
}

// CheckCursor determines if the component exists in the archetype at the
// cursor position.
func (c AccessibleComponent[T]) CheckCursor(cursor *Cursor) bool {
	return c.cursorColumn(cursor) != nil
}

func (c AccessibleComponent[T]) cursorColumn(cursor *Cursor) *chunkSet[T] {
	if cursor.current == nil {
		return nil
	}
	info, ok := cursor.registry.components.lookup(c)
	if !ok || !cursor.current.Has(info.id) {
		return nil
	}
	cs, _ := cursor.current.column(info.id).(*chunkSet[T])
	if cs != nil {
		cursor.registry.tracker.Record(info.id)
	}
	return cs
}

// Chunks returns the chunk views of the component in arch, for loops that
// walk values contiguously. Views are invalidated by structural changes.
func (c AccessibleComponent[T]) Chunks(r *Registry, arch *Archetype) ([]ChunkView[T], error) {
	info, ok := r.components.lookup(c)
	if !ok || !arch.Has(info.id) {
		return nil, eris.Wrapf(ErrUnknownComponent, "archetype %d has no %s", arch.ID(), c.describe().name)
	}
	cs, ok := arch.column(info.id).(*chunkSet[T])
	if !ok {
		return nil, eris.Wrapf(ErrComponentType, "column of %s holds %T", info.name, arch.column(info.id))
	}
	r.tracker.Record(info.id)
	return cs.views(), nil
}

// SetTemplate encodes v as the initial value of the component in tpl.
func (c AccessibleComponent[T]) SetTemplate(r *Registry, tpl *EntityTemplate, v T) error {
	id, err := c.IDIn(r)
	if err != nil {
		return err
	}
	return tpl.Set(id, v)
}

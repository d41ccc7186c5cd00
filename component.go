package depot

import (
	"reflect"

	"github.com/TheBitDrifter/table"
	"github.com/rotisserie/eris"
)

// Component represents a data attribute/state that can be attached to entities.
// Components are registry independent; each registry assigns its own
// ComponentID the first time it sees one.
type Component interface {
	table.ElementType
	describe() *componentType
}

// componentType is the runtime descriptor of one Go component type: what a
// registry needs to size chunks and build storage without knowing T.
type componentType struct {
	table.ElementType
	name       string
	typ        reflect.Type
	size       uintptr
	align      uintptr
	newStorage func(id ComponentID, layout ChunkLayout, cfg ChunkConfig, ss SparseSetConfig) componentStorage
}

func (c *componentType) describe() *componentType {
	return c
}

func (c *componentType) ComponentName() string {
	return c.name
}

func (c *componentType) GoType() reflect.Type {
	return c.typ
}

func newComponentType[T any]() *componentType {
	typ := reflect.TypeFor[T]()
	return &componentType{
		ElementType: table.FactoryNewElementType[T](),
		name:        typ.String(),
		typ:         typ,
		size:        typ.Size(),
		align:       uintptr(typ.Align()),
		newStorage: func(id ComponentID, layout ChunkLayout, cfg ChunkConfig, ss SparseSetConfig) componentStorage {
			return newChunkSet[T](id, layout, cfg, ss)
		},
	}
}

// componentInfo is a component type as registered in one registry.
type componentInfo struct {
	*componentType
	id     ComponentID
	layout ChunkLayout
}

// componentRegistry assigns ComponentIDs through a table.Schema: a
// component's id is its schema row index. Its guard is always on: components
// are registered lazily, including from ParallelEach callbacks.
type componentRegistry struct {
	guard  guard
	schema table.Schema
	byType map[reflect.Type]*componentInfo
	byID   [MaxComponents]*componentInfo
	chunk  ChunkConfig
}

func newComponentRegistry(chunk ChunkConfig) *componentRegistry {
	return &componentRegistry{
		guard:  newGuard(true),
		schema: table.Factory.NewSchema(),
		byType: make(map[reflect.Type]*componentInfo),
		chunk:  chunk,
	}
}

// resolve returns the registration of c, registering it on first use.
func (cr *componentRegistry) resolve(c Component) (*componentInfo, error) {
	ct := c.describe()
	cr.guard.RLock()
	info, ok := cr.byType[ct.typ]
	cr.guard.RUnlock()
	if ok {
		return info, nil
	}

	cr.guard.Lock()
	defer cr.guard.Unlock()
	if info, ok := cr.byType[ct.typ]; ok {
		return info, nil
	}
	if len(cr.byType) >= MaxComponents {
		return nil, eris.Wrapf(ErrCapacityExceeded, "cannot register %s: %d component types already registered", ct.name, MaxComponents)
	}
	layout, err := layoutFor(ct.size, ct.align, cr.chunk)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to size chunks for %s", ct.name)
	}
	cr.schema.Register(ct.ElementType)
	row := cr.schema.RowIndexFor(ct.ElementType)
	if row >= MaxComponents {
		return nil, eris.Wrapf(ErrCapacityExceeded, "component %s was assigned row %d", ct.name, row)
	}
	if prev := cr.byID[row]; prev != nil {
		return nil, eris.Errorf("component %s collides with %s at id %d", ct.name, prev.name, row)
	}
	info = &componentInfo{componentType: ct, id: ComponentID(row), layout: layout}
	cr.byType[ct.typ] = info
	cr.byID[row] = info
	return info, nil
}

// lookup returns the registration of c without registering it.
func (cr *componentRegistry) lookup(c Component) (*componentInfo, bool) {
	cr.guard.RLock()
	defer cr.guard.RUnlock()
	info, ok := cr.byType[c.describe().typ]
	return info, ok
}

func (cr *componentRegistry) byComponentID(id ComponentID) *componentInfo {
	cr.guard.RLock()
	defer cr.guard.RUnlock()
	return cr.byID[id]
}

func (cr *componentRegistry) len() int {
	cr.guard.RLock()
	defer cr.guard.RUnlock()
	return len(cr.byType)
}

// signatureOf resolves every component and returns their signature.
func (cr *componentRegistry) signatureOf(cs ...Component) (Signature, error) {
	var sig Signature
	for _, c := range cs {
		info, err := cr.resolve(c)
		if err != nil {
			return 0, err
		}
		sig = sig.With(info.id)
	}
	return sig, nil
}
